// Gateway wraps every outbound call to the movie backend
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/marquee/internal/shared"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "http://127.0.0.1:8000"
	breakerName    = "movie-api"
)

// TokenProvider supplies the current bearer token, if any.
type TokenProvider interface {
	Token() (string, bool)
}

// TokenFunc adapts a function to [TokenProvider].
type TokenFunc func() (string, bool)

func (f TokenFunc) Token() (string, bool) { return f() }

// GatewayOpts configures a [Gateway]. Zero values fall back to defaults.
type GatewayOpts struct {
	BaseURL   string
	Client    *http.Client
	Timeout   time.Duration
	RateLimit float64 // requests per second; <= 0 disables limiting
	Burst     int
	Logger    *log.Logger
}

// Gateway is the single choke point for backend HTTP traffic.
//
// It attaches the bearer credential only when one exists, rate limits, trips a circuit breaker
// on 5xx/transport failures, and classifies every response. A 401 on any authenticated call
// invokes the unauthorized hook before the [shared.AuthError] is returned.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*response]
	logger     *log.Logger

	mu             sync.RWMutex
	tokens         TokenProvider
	onUnauthorized func(rejected string, err error)
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	JSON   any
	Form   url.Values
	// Anonymous requests never carry a bearer token and a 401 does not end the session.
	Anonymous bool
}

type response struct {
	status    int
	body      []byte
	requestID string
}

// NewGateway creates a [Gateway] for the backend at opts.BaseURL.
func NewGateway(opts GatewayOpts) *Gateway {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	logger = shared.WithLogger(logger, "component", "gateway")

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	g := &Gateway{
		baseURL:    baseURL,
		httpClient: client,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}

	g.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A caller giving up says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return g
}

// Bind attaches the session's token source and the hook run when an authenticated call returns 401.
//
// The hook receives the token that was rejected so a late 401 cannot end a newer session.
func (g *Gateway) Bind(tokens TokenProvider, onUnauthorized func(rejected string, err error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = tokens
	g.onUnauthorized = onUnauthorized
}

// BaseURL returns the backend root without a trailing slash.
func (g *Gateway) BaseURL() string { return g.baseURL }

// HTTPClient returns the underlying client, used for the password-grant exchange.
func (g *Gateway) HTTPClient() *http.Client { return g.httpClient }

// HasToken reports whether a bearer token would be attached to an authenticated request.
func (g *Gateway) HasToken() bool {
	_, ok := g.token()
	return ok
}

// Wait blocks until the rate limiter admits another request.
func (g *Gateway) Wait(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return &shared.NetworkError{Op: "rate limit", Err: err}
	}
	return nil
}

func (g *Gateway) token() (string, bool) {
	g.mu.RLock()
	tokens := g.tokens
	g.mu.RUnlock()

	if tokens == nil {
		return "", false
	}
	tok, ok := tokens.Token()
	return tok, ok && tok != ""
}

// Do executes r and decodes a 2xx JSON body into out (which may be nil).
func (g *Gateway) Do(ctx context.Context, r Request, out any) error {
	op := r.Method + " " + r.Path

	if err := g.Wait(ctx); err != nil {
		return err
	}

	req, err := g.newRequest(ctx, r)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := g.breaker.Execute(func() (*response, error) {
		return g.roundTrip(req)
	})

	if resp != nil {
		g.logger.Debug("request", "method", r.Method, "path", r.Path, "status", resp.status,
			"request_id", resp.requestID, "duration", time.Since(start))
	}

	if err != nil {
		var apiErr *shared.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%s: %w", op, err)
		}
		g.logger.Debug("request failed", "method", r.Method, "path", r.Path, "err", err)
		return &shared.NetworkError{Op: op, Err: err}
	}

	if err := g.classify(r, resp, bearer(req)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

func (g *Gateway) newRequest(ctx context.Context, r Request) (*http.Request, error) {
	fullURL := g.baseURL + r.Path
	if len(r.Query) > 0 {
		fullURL += "?" + r.Query.Encode()
	}

	var body io.Reader = http.NoBody
	contentType := ""
	switch {
	case r.JSON != nil:
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", shared.GenerateID())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if !r.Anonymous {
		if tok, ok := g.token(); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	return req, nil
}

// roundTrip reads the whole body so the breaker can judge the outcome; 5xx counts as a failure.
func (g *Gateway) roundTrip(req *http.Request) (*response, error) {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	out := &response{status: resp.StatusCode, body: body, requestID: req.Header.Get("X-Request-ID")}
	if resp.StatusCode >= http.StatusInternalServerError {
		return out, &shared.APIError{Status: resp.StatusCode, Detail: ParseDetail(body)}
	}
	return out, nil
}

func (g *Gateway) classify(r Request, resp *response, token string) error {
	if resp.status >= 200 && resp.status < 300 {
		return nil
	}

	detail := ParseDetail(resp.body)
	if resp.status == http.StatusUnauthorized {
		if r.Anonymous {
			return &shared.AuthError{Status: resp.status, Detail: detail, Err: shared.ErrInvalidCredentials}
		}

		authErr := &shared.AuthError{Status: resp.status, Detail: detail, Err: shared.ErrSessionExpired}
		g.mu.RLock()
		hook := g.onUnauthorized
		g.mu.RUnlock()
		if hook != nil {
			g.logger.Warn("authorization failed, ending session", "path", r.Path, "detail", detail)
			hook(token, authErr)
		}
		return authErr
	}

	return &shared.APIError{Status: resp.status, Detail: detail}
}

func bearer(req *http.Request) string {
	return strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
}

// ParseDetail extracts a human-readable message from an error body.
//
// detail may be a plain string or a list of {loc, msg} validation entries.
func ParseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var entries []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &entries); err != nil {
		return strings.TrimSpace(string(envelope.Detail))
	}

	msgs := make([]string, 0, len(entries))
	for _, e := range entries {
		if len(e.Loc) > 0 {
			msgs = append(msgs, fmt.Sprintf("%v: %s", e.Loc[len(e.Loc)-1], e.Msg))
		} else {
			msgs = append(msgs, e.Msg)
		}
	}
	return strings.Join(msgs, "; ")
}
