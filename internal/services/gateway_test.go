package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/marquee/internal/shared"
	tu "github.com/desertthunder/marquee/internal/testing"
	gobreaker "github.com/sony/gobreaker/v2"
)

func staticToken(tok string) TokenFunc {
	return func() (string, bool) { return tok, tok != "" }
}

func TestGateway(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Empty BaseURL", func(t *testing.T) {
			gw := NewGateway(GatewayOpts{})
			if gw.BaseURL() != defaultBaseURL {
				t.Errorf("expected default baseURL %s, got %s", defaultBaseURL, gw.BaseURL())
			}
		})

		t.Run("Trims Trailing Slash", func(t *testing.T) {
			gw := NewGateway(GatewayOpts{BaseURL: "http://example.com/"})
			if gw.BaseURL() != "http://example.com" {
				t.Errorf("expected trimmed baseURL, got %s", gw.BaseURL())
			}
		})

		t.Run("With Custom Client", func(t *testing.T) {
			client := &http.Client{}
			gw := NewGateway(GatewayOpts{Client: client})
			if gw.HTTPClient() != client {
				t.Error("expected custom client to be used")
			}
		})
	})

	t.Run("Headers", func(t *testing.T) {
		t.Run("Attaches Bearer When Token Present", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer abc" {
					t.Errorf("expected bearer header, got %q", got)
				}
				if r.Header.Get("X-Request-ID") == "" {
					t.Error("expected X-Request-ID header")
				}
				w.Write([]byte(`{}`))
			}))
			defer server.Close()

			gw := NewGateway(GatewayOpts{BaseURL: server.URL})
			gw.Bind(staticToken("abc"), nil)

			if err := gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users/me"}, nil); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("No Header Without Token", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, ok := r.Header["Authorization"]; ok {
					t.Error("expected no Authorization header")
				}
			}))
			defer server.Close()

			gw := NewGateway(GatewayOpts{BaseURL: server.URL})
			gw.Bind(staticToken(""), nil)

			if err := gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/movies/"}, nil); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("Anonymous Request Omits Token", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "" {
					t.Error("expected anonymous request without bearer")
				}
			}))
			defer server.Close()

			gw := NewGateway(GatewayOpts{BaseURL: server.URL})
			gw.Bind(staticToken("abc"), nil)

			err := gw.Do(context.Background(), Request{Method: http.MethodPost, Path: "/register/", JSON: map[string]string{}, Anonymous: true}, nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	})

	t.Run("Classification", func(t *testing.T) {
		t.Run("401 Runs Hook Once", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"detail":"Could not validate credentials"}`))
			}))
			defer server.Close()

			var calls int32
			gw := NewGateway(GatewayOpts{BaseURL: server.URL})
			var rejected string
			gw.Bind(staticToken("expired"), func(tok string, _ error) {
				rejected = tok
				atomic.AddInt32(&calls, 1)
			})

			err := gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users/me/ratings"}, nil)

			if !errors.Is(err, shared.ErrSessionExpired) {
				t.Fatalf("expected ErrSessionExpired, got %v", err)
			}
			var authErr *shared.AuthError
			if !errors.As(err, &authErr) || authErr.Detail != "Could not validate credentials" {
				t.Errorf("expected AuthError with server detail, got %v", err)
			}
			if atomic.LoadInt32(&calls) != 1 {
				t.Errorf("expected hook to run once, ran %d times", calls)
			}
			if rejected != "expired" {
				t.Errorf("expected hook to receive the rejected token, got %q", rejected)
			}
		})

		t.Run("Anonymous 401 Skips Hook", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}))
			defer server.Close()

			called := false
			gw := NewGateway(GatewayOpts{BaseURL: server.URL})
			gw.Bind(staticToken(""), func(string, error) { called = true })

			err := gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/recommendations/1", Anonymous: true}, nil)
			if !errors.Is(err, shared.ErrInvalidCredentials) {
				t.Errorf("expected ErrInvalidCredentials, got %v", err)
			}
			if called {
				t.Error("hook should not run for anonymous requests")
			}
		})

		t.Run("404 Is NotFound", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"detail":"Movie not found"}`))
			}))
			defer server.Close()

			gw := NewGateway(GatewayOpts{BaseURL: server.URL})
			err := gw.Do(context.Background(), Request{Method: http.MethodDelete, Path: "/watchlist/99"}, nil)

			if !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			if shared.IsAuthError(err) {
				t.Error("404 must not be an auth error")
			}
		})

		t.Run("Validation Detail List", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte(`{"detail":[{"loc":["body","score"],"msg":"field required","type":"missing"}]}`))
			}))
			defer server.Close()

			gw := NewGateway(GatewayOpts{BaseURL: server.URL})
			err := gw.Do(context.Background(), Request{Method: http.MethodPost, Path: "/ratings/", JSON: map[string]int{}}, nil)

			var apiErr *shared.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Status != http.StatusUnprocessableEntity || apiErr.Detail != "score: field required" {
				t.Errorf("unexpected APIError %+v", apiErr)
			}
		})

		t.Run("Transport Failure", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}
			gw := NewGateway(GatewayOpts{BaseURL: "http://example.com", Client: client})

			err := gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/movies/"}, nil)

			var netErr *shared.NetworkError
			if !errors.As(err, &netErr) {
				t.Fatalf("expected NetworkError, got %v", err)
			}
			if !shared.IsRetryable(err) {
				t.Error("transport failures should be retryable")
			}
		})

		t.Run("Body Read Failure", func(t *testing.T) {
			resp := &http.Response{StatusCode: http.StatusOK, Body: &tu.FCloser{}, Header: http.Header{}}
			client := &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}
			gw := NewGateway(GatewayOpts{BaseURL: "http://example.com", Client: client})

			err := gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/movies/"}, nil)
			if !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})

		t.Run("Invalid JSON Body", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			}))
			defer server.Close()

			gw := NewGateway(GatewayOpts{BaseURL: server.URL})
			var out []int
			if err := gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/movies/"}, &out); err == nil {
				t.Error("expected decode error")
			}
		})
	})

	t.Run("Circuit Breaker", func(t *testing.T) {
		t.Run("Opens After Consecutive 5xx", func(t *testing.T) {
			var hits int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(http.StatusBadGateway)
			}))
			defer server.Close()

			gw := NewGateway(GatewayOpts{BaseURL: server.URL})
			for range 5 {
				err := gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/movies/"}, nil)
				if !shared.IsRetryable(err) {
					t.Fatalf("expected retryable 5xx error, got %v", err)
				}
			}

			err := gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/movies/"}, nil)
			if !errors.Is(err, gobreaker.ErrOpenState) {
				t.Errorf("expected open circuit, got %v", err)
			}
			if atomic.LoadInt32(&hits) != 5 {
				t.Errorf("expected 5 requests to reach the server, got %d", hits)
			}
		})

		t.Run("Cancellation Does Not Trip", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, context.Canceled)}
			gw := NewGateway(GatewayOpts{BaseURL: "http://example.com", Client: client})

			for range 8 {
				err := gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/movies/"}, nil)
				if errors.Is(err, gobreaker.ErrOpenState) {
					t.Fatalf("circuit opened after cancelled requests: %v", err)
				}
				if !errors.Is(err, context.Canceled) {
					t.Fatalf("expected cancellation to surface, got %v", err)
				}
			}
			if state := gw.breaker.State(); state != gobreaker.StateClosed {
				t.Errorf("expected closed circuit, got %s", state)
			}
		})

		t.Run("4xx Does Not Trip", func(t *testing.T) {
			var hits int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(http.StatusNotFound)
			}))
			defer server.Close()

			gw := NewGateway(GatewayOpts{BaseURL: server.URL})
			for range 8 {
				gw.Do(context.Background(), Request{Method: http.MethodGet, Path: "/movies/"}, nil)
			}

			if atomic.LoadInt32(&hits) != 8 {
				t.Errorf("expected every request to reach the server, got %d", hits)
			}
		})
	})

	t.Run("Rate Limit Honours Context", func(t *testing.T) {
		gw := NewGateway(GatewayOpts{BaseURL: "http://example.com", RateLimit: 0.001, Burst: 1})
		ctx, cancel := context.WithCancel(context.Background())

		if err := gw.Wait(ctx); err != nil {
			t.Fatalf("first request should use the burst, got %v", err)
		}

		cancel()
		if err := gw.Wait(ctx); err == nil {
			t.Error("expected error once the context is cancelled")
		}
	})
}

func TestParseDetail(t *testing.T) {
	tc := []struct {
		name string
		body string
		want string
	}{
		{name: "string", body: `{"detail":"Email already registered"}`, want: "Email already registered"},
		{name: "list", body: `{"detail":[{"loc":["body","email"],"msg":"invalid email"},{"msg":"bad"}]}`, want: "email: invalid email; bad"},
		{name: "missing", body: `{"message":"hi"}`, want: ""},
		{name: "not json", body: `oops`, want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDetail([]byte(tt.body)); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
