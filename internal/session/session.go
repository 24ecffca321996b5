package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/shared"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// State is a step in the session lifecycle.
type State int

const (
	Anonymous State = iota
	Authenticating
	ProfileLoading
	Ready
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case ProfileLoading:
		return "profile-loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Event describes a state transition. Err is set when the transition was caused by a failure.
type Event struct {
	Previous State
	Current  State
	Err      error
}

// Ended reports whether the event tears the session down.
func (e Event) Ended() bool { return e.Current == Anonymous }

// Authenticator is the subset of the backend the session needs.
type Authenticator interface {
	Token(ctx context.Context, email, password string) (*oauth2.Token, error)
	Register(ctx context.Context, r shared.Registration) (*models.User, error)
	Me(ctx context.Context) (*models.User, error)
}

// TokenStore persists the opaque token across process restarts.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Options tunes a [Store].
type Options struct {
	MinPasswordLength int
	Logger            *log.Logger
	Now               func() time.Time
}

type listener struct {
	id int
	fn func(Event)
}

// Store is the process-wide session.
type Store struct {
	api    Authenticator
	tokens TokenStore
	logger *log.Logger
	opts   Options

	mu         sync.RWMutex
	state      State
	token      string
	claims     models.Token
	user       *models.User
	generation uint64
	listeners  []listener
	nextID     int
}

// New creates an anonymous [Store].
func New(api Authenticator, tokens TokenStore, opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = 6
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	return &Store{
		api:    api,
		tokens: tokens,
		logger: shared.WithLogger(logger, "component", "session"),
		opts:   opts,
	}
}

// Subscribe registers fn for every transition and returns a function that removes it.
//
// Listeners run synchronously on the goroutine that caused the transition, outside the store's lock.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns the current bearer token. It satisfies services.TokenProvider.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// IsAuthenticated reports whether a token is held.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Token()
	return ok
}

// User returns the loaded profile, if any.
func (s *Store) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// Claims returns the unverified view of the current token.
func (s *Store) Claims() models.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims
}

// Restore loads a persisted token and makes it current without contacting the server.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	raw, err := s.tokens.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load persisted token: %w", err)
	}
	if raw == "" {
		return false, nil
	}

	claims := DecodeToken(raw)
	if claims.Expired(s.opts.Now()) {
		s.logger.Warn("persisted token appears expired", "expiry", claims.Expiry)
	}

	s.mu.Lock()
	prev := s.state
	s.token = raw
	s.claims = claims
	s.user = nil
	s.state = ProfileLoading
	s.generation++
	s.mu.Unlock()

	s.logger.Debug("session restored", "subject", claims.Subject)
	s.notify(Event{Previous: prev, Current: ProfileLoading})
	return true, nil
}

// Login exchanges credentials for a token, persists it, and loads the profile.
//
// Any previous token is discarded before the exchange, so a failed login leaves the session anonymous.
// When the token is issued but the profile cannot be fetched for a reason other than authorization,
// the session stays signed in at ProfileLoading and the error wraps [shared.ErrProfileUnavailable].
func (s *Store) Login(ctx context.Context, email, password string) (*models.User, error) {
	if err := shared.ValidateCredentials(shared.Credentials{Email: email, Password: password}); err != nil {
		return nil, err
	}

	if s.IsAuthenticated() {
		if err := s.Logout(ctx); err != nil {
			s.logger.Warn("failed to clear previous session", "err", err)
		}
	} else if err := s.tokens.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear persisted token", "err", err)
	}

	gen := s.transition(Authenticating, nil)

	tok, err := s.api.Token(ctx, email, password)
	if err != nil {
		s.mu.Lock()
		stale := s.generation != gen
		s.mu.Unlock()
		if !stale {
			s.transition(Anonymous, err)
		}
		s.logger.Info("login failed", "email", email, "err", err)
		return nil, err
	}

	if err := s.tokens.Save(ctx, tok.AccessToken); err != nil {
		s.logger.Warn("failed to persist token", "err", err)
	}

	claims := DecodeToken(tok.AccessToken)
	claims.TokenType = tok.TokenType

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil, fmt.Errorf("login superseded: %w", shared.ErrNotAuthenticated)
	}
	prev := s.state
	s.token = tok.AccessToken
	s.claims = claims
	s.state = ProfileLoading
	s.mu.Unlock()
	s.notify(Event{Previous: prev, Current: ProfileLoading})

	s.logger.Info("logged in", "email", email)

	user, err := s.Validate(ctx)
	if err != nil && !shared.IsAuthError(err) && !errors.Is(err, shared.ErrNotAuthenticated) {
		s.logger.Warn("profile unavailable after login", "err", err)
		return nil, fmt.Errorf("%w: %w", shared.ErrProfileUnavailable, err)
	}
	return user, err
}

// Register creates an account after client-side validation. It does not log in.
func (s *Store) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	r := shared.Registration{Username: username, Email: email, Password: password}
	if err := shared.ValidateRegistration(r, s.opts.MinPasswordLength); err != nil {
		return nil, err
	}

	user, err := s.api.Register(ctx, r)
	if err != nil {
		return nil, err
	}

	s.logger.Info("registered", "username", username)
	return user, nil
}

// Validate fetches the profile for the current token and moves the session to Ready.
//
// An authorization failure ends the session.
func (s *Store) Validate(ctx context.Context) (*models.User, error) {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return nil, shared.ErrNotAuthenticated
	}
	gen := s.generation
	token := s.token
	s.mu.Unlock()

	user, err := s.api.Me(ctx)
	if err != nil {
		if shared.IsAuthError(err) {
			s.ExpireToken(ctx, token, err)
		}
		return nil, err
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil, fmt.Errorf("profile discarded: %w", shared.ErrNotAuthenticated)
	}
	prev := s.state
	s.user = user
	s.state = Ready
	s.mu.Unlock()

	if prev != Ready {
		s.notify(Event{Previous: prev, Current: Ready})
	}
	return user, nil
}

// Logout clears the persisted and current token and the profile, then notifies every listener.
func (s *Store) Logout(ctx context.Context) error {
	return s.end(ctx, nil)
}

// Expire ends the session because the server rejected the token. It is a no-op when already anonymous.
func (s *Store) Expire(ctx context.Context, cause error) {
	if !s.IsAuthenticated() {
		return
	}
	if err := s.end(ctx, cause); err != nil {
		s.logger.Warn("failed to clear persisted token", "err", err)
	}
}

// ExpireToken ends the session only if token is still the current one.
func (s *Store) ExpireToken(ctx context.Context, token string, cause error) {
	if cur, ok := s.Token(); !ok || cur != token {
		return
	}
	s.Expire(ctx, cause)
}

func (s *Store) end(ctx context.Context, cause error) error {
	clearErr := s.tokens.Clear(ctx)

	s.mu.Lock()
	prev := s.state
	s.token = ""
	s.claims = models.Token{}
	s.user = nil
	s.state = Anonymous
	s.generation++
	s.mu.Unlock()

	if cause != nil {
		s.logger.Warn("session ended", "cause", cause)
	} else {
		s.logger.Info("logged out")
	}
	s.notify(Event{Previous: prev, Current: Anonymous, Err: cause})

	if clearErr != nil {
		return fmt.Errorf("failed to clear persisted token: %w", clearErr)
	}
	return nil
}

// transition moves to next without touching the token and returns the new generation.
func (s *Store) transition(next State, cause error) uint64 {
	s.mu.Lock()
	prev := s.state
	s.state = next
	if next == Anonymous {
		s.token = ""
		s.claims = models.Token{}
		s.user = nil
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.notify(Event{Previous: prev, Current: next, Err: cause})
	return gen
}

func (s *Store) notify(ev Event) {
	s.mu.RLock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, l := range s.listeners {
		fns = append(fns, l.fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// DecodeToken reads the subject and expiry from a JWT without verifying its signature.
//
// Tokens that are not JWTs decode to a [models.Token] holding only the raw value.
func DecodeToken(raw string) models.Token {
	tok := models.Token{AccessToken: raw, TokenType: "bearer"}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return tok
	}

	if sub, err := claims.GetSubject(); err == nil {
		tok.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tok.Expiry = exp.Time
	}
	return tok
}
