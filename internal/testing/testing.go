// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/shared"
	"golang.org/x/oauth2"
)

// MockBackend is a test double for [services.Backend].
//
// Each Fn field overrides one call; a nil Fn returns an empty result. Calls are counted by method name.
type MockBackend struct {
	TokenFn               func(ctx context.Context, email, password string) (*oauth2.Token, error)
	RegisterFn            func(ctx context.Context, r shared.Registration) (*models.User, error)
	MeFn                  func(ctx context.Context) (*models.User, error)
	RecommendationsFn     func(ctx context.Context) ([]models.Movie, error)
	RatingsFn             func(ctx context.Context) ([]models.Rating, error)
	RateFn                func(ctx context.Context, rating models.Rating, userID int) (*models.Rating, error)
	WatchlistFn           func(ctx context.Context) ([]models.WatchlistEntry, error)
	AddToWatchlistFn      func(ctx context.Context, movieID int) (*models.WatchlistEntry, error)
	RemoveFromWatchlistFn func(ctx context.Context, movieID int) error
	MoviesFn              func(ctx context.Context, q models.MovieQuery) ([]models.Movie, error)
	MovieFn               func(ctx context.Context, movieID int) (*models.Movie, error)

	mu      sync.Mutex
	calls   map[string]int
	queries []models.MovieQuery
}

func (m *MockBackend) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

// Calls returns how many times the named method ran.
func (m *MockBackend) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// Queries returns every [models.MovieQuery] passed to Movies, in call order.
func (m *MockBackend) Queries() []models.MovieQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.MovieQuery(nil), m.queries...)
}

func (m *MockBackend) Token(ctx context.Context, email, password string) (*oauth2.Token, error) {
	m.record("Token")
	if m.TokenFn != nil {
		return m.TokenFn(ctx, email, password)
	}
	return &oauth2.Token{AccessToken: "mock-token", TokenType: "bearer"}, nil
}

func (m *MockBackend) Register(ctx context.Context, r shared.Registration) (*models.User, error) {
	m.record("Register")
	if m.RegisterFn != nil {
		return m.RegisterFn(ctx, r)
	}
	return &models.User{ID: 1, Username: r.Username, Email: r.Email}, nil
}

func (m *MockBackend) Me(ctx context.Context) (*models.User, error) {
	m.record("Me")
	if m.MeFn != nil {
		return m.MeFn(ctx)
	}
	return &models.User{ID: 1, Username: "testuser", Email: "test@example.com"}, nil
}

func (m *MockBackend) Recommendations(ctx context.Context) ([]models.Movie, error) {
	m.record("Recommendations")
	if m.RecommendationsFn != nil {
		return m.RecommendationsFn(ctx)
	}
	return []models.Movie{}, nil
}

func (m *MockBackend) Ratings(ctx context.Context) ([]models.Rating, error) {
	m.record("Ratings")
	if m.RatingsFn != nil {
		return m.RatingsFn(ctx)
	}
	return []models.Rating{}, nil
}

func (m *MockBackend) Rate(ctx context.Context, rating models.Rating, userID int) (*models.Rating, error) {
	m.record("Rate")
	if m.RateFn != nil {
		return m.RateFn(ctx, rating, userID)
	}
	return &rating, nil
}

func (m *MockBackend) Watchlist(ctx context.Context) ([]models.WatchlistEntry, error) {
	m.record("Watchlist")
	if m.WatchlistFn != nil {
		return m.WatchlistFn(ctx)
	}
	return []models.WatchlistEntry{}, nil
}

func (m *MockBackend) AddToWatchlist(ctx context.Context, movieID int) (*models.WatchlistEntry, error) {
	m.record("AddToWatchlist")
	if m.AddToWatchlistFn != nil {
		return m.AddToWatchlistFn(ctx, movieID)
	}
	return &models.WatchlistEntry{ID: movieID, MovieID: movieID, Movie: models.Movie{ID: movieID}}, nil
}

func (m *MockBackend) RemoveFromWatchlist(ctx context.Context, movieID int) error {
	m.record("RemoveFromWatchlist")
	if m.RemoveFromWatchlistFn != nil {
		return m.RemoveFromWatchlistFn(ctx, movieID)
	}
	return nil
}

func (m *MockBackend) Movies(ctx context.Context, q models.MovieQuery) ([]models.Movie, error) {
	m.record("Movies")
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()
	if m.MoviesFn != nil {
		return m.MoviesFn(ctx, q)
	}
	return []models.Movie{}, nil
}

func (m *MockBackend) Movie(ctx context.Context, movieID int) (*models.Movie, error) {
	m.record("Movie")
	if m.MovieFn != nil {
		return m.MovieFn(ctx, movieID)
	}
	return &models.Movie{ID: movieID}, nil
}

// MemoryTokenStore is an in-memory token store with optional injected failures.
type MemoryTokenStore struct {
	mu      sync.Mutex
	token   string
	SaveErr error
	LoadErr error
}

// NewMemoryTokenStore creates a store pre-seeded with token (may be empty).
func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

func (s *MemoryTokenStore) Load(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return "", s.LoadErr
	}
	return s.token, nil
}

func (s *MemoryTokenStore) Save(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.token = token
	return nil
}

func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// Stored returns the persisted token.
func (s *MemoryTokenStore) Stored() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
