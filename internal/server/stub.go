package server

import (
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/shared"
)

const (
	defaultMovieLimit   = 20
	maxMovieLimit       = 100
	recommendationCount = 10
	minScore            = 0.5
	maxScore            = 5.0
)

// Seed account available on every stub started with seed data.
const (
	SeedUsername = "testuser"
	SeedEmail    = "test@example.com"
	SeedPassword = "password"
)

// StubOpts configures a [Stub].
type StubOpts struct {
	Secret   string
	TokenTTL time.Duration
	Logger   *log.Logger
	Now      func() time.Time
	// Empty starts without the seed catalog, account and ratings.
	Empty bool
}

type account struct {
	models.User
	password string
}

type ratingRecord struct {
	ID      int     `json:"id"`
	UserID  int     `json:"user_id"`
	MovieID int     `json:"movie_id"`
	Score   float64 `json:"score"`
}

// Stub is an in-memory implementation of the movie backend's HTTP contract.
//
// Recommendations use the backend's fallback rule only: the first ten movies the user has not rated.
type Stub struct {
	issuer *TokenIssuer
	logger *log.Logger
	now    func() time.Time
	router *BasicRouter

	mu           sync.RWMutex
	movies       []models.Movie
	users        map[int]*account
	ratings      map[int][]ratingRecord
	watchlist    map[int][]models.WatchlistEntry
	nextUserID   int
	nextRatingID int
	nextEntryID  int
	requests     []string
}

// NewStub creates a [Stub] with its routes registered.
func NewStub(opts StubOpts) *Stub {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	secret := opts.Secret
	if secret == "" {
		secret = shared.GenerateID()
	}

	s := &Stub{
		issuer:       NewTokenIssuer(secret, opts.TokenTTL, now),
		logger:       shared.WithLogger(logger, "component", "stub"),
		now:          now,
		users:        make(map[int]*account),
		ratings:      make(map[int][]ratingRecord),
		watchlist:    make(map[int][]models.WatchlistEntry),
		nextUserID:   1,
		nextRatingID: 1,
		nextEntryID:  1,
	}
	if !opts.Empty {
		s.seed()
	}
	s.routes()
	return s
}

func (s *Stub) routes() {
	r := NewBasicRouter()
	r.Use(Recoverer(s.logger), RequestLogger(s.logger), s.record)

	auth := RequireBearer(s.issuer, s.userExists)

	r.HandleFunc(http.MethodGet, "/{$}", s.handleRoot)
	r.HandleFunc(http.MethodPost, "/token/{$}", s.handleToken)
	r.HandleFunc(http.MethodPost, "/register/{$}", s.handleRegister)
	r.HandleFunc(http.MethodPost, "/users/{$}", s.handleRegister)
	r.HandleFunc(http.MethodGet, "/users/me", s.handleMe, auth)
	r.HandleFunc(http.MethodGet, "/users/me/ratings", s.handleRatings, auth)
	r.HandleFunc(http.MethodGet, "/users/me/watchlist", s.handleWatchlist, auth)
	r.HandleFunc(http.MethodGet, "/recommendations/{$}", s.handleRecommendations, auth)
	r.HandleFunc(http.MethodGet, "/recommendations/{user_id}", s.handleLegacyRecommendations)
	r.HandleFunc(http.MethodPost, "/ratings/{$}", s.handleRate, auth)
	r.HandleFunc(http.MethodPost, "/watchlist/{$}", s.handleAddToWatchlist, auth)
	r.HandleFunc(http.MethodDelete, "/watchlist/{movie_id}", s.handleRemoveFromWatchlist, auth)
	r.HandleFunc(http.MethodGet, "/movies/{$}", s.handleMovies)
	r.HandleFunc(http.MethodGet, "/movies/{movie_id}", s.handleMovie)

	s.router = r
}

func (s *Stub) seed() {
	s.movies = []models.Movie{
		{ID: 1, Title: "Inception", Description: "A thief who steals corporate secrets through use of dream-sharing technology...", ReleaseYear: 2010, Genres: "Sci-Fi,Thriller,Action"},
		{ID: 2, Title: "The Shawshank Redemption", Description: "Two imprisoned men bond over a number of years, finding solace...", ReleaseYear: 1994, Genres: "Drama"},
		{ID: 3, Title: "The Dark Knight", Description: "When the menace known as the Joker emerges...", ReleaseYear: 2008, Genres: "Action,Crime,Drama"},
		{ID: 4, Title: "Pulp Fiction", Description: "The lives of two mob hitmen, a boxer, a gangster's wife...", ReleaseYear: 1994, Genres: "Crime,Drama"},
		{ID: 5, Title: "Forrest Gump", Description: "The presidencies of Kennedy and Johnson, the Vietnam War...", ReleaseYear: 1994, Genres: "Drama,Romance"},
		{ID: 6, Title: "The Matrix", Description: "A computer hacker learns from mysterious rebels about the true nature of his reality...", ReleaseYear: 1999, Genres: "Action,Sci-Fi"},
		{ID: 7, Title: "Goodfellas", Description: "The story of Henry Hill and his life in the mob...", ReleaseYear: 1990, Genres: "Biography,Crime,Drama"},
		{ID: 8, Title: "Interstellar", Description: "A team of explorers travel through a wormhole in space...", ReleaseYear: 2014, Genres: "Adventure,Drama,Sci-Fi"},
		{ID: 9, Title: "Parasite", Description: "Greed and class discrimination threaten the newly formed symbiotic relationship...", ReleaseYear: 2019, Genres: "Comedy,Drama,Thriller"},
		{ID: 10, Title: "Spirited Away", Description: "During her family's move to the suburbs, a 10-year-old girl wanders into a world...", ReleaseYear: 2001, Genres: "Animation,Adventure,Family"},
		{ID: 11, Title: "The Grand Budapest Hotel", Description: "The adventures of Gustave H, a legendary concierge...", ReleaseYear: 2014, Genres: "Adventure,Comedy,Crime"},
		{ID: 12, Title: "Mad Max: Fury Road", Description: "In a post-apocalyptic wasteland, a woman rebels...", ReleaseYear: 2015, Genres: "Action,Adventure,Sci-Fi"},
		{ID: 13, Title: "Blade Runner 2049", Description: "Young Blade Runner K's discovery of a long-buried secret...", ReleaseYear: 2017, Genres: "Action,Drama,Mystery"},
		{ID: 14, Title: "Dune", Description: "Feature adaptation of Frank Herbert's science fiction novel...", ReleaseYear: 2021, Genres: "Action,Adventure,Drama"},
		{ID: 15, Title: "Oppenheimer", Description: "The story of American scientist J. Robert Oppenheimer...", ReleaseYear: 2023, Genres: "Biography,Drama,History"},
	}

	user := s.addUser(SeedUsername, SeedEmail, SeedPassword)
	for _, r := range []models.Rating{{MovieID: 1, Score: 5}, {MovieID: 3, Score: 5}, {MovieID: 6, Score: 4.5}, {MovieID: 14, Score: 4}} {
		s.upsertRating(user.ID, r.MovieID, r.Score)
	}
}

// ServeHTTP implements [http.Handler].
func (s *Stub) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Issuer exposes token signing and revocation.
func (s *Stub) Issuer() *TokenIssuer { return s.issuer }

// Requests returns every request seen so far as "METHOD /path?query".
func (s *Stub) Requests() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.requests)
}

// Count returns how many recorded requests start with prefix.
func (s *Stub) Count(prefix string) int {
	n := 0
	for _, req := range s.Requests() {
		if strings.HasPrefix(req, prefix) {
			n++
		}
	}
	return n
}

// Rating returns the stored score for a user and movie.
func (s *Stub) Rating(userID, movieID int) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.ratings[userID] {
		if r.MovieID == movieID {
			return r.Score, true
		}
	}
	return 0, false
}

// AddMovie appends a movie to the catalog and returns it with its assigned id.
func (s *Stub) AddMovie(m models.Movie) models.Movie {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = len(s.movies) + 1
	s.movies = append(s.movies, m)
	return m
}

func (s *Stub) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.RequestURI())
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Stub) userExists(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[id]
	return ok
}

// addUser stores a new account. Callers must not hold s.mu.
func (s *Stub) addUser(username, email, password string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &account{User: models.User{ID: s.nextUserID, Username: username, Email: email}, password: password}
	s.users[u.ID] = u
	s.nextUserID++
	return u.User
}

func (s *Stub) upsertRating(userID, movieID int, score float64) ratingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.ratings[userID] {
		if r.MovieID == movieID {
			s.ratings[userID][i].Score = score
			return s.ratings[userID][i]
		}
	}
	r := ratingRecord{ID: s.nextRatingID, UserID: userID, MovieID: movieID, Score: score}
	s.nextRatingID++
	s.ratings[userID] = append(s.ratings[userID], r)
	return r
}

func (s *Stub) movie(id int) (models.Movie, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.movies {
		if m.ID == id {
			return m, true
		}
	}
	return models.Movie{}, false
}

func (s *Stub) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Movie Recommendation API"})
}

func (s *Stub) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	email, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	var issues []validationIssue
	if email == "" {
		issues = append(issues, missing("username"))
	}
	if password == "" {
		issues = append(issues, missing("password"))
	}
	if len(issues) > 0 {
		writeInvalid(w, issues...)
		return
	}

	s.mu.RLock()
	var found *account
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			found = u
			break
		}
	}
	s.mu.RUnlock()

	if found == nil || found.password != password {
		unauthorized(w, "Incorrect email or password")
		return
	}

	token, err := s.issuer.Issue(found.ID)
	if err != nil {
		s.logger.Error("failed to issue token", "err", err)
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int(s.issuer.ttl.Seconds()),
	})
}

func (s *Stub) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username *string `json:"username"`
		Email    *string `json:"email"`
		Password *string `json:"password"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	var issues []validationIssue
	for field, v := range map[string]*string{"username": body.Username, "email": body.Email, "password": body.Password} {
		if v == nil || *v == "" {
			issues = append(issues, missing(field))
		}
	}
	if len(issues) > 0 {
		slices.SortFunc(issues, func(a, b validationIssue) int { return strings.Compare(a.Loc[1], b.Loc[1]) })
		writeInvalid(w, issues...)
		return
	}

	s.mu.RLock()
	taken := false
	for _, u := range s.users {
		if strings.EqualFold(u.Email, *body.Email) {
			taken = true
			break
		}
	}
	s.mu.RUnlock()
	if taken {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}

	user := s.addUser(*body.Username, *body.Email, *body.Password)
	s.logger.Info("registered user", "id", user.ID, "email", user.Email)
	writeJSON(w, http.StatusOK, user)
}

func (s *Stub) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	u := s.users[UserIDFromContext(r.Context())]
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, u.User)
}

func (s *Stub) recommendationsFor(userID int) []models.Movie {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rated := make(map[int]struct{}, len(s.ratings[userID]))
	for _, r := range s.ratings[userID] {
		rated[r.MovieID] = struct{}{}
	}

	out := []models.Movie{}
	for _, m := range s.movies {
		if _, ok := rated[m.ID]; ok {
			continue
		}
		out = append(out, m)
		if len(out) == recommendationCount {
			break
		}
	}
	return out
}

func (s *Stub) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.recommendationsFor(UserIDFromContext(r.Context())))
}

func (s *Stub) handleLegacyRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(r.PathValue("user_id"))
	if err != nil {
		writeInvalid(w, validationIssue{Loc: []string{"path", "user_id"}, Msg: "Input should be a valid integer", Type: "int_parsing"})
		return
	}
	if !s.userExists(userID) {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, s.recommendationsFor(userID))
}

func (s *Stub) handleRatings(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := slices.Clone(s.ratings[UserIDFromContext(r.Context())])
	s.mu.RUnlock()
	if out == nil {
		out = []ratingRecord{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Stub) handleRate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MovieID *int     `json:"movie_id"`
		Score   *float64 `json:"score"`
		UserID  *int     `json:"user_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	var issues []validationIssue
	if body.MovieID == nil {
		issues = append(issues, missing("movie_id"))
	}
	if body.Score == nil {
		issues = append(issues, missing("score"))
	} else if *body.Score < minScore || *body.Score > maxScore {
		issues = append(issues, validationIssue{Loc: []string{"body", "score"}, Msg: "Input should be between 0.5 and 5", Type: "range"})
	}
	if len(issues) > 0 {
		writeInvalid(w, issues...)
		return
	}

	userID := UserIDFromContext(r.Context())
	if body.UserID != nil && *body.UserID != userID {
		writeDetail(w, http.StatusForbidden, "Cannot rate on behalf of another user")
		return
	}
	if _, ok := s.movie(*body.MovieID); !ok {
		writeDetail(w, http.StatusNotFound, "Movie not found")
		return
	}

	writeJSON(w, http.StatusOK, s.upsertRating(userID, *body.MovieID, *body.Score))
}

func (s *Stub) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := slices.Clone(s.watchlist[UserIDFromContext(r.Context())])
	s.mu.RUnlock()
	if out == nil {
		out = []models.WatchlistEntry{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Stub) handleAddToWatchlist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MovieID *int `json:"movie_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.MovieID == nil {
		writeInvalid(w, missing("movie_id"))
		return
	}

	movie, ok := s.movie(*body.MovieID)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Movie not found")
		return
	}

	userID := UserIDFromContext(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.watchlist[userID] {
		if e.MovieID == movie.ID {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}

	entry := models.WatchlistEntry{ID: s.nextEntryID, MovieID: movie.ID, AddedAt: s.now().UTC(), Movie: movie}
	s.nextEntryID++
	s.watchlist[userID] = append(s.watchlist[userID], entry)
	writeJSON(w, http.StatusOK, entry)
}

func (s *Stub) handleRemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	movieID, err := strconv.Atoi(r.PathValue("movie_id"))
	if err != nil {
		writeInvalid(w, validationIssue{Loc: []string{"path", "movie_id"}, Msg: "Input should be a valid integer", Type: "int_parsing"})
		return
	}

	userID := UserIDFromContext(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.watchlist[userID]
	idx := slices.IndexFunc(entries, func(e models.WatchlistEntry) bool { return e.MovieID == movieID })
	if idx < 0 {
		writeDetail(w, http.StatusNotFound, "Movie not in watchlist")
		return
	}
	s.watchlist[userID] = slices.Delete(entries, idx, idx+1)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Stub) handleMovies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := strings.TrimSpace(q.Get("search"))
	genre := strings.TrimSpace(q.Get("genre"))
	if search != "" && genre != "" {
		writeDetail(w, http.StatusBadRequest, "search and genre cannot be combined")
		return
	}

	limit, err := queryInt(q.Get("limit"), defaultMovieLimit)
	if err != nil || limit < 1 {
		writeInvalid(w, validationIssue{Loc: []string{"query", "limit"}, Msg: "Input should be a positive integer", Type: "int_parsing"})
		return
	}
	limit = min(limit, maxMovieLimit)
	skip, err := queryInt(q.Get("skip"), 0)
	if err != nil || skip < 0 {
		writeInvalid(w, validationIssue{Loc: []string{"query", "skip"}, Msg: "Input should be a non-negative integer", Type: "int_parsing"})
		return
	}

	s.mu.RLock()
	matched := []models.Movie{}
	for _, m := range s.movies {
		switch {
		case search != "" && !strings.Contains(strings.ToLower(m.Title), strings.ToLower(search)):
			continue
		case genre != "" && !m.HasGenre(genre):
			continue
		}
		matched = append(matched, m)
	}
	s.mu.RUnlock()

	if skip >= len(matched) {
		writeJSON(w, http.StatusOK, []models.Movie{})
		return
	}
	matched = matched[skip:]
	writeJSON(w, http.StatusOK, matched[:min(limit, len(matched))])
}

func (s *Stub) handleMovie(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("movie_id"))
	if err != nil {
		writeInvalid(w, validationIssue{Loc: []string{"path", "movie_id"}, Msg: "Input should be a valid integer", Type: "int_parsing"})
		return
	}
	movie, ok := s.movie(id)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Movie not found")
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

func queryInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
