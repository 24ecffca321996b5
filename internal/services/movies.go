// Movie backend API implementation of [Backend]
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/shared"
	"golang.org/x/oauth2"
)

const (
	tokenPath           = "/token/"
	registerPath        = "/register/"
	profilePath         = "/users/me"
	recommendationsPath = "/recommendations/"
	userRatingsPath     = "/users/me/ratings"
	ratingsPath         = "/ratings/"
	userWatchlistPath   = "/users/me/watchlist"
	watchlistPath       = "/watchlist/"
	moviesPath          = "/movies/"
)

type ratingRequest struct {
	MovieID int     `json:"movie_id"`
	Score   float64 `json:"score"`
	UserID  int     `json:"user_id,omitempty"`
}

type watchlistRequest struct {
	MovieID int `json:"movie_id"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MovieAPI implements [Backend] over a [Gateway].
type MovieAPI struct {
	gw           *Gateway
	legacyUserID int
}

// NewMovieAPI creates a movie backend client.
//
// When legacyUserID is positive and no token is held, recommendations are read from the
// per-user legacy route instead of the authenticated one.
func NewMovieAPI(gw *Gateway, legacyUserID int) *MovieAPI {
	return &MovieAPI{gw: gw, legacyUserID: legacyUserID}
}

// Gateway returns the underlying [Gateway].
func (m *MovieAPI) Gateway() *Gateway { return m.gw }

// Token exchanges credentials for a bearer token with a form-encoded password grant.
func (m *MovieAPI) Token(ctx context.Context, email, password string) (*oauth2.Token, error) {
	if err := m.gw.Wait(ctx); err != nil {
		return nil, err
	}

	config := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  m.gw.BaseURL() + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.gw.HTTPClient())
	token, err := config.PasswordCredentialsToken(ctx, email, password)
	if err == nil {
		return token, nil
	}

	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) || retrieveErr.Response == nil {
		return nil, &shared.NetworkError{Op: "POST " + tokenPath, Err: err}
	}

	status := retrieveErr.Response.StatusCode
	detail := ParseDetail(retrieveErr.Body)
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, &shared.AuthError{Status: status, Detail: detail, Err: shared.ErrInvalidCredentials}
	default:
		return nil, fmt.Errorf("POST %s: %w", tokenPath, &shared.APIError{Status: status, Detail: detail})
	}
}

// Register creates an account. It does not log in.
func (m *MovieAPI) Register(ctx context.Context, r shared.Registration) (*models.User, error) {
	var user models.User
	err := m.gw.Do(ctx, Request{
		Method:    http.MethodPost,
		Path:      registerPath,
		JSON:      registerRequest{Username: r.Username, Email: r.Email, Password: r.Password},
		Anonymous: true,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Me retrieves the authenticated user's profile.
func (m *MovieAPI) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := m.gw.Do(ctx, Request{Method: http.MethodGet, Path: profilePath}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Recommendations retrieves recommended movies in server order.
func (m *MovieAPI) Recommendations(ctx context.Context) ([]models.Movie, error) {
	req := Request{Method: http.MethodGet, Path: recommendationsPath}
	if m.legacyUserID > 0 && !m.gw.HasToken() {
		req.Path = recommendationsPath + strconv.Itoa(m.legacyUserID)
		req.Anonymous = true
	}

	movies := []models.Movie{}
	if err := m.gw.Do(ctx, req, &movies); err != nil {
		return nil, err
	}
	return movies, nil
}

// Ratings retrieves every rating the user has submitted.
func (m *MovieAPI) Ratings(ctx context.Context) ([]models.Rating, error) {
	ratings := []models.Rating{}
	if err := m.gw.Do(ctx, Request{Method: http.MethodGet, Path: userRatingsPath}, &ratings); err != nil {
		return nil, err
	}
	return ratings, nil
}

// Rate creates or replaces the user's rating for a movie. userID is sent only when positive.
func (m *MovieAPI) Rate(ctx context.Context, rating models.Rating, userID int) (*models.Rating, error) {
	var created models.Rating
	err := m.gw.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   ratingsPath,
		JSON:   ratingRequest{MovieID: rating.MovieID, Score: rating.Score, UserID: userID},
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Watchlist retrieves the user's watchlist with embedded movies.
func (m *MovieAPI) Watchlist(ctx context.Context) ([]models.WatchlistEntry, error) {
	entries := []models.WatchlistEntry{}
	if err := m.gw.Do(ctx, Request{Method: http.MethodGet, Path: userWatchlistPath}, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AddToWatchlist saves a movie and returns the created entry.
func (m *MovieAPI) AddToWatchlist(ctx context.Context, movieID int) (*models.WatchlistEntry, error) {
	var entry models.WatchlistEntry
	err := m.gw.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   watchlistPath,
		JSON:   watchlistRequest{MovieID: movieID},
	}, &entry)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RemoveFromWatchlist deletes a movie from the watchlist.
func (m *MovieAPI) RemoveFromWatchlist(ctx context.Context, movieID int) error {
	return m.gw.Do(ctx, Request{
		Method: http.MethodDelete,
		Path:   watchlistPath + strconv.Itoa(movieID),
	}, nil)
}

// Movies looks up the catalog by title search or genre.
func (m *MovieAPI) Movies(ctx context.Context, q models.MovieQuery) ([]models.Movie, error) {
	query := url.Values{}
	if q.Search != "" {
		query.Set("search", q.Search)
	}
	if q.Genre != "" {
		query.Set("genre", q.Genre)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Skip > 0 {
		query.Set("skip", strconv.Itoa(q.Skip))
	}

	movies := []models.Movie{}
	if err := m.gw.Do(ctx, Request{Method: http.MethodGet, Path: moviesPath, Query: query}, &movies); err != nil {
		return nil, err
	}
	return movies, nil
}

// Movie retrieves a single catalog entry. An unknown id yields [shared.ErrNotFound].
func (m *MovieAPI) Movie(ctx context.Context, movieID int) (*models.Movie, error) {
	var movie models.Movie
	if err := m.gw.Do(ctx, Request{Method: http.MethodGet, Path: moviesPath + strconv.Itoa(movieID)}, &movie); err != nil {
		return nil, err
	}
	return &movie, nil
}
