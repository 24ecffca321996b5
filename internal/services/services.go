// package services defines interface Backend for interacting with the movie recommendation API
package services

import (
	"context"

	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/shared"
	"golang.org/x/oauth2"
)

// Backend is the movie recommendation HTTP contract consumed by the session and the engine.
type Backend interface {
	// Token exchanges an email and password for a bearer token.
	Token(ctx context.Context, email, password string) (*oauth2.Token, error)

	// Register creates a new account.
	Register(ctx context.Context, r shared.Registration) (*models.User, error)

	// Me retrieves the profile for the current token.
	Me(ctx context.Context) (*models.User, error)

	// Recommendations returns movies in server-determined order.
	Recommendations(ctx context.Context) ([]models.Movie, error)

	// Ratings returns the user's ratings in server order.
	Ratings(ctx context.Context) ([]models.Rating, error)

	// Rate creates or replaces a rating.
	Rate(ctx context.Context, rating models.Rating, userID int) (*models.Rating, error)

	Watchlist(ctx context.Context) ([]models.WatchlistEntry, error)
	AddToWatchlist(ctx context.Context, movieID int) (*models.WatchlistEntry, error)
	RemoveFromWatchlist(ctx context.Context, movieID int) error

	// Movies filters the catalog by at most one of search or genre.
	Movies(ctx context.Context, q models.MovieQuery) ([]models.Movie, error)

	// Movie retrieves one movie by id.
	Movie(ctx context.Context, movieID int) (*models.Movie, error)
}

var _ Backend = (*MovieAPI)(nil)
