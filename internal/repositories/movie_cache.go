package repositories

import (
	"context"
	"fmt"

	"github.com/desertthunder/marquee/internal/models"
)

// MovieCacheAdapter implements tasks.MovieCacher using MovieRepository.
//
// Movies seen in watchlist entries and recommendation, search or genre responses are upserted,
// so the latest server projection always wins.
type MovieCacheAdapter struct {
	repo *MovieRepository
}

// NewMovieCacheAdapter creates a new MovieCacheAdapter with the given repository
func NewMovieCacheAdapter(repo *MovieRepository) *MovieCacheAdapter {
	return &MovieCacheAdapter{repo: repo}
}

// CacheMovies upserts every movie with a usable id and title.
func (a *MovieCacheAdapter) CacheMovies(ctx context.Context, movies []models.Movie) error {
	if err := a.repo.UpsertAll(ctx, movies); err != nil {
		return fmt.Errorf("failed to cache movies: %w", err)
	}
	return nil
}

// LookupMovie returns the cached copy of a movie.
func (a *MovieCacheAdapter) LookupMovie(ctx context.Context, movieID int) (*models.Movie, error) {
	cached, err := a.repo.Get(ctx, movieID)
	if err != nil {
		return nil, err
	}
	return &cached.Movie, nil
}
