package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/shared"
)

func (e *Engine) requireSession(movieID int) (string, error) {
	token, ok := e.session.Token()
	if !ok {
		return "", shared.ErrNotAuthenticated
	}
	if movieID <= 0 {
		return "", fmt.Errorf("%w: movie id", shared.ErrMissingArgument)
	}
	return token, nil
}

// Rate records score for movieID locally before the backend write completes.
//
// A failed write leaves the local score in place. On success recommendations are refreshed in the
// background.
func (e *Engine) Rate(ctx context.Context, movieID int, score float64) error {
	token, err := e.requireSession(movieID)
	if err != nil {
		return err
	}
	if err := e.scale.Validate(score); err != nil {
		return err
	}

	unlock := e.rateKeys.Lock(movieID)
	defer unlock()

	epoch := e.currentEpoch()
	userID := 0
	if user, ok := e.session.User(); ok {
		userID = user.ID
	}

	_, err = mutation[*models.Rating]{
		apply: func() func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.epoch == epoch {
				e.ratings[movieID] = score
			}
			return nil
		},
		persist: func(ctx context.Context) (*models.Rating, error) {
			return e.api.Rate(ctx, models.Rating{MovieID: movieID, Score: score}, userID)
		},
	}.run(ctx)
	if err != nil {
		e.fail(ctx, token, PhaseMutation, err)
		return err
	}

	e.logger.Debug("rated", "movie_id", movieID, "score", score)
	e.succeed()
	e.emit(ratedUpdate(movieID, score))

	e.goBackground(func(ctx context.Context) {
		if err := e.Refresh(ctx); err != nil && !errors.Is(err, ErrStale) {
			e.logger.Debug("background refresh failed", "err", err)
		}
	})
	return nil
}

// AddToWatchlist saves movieID once the backend confirms, then updates the list and id set together.
func (e *Engine) AddToWatchlist(ctx context.Context, movieID int) (*models.WatchlistEntry, error) {
	token, err := e.requireSession(movieID)
	if err != nil {
		return nil, err
	}

	unlock := e.watchKeys.Lock(movieID)
	defer unlock()

	epoch := e.currentEpoch()
	entry, err := mutation[*models.WatchlistEntry]{
		persist: func(ctx context.Context) (*models.WatchlistEntry, error) {
			return e.api.AddToWatchlist(ctx, movieID)
		},
		commit: func(entry *models.WatchlistEntry) {
			if entry.MovieID == 0 {
				entry.MovieID = movieID
			}
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.epoch == epoch {
				e.putEntry(*entry)
			}
		},
	}.run(ctx)
	if err != nil {
		e.fail(ctx, token, PhaseMutation, err)
		return nil, err
	}

	e.succeed()
	e.cacheMovies(ctx, []models.Movie{entry.Movie})
	e.emit(watchlistUpdate(movieID, true))
	return entry, nil
}

// RemoveFromWatchlist drops movieID locally, then deletes it on the backend.
//
// The entry is restored if the delete fails for any reason other than the movie already being gone
// or the session ending.
func (e *Engine) RemoveFromWatchlist(ctx context.Context, movieID int) error {
	token, err := e.requireSession(movieID)
	if err != nil {
		return err
	}

	unlock := e.watchKeys.Lock(movieID)
	defer unlock()

	epoch := e.currentEpoch()
	_, err = mutation[struct{}]{
		apply: func() func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.epoch != epoch {
				return nil
			}
			idx, removed, ok := e.dropEntry(movieID)
			if !ok {
				return nil
			}
			return func() {
				e.mu.Lock()
				defer e.mu.Unlock()
				if e.epoch == epoch {
					e.restoreEntry(idx, removed)
				}
			}
		},
		persist: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.api.RemoveFromWatchlist(ctx, movieID)
		},
		rollback: func(err error) bool {
			return !errors.Is(err, shared.ErrNotFound) && !shared.IsAuthError(err)
		},
	}.run(ctx)

	if errors.Is(err, shared.ErrNotFound) {
		e.logger.Debug("movie already removed from watchlist", "movie_id", movieID)
		e.succeed()
		e.emit(watchlistUpdate(movieID, false))
		return nil
	}
	if err != nil {
		e.fail(ctx, token, PhaseMutation, err)
		return err
	}

	e.succeed()
	e.emit(watchlistUpdate(movieID, false))
	return nil
}

// ToggleWatchlist adds movieID when absent and removes it otherwise. It reports whether the movie is
// now on the watchlist.
func (e *Engine) ToggleWatchlist(ctx context.Context, movieID int) (bool, error) {
	e.mu.Lock()
	_, present := e.watchlistIDs[movieID]
	e.mu.Unlock()

	if present {
		if err := e.RemoveFromWatchlist(ctx, movieID); err != nil {
			return true, err
		}
		return false, nil
	}
	if _, err := e.AddToWatchlist(ctx, movieID); err != nil {
		return false, err
	}
	return true, nil
}

// putEntry replaces the entry for the same movie or appends it. Callers hold e.mu.
func (e *Engine) putEntry(entry models.WatchlistEntry) {
	for i, existing := range e.watchlist {
		if existing.MovieID == entry.MovieID {
			e.watchlist[i] = entry
			e.watchlistIDs[entry.MovieID] = struct{}{}
			return
		}
	}
	e.watchlist = append(e.watchlist, entry)
	e.watchlistIDs[entry.MovieID] = struct{}{}
}

// dropEntry removes movieID from the list and id set. Callers hold e.mu.
func (e *Engine) dropEntry(movieID int) (int, models.WatchlistEntry, bool) {
	for i, entry := range e.watchlist {
		if entry.MovieID == movieID {
			e.watchlist = append(e.watchlist[:i:i], e.watchlist[i+1:]...)
			delete(e.watchlistIDs, movieID)
			return i, entry, true
		}
	}
	delete(e.watchlistIDs, movieID)
	return 0, models.WatchlistEntry{}, false
}

// restoreEntry puts entry back at idx unless the movie was re-added meanwhile. Callers hold e.mu.
func (e *Engine) restoreEntry(idx int, entry models.WatchlistEntry) {
	if _, ok := e.watchlistIDs[entry.MovieID]; ok {
		return
	}
	idx = min(idx, len(e.watchlist))
	e.watchlist = append(e.watchlist[:idx:idx], append([]models.WatchlistEntry{entry}, e.watchlist[idx:]...)...)
	e.watchlistIDs[entry.MovieID] = struct{}{}
}
