package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/marquee/internal/formatter"
	"github.com/desertthunder/marquee/internal/tasks"
	"github.com/urfave/cli/v3"
)

// WatchlistList prints saved movies in the order they were added.
func (r *Runner) WatchlistList(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	entries, err := r.engine.FetchWatchlist(ctx)
	if err != nil {
		return fmt.Errorf("failed to load watchlist: %w", err)
	}
	ratings, err := r.engine.FetchUserRatings(ctx)
	if err != nil && !errors.Is(err, tasks.ErrStale) {
		r.logger.Warn("failed to load ratings", "err", err)
	}

	return r.render(cmd, formatter.WatchlistListing(entries, ratings))
}

// WatchlistAdd saves a movie once the backend confirms it.
func (r *Runner) WatchlistAdd(ctx context.Context, cmd *cli.Command) error {
	movieID, err := parseMovieID(cmd.StringArg("movie_id"))
	if err != nil {
		return err
	}
	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	entry, err := r.engine.AddToWatchlist(ctx, movieID)
	if err != nil {
		return fmt.Errorf("failed to add movie %d: %w", movieID, err)
	}

	title := entry.Movie.Title
	if title == "" {
		title = fmt.Sprintf("movie %d", movieID)
	}
	return r.writePlain("✓ Added %s to your watchlist\n", title)
}

// WatchlistRemove removes a movie. Removing a movie that is not saved succeeds.
func (r *Runner) WatchlistRemove(ctx context.Context, cmd *cli.Command) error {
	movieID, err := parseMovieID(cmd.StringArg("movie_id"))
	if err != nil {
		return err
	}
	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	if err := r.engine.RemoveFromWatchlist(ctx, movieID); err != nil {
		return fmt.Errorf("failed to remove movie %d: %w", movieID, err)
	}
	return r.writePlain("✓ Removed movie %d from your watchlist\n", movieID)
}
