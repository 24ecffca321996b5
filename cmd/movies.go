package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/desertthunder/marquee/internal/formatter"
	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/shared"
	"github.com/desertthunder/marquee/internal/tasks"
	"github.com/urfave/cli/v3"
)

// render prints a listing honoring --json, --pretty, --format and --output.
func (r *Runner) render(cmd *cli.Command, l formatter.Listing) error {
	f, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		f = formatter.FormatJSON
	}

	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteFile(path, f, l); err != nil {
			return err
		}
		r.logger.Info("listing exported", "path", path, "movies", len(l.Rows))
		return r.writePlain("✓ Wrote %d movies to %s\n", len(l.Rows), path)
	}

	return formatter.Write(r.output, f, l, cmd.Bool("pretty"))
}

// annotations loads ratings and the watchlist so listings can mark rated and saved movies.
// Neither is essential, so failures other than authorization are logged and skipped.
func (r *Runner) annotations(ctx context.Context) (models.Ratings, map[int]struct{}, error) {
	ratings, err := r.engine.FetchUserRatings(ctx)
	if shared.IsAuthError(err) {
		return nil, nil, err
	} else if err != nil {
		r.logger.Warn("failed to load ratings", "err", err)
	}

	if _, err := r.engine.FetchWatchlist(ctx); shared.IsAuthError(err) {
		return nil, nil, err
	} else if err != nil {
		r.logger.Warn("failed to load watchlist", "err", err)
	}

	return ratings, r.engine.Model().WatchlistIDs, nil
}

func (r *Runner) renderView(ctx context.Context, cmd *cli.Command, view tasks.View) error {
	ratings, saved, err := r.annotations(ctx)
	if err != nil {
		return err
	}
	return r.render(cmd, formatter.NewListing(view.Title, view.Movies, ratings, saved))
}

// MoviesRecommended prints the recommended view.
func (r *Runner) MoviesRecommended(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	if _, err := r.engine.FetchRecommendations(ctx); err != nil {
		return fmt.Errorf("failed to load recommendations: %w", err)
	}
	return r.renderView(ctx, cmd, r.engine.View())
}

func pageQuery(cmd *cli.Command, q models.MovieQuery) models.MovieQuery {
	q.Limit = cmd.Int("limit")
	q.Skip = cmd.Int("skip")
	return q
}

// MoviesSearch prints catalog movies whose title contains the query.
func (r *Runner) MoviesSearch(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	view, err := r.engine.ApplyQuery(ctx, pageQuery(cmd, models.MovieQuery{Search: query}))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return r.renderView(ctx, cmd, view)
}

// MoviesGenre prints catalog movies tagged with the genre.
func (r *Runner) MoviesGenre(ctx context.Context, cmd *cli.Command) error {
	genre := strings.TrimSpace(cmd.StringArg("genre"))
	if genre == "" {
		return fmt.Errorf("%w: genre", shared.ErrMissingArgument)
	}
	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	view, err := r.engine.ApplyQuery(ctx, pageQuery(cmd, models.MovieQuery{Genre: genre}))
	if err != nil {
		return fmt.Errorf("genre lookup failed: %w", err)
	}
	return r.renderView(ctx, cmd, view)
}

// MoviesShow prints one movie with the user's rating and watchlist status.
func (r *Runner) MoviesShow(ctx context.Context, cmd *cli.Command) error {
	movieID, err := parseMovieID(cmd.StringArg("movie_id"))
	if err != nil {
		return err
	}
	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	movie, cached, err := r.engine.FetchMovie(ctx, movieID)
	if err != nil {
		return fmt.Errorf("failed to load movie %d: %w", movieID, err)
	}
	if cached {
		r.logger.Warn("server unreachable, showing cached copy", "movie_id", movieID)
	}

	ratings, saved, err := r.annotations(ctx)
	if err != nil {
		return err
	}
	score, rated := ratings[movieID]
	_, inWatchlist := saved[movieID]

	if cmd.Bool("json") {
		return r.writeJSON(struct {
			models.Movie
			Rating      *float64 `json:"rating,omitempty"`
			InWatchlist bool     `json:"in_watchlist"`
			Cached      bool     `json:"cached"`
		}{*movie, ratingPtr(score, rated), inWatchlist, cached}, true)
	}

	r.writePlain("%s (%d)\n", movie.Title, movie.ReleaseYear)
	if genres := movie.GenreList(); len(genres) > 0 {
		r.writePlain("Genres: %s\n", strings.Join(genres, ", "))
	}
	if movie.Description != "" {
		r.writePlain("%s\n", movie.Description)
	}
	if rated {
		r.writePlain("Your rating: %s\n", formatter.FormatScore(score, true))
	}
	if inWatchlist {
		r.writePlain("✓ On your watchlist\n")
	}
	if cached {
		r.writePlain("(cached copy, server unreachable)\n")
	}
	return nil
}

func ratingPtr(score float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &score
}

// MoviesRatings prints every rated movie by id. Titles come from the local cache when known.
func (r *Runner) MoviesRatings(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	ratings, err := r.engine.FetchUserRatings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ratings: %w", err)
	}

	ids := slices.Sorted(maps.Keys(ratings))
	movies := make([]models.Movie, 0, len(ids))
	for _, id := range ids {
		cached, err := r.movies.Get(ctx, id)
		if err != nil {
			r.logger.Debug("movie not cached", "movie_id", id)
			movies = append(movies, models.Movie{ID: id})
			continue
		}
		movies = append(movies, cached.Movie)
	}

	return r.render(cmd, formatter.NewListing("Your Ratings", movies, ratings, r.engine.Model().WatchlistIDs))
}

func parseMovieID(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, fmt.Errorf("%w: movie_id", shared.ErrMissingArgument)
	}
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: movie_id must be a positive integer, got %q", shared.ErrInvalidArgument, raw)
	}
	return id, nil
}

// Rate records a score for a movie. Recommendations are refreshed before the command returns.
func (r *Runner) Rate(ctx context.Context, cmd *cli.Command) error {
	movieID, err := parseMovieID(cmd.StringArg("movie_id"))
	if err != nil {
		return err
	}
	raw := strings.TrimSpace(cmd.StringArg("score"))
	if raw == "" {
		return fmt.Errorf("%w: score", shared.ErrMissingArgument)
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%w: score must be a number, got %q", shared.ErrInvalidScore, raw)
	}

	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	if err := r.engine.Rate(ctx, movieID, score); err != nil {
		return fmt.Errorf("failed to rate movie %d: %w", movieID, err)
	}
	r.engine.Wait()

	return r.writePlain("✓ Rated movie %d: %s\n", movieID, formatter.FormatScore(score, true))
}
