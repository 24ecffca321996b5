package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/marquee/internal/formatter"
	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/repositories"
	"github.com/urfave/cli/v3"
)

// CacheList prints movies cached from earlier backend responses. It needs no session.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	cached, err := r.movies.List(ctx, repositories.ListCriteria{
		Title: cmd.String("title"),
		Genre: cmd.String("genre"),
		Limit: int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}
	total, err := r.movies.Count(ctx)
	if err != nil {
		return err
	}

	movies := make([]models.Movie, len(cached))
	for i, c := range cached {
		movies[i] = c.Movie
	}

	r.logger.Debug("listing cached movies", "shown", len(movies), "total", total)
	title := fmt.Sprintf("Cached Movies (%d of %d)", len(movies), total)
	return r.render(cmd, formatter.NewListing(title, movies, nil, nil))
}
