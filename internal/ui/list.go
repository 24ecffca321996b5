package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/marquee/internal/formatter"
	"github.com/desertthunder/marquee/internal/models"
)

var _ list.Item = movieItem{}

// movieItem wraps [models.Movie] with the user's rating and watchlist state to implement [list.Item].
type movieItem struct {
	movie models.Movie
	score float64
	rated bool
	saved bool
}

func newMovieItems(movies []models.Movie, ratings models.Ratings, saved map[int]struct{}) []list.Item {
	items := make([]list.Item, len(movies))
	for i, m := range movies {
		item := movieItem{movie: m}
		item.score, item.rated = ratings[m.ID]
		_, item.saved = saved[m.ID]
		items[i] = item
	}
	return items
}

func (i movieItem) FilterValue() string { return i.movie.Title }

func (i movieItem) Title() string {
	title := i.movie.Title
	if i.movie.ReleaseYear > 0 {
		title = fmt.Sprintf("%s (%d)", title, i.movie.ReleaseYear)
	}
	if i.saved {
		title += " " + styles.ok.Render("●")
	}
	return title
}

func (i movieItem) Description() string {
	parts := []string{strings.Join(i.movie.GenreList(), ", ")}
	if i.rated {
		parts = append(parts, styles.star.Render("★ "+formatter.FormatScore(i.score, true)))
	}
	return strings.Join(parts, " • ")
}
