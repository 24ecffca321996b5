// package models defines the data model for the movie recommendation client
package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/desertthunder/marquee/internal/shared"
)

// Movie is a read-only projection of a backend movie.
type Movie struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ReleaseYear int    `json:"release_year"`
	Genres      string `json:"genres"`
	PosterURL   string `json:"poster_url,omitempty"`
}

// GenreList splits the comma-delimited genre string, trimming blanks.
func (m Movie) GenreList() []string {
	var genres []string
	for _, g := range strings.Split(m.Genres, ",") {
		if g = strings.TrimSpace(g); g != "" {
			genres = append(genres, g)
		}
	}
	return genres
}

// HasGenre reports whether the movie is tagged with genre (case-insensitive).
func (m Movie) HasGenre(genre string) bool {
	for _, g := range m.GenreList() {
		if strings.EqualFold(g, genre) {
			return true
		}
	}
	return false
}

// User is the authenticated user's profile.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Rating is a user's score for a movie; the user is implied by the session.
type Rating struct {
	MovieID int     `json:"movie_id"`
	Score   float64 `json:"score"`
}

// Ratings maps movie id to score.
type Ratings map[int]float64

// RatingsFrom builds a [Ratings] map from an ordered list. A later duplicate movie id wins.
func RatingsFrom(list []Rating) Ratings {
	out := make(Ratings, len(list))
	for _, r := range list {
		out[r.MovieID] = r.Score
	}
	return out
}

// Clone returns an independent copy.
func (r Ratings) Clone() Ratings {
	out := make(Ratings, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// WatchlistEntry is a movie saved to the user's watchlist.
type WatchlistEntry struct {
	ID      int       `json:"id"`
	MovieID int       `json:"movie_id"`
	AddedAt time.Time `json:"added_at"`
	Movie   Movie     `json:"movie"`
}

// Token is the client's decoded view of a bearer token.
//
// Claims are read without signature verification and are informational only.
type Token struct {
	AccessToken string
	TokenType   string
	Subject     string
	Expiry      time.Time
}

// Expired reports whether the token carries an expiry that has passed.
func (t Token) Expired(now time.Time) bool {
	return !t.Expiry.IsZero() && now.After(t.Expiry)
}

// ScoreScale bounds valid rating scores: Min..Max inclusive, in increments of Step.
type ScoreScale struct {
	Min  float64
	Max  float64
	Step float64
}

// DefaultScoreScale is whole stars from one to five.
var DefaultScoreScale = ScoreScale{Min: 1, Max: 5, Step: 1}

// HalfStarScale allows half-star scores from one to five.
var HalfStarScale = ScoreScale{Min: 1, Max: 5, Step: 0.5}

// Validate returns a [shared.ValidationError] wrapping [shared.ErrInvalidScore] when score is out of range or off-step.
func (s ScoreScale) Validate(score float64) error {
	if math.IsNaN(score) || score < s.Min || score > s.Max {
		return &shared.ValidationError{
			Field:  "score",
			Reason: fmt.Sprintf("must be between %g and %g", s.Min, s.Max),
			Err:    shared.ErrInvalidScore,
		}
	}

	if s.Step > 0 {
		steps := (score - s.Min) / s.Step
		if math.Abs(steps-math.Round(steps)) > 1e-9 {
			return &shared.ValidationError{
				Field:  "score",
				Reason: fmt.Sprintf("must be a multiple of %g", s.Step),
				Err:    shared.ErrInvalidScore,
			}
		}
	}

	return nil
}

// Values lists every valid score from Min to Max.
func (s ScoreScale) Values() []float64 {
	if s.Step <= 0 {
		return []float64{s.Min, s.Max}
	}
	var out []float64
	for v := s.Min; v <= s.Max+1e-9; v += s.Step {
		out = append(out, math.Round(v/s.Step)*s.Step)
	}
	return out
}

// MovieQuery filters a catalog lookup. Callers set at most one of Search and Genre.
// Skip offsets into the matches for paging.
type MovieQuery struct {
	Search string
	Genre  string
	Limit  int
	Skip   int
}
