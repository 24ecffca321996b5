package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/marquee/internal/models"
)

const upsertMovieSQL = `
	INSERT INTO movies (id, title, description, release_year, genres, poster_url, cached_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		release_year = excluded.release_year,
		genres = excluded.genres,
		poster_url = excluded.poster_url,
		cached_at = excluded.cached_at
	`

// CachedMovie is a [models.Movie] with the time it was last seen.
type CachedMovie struct {
	models.Movie
	CachedAt time.Time
}

// ListCriteria filters [MovieRepository.List]. Empty fields match everything.
type ListCriteria struct {
	Title string
	Genre string
	Limit int
}

// MovieRepository caches movie projections keyed by backend id.
type MovieRepository struct {
	db *sql.DB
}

// NewMovieRepository creates a new MovieRepository with the given database connection
func NewMovieRepository(db *sql.DB) *MovieRepository {
	return &MovieRepository{db: db}
}

// Upsert inserts or refreshes a movie.
func (r *MovieRepository) Upsert(ctx context.Context, m models.Movie) error {
	if m.ID <= 0 {
		return fmt.Errorf("validation failed: movie id must be positive")
	}
	if m.Title == "" {
		return fmt.Errorf("validation failed: title is required")
	}

	_, err := r.db.ExecContext(ctx, upsertMovieSQL, m.ID, m.Title, m.Description, m.ReleaseYear, m.Genres, m.PosterURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert movie: %w", err)
	}
	return nil
}

// UpsertAll caches movies in one transaction.
func (r *MovieRepository) UpsertAll(ctx context.Context, movies []models.Movie) error {
	if len(movies) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertMovieSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, m := range movies {
		if m.ID <= 0 || m.Title == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, m.ID, m.Title, m.Description, m.ReleaseYear, m.Genres, m.PosterURL, now); err != nil {
			return fmt.Errorf("failed to upsert movie %d: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// Get retrieves a cached movie by id.
func (r *MovieRepository) Get(ctx context.Context, id int) (*CachedMovie, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, release_year, genres, poster_url, cached_at
		FROM movies
		WHERE id = ?
	`, id)

	m, err := scanMovie(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("movie not found: %d", id)
	}
	return m, err
}

// Delete removes a cached movie.
func (r *MovieRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM movies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete movie: %w", err)
	}
	return expectRows(result, "movie", id)
}

// List retrieves cached movies ordered by title.
func (r *MovieRepository) List(ctx context.Context, criteria ListCriteria) ([]*CachedMovie, error) {
	query := `
		SELECT id, title, description, release_year, genres, poster_url, cached_at
		FROM movies
		WHERE 1 = 1
	`
	args := []any{}

	if criteria.Title != "" {
		query += " AND title LIKE ?"
		args = append(args, "%"+criteria.Title+"%")
	}
	if criteria.Genre != "" {
		query += " AND (',' || genres || ',') LIKE ?"
		args = append(args, "%,"+criteria.Genre+",%")
	}

	query += " ORDER BY title ASC"
	if criteria.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, criteria.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movies: %w", err)
	}
	defer rows.Close()

	var movies []*CachedMovie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return movies, nil
}

// Count returns the number of cached movies.
func (r *MovieRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM movies").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count movies: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMovie(s scanner) (*CachedMovie, error) {
	var m CachedMovie
	err := s.Scan(&m.ID, &m.Title, &m.Description, &m.ReleaseYear, &m.Genres, &m.PosterURL, &m.CachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan movie: %w", err)
	}
	return &m, nil
}
