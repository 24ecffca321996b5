package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestTokenRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Load Empty", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t))

		token, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token != "" {
			t.Errorf("expected empty token, got %q", token)
		}
	})

	t.Run("Save And Load", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t))

		if err := repo.Save(ctx, "first"); err != nil {
			t.Fatalf("failed to save token: %v", err)
		}
		if err := repo.Save(ctx, "second"); err != nil {
			t.Fatalf("failed to replace token: %v", err)
		}

		token, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("failed to load token: %v", err)
		}
		if token != "second" {
			t.Errorf("expected latest token, got %q", token)
		}

		updatedAt, err := repo.UpdatedAt(ctx)
		if err != nil {
			t.Fatalf("failed to read timestamp: %v", err)
		}
		if time.Since(updatedAt) > time.Minute {
			t.Errorf("unexpected updated_at %v", updatedAt)
		}
	})

	t.Run("Survives Reopen", func(t *testing.T) {
		path := t.TempDir() + "/marquee.db"

		db, err := shared.NewDatabase(path)
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if err := shared.RunMigrations(db); err != nil {
			t.Fatalf("failed to migrate: %v", err)
		}
		if err := NewTokenRepository(db).Save(ctx, "persisted"); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		db.Close()

		db, err = shared.NewDatabase(path)
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()

		token, err := NewTokenRepository(db).Load(ctx)
		if err != nil || token != "persisted" {
			t.Errorf("expected persisted token after reopen, got %q (%v)", token, err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t))
		repo.Save(ctx, "tok")

		if err := repo.Clear(ctx); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}
		if token, _ := repo.Load(ctx); token != "" {
			t.Errorf("expected token removed, got %q", token)
		}
		if err := repo.Clear(ctx); err != nil {
			t.Errorf("clearing twice should succeed, got %v", err)
		}
		if _, err := repo.UpdatedAt(ctx); err == nil {
			t.Error("expected not found after clear")
		}
	})

	t.Run("Closed Database", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewTokenRepository(db)
		db.Close()

		if _, err := repo.Load(ctx); err == nil {
			t.Error("expected error on closed database")
		}
		if err := repo.Save(ctx, "x"); err == nil {
			t.Error("expected error on closed database")
		}
	})
}

func TestMovieRepository(t *testing.T) {
	ctx := context.Background()
	inception := models.Movie{ID: 1, Title: "Inception", ReleaseYear: 2010, Genres: "Sci-Fi,Thriller,Action"}
	shawshank := models.Movie{ID: 2, Title: "The Shawshank Redemption", ReleaseYear: 1994, Genres: "Drama"}
	darkKnight := models.Movie{ID: 3, Title: "The Dark Knight", ReleaseYear: 2008, Genres: "Action,Crime,Drama"}

	t.Run("Upsert And Get", func(t *testing.T) {
		repo := NewMovieRepository(setupTestDB(t))

		if err := repo.Upsert(ctx, inception); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		updated := inception
		updated.Description = "dreams"
		if err := repo.Upsert(ctx, updated); err != nil {
			t.Fatalf("failed to update: %v", err)
		}

		got, err := repo.Get(ctx, 1)
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got.Description != "dreams" || got.ReleaseYear != 2010 {
			t.Errorf("unexpected movie %+v", got.Movie)
		}
		if got.CachedAt.IsZero() {
			t.Error("expected cached_at to be set")
		}
	})

	t.Run("Upsert Validation", func(t *testing.T) {
		repo := NewMovieRepository(setupTestDB(t))

		if err := repo.Upsert(ctx, models.Movie{Title: "No ID"}); err == nil {
			t.Error("expected error for missing id")
		}
		if err := repo.Upsert(ctx, models.Movie{ID: 4}); err == nil {
			t.Error("expected error for missing title")
		}
	})

	t.Run("Get Not Found", func(t *testing.T) {
		repo := NewMovieRepository(setupTestDB(t))
		if _, err := repo.Get(ctx, 404); err == nil {
			t.Error("expected not found error")
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewMovieRepository(setupTestDB(t))
		if err := repo.UpsertAll(ctx, []models.Movie{inception, shawshank, darkKnight, {ID: 0, Title: "skipped"}}); err != nil {
			t.Fatalf("failed to upsert all: %v", err)
		}

		tc := []struct {
			name     string
			criteria ListCriteria
			want     []int
		}{
			{name: "all ordered by title", criteria: ListCriteria{}, want: []int{1, 3, 2}},
			{name: "by title", criteria: ListCriteria{Title: "the"}, want: []int{3, 2}},
			{name: "by genre", criteria: ListCriteria{Genre: "Drama"}, want: []int{3, 2}},
			{name: "genre is whole-word", criteria: ListCriteria{Genre: "Dram"}, want: nil},
			{name: "limit", criteria: ListCriteria{Limit: 1}, want: []int{1}},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				movies, err := repo.List(ctx, tt.criteria)
				if err != nil {
					t.Fatalf("failed to list: %v", err)
				}
				if len(movies) != len(tt.want) {
					t.Fatalf("expected %d movies, got %d", len(tt.want), len(movies))
				}
				for i, m := range movies {
					if m.ID != tt.want[i] {
						t.Errorf("position %d: expected id %d, got %d", i, tt.want[i], m.ID)
					}
				}
			})
		}
	})

	t.Run("Delete And Count", func(t *testing.T) {
		repo := NewMovieRepository(setupTestDB(t))
		repo.UpsertAll(ctx, []models.Movie{inception, shawshank})

		if err := repo.Delete(ctx, 1); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if err := repo.Delete(ctx, 1); err == nil {
			t.Error("expected error deleting a missing movie")
		}

		n, err := repo.Count(ctx)
		if err != nil || n != 1 {
			t.Errorf("expected 1 cached movie, got %d (%v)", n, err)
		}
	})
}

func TestMovieCacheAdapter(t *testing.T) {
	ctx := context.Background()
	repo := NewMovieRepository(setupTestDB(t))
	adapter := NewMovieCacheAdapter(repo)

	err := adapter.CacheMovies(ctx, []models.Movie{{ID: 14, Title: "Dune", Genres: "Action,Adventure,Drama"}})
	if err != nil {
		t.Fatalf("failed to cache: %v", err)
	}
	if err := adapter.CacheMovies(ctx, nil); err != nil {
		t.Errorf("caching nothing should succeed, got %v", err)
	}

	got, err := repo.Get(ctx, 14)
	if err != nil || got.Title != "Dune" {
		t.Errorf("expected cached movie, got %+v (%v)", got, err)
	}
}

func TestMovieCacheAdapterLookup(t *testing.T) {
	ctx := context.Background()
	adapter := NewMovieCacheAdapter(NewMovieRepository(setupTestDB(t)))

	if _, err := adapter.LookupMovie(ctx, 14); err == nil {
		t.Error("expected error for an uncached movie")
	}

	if err := adapter.CacheMovies(ctx, []models.Movie{{ID: 14, Title: "Dune", ReleaseYear: 2021}}); err != nil {
		t.Fatalf("failed to cache: %v", err)
	}
	movie, err := adapter.LookupMovie(ctx, 14)
	if err != nil {
		t.Fatalf("expected cached movie, got %v", err)
	}
	if movie.Title != "Dune" || movie.ReleaseYear != 2021 {
		t.Errorf("unexpected movie %+v", movie)
	}
}
