package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/marquee/internal/formatter"
	"github.com/desertthunder/marquee/internal/server"
	"github.com/desertthunder/marquee/internal/shared"
	tu "github.com/desertthunder/marquee/internal/testing"
	"github.com/goccy/go-json"
)

// newTestRunner wires a runner with an in-memory database against a seeded stub backend.
func newTestRunner(t *testing.T) (*Runner, *server.Stub, *bytes.Buffer) {
	t.Helper()
	return newTestRunnerWith(t, nil)
}

// newTestRunnerWith is newTestRunner with wrap placed in front of the stub.
func newTestRunnerWith(t *testing.T, wrap func(http.Handler) http.Handler) (*Runner, *server.Stub, *bytes.Buffer) {
	t.Helper()

	stub := server.NewStub(server.StubOpts{Secret: "cli"})
	var handler http.Handler = stub
	if wrap != nil {
		handler = wrap(stub)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	config := shared.DefaultConfig()
	config.API.BaseURL = srv.URL
	config.Database.Path = ":memory:"

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(io.Discard),
		Output: output,
	})
	t.Cleanup(func() { runner.Close() })

	return runner, stub, output
}

func run(r *Runner, args ...string) error {
	return r.app().Run(context.Background(), append([]string{"marquee"}, args...))
}

func login(t *testing.T, r *Runner) {
	t.Helper()
	if err := run(r, "auth", "login", "--email", server.SeedEmail, "--password", server.SeedPassword); err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			tokens := tu.NewMemoryTokenStore("")

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Tokens:     tokens,
			})

			if runner.config != config || !runner.configured {
				t.Error("expected config to be set and treated as loaded")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.tokens != tokens {
				t.Error("expected token store to be set")
			}
			if runner.engine != nil {
				t.Error("expected the stack to be built lazily")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.config == nil {
				t.Fatal("expected default config to be set")
			}
			if runner.configured {
				t.Error("expected default config to be reloaded from --config")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("Config", func(t *testing.T) {
		t.Run("loads --config", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			content := "[api]\nbase_url = \"http://example.test\"\n\n[database]\npath = \":memory:\"\n\n[client]\npage_limit = 5\n"
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})
			defer runner.Close()
			if err := run(runner, "--config", path, "cache", "list"); err != nil {
				t.Fatalf("expected command to succeed, got %v", err)
			}
			if runner.config.API.BaseURL != "http://example.test" || runner.config.Client.PageLimit != 5 {
				t.Errorf("expected values from file, got %+v", runner.config)
			}
			if runner.config.Client.ScoreMax != 5 {
				t.Errorf("expected defaults for missing keys, got %v", runner.config.Client.ScoreMax)
			}
		})

		t.Run("rejects invalid config", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("[client]\nscore_step = 0\n"), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})
			if err := run(runner, "-c", path, "cache", "list"); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})

	t.Run("Output Helpers", func(t *testing.T) {
		t.Run("writeJSON", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})
			if err := runner.writeJSON(map[string]int{"id": 14}, false); err != nil {
				t.Fatalf("writeJSON failed: %v", err)
			}
			if output.String() != "{\"id\":14}\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("write errors", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			if err := runner.writePlain("x"); err == nil {
				t.Error("expected writePlain error")
			}
			if err := runner.writeJSON("x", true); err == nil {
				t.Error("expected writeJSON error")
			}
		})

		t.Run("newline error", func(t *testing.T) {
			lw := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &lw})
			if err := runner.writeJSON([]int{1}, false); err == nil || !strings.Contains(err.Error(), "newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})
}

func TestSetupDatabase(t *testing.T) {
	wd := tu.MustGetwd(t)
	defer tu.MustChdir(t, wd)
	tu.MustChdir(t, t.TempDir())

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: output})
	if err := run(runner, "setup", "database"); err != nil {
		t.Fatalf("expected setup to succeed, got %v", err)
	}

	tu.AssertFileExists(t, "config.toml")
	tu.AssertFileExists(t, "marquee.db")
	if !strings.Contains(output.String(), "Database ready") {
		t.Errorf("unexpected output %q", output.String())
	}
}

func TestAuthCommands(t *testing.T) {
	t.Run("Status When Anonymous", func(t *testing.T) {
		runner, stub, output := newTestRunner(t)
		if err := run(runner, "auth", "status"); err != nil {
			t.Fatalf("expected status to succeed, got %v", err)
		}
		if !strings.Contains(output.String(), "Session: anonymous") {
			t.Errorf("unexpected output %q", output.String())
		}
		if n := len(stub.Requests()); n != 0 {
			t.Errorf("expected no requests without a token, got %d", n)
		}
	})

	t.Run("Login Status Logout", func(t *testing.T) {
		runner, _, output := newTestRunner(t)
		login(t, runner)
		if !strings.Contains(output.String(), "Logged in as testuser") {
			t.Errorf("unexpected login output %q", output.String())
		}

		output.Reset()
		if err := run(runner, "auth", "status", "--json"); err != nil {
			t.Fatalf("expected status to succeed, got %v", err)
		}
		var report statusReport
		if err := json.Unmarshal(output.Bytes(), &report); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if report.State != "ready" || report.Username != server.SeedUsername || report.Expiry == nil {
			t.Errorf("unexpected report %+v", report)
		}

		output.Reset()
		if err := run(runner, "auth", "logout"); err != nil {
			t.Fatalf("expected logout to succeed, got %v", err)
		}
		if runner.session.IsAuthenticated() {
			t.Error("expected session to end")
		}
		if stored, _ := runner.tokens.Load(context.Background()); stored != "" {
			t.Errorf("expected persisted token cleared, got %q", stored)
		}
	})

	t.Run("Token Persists Across Runners", func(t *testing.T) {
		stub := server.NewStub(server.StubOpts{Secret: "cli"})
		srv := httptest.NewServer(stub)
		defer srv.Close()

		config := shared.DefaultConfig()
		config.API.BaseURL = srv.URL
		config.Database.Path = ":memory:"
		tokens := tu.NewMemoryTokenStore("")

		first := NewRunner(RunnerOpts{Config: config, Tokens: tokens, Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})
		login(t, first)
		first.Close()

		output := &bytes.Buffer{}
		second := NewRunner(RunnerOpts{Config: config, Tokens: tokens, Logger: shared.NewLogger(io.Discard), Output: output})
		defer second.Close()
		if err := run(second, "auth", "status"); err != nil {
			t.Fatalf("expected status to succeed, got %v", err)
		}
		if !strings.Contains(output.String(), "User: testuser") {
			t.Errorf("expected restored session, got %q", output.String())
		}
	})

	t.Run("Login Without Profile", func(t *testing.T) {
		runner, _, output := newTestRunnerWith(t, func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/users/me" {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				next.ServeHTTP(w, r)
			})
		})

		if err := run(runner, "auth", "login", "--email", server.SeedEmail, "--password", server.SeedPassword); err != nil {
			t.Fatalf("expected login to succeed, got %v", err)
		}
		if !strings.Contains(output.String(), "Logged in (profile unavailable") {
			t.Errorf("unexpected output %q", output.String())
		}
		if !runner.session.IsAuthenticated() {
			t.Error("expected token kept")
		}
	})

	t.Run("Wrong Password", func(t *testing.T) {
		runner, _, _ := newTestRunner(t)
		err := run(runner, "auth", "login", "-e", server.SeedEmail, "-p", "nope")
		if !shared.IsAuthError(err) {
			t.Errorf("expected auth error, got %v", err)
		}
	})

	t.Run("Register Validates Locally", func(t *testing.T) {
		runner, stub, _ := newTestRunner(t)
		err := run(runner, "auth", "register", "-u", "newbie", "-e", "new@example.com", "-p", "abc")
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if n := stub.Count("POST /register/"); n != 0 {
			t.Errorf("expected no register request, got %d", n)
		}
	})

	t.Run("Register", func(t *testing.T) {
		runner, _, output := newTestRunner(t)
		if err := run(runner, "auth", "register", "-u", "newbie", "-e", "new@example.com", "-p", "secret1"); err != nil {
			t.Fatalf("expected register to succeed, got %v", err)
		}
		if !strings.Contains(output.String(), "Registered newbie") {
			t.Errorf("unexpected output %q", output.String())
		}
		if runner.session.IsAuthenticated() {
			t.Error("expected register not to sign in")
		}
	})
}

func TestMovieCommands(t *testing.T) {
	t.Run("Require Login", func(t *testing.T) {
		runner, stub, _ := newTestRunner(t)
		for _, args := range [][]string{
			{"movies", "recommended"},
			{"movies", "search", "dune"},
			{"movies", "show", "14"},
			{"watchlist", "list"},
			{"rate", "7", "4"},
		} {
			if err := run(runner, args...); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("%v: expected ErrNotAuthenticated, got %v", args, err)
			}
		}
		if n := len(stub.Requests()); n != 0 {
			t.Errorf("expected no requests, got %v", stub.Requests())
		}
	})

	t.Run("Recommended As CSV", func(t *testing.T) {
		runner, _, output := newTestRunner(t)
		login(t, runner)
		output.Reset()

		if err := run(runner, "movies", "recommended", "--format", "csv"); err != nil {
			t.Fatalf("expected command to succeed, got %v", err)
		}
		lines := strings.Split(strings.TrimSpace(output.String()), "\n")
		if len(lines) != 11 {
			t.Fatalf("expected header and 10 movies, got %d lines:\n%s", len(lines), output.String())
		}
		if !strings.HasPrefix(lines[1], "2,The Shawshank Redemption,1994") {
			t.Errorf("unexpected first row %s", lines[1])
		}
	})

	t.Run("Search As JSON", func(t *testing.T) {
		runner, _, output := newTestRunner(t)
		login(t, runner)
		output.Reset()

		if err := run(runner, "movies", "search", "dune", "--json"); err != nil {
			t.Fatalf("expected search to succeed, got %v", err)
		}
		var listing formatter.Listing
		if err := json.Unmarshal(output.Bytes(), &listing); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if listing.Title != "Search Results for dune" || len(listing.Rows) != 1 {
			t.Fatalf("unexpected listing %+v", listing)
		}
		if row := listing.Rows[0]; row.Movie.ID != 14 || !row.Rated || row.Rating != 4 {
			t.Errorf("expected Dune annotated with its rating, got %+v", row)
		}
	})

	t.Run("Search Needs Query", func(t *testing.T) {
		runner, _, _ := newTestRunner(t)
		if err := run(runner, "movies", "search"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Genre To File", func(t *testing.T) {
		runner, _, output := newTestRunner(t)
		login(t, runner)
		output.Reset()

		path := filepath.Join(t.TempDir(), "scifi.md")
		if err := run(runner, "movies", "genre", "Sci-Fi", "-o", path); err != nil {
			t.Fatalf("expected genre to succeed, got %v", err)
		}
		content := tu.MustReadFile(t, path)
		if !strings.HasPrefix(content, "# Sci-Fi Movies") || !strings.Contains(content, "Interstellar") {
			t.Errorf("unexpected markdown:\n%s", content)
		}
		if !strings.Contains(output.String(), "Wrote 4 movies") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("Genre Pages With Skip", func(t *testing.T) {
		runner, stub, output := newTestRunner(t)
		login(t, runner)
		output.Reset()

		if err := run(runner, "movies", "genre", "Drama", "--limit", "2", "--skip", "1", "-f", "csv"); err != nil {
			t.Fatalf("expected genre to succeed, got %v", err)
		}
		if n := stub.Count("GET /movies/?genre=Drama&limit=2&skip=1"); n != 1 {
			t.Errorf("expected one paged lookup, got %v", stub.Requests())
		}
		lines := strings.Split(strings.TrimSpace(output.String()), "\n")
		if len(lines) != 3 || !strings.HasPrefix(lines[1], "3,") || !strings.HasPrefix(lines[2], "4,") {
			t.Errorf("expected movies 3 and 4, got:\n%s", output.String())
		}
	})

	t.Run("Show", func(t *testing.T) {
		runner, stub, output := newTestRunner(t)
		login(t, runner)
		output.Reset()

		if err := run(runner, "movies", "show", "14"); err != nil {
			t.Fatalf("expected show to succeed, got %v", err)
		}
		for _, want := range []string{"Dune (2021)", "Genres: Action, Adventure, Drama", "Your rating:"} {
			if !strings.Contains(output.String(), want) {
				t.Errorf("expected %q in output:\n%s", want, output.String())
			}
		}
		if strings.Contains(output.String(), "cached copy") {
			t.Error("live lookup reported as cached")
		}
		if n := stub.Count("GET /movies/14"); n != 1 {
			t.Errorf("expected one lookup, got %d", n)
		}
	})

	t.Run("Show As JSON", func(t *testing.T) {
		runner, _, output := newTestRunner(t)
		login(t, runner)
		if err := run(runner, "watchlist", "add", "8"); err != nil {
			t.Fatalf("expected add to succeed, got %v", err)
		}
		output.Reset()

		if err := run(runner, "movies", "show", "8", "--json"); err != nil {
			t.Fatalf("expected show to succeed, got %v", err)
		}
		var got struct {
			ID          int      `json:"id"`
			Title       string   `json:"title"`
			Rating      *float64 `json:"rating"`
			InWatchlist bool     `json:"in_watchlist"`
			Cached      bool     `json:"cached"`
		}
		if err := json.Unmarshal(output.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, output.String())
		}
		if got.ID != 8 || got.Title != "Interstellar" || got.Rating != nil || !got.InWatchlist || got.Cached {
			t.Errorf("unexpected movie %+v", got)
		}
	})

	t.Run("Show Unknown Movie", func(t *testing.T) {
		runner, _, _ := newTestRunner(t)
		login(t, runner)

		if err := run(runner, "movies", "show", "99"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := run(runner, "movies", "show", "abc"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Show Falls Back To Cache", func(t *testing.T) {
		var down atomic.Bool
		runner, _, output := newTestRunnerWith(t, func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if down.Load() && strings.HasPrefix(r.URL.Path, "/movies/") {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				next.ServeHTTP(w, r)
			})
		})
		login(t, runner)
		if err := run(runner, "movies", "genre", "Sci-Fi"); err != nil {
			t.Fatalf("expected genre to succeed, got %v", err)
		}
		down.Store(true)
		output.Reset()

		if err := run(runner, "movies", "show", "12"); err != nil {
			t.Fatalf("expected cached movie, got %v", err)
		}
		if !strings.Contains(output.String(), "Mad Max: Fury Road (2015)") || !strings.Contains(output.String(), "cached copy") {
			t.Errorf("unexpected output:\n%s", output.String())
		}

		if err := run(runner, "movies", "show", "2"); !shared.IsRetryable(err) {
			t.Errorf("expected retryable error for an uncached movie, got %v", err)
		}
	})

	t.Run("Ratings", func(t *testing.T) {
		runner, _, output := newTestRunner(t)
		login(t, runner)
		output.Reset()

		if err := run(runner, "movies", "ratings", "-f", "csv"); err != nil {
			t.Fatalf("expected ratings to succeed, got %v", err)
		}
		lines := strings.Split(strings.TrimSpace(output.String()), "\n")
		if len(lines) != 5 {
			t.Fatalf("expected four rated movies, got:\n%s", output.String())
		}
		if !strings.HasPrefix(lines[3], "6,") || !strings.Contains(lines[3], ",4.5,") {
			t.Errorf("unexpected row for movie 6: %s", lines[3])
		}
	})

	t.Run("Rate", func(t *testing.T) {
		runner, stub, output := newTestRunner(t)
		login(t, runner)
		output.Reset()

		if err := run(runner, "rate", "7", "4"); err != nil {
			t.Fatalf("expected rate to succeed, got %v", err)
		}
		if score, ok := stub.Rating(1, 7); !ok || score != 4 {
			t.Errorf("expected backend score 4, got %v", score)
		}
		if !strings.Contains(output.String(), "Rated movie 7: 4") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("Rate Rejects Bad Input", func(t *testing.T) {
		runner, stub, _ := newTestRunner(t)
		login(t, runner)
		before := stub.Count("POST /ratings/")

		if err := run(runner, "rate", "7", "9"); !errors.Is(err, shared.ErrInvalidScore) {
			t.Errorf("expected ErrInvalidScore, got %v", err)
		}
		if err := run(runner, "rate", "seven", "4"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if err := run(runner, "rate", "7"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if after := stub.Count("POST /ratings/"); after != before {
			t.Errorf("expected no rating writes, got %d", after-before)
		}
	})
}

func TestWatchlistCommands(t *testing.T) {
	runner, stub, output := newTestRunner(t)
	login(t, runner)

	output.Reset()
	if err := run(runner, "watchlist", "add", "8"); err != nil {
		t.Fatalf("expected add to succeed, got %v", err)
	}
	if !strings.Contains(output.String(), "Added Interstellar") {
		t.Errorf("unexpected output %q", output.String())
	}

	output.Reset()
	if err := run(runner, "watchlist", "list", "--format", "csv"); err != nil {
		t.Fatalf("expected list to succeed, got %v", err)
	}
	if !strings.Contains(output.String(), "8,Interstellar,2014") {
		t.Errorf("expected Interstellar listed, got %q", output.String())
	}

	if err := run(runner, "watchlist", "remove", "8"); err != nil {
		t.Fatalf("expected remove to succeed, got %v", err)
	}
	if err := run(runner, "watchlist", "rm", "8"); err != nil {
		t.Errorf("expected second remove to be tolerated, got %v", err)
	}
	if n := stub.Count("DELETE /watchlist/8"); n != 2 {
		t.Errorf("expected two deletes, got %d", n)
	}

	if err := run(runner, "watchlist", "add", "0"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCacheList(t *testing.T) {
	runner, _, output := newTestRunner(t)

	if err := run(runner, "cache", "list"); err != nil {
		t.Fatalf("expected empty cache list to succeed, got %v", err)
	}
	if !strings.Contains(output.String(), "Cached Movies (0 of 0)") {
		t.Errorf("unexpected output %q", output.String())
	}

	login(t, runner)
	if err := run(runner, "movies", "recommended"); err != nil {
		t.Fatalf("expected recommended to succeed, got %v", err)
	}

	output.Reset()
	if err := run(runner, "cache", "list", "--genre", "Sci-Fi", "--format", "csv"); err != nil {
		t.Fatalf("expected cache list to succeed, got %v", err)
	}
	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected two cached sci-fi movies, got:\n%s", output.String())
	}
	if !strings.HasPrefix(lines[1], "8,Interstellar") || !strings.HasPrefix(lines[2], "12,Mad Max") {
		t.Errorf("unexpected rows %v", lines[1:])
	}
}
