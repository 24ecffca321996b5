// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// listingFlags are shared by every command that prints a movie collection.
func listingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format (table, csv, markdown, json)",
			Value:   "table",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write to a file instead of stdout; the extension picks the format",
		},
	}
}

// pageFlags are listingFlags plus paging through catalog lookups.
func pageFlags() []cli.Flag {
	return append(listingFlags(),
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of movies to fetch (0 uses the configured page size)",
		},
		&cli.IntFlag{
			Name:  "skip",
			Usage: "Number of matching movies to skip",
		},
	)
}

// setupCommand handles setup operations for the local database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create config.toml if missing, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles account and session operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage your account and session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in with email and password",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "email",
						Aliases:  []string{"e"},
						Usage:    "Account email",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "password",
						Aliases:  []string{"p"},
						Usage:    "Account password",
						Required: true,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:  "register",
				Usage: "Create an account",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "username",
						Aliases:  []string{"u"},
						Usage:    "Display name (3-50 characters)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "email",
						Aliases:  []string{"e"},
						Usage:    "Account email",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "password",
						Aliases:  []string{"p"},
						Usage:    "Account password",
						Required: true,
					},
				},
				Action: r.AuthRegister,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored token",
				Action: r.AuthLogout,
			},
			{
				Name:  "status",
				Usage: "Show session state, user and token expiry",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthStatus,
			},
		},
	}
}

// moviesCommand handles browsing operations
func moviesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "movies",
		Aliases: []string{"m"},
		Usage:   "Browse recommendations and the catalog",
		Commands: []*cli.Command{
			{
				Name:    "recommended",
				Aliases: []string{"recs"},
				Usage:   "List movies recommended for you",
				Flags:   listingFlags(),
				Action:  r.MoviesRecommended,
			},
			{
				Name:      "search",
				Usage:     "Search the catalog by title",
				Arguments: []cli.Argument{&cli.StringArg{Name: "query"}},
				Flags:     pageFlags(),
				Action:    r.MoviesSearch,
			},
			{
				Name:      "genre",
				Usage:     "List movies in a genre",
				Arguments: []cli.Argument{&cli.StringArg{Name: "genre"}},
				Flags:     pageFlags(),
				Action:    r.MoviesGenre,
			},
			{
				Name:      "show",
				Usage:     "Show a single movie, from the local cache when the server is unreachable",
				Arguments: []cli.Argument{&cli.StringArg{Name: "movie_id"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.MoviesShow,
			},
			{
				Name:   "ratings",
				Usage:  "List the movies you have rated",
				Flags:  listingFlags(),
				Action: r.MoviesRatings,
			},
		},
	}
}

// rateCommand rates a single movie
func rateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "rate",
		Usage: "Rate a movie",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "movie_id"},
			&cli.StringArg{Name: "score"},
		},
		Action: r.Rate,
	}
}

// watchlistCommand handles watchlist operations
func watchlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watchlist",
		Aliases: []string{"wl"},
		Usage:   "Manage your watchlist",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List saved movies",
				Flags:   listingFlags(),
				Action:  r.WatchlistList,
			},
			{
				Name:      "add",
				Usage:     "Save a movie",
				Arguments: []cli.Argument{&cli.StringArg{Name: "movie_id"}},
				Action:    r.WatchlistAdd,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove a saved movie",
				Arguments: []cli.Argument{&cli.StringArg{Name: "movie_id"}},
				Action:    r.WatchlistRemove,
			},
		},
	}
}

// cacheCommand inspects the local movie cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect movies cached locally",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List cached movies",
				Flags: append(listingFlags(),
					&cli.StringFlag{
						Name:  "title",
						Usage: "Only movies whose title contains this text",
					},
					&cli.StringFlag{
						Name:  "genre",
						Usage: "Only movies in this genre",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of movies to list",
						Value: 50,
					},
				),
				Action: r.CacheList,
			},
		},
	}
}

// stubCommand runs the local stub backend
func stubCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stub",
		Usage: "Local stand-in for the recommendation backend",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve the stub backend with seeded movies and a test account",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (defaults to stub.addr)",
					},
					&cli.BoolFlag{
						Name:  "empty",
						Usage: "Start without seeded movies, users or ratings",
					},
				},
				Action: r.StubServe,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for interactive browsing.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive movie browser",
		Action:  r.TUI,
	}
}
