package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/repositories"
	"github.com/desertthunder/marquee/internal/services"
	"github.com/desertthunder/marquee/internal/session"
	"github.com/desertthunder/marquee/internal/shared"
	"github.com/desertthunder/marquee/internal/tasks"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The backend stack is built lazily by [Runner.open] so commands like "setup" and "stub serve"
// never touch the database or the network.
type Runner struct {
	config     *shared.Config
	configured bool
	logger     *log.Logger
	output     io.Writer
	httpClient *http.Client

	db      *sql.DB
	ownsDB  bool
	tokens  session.TokenStore
	movies  *repositories.MovieRepository
	gateway *services.Gateway
	api     *services.MovieAPI
	session *session.Store
	engine  *tasks.Engine
	updates chan tasks.Update
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	// Config skips loading --config when set.
	Config     *shared.Config
	Logger     *log.Logger
	Output     io.Writer
	HTTPClient *http.Client
	// DB is used instead of opening database.path. The caller keeps ownership.
	DB     *sql.DB
	Tokens session.TokenStore
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	configured := opts.Config != nil
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configured: configured,
		logger:     opts.Logger,
		output:     opts.Output,
		httpClient: opts.HTTPClient,
		db:         opts.DB,
		tokens:     opts.Tokens,
	}
}

// SetLogger replaces the logger used by the runner and anything it builds afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// configure loads the file named by --config, overlays the environment and validates the result.
// A missing file leaves the embedded defaults in place.
func (r *Runner) configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if r.configured {
		return ctx, nil
	}

	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
	}

	shared.ApplyEnv(r.config)
	if err := r.config.Validate(); err != nil {
		return ctx, err
	}

	if cmd.Bool("verbose") {
		r.config.Log.Level = "debug"
	}
	shared.ApplyLogLevel(r.logger, r.config.Log.Level)
	r.configured = true
	return ctx, nil
}

// open wires the database, token persistence, gateway, session and engine, then restores any
// persisted token. It is safe to call more than once.
func (r *Runner) open(ctx context.Context) error {
	if r.engine != nil {
		return nil
	}

	if r.db == nil {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		if r.config.Database.Path != ":memory:" {
			shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		}
		r.db, r.ownsDB = db, true
	}
	if err := shared.RunMigrations(r.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.movies = repositories.NewMovieRepository(r.db)
	if r.tokens == nil {
		r.tokens = repositories.NewTokenRepository(r.db)
	}

	r.gateway = services.NewGateway(services.GatewayOpts{
		BaseURL:   r.config.API.BaseURL,
		Client:    r.httpClient,
		Timeout:   r.config.API.Timeout.Duration,
		RateLimit: r.config.API.RateLimit,
		Burst:     r.config.API.Burst,
		Logger:    r.logger,
	})
	r.api = services.NewMovieAPI(r.gateway, r.config.API.LegacyUserID)

	store := session.New(r.api, r.tokens, session.Options{
		MinPasswordLength: r.config.Client.MinPasswordLength,
		Logger:            r.logger,
	})
	r.gateway.Bind(store, func(rejected string, err error) {
		store.ExpireToken(context.Background(), rejected, err)
	})
	r.session = store

	opts := tasks.EngineOpts{
		Debounce:  r.config.Client.SearchDebounce.Duration,
		PageLimit: r.config.Client.PageLimit,
		Scale: models.ScoreScale{
			Min:  r.config.Client.ScoreMin,
			Max:  r.config.Client.ScoreMax,
			Step: r.config.Client.ScoreStep,
		},
		Cache:   repositories.NewMovieCacheAdapter(r.movies),
		Logger:  r.logger,
		Updates: r.updates,
	}
	r.engine = tasks.NewEngine(r.api, store, opts)

	if _, err := store.Restore(ctx); err != nil {
		r.logger.Warn("failed to restore session", "err", err)
	}
	return nil
}

// requireSession opens the stack and makes sure a validated profile is loaded.
func (r *Runner) requireSession(ctx context.Context) (*models.User, error) {
	if err := r.open(ctx); err != nil {
		return nil, err
	}
	if !r.session.IsAuthenticated() {
		return nil, fmt.Errorf("%w: run 'marquee auth login' first", shared.ErrNotAuthenticated)
	}
	if user, ok := r.session.User(); ok {
		return &user, nil
	}
	return r.session.Validate(ctx)
}

// Close stops background work and releases the database when the runner opened it.
func (r *Runner) Close() error {
	if r.engine != nil {
		r.engine.Close()
		r.engine = nil
	}
	if r.ownsDB && r.db != nil {
		err := r.db.Close()
		r.db = nil
		return err
	}
	return nil
}

// app builds the root command.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "marquee",
		Usage:   "Browse, rate and save movie recommendations",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log at debug level",
			},
		},
		Before:   r.configure,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, moviesCommand, rateCommand, watchlistCommand, cacheCommand, stubCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
