package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/services"
	"github.com/desertthunder/marquee/internal/session"
	"github.com/desertthunder/marquee/internal/shared"
)

// ErrStale is returned when a response arrived after a newer query or a logout and was dropped.
var ErrStale = errors.New("response discarded")

const (
	searchChannel = "search"
	genreChannel  = "genre"

	defaultPageLimit = 20
)

// Session is the part of the session store the engine depends on.
type Session interface {
	Token() (string, bool)
	User() (models.User, bool)
	Validate(ctx context.Context) (*models.User, error)
	ExpireToken(ctx context.Context, token string, cause error)
	Subscribe(fn func(session.Event)) func()
}

// MovieCacher persists fetched movies locally. Errors are logged and otherwise ignored.
type MovieCacher interface {
	CacheMovies(ctx context.Context, movies []models.Movie) error
}

// MovieLookup is implemented by caches that can answer for a single movie while the backend is unreachable.
type MovieLookup interface {
	LookupMovie(ctx context.Context, movieID int) (*models.Movie, error)
}

// EngineOpts configures an [Engine]. Zero values fall back to defaults.
type EngineOpts struct {
	Debounce  time.Duration
	PageLimit int
	Scale     models.ScoreScale
	Cache     MovieCacher
	Logger    *log.Logger
	Updates   chan<- Update
}

// Engine owns every collection scoped to the session and keeps them consistent with the backend.
type Engine struct {
	api      services.Backend
	session  Session
	cache    MovieCacher
	scale    models.ScoreScale
	limit    int
	updates  chan<- Update
	logger   *log.Logger
	debounce *Debouncer

	rateKeys    keyedMutex
	watchKeys   keyedMutex
	unsubscribe func()

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	mu              sync.Mutex
	closed          bool
	epoch           uint64
	seq             map[string]uint64
	search          string
	genre           string
	recommendations []models.Movie
	searchResults   []models.Movie
	genreResults    []models.Movie
	ratings         models.Ratings
	watchlist       []models.WatchlistEntry
	watchlistIDs    map[int]struct{}
	loading         map[Phase]int
	lastErr         error
}

// NewEngine creates an [Engine] and subscribes it to session transitions.
func NewEngine(api services.Backend, sess Session, opts EngineOpts) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	scale := opts.Scale
	if scale.Max <= scale.Min {
		scale = models.DefaultScoreScale
	}
	limit := opts.PageLimit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		api:          api,
		session:      sess,
		cache:        opts.Cache,
		scale:        scale,
		limit:        limit,
		updates:      opts.Updates,
		logger:       shared.WithLogger(logger, "component", "engine"),
		debounce:     NewDebouncer(opts.Debounce),
		ctx:          ctx,
		cancel:       cancel,
		seq:          make(map[string]uint64),
		ratings:      models.Ratings{},
		watchlistIDs: make(map[int]struct{}),
		loading:      make(map[Phase]int),
	}
	e.unsubscribe = sess.Subscribe(e.onSession)
	return e
}

// Close stops pending debounced fetches, cancels background work and waits for it to finish.
func (e *Engine) Close() {
	e.unsubscribe()
	e.debounce.Stop()

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.bg.Wait()
}

// Wait blocks until background work started so far has finished.
func (e *Engine) Wait() { e.bg.Wait() }

// Scale returns the accepted rating scale.
func (e *Engine) Scale() models.ScoreScale { return e.scale }

// onSession performs the logout fan-out: every collection is cleared together and in-flight
// results become stale.
func (e *Engine) onSession(ev session.Event) {
	if !ev.Ended() {
		return
	}
	e.debounce.Stop()

	e.mu.Lock()
	e.epoch++
	e.search, e.genre = "", ""
	e.recommendations = nil
	e.searchResults = nil
	e.genreResults = nil
	e.ratings = models.Ratings{}
	e.watchlist = nil
	e.watchlistIDs = make(map[int]struct{})
	e.loading = make(map[Phase]int)
	e.lastErr = ev.Err
	e.mu.Unlock()

	e.logger.Debug("session ended, collections cleared", "cause", ev.Err)
	e.emitWait(sessionEndedUpdate(ev.Err))
}

// emit sends an update without blocking. Progress is best effort and dropped when no one is reading.
func (e *Engine) emit(u Update) {
	if e.updates == nil {
		return
	}
	select {
	case e.updates <- u:
	default:
	}
}

// emitWait sends an update that must not be lost, blocking until it is received or the engine closes.
func (e *Engine) emitWait(u Update) {
	if e.updates == nil {
		return
	}
	select {
	case e.updates <- u:
	case <-e.ctx.Done():
	}
}

func (e *Engine) goBackground(fn func(ctx context.Context)) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.bg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.bg.Done()
		fn(e.ctx)
	}()
	return true
}

func (e *Engine) currentEpoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

func (e *Engine) begin(phase Phase) {
	e.mu.Lock()
	e.loading[phase]++
	e.mu.Unlock()
}

// finish releases a loading slot taken under epoch; a logout in between already reset the counters.
func (e *Engine) finish(phase Phase, epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch == epoch && e.loading[phase] > 0 {
		e.loading[phase]--
	}
}

// fail reports err and, for an authorization failure, ends the session that issued the request.
func (e *Engine) fail(ctx context.Context, token string, phase Phase, err error) {
	if shared.IsAuthError(err) {
		e.session.ExpireToken(context.WithoutCancel(ctx), token, err)
	}

	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()

	e.logger.Debug("operation failed", "phase", phase, "err", err)
	e.emit(failedUpdate(phase, err))
}

func (e *Engine) cacheMovies(ctx context.Context, movies []models.Movie) {
	if e.cache == nil || len(movies) == 0 {
		return
	}
	if err := e.cache.CacheMovies(ctx, movies); err != nil {
		e.logger.Debug("failed to cache movies", "count", len(movies), "err", err)
	}
}

// fetch runs call with the current token. The result is dropped when the epoch it started in has
// ended or current, checked under the engine lock, reports that a newer request replaced it.
// Otherwise apply stores it under the same lock.
func fetch[T any](ctx context.Context, e *Engine, phase Phase, what string, call func(context.Context) ([]T, error), current func() bool, apply func([]T)) ([]T, error) {
	token, ok := e.session.Token()
	if !ok {
		return nil, shared.ErrNotAuthenticated
	}

	epoch := e.currentEpoch()
	e.begin(phase)
	e.emit(loadingUpdate(phase, what))

	result, err := call(ctx)
	e.finish(phase, epoch)

	live := func() bool { return e.epoch == epoch && (current == nil || current()) }

	if err != nil {
		e.mu.Lock()
		superseded := !live()
		e.mu.Unlock()
		if superseded && !shared.IsAuthError(err) {
			e.logger.Debug("dropping superseded failure", "phase", phase, "what", what, "err", err)
			return nil, fmt.Errorf("%s: %w", what, ErrStale)
		}
		e.fail(ctx, token, phase, err)
		return nil, err
	}

	e.mu.Lock()
	if !live() {
		e.mu.Unlock()
		e.logger.Debug("dropping stale response", "phase", phase, "what", what)
		return nil, fmt.Errorf("%s: %w", what, ErrStale)
	}
	if apply != nil {
		apply(result)
	}
	e.lastErr = nil
	e.mu.Unlock()

	e.emit(loadedUpdate(phase, what, len(result)))
	return result, nil
}

// succeed clears the last reported failure.
func (e *Engine) succeed() {
	e.mu.Lock()
	e.lastErr = nil
	e.mu.Unlock()
}

// FetchRecommendations loads recommendations in server order.
func (e *Engine) FetchRecommendations(ctx context.Context) ([]models.Movie, error) {
	return e.fetchRecommendations(ctx, PhaseInitial)
}

// Refresh reloads recommendations without reporting initial-load progress.
func (e *Engine) Refresh(ctx context.Context) error {
	_, err := e.fetchRecommendations(ctx, PhaseBackground)
	return err
}

func (e *Engine) fetchRecommendations(ctx context.Context, phase Phase) ([]models.Movie, error) {
	return fetch(ctx, e, phase, "recommendations",
		func(ctx context.Context) ([]models.Movie, error) {
			movies, err := e.api.Recommendations(ctx)
			if err == nil {
				e.cacheMovies(ctx, movies)
			}
			return movies, err
		},
		nil,
		func(movies []models.Movie) {
			e.recommendations = movies
		})
}

// FetchUserRatings loads the user's ratings into a movie id to score mapping.
func (e *Engine) FetchUserRatings(ctx context.Context) (models.Ratings, error) {
	var ratings models.Ratings
	_, err := fetch(ctx, e, PhaseInitial, "ratings", e.api.Ratings, nil, func(list []models.Rating) {
		ratings = models.RatingsFrom(list)
		e.ratings = ratings.Clone()
	})
	if err != nil {
		return nil, err
	}
	return ratings, nil
}

// FetchWatchlist loads the watchlist and replaces the list and id set together.
func (e *Engine) FetchWatchlist(ctx context.Context) ([]models.WatchlistEntry, error) {
	return fetch(ctx, e, PhaseInitial, "watchlist",
		func(ctx context.Context) ([]models.WatchlistEntry, error) {
			entries, err := e.api.Watchlist(ctx)
			if err == nil {
				movies := make([]models.Movie, 0, len(entries))
				for _, entry := range entries {
					movies = append(movies, entry.Movie)
				}
				e.cacheMovies(ctx, movies)
			}
			return entries, err
		},
		nil,
		func(entries []models.WatchlistEntry) {
			e.watchlist = slices.Clone(entries)
			e.watchlistIDs = idSet(entries)
		})
}

// FetchMoviesBy looks up movies by at most one of search or genre.
//
// Results land in the slot for the filter that is set and supersede any in-flight query on that channel.
// A query with neither filter returns the catalog without storing it.
func (e *Engine) FetchMoviesBy(ctx context.Context, q models.MovieQuery) ([]models.Movie, error) {
	q.Search = strings.TrimSpace(q.Search)
	q.Genre = strings.TrimSpace(q.Genre)
	if q.Search != "" && q.Genre != "" {
		return nil, fmt.Errorf("%w: search and genre are mutually exclusive", shared.ErrInvalidArgument)
	}

	switch {
	case q.Search != "":
		return e.query(ctx, searchChannel, e.nextSeq(searchChannel), q)
	case q.Genre != "":
		return e.query(ctx, genreChannel, e.nextSeq(genreChannel), q)
	default:
		return e.query(ctx, "", 0, q)
	}
}

func (e *Engine) nextSeq(channel string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq[channel]++
	return e.seq[channel]
}

func (e *Engine) query(ctx context.Context, channel string, seq uint64, q models.MovieQuery) ([]models.Movie, error) {
	if q.Limit <= 0 {
		q.Limit = e.limit
	}
	phase := PhaseSearch
	if channel == genreChannel {
		phase = PhaseGenre
	}

	return fetch(ctx, e, phase, "movies",
		func(ctx context.Context) ([]models.Movie, error) {
			movies, err := e.api.Movies(ctx, q)
			if err == nil {
				e.cacheMovies(ctx, movies)
			}
			return movies, err
		},
		func() bool { return channel == "" || e.seq[channel] == seq },
		func(movies []models.Movie) {
			switch channel {
			case searchChannel:
				e.searchResults = movies
			case genreChannel:
				e.genreResults = movies
			}
		})
}

// FetchMovie loads one movie by id. When the backend is unreachable the local cache answers
// instead, and cached reports that it did.
func (e *Engine) FetchMovie(ctx context.Context, movieID int) (movie *models.Movie, cached bool, err error) {
	if movieID <= 0 {
		return nil, false, fmt.Errorf("%w: movie id %d", shared.ErrInvalidArgument, movieID)
	}

	movies, err := fetch(ctx, e, PhaseInitial, "movie",
		func(ctx context.Context) ([]models.Movie, error) {
			found, err := e.api.Movie(ctx, movieID)
			if err == nil {
				e.cacheMovies(ctx, []models.Movie{*found})
				return []models.Movie{*found}, nil
			}
			if !shared.IsRetryable(err) {
				return nil, err
			}

			lookup, ok := e.cache.(MovieLookup)
			if !ok {
				return nil, err
			}
			stored, lookupErr := lookup.LookupMovie(ctx, movieID)
			if lookupErr != nil {
				e.logger.Debug("movie not cached", "movie_id", movieID, "err", lookupErr)
				return nil, err
			}
			e.logger.Info("backend unreachable, using cached movie", "movie_id", movieID, "err", err)
			cached = true
			return []models.Movie{*stored}, nil
		}, nil, nil)
	if err != nil {
		return nil, false, err
	}
	return &movies[0], cached, nil
}

// LoadResult holds the outcome of each collection loaded by [Engine.LoadAll].
type LoadResult struct {
	Profile         error
	Recommendations error
	Ratings         error
	Watchlist       error
}

// Err joins every failure, or returns nil when all loads succeeded.
func (r LoadResult) Err() error {
	return errors.Join(r.Profile, r.Recommendations, r.Ratings, r.Watchlist)
}

// LoadAll validates the profile and loads recommendations, ratings and the watchlist concurrently.
//
// Each result is applied as soon as it arrives; none depends on another.
func (e *Engine) LoadAll(ctx context.Context) LoadResult {
	var (
		result LoadResult
		wg     sync.WaitGroup
		done   atomic.Int32
	)
	const total = 4

	if _, ok := e.session.Token(); !ok {
		err := shared.ErrNotAuthenticated
		return LoadResult{Profile: err, Recommendations: err, Ratings: err, Watchlist: err}
	}

	steps := []struct {
		what string
		out  *error
		run  func(context.Context) error
	}{
		{"profile", &result.Profile, func(ctx context.Context) error {
			_, err := e.session.Validate(ctx)
			return err
		}},
		{"recommendations", &result.Recommendations, func(ctx context.Context) error {
			_, err := e.FetchRecommendations(ctx)
			return err
		}},
		{"ratings", &result.Ratings, func(ctx context.Context) error {
			_, err := e.FetchUserRatings(ctx)
			return err
		}},
		{"watchlist", &result.Watchlist, func(ctx context.Context) error {
			_, err := e.FetchWatchlist(ctx)
			return err
		}},
	}

	for _, step := range steps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := step.run(ctx)
			*step.out = err
			e.emit(loadStepUpdate(int(done.Add(1)), total, step.what, err))
		}()
	}
	wg.Wait()

	if err := result.Err(); err != nil {
		e.logger.Warn("initial load incomplete", "err", err)
	} else {
		e.logger.Debug("initial load complete")
	}
	return result
}

// setInput stores one filter, clears the other and invalidates in-flight queries on both channels.
func (e *Engine) setInput(channel, value string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq[searchChannel]++
	e.seq[genreChannel]++

	blank := strings.TrimSpace(value) == ""
	if channel == searchChannel {
		e.search = value
		e.genre = ""
		e.genreResults = nil
		if blank {
			e.searchResults = nil
		}
	} else {
		e.genre = value
		e.search = ""
		e.searchResults = nil
		if blank {
			e.genreResults = nil
		}
	}
	return e.seq[channel]
}

func (e *Engine) schedule(channel, value string) {
	other := genreChannel
	if channel == genreChannel {
		other = searchChannel
	}
	e.debounce.Cancel(other)

	seq := e.setInput(channel, value)
	q := strings.TrimSpace(value)
	if q == "" {
		e.debounce.Cancel(channel)
		return
	}

	query := models.MovieQuery{Search: q}
	if channel == genreChannel {
		query = models.MovieQuery{Genre: q}
	}

	e.debounce.Trigger(channel, func() {
		e.goBackground(func(ctx context.Context) {
			e.query(ctx, channel, seq, query)
		})
	})
}

// SetSearch updates the search text immediately, clears any genre and schedules a debounced search.
func (e *Engine) SetSearch(text string) { e.schedule(searchChannel, text) }

// SetGenre selects a genre immediately, clears the search text and schedules a debounced fetch.
func (e *Engine) SetGenre(genre string) { e.schedule(genreChannel, genre) }

// ClearFilters returns to the recommended view.
func (e *Engine) ClearFilters() {
	e.debounce.Cancel(searchChannel)
	e.debounce.Cancel(genreChannel)
	e.setInput(searchChannel, "")
}

// ApplySearch sets the search text and fetches without debouncing.
func (e *Engine) ApplySearch(ctx context.Context, text string) (View, error) {
	return e.ApplyQuery(ctx, models.MovieQuery{Search: text})
}

// ApplyGenre selects a genre and fetches without debouncing.
func (e *Engine) ApplyGenre(ctx context.Context, genre string) (View, error) {
	return e.ApplyQuery(ctx, models.MovieQuery{Genre: genre})
}

// ApplyQuery sets whichever of search or genre q carries and fetches that page without debouncing.
// A query with neither filter clears both and returns the recommended view.
func (e *Engine) ApplyQuery(ctx context.Context, q models.MovieQuery) (View, error) {
	if strings.TrimSpace(q.Search) != "" && strings.TrimSpace(q.Genre) != "" {
		return e.View(), fmt.Errorf("%w: search and genre are mutually exclusive", shared.ErrInvalidArgument)
	}
	if q.Skip < 0 {
		return e.View(), fmt.Errorf("%w: skip must not be negative", shared.ErrInvalidArgument)
	}

	e.debounce.Cancel(searchChannel)
	e.debounce.Cancel(genreChannel)

	channel, value := searchChannel, q.Search
	if strings.TrimSpace(q.Genre) != "" {
		channel, value = genreChannel, q.Genre
	}

	seq := e.setInput(channel, value)
	if strings.TrimSpace(value) == "" {
		return e.View(), nil
	}

	q.Search, q.Genre = strings.TrimSpace(q.Search), strings.TrimSpace(q.Genre)
	if _, err := e.query(ctx, channel, seq, q); err != nil {
		return e.View(), err
	}
	return e.View(), nil
}

// Model is a point-in-time copy of the engine state, safe to read without locking.
type Model struct {
	User          models.User
	Authenticated bool

	Search          string
	Genre           string
	Recommendations []models.Movie
	SearchResults   []models.Movie
	GenreResults    []models.Movie
	Ratings         models.Ratings
	Watchlist       []models.WatchlistEntry
	WatchlistIDs    map[int]struct{}

	Loading map[Phase]bool
	Err     error
}

// View resolves the collection to display.
func (m Model) View() View {
	return ResolveView(m.Search, m.Genre, m.Recommendations, m.SearchResults, m.GenreResults)
}

// InWatchlist reports whether movieID is on the watchlist.
func (m Model) InWatchlist(movieID int) bool {
	_, ok := m.WatchlistIDs[movieID]
	return ok
}

// Rating returns the user's score for movieID.
func (m Model) Rating(movieID int) (float64, bool) {
	score, ok := m.Ratings[movieID]
	return score, ok
}

// IsLoading reports whether an operation in phase is in flight.
func (m Model) IsLoading(phase Phase) bool { return m.Loading[phase] }

// Model returns a snapshot of the current state.
func (e *Engine) Model() Model {
	user, _ := e.session.User()
	_, authenticated := e.session.Token()

	e.mu.Lock()
	defer e.mu.Unlock()

	loading := make(map[Phase]bool, len(e.loading))
	for phase, n := range e.loading {
		if n > 0 {
			loading[phase] = true
		}
	}

	return Model{
		User:            user,
		Authenticated:   authenticated,
		Search:          e.search,
		Genre:           e.genre,
		Recommendations: slices.Clone(e.recommendations),
		SearchResults:   slices.Clone(e.searchResults),
		GenreResults:    slices.Clone(e.genreResults),
		Ratings:         e.ratings.Clone(),
		Watchlist:       slices.Clone(e.watchlist),
		WatchlistIDs:    maps.Clone(e.watchlistIDs),
		Loading:         loading,
		Err:             e.lastErr,
	}
}

// View resolves the collection to display from the current state.
func (e *Engine) View() View { return e.Model().View() }

func idSet(entries []models.WatchlistEntry) map[int]struct{} {
	ids := make(map[int]struct{}, len(entries))
	for _, entry := range entries {
		ids[entry.MovieID] = struct{}{}
	}
	return ids
}
