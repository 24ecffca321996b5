package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/shared"
	"github.com/desertthunder/marquee/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LoginView ViewState = iota
	BrowseView
	WatchlistView
)

// Genres is the cycle the genre key steps through.
var Genres = []string{"Action", "Adventure", "Animation", "Comedy", "Crime", "Drama", "Sci-Fi", "Thriller"}

// Session is the part of the session store the TUI drives.
type Session interface {
	Login(ctx context.Context, email, password string) (*models.User, error)
	Logout(ctx context.Context) error
	IsAuthenticated() bool
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	engine   *tasks.Engine
	session  Session
	updates  <-chan tasks.Update
	width    int
	height   int
	email    textinput.Model
	password textinput.Model
	search   textinput.Model
	genre    int
	movies   list.Model
	saved    list.Model
	spinner  spinner.Model
	snapshot tasks.Model
	status   string
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a new TUI model. updates must be the channel passed to the engine as
// [tasks.EngineOpts.Updates]; it may be nil.
func NewModel(ctx context.Context, engine *tasks.Engine, sess Session, updates <-chan tasks.Update) *Model {
	email := textinput.New()
	email.Placeholder = "email"
	email.Prompt = "Email:    "
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword

	search := textinput.New()
	search.Placeholder = "search titles"
	search.Prompt = "/ "

	movies := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	movies.Title = tasks.RecommendedTitle
	movies.SetFilteringEnabled(false)
	movies.SetShowHelp(false)

	saved := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	saved.Title = "Watchlist"
	saved.SetFilteringEnabled(false)
	saved.SetShowHelp(false)

	view := LoginView
	if sess.IsAuthenticated() {
		view = BrowseView
	}

	return &Model{
		ctx:      ctx,
		view:     view,
		engine:   engine,
		session:  sess,
		updates:  updates,
		email:    email,
		password: password,
		search:   search,
		genre:    -1,
		movies:   movies,
		saved:    saved,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:     help.New(),
		keys:     newKeyMap(engine.Scale()),
	}
}

// Init loads the session's collections when already signed in, and starts listening for engine updates.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForUpdate(), m.spinner.Tick}
	if m.view == LoginView {
		cmds = append(cmds, textinput.Blink)
	} else {
		cmds = append(cmds, m.load())
	}
	return tea.Batch(cmds...)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.movies.SetSize(msg.Width-4, msg.Height-10)
		m.saved.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case LoginView:
			return m.handleLoginKeys(msg)
		case BrowseView:
			return m.handleBrowseKeys(msg)
		case WatchlistView:
			return m.handleWatchlistKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgEngineUpdate:
		update := msg.data.(tasks.Update)
		m.status = update.Message
		if update.Phase == tasks.PhaseSession {
			m.toLogin(update.Err)
		} else if update.Err != nil {
			m.err = update.Err
		}
		m.refresh()
		return m, m.waitForUpdate()

	case MsgLoaded:
		result := msg.data.(tasks.LoadResult)
		if err := result.Err(); err != nil {
			m.err = firstError(err)
		}
		m.refresh()
		return m, nil

	case MsgLoggedIn:
		data := msg.data.(struct {
			user *models.User
			err  error
		})
		switch {
		case errors.Is(data.err, shared.ErrProfileUnavailable):
			m.err = data.err
			m.status = "Signed in"
		case data.err != nil:
			m.err = data.err
			return m, nil
		default:
			m.err = nil
			m.status = fmt.Sprintf("Signed in as %s", data.user.Username)
		}
		m.view = BrowseView
		m.password.SetValue("")
		return m, m.load()

	case MsgLoggedOut:
		if err, _ := msg.data.(error); err != nil {
			m.err = err
		}
		m.toLogin(nil)
		m.refresh()
		return m, textinput.Blink

	case MsgMutated:
		if err, _ := msg.data.(error); err != nil {
			m.err = err
		}
		m.refresh()
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case LoginView:
		return m.renderLogin()
	case BrowseView:
		return m.renderBrowse()
	case WatchlistView:
		return m.renderWatchlist()
	default:
		return ""
	}
}

func (m *Model) toLogin(cause error) {
	m.view = LoginView
	m.search.SetValue("")
	m.search.Blur()
	m.genre = -1
	m.email.Focus()
	m.password.Blur()
	if cause != nil {
		m.err = cause
	}
}

func (m *Model) handleLoginKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c" || key.Matches(msg, m.keys.back):
		return m, tea.Quit
	case key.Matches(msg, m.keys.next):
		if m.email.Focused() {
			m.email.Blur()
			return m, m.password.Focus()
		}
		m.password.Blur()
		return m, m.email.Focus()
	case key.Matches(msg, m.keys.submit):
		if m.email.Focused() {
			m.email.Blur()
			return m, m.password.Focus()
		}
		m.err = nil
		m.status = "Signing in..."
		return m, m.login(strings.TrimSpace(m.email.Value()), m.password.Value())
	}

	var cmd tea.Cmd
	if m.email.Focused() {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleBrowseKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.search.Focused() {
		return m.handleSearchKeys(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.search):
		m.genre = -1
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.genre):
		m.genre = (m.genre + 1) % len(Genres)
		m.search.SetValue("")
		m.engine.SetGenre(Genres[m.genre])
		m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.clear), key.Matches(msg, m.keys.back):
		m.genre = -1
		m.search.SetValue("")
		m.engine.ClearFilters()
		m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.rate):
		if item, ok := m.movies.SelectedItem().(movieItem); ok {
			score := m.keys.scores[msg.String()]
			return m, m.rate(item.movie.ID, score)
		}
		return m, nil
	case key.Matches(msg, m.keys.toggle):
		if item, ok := m.movies.SelectedItem().(movieItem); ok {
			return m, m.toggle(item.movie.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.watchlist):
		m.view = WatchlistView
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		m.err = nil
		return m, m.load()
	case key.Matches(msg, m.keys.logout):
		return m, m.logout()
	}

	var cmd tea.Cmd
	m.movies, cmd = m.movies.Update(msg)
	return m, cmd
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter", "esc":
		m.search.Blur()
		return m, nil
	}

	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if after := m.search.Value(); after != before {
		m.engine.SetSearch(after)
		m.refresh()
	}
	return m, cmd
}

func (m *Model) handleWatchlistKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.watchlist), key.Matches(msg, m.keys.back):
		m.view = BrowseView
		return m, nil
	case key.Matches(msg, m.keys.toggle):
		if item, ok := m.saved.SelectedItem().(movieItem); ok {
			return m, m.remove(item.movie.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.rate):
		if item, ok := m.saved.SelectedItem().(movieItem); ok {
			score := m.keys.scores[msg.String()]
			return m, m.rate(item.movie.ID, score)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.saved, cmd = m.saved.Update(msg)
	return m, cmd
}

// refresh rebuilds both lists from a fresh engine snapshot.
func (m *Model) refresh() {
	m.snapshot = m.engine.Model()

	v := m.snapshot.View()
	m.movies.Title = v.Title
	m.movies.SetItems(newMovieItems(v.Movies, m.snapshot.Ratings, m.snapshot.WatchlistIDs))

	movies := make([]models.Movie, len(m.snapshot.Watchlist))
	for i, entry := range m.snapshot.Watchlist {
		movies[i] = entry.Movie
		if movies[i].ID == 0 {
			movies[i].ID = entry.MovieID
		}
	}
	m.saved.SetItems(newMovieItems(movies, m.snapshot.Ratings, m.snapshot.WatchlistIDs))
}

func (m *Model) loading() bool {
	for _, busy := range m.snapshot.Loading {
		if busy {
			return true
		}
	}
	return false
}

func (m *Model) waitForUpdate() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case update, ok := <-m.updates:
			if !ok {
				return nil
			}
			return engineUpdateMsg(update)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) load() tea.Cmd {
	return func() tea.Msg {
		return loadedMsg(m.engine.LoadAll(m.ctx))
	}
}

func (m *Model) login(email, password string) tea.Cmd {
	return func() tea.Msg {
		return loggedInMsg(m.session.Login(m.ctx, email, password))
	}
}

func (m *Model) logout() tea.Cmd {
	return func() tea.Msg {
		return loggedOutMsg(m.session.Logout(m.ctx))
	}
}

func (m *Model) rate(movieID int, score float64) tea.Cmd {
	return func() tea.Msg {
		return mutatedMsg(m.engine.Rate(m.ctx, movieID, score))
	}
}

func (m *Model) toggle(movieID int) tea.Cmd {
	return func() tea.Msg {
		_, err := m.engine.ToggleWatchlist(m.ctx, movieID)
		return mutatedMsg(err)
	}
}

func (m *Model) remove(movieID int) tea.Cmd {
	return func() tea.Msg {
		return mutatedMsg(m.engine.RemoveFromWatchlist(m.ctx, movieID))
	}
}

func firstError(err error) error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		if errs := joined.Unwrap(); len(errs) > 0 {
			return errs[0]
		}
	}
	return err
}

func (m *Model) renderStatus() string {
	var b strings.Builder
	if m.err != nil {
		b.WriteString(styles.err.Render(shared.UserMessage(m.err)))
	} else if m.status != "" {
		b.WriteString(styles.muted.Render(m.status))
	}
	if m.loading() {
		b.WriteString(" " + m.spinner.View())
	}
	return b.String()
}

func (m *Model) renderLogin() string {
	title := styles.title.Render("Sign in")
	form := fmt.Sprintf("%s\n%s", m.email.View(), m.password.View())

	helpKeys := []key.Binding{m.keys.next, m.keys.submit, m.keys.back}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, form, m.renderStatus(), helpView)
}

func (m *Model) renderBrowse() string {
	var filter string
	switch {
	case m.search.Focused() || m.search.Value() != "":
		filter = styles.filter.Render(m.search.View())
	case m.genre >= 0:
		filter = styles.filter.Render("Genre: " + Genres[m.genre])
	default:
		filter = styles.muted.Render("press / to search, g to browse genres")
	}

	var helpView string
	if m.search.Focused() {
		helpView = m.help.ShortHelpView([]key.Binding{m.keys.submit, m.keys.back})
	} else {
		helpView = m.help.ShortHelpView([]key.Binding{
			m.keys.search, m.keys.genre, m.keys.clear, m.keys.rate, m.keys.toggle, m.keys.watchlist, m.keys.logout, m.keys.quit,
		})
	}

	return fmt.Sprintf("%s\n%s\n%s\n\n%s", filter, m.movies.View(), m.renderStatus(), helpView)
}

func (m *Model) renderWatchlist() string {
	body := m.saved.View()
	if len(m.snapshot.Watchlist) == 0 {
		body = styles.title.Render("Watchlist") + "\n" + styles.muted.Render("Nothing saved yet. Press w on a movie to save it.")
	}

	back := key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "back"))
	remove := key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "remove"))
	helpView := m.help.ShortHelpView([]key.Binding{back, remove, m.keys.rate, m.keys.quit})

	return fmt.Sprintf("%s\n%s\n\n%s", body, m.renderStatus(), helpView)
}

var _ tea.Model = (*Model)(nil)
