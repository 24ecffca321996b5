package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	"github.com/desertthunder/marquee/internal/models"
)

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up        key.Binding
	down      key.Binding
	search    key.Binding
	genre     key.Binding
	clear     key.Binding
	rate      key.Binding
	watchlist key.Binding
	toggle    key.Binding
	refresh   key.Binding
	logout    key.Binding
	submit    key.Binding
	next      key.Binding
	back      key.Binding
	quit      key.Binding

	// scores maps each rate key to the score it submits.
	scores map[string]float64
}

// scoreKeys assigns the digit keys 1-9 to the scale's valid scores in ascending order.
func scoreKeys(scale models.ScoreScale) ([]string, map[string]float64) {
	values := scale.Values()
	if len(values) > 9 {
		values = values[:9]
	}
	keys := make([]string, 0, len(values))
	scores := make(map[string]float64, len(values))
	for i, v := range values {
		k := strconv.Itoa(i + 1)
		keys = append(keys, k)
		scores[k] = v
	}
	return keys, scores
}

func newKeyMap(scale models.ScoreScale) keyMap {
	rateKeys, scores := scoreKeys(scale)
	rateHelp := "rate"
	if n := len(rateKeys); n > 0 {
		rateHelp = fmt.Sprintf("rate %g-%g", scores["1"], scores[rateKeys[n-1]])
	}

	return keyMap{
		scores: scores,
		up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		genre:     key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "next genre")),
		clear:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear filters")),
		rate:      key.NewBinding(key.WithKeys(rateKeys...), key.WithHelp(fmt.Sprintf("1-%d", len(rateKeys)), rateHelp)),
		watchlist: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "watchlist")),
		toggle:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "save/unsave")),
		refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		logout:    key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "log out")),
		submit:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
		next:      key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "next field")),
		back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.search, k.rate, k.toggle, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.search, k.genre, k.clear},
		{k.rate, k.toggle, k.watchlist},
		{k.refresh, k.logout, k.quit},
	}
}
