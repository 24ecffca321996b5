package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF5F87", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title  lipgloss.Style
	ok     lipgloss.Style
	err    lipgloss.Style
	star   lipgloss.Style
	muted  lipgloss.Style
	filter lipgloss.Style
}

func NewPalette(accent, ok, bad, star, muted string) *Palette {
	return &Palette{
		title:  NewBold(accent).MarginBottom(1),
		ok:     NewBold(ok),
		err:    NewBold(bad),
		star:   NewStyle(star),
		muted:  NewEm(muted),
		filter: NewStyle(accent).Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(muted)).Padding(0, 1),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
