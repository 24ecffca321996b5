package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgEngineUpdate MsgKind = iota
	MsgLoaded
	MsgLoggedIn
	MsgLoggedOut
	MsgMutated
)

// engineUpdateMsg is the constructor for [MsgEngineUpdate]
func engineUpdateMsg(update tasks.Update) Msg {
	return Msg{kind: MsgEngineUpdate, data: update}
}

// loadedMsg is the constructor for [MsgLoaded]
func loadedMsg(result tasks.LoadResult) Msg {
	return Msg{kind: MsgLoaded, data: result}
}

// loggedInMsg is the constructor for [MsgLoggedIn]
func loggedInMsg(user *models.User, err error) Msg {
	return Msg{
		kind: MsgLoggedIn,
		data: struct {
			user *models.User
			err  error
		}{user, err},
	}
}

// loggedOutMsg is the constructor for [MsgLoggedOut]
func loggedOutMsg(err error) Msg {
	return Msg{kind: MsgLoggedOut, data: err}
}

// mutatedMsg is the constructor for [MsgMutated]
func mutatedMsg(err error) Msg {
	return Msg{kind: MsgMutated, data: err}
}
