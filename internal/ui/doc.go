// Package ui implements an interactive terminal movie browser using bubbletea's Elm architecture.
//
// The TUI has three views:
//  1. [LoginView] : Sign in with email and password
//  2. [BrowseView] : Recommendations, search results or a genre, whichever the engine resolves
//  3. [WatchlistView] : Saved movies in the order they were added
//
// The (view) [Model] never owns movie data. Every render reads a snapshot from [tasks.Engine], and
// engine updates arrive on a channel that is drained one message at a time by waitForUpdate. Typing
// in the search box calls [tasks.Engine.SetSearch] on every keystroke; the engine debounces.
//
// Keyboard navigation uses vim-style bindings with contextual help displayed via charmbracelet/bubbles/help.
package ui
