package tasks

import (
	"fmt"

	"github.com/desertthunder/marquee/internal/shared"
)

// Update represents a state change or progress event emitted by the [Engine].
//
// Used to send real-time updates to the CLI or UI layer for display.
type Update struct {
	Phase   Phase  // Loading scope the update belongs to
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Err     error  // Set when the update reports a failure
	Data    any    // Optional phase-specific data for advanced UIs
}

// Phase scopes loading state so one operation never reports another's progress.
type Phase int

const (
	PhaseInitial Phase = iota
	PhaseBackground
	PhaseSearch
	PhaseGenre
	PhaseMutation
	PhaseSession
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseBackground:
		return "background"
	case PhaseSearch:
		return "search"
	case PhaseGenre:
		return "genre"
	case PhaseMutation:
		return "mutation"
	case PhaseSession:
		return "session"
	default:
		return ""
	}
}

func loadingUpdate(phase Phase, what string) Update {
	return Update{Phase: phase, Message: fmt.Sprintf("Loading %s...", what)}
}

func loadedUpdate(phase Phase, what string, n int) Update {
	return Update{Phase: phase, Message: fmt.Sprintf("Loaded %d %s", n, what), Data: n}
}

func loadStepUpdate(step, total int, what string, err error) Update {
	if err != nil {
		return Update{Phase: PhaseInitial, Step: step, Total: total, Message: fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, what, shared.UserMessage(err)), Err: err}
	}
	return Update{Phase: PhaseInitial, Step: step, Total: total, Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, what)}
}

func failedUpdate(phase Phase, err error) Update {
	return Update{Phase: phase, Message: shared.UserMessage(err), Err: err}
}

func sessionEndedUpdate(cause error) Update {
	if cause != nil {
		return Update{Phase: PhaseSession, Message: shared.UserMessage(cause), Err: cause}
	}
	return Update{Phase: PhaseSession, Message: "Signed out"}
}

func ratedUpdate(movieID int, score float64) Update {
	return Update{Phase: PhaseMutation, Message: fmt.Sprintf("Rated movie %d: %g", movieID, score), Data: movieID}
}

func watchlistUpdate(movieID int, added bool) Update {
	if added {
		return Update{Phase: PhaseMutation, Message: fmt.Sprintf("Added movie %d to watchlist", movieID), Data: movieID}
	}
	return Update{Phase: PhaseMutation, Message: fmt.Sprintf("Removed movie %d from watchlist", movieID), Data: movieID}
}
