package main

import (
	"context"
	"errors"
	"time"

	"github.com/desertthunder/marquee/internal/shared"
	"github.com/urfave/cli/v3"
)

// statusReport is the --json shape of "auth status".
type statusReport struct {
	State         string     `json:"state"`
	Authenticated bool       `json:"authenticated"`
	UserID        int        `json:"user_id,omitempty"`
	Username      string     `json:"username,omitempty"`
	Email         string     `json:"email,omitempty"`
	SignedInAt    *time.Time `json:"signed_in_at,omitempty"`
	Expiry        *time.Time `json:"expiry,omitempty"`
	Expired       bool       `json:"expired"`
	Error         string     `json:"error,omitempty"`
}

// savedAt is implemented by token stores that record when the token was written.
type savedAt interface {
	UpdatedAt(ctx context.Context) (time.Time, error)
}

// AuthLogin exchanges email and password for a token and stores it for later commands.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	user, err := r.session.Login(ctx, cmd.String("email"), cmd.String("password"))
	if errors.Is(err, shared.ErrProfileUnavailable) {
		r.logger.Warn("signed in without a profile", "err", err)
		return r.writePlain("✓ Logged in (profile unavailable: %s)\n", shared.UserMessage(err))
	}
	if err != nil {
		return err
	}

	r.logger.Info("authentication successful", "user_id", user.ID)
	return r.writePlain("✓ Logged in as %s (%s)\n", user.Username, user.Email)
}

// AuthRegister creates an account. It does not sign in.
func (r *Runner) AuthRegister(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	user, err := r.session.Register(ctx, cmd.String("username"), cmd.String("email"), cmd.String("password"))
	if err != nil {
		return err
	}

	r.writePlain("✓ Registered %s (%s)\n", user.Username, user.Email)
	return r.writePlain("Run 'marquee auth login --email %s --password ...' to sign in.\n", user.Email)
}

// AuthLogout clears the stored token.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	if !r.session.IsAuthenticated() {
		return r.writePlain("Not logged in\n")
	}
	if err := r.session.Logout(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Logged out\n")
}

// AuthStatus validates the stored token against the backend and reports the session state.
//
// A rejected token ends the session; that is reported, not returned as an error.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	report := statusReport{}
	if r.session.IsAuthenticated() {
		claims := r.session.Claims()
		if !claims.Expiry.IsZero() {
			expiry := claims.Expiry
			report.Expiry = &expiry
			report.Expired = claims.Expired(time.Now())
		}
		if ts, ok := r.tokens.(savedAt); ok {
			if at, err := ts.UpdatedAt(ctx); err == nil {
				report.SignedInAt = &at
			}
		}

		if user, err := r.session.Validate(ctx); err != nil {
			report.Error = shared.UserMessage(err)
		} else {
			report.UserID, report.Username, report.Email = user.ID, user.Username, user.Email
		}
	}
	report.State = r.session.State().String()
	report.Authenticated = r.session.IsAuthenticated()

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}

	r.writePlain("Session: %s\n", report.State)
	switch {
	case report.UserID > 0:
		r.writePlain("User: %s (%s, id %d)\n", report.Username, report.Email, report.UserID)
	case report.Authenticated:
		r.writePlain("Authentication: token stored, profile unavailable\n")
	default:
		r.writePlain("Authentication: ✗ Not logged in\n")
	}
	if report.SignedInAt != nil {
		r.writePlain("Signed in: %s\n", report.SignedInAt.Local().Format(time.RFC1123))
	}
	if report.Expiry != nil {
		r.writePlain("Token expires: %s\n", report.Expiry.Local().Format(time.RFC1123))
	}
	if report.Error != "" {
		r.writePlain("Error: %s\n", report.Error)
	}
	return nil
}
