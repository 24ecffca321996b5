package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/marquee/internal/shared"
	"github.com/desertthunder/marquee/internal/tasks"
	"github.com/desertthunder/marquee/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/marquee-tui.log"

// TUI launches the interactive movie browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.ApplyLogLevel(fileLogger, r.config.Log.Level)
	r.SetLogger(fileLogger)

	r.updates = make(chan tasks.Update, 64)
	if err := r.open(ctx); err != nil {
		return err
	}

	model := ui.NewModel(ctx, r.engine, r.session, r.updates)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
