package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/marquee/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := NewRunner(RunnerOpts{Logger: logger})
	err := runner.app().Run(ctx, os.Args)
	if cerr := runner.Close(); cerr != nil {
		logger.Warn("failed to close runner", "err", cerr)
	}
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, shared.ErrSessionExpired), errors.Is(err, shared.ErrNotAuthenticated):
		logger.Error(shared.UserMessage(err))
	case shared.IsRetryable(err):
		logger.Error(shared.UserMessage(err), "err", err)
	default:
		logger.Errorf("application error: %v", err)
	}
	stop()
	os.Exit(1)
}
