package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/marquee/internal/server"
	"github.com/urfave/cli/v3"
)

// StubServe runs the in-memory backend until the context is cancelled.
func (r *Runner) StubServe(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Stub.Addr
	}

	stub := server.NewStub(server.StubOpts{
		Secret:   r.config.Stub.Secret,
		TokenTTL: r.config.Stub.TokenTTL.Duration,
		Logger:   r.logger,
		Empty:    cmd.Bool("empty"),
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           stub,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()

	r.logger.Info("stub backend listening", "addr", addr)
	if !cmd.Bool("empty") {
		r.writePlain("Seed account: %s / %s\n", server.SeedEmail, server.SeedPassword)
	}

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("stub server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	r.logger.Info("shutting down stub backend")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down stub server: %w", err)
	}
	return nil
}
