package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// exitInterrupted is the conventional status for death by SIGINT.
const exitInterrupted = 130

// shutdownContext derives a context that is canceled by the first SIGINT or
// SIGTERM. A chunked upload in flight sees the cancellation and deletes its
// upload session. A second signal exits immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	return watchSignals(parent, logger, os.Exit)
}

func watchSignals(parent context.Context, logger *slog.Logger, exit func(int)) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)

		var sig os.Signal

		select {
		case sig = <-sigs:
		case <-ctx.Done():
			return
		}

		logger.Warn("interrupted, canceling in-flight requests", slog.String("signal", sig.String()))
		cancel()

		select {
		case sig = <-sigs:
		case <-parent.Done():
			return
		}

		logger.Error("second signal, exiting without cleanup", slog.String("signal", sig.String()))
		exit(exitInterrupted)
	}()

	return ctx
}
