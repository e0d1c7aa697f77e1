package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
)

func main() {
	// The configured logger does not exist until PersistentPreRunE.
	signalLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := shutdownContext(context.Background(), signalLogger)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		// exists already reported the answer on stdout.
		if errors.Is(err, errPathMissing) {
			os.Exit(1)
		}

		exitOnError(err)
	}
}
