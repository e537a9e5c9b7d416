// Package logging provides the process-wide structured logger.
package logging

import (
	"log/slog"
	"os"
)

// New creates a JSON slog logger writing to stdout.
func New() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}
