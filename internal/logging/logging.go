// Package logging sets up the sensor's structured logger.
package logging

import (
	"log/slog"
	"os"
)

// New builds a JSON slog.Logger writing to stdout and installs it as the
// package-level default, the same setup the entry point wires up before
// anything else runs. debug lowers the level to slog.LevelDebug.
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
