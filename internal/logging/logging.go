// Package logging sets up the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options captures logger configuration.
type Options struct {
	// Verbose lowers the level to debug.
	Verbose bool

	// Writer defaults to stderr, keeping stdout free for the TUI and
	// the run summary.
	Writer io.Writer
}

// New builds a text-handler slog logger per the options.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
