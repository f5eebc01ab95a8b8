package main

import (
	"log/slog"
	"os"
)

// logger writes to STDERR. Only warnings are shown unless verbose is set.
func (rcc *rootCmdConfig) logger() *slog.Logger {
	level := slog.LevelWarn
	if rcc.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
