// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewCommandLogger returns the logger for CLI commands. On a terminal
// it writes text; otherwise JSON, so scripted runs get parseable
// logs. verbose lowers the level from warn to debug.
//
//	logger := cli.NewCommandLogger(params.Verbose).With("command", "pack")
func NewCommandLogger(verbose bool) *slog.Logger {
	return newLogger(os.Stderr, IsTerminal(os.Stderr), verbose)
}

func newLogger(w io.Writer, text, verbose bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelWarn}
	if verbose {
		options.Level = slog.LevelDebug
	}
	if text {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}
