// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pakforge/pakforge/lib/config"
	"github.com/pakforge/pakforge/lib/session"
)

// SessionFlags adds --config and --verbose to a params struct when
// embedded, for commands that work on the configured namespace.
type SessionFlags struct {
	ConfigPath string `json:"-" flag:"config" desc:"config file (default $PAKFORGE_CONFIG)"`
	Verbose    bool   `json:"-" flag:"verbose,v" desc:"log debug detail to stderr"`
}

// LoadConfig loads the file named by --config, or by PAKFORGE_CONFIG
// when the flag is empty.
func (f *SessionFlags) LoadConfig() (*config.Config, error) {
	if f.ConfigPath != "" {
		return config.LoadFile(f.ConfigPath)
	}
	return config.Load()
}

// Logger returns the command logger for these flags.
func (f *SessionFlags) Logger() *slog.Logger {
	return NewCommandLogger(f.Verbose)
}

// Open loads the configuration and opens a session over it. Sources
// that fail to open are logged as warnings by the session and skipped.
func (f *SessionFlags) Open(ctx context.Context) (*session.Session, error) {
	cfg, err := f.LoadConfig()
	if err != nil {
		return nil, err
	}
	return session.Open(ctx, cfg, f.Logger())
}

// Context returns a context cancelled on SIGINT or SIGTERM.
func Context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
