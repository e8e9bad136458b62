// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"os"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/google/renameio"

	"github.com/pakforge/pakforge/cmd/pakforge/cli"
)

// stdout is where commands write their results. Tests replace it.
var stdout io.Writer = os.Stdout

// writeText writes a text projection to output, or to stdout when
// output is empty. On a terminal the YAML is highlighted unless plain
// is set.
func writeText(text []byte, output string, plain bool) error {
	if output != "" {
		return renameio.WriteFile(output, text, 0o644)
	}
	if file, ok := stdout.(*os.File); ok && !plain && cli.IsTerminal(file) {
		if err := quick.Highlight(file, string(text), "yaml", "terminal256", "monokai"); err == nil {
			return nil
		}
	}
	_, err := stdout.Write(text)
	return err
}
