// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/pakforge/pakforge/cmd/pakforge/cli"
	"github.com/pakforge/pakforge/lib/itempath"
)

type verifyParams struct {
	cli.SessionFlags
	cli.JSONOutput
	Type string `json:"-" flag:"type,t" desc:"record type of the items (required)"`
}

// verifyResult is one failed item in --json output.
type verifyResult struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func verifyCommand() *cli.Command {
	var params verifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Check that records round-trip losslessly",
		Description: `Decode every item under prefix as --type and check that re-encoding
reproduces the stored bytes exactly and that the text projection parses
back to the same record. Items are checked in parallel, bounded by
decode.parallelism; one failing item never stops the others.

Failures are listed with the first differing byte region. Exits 1 when
any item fails.`,
		Usage: "pakforge verify [flags] --type <type> [prefix]",
		Examples: []cli.Example{
			{Description: "Verify every ship record", Command: "pakforge verify -t ship models/ships/"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("verify", &params) },
		Run: func(args []string) error {
			if len(args) > 1 || params.Type == "" {
				return fmt.Errorf("usage: pakforge verify [flags] --type <type> [prefix]")
			}
			var raw string
			if len(args) == 1 {
				raw = args[0]
			}
			prefix, err := itempath.ParsePrefix(raw)
			if err != nil {
				return err
			}

			ctx, cancel := cli.Context()
			defer cancel()
			s, err := params.Open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			paths := s.Namespace().List(prefix)
			failures := []verifyResult{}
			for _, result := range s.VerifyBatch(ctx, paths, params.Type) {
				if result.Err != nil {
					failures = append(failures, verifyResult{Path: result.Path.String(), Error: result.Err.Error()})
				}
			}

			if done, err := params.EmitJSON(failures); done {
				if err == nil && len(failures) > 0 {
					err = &cli.ExitError{Code: 1}
				}
				return err
			}
			for _, failure := range failures {
				fmt.Fprintf(stdout, "FAIL %s\n", failure.Error)
			}
			fmt.Fprintf(os.Stderr, "%d of %d items verified\n", len(paths)-len(failures), len(paths))
			if len(failures) > 0 {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
