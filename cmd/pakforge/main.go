// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/pakforge/pakforge/cmd/pakforge/cli"
	"github.com/pakforge/pakforge/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		// Commands that report their own failures return an error
		// carrying only an exit code.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return rootCommand().Execute(args)
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:    "pakforge",
		Summary: "Inspect and edit records in packed game data",
		Description: `Inspect and edit records in packed game data.

Items are resolved through a namespace of archives and override
directories declared in the config file (--config or PAKFORGE_CONFIG).
Override files always win over archive entries; edits are committed as
override files and never rewrite an archive in place.`,
		Examples: []cli.Example{
			{Description: "List the items under models/", Command: "pakforge ls models/"},
			{Description: "Decode a record as editable text", Command: "pakforge decode --type ship models/ship.rec"},
			{Description: "Commit an edited text file as an override", Command: "pakforge commit models/ship.rec ship.yaml"},
		},
		Subcommands: []*cli.Command{
			lsCommand(),
			whichCommand(),
			catCommand(),
			decodeCommand(),
			encodeCommand(),
			commitCommand(),
			diffCommand(),
			packCommand(),
			unpackCommand(),
			verifyCommand(),
			mountCommand(),
			schemaCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Fprintf(stdout, "pakforge %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
