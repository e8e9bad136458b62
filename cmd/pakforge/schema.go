// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/pakforge/pakforge/cmd/pakforge/cli"
	"github.com/pakforge/pakforge/lib/codec"
	"github.com/pakforge/pakforge/lib/schema"
)

// schemaSource selects where schema commands load definitions from:
// explicit --dir flags, or the configured schemas section.
type schemaSource struct {
	cli.SessionFlags
	Dirs []string `json:"-" flag:"dir" desc:"definition directory (repeatable); overrides the config file"`
}

func (source *schemaSource) load() (*schema.Registry, error) {
	registry := schema.NewRegistry()
	dirs := source.Dirs
	if len(dirs) == 0 {
		cfg, err := source.LoadConfig()
		if err != nil {
			return nil, err
		}
		if cfg.Schemas.Bundle != "" {
			if err := registry.LoadFile(cfg.Schemas.Bundle); err != nil {
				return nil, err
			}
		}
		dirs = cfg.Schemas.Dirs
	}
	for _, dir := range dirs {
		if err := registry.LoadDir(dir); err != nil {
			return nil, err
		}
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return registry, nil
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:    "schema",
		Summary: "Inspect and compile record definitions",
		Subcommands: []*cli.Command{
			schemaListCommand(),
			schemaCompileCommand(),
			schemaDumpCommand(),
		},
	}
}

type schemaListParams struct {
	schemaSource
	cli.JSONOutput
}

// typeInfo is one registered type version in --json output.
type typeInfo struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Fields      int    `json:"fields"`
	Fingerprint string `json:"fingerprint"`
	Doc         string `json:"doc,omitempty"`
}

func schemaListCommand() *cli.Command {
	var params schemaListParams
	return &cli.Command{
		Name:    "list",
		Summary: "List registered record types",
		Description: `Load and validate every definition and list each type version with its
field count and fingerprint. The fingerprint changes whenever the
definition does, and is part of every decode cache key.`,
		Usage: "pakforge schema list [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: pakforge schema list [flags]")
			}
			registry, err := params.load()
			if err != nil {
				return err
			}

			var infos []typeInfo
			for _, definition := range registry.Types() {
				hash, err := definition.Fingerprint()
				if err != nil {
					return fmt.Errorf("fingerprinting %s: %w", definition.Key(), err)
				}
				infos = append(infos, typeInfo{
					Name:        definition.Name,
					Version:     definition.Version,
					Fields:      len(definition.Fields),
					Fingerprint: hash.Short(),
					Doc:         definition.Doc,
				})
			}
			if done, err := params.EmitJSON(infos); done {
				return err
			}
			tw := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "TYPE\tVERSION\tFIELDS\tFINGERPRINT\n")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", info.Name, info.Version, info.Fields, info.Fingerprint)
			}
			return tw.Flush()
		},
	}
}

type schemaCompileParams struct {
	schemaSource
}

func schemaCompileCommand() *cli.Command {
	var params schemaCompileParams
	return &cli.Command{
		Name:    "compile",
		Summary: "Compile definitions into a CBOR bundle",
		Description: `Load and validate every definition and write them as one deterministic
CBOR bundle. Equal definitions always produce identical bundles. Point
schemas.bundle at the result to skip parsing YAML on every run.`,
		Usage: "pakforge schema compile [flags] <out.cbor>",
		Examples: []cli.Example{
			{Description: "Compile a definition tree", Command: "pakforge schema compile --dir schemas/ schemas.cbor"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("compile", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: pakforge schema compile [flags] <out.cbor>")
			}
			registry, err := params.load()
			if err != nil {
				return err
			}
			if err := registry.WriteBundle(args[0]); err != nil {
				return err
			}
			hash, err := registry.Fingerprint()
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "compiled %d types into %s (fingerprint %s)\n", registry.Len(), args[0], hash.Short())
			return nil
		},
	}
}

type schemaDumpParams struct {
	cli.JSONOutput
}

func schemaDumpCommand() *cli.Command {
	var params schemaDumpParams
	return &cli.Command{
		Name:    "dump",
		Summary: "Print a compiled bundle in CBOR diagnostic notation",
		Description: `Print the raw contents of a CBOR bundle written by schema compile,
without loading it into a registry. The default output is CBOR
diagnostic notation (RFC 8949 section 8); --json prints the decoded
value as JSON instead.`,
		Usage: "pakforge schema dump [flags] <bundle.cbor>",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("dump", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: pakforge schema dump [flags] <bundle.cbor>")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if params.OutputJSON {
				var value any
				if err := codec.Unmarshal(data, &value); err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return cli.WriteJSON(stdout, value)
			}
			notation, err := codec.Diagnose(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintln(stdout, notation)
			return nil
		},
	}
}
