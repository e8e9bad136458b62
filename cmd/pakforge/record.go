// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/renameio"
	"github.com/spf13/pflag"

	"github.com/pakforge/pakforge/cmd/pakforge/cli"
	"github.com/pakforge/pakforge/lib/diff"
	"github.com/pakforge/pakforge/lib/itempath"
	"github.com/pakforge/pakforge/lib/record"
	"github.com/pakforge/pakforge/lib/session"
	"github.com/pakforge/pakforge/lib/textproj"
)

type decodeParams struct {
	cli.SessionFlags
	Type   string `flag:"type,t" desc:"record type to decode as (required)"`
	Output string `flag:"output,o" desc:"write the text to this file instead of stdout"`
	Plain  bool   `flag:"plain" desc:"never highlight terminal output"`
}

func decodeCommand() *cli.Command {
	var params decodeParams
	return &cli.Command{
		Name:    "decode",
		Summary: "Decode a record as editable text",
		Description: `Decode an item with the latest registered version of --type and print
its text projection. The text carries everything needed to rebuild the
exact bytes: unknown regions, bytes after string terminators and
non-canonical values all survive an edit-free round trip.

An unregistered type decodes as one opaque byte string.`,
		Usage: "pakforge decode [flags] --type <type> <path>",
		Examples: []cli.Example{
			{Description: "Decode into a file for editing", Command: "pakforge decode -t ship -o ship.yaml models/ship.rec"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("decode", &params) },
		Run: func(args []string) error {
			if len(args) != 1 || params.Type == "" {
				return fmt.Errorf("usage: pakforge decode [flags] --type <type> <path>")
			}
			path, err := itempath.Parse(args[0])
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

			node, err := s.Decode(ctx, path, params.Type)
			if err != nil {
				return err
			}
			text, err := s.ToText(node)
			if err != nil {
				return err
			}
			return writeText(text, params.Output, params.Plain)
		},
	}
}

type encodeParams struct {
	cli.SessionFlags
	Output string `flag:"output,o" desc:"file to write the encoded record to (required)"`
}

func encodeCommand() *cli.Command {
	var params encodeParams
	return &cli.Command{
		Name:    "encode",
		Summary: "Encode a text projection to record bytes",
		Description: `Parse a text projection and encode it with the registered schema for
its type. The output file is replaced atomically. Nothing in the
namespace changes; use commit to write an override.`,
		Usage: "pakforge encode [flags] --output <file> <text-file>",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("encode", &params) },
		Run: func(args []string) error {
			if len(args) != 1 || params.Output == "" {
				return fmt.Errorf("usage: pakforge encode [flags] --output <file> <text-file>")
			}
			node, err := textFromFile(args[0])
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

			data, err := s.Encode(node)
			if err != nil {
				return err
			}
			return renameio.WriteFile(params.Output, data, 0o644)
		},
	}
}

type commitParams struct {
	cli.SessionFlags
}

func commitCommand() *cli.Command {
	var params commitParams
	return &cli.Command{
		Name:    "commit",
		Summary: "Write an edited record as an override file",
		Description: `Parse an edited text projection, encode it and write the bytes as an
override for path in the highest-precedence override directory. With
decode.verify_on_commit set, the encoded bytes must survive a decode
and re-encode unchanged before anything is written.`,
		Usage: "pakforge commit [flags] <path> <text-file>",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("commit", &params) },
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: pakforge commit [flags] <path> <text-file>")
			}
			path, err := itempath.Parse(args[0])
			if err != nil {
				return err
			}
			text, err := os.ReadFile(args[1])
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

			file, err := s.CommitText(ctx, path, text)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "committed %s -> %s\n", path, file)
			return nil
		},
	}
}

type diffParams struct {
	cli.SessionFlags
	cli.JSONOutput
	Type  string `json:"-" flag:"type,t" desc:"compare decoded fields of this type instead of bytes"`
	Files bool   `json:"-" flag:"files" desc:"treat both arguments as local files"`
}

// diffReport is the --json output of diff.
type diffReport struct {
	Regions []regionJSON `json:"regions,omitempty"`
	Changes []changeJSON `json:"changes,omitempty"`
}

type regionJSON struct {
	Kind    string `json:"kind"`
	AOffset int    `json:"a_offset"`
	ALength int    `json:"a_length"`
	BOffset int    `json:"b_offset"`
	BLength int    `json:"b_length"`
}

type changeJSON struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
	Old  string `json:"old,omitempty"`
	New  string `json:"new,omitempty"`
}

func newDiffReport(regions []diff.Region, changes []diff.FieldChange) diffReport {
	var report diffReport
	for _, region := range regions {
		report.Regions = append(report.Regions, regionJSON{
			Kind:    region.Kind.String(),
			AOffset: region.AOffset,
			ALength: region.ALength,
			BOffset: region.BOffset,
			BLength: region.BLength,
		})
	}
	for _, change := range changes {
		entry := changeJSON{Path: change.Path, Kind: change.Kind.String()}
		if change.Old != nil {
			entry.Old = diff.Format(change.Old)
		}
		if change.New != nil {
			entry.New = diff.Format(change.New)
		}
		report.Changes = append(report.Changes, entry)
	}
	return report
}

func diffCommand() *cli.Command {
	var params diffParams
	return &cli.Command{
		Name:    "diff",
		Summary: "Compare two records",
		Description: `Compare two items, or two local files with --files. Without --type the
output lists the differing byte regions; with --type both sides are
decoded and the output lists changed, added and removed fields.

Exits 1 when the inputs differ, like diff(1).`,
		Usage: "pakforge diff [flags] <a> <b>",
		Examples: []cli.Example{
			{Description: "Compare an override against a saved copy", Command: "pakforge diff --files -t ship old.rec new.rec"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("diff", &params) },
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: pakforge diff [flags] <a> <b>")
			}

			ctx, cancel := cli.Context()
			defer cancel()
			s, err := params.Open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			sides := [2]*record.Node{}
			data := [2][]byte{}
			for i, arg := range args {
				data[i], sides[i], err = loadSide(ctx, s, arg, params.Type, params.Files)
				if err != nil {
					return err
				}
			}

			var regions []diff.Region
			var changes []diff.FieldChange
			if params.Type == "" {
				regions = diff.BytesWithCost(data[0], data[1], s.Config().Decode.MaxDiffCost)
			} else {
				changes = diff.Trees(sides[0], sides[1])
			}
			same := len(regions) == 0 && len(changes) == 0

			if done, err := params.EmitJSON(newDiffReport(regions, changes)); done {
				if err == nil && !same {
					err = &cli.ExitError{Code: 1}
				}
				return err
			}
			for _, region := range regions {
				fmt.Fprintln(stdout, region)
			}
			for _, change := range changes {
				fmt.Fprintln(stdout, change)
			}
			if !same {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

// loadSide reads one diff operand and, when typeName is set, decodes
// it. Items go through the session cache; local files are decoded
// directly.
func loadSide(ctx context.Context, s *session.Session, arg, typeName string, file bool) ([]byte, *record.Node, error) {
	if file {
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, nil, err
		}
		if typeName == "" {
			return data, nil, nil
		}
		node, err := record.New(s.Registry()).Decode(data, typeName, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", arg, err)
		}
		return data, node, nil
	}

	path, err := itempath.Parse(arg)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.Namespace().Read(path)
	if err != nil {
		return nil, nil, err
	}
	if typeName == "" {
		return data, nil, nil
	}
	node, err := s.Decode(ctx, path, typeName)
	if err != nil {
		return nil, nil, err
	}
	return data, node, nil
}

// textFromFile parses a text projection file, naming the file in
// parse errors.
func textFromFile(path string) (*record.Node, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	node, err := textproj.FromText(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return node, nil
}
