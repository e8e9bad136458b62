// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/pakforge/pakforge/cmd/pakforge/cli"
	"github.com/pakforge/pakforge/lib/itempath"
)

type lsParams struct {
	cli.SessionFlags
	cli.JSONOutput
	Long bool `json:"-" flag:"long,l" desc:"show the authoritative provider and size"`
}

// itemInfo is one listed item in --json output.
type itemInfo struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Size   int64  `json:"size"`
	Source string `json:"source"`
}

func lsCommand() *cli.Command {
	var params lsParams
	return &cli.Command{
		Name:    "ls",
		Summary: "List items in the namespace",
		Description: `List every item whose path starts with prefix, one per line, in the
casing of its authoritative provider. The prefix is matched without
regard to case and may end partway through a segment.`,
		Usage: "pakforge ls [flags] [prefix]",
		Examples: []cli.Example{
			{Description: "List everything with providers", Command: "pakforge ls -l"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("ls", &params) },
		Run: func(args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("usage: pakforge ls [flags] [prefix]")
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
			if !params.Long && !params.OutputJSON {
				for _, path := range paths {
					fmt.Fprintln(stdout, path)
				}
				return nil
			}

			infos := make([]itemInfo, 0, len(paths))
			for _, path := range paths {
				source, err := s.Namespace().Resolve(path)
				if err != nil {
					return err
				}
				infos = append(infos, itemInfo{Path: path.String(), Kind: source.Kind.String(), Size: source.Size, Source: source.String()})
			}
			if done, err := params.EmitJSON(infos); done {
				return err
			}
			tw := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", info.Path, info.Kind, info.Size, info.Source)
			}
			return tw.Flush()
		},
	}
}

type whichParams struct {
	cli.SessionFlags
	cli.JSONOutput
}

func whichCommand() *cli.Command {
	var params whichParams
	return &cli.Command{
		Name:    "which",
		Summary: "Show which provider serves an item",
		Description: `Show every provider of an item in precedence order. The first line is
the provider reads are served from; the rest are shadowed by it.`,
		Usage: "pakforge which [flags] <path>",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("which", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: pakforge which [flags] <path>")
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

			providers, err := s.Namespace().Shadowed(path)
			if err != nil {
				return err
			}
			infos := make([]itemInfo, len(providers))
			for i, provider := range providers {
				infos[i] = itemInfo{Path: provider.Path.String(), Kind: provider.Kind.String(), Size: provider.Size, Source: provider.String()}
			}
			if done, err := params.EmitJSON(infos); done {
				return err
			}
			for i, info := range infos {
				marker := "  shadowed"
				if i == 0 {
					marker = "* serves"
				}
				fmt.Fprintf(stdout, "%s %s\n", marker, info.Source)
			}
			return nil
		},
	}
}

type catParams struct {
	cli.SessionFlags
}

func catCommand() *cli.Command {
	var params catParams
	return &cli.Command{
		Name:    "cat",
		Summary: "Write an item's bytes to stdout",
		Usage:   "pakforge cat [flags] <path>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("cat", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: pakforge cat [flags] <path>")
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

			data, err := s.Namespace().Read(path)
			if err != nil {
				return err
			}
			_, err = stdout.Write(data)
			return err
		},
	}
}
