// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/spf13/pflag"

	"github.com/pakforge/pakforge/cmd/pakforge/cli"
	"github.com/pakforge/pakforge/lib/container"
	"github.com/pakforge/pakforge/lib/itempath"
)

type packParams struct {
	cli.SessionFlags
	Compression string `flag:"compression" desc:"auto, none, lz4 or zstd (default from config, else auto)"`
	Namespace   bool   `flag:"namespace" desc:"pack the namespace items under a prefix instead of a directory"`
}

func packCommand() *cli.Command {
	var params packParams
	return &cli.Command{
		Name:    "pack",
		Summary: "Build a container from a directory or the namespace",
		Description: `Write a new container. By default every regular file under dir becomes
an item named by its relative path. With --namespace the source is
instead every item under prefix, read from its authoritative provider,
so overrides are baked into the result.

Entries are ordered by item path, so packing the same items twice
yields identical bytes. The output replaces any existing file
atomically and only once every entry has been written.`,
		Usage: "pakforge pack [flags] <dir> <out.pak>\n  pakforge pack [flags] --namespace <prefix> <out.pak>",
		Examples: []cli.Example{
			{Description: "Pack a loose directory", Command: "pakforge pack --compression zstd data/ base.pak"},
			{Description: "Bake current overrides into a patch", Command: "pakforge pack --namespace models/ patch.pak"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("pack", &params) },
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: pakforge pack [flags] <dir|prefix> <out.pak>")
			}
			source, output := args[0], args[1]

			if params.Namespace {
				prefix, err := itempath.ParsePrefix(source)
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
				if params.Compression != "" {
					s.Config().Pack.Compression = params.Compression
				}
				count, err := s.Pack(ctx, prefix, output)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "packed %d items into %s\n", count, output)
				return nil
			}

			inputs, err := container.InputsFromDir(source)
			if err != nil {
				return fmt.Errorf("reading %s: %w", source, err)
			}
			options := container.WriteOptions{Compression: params.Compression}
			if err := container.WriteFile(output, inputs, options); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "packed %d items into %s\n", len(inputs), output)
			return nil
		},
	}
}

type unpackParams struct {
	Verify bool `flag:"verify" desc:"check every entry checksum before extracting" default:"true"`
}

func unpackCommand() *cli.Command {
	var params unpackParams
	return &cli.Command{
		Name:    "unpack",
		Summary: "Extract every entry of a container into a directory",
		Description: `Extract every entry of a container as a file under dir. Each file is
written atomically. With --verify (the default) a corrupt entry stops
extraction before anything is written.`,
		Usage: "pakforge unpack [flags] <in.pak> <dir>",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("unpack", &params) },
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: pakforge unpack [flags] <in.pak> <dir>")
			}
			archive, err := container.Open(args[0])
			if err != nil {
				return err
			}
			defer archive.Close()

			if params.Verify {
				if err := archive.Verify(); err != nil {
					return fmt.Errorf("%s failed verification: %w", args[0], err)
				}
			}
			count, err := unpack(archive, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "unpacked %d items into %s (digest %s)\n", count, args[1], archive.Digest().Short())
			return nil
		},
	}
}

// unpack writes every entry of archive under dir. Entries that fail
// to read are collected; the rest are still written.
func unpack(archive *container.Archive, dir string) (int, error) {
	var failures []error
	count := 0
	for _, entry := range archive.Entries() {
		data, err := archive.Read(entry)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(entry.Path.String()))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return count, fmt.Errorf("creating directory for %s: %w", entry.Path, err)
		}
		if err := renameio.WriteFile(target, data, 0o644); err != nil {
			return count, fmt.Errorf("writing %s: %w", target, err)
		}
		count++
	}
	return count, errors.Join(failures...)
}
