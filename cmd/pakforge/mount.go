// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/pakforge/pakforge/cmd/pakforge/cli"
	"github.com/pakforge/pakforge/lib/itempath"
	"github.com/pakforge/pakforge/lib/mount"
)

type mountParams struct {
	cli.SessionFlags
	AllowOther bool `flag:"allow-other" desc:"let other users read the mount (needs user_allow_other in /etc/fuse.conf)"`
}

func mountCommand() *cli.Command {
	var params mountParams
	return &cli.Command{
		Name:    "mount",
		Summary: "Mount the namespace read-only",
		Description: `Mount the namespace as a read-only filesystem and serve it until
interrupted. Each item appears as a file at its item path. Override
directories are watched, so edits made while mounted show up on the
next open.

The mountpoint defaults to paths.mount from the config file.`,
		Usage: "pakforge mount [flags] [mountpoint]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("mount", &params) },
		Run: func(args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("usage: pakforge mount [flags] [mountpoint]")
			}

			ctx, cancel := cli.Context()
			defer cancel()
			s, err := params.Open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			mountpoint := s.Config().Paths.Mount
			if len(args) == 1 {
				mountpoint = args[0]
			}
			logger := params.Logger().With("command", "mount")

			server, err := mount.Mount(mount.Options{
				Mountpoint: mountpoint,
				Namespace:  s.Namespace(),
				AllowOther: params.AllowOther,
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "mounted at %s; interrupt to unmount\n", mountpoint)

			watchDone := make(chan error, 1)
			go func() {
				watchDone <- s.Watch(ctx, func(paths []itempath.Path) {
					logger.Debug("overrides changed", "items", len(paths))
				})
			}()

			<-ctx.Done()
			unmountErr := server.Unmount()
			if err := <-watchDone; err != nil && !errors.Is(err, ctx.Err()) {
				logger.Warn("override watch stopped", "error", err)
			}
			return unmountErr
		},
	}
}
