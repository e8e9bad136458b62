// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the pakforge
// tool.
//
// The central type is [Command], a named command with optional nested
// [Command.Subcommands], a [pflag.FlagSet] factory and a Run function.
// The tree is assembled in cmd/pakforge and dispatched by
// [Command.Execute], which parses flags, routes subcommands and prints
// help with examples. Unknown commands and flags get a "did you mean"
// suggestion when one is within edit distance 3.
//
// Parameter structs bind flags from struct tags with
// [FlagsFromParams]. Embedding [JSONOutput] adds --json; embedding
// [SessionFlags] adds --config and --profile and lets a command open a
// [session.Session] with [SessionFlags.Open].
package cli
