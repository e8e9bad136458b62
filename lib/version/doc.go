// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the pakforge binary.
//
// Four package-level variables may be injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// When they are not injected, the VCS stamp the Go toolchain embeds
// in module builds is used instead, and failing that they stay
// "unknown" / "0.1.0-dev".
//
//   - [Info] -- "0.1.0-dev (abc1234, 2026-02-10T...)" for "pakforge version"
//   - [Full] -- Info plus Go version and GOOS/GOARCH
package version
