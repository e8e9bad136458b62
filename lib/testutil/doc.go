// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for pakforge packages.
//
// [RequireReceive] encapsulates the timeout safety valve pattern
// (select with time.After fallback) so that individual tests do not
// need direct time.After calls. Watch tests use it to wait for
// goroutines without hanging the suite when something goes wrong.
//
// [WriteTree] lays out a directory of files from a map of relative
// paths, for override directories and pack inputs.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no pakforge-internal dependencies.
package testutil
