// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package mount implements a read-only FUSE filesystem over a
// [namespace.Namespace].
//
// Every item the namespace lists appears as a regular file at its
// item path, in the casing of its authoritative provider. Directories
// are synthesized from path segments. Lookups are case-insensitive,
// matching item path equality, so "Models/Ship.rec" and
// "models/ship.rec" open the same file.
//
// # Read Path
//
// Opening a file reads the authoritative bytes once through
// [namespace.Namespace.Read] and serves every read on that handle
// from them. A file therefore never changes under an open handle,
// even when an override is rewritten; reopening picks up the new
// bytes.
//
// # Write Path
//
// Not implemented. The filesystem is mounted read-only and every
// mutation returns EROFS. Edits go through the session commit path,
// which writes override files.
package mount
