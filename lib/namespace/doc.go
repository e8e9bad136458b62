// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package namespace composes archive containers and loose override
// directories into one logical item namespace.
//
// Every item path resolves to exactly one authoritative [ByteSource].
// Override files beat archive entries. Within each kind the source
// with the highest declared priority wins, and equal priorities go
// to the source declared last. Resolution depends only on the
// declared source list, so it is stable across runs.
//
// Opening a namespace parses archive tables of contents and walks
// override directories, but no item bytes are read until
// [Namespace.Read] (or [ByteSource.Read]). A source that fails to
// open is reported through [Namespace.SourceErrors] while the rest
// keep serving.
//
// [Namespace.Refresh] rescans override directories cheaply and
// optionally reopens archives. [Namespace.Watch] drives the same
// rescan from fsnotify events. [Namespace.WriteOverride] replaces an
// override file atomically.
package namespace
