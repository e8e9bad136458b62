// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package session ties a namespace, a schema registry, the record
// codec and a decode cache together for the lifetime of one tool run.
//
// A [Session] is built explicitly from a [config.Config] by [Open] and
// torn down by [Session.Close]; nothing is kept in package state.
// Decodes go through the cache keyed by item, content fingerprint and
// schema fingerprint, so an edited override or a changed schema is
// never served stale. Every caller receives its own copy of a decoded
// tree and may edit it freely.
//
// Batch operations never stop at the first failing item: each
// [Result] carries its own error. [Session.Verify] treats a failed
// round trip as an error wrapping [ErrRoundTrip].
package session
