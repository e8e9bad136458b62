// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache holds decoded values keyed by item identity, content
// fingerprint and schema version.
//
// An entry is a hit only while the fingerprint and schema version the
// caller presents match the ones it was stored under. Anything else is
// a miss that recomputes and replaces the entry. Concurrent requests
// for the same key share one computation through a singleflight
// group; requests for different keys compute in parallel.
//
// Capacity is bounded by entry count and by the sum of caller-reported
// value sizes. Least recently used entries go first. A computation
// that fails, or whose context is cancelled, stores nothing.
//
// Values are handed out through the caller's clone function so that
// every caller owns what it receives and the cached copy is never
// mutated.
package cache
