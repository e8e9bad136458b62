// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package diff compares record bytes and decoded record trees.
//
// [Bytes] finds the regions where two buffers differ using Myers'
// O(ND) algorithm. Its cost is capped: when more than the cap's worth
// of edits would be needed, it falls back to trimming the common
// prefix and suffix and reporting the middle as one changed region.
// Both paths are deterministic, and the regions returned together with
// the bytes outside them reconstruct either buffer ([Apply], [Revert]).
//
// [Trees] aligns two record trees by field path and reports the fields
// that were added, removed or modified, without reference to offsets.
package diff
