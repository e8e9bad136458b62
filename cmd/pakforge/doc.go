// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Pakforge inspects and edits records stored in packed game-data
// archives. It lists and reads items through the configured namespace
// (archives plus override directories), decodes records to editable
// text, commits edited text back as override files, diffs records,
// builds and extracts containers, verifies lossless round trips and
// mounts the namespace read-only.
//
// Every command that works on the namespace reads its configuration
// from --config or PAKFORGE_CONFIG.
package main
