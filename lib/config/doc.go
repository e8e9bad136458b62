// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for pakforge.
//
// Configuration is loaded from a single file specified by either the
// PAKFORGE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search.
//
// A file declares the namespace (archives and override directories
// with their priorities), where schema definitions live, cache limits
// and decode settings:
//
//	archives:
//	  - {path: data/base.pak, priority: 0}
//	  - {path: data/patch1.pak, priority: 10}
//	overrides:
//	  - {path: ${PAKFORGE_ROOT}/overrides}
//	schemas:
//	  dirs: [schemas]
//	cache:
//	  max_entries: 4096
//	  max_bytes: 268435456
//
// Named profiles replace sections of the base values when selected
// with the profile key. Variable expansion is performed on path
// fields after loading: ${HOME}, ${PAKFORGE_ROOT} and
// ${VAR:-default} patterns are expanded. Relative paths are resolved
// against the directory holding the config file.
//
// This package depends on no other pakforge packages.
package config
