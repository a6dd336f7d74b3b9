// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the shmlink
// binary.
//
// Configuration is loaded from a single file named by either the
// SHMLINK_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. Files ending in .json or .jsonc are read as JSON with
// comments; everything else is YAML. Both use the same field names.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${SHMLINK_RUNTIME} and ${VAR:-default} patterns are
// expanded. No environment variable overrides a config value.
//
// Key exports:
//
//   - [Config] -- master struct with Log, Local, Link, Congestion,
//     Events, Cache and Video sections
//   - [Default] -- returns a Config with working defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other shmlink packages.
package config
