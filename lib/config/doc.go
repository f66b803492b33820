// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Concord
// binaries.
//
// Configuration is loaded from a single file specified by either the
// CONCORD_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches.
//
// Two environment variables override file values after the
// environment section: CONCORD_LISTEN (server listen address) and
// CONCORD_WORKING_DIR (server working directory). Path fields then
// get ${HOME}, ${CONCORD_WORKING_DIR}, and ${VAR:-default} expansion.
//
// Key exports:
//
//   - [Config] -- master struct with Server and Client sections
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Concord packages.
package config
