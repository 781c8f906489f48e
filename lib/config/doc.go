// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the rendezvous
// clients.
//
// Configuration is loaded from a single file named by either the
// RENDEZVOUS_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no search path and no per-field
// environment override: the file is the single source of truth.
//
// The file may carry development, staging, and production sections
// that override base values when [Config].Environment matches.
// Production is stricter: [Config.Validate] requires TLS endpoints.
//
// ${VAR} and ${VAR:-default} patterns are expanded in URL and token
// fields after loading, so the backend session token can live in the
// environment rather than in the file. Values the process environment
// leaves unset can come from a dotenv file named by env_file, read with
// godotenv without touching the process environment.
//
// Key exports:
//
//   - [Config] -- API, media, signaling, chat, reconnect, ICE sections
//   - [Default] -- development defaults
//   - [Load] and [LoadFile] -- the two entry points
//   - [ReconnectConfig.Timing] -- parsed reconnect durations
//
// This package depends on no other rendezvous packages.
package config
