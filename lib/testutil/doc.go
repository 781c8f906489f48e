// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireNoReceive], and [RequireClosed] wrap the
// select-with-timeout pattern so individual tests never call
// time.After themselves. These are the only places the test suite uses
// the wall clock; component time runs on lib/clock's fake clock.
//
// [WriteFile] drops a fixture into a per-test temporary directory.
//
// All helpers call t.Fatalf on failure.
package testutil
