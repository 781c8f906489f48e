// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers shared by the rendezvous
// binaries:
//
//   - Fatal reports an error from run() to stderr and exits, for the
//     window before the structured logger exists.
//   - ExitError lets run() request a specific exit code without an
//     extra message.
//   - NewLogger builds the binary's slog logger from a --log-format
//     value. "auto" picks text for a terminal and JSON otherwise.
package process
