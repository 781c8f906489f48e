// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small network I/O helpers shared by the
// backend HTTP client and the websocket transport.
//
// ReadResponse bounds every JSON API read at MaxResponseSize. Chat
// history pages are the largest legitimate responses and are far below
// the bound; file contents never flow through it.
//
// IsExpectedCloseError classifies read and write errors that are a
// normal consequence of a connection going away, so the reconnecting
// channel can treat them as an abnormal close without logging a stack
// of noise.
package netutil

import "io"

// MaxResponseSize bounds JSON API response reads: 16 MB.
const MaxResponseSize int64 = 16 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}
