// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the reconnecting, authenticated message
// channel that both the call signaling and the chat pipelines run on.
//
// A [Channel] owns at most one live [Conn] at a time. Every connection
// attempt first asks a [CredentialSource] for a short-lived access
// token, then dials the endpoint through a [Dialer]. Frames read from
// the connection are handed to a [Handler] in arrival order by a single
// reader goroutine.
//
// Reconnect policy:
//
//   - A successful open resets the retry counter and clears the last
//     error.
//   - A failed credential fetch or dial abandons the attempt and
//     schedules the next one (CredentialRetryDelay or RetryDelay).
//   - A server close with one of the configured terminal codes
//     (authentication failure, invalid credential, session expiry by
//     default) moves the channel to [StatusFailed] without retrying;
//     only a user-driven [Channel.Reset] reopens it.
//   - A clean close (1000) moves the channel to [StatusClosed].
//   - Any other close schedules exactly one reconnect after RetryDelay
//     and increments the retry counter by one. Past MaxRetries the
//     channel moves to [StatusFailed].
//
// At most one reconnect timer is pending at a time. Each connection
// attempt is tagged with a generation number; reads, closes, and timer
// callbacks belonging to an older generation are discarded, so nothing
// from a superseded connection can reach the handler after a reset,
// a reconnect, or [Channel.Close].
//
// [WebSocketDialer] is the production dialer (gorilla/websocket, token
// in a query parameter). [MemoryDialer] is an in-process implementation
// for tests: each dial yields a [MemoryPeer] that plays the server.
//
// All waiting goes through lib/clock so reconnect behavior is tested
// with a fake clock.
package transport
