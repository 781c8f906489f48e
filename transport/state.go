// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

// Status is the connection status shown to the user.
type Status int

const (
	// StatusConnecting covers the first attempt and every scheduled
	// reconnect.
	StatusConnecting Status = iota
	// StatusOpen means frames can be sent.
	StatusOpen
	// StatusClosed follows a clean close or Close.
	StatusClosed
	// StatusFailed follows a terminal close code or an exhausted retry
	// budget. Only Reset leaves it.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a point-in-time snapshot of a Channel.
type State struct {
	Status     Status
	RetryCount int
	LastError  string
	Generation uint64
}
