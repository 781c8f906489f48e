// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
)

// Websocket close codes the channel treats specially. Application codes
// (4000-4999) are configured per deployment.
const (
	// CloseNormal is a clean, intentional closure. No reconnect.
	CloseNormal = 1000
	// CloseGoingAway is sent by servers on restart. Transient.
	CloseGoingAway = 1001
	// CloseAbnormal is reported when the connection dropped without a
	// close frame. Transient.
	CloseAbnormal = 1006

	// CloseAuthenticationFailed, CloseInvalidCredential, and
	// CloseSessionExpired are the default terminal codes.
	CloseAuthenticationFailed = 4001
	CloseInvalidCredential    = 4002
	CloseSessionExpired       = 4003
)

// DefaultTerminalCloseCodes are the close codes that require the user to
// sign in again rather than an automatic reconnect.
var DefaultTerminalCloseCodes = []int{
	CloseAuthenticationFailed,
	CloseInvalidCredential,
	CloseSessionExpired,
}

var (
	// ErrNotOpen is returned by Send when the channel has no open
	// connection.
	ErrNotOpen = errors.New("transport: channel is not open")

	// ErrClosed is returned when operating on a channel after Close.
	ErrClosed = errors.New("transport: channel closed")

	// ErrAlreadyConnected is returned by a second Connect call.
	ErrAlreadyConnected = errors.New("transport: channel already connected")
)

// CredentialSource issues the short-lived token presented on every
// connection attempt. The channel only reads the token; issuing and
// refreshing the underlying session belongs to the backend.
type CredentialSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func(ctx context.Context) (string, error)

// AccessToken calls f.
func (f CredentialFunc) AccessToken(ctx context.Context) (string, error) { return f(ctx) }

// Dialer opens a connection to an endpoint, authenticating with token.
type Dialer interface {
	Dial(ctx context.Context, endpoint, token string) (Conn, error)
}

// Conn is one established bidirectional message connection.
// ReadMessage is called from a single goroutine; WriteMessage calls are
// serialized by the Channel.
type Conn interface {
	// ReadMessage blocks for the next frame. When the server closes the
	// connection with a close frame the error is a *CloseError.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one frame.
	WriteMessage(data []byte) error

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// CloseError carries the code and reason of a close frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed with code %d", e.Code)
	}
	return fmt.Sprintf("connection closed with code %d: %s", e.Code, e.Reason)
}

// CloseEvent describes why a connection ended, as seen by the Handler.
type CloseEvent struct {
	Code   int
	Reason string

	// Terminal is set when Code is one of the configured terminal
	// codes. The channel will not reconnect until Reset.
	Terminal bool

	// Reconnecting is set when a reconnect has been scheduled.
	Reconnecting bool
}

// Handler receives channel events. Calls for one connection are made
// from one goroutine, in order: OnOpen, any number of OnMessage, then at
// most one OnClose. Handlers must not block for long; they hold up
// delivery of the next frame.
type Handler interface {
	OnOpen()
	OnMessage(data []byte)
	OnClose(event CloseEvent)
}

// HandlerFuncs adapts optional functions to Handler. Nil fields are
// skipped.
type HandlerFuncs struct {
	Open    func()
	Message func(data []byte)
	Close   func(event CloseEvent)
}

func (h HandlerFuncs) OnOpen() {
	if h.Open != nil {
		h.Open()
	}
}

func (h HandlerFuncs) OnMessage(data []byte) {
	if h.Message != nil {
		h.Message(data)
	}
}

func (h HandlerFuncs) OnClose(event CloseEvent) {
	if h.Close != nil {
		h.Close(event)
	}
}
