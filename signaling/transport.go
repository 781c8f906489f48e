// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/rendezvous/transport"
)

// Handler receives decoded signaling traffic. Nil fields are skipped.
// Calls are made from the channel's reader goroutine in arrival order.
type Handler struct {
	OnOpen    func()
	OnMessage func(Message)
	OnClose   func(transport.CloseEvent)
}

// Transport carries signaling messages for one call context over a
// reconnecting channel.
type Transport struct {
	channel *transport.Channel
	logger  *slog.Logger
}

// NewTransport creates a Transport over a new channel built from
// config. Config.Name defaults to "signaling".
func NewTransport(config transport.Config) *Transport {
	if config.Name == "" {
		config.Name = "signaling"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		channel: transport.New(config),
		logger:  logger.With("channel", config.Name),
	}
}

// Connect opens the channel and starts delivering messages to handler.
func (t *Transport) Connect(ctx context.Context, handler Handler) error {
	return t.channel.Connect(ctx, transport.HandlerFuncs{
		Open: handler.OnOpen,
		Message: func(data []byte) {
			message, err := Decode(data)
			if err != nil {
				t.logDropped(err, len(data))
				return
			}
			if handler.OnMessage != nil {
				handler.OnMessage(message)
			}
		},
		Close: handler.OnClose,
	})
}

func (t *Transport) logDropped(err error, size int) {
	var malformed *MalformedError
	switch {
	case errors.As(err, &malformed):
		t.logger.Warn("dropping malformed signaling message",
			"kind", malformed.Kind,
			"field", malformed.Field,
			"error", err,
		)
	case errors.Is(err, ErrUnknownType):
		t.logger.Debug("ignoring signaling message", "error", err)
	default:
		t.logger.Warn("dropping undecodable signaling frame", "error", err, "size", size)
	}
}

// Send encodes and writes one message.
func (t *Transport) Send(message Message) error {
	data, err := Encode(message)
	if err != nil {
		return err
	}
	if err := t.channel.Send(data); err != nil {
		return fmt.Errorf("sending %s: %w", message.Kind(), err)
	}
	return nil
}

// State returns the channel state.
func (t *Transport) State() transport.State { return t.channel.State() }

// Reset reconnects manually; the only way out of a failed channel.
func (t *Transport) Reset() error { return t.channel.Reset() }

// Close shuts the channel down.
func (t *Transport) Close() error { return t.channel.Close() }
