// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/bureau-foundation/rendezvous/lib/config"
)

// ConfigFromSettings builds a websocket-backed channel Config for one
// context from the configuration file's channel and reconnect sections.
// Credentials, Clock, Logger, and OnStateChange are left for the caller.
func ConfigFromSettings(name string, channel config.ChannelConfig, reconnect config.ReconnectConfig, contextID string) (Config, error) {
	timing, err := reconnect.Timing()
	if err != nil {
		return Config{}, err
	}
	dialer := NewWebSocketDialer(timing.ConnectTimeout)
	dialer.TokenParameter = channel.TokenParameter

	var terminal []int
	if reconnect.TerminalCloseCodes != nil {
		terminal = append([]int(nil), reconnect.TerminalCloseCodes...)
	}
	return Config{
		Name:                 name,
		Endpoint:             channel.Endpoint(contextID),
		Dialer:               dialer,
		TerminalCloseCodes:   terminal,
		MaxRetries:           reconnect.MaxRetries,
		RetryDelay:           timing.RetryDelay,
		CredentialRetryDelay: timing.CredentialRetryDelay,
		ConnectTimeout:       timing.ConnectTimeout,
	}, nil
}
