// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/rendezvous/lib/clock"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultMaxRetries           = 5
	DefaultRetryDelay           = 3 * time.Second
	DefaultCredentialRetryDelay = 5 * time.Second
	DefaultConnectTimeout       = 10 * time.Second
)

// Config configures a Channel.
type Config struct {
	// Name labels log lines ("signaling", "chat").
	Name string

	// Endpoint is the URL handed to the Dialer.
	Endpoint string

	// Credentials is asked for a fresh token before every attempt.
	Credentials CredentialSource

	// Dialer opens connections.
	Dialer Dialer

	// TerminalCloseCodes are the close codes after which the channel
	// moves to StatusFailed instead of reconnecting. Nil means
	// DefaultTerminalCloseCodes.
	TerminalCloseCodes []int

	// MaxRetries bounds consecutive reconnects without a successful
	// open.
	MaxRetries int

	// RetryDelay precedes a reconnect after a transient close or a
	// failed dial.
	RetryDelay time.Duration

	// CredentialRetryDelay precedes the next attempt after a failed
	// token fetch.
	CredentialRetryDelay time.Duration

	// ConnectTimeout bounds the token fetch and the dial, separately.
	ConnectTimeout time.Duration

	// OnStateChange, if set, is called after every state change with
	// the new snapshot. Called outside the channel's lock.
	OnStateChange func(State)

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Channel is a reconnecting, authenticated message channel. See the
// package documentation for the reconnect policy.
type Channel struct {
	config   Config
	clock    clock.Clock
	logger   *slog.Logger
	terminal map[int]bool

	mu             sync.Mutex
	handler        Handler
	ctx            context.Context
	cancel         context.CancelFunc
	stopWatching   func() bool
	closed         bool
	status         Status
	retryCount     int
	lastError      string
	generation     uint64
	conn           Conn
	reconnectTimer *clock.Timer

	writeMu sync.Mutex
}

// New creates a Channel. No connection is made until Connect.
func New(config Config) *Channel {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	if config.CredentialRetryDelay <= 0 {
		config.CredentialRetryDelay = DefaultCredentialRetryDelay
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.TerminalCloseCodes == nil {
		config.TerminalCloseCodes = DefaultTerminalCloseCodes
	}
	if config.Name == "" {
		config.Name = "channel"
	}

	channelClock := config.Clock
	if channelClock == nil {
		channelClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	terminal := make(map[int]bool, len(config.TerminalCloseCodes))
	for _, code := range config.TerminalCloseCodes {
		terminal[code] = true
	}

	return &Channel{
		config:   config,
		clock:    channelClock,
		logger:   logger.With("channel", config.Name),
		terminal: terminal,
		status:   StatusClosed,
	}
}

// Connect starts the channel and delivers events to handler. The first
// attempt runs before Connect returns; if it fails, a reconnect is
// scheduled per policy and Connect still returns nil. Cancelling ctx
// closes the channel.
func (c *Channel) Connect(ctx context.Context, handler Handler) error {
	if c.config.Dialer == nil {
		return errors.New("transport: Config.Dialer is required")
	}
	if c.config.Credentials == nil {
		return errors.New("transport: Config.Credentials is required")
	}
	if handler == nil {
		handler = HandlerFuncs{}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.handler != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.handler = handler
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.stopWatching = context.AfterFunc(ctx, func() { c.Close() })
	c.status = StatusConnecting
	generation := c.advanceGenerationLocked()
	state := c.stateLocked()
	c.mu.Unlock()

	c.notify(state)
	c.attempt(generation)
	return nil
}

// Send writes one frame on the current connection. Returns ErrNotOpen
// without touching the network when the channel is not open.
func (c *Channel) Send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status != StatusOpen || c.conn == nil {
		c.mu.Unlock()
		return ErrNotOpen
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("writing to %s channel: %w", c.config.Name, err)
	}
	return nil
}

// Reset drops the current connection (if any), cancels any pending
// reconnect, clears the retry budget, and makes a fresh attempt. It is
// the only way out of StatusFailed.
func (c *Channel) Reset() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.handler == nil {
		c.mu.Unlock()
		return errors.New("transport: Reset before Connect")
	}
	c.stopTimerLocked()
	previous := c.conn
	c.conn = nil
	c.retryCount = 0
	c.lastError = ""
	c.status = StatusConnecting
	generation := c.advanceGenerationLocked()
	state := c.stateLocked()
	c.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	c.logger.Info("manual reconnect", "generation", generation)
	c.notify(state)
	c.attempt(generation)
	return nil
}

// Close shuts the channel down permanently. Pending reconnects are
// cancelled and no further handler calls are made. Idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	c.advanceGenerationLocked()
	conn := c.conn
	c.conn = nil
	c.status = StatusClosed
	cancel := c.cancel
	stopWatching := c.stopWatching
	state := c.stateLocked()
	c.mu.Unlock()

	if stopWatching != nil {
		stopWatching()
	}
	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.notify(state)
	return err
}

// State returns a snapshot of the channel.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// attempt runs one credential fetch and dial for generation. It is a
// no-op if the generation has been superseded.
func (c *Channel) attempt(generation uint64) {
	c.mu.Lock()
	if c.closed || generation != c.generation {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.mu.Unlock()

	tokenCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	token, err := c.config.Credentials.AccessToken(tokenCtx)
	cancel()
	if err != nil {
		c.attemptFailed(generation, fmt.Errorf("fetching access token: %w", err), c.config.CredentialRetryDelay)
		return
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	conn, err := c.config.Dialer.Dial(dialCtx, c.config.Endpoint, token)
	cancel()
	if err != nil {
		c.attemptFailed(generation, fmt.Errorf("connecting: %w", err), c.config.RetryDelay)
		return
	}

	c.mu.Lock()
	if c.closed || generation != c.generation {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.status = StatusOpen
	c.retryCount = 0
	c.lastError = ""
	handler := c.handler
	state := c.stateLocked()
	c.mu.Unlock()

	c.logger.Info("connected", "generation", generation)
	c.notify(state)
	handler.OnOpen()
	go c.readLoop(generation, conn)
}

// attemptFailed records err and schedules the next attempt after delay,
// or fails the channel when the retry budget is spent.
func (c *Channel) attemptFailed(generation uint64, err error, delay time.Duration) {
	c.mu.Lock()
	if c.closed || generation != c.generation {
		c.mu.Unlock()
		return
	}
	c.lastError = err.Error()
	scheduled := c.scheduleReconnectLocked(delay)
	state := c.stateLocked()
	c.mu.Unlock()

	if scheduled {
		c.logger.Warn("connection attempt failed, retrying",
			"error", err,
			"retry", state.RetryCount,
			"delay", delay,
		)
	} else {
		c.logger.Error("connection attempt failed, giving up",
			"error", err,
			"retries", state.RetryCount,
		)
	}
	c.notify(state)
}

// readLoop delivers frames from conn until it fails, then classifies
// the close. Frames are dropped once generation is superseded.
func (c *Channel) readLoop(generation uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(generation, conn, classifyClose(err))
			return
		}

		c.mu.Lock()
		current := !c.closed && generation == c.generation
		handler := c.handler
		c.mu.Unlock()
		if !current {
			conn.Close()
			return
		}
		handler.OnMessage(data)
	}
}

// connectionLost applies the close policy to event.
func (c *Channel) connectionLost(generation uint64, conn Conn, event CloseEvent) {
	conn.Close()

	c.mu.Lock()
	if c.closed || generation != c.generation {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	event.Terminal = c.terminal[event.Code]
	switch {
	case event.Terminal:
		c.stopTimerLocked()
		c.status = StatusFailed
		c.lastError = fmt.Sprintf("server closed the connection with code %d (%s); sign in again to reconnect",
			event.Code, closeReason(event))
	case event.Code == CloseNormal:
		c.stopTimerLocked()
		c.status = StatusClosed
	default:
		c.lastError = fmt.Sprintf("connection lost with code %d (%s)", event.Code, closeReason(event))
		event.Reconnecting = c.scheduleReconnectLocked(c.config.RetryDelay)
	}
	handler := c.handler
	state := c.stateLocked()
	c.mu.Unlock()

	switch {
	case event.Terminal:
		c.logger.Error("connection closed by server, not reconnecting",
			"code", event.Code,
			"reason", event.Reason,
		)
	case event.Reconnecting:
		c.logger.Warn("connection lost, reconnecting",
			"code", event.Code,
			"reason", event.Reason,
			"retry", state.RetryCount,
			"delay", c.config.RetryDelay,
		)
	case state.Status == StatusFailed:
		c.logger.Error("connection lost, retry budget exhausted",
			"code", event.Code,
			"retries", state.RetryCount,
		)
	default:
		c.logger.Info("connection closed", "code", event.Code)
	}
	c.notify(state)
	handler.OnClose(event)
}

// scheduleReconnectLocked arms the single reconnect timer, or moves the
// channel to StatusFailed if MaxRetries reconnects have already been
// made. Caller must hold c.mu.
func (c *Channel) scheduleReconnectLocked(delay time.Duration) bool {
	c.stopTimerLocked()
	if c.retryCount >= c.config.MaxRetries {
		c.status = StatusFailed
		c.lastError = fmt.Sprintf("gave up after %d retries: %s", c.retryCount, c.lastError)
		c.advanceGenerationLocked()
		return false
	}
	c.retryCount++
	c.status = StatusConnecting
	generation := c.advanceGenerationLocked()
	c.reconnectTimer = c.clock.AfterFunc(delay, func() {
		c.attempt(generation)
	})
	return true
}

// stopTimerLocked cancels the pending reconnect, if any.
func (c *Channel) stopTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Channel) advanceGenerationLocked() uint64 {
	c.generation++
	return c.generation
}

func (c *Channel) stateLocked() State {
	return State{
		Status:     c.status,
		RetryCount: c.retryCount,
		LastError:  c.lastError,
		Generation: c.generation,
	}
}

func (c *Channel) notify(state State) {
	if c.config.OnStateChange != nil {
		c.config.OnStateChange(state)
	}
}

// classifyClose maps a read error to a CloseEvent. Errors without a
// close frame count as an abnormal closure.
func classifyClose(err error) CloseEvent {
	var closeErr *CloseError
	if errors.As(err, &closeErr) {
		return CloseEvent{Code: closeErr.Code, Reason: closeErr.Reason}
	}
	return CloseEvent{Code: CloseAbnormal, Reason: err.Error()}
}

func closeReason(event CloseEvent) string {
	if event.Reason == "" {
		return "no reason given"
	}
	return event.Reason
}
