// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/rendezvous/lib/clock"
	"github.com/bureau-foundation/rendezvous/lib/testutil"
)

const (
	testRetryDelay           = 3 * time.Second
	testCredentialRetryDelay = 5 * time.Second
	testTimeout              = 5 * time.Second
)

// channelHarness wires a Channel to a MemoryDialer, a fake clock, and
// buffered event channels.
type channelHarness struct {
	channel *Channel
	dialer  *MemoryDialer
	clock   *clock.FakeClock

	opens    chan struct{}
	messages chan string
	closes   chan CloseEvent

	mu               sync.Mutex
	tokenCalls       int
	credentialErrors []error
}

func newChannelHarness(t *testing.T, modify func(*Config)) *channelHarness {
	t.Helper()
	harness := &channelHarness{
		dialer:   NewMemoryDialer(),
		clock:    clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		opens:    make(chan struct{}, 16),
		messages: make(chan string, 16),
		closes:   make(chan CloseEvent, 16),
	}
	config := Config{
		Name:     "test",
		Endpoint: "ws://example.test/ws/chat/room-1/",
		Credentials: CredentialFunc(func(context.Context) (string, error) {
			harness.mu.Lock()
			defer harness.mu.Unlock()
			harness.tokenCalls++
			if len(harness.credentialErrors) > 0 {
				err := harness.credentialErrors[0]
				harness.credentialErrors = harness.credentialErrors[1:]
				return "", err
			}
			return fmt.Sprintf("token-%d", harness.tokenCalls), nil
		}),
		Dialer:               harness.dialer,
		MaxRetries:           5,
		RetryDelay:           testRetryDelay,
		CredentialRetryDelay: testCredentialRetryDelay,
		ConnectTimeout:       time.Second,
		Clock:                harness.clock,
		Logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if modify != nil {
		modify(&config)
	}
	harness.channel = New(config)
	t.Cleanup(func() { harness.channel.Close() })
	return harness
}

func (h *channelHarness) handler() Handler {
	return HandlerFuncs{
		Open:    func() { h.opens <- struct{}{} },
		Message: func(data []byte) { h.messages <- string(data) },
		Close:   func(event CloseEvent) { h.closes <- event },
	}
}

func (h *channelHarness) connect(t *testing.T) {
	t.Helper()
	if err := h.channel.Connect(context.Background(), h.handler()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func (h *channelHarness) failCredentials(errs ...error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.credentialErrors = append(h.credentialErrors, errs...)
}

func (h *channelHarness) credentialCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tokenCalls
}

func (h *channelHarness) nextPeer(t *testing.T) *MemoryPeer {
	t.Helper()
	return testutil.RequireReceive(t, h.dialer.Peers(), testTimeout, "waiting for dial")
}

func TestChannelConnectOpens(t *testing.T) {
	harness := newChannelHarness(t, nil)
	harness.connect(t)

	peer := harness.nextPeer(t)
	testutil.RequireReceive(t, harness.opens, testTimeout, "waiting for OnOpen")

	if peer.Token != "token-1" {
		t.Errorf("token = %q, want token-1", peer.Token)
	}
	if peer.Endpoint != "ws://example.test/ws/chat/room-1/" {
		t.Errorf("endpoint = %q", peer.Endpoint)
	}

	state := harness.channel.State()
	if state.Status != StatusOpen {
		t.Errorf("status = %v, want open", state.Status)
	}
	if state.RetryCount != 0 || state.LastError != "" {
		t.Errorf("state = %+v, want zero retries and no error", state)
	}
}

func TestChannelConnectTwice(t *testing.T) {
	harness := newChannelHarness(t, nil)
	harness.connect(t)

	err := harness.channel.Connect(context.Background(), harness.handler())
	if !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second Connect = %v, want ErrAlreadyConnected", err)
	}
}

func TestChannelDeliversFramesInOrder(t *testing.T) {
	harness := newChannelHarness(t, nil)
	harness.connect(t)
	peer := harness.nextPeer(t)

	for i := range 5 {
		peer.Send([]byte(fmt.Sprintf("frame-%d", i)))
	}
	for i := range 5 {
		got := testutil.RequireReceive(t, harness.messages, testTimeout, "frame %d", i)
		if want := fmt.Sprintf("frame-%d", i); got != want {
			t.Fatalf("frame %d = %q, want %q", i, got, want)
		}
	}
}

func TestChannelSend(t *testing.T) {
	harness := newChannelHarness(t, nil)

	if err := harness.channel.Send([]byte("early")); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Send before Connect = %v, want ErrNotOpen", err)
	}

	harness.connect(t)
	peer := harness.nextPeer(t)

	if err := harness.channel.Send([]byte(`{"message":"hello"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := testutil.RequireReceive(t, peer.Received(), testTimeout, "waiting for frame")
	if string(got) != `{"message":"hello"}` {
		t.Errorf("server received %q", got)
	}
}

func TestChannelTerminalCloseCodes(t *testing.T) {
	for _, code := range []int{CloseAuthenticationFailed, CloseInvalidCredential, CloseSessionExpired} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			harness := newChannelHarness(t, nil)
			harness.connect(t)
			peer := harness.nextPeer(t)

			peer.CloseWith(code, "token rejected")
			event := testutil.RequireReceive(t, harness.closes, testTimeout, "waiting for OnClose")

			if !event.Terminal || event.Reconnecting {
				t.Errorf("event = %+v, want terminal without reconnect", event)
			}
			state := harness.channel.State()
			if state.Status != StatusFailed {
				t.Errorf("status = %v, want failed", state.Status)
			}
			if !strings.Contains(state.LastError, "sign in again") {
				t.Errorf("LastError = %q, want a reauthentication message", state.LastError)
			}
			if pending := harness.clock.PendingCount(); pending != 0 {
				t.Errorf("pending timers = %d, want 0", pending)
			}

			harness.clock.Advance(time.Hour)
			if dials := len(harness.dialer.Dials()); dials != 1 {
				t.Errorf("dials = %d, want 1", dials)
			}
		})
	}
}

func TestChannelCustomTerminalCodes(t *testing.T) {
	harness := newChannelHarness(t, func(config *Config) {
		config.TerminalCloseCodes = []int{4401}
	})
	harness.connect(t)
	peer := harness.nextPeer(t)

	peer.CloseWith(CloseAuthenticationFailed, "")
	event := testutil.RequireReceive(t, harness.closes, testTimeout, "waiting for OnClose")
	if event.Terminal || !event.Reconnecting {
		t.Errorf("4001 with custom codes: event = %+v, want a reconnect", event)
	}
}

func TestChannelCleanCloseDoesNotReconnect(t *testing.T) {
	harness := newChannelHarness(t, nil)
	harness.connect(t)
	peer := harness.nextPeer(t)

	peer.CloseWith(CloseNormal, "bye")
	event := testutil.RequireReceive(t, harness.closes, testTimeout, "waiting for OnClose")

	if event.Terminal || event.Reconnecting {
		t.Errorf("event = %+v, want plain close", event)
	}
	if status := harness.channel.State().Status; status != StatusClosed {
		t.Errorf("status = %v, want closed", status)
	}
	harness.clock.Advance(time.Hour)
	if dials := len(harness.dialer.Dials()); dials != 1 {
		t.Errorf("dials = %d, want 1", dials)
	}
}

func TestChannelAbnormalCloseReconnectsOnce(t *testing.T) {
	tests := []struct {
		name  string
		close func(*MemoryPeer)
		code  int
	}{
		{"dropped", func(p *MemoryPeer) { p.Drop() }, CloseAbnormal},
		{"going away", func(p *MemoryPeer) { p.CloseWith(CloseGoingAway, "restart") }, CloseGoingAway},
		{"internal error", func(p *MemoryPeer) { p.CloseWith(1011, "") }, 1011},
		{"application code", func(p *MemoryPeer) { p.CloseWith(4000, "") }, 4000},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			harness := newChannelHarness(t, nil)
			harness.connect(t)
			peer := harness.nextPeer(t)
			testutil.RequireReceive(t, harness.opens, testTimeout, "first open")

			test.close(peer)
			event := testutil.RequireReceive(t, harness.closes, testTimeout, "waiting for OnClose")
			if event.Code != test.code || event.Terminal || !event.Reconnecting {
				t.Fatalf("event = %+v, want code %d reconnecting", event, test.code)
			}

			state := harness.channel.State()
			if state.Status != StatusConnecting || state.RetryCount != 1 {
				t.Fatalf("state = %+v, want connecting with one retry", state)
			}
			if pending := harness.clock.PendingCount(); pending != 1 {
				t.Fatalf("pending timers = %d, want exactly 1", pending)
			}

			harness.clock.Advance(testRetryDelay - time.Millisecond)
			if dials := len(harness.dialer.Dials()); dials != 1 {
				t.Fatalf("dials before delay = %d, want 1", dials)
			}
			harness.clock.Advance(time.Millisecond)

			harness.nextPeer(t)
			testutil.RequireReceive(t, harness.opens, testTimeout, "reopen")
			state = harness.channel.State()
			if state.Status != StatusOpen || state.RetryCount != 0 || state.LastError != "" {
				t.Errorf("state after reconnect = %+v, want open with counters cleared", state)
			}
			if dials := len(harness.dialer.Dials()); dials != 2 {
				t.Errorf("dials = %d, want 2", dials)
			}
		})
	}
}

// The retry counter survives traffic on an open channel and grows by
// exactly one on the next abnormal close.
func TestChannelRetryCountAcrossTraffic(t *testing.T) {
	harness := newChannelHarness(t, nil)
	harness.connect(t)
	peer := harness.nextPeer(t)

	harness.channel.mu.Lock()
	harness.channel.retryCount = 2
	harness.channel.mu.Unlock()

	if err := harness.channel.Send([]byte("outbound")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	testutil.RequireReceive(t, peer.Received(), testTimeout, "outbound frame")
	peer.Send([]byte("inbound"))
	testutil.RequireReceive(t, harness.messages, testTimeout, "inbound frame")

	if count := harness.channel.State().RetryCount; count != 2 {
		t.Fatalf("retry count after traffic = %d, want 2", count)
	}

	peer.Drop()
	testutil.RequireReceive(t, harness.closes, testTimeout, "waiting for OnClose")
	if count := harness.channel.State().RetryCount; count != 3 {
		t.Errorf("retry count after abnormal close = %d, want 3", count)
	}
}

func TestChannelRetryCeiling(t *testing.T) {
	harness := newChannelHarness(t, func(config *Config) {
		config.MaxRetries = 2
	})
	refused := errors.New("connection refused")
	harness.dialer.FailNext(refused)
	harness.dialer.FailNext(refused)
	harness.dialer.FailNext(refused)

	harness.connect(t)
	if state := harness.channel.State(); state.RetryCount != 1 || state.Status != StatusConnecting {
		t.Fatalf("after first failure: %+v", state)
	}

	harness.clock.Advance(testRetryDelay)
	if state := harness.channel.State(); state.RetryCount != 2 || state.Status != StatusConnecting {
		t.Fatalf("after second failure: %+v", state)
	}

	harness.clock.Advance(testRetryDelay)
	state := harness.channel.State()
	if state.Status != StatusFailed {
		t.Fatalf("after third failure: status = %v, want failed", state.Status)
	}
	if !strings.Contains(state.LastError, "connection refused") {
		t.Errorf("LastError = %q, want the dial error", state.LastError)
	}
	if pending := harness.clock.PendingCount(); pending != 0 {
		t.Errorf("pending timers = %d, want 0", pending)
	}
	harness.clock.Advance(time.Hour)
	if dials := len(harness.dialer.Dials()); dials != 3 {
		t.Fatalf("dials = %d, want 3", dials)
	}

	if err := harness.channel.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	harness.nextPeer(t)
	state = harness.channel.State()
	if state.Status != StatusOpen || state.RetryCount != 0 {
		t.Errorf("after Reset: %+v, want open", state)
	}
}

func TestChannelCredentialFailureWaitsCredentialDelay(t *testing.T) {
	harness := newChannelHarness(t, nil)
	harness.failCredentials(errors.New("session expired"))

	harness.connect(t)
	state := harness.channel.State()
	if state.Status != StatusConnecting || state.RetryCount != 1 {
		t.Fatalf("state = %+v, want connecting with one retry", state)
	}
	if !strings.Contains(state.LastError, "access token") {
		t.Errorf("LastError = %q", state.LastError)
	}
	if dials := len(harness.dialer.Dials()); dials != 0 {
		t.Fatalf("dials = %d, want 0 without a token", dials)
	}

	harness.clock.Advance(testRetryDelay)
	if calls := harness.credentialCalls(); calls != 1 {
		t.Fatalf("credential calls after RetryDelay = %d, want 1", calls)
	}
	harness.clock.Advance(testCredentialRetryDelay - testRetryDelay)
	if calls := harness.credentialCalls(); calls != 2 {
		t.Fatalf("credential calls after CredentialRetryDelay = %d, want 2", calls)
	}

	peer := harness.nextPeer(t)
	if peer.Token != "token-2" {
		t.Errorf("token = %q, want token-2", peer.Token)
	}
}

func TestChannelResetDropsStaleGeneration(t *testing.T) {
	harness := newChannelHarness(t, nil)
	harness.connect(t)
	first := harness.nextPeer(t)
	before := harness.channel.State().Generation

	if err := harness.channel.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	second := harness.nextPeer(t)
	testutil.RequireClosed(t, first.Closed(), testTimeout, "old connection closed")

	if after := harness.channel.State().Generation; after <= before {
		t.Errorf("generation = %d after reset, want > %d", after, before)
	}

	first.Send([]byte("stale"))
	first.Drop()
	second.Send([]byte("fresh"))

	if got := testutil.RequireReceive(t, harness.messages, testTimeout, "fresh frame"); got != "fresh" {
		t.Fatalf("delivered %q, want fresh", got)
	}
	testutil.RequireNoReceive(t, harness.messages, 50*time.Millisecond, "stale frame leaked")
	testutil.RequireNoReceive(t, harness.closes, 50*time.Millisecond, "stale close leaked")
	if status := harness.channel.State().Status; status != StatusOpen {
		t.Errorf("status = %v, want open", status)
	}
}

func TestChannelResetCancelsPendingReconnect(t *testing.T) {
	harness := newChannelHarness(t, nil)
	harness.connect(t)
	peer := harness.nextPeer(t)

	peer.Drop()
	testutil.RequireReceive(t, harness.closes, testTimeout, "waiting for OnClose")
	if pending := harness.clock.PendingCount(); pending != 1 {
		t.Fatalf("pending timers = %d, want 1", pending)
	}

	if err := harness.channel.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	harness.nextPeer(t)
	if pending := harness.clock.PendingCount(); pending != 0 {
		t.Errorf("pending timers after Reset = %d, want 0", pending)
	}

	harness.clock.Advance(time.Hour)
	if dials := len(harness.dialer.Dials()); dials != 2 {
		t.Errorf("dials = %d, want 2", dials)
	}
}

func TestChannelClose(t *testing.T) {
	harness := newChannelHarness(t, nil)
	harness.connect(t)
	peer := harness.nextPeer(t)

	peer.Drop()
	testutil.RequireReceive(t, harness.closes, testTimeout, "waiting for OnClose")

	if err := harness.channel.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := harness.channel.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if pending := harness.clock.PendingCount(); pending != 0 {
		t.Errorf("pending timers after Close = %d, want 0", pending)
	}
	if status := harness.channel.State().Status; status != StatusClosed {
		t.Errorf("status = %v, want closed", status)
	}
	if err := harness.channel.Send([]byte("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if err := harness.channel.Reset(); !errors.Is(err, ErrClosed) {
		t.Errorf("Reset after Close = %v, want ErrClosed", err)
	}

	harness.clock.Advance(time.Hour)
	if dials := len(harness.dialer.Dials()); dials != 1 {
		t.Errorf("dials = %d, want 1", dials)
	}
}

func TestChannelCloseWhileOpen(t *testing.T) {
	harness := newChannelHarness(t, nil)
	harness.connect(t)
	peer := harness.nextPeer(t)

	harness.channel.Close()
	testutil.RequireClosed(t, peer.Closed(), testTimeout, "connection closed")
	testutil.RequireNoReceive(t, harness.closes, 50*time.Millisecond, "OnClose after Close")
}

func TestChannelContextCancelCloses(t *testing.T) {
	states := make(chan State, 16)
	harness := newChannelHarness(t, func(config *Config) {
		config.OnStateChange = func(state State) { states <- state }
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := harness.channel.Connect(ctx, harness.handler()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	peer := harness.nextPeer(t)

	cancel()
	testutil.RequireClosed(t, peer.Closed(), testTimeout, "connection closed on cancel")
	for {
		state := testutil.RequireReceive(t, states, testTimeout, "waiting for closed state")
		if state.Status == StatusClosed {
			break
		}
	}
}
