// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/rendezvous/lib/identity"
	"github.com/bureau-foundation/rendezvous/lib/testutil"
)

// TestPionSessionsConnect runs two sessions over real pion peer
// connections (loopback candidates only) with signaling delivered
// directly between them.
func TestPionSessionsConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("starts real peer connections")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory, err := NewPionPeerFactory(PionConfig{IncludeLoopback: true, Logger: logger})
	if err != nil {
		t.Fatalf("NewPionPeerFactory: %v", err)
	}

	callerSignaler := &fakeSignaler{}
	calleeSignaler := &fakeSignaler{}
	callerStates := make(chan State, 32)
	calleeStates := make(chan State, 32)
	calleeTracks := make(chan RemoteTrack, 4)

	newSession := func(id identity.ID, signaler *fakeSignaler, states chan State, tracks chan RemoteTrack) *Session {
		session, err := NewSession(Config{
			Local:       Participant{ID: id},
			Signaler:    signaler,
			Media:       &SampleMediaSource{Logger: logger},
			NewPeer:     factory,
			Constraints: MediaConstraints{Audio: true},
			Hooks: Hooks{
				OnStateChange: func(snapshot Snapshot) { states <- snapshot.State },
				OnRemoteTrack: func(track RemoteTrack) {
					if tracks != nil {
						tracks <- track
					}
				},
			},
			Logger: logger,
		})
		if err != nil {
			t.Fatalf("NewSession(%v): %v", id, err)
		}
		return session
	}
	caller := newSession(5, callerSignaler, callerStates, nil)
	callee := newSession(9, calleeSignaler, calleeStates, calleeTracks)
	callerSignaler.deliver = callee.HandleSignal
	calleeSignaler.deliver = caller.HandleSignal

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go caller.Run(ctx)
	go callee.Run(ctx)

	if err := callee.Ready(ctx); err != nil {
		t.Fatalf("callee Ready: %v", err)
	}
	if err := caller.StartCall(ctx); err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	waitForState(t, callerStates, StateConnected)
	waitForState(t, calleeStates, StateConnected)

	track := testutil.RequireReceive(t, calleeTracks, 30*time.Second, "waiting for caller audio")
	if track.Track == nil || track.Kind.String() != "audio" {
		t.Errorf("remote track = %+v, want audio", track)
	}

	if err := caller.End(ctx); err != nil {
		t.Fatalf("End: %v", err)
	}
	waitForState(t, calleeStates, StateEnded)
}

func waitForState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	for {
		got := testutil.RequireReceive(t, states, 30*time.Second, "waiting for %v", want)
		if got == want {
			return
		}
		if got == StateFailed {
			t.Fatalf("call failed while waiting for %v", want)
		}
	}
}
