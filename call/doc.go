// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package call implements the lifecycle of a one-to-one audio/video
// call between two marketplace participants.
//
// A [Session] owns at most one call attempt at a time. An attempt
// captures local media through a [MediaSource], creates a [Peer]
// (pion/webrtc in production), and exchanges offers, answers, and
// trickled ICE candidates with the other participant through a
// [Signaler]. The state machine:
//
//	Idle ──StartCall──▶ Initializing ──offer sent──▶ Calling
//	Idle ──Accept (or Ready with a pending offer)──▶ Connecting
//	Calling ──answer──▶ Connecting ──peer connected──▶ Connected
//	any active state ──End / remote EndCall──▶ Ended
//	any active state ──peer failed/disconnected──▶ Failed
//
// Ended and Failed are terminal for the attempt; a new StartCall or an
// incoming offer begins a fresh attempt with a new peer and new media.
//
// All state is owned by a single event loop ([Session.Run]). Commands
// from the application, decoded signaling messages, and peer callbacks
// are queued and handled one at a time in arrival order. Peer callbacks
// carry the attempt number they were registered under; callbacks from a
// torn-down attempt are dropped. Readers use [Session.Snapshot].
//
// Remote candidates that arrive before the remote description is set
// are held in a [CandidateBuffer] and applied in arrival order as soon
// as it is set.
//
// When both participants announce readiness, the one with the
// numerically smaller identity sends the offer. If both offer at once,
// the offer from the smaller identity wins and the other side abandons
// its own attempt to answer it.
package call
