// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package call

import "github.com/pion/webrtc/v4"

// Peer is the media-negotiation side of one call attempt. A Session
// creates exactly one Peer per attempt and never reuses it after Close.
// Methods are called only from the session's event loop.
type Peer interface {
	// AddTracks attaches the local tracks before the first offer or
	// answer is created.
	AddTracks(localMedia *LocalMedia) error

	// CreateOffer creates an offer, sets it as the local description,
	// and returns its SDP. Candidates trickle through
	// PeerEvents.OnICECandidate afterwards.
	CreateOffer() (string, error)

	// CreateAnswer does the same for an answer. The remote offer must
	// already be set.
	CreateAnswer() (string, error)

	// SetRemoteDescription applies the remote offer or answer.
	SetRemoteDescription(description webrtc.SessionDescription) error

	// HasRemoteDescription reports whether a remote description has
	// been applied.
	HasRemoteDescription() bool

	// AddICECandidate applies one remote candidate. Only valid once the
	// remote description is set.
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	// Close tears the connection down.
	Close() error
}

// RemoteTrack is a media track received from the other participant.
type RemoteTrack struct {
	Kind     webrtc.RTPCodecType
	TrackID  string
	StreamID string

	// Track is the underlying pion track; nil for non-pion peers.
	Track *webrtc.TrackRemote
}

// PeerEvents are the callbacks a Peer reports through. They may be
// called from any goroutine.
type PeerEvents struct {
	OnICECandidate    func(webrtc.ICECandidateInit)
	OnConnectionState func(webrtc.PeerConnectionState)
	OnTrack           func(RemoteTrack)
}

// PeerFactory creates a Peer that reports through events.
type PeerFactory func(events PeerEvents) (Peer, error)
