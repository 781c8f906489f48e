// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/rendezvous/lib/identity"
	"github.com/bureau-foundation/rendezvous/signaling"
)

// fakeSignaler records outbound messages.
type fakeSignaler struct {
	mu   sync.Mutex
	sent []signaling.Message
	err  error

	// deliver, if set, receives every sent message.
	deliver func(signaling.Message)
}

func (f *fakeSignaler) Send(message signaling.Message) error {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return f.err
	}
	f.sent = append(f.sent, message)
	deliver := f.deliver
	f.mu.Unlock()
	if deliver != nil {
		deliver(message)
	}
	return nil
}

func (f *fakeSignaler) messages() []signaling.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]signaling.Message(nil), f.sent...)
}

func (f *fakeSignaler) kinds() []signaling.Kind {
	var kinds []signaling.Kind
	for _, message := range f.messages() {
		kinds = append(kinds, message.Kind())
	}
	return kinds
}

func (f *fakeSignaler) count(kind signaling.Kind) int {
	n := 0
	for _, message := range f.messages() {
		if message.Kind() == kind {
			n++
		}
	}
	return n
}

// fakeMediaSource hands out LocalMedia with placeholder tracks.
type fakeMediaSource struct {
	mu       sync.Mutex
	err      error
	acquired []*LocalMedia
	released int
}

func (f *fakeMediaSource) Acquire(_ context.Context, constraints MediaConstraints) (*LocalMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var tracks []*MediaTrack
	if constraints.Audio {
		tracks = append(tracks, NewMediaTrack(webrtc.RTPCodecTypeAudio, nil, nil))
	}
	if constraints.Video {
		tracks = append(tracks, NewMediaTrack(webrtc.RTPCodecTypeVideo, nil, nil))
	}
	localMedia := NewLocalMedia(func() {
		f.mu.Lock()
		f.released++
		f.mu.Unlock()
	}, tracks...)
	f.acquired = append(f.acquired, localMedia)
	return localMedia, nil
}

func (f *fakeMediaSource) releasedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// fakePeer records what the session does to it.
type fakePeer struct {
	events PeerEvents

	tracks          int
	localType       webrtc.SDPType
	remote          *webrtc.SessionDescription
	applied         []string
	closed          int
	remoteErr       error
	offerErr        error
	candidateErrFor string
}

func (p *fakePeer) AddTracks(localMedia *LocalMedia) error {
	p.tracks += len(localMedia.Tracks())
	return nil
}

func (p *fakePeer) CreateOffer() (string, error) {
	if p.offerErr != nil {
		return "", p.offerErr
	}
	p.localType = webrtc.SDPTypeOffer
	return "v=0 offer", nil
}

func (p *fakePeer) CreateAnswer() (string, error) {
	if p.remote == nil {
		return "", errors.New("no remote offer")
	}
	p.localType = webrtc.SDPTypeAnswer
	return "v=0 answer", nil
}

func (p *fakePeer) SetRemoteDescription(description webrtc.SessionDescription) error {
	if p.remoteErr != nil {
		return p.remoteErr
	}
	p.remote = &description
	return nil
}

func (p *fakePeer) HasRemoteDescription() bool { return p.remote != nil }

func (p *fakePeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	if p.remote == nil {
		return errors.New("candidate before remote description")
	}
	if candidate.Candidate == p.candidateErrFor {
		return errors.New("bad candidate")
	}
	p.applied = append(p.applied, candidate.Candidate)
	return nil
}

func (p *fakePeer) Close() error {
	p.closed++
	return nil
}

// fakePeerFactory creates fakePeers and remembers them.
type fakePeerFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
	err   error
}

func (f *fakePeerFactory) New(events PeerEvents) (Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	peer := &fakePeer{events: events}
	f.peers = append(f.peers, peer)
	return peer, nil
}

func (f *fakePeerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *fakePeerFactory) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

// sessionHarness drives a Session's handlers directly on the test
// goroutine, without Run.
type sessionHarness struct {
	session  *Session
	signaler *fakeSignaler
	media    *fakeMediaSource
	peers    *fakePeerFactory

	states   []State
	incoming []Participant
	errs     []error
	tracks   []RemoteTrack
}

func newSessionHarness(t *testing.T, localID identity.ID) *sessionHarness {
	t.Helper()
	harness := &sessionHarness{
		signaler: &fakeSignaler{},
		media:    &fakeMediaSource{},
		peers:    &fakePeerFactory{},
	}
	session, err := NewSession(Config{
		Local:    Participant{ID: localID, Name: "local"},
		Signaler: harness.signaler,
		Media:    harness.media,
		NewPeer:  harness.peers.New,
		Hooks: Hooks{
			OnStateChange:  func(snapshot Snapshot) { harness.states = append(harness.states, snapshot.State) },
			OnIncomingCall: func(caller Participant) { harness.incoming = append(harness.incoming, caller) },
			OnError:        func(err error) { harness.errs = append(harness.errs, err) },
			OnRemoteTrack:  func(track RemoteTrack) { harness.tracks = append(harness.tracks, track) },
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	harness.session = session
	return harness
}

func (h *sessionHarness) do(kind commandKind) error {
	reply := make(chan error, 1)
	h.session.dispatch(command{kind: kind, reply: reply})
	return <-reply
}

func (h *sessionHarness) signal(message signaling.Message) {
	h.session.dispatch(signalEvent{message: message})
}

// pump processes events queued by peer callbacks.
func (h *sessionHarness) pump() {
	h.session.processPending()
}

func (h *sessionHarness) state() State {
	return h.session.Snapshot().State
}

func candidate(text string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: text}
}

func answerFrom9() signaling.Message {
	return signaling.Answer{SDP: "v=0 answer", AnswererID: 9}
}

func iceFrom9(text string) signaling.Message {
	return signaling.ICECandidate{Candidate: candidate(text), SenderID: 9}
}
