// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/rendezvous/lib/identity"
	"github.com/bureau-foundation/rendezvous/signaling"
)

// State is the call state shown to the user.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateCalling
	StateConnecting
	StateConnected
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateCalling:
		return "calling"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether an attempt is in progress.
func (s State) Active() bool {
	return s == StateInitializing || s == StateCalling || s == StateConnecting || s == StateConnected
}

var (
	// ErrBusy is returned when a call is already in progress.
	ErrBusy = errors.New("call: a call is already in progress")

	// ErrNoIncomingCall is returned by Accept and Decline when no offer
	// is waiting.
	ErrNoIncomingCall = errors.New("call: no incoming call")

	// ErrNoCall is returned by End when no call is in progress.
	ErrNoCall = errors.New("call: no call in progress")

	// ErrStopped is returned by commands issued after Run has returned.
	ErrStopped = errors.New("call: session stopped")
)

// Participant identifies one side of a call.
type Participant struct {
	ID   identity.ID
	Name string
}

// Signaler sends signaling messages to the other participant.
// *signaling.Transport implements it.
type Signaler interface {
	Send(message signaling.Message) error
}

// Hooks are called from the session's event loop. They must return
// quickly and must not call Session methods that wait for a result
// (StartCall, Accept, ...); hand those off to another goroutine.
type Hooks struct {
	OnStateChange  func(Snapshot)
	OnIncomingCall func(caller Participant)
	OnError        func(err error)
	OnRemoteTrack  func(track RemoteTrack)
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	State  State
	Local  Participant
	Remote Participant

	// IncomingCall is set while an offer waits for Accept or Decline.
	IncomingCall bool

	LastError    string
	AudioEnabled bool
	VideoEnabled bool

	// Attempt increases every time an attempt is torn down.
	Attempt uint64
}

// Config configures a Session.
type Config struct {
	Local    Participant
	Signaler Signaler
	Media    MediaSource
	NewPeer  PeerFactory

	// Constraints selects the media captured per attempt. The zero
	// value means audio and video.
	Constraints MediaConstraints

	Hooks  Hooks
	Logger *slog.Logger
}

// Session is the call state machine for one call context.
type Session struct {
	local       Participant
	signaler    Signaler
	media       MediaSource
	newPeer     PeerFactory
	constraints MediaConstraints
	hooks       Hooks
	logger      *slog.Logger

	inbox   mailbox
	running atomic.Bool
	done    chan struct{}

	// Owned by the event loop.
	ctx          context.Context
	state        State
	remote       Participant
	pendingOffer *signaling.Offer
	localReady   bool
	remoteReady  bool
	attempt      uint64
	peer         Peer
	localMedia   *LocalMedia
	candidates   CandidateBuffer
	audioEnabled bool
	videoEnabled bool
	lastError    string

	snapshotMu sync.Mutex
	snapshot   Snapshot
}

// NewSession creates a Session in StateIdle. Nothing happens until Run.
func NewSession(config Config) (*Session, error) {
	if config.Local.ID.IsZero() {
		return nil, errors.New("call: Config.Local.ID is required")
	}
	if config.Signaler == nil {
		return nil, errors.New("call: Config.Signaler is required")
	}
	if config.Media == nil {
		return nil, errors.New("call: Config.Media is required")
	}
	if config.NewPeer == nil {
		return nil, errors.New("call: Config.NewPeer is required")
	}
	constraints := config.Constraints
	if !constraints.Audio && !constraints.Video {
		constraints = MediaConstraints{Audio: true, Video: true}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		local:        config.Local,
		signaler:     config.Signaler,
		media:        config.Media,
		newPeer:      config.NewPeer,
		constraints:  constraints,
		hooks:        config.Hooks,
		logger:       logger.With("participant", config.Local.ID),
		inbox:        mailbox{wake: make(chan struct{}, 1)},
		done:         make(chan struct{}),
		ctx:          context.Background(),
		audioEnabled: constraints.Audio,
		videoEnabled: constraints.Video,
	}
	s.publish()
	return s, nil
}

// Run processes events until ctx is cancelled. An active call is hung
// up (EndCall sent, media and peer released) before Run returns.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("call: Run called twice")
	}
	defer close(s.done)
	s.ctx = ctx

	for {
		select {
		case <-ctx.Done():
			s.processPending()
			s.stop()
			return nil
		case <-s.inbox.wake:
			s.processPending()
		}
	}
}

// Snapshot returns the state as of the last processed event.
func (s *Session) Snapshot() Snapshot {
	s.snapshotMu.Lock()
	defer s.snapshotMu.Unlock()
	return s.snapshot
}

// StartCall begins an outbound call.
func (s *Session) StartCall(ctx context.Context) error {
	return s.command(ctx, commandStartCall)
}

// Ready announces that this participant can take a call. If both sides
// are ready the smaller identity places the call; a pending or later
// offer is answered automatically.
func (s *Session) Ready(ctx context.Context) error {
	return s.command(ctx, commandReady)
}

// Accept answers the pending incoming offer.
func (s *Session) Accept(ctx context.Context) error {
	return s.command(ctx, commandAccept)
}

// Decline rejects the pending incoming offer. The caller is told with
// an EndCall; this side stays idle.
func (s *Session) Decline(ctx context.Context) error {
	return s.command(ctx, commandDecline)
}

// End hangs up the current call.
func (s *Session) End(ctx context.Context) error {
	return s.command(ctx, commandEnd)
}

// ToggleAudio flips the local audio mute and returns whether audio is
// now enabled. The preference carries into the next attempt.
func (s *Session) ToggleAudio(ctx context.Context) (bool, error) {
	if err := s.command(ctx, commandToggleAudio); err != nil {
		return false, err
	}
	return s.Snapshot().AudioEnabled, nil
}

// ToggleVideo is ToggleAudio for video.
func (s *Session) ToggleVideo(ctx context.Context) (bool, error) {
	if err := s.command(ctx, commandToggleVideo); err != nil {
		return false, err
	}
	return s.Snapshot().VideoEnabled, nil
}

// HandleSignal queues an inbound signaling message. It never blocks;
// signaling.Handler.OnMessage can call it directly.
func (s *Session) HandleSignal(message signaling.Message) {
	s.inbox.post(signalEvent{message: message})
}

func (s *Session) command(ctx context.Context, kind commandKind) error {
	reply := make(chan error, 1)
	s.inbox.post(command{kind: kind, reply: reply})
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrStopped
		}
	}
}

// --- event loop ---

type commandKind int

const (
	commandStartCall commandKind = iota
	commandReady
	commandAccept
	commandDecline
	commandEnd
	commandToggleAudio
	commandToggleVideo
)

type command struct {
	kind  commandKind
	reply chan error
}

type signalEvent struct {
	message signaling.Message
}

type localCandidateEvent struct {
	attempt   uint64
	candidate webrtc.ICECandidateInit
}

type peerStateEvent struct {
	attempt uint64
	state   webrtc.PeerConnectionState
}

type remoteTrackEvent struct {
	attempt uint64
	track   RemoteTrack
}

func (s *Session) processPending() {
	for _, event := range s.inbox.take() {
		s.dispatch(event)
	}
}

func (s *Session) dispatch(event any) {
	switch e := event.(type) {
	case command:
		e.reply <- s.handleCommand(e.kind)
	case signalEvent:
		s.handleSignal(e.message)
	case localCandidateEvent:
		s.handleLocalCandidate(e)
	case peerStateEvent:
		s.handlePeerState(e)
	case remoteTrackEvent:
		s.handleRemoteTrack(e)
	default:
		s.logger.Error("unhandled session event", "type", fmt.Sprintf("%T", event))
	}
}

func (s *Session) handleCommand(kind commandKind) error {
	switch kind {
	case commandStartCall:
		return s.handleStartCall()
	case commandReady:
		return s.handleReady()
	case commandAccept:
		return s.handleAccept()
	case commandDecline:
		return s.handleDecline()
	case commandEnd:
		return s.handleEnd()
	case commandToggleAudio:
		return s.handleToggle(webrtc.RTPCodecTypeAudio)
	case commandToggleVideo:
		return s.handleToggle(webrtc.RTPCodecTypeVideo)
	default:
		return fmt.Errorf("call: unknown command %d", kind)
	}
}

func (s *Session) handleStartCall() error {
	if s.state.Active() {
		return ErrBusy
	}
	if s.pendingOffer != nil {
		return fmt.Errorf("%w: an incoming call is waiting", ErrBusy)
	}
	return s.placeCall()
}

// placeCall runs Idle → Initializing → Calling.
func (s *Session) placeCall() error {
	s.lastError = ""
	s.setState(StateInitializing)

	if err := s.preparePeer(); err != nil {
		return s.abortPrepare(fmt.Errorf("starting call: %w", err))
	}
	sdp, err := s.peer.CreateOffer()
	if err != nil {
		return s.fail(fmt.Errorf("creating offer: %w", err))
	}
	offer := signaling.Offer{SDP: sdp, CallerID: s.local.ID, CallerName: s.local.Name}
	if err := s.signaler.Send(offer); err != nil {
		return s.fail(fmt.Errorf("sending offer: %w", err))
	}
	s.logger.Info("offer sent", "attempt", s.attempt)
	s.setState(StateCalling)
	return nil
}

func (s *Session) handleReady() error {
	alreadyReady := s.localReady
	s.localReady = true
	if err := s.signaler.Send(signaling.ReadyToCall{UserID: s.local.ID, UserName: s.local.Name}); err != nil {
		s.localReady = alreadyReady
		return fmt.Errorf("announcing readiness: %w", err)
	}
	if s.state.Active() {
		return nil
	}
	if s.pendingOffer != nil {
		return s.acceptPending()
	}
	if s.remoteReady {
		return s.initiateIfSmaller()
	}
	return nil
}

// initiateIfSmaller applies the readiness tie-break.
func (s *Session) initiateIfSmaller() error {
	if s.state != StateIdle || s.remote.ID.IsZero() {
		return nil
	}
	if !s.local.ID.Less(s.remote.ID) {
		s.logger.Info("both sides ready, waiting for the other side to call", "remote", s.remote.ID)
		return nil
	}
	s.logger.Info("both sides ready, placing call", "remote", s.remote.ID)
	return s.placeCall()
}

func (s *Session) handleAccept() error {
	if s.pendingOffer == nil {
		return ErrNoIncomingCall
	}
	if s.state.Active() {
		return ErrBusy
	}
	return s.acceptPending()
}

// acceptPending runs Idle → Connecting for the waiting offer.
func (s *Session) acceptPending() error {
	offer := *s.pendingOffer
	s.pendingOffer = nil
	return s.answer(offer)
}

func (s *Session) answer(offer signaling.Offer) error {
	s.learnRemote(offer.CallerID, offer.CallerName)
	s.lastError = ""

	if err := s.preparePeer(); err != nil {
		return s.abortPrepare(fmt.Errorf("accepting call: %w", err))
	}
	description := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := s.peer.SetRemoteDescription(description); err != nil {
		return s.fail(fmt.Errorf("applying offer: %w", err))
	}
	s.applyBufferedCandidates()

	sdp, err := s.peer.CreateAnswer()
	if err != nil {
		return s.fail(fmt.Errorf("creating answer: %w", err))
	}
	if err := s.signaler.Send(signaling.Answer{SDP: sdp, AnswererID: s.local.ID}); err != nil {
		return s.fail(fmt.Errorf("sending answer: %w", err))
	}
	s.logger.Info("answer sent", "caller", offer.CallerID, "attempt", s.attempt)
	s.setState(StateConnecting)
	return nil
}

func (s *Session) handleDecline() error {
	if s.pendingOffer == nil {
		return ErrNoIncomingCall
	}
	caller := s.pendingOffer.CallerID
	s.pendingOffer = nil
	s.candidates.Clear()
	s.publish()
	if err := s.signaler.Send(signaling.EndCall{UserID: s.local.ID}); err != nil {
		return fmt.Errorf("declining call: %w", err)
	}
	s.logger.Info("incoming call declined", "caller", caller)
	return nil
}

func (s *Session) handleEnd() error {
	if !s.state.Active() {
		return ErrNoCall
	}
	var sendErr error
	if err := s.signaler.Send(signaling.EndCall{UserID: s.local.ID}); err != nil {
		sendErr = fmt.Errorf("sending end of call: %w", err)
		s.logger.Warn("could not notify remote of hang-up", "error", err)
	}
	s.teardown()
	s.clearReadiness()
	s.setState(StateEnded)
	return sendErr
}

func (s *Session) handleToggle(kind webrtc.RTPCodecType) error {
	var enabled bool
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		s.audioEnabled = !s.audioEnabled
		enabled = s.audioEnabled
	default:
		s.videoEnabled = !s.videoEnabled
		enabled = s.videoEnabled
	}
	if s.localMedia != nil {
		s.localMedia.SetEnabled(kind, enabled)
	}
	s.publish()
	return nil
}

// --- signaling ---

func (s *Session) handleSignal(message signaling.Message) {
	if _, ok := message.(signaling.Ping); !ok && message.Sender() == s.local.ID {
		s.logger.Debug("ignoring own signaling message", "kind", message.Kind())
		return
	}

	switch m := message.(type) {
	case signaling.Offer:
		s.handleOffer(m)
	case signaling.Answer:
		s.handleAnswer(m)
	case signaling.ICECandidate:
		s.handleRemoteCandidate(m)
	case signaling.ReadyToCall:
		s.handleRemoteReady(m)
	case signaling.EndCall:
		s.handleRemoteEnd(m)
	case signaling.Ping:
		s.logger.Debug("ping", "text", m.Text)
	default:
		s.logger.Warn("ignoring unsupported signaling message", "kind", message.Kind())
	}
}

func (s *Session) handleOffer(offer signaling.Offer) {
	switch s.state {
	case StateIdle, StateEnded, StateFailed:
		if s.pendingOffer != nil && s.pendingOffer.CallerID != offer.CallerID {
			s.logger.Info("offer replaced by another caller",
				"previous", s.pendingOffer.CallerID,
				"caller", offer.CallerID,
			)
			s.candidates.Clear()
		}
		s.pendingOffer = &offer
		s.learnRemote(offer.CallerID, offer.CallerName)
		if s.localReady {
			s.logger.Info("answering offer automatically", "caller", offer.CallerID)
			s.reportError(s.acceptPending())
			return
		}
		s.logger.Info("incoming call", "caller", offer.CallerID)
		s.publish()
		if s.hooks.OnIncomingCall != nil {
			s.hooks.OnIncomingCall(s.remote)
		}

	case StateCalling:
		if !s.fromRemote(offer.CallerID) {
			s.logger.Warn("ignoring offer from a third participant", "caller", offer.CallerID)
			return
		}
		if !offer.CallerID.Less(s.local.ID) {
			s.logger.Info("offer collision, keeping our own offer", "caller", offer.CallerID)
			return
		}
		s.logger.Info("offer collision, answering the remote offer", "caller", offer.CallerID)
		early := s.candidates.Drain()
		s.teardown()
		for _, candidate := range early {
			s.candidates.Push(candidate)
		}
		s.reportError(s.answer(offer))

	default:
		s.logger.Warn("ignoring offer during an active call",
			"caller", offer.CallerID,
			"state", s.state.String(),
		)
	}
}

func (s *Session) handleAnswer(answer signaling.Answer) {
	if s.state != StateCalling || s.peer == nil {
		s.logger.Debug("ignoring answer", "state", s.state.String())
		return
	}
	if !s.fromRemote(answer.AnswererID) {
		s.logger.Warn("ignoring answer from a third participant", "sender", answer.AnswererID)
		return
	}
	if s.remote.ID.IsZero() {
		s.remote.ID = answer.AnswererID
	}

	description := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}
	if err := s.peer.SetRemoteDescription(description); err != nil {
		s.reportError(s.fail(fmt.Errorf("applying answer: %w", err)))
		return
	}
	s.applyBufferedCandidates()
	s.setState(StateConnecting)
}

func (s *Session) handleRemoteCandidate(message signaling.ICECandidate) {
	if message.Candidate.Candidate == "" {
		return
	}
	if !s.fromRemote(message.SenderID) {
		s.logger.Debug("ignoring candidate from a third participant", "sender", message.SenderID)
		return
	}
	waitingOffer := s.pendingOffer != nil && s.pendingOffer.CallerID == message.SenderID
	if !s.state.Active() && !waitingOffer {
		s.logger.Debug("ignoring candidate outside a call", "state", s.state.String())
		return
	}
	if s.peer == nil || !s.peer.HasRemoteDescription() {
		s.candidates.Push(message.Candidate)
		return
	}
	s.applyCandidate(message.Candidate)
}

func (s *Session) handleRemoteReady(message signaling.ReadyToCall) {
	firstAnnouncement := !s.remoteReady
	s.remoteReady = true
	if !s.state.Active() && s.pendingOffer == nil {
		s.learnRemote(message.UserID, message.UserName)
	}
	if !s.localReady {
		return
	}
	// Answer the first announcement so a participant who joined after
	// our own announcement also learns that we are ready.
	if firstAnnouncement {
		if err := s.signaler.Send(signaling.ReadyToCall{UserID: s.local.ID, UserName: s.local.Name}); err != nil {
			s.logger.Warn("could not repeat readiness", "error", err)
		}
	}
	if s.state.Active() || s.pendingOffer != nil {
		return
	}
	s.reportError(s.initiateIfSmaller())
}

func (s *Session) handleRemoteEnd(message signaling.EndCall) {
	if s.pendingOffer != nil && s.pendingOffer.CallerID == message.UserID && !s.state.Active() {
		s.logger.Info("caller withdrew the offer", "caller", message.UserID)
		s.pendingOffer = nil
		s.candidates.Clear()
		s.publish()
		return
	}
	if !s.state.Active() || !s.fromRemote(message.UserID) {
		return
	}
	s.logger.Info("remote ended the call", "remote", message.UserID)
	s.teardown()
	s.clearReadiness()
	s.setState(StateEnded)
}

// learnRemote records the remote participant, keeping a known name
// when a message for the same participant omits it.
func (s *Session) learnRemote(id identity.ID, name string) {
	if name == "" && s.remote.ID == id {
		name = s.remote.Name
	}
	s.remote = Participant{ID: id, Name: name}
}

// fromRemote reports whether sender is the known remote participant,
// or could be because the remote is not known yet.
func (s *Session) fromRemote(sender identity.ID) bool {
	return s.remote.ID.IsZero() || s.remote.ID == sender
}

// --- candidates ---

func (s *Session) applyBufferedCandidates() {
	for _, candidate := range s.candidates.Drain() {
		s.applyCandidate(candidate)
	}
}

func (s *Session) applyCandidate(candidate webrtc.ICECandidateInit) {
	if err := s.peer.AddICECandidate(candidate); err != nil {
		s.logger.Warn("remote candidate rejected", "error", err)
	}
}

// --- peer callbacks ---

func (s *Session) handleLocalCandidate(event localCandidateEvent) {
	if event.attempt != s.attempt || s.peer == nil {
		return
	}
	message := signaling.ICECandidate{Candidate: event.candidate, SenderID: s.local.ID}
	if err := s.signaler.Send(message); err != nil {
		s.logger.Warn("could not send local candidate", "error", err)
	}
}

func (s *Session) handlePeerState(event peerStateEvent) {
	if event.attempt != s.attempt || s.peer == nil {
		s.logger.Debug("dropping state change from an old attempt", "state", event.state.String())
		return
	}
	switch event.state {
	case webrtc.PeerConnectionStateConnected:
		if s.state == StateConnecting {
			s.logger.Info("call connected", "remote", s.remote.ID)
			s.setState(StateConnected)
		}
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		if s.state.Active() {
			s.reportError(s.fail(fmt.Errorf("peer connection %s", event.state)))
		}
	}
}

func (s *Session) handleRemoteTrack(event remoteTrackEvent) {
	if event.attempt != s.attempt || s.peer == nil {
		return
	}
	if s.hooks.OnRemoteTrack != nil {
		s.hooks.OnRemoteTrack(event.track)
	}
}

// --- attempt lifecycle ---

// preparePeer captures media, creates the attempt's peer, and attaches
// the tracks. Callbacks are tagged with the current attempt.
func (s *Session) preparePeer() error {
	localMedia, err := s.media.Acquire(s.ctx, s.constraints)
	if err != nil {
		if errors.Is(err, ErrMediaUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrMediaUnavailable, err)
	}
	s.localMedia = localMedia
	localMedia.SetEnabled(webrtc.RTPCodecTypeAudio, s.audioEnabled)
	localMedia.SetEnabled(webrtc.RTPCodecTypeVideo, s.videoEnabled)

	attempt := s.attempt
	peer, err := s.newPeer(PeerEvents{
		OnICECandidate: func(candidate webrtc.ICECandidateInit) {
			s.inbox.post(localCandidateEvent{attempt: attempt, candidate: candidate})
		},
		OnConnectionState: func(state webrtc.PeerConnectionState) {
			s.inbox.post(peerStateEvent{attempt: attempt, state: state})
		},
		OnTrack: func(track RemoteTrack) {
			s.inbox.post(remoteTrackEvent{attempt: attempt, track: track})
		},
	})
	if err != nil {
		return fmt.Errorf("creating peer: %w", err)
	}
	s.peer = peer
	if err := peer.AddTracks(localMedia); err != nil {
		return err
	}
	return nil
}

// abortPrepare handles a failure before negotiation started. Media
// failures return the session to Idle; anything else fails the
// attempt.
func (s *Session) abortPrepare(err error) error {
	if !errors.Is(err, ErrMediaUnavailable) {
		return s.fail(err)
	}
	s.teardown()
	s.lastError = err.Error()
	s.logger.Warn("call not started", "error", err)
	s.setState(StateIdle)
	return err
}

// fail tears the attempt down and moves to Failed. The signaling
// channel stays open.
func (s *Session) fail(err error) error {
	s.teardown()
	s.clearReadiness()
	s.lastError = err.Error()
	s.logger.Error("call failed", "error", err, "remote", s.remote.ID)
	s.setState(StateFailed)
	return err
}

// teardown releases everything the attempt owns. Safe to call any
// number of times; only the first call after an attempt does anything.
func (s *Session) teardown() {
	if s.peer == nil && s.localMedia == nil && s.candidates.IsEmpty() {
		return
	}
	if s.localMedia != nil {
		s.localMedia.Release()
		s.localMedia = nil
	}
	if s.peer != nil {
		if err := s.peer.Close(); err != nil {
			s.logger.Warn("closing peer connection", "error", err)
		}
		s.peer = nil
	}
	s.candidates.Clear()
	s.attempt++
}

// clearReadiness forgets both announcements once an attempt is over.
// Another call needs a fresh StartCall or Ready.
func (s *Session) clearReadiness() {
	s.localReady = false
	s.remoteReady = false
}

// stop hangs up on shutdown.
func (s *Session) stop() {
	if s.state.Active() {
		if err := s.signaler.Send(signaling.EndCall{UserID: s.local.ID}); err != nil {
			s.logger.Debug("could not notify remote on shutdown", "error", err)
		}
		s.teardown()
		s.setState(StateEnded)
		return
	}
	s.pendingOffer = nil
	s.teardown()
	s.publish()
}

// reportError passes a handler error to the OnError hook.
func (s *Session) reportError(err error) {
	if err != nil && s.hooks.OnError != nil {
		s.hooks.OnError(err)
	}
}

func (s *Session) setState(state State) {
	if s.state != state {
		s.logger.Debug("call state", "from", s.state.String(), "to", state.String())
	}
	s.state = state
	snapshot := s.publish()
	if s.hooks.OnStateChange != nil {
		s.hooks.OnStateChange(snapshot)
	}
}

func (s *Session) publish() Snapshot {
	snapshot := Snapshot{
		State:        s.state,
		Local:        s.local,
		Remote:       s.remote,
		IncomingCall: s.pendingOffer != nil,
		LastError:    s.lastError,
		AudioEnabled: s.audioEnabled,
		VideoEnabled: s.videoEnabled,
		Attempt:      s.attempt,
	}
	s.snapshotMu.Lock()
	s.snapshot = snapshot
	s.snapshotMu.Unlock()
	return snapshot
}

// mailbox is an unbounded FIFO of session events. Posting never blocks,
// so peer callbacks cannot stall the peer connection while the loop is
// busy closing it.
type mailbox struct {
	mu    sync.Mutex
	queue []any
	wake  chan struct{}
}

func (m *mailbox) post(event any) {
	m.mu.Lock()
	m.queue = append(m.queue, event)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.queue
	m.queue = nil
	return events
}
