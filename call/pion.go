// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"fmt"
	"log/slog"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// Compile-time interface check.
var _ Peer = (*PionPeer)(nil)

// PionConfig configures the pion peer factory.
type PionConfig struct {
	ICE ICEConfig

	// IncludeLoopback gathers loopback candidates. Needed when both
	// participants run on one machine, as in tests.
	IncludeLoopback bool

	Logger *slog.Logger
}

// NewPionPeerFactory builds one pion API (default codecs and
// interceptors) shared by every peer it creates.
func NewPionPeerFactory(config PionConfig) (PeerFactory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("registering codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("registering interceptors: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if config.IncludeLoopback {
		settingEngine.SetIncludeLoopbackCandidate(true)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settingEngine),
	)
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(events PeerEvents) (Peer, error) {
		return newPionPeer(api, config.ICE, events, logger)
	}, nil
}

// PionPeer is a Peer backed by a pion PeerConnection.
type PionPeer struct {
	connection *webrtc.PeerConnection
	logger     *slog.Logger
}

func newPionPeer(api *webrtc.API, ice ICEConfig, events PeerEvents, logger *slog.Logger) (*PionPeer, error) {
	connection, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: ice.Servers})
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	connection.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if candidate == nil || events.OnICECandidate == nil {
			return
		}
		events.OnICECandidate(candidate.ToJSON())
	})
	connection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("peer connection state", "state", state.String())
		if events.OnConnectionState != nil {
			events.OnConnectionState(state)
		}
	})
	connection.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Info("remote track",
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType,
		)
		if events.OnTrack != nil {
			events.OnTrack(RemoteTrack{
				Kind:     track.Kind(),
				TrackID:  track.ID(),
				StreamID: track.StreamID(),
				Track:    track,
			})
		}
	})

	return &PionPeer{connection: connection, logger: logger}, nil
}

func (p *PionPeer) AddTracks(localMedia *LocalMedia) error {
	for _, track := range localMedia.Tracks() {
		sender, err := p.connection.AddTrack(track.Track)
		if err != nil {
			return fmt.Errorf("adding %s track: %w", track.Kind, err)
		}
		// RTCP has to be read for interceptors (NACK, reports) to run.
		go func() {
			buffer := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buffer); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

func (p *PionPeer) CreateOffer() (string, error) {
	offer, err := p.connection.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("creating SDP offer: %w", err)
	}
	if err := p.connection.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}
	return offer.SDP, nil
}

func (p *PionPeer) CreateAnswer() (string, error) {
	answer, err := p.connection.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("creating SDP answer: %w", err)
	}
	if err := p.connection.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}
	return answer.SDP, nil
}

func (p *PionPeer) SetRemoteDescription(description webrtc.SessionDescription) error {
	if err := p.connection.SetRemoteDescription(description); err != nil {
		return fmt.Errorf("setting remote %s: %w", description.Type, err)
	}
	return nil
}

func (p *PionPeer) HasRemoteDescription() bool {
	return p.connection.RemoteDescription() != nil
}

func (p *PionPeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	if err := p.connection.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("adding ICE candidate: %w", err)
	}
	return nil
}

func (p *PionPeer) Close() error {
	return p.connection.Close()
}
