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
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/bureau-foundation/rendezvous/lib/clock"
)

// ErrMediaUnavailable wraps every failure to capture local media.
var ErrMediaUnavailable = errors.New("local media unavailable")

// MediaConstraints selects the kinds of media to capture.
type MediaConstraints struct {
	Audio bool
	Video bool
}

// MediaSource captures local media for one call attempt.
type MediaSource interface {
	Acquire(ctx context.Context, constraints MediaConstraints) (*LocalMedia, error)
}

// MediaTrack is one captured local track.
type MediaTrack struct {
	Kind  webrtc.RTPCodecType
	Track webrtc.TrackLocal

	// write forwards samples to the track; nil for tracks that are fed
	// elsewhere.
	write   func(media.Sample) error
	enabled atomic.Bool
}

// LocalMedia is the set of tracks captured for one attempt. It is owned
// by exactly one Session attempt and released when the attempt ends.
type LocalMedia struct {
	tracks []*MediaTrack

	releaseOnce sync.Once
	release     func()
	released    chan struct{}
}

// NewLocalMedia wraps already-captured tracks. release, if non-nil, is
// called once when the media is released.
func NewLocalMedia(release func(), tracks ...*MediaTrack) *LocalMedia {
	for _, track := range tracks {
		track.enabled.Store(true)
	}
	return &LocalMedia{tracks: tracks, release: release, released: make(chan struct{})}
}

// NewMediaTrack wraps a pion track. write, if non-nil, is used by
// WriteSample.
func NewMediaTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal, write func(media.Sample) error) *MediaTrack {
	return &MediaTrack{Kind: kind, Track: track, write: write}
}

// Tracks returns the captured tracks.
func (m *LocalMedia) Tracks() []*MediaTrack { return m.tracks }

// Has reports whether a track of kind was captured.
func (m *LocalMedia) Has(kind webrtc.RTPCodecType) bool {
	for _, track := range m.tracks {
		if track.Kind == kind {
			return true
		}
	}
	return false
}

// SetEnabled mutes or unmutes every track of kind. A disabled track
// stays negotiated but sends nothing.
func (m *LocalMedia) SetEnabled(kind webrtc.RTPCodecType, enabled bool) {
	for _, track := range m.tracks {
		if track.Kind == kind {
			track.enabled.Store(enabled)
		}
	}
}

// Enabled reports whether any track of kind is enabled.
func (m *LocalMedia) Enabled(kind webrtc.RTPCodecType) bool {
	for _, track := range m.tracks {
		if track.Kind == kind && track.enabled.Load() {
			return true
		}
	}
	return false
}

// WriteSample feeds a sample to every enabled track of kind. Samples
// for disabled tracks and after Release are dropped.
func (m *LocalMedia) WriteSample(kind webrtc.RTPCodecType, sample media.Sample) error {
	if m.Released() {
		return nil
	}
	for _, track := range m.tracks {
		if track.Kind != kind || track.write == nil || !track.enabled.Load() {
			continue
		}
		if err := track.write(sample); err != nil {
			return fmt.Errorf("writing %s sample: %w", kind, err)
		}
	}
	return nil
}

// Release stops capture. Safe to call more than once.
func (m *LocalMedia) Release() {
	m.releaseOnce.Do(func() {
		close(m.released)
		if m.release != nil {
			m.release()
		}
	})
}

// Released reports whether Release has been called.
func (m *LocalMedia) Released() bool {
	select {
	case <-m.released:
		return true
	default:
		return false
	}
}

// Opus silence: a single 20ms frame that decodes to digital silence.
var opusSilenceFrame = []byte{0xf8, 0xff, 0xfe}

const audioFrameDuration = 20 * time.Millisecond

// SampleMediaSource produces pion sample tracks (Opus audio, VP8 video)
// for headless participants. The audio track is kept alive with Opus
// silence; video frames are supplied by the caller through
// LocalMedia.WriteSample.
type SampleMediaSource struct {
	// StreamID groups the tracks into one media stream. Default:
	// "rendezvous".
	StreamID string

	Clock  clock.Clock
	Logger *slog.Logger
}

func (s *SampleMediaSource) Acquire(ctx context.Context, constraints MediaConstraints) (*LocalMedia, error) {
	if !constraints.Audio && !constraints.Video {
		return nil, fmt.Errorf("%w: no media kinds requested", ErrMediaUnavailable)
	}
	streamID := s.StreamID
	if streamID == "" {
		streamID = "rendezvous"
	}
	sourceClock := s.Clock
	if sourceClock == nil {
		sourceClock = clock.Real()
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var tracks []*MediaTrack
	if constraints.Audio {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio", streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: creating audio track: %w", ErrMediaUnavailable, err)
		}
		tracks = append(tracks, NewMediaTrack(webrtc.RTPCodecTypeAudio, audio, audio.WriteSample))
	}
	if constraints.Video {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: creating video track: %w", ErrMediaUnavailable, err)
		}
		tracks = append(tracks, NewMediaTrack(webrtc.RTPCodecTypeVideo, video, video.WriteSample))
	}

	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	localMedia := NewLocalMedia(cancel, tracks...)
	if constraints.Audio {
		go pumpSilence(pumpCtx, sourceClock, localMedia, logger)
	}
	return localMedia, nil
}

// pumpSilence writes one Opus silence frame per frame interval until
// ctx is cancelled.
func pumpSilence(ctx context.Context, sourceClock clock.Clock, localMedia *LocalMedia, logger *slog.Logger) {
	sample := media.Sample{Data: opusSilenceFrame, Duration: audioFrameDuration}
	for {
		select {
		case <-ctx.Done():
			return
		case <-sourceClock.After(audioFrameDuration):
		}
		if err := localMedia.WriteSample(webrtc.RTPCodecTypeAudio, sample); err != nil {
			logger.Debug("audio silence write failed", "error", err)
		}
	}
}
