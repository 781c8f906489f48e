// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package call

import "github.com/pion/webrtc/v4"

// CandidateBuffer holds remote ICE candidates that arrived before the
// remote description was set. The zero value is an empty buffer. Not
// safe for concurrent use; a Session touches it only from its event
// loop.
type CandidateBuffer struct {
	pending []webrtc.ICECandidateInit
}

// Push appends a candidate.
func (b *CandidateBuffer) Push(candidate webrtc.ICECandidateInit) {
	b.pending = append(b.pending, candidate)
}

// Drain returns the buffered candidates in arrival order and empties
// the buffer. A second Drain returns nothing.
func (b *CandidateBuffer) Drain() []webrtc.ICECandidateInit {
	drained := b.pending
	b.pending = nil
	return drained
}

// IsEmpty reports whether nothing is buffered.
func (b *CandidateBuffer) IsEmpty() bool { return len(b.pending) == 0 }

// Len returns the number of buffered candidates.
func (b *CandidateBuffer) Len() int { return len(b.pending) }

// Clear discards everything buffered.
func (b *CandidateBuffer) Clear() { b.pending = nil }
