// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/rendezvous/lib/identity"
)

// Kind is the wire discriminant of a Message.
type Kind string

const (
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice_candidate"
	KindReadyToCall  Kind = "ready_to_call"
	KindEndCall      Kind = "end_call"
	KindPing         Kind = "ping"
)

// Message is one signaling message. The set of implementations is
// closed; switch on the concrete type.
type Message interface {
	// Kind returns the wire discriminant.
	Kind() Kind

	// Sender returns the author's identity. Zero for Ping.
	Sender() identity.ID

	sealed()
}

// Offer proposes a session. Sent by the caller.
type Offer struct {
	SDP        string
	CallerID   identity.ID
	CallerName string
}

// Answer accepts an Offer.
type Answer struct {
	SDP        string
	AnswererID identity.ID
}

// ICECandidate trickles one connectivity candidate.
type ICECandidate struct {
	Candidate webrtc.ICECandidateInit
	SenderID  identity.ID
}

// ReadyToCall announces that a participant has joined and can take a
// call.
type ReadyToCall struct {
	UserID   identity.ID
	UserName string
}

// EndCall hangs up, or declines an incoming offer.
type EndCall struct {
	UserID identity.ID
}

// Ping is a keepalive with no author.
type Ping struct {
	Text string
}

func (Offer) Kind() Kind        { return KindOffer }
func (Answer) Kind() Kind       { return KindAnswer }
func (ICECandidate) Kind() Kind { return KindICECandidate }
func (ReadyToCall) Kind() Kind  { return KindReadyToCall }
func (EndCall) Kind() Kind      { return KindEndCall }
func (Ping) Kind() Kind         { return KindPing }

func (m Offer) Sender() identity.ID        { return m.CallerID }
func (m Answer) Sender() identity.ID       { return m.AnswererID }
func (m ICECandidate) Sender() identity.ID { return m.SenderID }
func (m ReadyToCall) Sender() identity.ID  { return m.UserID }
func (m EndCall) Sender() identity.ID      { return m.UserID }
func (Ping) Sender() identity.ID           { return 0 }

func (Offer) sealed()        {}
func (Answer) sealed()       {}
func (ICECandidate) sealed() {}
func (ReadyToCall) sealed()  {}
func (EndCall) sealed()      {}
func (Ping) sealed()         {}

// ErrUnknownType is returned by Decode for a well-formed object whose
// type is not a known Kind.
var ErrUnknownType = errors.New("signaling: unknown message type")

// MalformedError reports a message that names a known type but is
// missing or has an invalid required field.
type MalformedError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("signaling: malformed %s message: %s %s", e.Kind, e.Field, e.Reason)
}

// wireMessage is the flat JSON shape shared by all variants.
type wireMessage struct {
	Type       Kind                     `json:"type"`
	SDP        string                   `json:"sdp,omitempty"`
	CallerID   json.RawMessage          `json:"caller_id,omitempty"`
	CallerName string                   `json:"caller_name,omitempty"`
	AnswererID json.RawMessage          `json:"answerer_id,omitempty"`
	Candidate  *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	SenderID   json.RawMessage          `json:"sender_id,omitempty"`
	UserID     json.RawMessage          `json:"user_id,omitempty"`
	UserName   string                   `json:"user_name,omitempty"`
	Text       string                   `json:"text,omitempty"`
}

// Encode serializes a message to its wire form.
func Encode(message Message) ([]byte, error) {
	wire := wireMessage{Type: message.Kind()}
	switch m := message.(type) {
	case Offer:
		wire.SDP = m.SDP
		wire.CallerID = encodeID(m.CallerID)
		wire.CallerName = m.CallerName
	case Answer:
		wire.SDP = m.SDP
		wire.AnswererID = encodeID(m.AnswererID)
	case ICECandidate:
		candidate := m.Candidate
		wire.Candidate = &candidate
		wire.SenderID = encodeID(m.SenderID)
	case ReadyToCall:
		wire.UserID = encodeID(m.UserID)
		wire.UserName = m.UserName
	case EndCall:
		wire.UserID = encodeID(m.UserID)
	case Ping:
		wire.Text = m.Text
	default:
		return nil, fmt.Errorf("signaling: cannot encode %T", message)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", message.Kind(), err)
	}
	return data, nil
}

func encodeID(id identity.ID) json.RawMessage {
	if id.IsZero() {
		return nil
	}
	return json.RawMessage(id.String())
}

// Decode parses one wire message. Unknown types return an error
// wrapping ErrUnknownType; missing or invalid required fields return a
// *MalformedError.
func Decode(data []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("signaling: decoding message: %w", err)
	}

	switch wire.Type {
	case KindOffer:
		caller, err := requireID(wire.Type, "caller_id", wire.CallerID)
		if err != nil {
			return nil, err
		}
		if wire.SDP == "" {
			return nil, &MalformedError{Kind: wire.Type, Field: "sdp", Reason: "is empty"}
		}
		return Offer{SDP: wire.SDP, CallerID: caller, CallerName: wire.CallerName}, nil

	case KindAnswer:
		answerer, err := requireID(wire.Type, "answerer_id", wire.AnswererID)
		if err != nil {
			return nil, err
		}
		if wire.SDP == "" {
			return nil, &MalformedError{Kind: wire.Type, Field: "sdp", Reason: "is empty"}
		}
		return Answer{SDP: wire.SDP, AnswererID: answerer}, nil

	case KindICECandidate:
		sender, err := requireID(wire.Type, "sender_id", wire.SenderID)
		if err != nil {
			return nil, err
		}
		if wire.Candidate == nil {
			return nil, &MalformedError{Kind: wire.Type, Field: "candidate", Reason: "is missing"}
		}
		return ICECandidate{Candidate: *wire.Candidate, SenderID: sender}, nil

	case KindReadyToCall:
		user, err := requireID(wire.Type, "user_id", wire.UserID)
		if err != nil {
			return nil, err
		}
		return ReadyToCall{UserID: user, UserName: wire.UserName}, nil

	case KindEndCall:
		user, err := requireID(wire.Type, "user_id", wire.UserID)
		if err != nil {
			return nil, err
		}
		return EndCall{UserID: user}, nil

	case KindPing:
		return Ping{Text: wire.Text}, nil

	case "":
		return nil, &MalformedError{Kind: "untyped", Field: "type", Reason: "is missing"}

	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, wire.Type)
	}
}

// requireID decodes a required participant identifier.
func requireID(kind Kind, field string, raw json.RawMessage) (identity.ID, error) {
	if len(raw) == 0 {
		return 0, &MalformedError{Kind: kind, Field: field, Reason: "is missing"}
	}
	var id identity.ID
	if err := id.UnmarshalJSON(raw); err != nil {
		return 0, &MalformedError{Kind: kind, Field: field, Reason: err.Error()}
	}
	if id.IsZero() {
		return 0, &MalformedError{Kind: kind, Field: field, Reason: "is null"}
	}
	return id, nil
}
