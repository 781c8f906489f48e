// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signaling defines the messages two call participants exchange
// to negotiate a peer connection, and the transport that carries them.
//
// [Message] is a closed set of variants: [Offer], [Answer],
// [ICECandidate], [ReadyToCall], [EndCall], and [Ping]. On the wire
// each is a JSON object whose "type" field names the variant:
//
//	{"type":"offer","sdp":"v=0...","caller_id":5,"caller_name":"Ada"}
//	{"type":"answer","sdp":"v=0...","answerer_id":9}
//	{"type":"ice_candidate","candidate":{"candidate":"candidate:...","sdpMid":"0","sdpMLineIndex":0},"sender_id":5}
//	{"type":"ready_to_call","user_id":9,"user_name":"Grace"}
//	{"type":"end_call","user_id":5}
//	{"type":"ping","text":"keepalive"}
//
// Participant identifiers decode through [identity.ID], so 5, "5", and
// 5.0 name the same participant. A message whose sender identifier is
// missing or not a positive integer fails to decode with a
// [*MalformedError]; an unrecognized type fails with [ErrUnknownType].
// [Transport] logs and drops both.
//
// Every variant except Ping reports its author through Sender. The
// receiving side compares it with its own identity and ignores its own
// messages, which the server echoes back to everyone in the context.
package signaling
