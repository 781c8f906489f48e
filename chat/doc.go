// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat is the conversation side of rendezvous: a reconnecting
// chat channel, the ordered message list it feeds, and the resolver
// that keeps attached file links loadable.
//
// Messages reach a conversation two ways. [Transport.LoadHistory] pulls
// the stored history from the backend; the websocket channel pushes
// live messages as they are posted. The same message regularly arrives
// through both, so [MessageList] keys every entry by message ID and
// never holds two entries with one ID. A live message whose ID is
// already present is dropped without reordering the list.
//
// A message body is either text or a file reference. The backend
// occasionally serializes both for file messages (the text is the
// caption it generated); the file wins and the text is discarded.
//
// Uploaded files are served from short-lived signed URLs. When one
// stops loading, [Resolver.Recover] asks the backend for a fresh URL,
// at most a fixed number of times per message. Past that ceiling the
// message's file is replaced by a placeholder and no further requests
// are made for it.
package chat
