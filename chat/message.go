// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"strings"
	"time"

	"github.com/bureau-foundation/rendezvous/lib/identity"
	"github.com/bureau-foundation/rendezvous/messaging"
)

// File is a file reference attached to a message.
type File struct {
	// Type is the backend's coarse file category ("image", "video",
	// "document", ...).
	Type string
	// URL is the location as last resolved or recovered.
	URL string
	// Name is the filename the uploader declared.
	Name string
}

// Message is one entry in a conversation. Exactly one of Text and File
// is set for messages from the backend.
type Message struct {
	ID         string
	SenderID   identity.ID
	SenderName string
	SenderRole string

	Text string
	File *File

	// CreatedAt is the zero time when the backend's timestamp was
	// missing or unparseable.
	CreatedAt time.Time

	// Local marks informational entries created on this client, such
	// as upload confirmations. They are never sent to the backend.
	Local bool
}

// IsFile reports whether the message carries a file reference.
func (m Message) IsFile() bool { return m.File != nil }

// HasValidTimestamp reports whether CreatedAt was parsed successfully.
// Messages without one stay in the list but are left out of day
// groupings.
func (m Message) HasValidTimestamp() bool { return !m.CreatedAt.IsZero() }

// timestampLayouts are tried in order. The backend emits RFC 3339 with
// fractional seconds; older records lack the zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// FromRecord converts a backend record. When the record carries a file
// URL the message is a file message and any text is discarded.
func FromRecord(record messaging.MessageRecord) Message {
	message := Message{
		ID:         string(record.ID),
		SenderID:   record.SenderID,
		SenderName: record.SenderName,
		SenderRole: record.SenderRole,
		CreatedAt:  parseTimestamp(record.CreatedAt),
	}
	if record.FileURL != "" {
		message.File = &File{
			Type: record.FileType,
			URL:  record.FileURL,
			Name: record.FileName,
		}
	} else {
		message.Text = record.Message
	}
	return message
}
