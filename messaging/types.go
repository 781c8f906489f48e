// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bureau-foundation/rendezvous/lib/identity"
)

// MessageID is a chat message identifier. The backend emits integers
// for persisted messages and strings for some synthesized ones; both
// normalize to the decimal or literal string form.
type MessageID string

// UnmarshalJSON accepts a JSON string or number.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("message id: %w", err)
		}
		*id = MessageID(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	if value, err := strconv.ParseInt(number.String(), 10, 64); err == nil {
		*id = MessageID(strconv.FormatInt(value, 10))
		return nil
	}
	*id = MessageID(number.String())
	return nil
}

// MessageRecord is one chat message as the backend serializes it, in
// history pages and in live frames alike.
type MessageRecord struct {
	ID         MessageID   `json:"id"`
	SenderID   identity.ID `json:"sender_id"`
	SenderName string      `json:"sender_name,omitempty"`
	SenderRole string      `json:"sender_role,omitempty"`

	// Message is the text body. It is empty for file messages.
	Message string `json:"message,omitempty"`

	FileURL  string `json:"file_url,omitempty"`
	FileType string `json:"file_type,omitempty"`
	FileName string `json:"file_name,omitempty"`

	// CreatedAt is kept as sent; the chat layer decides what counts as
	// a valid timestamp.
	CreatedAt string `json:"created_at,omitempty"`
}

// UploadResult is the backend's response to a file upload.
type UploadResult struct {
	// Message is the chat message created for the upload, when the
	// backend returns one.
	Message *MessageRecord `json:"message,omitempty"`
	FileURL string         `json:"file_url,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type refreshFileResponse struct {
	FileURL string `json:"file_url"`
}

// historyPage is the paginated form of the history response.
type historyPage struct {
	Results []json.RawMessage `json:"results"`
}
