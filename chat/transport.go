// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/rendezvous/lib/clock"
	"github.com/bureau-foundation/rendezvous/messaging"
	"github.com/bureau-foundation/rendezvous/transport"
)

// ErrEmptyMessage is returned by Send for blank text.
var ErrEmptyMessage = errors.New("chat: empty message")

// Backend is the HTTP side of a conversation. *messaging.Client
// implements it.
type Backend interface {
	History(ctx context.Context, conversation string) ([]messaging.MessageRecord, error)
	UploadFile(ctx context.Context, conversation, name string, content io.Reader) (*messaging.UploadResult, error)
}

// Hooks are optional callbacks. OnMessage fires for every entry added
// to the list by a live frame or a successful upload, never for
// duplicates.
type Hooks struct {
	OnOpen    func()
	OnMessage func(Message)
	OnClose   func(transport.CloseEvent)
}

// Config configures a Transport.
type Config struct {
	// Conversation identifies the conversation context. Required.
	Conversation string

	// Channel configures the websocket channel. Channel.Name defaults
	// to "chat", and Channel.Logger and Channel.Clock default to the
	// fields below.
	Channel transport.Config

	// Backend serves history and uploads. Required.
	Backend Backend

	Hooks  Hooks
	Clock  clock.Clock
	Logger *slog.Logger
}

// Transport is one conversation: its channel, its message list, and
// the backend requests around them.
type Transport struct {
	conversation string
	channel      *transport.Channel
	backend      Backend
	list         *MessageList
	hooks        Hooks
	clock        clock.Clock
	logger       *slog.Logger
}

// NewTransport creates a Transport. The channel is not opened until
// Connect.
func NewTransport(config Config) (*Transport, error) {
	if config.Conversation == "" {
		return nil, fmt.Errorf("chat: Conversation is required")
	}
	if config.Backend == nil {
		return nil, fmt.Errorf("chat: Backend is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	channelConfig := config.Channel
	if channelConfig.Name == "" {
		channelConfig.Name = "chat"
	}
	if channelConfig.Clock == nil {
		channelConfig.Clock = clk
	}
	if channelConfig.Logger == nil {
		channelConfig.Logger = logger
	}

	return &Transport{
		conversation: config.Conversation,
		channel:      transport.New(channelConfig),
		backend:      config.Backend,
		list:         NewMessageList(),
		hooks:        config.Hooks,
		clock:        clk,
		logger:       logger.With("conversation", config.Conversation),
	}, nil
}

// Connect opens the channel. Live messages are merged into the list as
// they arrive.
func (t *Transport) Connect(ctx context.Context) error {
	return t.channel.Connect(ctx, transport.HandlerFuncs{
		Open:    t.hooks.OnOpen,
		Message: t.receive,
		Close:   t.hooks.OnClose,
	})
}

// liveFrame is a pushed chat frame: a message record, optionally
// tagged with a type.
type liveFrame struct {
	Type string `json:"type"`
	messaging.MessageRecord
}

func (t *Transport) receive(data []byte) {
	var frame liveFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.logger.Warn("dropping undecodable chat frame", "error", err, "size", len(data))
		return
	}
	switch frame.Type {
	case "", "chat_message", "message":
	default:
		t.logger.Debug("ignoring chat frame", "type", frame.Type)
		return
	}
	if frame.ID == "" {
		t.logger.Warn("dropping chat message without id")
		return
	}

	message := FromRecord(frame.MessageRecord)
	if !t.list.Append(message) {
		t.logger.Debug("duplicate chat message", "id", message.ID)
		return
	}
	if t.hooks.OnMessage != nil {
		t.hooks.OnMessage(message)
	}
}

type outboundFrame struct {
	Message string `json:"message"`
}

// Send posts text to the conversation. Blank text and a channel that
// is not open are rejected locally. The message joins the list when
// the backend echoes it back.
func (t *Transport) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if status := t.channel.State().Status; status != transport.StatusOpen {
		return fmt.Errorf("chat: cannot send while %s: %w", status, transport.ErrNotOpen)
	}
	data, err := json.Marshal(outboundFrame{Message: text})
	if err != nil {
		return fmt.Errorf("chat: encoding message: %w", err)
	}
	if err := t.channel.Send(data); err != nil {
		return fmt.Errorf("chat: sending message: %w", err)
	}
	return nil
}

// UploadFile uploads content and, on success, appends a local
// informational entry. On failure the list is untouched.
func (t *Transport) UploadFile(ctx context.Context, name string, content io.Reader) error {
	result, err := t.backend.UploadFile(ctx, t.conversation, name, content)
	if err != nil {
		return fmt.Errorf("chat: uploading %s: %w", name, err)
	}

	entry := Message{
		ID:         "local-" + uuid.NewString(),
		SenderRole: "system",
		Text:       fmt.Sprintf("Uploaded %s", name),
		CreatedAt:  t.clock.Now(),
		Local:      true,
	}
	t.list.Append(entry)
	if t.hooks.OnMessage != nil {
		t.hooks.OnMessage(entry)
	}

	// The backend's own message for the upload, when returned, usually
	// also arrives live; the list drops whichever comes second.
	if result != nil && result.Message != nil && result.Message.ID != "" {
		message := FromRecord(*result.Message)
		if t.list.Append(message) && t.hooks.OnMessage != nil {
			t.hooks.OnMessage(message)
		}
	}
	return nil
}

// LoadHistory fetches stored messages and merges them ahead of any
// live ones. Returns the number of new entries.
func (t *Transport) LoadHistory(ctx context.Context) (int, error) {
	records, err := t.backend.History(ctx, t.conversation)
	if err != nil {
		return 0, fmt.Errorf("chat: loading history: %w", err)
	}
	history := make([]Message, 0, len(records))
	for _, record := range records {
		history = append(history, FromRecord(record))
	}
	added := t.list.MergeHistory(history)
	t.logger.Info("history loaded", "records", len(records), "new", added)
	return added, nil
}

// Messages returns a snapshot of the ordered message list.
func (t *Transport) Messages() []Message { return t.list.Messages() }

// List returns the live message list, for resolvers and views.
func (t *Transport) List() *MessageList { return t.list }

// State returns the channel state.
func (t *Transport) State() transport.State { return t.channel.State() }

// Reconnect drops the current connection and starts over with a fresh
// retry budget. This is the way out of a failed channel.
func (t *Transport) Reconnect() error { return t.channel.Reset() }

// Close shuts the channel down. The message list stays readable.
func (t *Transport) Close() error { return t.channel.Close() }
