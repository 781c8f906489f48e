// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/rendezvous/chat"
	"github.com/bureau-foundation/rendezvous/transport"
)

type fakeConversation struct {
	sent       []string
	uploads    []string
	reconnects int
	sendErr    error
}

func (f *fakeConversation) Send(text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeConversation) UploadFile(_ context.Context, name string, content io.Reader) error {
	data, _ := io.ReadAll(content)
	f.uploads = append(f.uploads, name+"="+string(data))
	return nil
}

func (f *fakeConversation) Reconnect() error {
	f.reconnects++
	return nil
}

type fakeRecoverer struct {
	location string
	ok       bool
	asked    []string
}

func (f *fakeRecoverer) Recover(_ context.Context, messageID string) (string, bool) {
	f.asked = append(f.asked, messageID)
	return f.location, f.ok
}

type staticResolver struct{}

func (staticResolver) Resolve(raw string) (string, error) {
	if raw == "" {
		return "", chat.ErrEmptyReference
	}
	if strings.HasPrefix(raw, "https://") {
		return raw, nil
	}
	return "https://api.example.com" + raw, nil
}

func newTestHandler() (*commandHandler, *fakeConversation, *fakeRecoverer, *bytes.Buffer) {
	var output bytes.Buffer
	conversation := &fakeConversation{}
	recoverer := &fakeRecoverer{}
	handler := &commandHandler{
		conversation: conversation,
		resolver:     recoverer,
		printer:      &printer{out: &output},
		open: func(name string) (io.ReadCloser, error) {
			if name != "/tmp/notes.txt" {
				return nil, errors.New("no such file")
			}
			return io.NopCloser(strings.NewReader("hello")), nil
		},
	}
	return handler, conversation, recoverer, &output
}

func TestHandleText(t *testing.T) {
	handler, conversation, _, output := newTestHandler()
	for _, line := range []string{"hello there", "   ", ""} {
		if handler.handle(context.Background(), line) {
			t.Fatalf("%q quit", line)
		}
	}
	if !reflect.DeepEqual(conversation.sent, []string{"hello there"}) {
		t.Errorf("sent = %v", conversation.sent)
	}

	conversation.sendErr = transport.ErrNotOpen
	handler.handle(context.Background(), "lost")
	if !strings.Contains(output.String(), "not sent") {
		t.Errorf("output = %q", output.String())
	}
}

func TestHandleCommands(t *testing.T) {
	handler, conversation, recoverer, output := newTestHandler()
	ctx := context.Background()

	handler.handle(ctx, "/upload /tmp/notes.txt")
	if !reflect.DeepEqual(conversation.uploads, []string{"notes.txt=hello"}) {
		t.Errorf("uploads = %v", conversation.uploads)
	}
	handler.handle(ctx, "/upload /tmp/missing")
	handler.handle(ctx, "/upload")
	if len(conversation.uploads) != 1 {
		t.Errorf("failed uploads reached the conversation: %v", conversation.uploads)
	}

	handler.handle(ctx, "/reconnect")
	if conversation.reconnects != 1 {
		t.Errorf("reconnects = %d", conversation.reconnects)
	}

	recoverer.location, recoverer.ok = "https://cdn.example.com/new.png", true
	handler.handle(ctx, "/recover 77")
	recoverer.location, recoverer.ok = "about:blank#file-unavailable", false
	handler.handle(ctx, "/recover 77")
	recoverer.location = ""
	handler.handle(ctx, "/recover 78")
	if !reflect.DeepEqual(recoverer.asked, []string{"77", "77", "78"}) {
		t.Errorf("asked = %v", recoverer.asked)
	}

	handler.handle(ctx, "/dance")
	if !handler.handle(ctx, "/quit") {
		t.Error("/quit did not quit")
	}

	text := output.String()
	for _, want := range []string{
		"upload failed",
		"usage: /upload",
		"https://cdn.example.com/new.png",
		"no longer available",
		"try again later",
		"unknown command /dance",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if len(conversation.sent) != 0 {
		t.Errorf("commands were sent as text: %v", conversation.sent)
	}
}

func TestFormatMessage(t *testing.T) {
	stamp := time.Date(2026, 3, 1, 9, 5, 0, 0, time.Local)
	tests := []struct {
		name    string
		message chat.Message
		want    string
	}{
		{
			name:    "text",
			message: chat.Message{ID: "1", SenderID: 5, SenderName: "Ana", SenderRole: "requester", Text: "hi", CreatedAt: stamp},
			want:    "[09:05] Ana (requester): hi",
		},
		{
			name:    "file",
			message: chat.Message{ID: "2", SenderID: 9, File: &chat.File{URL: "/media/a.png", Name: "a.png"}},
			want:    "[--:--] user 9 sent a.png #2: https://api.example.com/media/a.png",
		},
		{
			name:    "local",
			message: chat.Message{ID: "local-x", Text: "Uploaded a.png", Local: true, CreatedAt: stamp},
			want:    "[09:05] * Uploaded a.png",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := formatMessage(staticResolver{}, test.message); got != test.want {
				t.Errorf("formatMessage = %q, want %q", got, test.want)
			}
		})
	}
}

func TestPrintHistory(t *testing.T) {
	list := chat.NewMessageList()
	list.Append(chat.Message{ID: "1", SenderName: "Ana", Text: "first", CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local)})
	list.Append(chat.Message{ID: "2", SenderName: "Ana", Text: "undated"})
	list.Append(chat.Message{ID: "3", SenderName: "Ana", Text: "second", CreatedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)})

	var output bytes.Buffer
	(&printer{out: &output}).history(staticResolver{}, list)
	want := strings.Join([]string{
		"--- Sun 1 Mar 2026 ---",
		"[09:00] Ana: first",
		"--- Mon 2 Mar 2026 ---",
		"[09:00] Ana: second",
		"--- undated ---",
		"[--:--] Ana: undated",
		"",
	}, "\n")
	if output.String() != want {
		t.Errorf("history output:\n%s\nwant:\n%s", output.String(), want)
	}
}
