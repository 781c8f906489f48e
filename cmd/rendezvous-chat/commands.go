// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/rendezvous/chat"
)

// conversation is the part of *chat.Transport the prompt drives.
type conversation interface {
	Send(text string) error
	UploadFile(ctx context.Context, name string, content io.Reader) error
	Reconnect() error
}

// fileRecoverer is the part of *chat.Resolver the prompt drives.
type fileRecoverer interface {
	Recover(ctx context.Context, messageID string) (string, bool)
}

// referenceResolver turns a raw file reference into a printable URL.
type referenceResolver interface {
	Resolve(raw string) (string, error)
}

type commandHandler struct {
	conversation conversation
	resolver     fileRecoverer
	printer      *printer
	open         func(name string) (io.ReadCloser, error)
}

// handle runs one input line. Returns true when the user asked to quit.
func (h *commandHandler) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if err := h.conversation.Send(line); err != nil {
			h.printer.notice("not sent: %v", err)
		}
		return false
	}

	command, argument, _ := strings.Cut(line, " ")
	argument = strings.TrimSpace(argument)
	switch command {
	case "/quit", "/exit":
		return true
	case "/reconnect":
		if err := h.conversation.Reconnect(); err != nil {
			h.printer.notice("reconnect failed: %v", err)
		}
	case "/upload":
		if argument == "" {
			h.printer.notice("usage: /upload PATH")
			return false
		}
		h.upload(ctx, argument)
	case "/recover":
		if argument == "" {
			h.printer.notice("usage: /recover MESSAGE_ID")
			return false
		}
		location, ok := h.resolver.Recover(ctx, argument)
		switch {
		case ok:
			h.printer.notice("message %s file: %s", argument, location)
		case location != "":
			h.printer.notice("message %s file is no longer available", argument)
		default:
			h.printer.notice("could not recover message %s file, try again later", argument)
		}
	default:
		h.printer.notice("unknown command %s", command)
	}
	return false
}

func (h *commandHandler) upload(ctx context.Context, path string) {
	file, err := h.open(path)
	if err != nil {
		h.printer.notice("upload failed: %v", err)
		return
	}
	defer file.Close()
	if err := h.conversation.UploadFile(ctx, filepath.Base(path), file); err != nil {
		h.printer.notice("upload failed: %v", err)
	}
}

// printer serializes terminal output from the reader goroutine and the
// prompt loop.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) notice(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "* "+format+"\n", args...)
}

func (p *printer) prompt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, "> ")
}

func (p *printer) message(resolver referenceResolver, message chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, formatMessage(resolver, message))
}

// history prints the list grouped by day, then any undated entries.
func (p *printer) history(resolver referenceResolver, list *chat.MessageList) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, group := range list.GroupByDay(time.Local) {
		fmt.Fprintf(p.out, "--- %s ---\n", group.Day.Format("Mon 2 Jan 2006"))
		for _, message := range group.Messages {
			fmt.Fprintln(p.out, formatMessage(resolver, message))
		}
	}
	var undated []chat.Message
	for _, message := range list.Messages() {
		if !message.HasValidTimestamp() {
			undated = append(undated, message)
		}
	}
	if len(undated) > 0 {
		fmt.Fprintln(p.out, "--- undated ---")
		for _, message := range undated {
			fmt.Fprintln(p.out, formatMessage(resolver, message))
		}
	}
}

// formatMessage renders one message as a single line.
func formatMessage(resolver referenceResolver, message chat.Message) string {
	stamp := "--:--"
	if message.HasValidTimestamp() {
		stamp = message.CreatedAt.In(time.Local).Format("15:04")
	}
	if message.Local {
		return fmt.Sprintf("[%s] * %s", stamp, message.Text)
	}

	sender := message.SenderName
	if sender == "" {
		sender = "user " + message.SenderID.String()
	}
	if message.SenderRole != "" {
		sender += " (" + message.SenderRole + ")"
	}

	if message.File != nil {
		location, err := resolver.Resolve(message.File.URL)
		if err != nil {
			location = "no link"
		}
		name := message.File.Name
		if name == "" {
			name = "file"
		}
		return fmt.Sprintf("[%s] %s sent %s #%s: %s", stamp, sender, name, message.ID, location)
	}
	return fmt.Sprintf("[%s] %s: %s", stamp, sender, message.Text)
}
