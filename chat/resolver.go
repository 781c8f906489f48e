// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

const (
	// DefaultRecoveryCeiling is the number of recovery requests allowed
	// per message.
	DefaultRecoveryCeiling = 3

	// DefaultMediaPrefix is the path the backend serves uploads under.
	DefaultMediaPrefix = "/media/"

	// DefaultUnavailablePlaceholder replaces files that could not be
	// recovered.
	DefaultUnavailablePlaceholder = "about:blank#file-unavailable"
)

// ErrEmptyReference is returned by Resolve for an empty reference.
var ErrEmptyReference = errors.New("chat: empty file reference")

// Recoverer fetches a fresh location for a message's file.
type Recoverer interface {
	RecoverFile(ctx context.Context, messageID string) (string, error)
}

// FileUpdater applies a new location to the in-memory message.
// *MessageList implements it.
type FileUpdater interface {
	UpdateFileURL(messageID, location string) bool
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// BaseURL is the origin relative references are joined with.
	// Required.
	BaseURL string

	// Prefix is the media path. Default: DefaultMediaPrefix.
	Prefix string

	// Ceiling is the recovery attempt limit per message.
	// Default: DefaultRecoveryCeiling.
	Ceiling int

	// Placeholder is substituted once a message's file is given up on.
	// Default: DefaultUnavailablePlaceholder.
	Placeholder string

	// Recoverer is required for Recover.
	Recoverer Recoverer

	// Updater receives recovered and placeholder locations. Optional.
	Updater FileUpdater

	Logger *slog.Logger
}

// Resolver turns raw file references into absolute URLs and recovers
// expired ones within a per-message budget. Attempt counts live for the
// Resolver's lifetime.
type Resolver struct {
	base        string
	prefix      string
	ceiling     int
	placeholder string
	recoverer   Recoverer
	updater     FileUpdater
	logger      *slog.Logger

	mu          sync.Mutex
	attempts    map[string]int
	unavailable map[string]bool
}

// NewResolver validates config and returns a Resolver.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	base, err := url.Parse(config.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("chat: resolver base URL %q must be an absolute http(s) URL", config.BaseURL)
	}
	prefix := config.Prefix
	if prefix == "" {
		prefix = DefaultMediaPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		return nil, fmt.Errorf("chat: media prefix %q must start with /", prefix)
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	ceiling := config.Ceiling
	if ceiling <= 0 {
		ceiling = DefaultRecoveryCeiling
	}
	placeholder := config.Placeholder
	if placeholder == "" {
		placeholder = DefaultUnavailablePlaceholder
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		base:        strings.TrimRight(config.BaseURL, "/"),
		prefix:      prefix,
		ceiling:     ceiling,
		placeholder: placeholder,
		recoverer:   config.Recoverer,
		updater:     config.Updater,
		logger:      logger,
		attempts:    make(map[string]int),
		unavailable: make(map[string]bool),
	}, nil
}

// Resolve composes raw with the base URL:
//
//   - "http://..." or "https://..." is returned unchanged;
//   - a path starting with the media prefix is appended to the base;
//   - anything else is relative to the media prefix.
func (r *Resolver) Resolve(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyReference
	}
	if isAbsoluteHTTP(raw) {
		return raw, nil
	}
	if strings.HasPrefix(raw, r.prefix) {
		return r.base + raw, nil
	}
	return r.base + r.prefix + strings.TrimLeft(raw, "/"), nil
}

func isAbsoluteHTTP(raw string) bool {
	scheme, _, found := strings.Cut(raw, "://")
	if !found {
		return false
	}
	scheme = strings.ToLower(scheme)
	return scheme == "http" || scheme == "https"
}

// Placeholder returns the location substituted for unrecoverable files.
func (r *Resolver) Placeholder() string { return r.placeholder }

// Attempts returns how many recovery requests were made for messageID.
func (r *Resolver) Attempts(messageID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[messageID]
}

// Unavailable reports whether messageID's file has been given up on.
func (r *Resolver) Unavailable(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unavailable[messageID]
}

// Recover requests a fresh location for messageID's file. On success
// the resolved location is applied through the updater and returned
// with true. On failure it returns "" and false. Once the ceiling is
// reached the placeholder is applied, every later call returns it with
// false, and no further requests are made.
func (r *Resolver) Recover(ctx context.Context, messageID string) (string, bool) {
	r.mu.Lock()
	if r.unavailable[messageID] {
		r.mu.Unlock()
		return r.placeholder, false
	}
	if r.attempts[messageID] >= r.ceiling {
		r.unavailable[messageID] = true
		r.mu.Unlock()
		r.giveUp(messageID)
		return r.placeholder, false
	}
	// The attempt is counted before the request so concurrent calls
	// for one message cannot exceed the ceiling.
	r.attempts[messageID]++
	attempt := r.attempts[messageID]
	r.mu.Unlock()

	if r.recoverer == nil {
		r.logger.Error("file recovery requested without a recoverer", "message", messageID)
		return r.failed(messageID, attempt)
	}

	raw, err := r.recoverer.RecoverFile(ctx, messageID)
	if err == nil {
		var location string
		location, err = r.Resolve(raw)
		if err == nil {
			r.logger.Info("file recovered", "message", messageID, "attempt", attempt)
			if r.updater != nil {
				r.updater.UpdateFileURL(messageID, location)
			}
			return location, true
		}
	}
	r.logger.Warn("file recovery failed",
		"message", messageID,
		"attempt", attempt,
		"ceiling", r.ceiling,
		"error", err,
	)
	return r.failed(messageID, attempt)
}

func (r *Resolver) failed(messageID string, attempt int) (string, bool) {
	if attempt < r.ceiling {
		return "", false
	}
	r.mu.Lock()
	r.unavailable[messageID] = true
	r.mu.Unlock()
	r.giveUp(messageID)
	return r.placeholder, false
}

func (r *Resolver) giveUp(messageID string) {
	r.logger.Warn("file marked unavailable", "message", messageID, "ceiling", r.ceiling)
	if r.updater != nil {
		r.updater.UpdateFileURL(messageID, r.placeholder)
	}
}
