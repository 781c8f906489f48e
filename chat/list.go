// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"sort"
	"sync"
	"time"
)

// MessageList is the ordered, ID-unique message list of one
// conversation. It is safe for concurrent use. Messages returned from
// it are snapshots; later updates replace entries rather than mutate
// them.
type MessageList struct {
	mu       sync.Mutex
	messages []Message
	index    map[string]int
}

// NewMessageList returns an empty list.
func NewMessageList() *MessageList {
	return &MessageList{index: make(map[string]int)}
}

// Append adds message at the end unless its ID is already present.
// Returns whether it was added. Messages without an ID are rejected.
func (l *MessageList) Append(message Message) bool {
	if message.ID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.index[message.ID]; exists {
		return false
	}
	l.index[message.ID] = len(l.messages)
	l.messages = append(l.messages, message)
	return true
}

// MergeHistory puts history first, in the order given, followed by
// every existing entry whose ID history does not contain. Duplicates
// within history keep their first occurrence. Returns the number of IDs
// that were not in the list before.
func (l *MessageList) MergeHistory(history []Message) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make([]Message, 0, len(history)+len(l.messages))
	index := make(map[string]int, len(history)+len(l.messages))
	added := 0
	for _, message := range history {
		if message.ID == "" {
			continue
		}
		if _, seen := index[message.ID]; seen {
			continue
		}
		if _, existed := l.index[message.ID]; !existed {
			added++
		}
		index[message.ID] = len(merged)
		merged = append(merged, message)
	}
	for _, message := range l.messages {
		if _, seen := index[message.ID]; seen {
			continue
		}
		index[message.ID] = len(merged)
		merged = append(merged, message)
	}
	l.messages = merged
	l.index = index
	return added
}

// Messages returns a copy of the list.
func (l *MessageList) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.messages...)
}

// Len returns the number of entries.
func (l *MessageList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Get returns the entry with the given ID.
func (l *MessageList) Get(id string) (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	position, ok := l.index[id]
	if !ok {
		return Message{}, false
	}
	return l.messages[position], true
}

// UpdateFileURL points a file message at a new location. Returns false
// when no file message has that ID.
func (l *MessageList) UpdateFileURL(id, location string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	position, ok := l.index[id]
	if !ok || l.messages[position].File == nil {
		return false
	}
	file := *l.messages[position].File
	file.URL = location
	l.messages[position].File = &file
	return true
}

// DayGroup is the messages of one calendar day.
type DayGroup struct {
	// Day is midnight of the day in the grouping location.
	Day      time.Time
	Messages []Message
}

// GroupByDay groups messages with valid timestamps by calendar day in
// location (UTC if nil). Groups are in ascending day order; messages
// within a group keep list order.
func (l *MessageList) GroupByDay(location *time.Location) []DayGroup {
	if location == nil {
		location = time.UTC
	}
	messages := l.Messages()

	byDay := make(map[string]*DayGroup)
	var days []string
	for _, message := range messages {
		if !message.HasValidTimestamp() {
			continue
		}
		local := message.CreatedAt.In(location)
		day := local.Format(time.DateOnly)
		group, ok := byDay[day]
		if !ok {
			group = &DayGroup{Day: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location)}
			byDay[day] = group
			days = append(days, day)
		}
		group.Messages = append(group.Messages, message)
	}

	sort.Strings(days)
	groups := make([]DayGroup, 0, len(days))
	for _, day := range days {
		groups = append(groups, *byDay[day])
	}
	return groups
}
