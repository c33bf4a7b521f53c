// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds the ordered message sequence for one chat channel.
// Insertion order is chronological order.
//
// Invariants:
//   - the sequence always contains at least one message (the greeting)
//   - at most one message is pending at any time
type Conversation struct {
	// ChannelID keys the persisted copy of this conversation.
	ChannelID string `json:"channel_id"`

	// Messages in chronological order.
	Messages []*Message `json:"messages"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation creates a conversation holding the single greeting.
func NewConversation(channelID string) *Conversation {
	return &Conversation{
		ChannelID: channelID,
		Messages:  []*Message{NewGreetingMessage()},
		UpdatedAt: time.Now(),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message to the conversation.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
}

// AddUserMessage creates and appends a user message.
func (c *Conversation) AddUserMessage(content string, attachment *FileInfo, image *Image) *Message {
	msg := NewUserMessage(content, attachment, image)
	c.AddMessage(msg)
	return msg
}

// AddPendingAssistant creates and appends an empty pending assistant
// message. Returns nil if another message is already pending: only one
// exchange may be in flight per conversation.
func (c *Conversation) AddPendingAssistant() *Message {
	if c.PendingMessage() != nil {
		return nil
	}
	msg := NewPendingAssistantMessage()
	c.AddMessage(msg)
	return msg
}

// PendingMessage returns the in-flight assistant message, or nil.
func (c *Conversation) PendingMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].IsPending {
			return c.Messages[i]
		}
	}
	return nil
}

// HasPending reports whether an assistant message is awaiting stream
// fragments.
func (c *Conversation) HasPending() bool {
	return c.PendingMessage() != nil
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// HasUserTurns reports whether the conversation contains any user
// message. The surrounding UI derives its "history present" affordance
// from this rather than tracking a separate flag.
func (c *Conversation) HasUserTurns() bool {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			return true
		}
	}
	return false
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// Reset replaces the message sequence with the single greeting.
func (c *Conversation) Reset() {
	c.Messages = []*Message{NewGreetingMessage()}
	c.UpdatedAt = time.Now()
}

// =============================================================================
// HISTORY WINDOW
// =============================================================================

// HistoryEntry is one turn in the bounded window sent to the remote
// endpoint.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Window returns the most recent max finalized, non-empty messages as
// history entries, oldest-first. Pending messages are excluded: the
// placeholder answer has no content to send.
func (c *Conversation) Window(max int) []HistoryEntry {
	if max <= 0 {
		return nil
	}

	var entries []HistoryEntry
	for _, msg := range c.Messages {
		if msg.IsPending || msg.IsEmpty() {
			continue
		}
		entries = append(entries, HistoryEntry{
			Role:    msg.Role.String(),
			Content: msg.Content,
		})
	}

	if len(entries) > max {
		entries = entries[len(entries)-max:]
	}
	return entries
}

// =============================================================================
// IMAGE TRACKING
// =============================================================================

// LiveImageRefs returns the registry handle ids of every message image
// with a materialized display reference.
func (c *Conversation) LiveImageRefs() []string {
	var refs []string
	for _, msg := range c.Messages {
		if msg.Image != nil && msg.Image.HasDisplayRef() {
			refs = append(refs, msg.Image.DisplayRef)
		}
	}
	return refs
}
