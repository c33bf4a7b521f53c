// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/jeranaias/educhat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// ATTACHMENT TYPES
// =============================================================================

// FileInfo describes a non-image file attached to a message.
// It is immutable once set.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Thumbnail is the persistable encoded form of an image: a heavily
// compressed JPEG carried as a data URL so it survives serialization
// where live display references cannot.
type Thumbnail struct {
	DataURL string `json:"data_url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// Image describes an image attached to a message.
//
// DisplayRef is the registry handle id of the live display reference and
// DisplayURL its renderable location. Both are ephemeral: they are never
// persisted and may be empty after a restore until the reference is
// re-derived from the thumbnail.
type Image struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`

	// Ephemeral display reference (never persisted)
	DisplayRef string `json:"-"`
	DisplayURL string `json:"-"`

	// Persistable form; nil when the thumbnail was skipped or dropped
	Thumbnail *Thumbnail `json:"thumbnail,omitempty"`

	// Persistence markers
	IsLargeFile       bool `json:"is_large_file"`
	IsMobileOptimized bool `json:"is_mobile_optimized"`

	// Restored is true when the display reference was re-derived from a
	// persisted thumbnail rather than a freshly staged file.
	Restored bool `json:"-"`
}

// HasDisplayRef reports whether a live display reference is materialized.
func (img *Image) HasDisplayRef() bool {
	return img.DisplayRef != ""
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`

	// Attachments
	Attachment *FileInfo `json:"attachment,omitempty"`
	Image      *Image    `json:"image,omitempty"`

	// Pending state: true only while an assistant turn is awaiting or
	// receiving stream fragments.
	IsPending bool `json:"is_pending,omitempty"`

	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	pendingContent strings.Builder
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message with optional attachments.
func NewUserMessage(content string, attachment *FileInfo, image *Image) *Message {
	msg := NewMessage(RoleUser, content)
	msg.Attachment = attachment
	msg.Image = image
	return msg
}

// NewPendingAssistantMessage creates an empty assistant message that will
// receive stream fragments.
func NewPendingAssistantMessage() *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
		IsPending: true,
	}
}

// GreetingText is the synthesized assistant greeting shown for an empty
// conversation.
const GreetingText = "Hello! 👋 I'm an AI Robot here to help you. Feel free to ask me any questions!"

// NewGreetingMessage creates the default greeting message.
func NewGreetingMessage() *Message {
	return NewMessage(RoleAssistant, GreetingText)
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendDelta appends a streamed text fragment to a pending message.
// It is a no-op on finalized messages: content is immutable once set.
func (m *Message) AppendDelta(delta string) {
	if m.IsPending {
		m.pendingContent.WriteString(delta)
	}
}

// Finalize completes streaming: the accumulated fragments become the
// message content and the pending flag is cleared.
func (m *Message) Finalize() {
	if !m.IsPending {
		return
	}
	m.Content = m.pendingContent.String()
	m.pendingContent.Reset()
	m.IsPending = false
}

// Fail finalizes a pending message with a visible failure annotation
// appended after whatever content already streamed in.
func (m *Message) Fail(annotation string) {
	if !m.IsPending {
		return
	}
	m.pendingContent.WriteString(annotation)
	m.Finalize()
}

// DisplayContent returns the content to display (streaming or final).
func (m *Message) DisplayContent() string {
	if m.IsPending {
		return m.pendingContent.String()
	}
	return m.Content
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0 && m.pendingContent.Len() == 0
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	return util.TruncateRunes(m.DisplayContent(), maxLen)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "msg_" + hex.EncodeToString(bytes)
}
