// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/educhat/internal/imaging"
	"github.com/jeranaias/educhat/internal/model"
	"github.com/jeranaias/educhat/internal/registry"
)

// =============================================================================
// PERSISTED SHAPES
// =============================================================================

// PersistedImage is the serialized form of a message image: the live
// display reference is stripped, only the persistable thumbnail (or an
// omitted marker) survives.
type PersistedImage struct {
	Name              string           `json:"name"`
	Type              string           `json:"type"`
	Size              int64            `json:"size"`
	EncodedThumbnail  *model.Thumbnail `json:"encodedThumbnail"`
	ThumbnailOmitted  bool             `json:"thumbnailOmitted,omitempty"`
	IsLargeFile       bool             `json:"isLargeFile"`
	IsMobileOptimized bool             `json:"isMobileOptimized"`
}

// PersistedMessage is one serialized conversational turn.
type PersistedMessage struct {
	ID         string          `json:"id"`
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	Timestamp  time.Time       `json:"timestamp"`
	Attachment *model.FileInfo `json:"attachment,omitempty"`
	Image      *PersistedImage `json:"image,omitempty"`
}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

const (
	historyKeyPrefix = "chat_history:"
	sessionKeyPrefix = "chat_session:"

	// Thumbnails past this size are dropped in favor of the omitted
	// marker rather than bloating the record.
	maxThumbnailBytes = 200 << 10
)

// Store persists conversations to a KV namespace keyed by channel id.
type Store struct {
	kv       KV
	registry *registry.Registry
	logger   *slog.Logger

	// maxRecordBytes caps the serialized record size; 0 disables the
	// client-side ceiling (the KV backend may still enforce its own).
	maxRecordBytes int64

	// trimKeep is how many of the most recent messages survive the
	// quota-degradation retry.
	trimKeep int
}

// NewStore creates a conversation store over the given KV backend.
func NewStore(kv KV, reg *registry.Registry, maxRecordBytes int64, trimKeep int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:             kv,
		registry:       reg,
		logger:         logger,
		maxRecordBytes: maxRecordBytes,
		trimKeep:       trimKeep,
	}
}

// =============================================================================
// LOAD
// =============================================================================

// Load restores the conversation for a channel. Absence, corruption and
// read failures all yield the default single-greeting conversation:
// history is a convenience, never a precondition.
//
// Messages persisted with a thumbnail get their display reference
// re-derived: the thumbnail bytes are pinned behind a fresh registry
// handle and the image is tagged as restored.
func (s *Store) Load(channelID string) *model.Conversation {
	data, ok, err := s.kv.Get(historyKeyPrefix + channelID)
	if err != nil {
		s.logger.Warn("history load failed", "channel", channelID, "err", err)
		return model.NewConversation(channelID)
	}
	if !ok {
		return model.NewConversation(channelID)
	}

	var persisted []PersistedMessage
	if err := json.Unmarshal(data, &persisted); err != nil {
		s.logger.Warn("history record corrupted, starting fresh", "channel", channelID, "err", err)
		return model.NewConversation(channelID)
	}
	if len(persisted) == 0 {
		return model.NewConversation(channelID)
	}

	conv := &model.Conversation{ChannelID: channelID, UpdatedAt: time.Now()}
	for _, pm := range persisted {
		msg := &model.Message{
			ID:         pm.ID,
			Role:       model.Role(pm.Role),
			Content:    pm.Content,
			Timestamp:  pm.Timestamp,
			Attachment: pm.Attachment,
		}
		if pm.Image != nil {
			msg.Image = s.restoreImage(pm.Image)
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return conv
}

// restoreImage rebuilds a message image from its persisted form,
// lazily materializing the display reference when a thumbnail is
// available.
func (s *Store) restoreImage(pi *PersistedImage) *model.Image {
	img := &model.Image{
		Name:              pi.Name,
		Type:              pi.Type,
		Size:              pi.Size,
		Thumbnail:         pi.EncodedThumbnail,
		IsLargeFile:       pi.IsLargeFile,
		IsMobileOptimized: pi.IsMobileOptimized,
	}

	if pi.EncodedThumbnail == nil {
		return img
	}

	raw, err := imaging.DecodeThumbnail(pi.EncodedThumbnail)
	if err != nil {
		s.logger.Warn("thumbnail restore failed", "name", pi.Name, "err", err)
		return img
	}

	blob := registry.NewBlob(pi.Name, "image/jpeg", raw)
	img.DisplayRef = s.registry.Register(blob)
	img.DisplayURL = blob.URL()
	img.Restored = true
	return img
}

// =============================================================================
// SAVE
// =============================================================================

// Save persists the conversation snapshot, called after every mutation.
// Persistence is best-effort: a record over the byte ceiling (or
// rejected by the backend's quota) is retried with only the most recent
// trimKeep messages, and a retry failure is logged and swallowed. The
// in-memory conversation always continues regardless.
func (s *Store) Save(channelID string, conv *model.Conversation) {
	persisted := s.serialize(conv)

	if s.write(channelID, persisted) {
		return
	}

	// Quota degradation: keep only the most recent messages.
	if len(persisted) > s.trimKeep {
		persisted = persisted[len(persisted)-s.trimKeep:]
	}
	if s.write(channelID, persisted) {
		s.logger.Warn("history trimmed to fit quota", "channel", channelID, "kept", len(persisted))
		return
	}

	s.logger.Warn("history save failed, conversation continues unpersisted", "channel", channelID)
}

// write marshals and stores one record, reporting success.
func (s *Store) write(channelID string, persisted []PersistedMessage) bool {
	data, err := json.Marshal(persisted)
	if err != nil {
		s.logger.Warn("history marshal failed", "channel", channelID, "err", err)
		return false
	}
	if s.maxRecordBytes > 0 && int64(len(data)) > s.maxRecordBytes {
		return false
	}
	if err := s.kv.Set(historyKeyPrefix+channelID, data); err != nil {
		if !errors.Is(err, ErrQuotaExceeded) {
			s.logger.Warn("history write failed", "channel", channelID, "err", err)
		}
		return false
	}
	return true
}

// serialize converts the conversation to its persisted form: display
// references stripped, thumbnails carried or marked omitted, pending
// content captured as-is (a reload cannot resume a stream).
func (s *Store) serialize(conv *model.Conversation) []PersistedMessage {
	persisted := make([]PersistedMessage, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		pm := PersistedMessage{
			ID:         msg.ID,
			Role:       msg.Role.String(),
			Content:    msg.DisplayContent(),
			Timestamp:  msg.Timestamp,
			Attachment: msg.Attachment,
		}
		if msg.Image != nil {
			pm.Image = persistImage(msg.Image)
		}
		persisted = append(persisted, pm)
	}
	return persisted
}

// persistImage strips the ephemeral display reference and bounds the
// thumbnail payload.
func persistImage(img *model.Image) *PersistedImage {
	pi := &PersistedImage{
		Name:              img.Name,
		Type:              img.Type,
		Size:              img.Size,
		EncodedThumbnail:  img.Thumbnail,
		IsLargeFile:       img.IsLargeFile,
		IsMobileOptimized: img.IsMobileOptimized,
	}
	if pi.EncodedThumbnail != nil && int64(len(pi.EncodedThumbnail.DataURL)) > maxThumbnailBytes {
		pi.EncodedThumbnail = nil
		pi.ThumbnailOmitted = true
	}
	return pi
}

// =============================================================================
// CLEAR
// =============================================================================

// Clear removes the persisted record for a channel. The session
// correlation id is kept: clearing history does not end the server-side
// session.
func (s *Store) Clear(channelID string) {
	if err := s.kv.Delete(historyKeyPrefix + channelID); err != nil {
		s.logger.Warn("history clear failed", "channel", channelID, "err", err)
	}
}

// =============================================================================
// SESSION CORRELATION RECORD
// =============================================================================

// SessionID returns the per-channel conversation identifier used to
// correlate turns server-side, minting and persisting one on first use.
func (s *Store) SessionID(channelID string) string {
	key := sessionKeyPrefix + channelID
	if data, ok, err := s.kv.Get(key); err == nil && ok && len(data) > 0 {
		return string(data)
	}

	id := uuid.New().String()
	if err := s.kv.Set(key, []byte(id)); err != nil {
		s.logger.Warn("session id persist failed", "channel", channelID, "err", err)
	}
	return id
}
