// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/jeranaias/educhat/internal/imaging"
	"github.com/jeranaias/educhat/internal/model"
	"github.com/jeranaias/educhat/internal/registry"
	"github.com/jeranaias/educhat/internal/staging"
	"github.com/jeranaias/educhat/internal/storage"
	"github.com/jeranaias/educhat/internal/stream"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrExchangeInFlight is returned when a submit arrives while one
// exchange is already active. Submits are rejected, not queued.
var ErrExchangeInFlight = errors.New("an exchange is already in flight")

// ErrNothingToSend is returned for a submit with no text and no staged
// attachments.
var ErrNothingToSend = errors.New("nothing to send")

// failureAnnotation is appended to a pending answer when its exchange
// fails.
const failureAnnotation = "\n\n⚠️ Failed to get a response. Please try again."

// =============================================================================
// SESSION
// =============================================================================

// Options configures a Session.
type Options struct {
	ChannelID     string
	Store         *storage.Store
	Client        *stream.Client
	Processor     *imaging.Processor
	Registry      *registry.Registry
	Staging       *staging.Staging
	HistoryWindow int
	Logger        *slog.Logger

	// OnUpdate fires after every conversation mutation; the
	// presentation layer uses it for scroll-to-bottom and re-render.
	OnUpdate func()
}

// Session orchestrates one conversation for one chat channel.
type Session struct {
	mu sync.Mutex

	channelID     string
	conv          *model.Conversation
	store         *storage.Store
	client        *stream.Client
	processor     *imaging.Processor
	registry      *registry.Registry
	staging       *staging.Staging
	historyWindow int
	logger        *slog.Logger
	onUpdate      func()

	// Transient error slot for banner display; cleared on read.
	lastErr string

	// active is the in-flight exchange guard. It is tracked explicitly
	// rather than derived from the message list: ClearHistory may
	// detach the pending message mid-stream, and the running exchange
	// must still block new submits until it settles.
	active bool
	// current is the pending message owned by the active exchange;
	// nil once it settles. The exchange goroutine compares against it
	// to detect that a clear detached its message, after which it
	// stops persisting.
	current *model.Message

	exchangeWG sync.WaitGroup
}

// New creates a session. Mount must be called before use.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	onUpdate := opts.OnUpdate
	if onUpdate == nil {
		onUpdate = func() {}
	}
	return &Session{
		channelID:     opts.ChannelID,
		store:         opts.Store,
		client:        opts.Client,
		processor:     opts.Processor,
		registry:      opts.Registry,
		staging:       opts.Staging,
		historyWindow: opts.HistoryWindow,
		logger:        logger,
		onUpdate:      onUpdate,
	}
}

// Mount restores the conversation from the store. Returns true when the
// restored history contains user turns, the signal behind the
// clear-history affordance.
func (s *Session) Mount() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv != nil {
		// A remount replaces the conversation; release the display
		// references the old one held or they leak in the registry.
		for _, ref := range s.conv.LiveImageRefs() {
			s.registry.Release(ref)
		}
	}
	s.conv = s.store.Load(s.channelID)
	return s.conv.HasUserTurns()
}

// Conversation exposes the canonical message sequence to the
// presentation layer.
func (s *Session) Conversation() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

// LastAssistantDisplay snapshots the most recent assistant message's
// display content under the session lock. Stream fragments arrive on a
// separate goroutine, so presentation code must not read the pending
// message directly.
func (s *Session) LastAssistantDisplay() (content string, pending bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return "", false, false
	}
	last := s.conv.LastMessage()
	if last == nil || last.Role != model.RoleAssistant {
		return "", false, false
	}
	return last.DisplayContent(), last.IsPending, true
}

// Staging returns the session's attachment staging area.
func (s *Session) Staging() *staging.Staging {
	return s.staging
}

// InFlight reports whether an exchange is currently active.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// TakeError returns and clears the transient user-facing error.
func (s *Session) TakeError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.lastErr
	s.lastErr = ""
	return msg
}

// SurfaceError places a message in the transient error slot. Staging
// rejections are routed here by the presentation layer.
func (s *Session) SurfaceError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = msg
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit builds the user turn from text and the staged attachment set,
// appends the pending answer placeholder, and starts the streaming
// exchange. It returns once the turn is appended; fragments arrive
// asynchronously. A submit while an exchange is active is rejected
// without mutating the conversation.
func (s *Session) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrExchangeInFlight
	}
	if !s.staging.IsSubmittable(text, false) {
		s.mu.Unlock()
		return ErrNothingToSend
	}

	doc, imageFiles := s.staging.Consume()

	s.conv.AddUserMessage(text, documentInfo(doc), s.buildImage(imageFiles))
	s.store.Save(s.channelID, s.conv)

	pending := s.conv.AddPendingAssistant()
	s.store.Save(s.channelID, s.conv)

	s.active = true
	s.current = pending

	req := stream.Request{
		SessionID: s.store.SessionID(s.channelID),
		Question:  text,
		History:   s.conv.Window(s.historyWindow),
		Files:     transmitFiles(doc, imageFiles),
	}
	s.mu.Unlock()

	s.onUpdate()

	exchange := s.client.NewExchange()
	s.exchangeWG.Add(1)
	go func() {
		defer s.exchangeWG.Done()
		err := exchange.Run(ctx, req, func(delta string) {
			s.mu.Lock()
			pending.AppendDelta(delta)
			// A mid-stream clear detaches this message; saving the
			// conversation then would resurrect the record the clear
			// just deleted.
			attached := s.current == pending
			if attached {
				s.store.Save(s.channelID, s.conv)
			}
			s.mu.Unlock()
			if attached {
				s.onUpdate()
			}
		})

		s.mu.Lock()
		if err != nil {
			pending.Fail(failureAnnotation)
			s.lastErr = err.Error()
			s.logger.Warn("exchange failed", "channel", s.channelID, "err", err)
		} else {
			pending.Finalize()
		}
		if s.current == pending {
			s.store.Save(s.channelID, s.conv)
		}
		s.active = false
		s.current = nil
		s.mu.Unlock()
		s.onUpdate()
	}()

	return nil
}

// Wait blocks until the active exchange (if any) settles. Intended for
// non-interactive drivers and tests.
func (s *Session) Wait() {
	s.exchangeWG.Wait()
}

// buildImage turns the first staged image into the user message's
// image descriptor: a fresh display reference over the compressed
// bytes, plus the storage-tier thumbnail. Remaining staged images are
// still transmitted; the descriptor records the representative one.
func (s *Session) buildImage(files []*imaging.File) *model.Image {
	if len(files) == 0 {
		return nil
	}
	file := files[0]

	blob := registry.NewBlob(file.Name, file.Type, file.Data)
	img := &model.Image{
		Name:              file.Name,
		Type:              file.Type,
		Size:              file.Size(),
		DisplayRef:        s.registry.Register(blob),
		DisplayURL:        blob.URL(),
		IsLargeFile:       file.Size() > 1<<20,
		IsMobileOptimized: true,
	}

	thumb, err := s.processor.ToPersistable(file)
	if err != nil {
		// Persist the message without a thumbnail rather than failing
		// the save.
		s.logger.Warn("thumbnail generation failed", "name", file.Name, "err", err)
	} else {
		img.Thumbnail = thumb
	}
	return img
}

// documentInfo extracts the message attachment descriptor.
func documentInfo(doc *staging.StagedDocument) *model.FileInfo {
	if doc == nil {
		return nil
	}
	info := doc.Info
	return &info
}

// transmitFiles collects the binary parts for a multipart exchange:
// staged images first, then the document.
func transmitFiles(doc *staging.StagedDocument, images []*imaging.File) []*imaging.File {
	files := make([]*imaging.File, 0, len(images)+1)
	files = append(files, images...)
	if doc != nil {
		files = append(files, doc.File)
	}
	return files
}

// =============================================================================
// CLEAR HISTORY
// =============================================================================

// ClearHistory releases every live image reference held by the
// conversation, resets it to the single greeting, and removes the
// persisted record.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	for _, ref := range s.conv.LiveImageRefs() {
		s.registry.Release(ref)
	}
	s.conv.Reset()
	s.store.Clear(s.channelID)
	// Detach any in-flight exchange from history: it settles into its
	// own message but no longer persists. The active guard stays up
	// until it does.
	s.current = nil
	s.mu.Unlock()
	s.onUpdate()
}

// =============================================================================
// TEARDOWN
// =============================================================================

// Close tears the session down: every outstanding display reference is
// released regardless of exchange state. There is no mid-stream cancel;
// an in-flight exchange runs to its natural end but its session no
// longer holds resources.
func (s *Session) Close() {
	s.staging.Clear()
	s.registry.ReleaseAll()
}
