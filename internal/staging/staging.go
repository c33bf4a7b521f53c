// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package staging

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jeranaias/educhat/internal/imaging"
	"github.com/jeranaias/educhat/internal/model"
	"github.com/jeranaias/educhat/internal/registry"
)

// =============================================================================
// STAGED TYPES
// =============================================================================

// StagedDocument is a non-image file awaiting submission.
type StagedDocument struct {
	Info model.FileInfo
	File *imaging.File
}

// StagedImage is a compressed image awaiting submission, with a live
// preview reference for the upload strip.
type StagedImage struct {
	File       *imaging.File
	PreviewRef string
	PreviewURL string
}

// =============================================================================
// STAGING
// =============================================================================

// Staging holds the not-yet-sent attachment set: at most one document
// and at most maxImages images.
type Staging struct {
	mu sync.Mutex

	maxImages        int
	maxDocumentBytes int64

	processor *imaging.Processor
	registry  *registry.Registry
	logger    *slog.Logger

	document *StagedDocument
	images   []*StagedImage

	// generation is bumped whenever the staged set is cleared or
	// consumed; in-flight compressions commit only if the generation
	// they started under is still current.
	generation uint64
	inflight   int

	wg sync.WaitGroup
}

// New creates an empty staging area.
func New(maxImages int, maxDocumentBytes int64, processor *imaging.Processor, reg *registry.Registry, logger *slog.Logger) *Staging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Staging{
		maxImages:        maxImages,
		maxDocumentBytes: maxDocumentBytes,
		processor:        processor,
		registry:         reg,
		logger:           logger,
	}
}

// =============================================================================
// ADD OPERATIONS
// =============================================================================

// AddDocument stages a document file, replacing any previous one.
// Oversized documents are rejected with a TooLarge validation error and
// staging is left untouched.
func (s *Staging) AddDocument(file *imaging.File) error {
	if file.Size() > s.maxDocumentBytes {
		return &ValidationError{
			Reason:  TooLarge,
			Message: fmt.Sprintf("%s exceeds the %dMB attachment limit", file.Name, s.maxDocumentBytes>>20),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = &StagedDocument{
		Info: model.FileInfo{Name: file.Name, Size: file.Size(), Type: file.Type},
		File: file,
	}
	return nil
}

// AddImages stages a batch of images. A batch that would push the
// staged count past the cap is rejected in bulk: no image from it is
// admitted. Admitted images are compressed asynchronously through the
// tiered policy and only count as staged once compression settles.
func (s *Staging) AddImages(files []*imaging.File) error {
	s.mu.Lock()
	if len(s.images)+s.inflight+len(files) > s.maxImages {
		s.mu.Unlock()
		return &ValidationError{
			Reason:  TooMany,
			Message: fmt.Sprintf("at most %d images can be attached", s.maxImages),
		}
	}
	gen := s.generation
	s.inflight += len(files)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, file := range files {
			compressed, err := s.processor.CompressForTransmit(file)
			if err != nil {
				// Decode failure falls back to the original file rather
				// than dropping the user's attachment.
				var decodeErr *imaging.DecodeError
				if errors.As(err, &decodeErr) {
					s.logger.Warn("image compression failed, using original", "name", file.Name, "err", err)
					compressed = file
				} else {
					s.logger.Warn("image staging failed", "name", file.Name, "err", err)
					s.drop(gen)
					continue
				}
			}
			s.commit(gen, compressed)
		}
	}()
	return nil
}

// commit admits a compressed image if the staged set has not been
// cleared since compression started. Stale results are discarded; their
// preview reference is never minted, so nothing leaks.
func (s *Staging) commit(gen uint64, file *imaging.File) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}
	s.inflight--

	blob := registry.NewBlob(file.Name, file.Type, file.Data)
	ref := s.registry.Register(blob)
	s.images = append(s.images, &StagedImage{
		File:       file,
		PreviewRef: ref,
		PreviewURL: blob.URL(),
	})
}

// drop releases an in-flight reservation without admitting anything.
func (s *Staging) drop(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation {
		s.inflight--
	}
}

// Wait blocks until all in-flight compressions have settled.
func (s *Staging) Wait() {
	s.wg.Wait()
}

// =============================================================================
// REMOVE OPERATIONS
// =============================================================================

// RemoveDocument discards the staged document.
func (s *Staging) RemoveDocument() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = nil
}

// RemoveImage discards the staged image at index, releasing its preview
// reference. Out-of-range indexes are ignored.
func (s *Staging) RemoveImage(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.images) {
		return
	}
	img := s.images[index]
	s.images = append(s.images[:index], s.images[index+1:]...)
	s.registry.Release(img.PreviewRef)
}

// Clear discards everything staged, releasing every preview reference.
// In-flight compressions started before the clear will be discarded on
// arrival.
func (s *Staging) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Staging) clearLocked() {
	for _, img := range s.images {
		s.registry.Release(img.PreviewRef)
	}
	s.images = nil
	s.document = nil
	s.generation++
	s.inflight = 0
}

// =============================================================================
// CONSUME AND INSPECT
// =============================================================================

// Consume atomically takes the staged set for submission. Preview
// references are released here: the submitting session derives its own
// display references for the message it builds.
func (s *Staging) Consume() (*StagedDocument, []*imaging.File) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.document
	files := make([]*imaging.File, 0, len(s.images))
	for _, img := range s.images {
		files = append(files, img.File)
		s.registry.Release(img.PreviewRef)
	}
	s.images = nil
	s.document = nil
	s.generation++
	s.inflight = 0
	return doc, files
}

// Document returns the staged document, or nil.
func (s *Staging) Document() *StagedDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.document
}

// Images returns a snapshot of the staged images.
func (s *Staging) Images() []*StagedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*StagedImage, len(s.images))
	copy(out, s.images)
	return out
}

// ImageCount returns the number of fully staged images.
func (s *Staging) ImageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

// IsSubmittable reports whether a submit may proceed: at least one of
// text, document or image is present, and no exchange is in flight.
func (s *Staging) IsSubmittable(text string, exchangeInFlight bool) bool {
	if exchangeInFlight {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(text) != "" || s.document != nil || len(s.images) > 0
}
