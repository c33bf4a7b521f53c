// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
)

// =============================================================================
// RESOURCE INTERFACE
// =============================================================================

// Resource is a live ephemeral reference held by the registry.
// Release frees the underlying data; the registry guarantees it is
// called at most once per registered handle.
type Resource interface {
	Release() error
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is a handle table mapping opaque ref ids to live resources.
// One registry is owned by one ConversationSession; it is safe for
// concurrent use because compression and streaming callbacks arrive on
// goroutines of their own.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Resource
	logger  *slog.Logger
}

// New creates an empty registry. A nil logger falls back to the default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]Resource),
		logger:  logger,
	}
}

// Register adds a resource and returns its ref id.
func (r *Registry) Register(res Resource) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := generateRefID()
	r.entries[id] = res
	return id
}

// Release frees the resource behind a ref id. Releasing an unknown or
// already-released id is a no-op, not an error. Underlying release
// failures are logged and swallowed: there is nothing a caller could do
// about them.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	res, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := res.Release(); err != nil {
		r.logger.Warn("resource release failed", "ref", id, "err", err)
	}
}

// ReleaseAll frees every live resource. After it returns the registry
// holds zero handles, regardless of individual release failures.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]Resource)
	r.mu.Unlock()

	for id, res := range entries {
		if err := res.Release(); err != nil {
			r.logger.Warn("resource release failed", "ref", id, "err", err)
		}
	}
}

// Count returns the number of live handles.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Lookup returns the resource behind a ref id, if still live.
func (r *Registry) Lookup(id string) (Resource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.entries[id]
	return res, ok
}

// generateRefID creates a unique handle id.
func generateRefID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "ref_" + hex.EncodeToString(bytes)
}
