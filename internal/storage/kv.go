// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"sync"
)

// =============================================================================
// KEY-VALUE INTERFACE
// =============================================================================

// KV is the session-scoped key-value namespace backing the store.
// Implementations may enforce their own quota by returning
// ErrQuotaExceeded from Set.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// =============================================================================
// STORAGE ERRORS
// =============================================================================

// StorageError represents a storage-related error.
// Use errors.Is(err, ErrQuotaExceeded) to check for quota failures.
type StorageError struct {
	Message string
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing storage errors.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// ErrQuotaExceeded is returned when a write would exceed the backing
// store's byte quota.
var ErrQuotaExceeded = &StorageError{Message: "storage quota exceeded"}

// =============================================================================
// IN-MEMORY KV
// =============================================================================

// MemoryKV is a quota-enforcing in-memory key-value store. It models
// the ephemeral session-scoped store the engine was designed against:
// contents live exactly as long as the process.
type MemoryKV struct {
	mu       sync.Mutex
	data     map[string][]byte
	quota    int64 // total value bytes; 0 = unlimited
	usedSize int64
}

// NewMemoryKV creates an in-memory store with the given byte quota
// (0 for unlimited).
func NewMemoryKV(quota int64) *MemoryKV {
	return &MemoryKV{
		data:  make(map[string][]byte),
		quota: quota,
	}
}

// Get returns the value for key and whether it exists.
func (m *MemoryKV) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Set stores value under key, rejecting writes that would exceed the
// quota. A rejected write leaves the previous value intact.
func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	newUsed := m.usedSize - int64(len(m.data[key])) + int64(len(value))
	if m.quota > 0 && newUsed > m.quota {
		return ErrQuotaExceeded
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	m.usedSize = newUsed
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usedSize -= int64(len(m.data[key]))
	delete(m.data, key)
	return nil
}
