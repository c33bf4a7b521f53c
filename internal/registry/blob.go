// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// =============================================================================
// BLOB RESOURCE
// =============================================================================

// ErrBlobReleased is returned when a blob's data is read after release.
var ErrBlobReleased = errors.New("blob already released")

// Blob is a pinned byte buffer backing a display reference. Its URL is
// the process-local analogue of a browser object URL: stable for the
// blob's lifetime, dead after release.
type Blob struct {
	name string
	mime string
	url  string
	data []byte
}

// NewBlob pins data under a fresh mem:// URL.
func NewBlob(name, mime string, data []byte) *Blob {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return &Blob{
		name: name,
		mime: mime,
		url:  "mem://" + hex.EncodeToString(bytes),
		data: data,
	}
}

// URL returns the blob's display location.
func (b *Blob) URL() string {
	return b.url
}

// Name returns the original file name.
func (b *Blob) Name() string {
	return b.name
}

// MIME returns the blob's media type.
func (b *Blob) MIME() string {
	return b.mime
}

// Bytes returns the pinned data, or an error after release.
func (b *Blob) Bytes() ([]byte, error) {
	if b.data == nil {
		return nil, ErrBlobReleased
	}
	return b.data, nil
}

// Release drops the pinned buffer. Idempotent.
func (b *Blob) Release() error {
	b.data = nil
	return nil
}
