// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package imaging

import (
	"strings"
	"time"
)

// =============================================================================
// FILE TYPE
// =============================================================================

// File is an in-memory file-like object: the engine's analogue of a
// browser File. Attachments arrive from the presentation layer already
// read into memory.
type File struct {
	Name         string
	Type         string // MIME type
	Data         []byte
	LastModified time.Time
}

// NewFile creates a file with the modification time set to now.
func NewFile(name, mime string, data []byte) *File {
	return &File{
		Name:         name,
		Type:         mime,
		Data:         data,
		LastModified: time.Now(),
	}
}

// Size returns the file size in bytes.
func (f *File) Size() int64 {
	return int64(len(f.Data))
}

// IsImage reports whether the MIME type marks an image.
func (f *File) IsImage() bool {
	return strings.HasPrefix(f.Type, "image/")
}
