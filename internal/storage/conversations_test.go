// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/educhat/internal/model"
	"github.com/jeranaias/educhat/internal/registry"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(kv KV) (*Store, *registry.Registry) {
	reg := registry.New(nil)
	return NewStore(kv, reg, 4<<20, 20, nil), reg
}

// makeThumbnail encodes a tiny real JPEG so restore can decode it.
func makeThumbnail(t *testing.T) *model.Thumbnail {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return &model.Thumbnail{
		DataURL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:   4,
		Height:  3,
	}
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestLoadAbsentYieldsGreeting(t *testing.T) {
	store, _ := newTestStore(NewMemoryKV(0))

	conv := store.Load("default")
	require.Equal(t, 1, conv.MessageCount())
	assert.Equal(t, model.GreetingText, conv.Messages[0].Content)
	assert.False(t, conv.HasUserTurns())
}

func TestLoadCorruptedYieldsGreeting(t *testing.T) {
	kv := NewMemoryKV(0)
	require.NoError(t, kv.Set("chat_history:default", []byte("{not json")))
	store, _ := newTestStore(kv)

	conv := store.Load("default")
	assert.Equal(t, 1, conv.MessageCount())
	assert.Equal(t, model.GreetingText, conv.Messages[0].Content)
}

func TestLoadEmptyRecordYieldsGreeting(t *testing.T) {
	kv := NewMemoryKV(0)
	require.NoError(t, kv.Set("chat_history:default", []byte("[]")))
	store, _ := newTestStore(kv)

	conv := store.Load("default")
	assert.Equal(t, 1, conv.MessageCount())
}

// =============================================================================
// SAVE / LOAD ROUND TRIP
// =============================================================================

func TestSaveLoadRoundTrip(t *testing.T) {
	kv := NewMemoryKV(0)
	store, _ := newTestStore(kv)

	conv := model.NewConversation("default")
	conv.AddUserMessage("What is Go?", &model.FileInfo{Name: "notes.pdf", Size: 123, Type: "application/pdf"}, nil)
	conv.AddMessage(model.NewMessage(model.RoleAssistant, "A programming language."))

	store.Save("default", conv)
	restored := store.Load("default")

	require.Equal(t, 3, restored.MessageCount())
	assert.Equal(t, conv.Messages[0].Content, restored.Messages[0].Content)
	assert.Equal(t, model.RoleUser, restored.Messages[1].Role)
	assert.Equal(t, "What is Go?", restored.Messages[1].Content)
	require.NotNil(t, restored.Messages[1].Attachment)
	assert.Equal(t, "notes.pdf", restored.Messages[1].Attachment.Name)
	assert.Equal(t, "A programming language.", restored.Messages[2].Content)
}

func TestSaveCapturesPendingContent(t *testing.T) {
	kv := NewMemoryKV(0)
	store, _ := newTestStore(kv)

	conv := model.NewConversation("default")
	conv.AddUserMessage("q", nil, nil)
	pending := conv.AddPendingAssistant()
	pending.AppendDelta("partial answer so far")

	store.Save("default", conv)
	restored := store.Load("default")

	// A reload cannot resume a stream: the snapshot carries the content
	// streamed so far as a finalized message.
	last := restored.LastMessage()
	assert.Equal(t, "partial answer so far", last.Content)
	assert.False(t, last.IsPending)
}

func TestImageRoundTripRestoresDisplayRef(t *testing.T) {
	kv := NewMemoryKV(0)
	store, reg := newTestStore(kv)

	conv := model.NewConversation("default")
	conv.AddUserMessage("look at this", nil, &model.Image{
		Name:              "photo.png",
		Type:              "image/png",
		Size:              2 << 20,
		DisplayRef:        "ref_ephemeral",
		DisplayURL:        "mem://ephemeral",
		Thumbnail:         makeThumbnail(t),
		IsLargeFile:       true,
		IsMobileOptimized: true,
	})

	store.Save("default", conv)
	restored := store.Load("default")

	img := restored.Messages[1].Image
	require.NotNil(t, img)
	assert.Equal(t, "photo.png", img.Name)
	assert.True(t, img.IsLargeFile)
	assert.True(t, img.IsMobileOptimized)
	assert.True(t, img.Restored)

	// The old display reference is gone; a fresh one backs the thumbnail.
	assert.NotEqual(t, "ref_ephemeral", img.DisplayRef)
	assert.NotEmpty(t, img.DisplayRef)
	_, ok := reg.Lookup(img.DisplayRef)
	assert.True(t, ok, "restored display reference should be live in the registry")
}

func TestImageWithoutThumbnailRestoresWithoutRef(t *testing.T) {
	kv := NewMemoryKV(0)
	store, _ := newTestStore(kv)

	conv := model.NewConversation("default")
	conv.AddUserMessage("img", nil, &model.Image{Name: "a.png", Type: "image/png", Size: 10})

	store.Save("default", conv)
	restored := store.Load("default")

	img := restored.Messages[1].Image
	require.NotNil(t, img)
	assert.Empty(t, img.DisplayRef)
	assert.False(t, img.Restored)
}

func TestOversizedThumbnailOmitted(t *testing.T) {
	kv := NewMemoryKV(0)
	store, _ := newTestStore(kv)

	conv := model.NewConversation("default")
	conv.AddUserMessage("img", nil, &model.Image{
		Name:      "big.png",
		Type:      "image/png",
		Size:      8 << 20,
		Thumbnail: &model.Thumbnail{DataURL: string(make([]byte, (200<<10)+1))},
	})

	store.Save("default", conv)
	restored := store.Load("default")

	img := restored.Messages[1].Image
	require.NotNil(t, img)
	assert.Nil(t, img.Thumbnail, "oversized thumbnail should be dropped")
	assert.Empty(t, img.DisplayRef)
}

// =============================================================================
// QUOTA DEGRADATION
// =============================================================================

func TestSaveQuotaDegradationTrims(t *testing.T) {
	// Quota fits the trimmed record but not the full one.
	kv := NewMemoryKV(32 << 10)
	reg := registry.New(nil)
	store := NewStore(kv, reg, 0, 4, nil)

	conv := model.NewConversation("default")
	filler := string(bytes.Repeat([]byte("x"), 1024))
	for i := 0; i < 100; i++ {
		conv.AddUserMessage(fmt.Sprintf("%d %s", i, filler), nil, nil)
	}

	store.Save("default", conv)

	restored := store.Load("default")
	require.Equal(t, 4, restored.MessageCount(), "retry keeps only the most recent messages")
	assert.Contains(t, restored.LastMessage().Content, "99 ")
}

func TestSaveFailureIsSwallowed(t *testing.T) {
	// Quota too small for even the trimmed record: the save is dropped
	// and the in-memory conversation is untouched.
	kv := NewMemoryKV(10)
	store, _ := newTestStore(kv)

	conv := model.NewConversation("default")
	conv.AddUserMessage("hello there", nil, nil)

	store.Save("default", conv)

	assert.Equal(t, 2, conv.MessageCount())
	restored := store.Load("default")
	assert.Equal(t, 1, restored.MessageCount(), "nothing was persisted")
}

func TestSaveRespectsRecordCeiling(t *testing.T) {
	kv := NewMemoryKV(0)
	reg := registry.New(nil)
	store := NewStore(kv, reg, 2048, 2, nil)

	conv := model.NewConversation("default")
	filler := string(bytes.Repeat([]byte("y"), 512))
	for i := 0; i < 20; i++ {
		conv.AddUserMessage(filler, nil, nil)
	}

	store.Save("default", conv)

	restored := store.Load("default")
	assert.Equal(t, 2, restored.MessageCount(), "ceiling triggers the same trim path as backend quota")
}

// =============================================================================
// CLEAR AND SESSION ID
// =============================================================================

func TestClearRemovesHistoryKeepsSession(t *testing.T) {
	kv := NewMemoryKV(0)
	store, _ := newTestStore(kv)

	conv := model.NewConversation("default")
	conv.AddUserMessage("q", nil, nil)
	store.Save("default", conv)
	id := store.SessionID("default")

	store.Clear("default")

	restored := store.Load("default")
	assert.Equal(t, 1, restored.MessageCount())
	assert.Equal(t, id, store.SessionID("default"), "clearing history must not rotate the session id")
}

func TestSessionIDStable(t *testing.T) {
	store, _ := newTestStore(NewMemoryKV(0))

	first := store.SessionID("default")
	require.NotEmpty(t, first)
	assert.Equal(t, first, store.SessionID("default"))

	other := store.SessionID("classroom-2")
	assert.NotEqual(t, first, other, "channels get distinct session ids")
}

// =============================================================================
// MEMORY KV TESTS
// =============================================================================

func TestMemoryKVQuota(t *testing.T) {
	kv := NewMemoryKV(10)

	require.NoError(t, kv.Set("a", []byte("12345")))
	err := kv.Set("b", []byte("123456"))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// The previous value survives a rejected overwrite.
	require.NoError(t, kv.Set("a", []byte("1234567890")))
	assert.ErrorIs(t, kv.Set("a", []byte("12345678901")), ErrQuotaExceeded)
	val, ok, err := kv.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1234567890", string(val))

	// Delete frees quota.
	require.NoError(t, kv.Delete("a"))
	require.NoError(t, kv.Set("c", []byte("1234567890")))
}

func TestMemoryKVGetCopies(t *testing.T) {
	kv := NewMemoryKV(0)
	require.NoError(t, kv.Set("k", []byte("abc")))

	val, _, _ := kv.Get("k")
	val[0] = 'z'

	again, _, _ := kv.Get("k")
	assert.Equal(t, "abc", string(again), "mutating a returned value must not corrupt the store")
}
