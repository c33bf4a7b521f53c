// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// countingResource records how many times Release was invoked.
type countingResource struct {
	mu       sync.Mutex
	releases int
	err      error
}

func (c *countingResource) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
	return c.err
}

func (c *countingResource) Releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestRegisterAndRelease(t *testing.T) {
	reg := New(nil)
	res := &countingResource{}

	id := reg.Register(res)
	if !strings.HasPrefix(id, "ref_") {
		t.Errorf("Ref id should start with 'ref_', got %q", id)
	}
	if reg.Count() != 1 {
		t.Errorf("Count = %d, want 1", reg.Count())
	}

	reg.Release(id)
	if res.Releases() != 1 {
		t.Errorf("Releases = %d, want 1", res.Releases())
	}
	if reg.Count() != 0 {
		t.Errorf("Count = %d, want 0", reg.Count())
	}
}

func TestReleaseIdempotent(t *testing.T) {
	reg := New(nil)
	res := &countingResource{}
	id := reg.Register(res)

	reg.Release(id)
	reg.Release(id)
	reg.Release("ref_unknown")

	if res.Releases() != 1 {
		t.Errorf("Releases = %d, want 1 (at most once per handle)", res.Releases())
	}
}

func TestReleaseSwallowsFailure(t *testing.T) {
	reg := New(nil)
	res := &countingResource{err: errors.New("backing store gone")}
	id := reg.Register(res)

	// Must not panic, and the handle is still removed.
	reg.Release(id)
	if reg.Count() != 0 {
		t.Errorf("Count = %d, want 0 after failed release", reg.Count())
	}
}

func TestReleaseAll(t *testing.T) {
	reg := New(nil)
	resources := make([]*countingResource, 5)
	for i := range resources {
		resources[i] = &countingResource{}
		reg.Register(resources[i])
	}

	reg.ReleaseAll()

	if reg.Count() != 0 {
		t.Errorf("Count = %d, want 0", reg.Count())
	}
	for i, res := range resources {
		if res.Releases() != 1 {
			t.Errorf("Resource %d released %d times, want 1", i, res.Releases())
		}
	}

	// Registry remains usable after ReleaseAll.
	id := reg.Register(&countingResource{})
	if _, ok := reg.Lookup(id); !ok {
		t.Error("Registry should accept new resources after ReleaseAll")
	}
}

func TestLookup(t *testing.T) {
	reg := New(nil)
	res := &countingResource{}
	id := reg.Register(res)

	got, ok := reg.Lookup(id)
	if !ok || got != res {
		t.Error("Lookup should return the registered resource")
	}

	if _, ok := reg.Lookup("ref_missing"); ok {
		t.Error("Lookup of unknown id should report absence")
	}
}

func TestConcurrentRegisterRelease(t *testing.T) {
	reg := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := reg.Register(&countingResource{})
			reg.Release(id)
		}()
	}
	wg.Wait()

	if reg.Count() != 0 {
		t.Errorf("Count = %d, want 0", reg.Count())
	}
}

// =============================================================================
// BLOB TESTS
// =============================================================================

func TestBlobLifecycle(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	blob := NewBlob("photo.png", "image/png", data)

	if !strings.HasPrefix(blob.URL(), "mem://") {
		t.Errorf("URL should start with 'mem://', got %q", blob.URL())
	}
	if blob.Name() != "photo.png" {
		t.Errorf("Name = %q, want %q", blob.Name(), "photo.png")
	}
	if blob.MIME() != "image/png" {
		t.Errorf("MIME = %q, want %q", blob.MIME(), "image/png")
	}

	got, err := blob.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if len(got) != len(data) {
		t.Errorf("Bytes length = %d, want %d", len(got), len(data))
	}

	if err := blob.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := blob.Bytes(); !errors.Is(err, ErrBlobReleased) {
		t.Errorf("Bytes after release = %v, want ErrBlobReleased", err)
	}

	// Second release is a no-op.
	if err := blob.Release(); err != nil {
		t.Errorf("Second release should be a no-op, got %v", err)
	}
}

func TestBlobURLsUnique(t *testing.T) {
	a := NewBlob("a", "text/plain", nil)
	b := NewBlob("b", "text/plain", nil)
	if a.URL() == b.URL() {
		t.Error("Distinct blobs must have distinct URLs")
	}
}
