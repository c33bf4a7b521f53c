// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"strings"
	"testing"
)

// =============================================================================
// FRAMING TESTS
// =============================================================================

func collectPayloads(t *testing.T, body string) []string {
	t.Helper()
	var payloads []string
	r := NewReader(strings.NewReader(body))
	err := r.Process(context.Background(), func(payload []byte) {
		payloads = append(payloads, string(payload))
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	return payloads
}

func TestProcessSSEFrames(t *testing.T) {
	body := "data: {\"a\":1}\n\n" +
		"data: {\"a\":2}\n\n" +
		"data: [DONE]\n"

	payloads := collectPayloads(t, body)
	if len(payloads) != 2 {
		t.Fatalf("Got %d payloads, want 2", len(payloads))
	}
	if payloads[0] != `{"a":1}` || payloads[1] != `{"a":2}` {
		t.Errorf("Payloads = %v", payloads)
	}
}

func TestProcessStopsAtDoneMarker(t *testing.T) {
	body := "data: {\"a\":1}\n" +
		"data: [DONE]\n" +
		"data: {\"a\":2}\n"

	payloads := collectPayloads(t, body)
	if len(payloads) != 1 {
		t.Fatalf("Got %d payloads, want 1 (nothing after [DONE])", len(payloads))
	}
}

func TestProcessNDJSONLines(t *testing.T) {
	body := "{\"response\":\"Hel\"}\n{\"response\":\"lo\"}\n"

	payloads := collectPayloads(t, body)
	if len(payloads) != 2 {
		t.Fatalf("Got %d payloads, want 2", len(payloads))
	}
}

func TestProcessNDJSONCleanEOF(t *testing.T) {
	// Final line without a trailing newline still counts.
	body := "{\"response\":\"a\"}\n{\"response\":\"b\"}"

	payloads := collectPayloads(t, body)
	if len(payloads) != 2 {
		t.Fatalf("Got %d payloads, want 2", len(payloads))
	}
}

func TestProcessSkipsOtherSSEFields(t *testing.T) {
	body := "event: message\n" +
		"id: 42\n" +
		"retry: 1000\n" +
		": keepalive comment\n" +
		"data: {\"a\":1}\n" +
		"\n" +
		"data: [DONE]\n"

	payloads := collectPayloads(t, body)
	if len(payloads) != 1 {
		t.Fatalf("Got %d payloads, want 1", len(payloads))
	}
}

func TestProcessCRLFLines(t *testing.T) {
	body := "data: {\"a\":1}\r\n\r\ndata: [DONE]\r\n"

	payloads := collectPayloads(t, body)
	if len(payloads) != 1 {
		t.Fatalf("Got %d payloads, want 1", len(payloads))
	}
	if payloads[0] != `{"a":1}` {
		t.Errorf("Payload = %q, want CR stripped", payloads[0])
	}
}

func TestProcessDataNoSpace(t *testing.T) {
	payloads := collectPayloads(t, "data:{\"a\":1}\ndata:[DONE]\n")
	if len(payloads) != 1 || payloads[0] != `{"a":1}` {
		t.Errorf("Payloads = %v, want single unwrapped frame", payloads)
	}
}

func TestProcessContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReader(strings.NewReader("data: {\"a\":1}\n"))
	err := r.Process(ctx, func([]byte) {})
	if err != context.Canceled {
		t.Errorf("Process = %v, want context.Canceled", err)
	}
}

// =============================================================================
// DELTA EXTRACTION TESTS
// =============================================================================

func TestExtractDeltaChoices(t *testing.T) {
	data := []byte(`{"choices":[{"delta":{"content":"Hi"}}]}`)

	delta, ok := ExtractDelta(data, false)
	if !ok || delta != "Hi" {
		t.Errorf("ExtractDelta = %q, %v; want %q, true", delta, ok, "Hi")
	}
}

func TestExtractDeltaExtendedFields(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"content", `{"content":"a"}`, "a"},
		{"response", `{"response":"b"}`, "b"},
		{"answer", `{"answer":"c"}`, "c"},
		{"choices wins over flat", `{"choices":[{"delta":{"content":"x"}}],"answer":"c"}`, "x"},
		{"content wins over response", `{"content":"a","response":"b"}`, "a"},
		{"response wins over answer", `{"response":"b","answer":"c"}`, "b"},
	}

	for _, tt := range tests {
		delta, ok := ExtractDelta([]byte(tt.data), true)
		if !ok || delta != tt.want {
			t.Errorf("%s: ExtractDelta = %q, %v; want %q, true", tt.name, delta, ok, tt.want)
		}
	}
}

func TestExtractDeltaFlatFieldsIgnoredWithoutExtended(t *testing.T) {
	if _, ok := ExtractDelta([]byte(`{"response":"b"}`), false); ok {
		t.Error("Flat fields must not apply to the knowledge endpoint")
	}
}

func TestExtractDeltaMalformed(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{}`),
		[]byte(`{"choices":[]}`),
		[]byte(`{"choices":[{"delta":{}}]}`),
	}
	for _, data := range cases {
		if _, ok := ExtractDelta(data, true); ok {
			t.Errorf("ExtractDelta(%q) should report no delta", data)
		}
	}
}
