// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
)

// =============================================================================
// DELTA EXTRACTION
// =============================================================================

// chunkShape captures every field path a streamed chunk is known to
// carry its textual delta under. The knowledge endpoint emits
// OpenAI-style choices; the files endpoint has additionally been
// observed using flat content/response/answer fields.
type chunkShape struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Content  string `json:"content"`
	Response string `json:"response"`
	Answer   string `json:"answer"`
}

// ExtractDelta pulls the textual delta out of one streamed JSON chunk,
// trying known field paths in priority order:
//
//	choices[0].delta.content, then (when extended) content, response, answer
//
// Returns ok=false for unparseable chunks and chunks with no delta;
// callers skip those silently.
func ExtractDelta(data []byte, extended bool) (string, bool) {
	var chunk chunkShape
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false
	}

	if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
		return chunk.Choices[0].Delta.Content, true
	}
	if !extended {
		return "", false
	}
	if chunk.Content != "" {
		return chunk.Content, true
	}
	if chunk.Response != "" {
		return chunk.Response, true
	}
	if chunk.Answer != "" {
		return chunk.Answer, true
	}
	return "", false
}
