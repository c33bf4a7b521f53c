// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"bytes"
	"context"
	"io"
)

// =============================================================================
// STREAM READER
// =============================================================================

// doneMarker is the SSE end-of-stream sentinel payload.
var doneMarker = []byte("[DONE]")

// Reader handles line-by-line parsing of a streamed response body. Both
// delivery shapes pass through it: lines prefixed with "data:" are SSE
// frames (their payload is unwrapped, the [DONE] sentinel ends the
// stream), any other non-empty line is treated as a bare NDJSON object.
type Reader struct {
	reader *bufio.Reader
}

// NewReader creates a stream reader over a response body.
func NewReader(r io.Reader) *Reader {
	return &Reader{reader: bufio.NewReader(r)}
}

// Process reads payloads until the end marker, stream closure, context
// cancellation or a read error, invoking callback for each payload
// line. SSE field lines other than data (event:, id:, retry:, comments)
// and blank separator lines are skipped.
func (r *Reader) Process(ctx context.Context, callback func(payload []byte)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := r.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return err
		}

		payload, done := r.framePayload(line)
		if done {
			return nil
		}
		if payload != nil {
			callback(payload)
		}

		if err == io.EOF {
			// Clean closure ends a bare-NDJSON stream.
			return nil
		}
	}
}

// framePayload unwraps one line into its JSON payload. Returns done
// when the line is the end-of-stream sentinel, and a nil payload for
// lines that carry no data.
func (r *Reader) framePayload(line []byte) (payload []byte, done bool) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return nil, false
	}

	if data, ok := bytes.CutPrefix(line, []byte("data:")); ok {
		data = bytes.TrimSpace(data)
		if bytes.Equal(data, doneMarker) {
			return nil, true
		}
		if len(data) == 0 {
			return nil, false
		}
		return data, false
	}

	// Other SSE fields are ignored
	if bytes.HasPrefix(line, []byte("event:")) ||
		bytes.HasPrefix(line, []byte("id:")) ||
		bytes.HasPrefix(line, []byte("retry:")) ||
		bytes.HasPrefix(line, []byte(":")) {
		return nil, false
	}

	// Bare NDJSON line
	return line, false
}
