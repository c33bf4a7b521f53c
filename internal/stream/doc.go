// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream drives one question/answer round trip against the
// remote model endpoint.
//
// An exchange submits the outgoing turn (text-only JSON, or multipart
// when files are attached), then consumes an incrementally delivered
// response body. Two delivery shapes are tolerated: SSE-style
// "data: <json>" framing terminated by a "data: [DONE]" sentinel, and
// bare newline-delimited JSON objects ended by stream closure. Textual
// deltas are extracted by trying a fixed, ordered list of field paths;
// unparseable lines are skipped, never fatal.
//
// Each exchange walks Idle -> Sent -> Streaming -> Completed or Failed.
// Failure is terminal: there is no automatic retry, the user resubmits.
package stream
