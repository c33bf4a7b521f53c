// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// The central types are:
//   - Message: a single conversational turn with optional file and image
//     attachments and streaming (pending) state
//   - Conversation: an ordered message sequence owned by one session,
//     guaranteed to hold at least a greeting message
//
// The model layer is deliberately leaf-level: it imports nothing from the
// rest of the engine so that every other package can depend on it.
package model
