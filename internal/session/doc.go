// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session composes the conversation engine: the canonical
// message sequence, attachment staging, the streaming exchange, the
// resource registry and the persistence store.
//
// One Session owns one conversation for one chat channel. User actions
// arrive as method calls (Submit, ClearHistory, attachment staging via
// the embedded staging area) and presentation-layer effects leave
// through the OnUpdate callback. The session enforces the single
// in-flight exchange rule and guarantees that every display reference
// minted for the conversation is released by ClearHistory or Close.
package session
