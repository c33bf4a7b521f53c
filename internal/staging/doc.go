// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package staging holds the set of attachments selected but not yet
// sent: at most one document-like file plus a capped number of images.
//
// Image staging is asynchronous: a picked image is compressed through
// the tiered policy before it counts as staged. A generation counter
// guards against the race where the user removes or clears staging
// while a compression is still in flight; the late-arriving result is
// discarded instead of resurrecting a removed slot.
package staging
