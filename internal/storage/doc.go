// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session-scoped conversation persistence.
//
// The store is a derived, lagging snapshot of the in-memory
// conversation: it is written after every mutation and read once on
// mount. Persistence is best-effort by design. A record that exceeds
// the configured byte ceiling is retried with only the most recent
// messages; a record that still cannot be written is logged and
// dropped, never surfaced to the user.
//
// Live display references are never persisted. On save, every image is
// rewritten to carry only its persistable thumbnail (or an omitted
// marker when even the thumbnail is too large); on load, display
// references are lazily re-derived from the thumbnails and registered
// with the session's resource registry.
//
// Two key-value backends are provided: a quota-enforcing in-memory
// store modeling an ephemeral browser session store, and a SQLite store
// for durable deployments.
package storage
