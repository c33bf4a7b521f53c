// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry tracks ephemeral display references for attachment
// previews.
//
// Display references behave like browser object URLs: short-lived,
// process-local handles over binary data that nothing in the runtime
// releases automatically. The registry is a handle table mapping opaque
// ref ids to live resources, with an explicit ReleaseAll for session
// teardown. Every handle minted here must be released exactly once;
// Release is idempotent so callers never have to track whether a ref was
// already dropped.
package registry
