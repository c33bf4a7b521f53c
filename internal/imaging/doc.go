// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package imaging normalizes attached images before transmission and
// persistence.
//
// Two encodings come out of this package:
//   - a transmission-quality compressed file, produced by Compress with
//     size-tiered parameters (bigger input, more aggressive compression)
//   - a persistable thumbnail, produced by ToPersistable with separate,
//     smaller parameters, intended only for storage
//
// Images are never upscaled; files at or under the pass-through
// threshold are returned unmodified. Decode failures surface as
// *DecodeError so callers can fall back to the original file instead of
// aborting the user's action.
package imaging
