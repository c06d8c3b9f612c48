// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across chatdeck.
//
// # Key Functions
//
//   - AtomicWriteFile, AtomicWriteFileWithDir: crash-safe file writing with fsync
//   - TruncateRunes: UTF-8 safe string truncation with ellipsis
//   - Title: one-line title derived from a message
package util
