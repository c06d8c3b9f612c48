// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders stored chats as Markdown or JSON documents.
//
// # Key Types
//
//   - Format: Export format name (markdown, json)
//   - Exporter: Renders one chat in one format
//   - Options: Metadata and clock settings shared by exporters
//
// # Usage
//
//	exporter, err := export.ForFormat(export.FormatMarkdown, nil)
//	path, err := export.ToFile(chat, exporter, "exports")
package export
