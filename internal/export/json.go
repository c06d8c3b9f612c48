// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/chatdeck/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports chats to JSON.
// The chat is always written in full; IncludeMetadata only controls the
// export envelope fields.
type JSONExporter struct {
	options *Options
}

// jsonDocument is the exported envelope around a chat.
type jsonDocument struct {
	ExportedAt *time.Time  `json:"exported_at,omitempty"`
	Generator  string      `json:"generator,omitempty"`
	Chat       *model.Chat `json:"chat"`
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a chat to indented JSON.
func (e *JSONExporter) Export(chat *model.Chat) ([]byte, error) {
	if chat == nil {
		return nil, errNilChat
	}

	doc := jsonDocument{Chat: chat}
	if e.options.IncludeMetadata {
		now := e.options.now().UTC()
		doc.ExportedAt = &now
		doc.Generator = "chatdeck"
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
