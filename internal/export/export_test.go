// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatdeck/internal/model"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testChat() *model.Chat {
	chat := model.NewChat("Sky: why *blue*?", model.ProviderOllama, "llama3")
	chat.ID = "0b5f3c1e-2d4a-4c7e-9f00-123456789abc"
	chat.CreatedAt = fixedNow.Add(-time.Hour)
	chat.UpdatedAt = fixedNow
	chat.Messages = []model.Message{
		model.NewUserMessage("Why is the sky blue?"),
		model.NewAssistantMessage("  Rayleigh scattering.\n"),
	}
	return chat
}

func testOptions(metadata bool) *Options {
	return &Options{IncludeMetadata: metadata, Now: func() time.Time { return fixedNow }}
}

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(testOptions(true)).Export(testChat())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\ntitle: \"Sky: why *blue*?\"\nprovider: ollama\n"))
	assert.Contains(t, md, "exported: 2025-03-01T12:00:00Z\n")
	assert.Contains(t, md, "# Sky: why \\*blue\\*?\n")
	assert.Contains(t, md, "- **Messages**: 2\n")
	assert.Contains(t, md, "### You\n\nWhy is the sky blue?\n\n---\n\n### Assistant\n\nRayleigh scattering.\n\n")
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	out, err := NewMarkdownExporter(testOptions(false)).Export(testChat())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(out), "# Sky"))
	assert.NotContains(t, string(out), "Chat Information")
}

func TestMarkdownExporter_Rejects(t *testing.T) {
	e := NewMarkdownExporter(nil)

	_, err := e.Export(nil)
	assert.ErrorIs(t, err, errNilChat)

	_, err = e.Export(model.NewChat("empty", model.ProviderOllama, "llama3"))
	assert.EqualError(t, err, "chat has no messages")
}

func TestJSONExporter(t *testing.T) {
	out, err := NewJSONExporter(testOptions(true)).Export(testChat())
	require.NoError(t, err)

	var doc struct {
		ExportedAt time.Time  `json:"exported_at"`
		Generator  string     `json:"generator"`
		Chat       model.Chat `json:"chat"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.True(t, fixedNow.Equal(doc.ExportedAt))
	assert.Equal(t, "chatdeck", doc.Generator)
	assert.Equal(t, testChat().Messages, doc.Chat.Messages)

	out, err = NewJSONExporter(testOptions(false)).Export(testChat())
	require.NoError(t, err)
	assert.NotContains(t, string(out), "exported_at")
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatMarkdown, false},
		{"MD", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"json", FormatJSON, false},
		{"html", "", true},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)

		e, err := ForFormat(got, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, e.MimeType())
	}
}

func TestToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	exporter := NewMarkdownExporter(testOptions(true))

	path, err := ToFile(testChat(), exporter, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "chat_Sky-_why_-blue--_0b5f3c1e.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Rayleigh scattering.")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a-b-c_d", sanitizeFilename("a/b\\c d"))
	assert.Equal(t, "chat", sanitizeFilename("   "))
	assert.Len(t, []rune(sanitizeFilename(strings.Repeat("é", 80))), 50)
}
