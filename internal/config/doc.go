// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides the persisted user configuration and the process
// settings for chatdeck.
//
// Two files live in the per-user configuration directory:
//
//   - config.json: the user configuration (the OpenAI API key), owned by a
//     Store and editable from the GUI. Written atomically with 0600 perms.
//   - settings.toml: optional process settings (listen address, Ollama URL,
//     pull policy, logging). Missing keys fall back to defaults.
//
// # Configuration Precedence
//
// For both files, values are resolved from (in order of precedence):
//   - Command line flags
//   - Environment variables (OPENAI_API_KEY, OLLAMA_HOST, CHATDECK_*),
//     including those loaded from a .env file
//   - The file on disk
//   - Built-in defaults
//
// Environment overrides are never written back to disk.
//
// # Usage
//
//	dir, err := config.DefaultDir()
//	store := config.NewStore(dir)
//	cfg, err := store.Load()
//	err = store.SetOpenAIAPIKey("sk-...")
package config
