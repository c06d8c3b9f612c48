// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides chat persistence for chatdeck.
//
// Chats and their messages live in a single SQLite database opened through
// the pure Go modernc.org/sqlite driver, so no cgo toolchain is needed.
//
// # Usage
//
//	store, err := storage.Open(filepath.Join(dir, "chats.db"))
//	defer store.Close()
//
//	chat := model.NewChat("Sky", model.ProviderOllama, "llama3")
//	err = store.Create(ctx, chat)
//	err = store.AppendMessages(ctx, chat.ID, model.NewUserMessage("Why is the sky blue?"))
//
// Lookups of unknown IDs return an error matching ErrNotFound.
package storage
