// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
//
// # Key Types
//
//   - Chat: a named conversation bound to one provider and model
//   - Message: a single message with a role and content
//   - Provider: backend enumeration (openai, ollama)
//   - Role: message role enumeration (user, assistant)
//
// Provider and Role are string-backed and reject unknown values when decoded
// from JSON.
package model
