// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the named command set the desktop shell invokes.
//
// Each command takes a JSON argument object and returns a JSON-encodable
// result. Failures are flattened into an *InvokeError carrying one opaque,
// human-readable message.
//
// # Key Types
//
//   - Registry: Command registry with all available commands
//   - Command: Name, description and handler of one command
//   - Context: Services (config store, Ollama client, chat store) handed to handlers
//   - InvokeError: Opaque failure returned to the host
//
// # Built-in Commands
//
//   - get_config, save_config, set_openai_api_key: user configuration
//   - send_ollama_message, list_models, pull_model: local model server
//   - list_chats, get_chat, create_chat, rename_chat, delete_chat,
//     export_chat, send_chat_message: saved chats
//   - list_commands: the command listing itself
//
// # Usage
//
//	registry := commands.NewRegistry()
//	env := commands.NewContext(store, client, chats)
//	result, err := registry.Dispatch(ctx, env, "send_ollama_message",
//	    json.RawMessage(`{"model":"llama3","message":"hi"}`))
package commands
