// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/chatdeck/internal/config"
	"github.com/jeranaias/chatdeck/internal/ollama"
	"github.com/jeranaias/chatdeck/internal/storage"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Handler executes a command. args holds the raw JSON argument object sent by
// the host and may be empty. The result is encoded back to JSON.
type Handler func(ctx context.Context, env *Context, args json.RawMessage) (any, error)

// Command is a named operation the host can invoke.
type Command struct {
	// Name is the command name (e.g., "get_config")
	Name string

	// Description is shown in listings
	Description string

	// Args documents the argument object (e.g., "{model, message}")
	Args string

	// Category for grouping in listings
	Category string

	// Handler is the function that executes the command
	Handler Handler
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands. It is built once at startup and
// read concurrently afterwards.
type Registry struct {
	commands map[string]*Command
}

// NewRegistry creates a new command registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry, replacing any command with the
// same name.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
}

// Get retrieves a command by name.
func (r *Registry) Get(name string) *Command {
	return r.commands[name]
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory returns commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// Dispatch runs the named command.
//
// Every failure is returned as an *InvokeError whose message is the flattened
// text of the underlying error; callers see one opaque string per failure.
func (r *Registry) Dispatch(ctx context.Context, env *Context, name string, args json.RawMessage) (any, error) {
	cmd := r.Get(name)
	if cmd == nil {
		commandsTotal.WithLabelValues("unknown", outcomeRejected).Inc()
		return nil, &InvokeError{Kind: KindUnknownCommand, Command: name, Message: "unknown command: " + name}
	}

	start := time.Now()
	result, err := cmd.Handler(ctx, env, args)
	commandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		kind := KindFailed
		var ae *argsError
		if errors.As(err, &ae) {
			kind = KindInvalidArgs
		}
		commandsTotal.WithLabelValues(name, outcomeFor(kind)).Inc()
		env.logger().Warn().
			Str("command", name).
			Str("kind", kind.String()).
			Err(err).
			Msg("command failed")
		return nil, &InvokeError{Kind: kind, Command: name, Message: err.Error()}
	}

	commandsTotal.WithLabelValues(name, outcomeOK).Inc()
	return result, nil
}

// =============================================================================
// COMMAND CONTEXT
// =============================================================================

// Context provides dependencies to command handlers.
//
// It follows the dependency injection pattern, allowing handlers to access
// services without direct coupling to the application structure. A nil
// service makes the commands that need it fail with an error.
type Context struct {
	// Config persists the user configuration
	Config *config.Store

	// Ollama is the client for local model operations
	Ollama *ollama.Client

	// Chats handles chat persistence
	Chats *storage.Store

	// PullPolicy is config.PullNever or config.PullMissing
	PullPolicy string

	// Logger receives command failures
	Logger *zerolog.Logger
}

// NewContext creates a new command context with the given dependencies.
func NewContext(store *config.Store, client *ollama.Client, chats *storage.Store) *Context {
	return &Context{
		Config:     store,
		Ollama:     client,
		Chats:      chats,
		PullPolicy: config.PullNever,
	}
}

// WithLogger attaches a logger to the Context.
func (c *Context) WithLogger(l zerolog.Logger) *Context {
	c.Logger = &l
	return c
}

func (c *Context) logger() *zerolog.Logger {
	if c == nil || c.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return c.Logger
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	// Configuration commands
	r.Register(&Command{
		Name:        "get_config",
		Description: "Load the user configuration, creating defaults on first use",
		Category:    "Config",
		Handler:     handleGetConfig,
	})

	r.Register(&Command{
		Name:        "save_config",
		Description: "Replace the user configuration",
		Args:        "{config}",
		Category:    "Config",
		Handler:     handleSaveConfig,
	})

	r.Register(&Command{
		Name:        "set_openai_api_key",
		Description: "Store the OpenAI API key",
		Args:        "{api_key}",
		Category:    "Config",
		Handler:     handleSetOpenAIAPIKey,
	})

	// Model commands
	r.Register(&Command{
		Name:        "send_ollama_message",
		Description: "Send a prompt to Ollama and return the reassembled records",
		Args:        "{model, message}",
		Category:    "Model",
		Handler:     handleSendOllamaMessage,
	})

	r.Register(&Command{
		Name:        "list_models",
		Description: "List models installed on the Ollama server",
		Category:    "Model",
		Handler:     handleListModels,
	})

	r.Register(&Command{
		Name:        "pull_model",
		Description: "Download a model to the Ollama server",
		Args:        "{model}",
		Category:    "Model",
		Handler:     handlePullModel,
	})

	// Chat commands
	r.Register(&Command{
		Name:        "list_chats",
		Description: "List saved chats, most recent first",
		Category:    "Chat",
		Handler:     handleListChats,
	})

	r.Register(&Command{
		Name:        "get_chat",
		Description: "Load a chat with its messages",
		Args:        "{id}",
		Category:    "Chat",
		Handler:     handleGetChat,
	})

	r.Register(&Command{
		Name:        "create_chat",
		Description: "Start a new chat",
		Args:        "{name, provider, model}",
		Category:    "Chat",
		Handler:     handleCreateChat,
	})

	r.Register(&Command{
		Name:        "rename_chat",
		Description: "Rename a chat",
		Args:        "{id, name}",
		Category:    "Chat",
		Handler:     handleRenameChat,
	})

	r.Register(&Command{
		Name:        "delete_chat",
		Description: "Delete a chat and its messages",
		Args:        "{id}",
		Category:    "Chat",
		Handler:     handleDeleteChat,
	})

	r.Register(&Command{
		Name:        "export_chat",
		Description: "Render a chat as Markdown or JSON",
		Args:        "{id, format}",
		Category:    "Chat",
		Handler:     handleExportChat,
	})

	r.Register(&Command{
		Name:        "send_chat_message",
		Description: "Append a message to a chat and store the model's reply",
		Args:        "{id, message}",
		Category:    "Chat",
		Handler:     handleSendChatMessage,
	})

	r.Register(&Command{
		Name:        "list_commands",
		Description: "List the available commands",
		Category:    "General",
		Handler:     r.handleListCommands,
	})
}
