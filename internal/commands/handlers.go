// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/chatdeck/internal/config"
	"github.com/jeranaias/chatdeck/internal/export"
	"github.com/jeranaias/chatdeck/internal/model"
	"github.com/jeranaias/chatdeck/internal/ollama"
	"github.com/jeranaias/chatdeck/internal/storage"
)

// DefaultChatName names chats created without a name.
const DefaultChatName = "New chat"

var (
	errNoConfig = errors.New("config store not configured")
	errNoOllama = errors.New("ollama client not configured")
	errNoChats  = errors.New("chat store not configured")
)

// =============================================================================
// ARGUMENT TYPES
// =============================================================================

// SaveConfigArgs are the arguments of save_config.
type SaveConfigArgs struct {
	Config *config.Config `json:"config"`
}

// SetAPIKeyArgs are the arguments of set_openai_api_key.
type SetAPIKeyArgs struct {
	APIKey string `json:"api_key"`
}

// SendMessageArgs are the arguments of send_ollama_message.
type SendMessageArgs struct {
	Model   string `json:"model"`
	Message string `json:"message"`
}

// ModelArgs are the arguments of pull_model.
type ModelArgs struct {
	Model string `json:"model"`
}

// ChatIDArgs are the arguments of get_chat and delete_chat.
type ChatIDArgs struct {
	ID string `json:"id"`
}

// CreateChatArgs are the arguments of create_chat.
type CreateChatArgs struct {
	Name     string         `json:"name"`
	Provider model.Provider `json:"provider"`
	Model    string         `json:"model"`
}

// RenameChatArgs are the arguments of rename_chat.
type RenameChatArgs struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatMessageArgs are the arguments of send_chat_message.
type ChatMessageArgs struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// CommandInfo describes a registered command in list_commands output.
type CommandInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Args        string `json:"args,omitempty"`
	Category    string `json:"category"`
}

// =============================================================================
// CONFIG HANDLERS
// =============================================================================

func handleGetConfig(_ context.Context, env *Context, _ json.RawMessage) (any, error) {
	if env.Config == nil {
		return nil, errNoConfig
	}
	cfg, err := env.Config.Load()
	if err != nil {
		return nil, err
	}
	return cfg.ApplyEnvOverrides(), nil
}

func handleSaveConfig(_ context.Context, env *Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[SaveConfigArgs]("save_config", raw)
	if err != nil {
		return nil, err
	}
	if args.Config == nil {
		return nil, required("save_config", "config")
	}
	if env.Config == nil {
		return nil, errNoConfig
	}
	return nil, env.Config.Save(args.Config)
}

func handleSetOpenAIAPIKey(_ context.Context, env *Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[SetAPIKeyArgs]("set_openai_api_key", raw)
	if err != nil {
		return nil, err
	}
	if env.Config == nil {
		return nil, errNoConfig
	}
	return nil, env.Config.SetOpenAIAPIKey(args.APIKey)
}

// =============================================================================
// MODEL HANDLERS
// =============================================================================

func handleSendOllamaMessage(ctx context.Context, env *Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[SendMessageArgs]("send_ollama_message", raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Model) == "" {
		return nil, required("send_ollama_message", "model")
	}
	return generate(ctx, env, args.Model, args.Message)
}

func handleListModels(ctx context.Context, env *Context, _ json.RawMessage) (any, error) {
	if env.Ollama == nil {
		return nil, errNoOllama
	}
	models, err := env.Ollama.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if models == nil {
		models = []ollama.ModelInfo{}
	}
	return models, nil
}

func handlePullModel(ctx context.Context, env *Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[ModelArgs]("pull_model", raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Model) == "" {
		return nil, required("pull_model", "model")
	}
	if env.Ollama == nil {
		return nil, errNoOllama
	}
	err = env.Ollama.Pull(ctx, args.Model)
	recordPull(err)
	return nil, err
}

// generate relays a prompt to Ollama, pulling the model first when the pull
// policy asks for it.
func generate(ctx context.Context, env *Context, modelName, prompt string) ([]ollama.GenerateChunk, error) {
	if env.Ollama == nil {
		return nil, errNoOllama
	}

	if env.PullPolicy == config.PullMissing {
		err := env.Ollama.PullIfNeeded(ctx, modelName)
		if err != nil {
			recordPull(err)
			return nil, err
		}
	}

	chunks, err := env.Ollama.Generate(ctx, modelName, prompt)
	if err != nil {
		return nil, err
	}
	generationRecords.Add(float64(len(chunks)))
	env.logger().Debug().
		Str("model", modelName).
		Int("records", len(chunks)).
		Msg("generation complete")
	return chunks, nil
}

func recordPull(err error) {
	if err != nil {
		pullsTotal.WithLabelValues(outcomeFailed).Inc()
		return
	}
	pullsTotal.WithLabelValues(outcomeOK).Inc()
}

// =============================================================================
// CHAT HANDLERS
// =============================================================================

func handleListChats(ctx context.Context, env *Context, _ json.RawMessage) (any, error) {
	if env.Chats == nil {
		return nil, errNoChats
	}
	return env.Chats.List(ctx)
}

func handleGetChat(ctx context.Context, env *Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[ChatIDArgs]("get_chat", raw)
	if err != nil {
		return nil, err
	}
	if args.ID == "" {
		return nil, required("get_chat", "id")
	}
	if env.Chats == nil {
		return nil, errNoChats
	}
	return env.Chats.Get(ctx, args.ID)
}

func handleCreateChat(ctx context.Context, env *Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[CreateChatArgs]("create_chat", raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Model) == "" {
		return nil, required("create_chat", "model")
	}
	if args.Provider == "" {
		args.Provider = model.ProviderOllama
	}
	name := strings.TrimSpace(args.Name)
	if name == "" {
		name = DefaultChatName
	}
	if env.Chats == nil {
		return nil, errNoChats
	}

	chat := model.NewChat(name, args.Provider, strings.TrimSpace(args.Model))
	if err := env.Chats.Create(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func handleRenameChat(ctx context.Context, env *Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[RenameChatArgs]("rename_chat", raw)
	if err != nil {
		return nil, err
	}
	if args.ID == "" {
		return nil, required("rename_chat", "id")
	}
	if env.Chats == nil {
		return nil, errNoChats
	}
	return nil, env.Chats.Rename(ctx, args.ID, args.Name)
}

func handleDeleteChat(ctx context.Context, env *Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[ChatIDArgs]("delete_chat", raw)
	if err != nil {
		return nil, err
	}
	if args.ID == "" {
		return nil, required("delete_chat", "id")
	}
	if env.Chats == nil {
		return nil, errNoChats
	}
	return nil, env.Chats.Delete(ctx, args.ID)
}

// ExportChatArgs are the arguments of export_chat.
type ExportChatArgs struct {
	ID     string `json:"id"`
	Format string `json:"format"`
}

// ExportResult is a rendered chat ready to be saved by the caller.
type ExportResult struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Content  string `json:"content"`
}

func handleExportChat(ctx context.Context, env *Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[ExportChatArgs]("export_chat", raw)
	if err != nil {
		return nil, err
	}
	if args.ID == "" {
		return nil, required("export_chat", "id")
	}
	format, err := export.ParseFormat(args.Format)
	if err != nil {
		return nil, &argsError{command: "export_chat", msg: err.Error()}
	}
	if env.Chats == nil {
		return nil, errNoChats
	}

	chat, err := env.Chats.Get(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	exporter, err := export.ForFormat(format, nil)
	if err != nil {
		return nil, err
	}
	content, err := exporter.Export(chat)
	if err != nil {
		return nil, err
	}
	return ExportResult{
		FileName: export.FileName(chat, exporter),
		MimeType: exporter.MimeType(),
		Content:  string(content),
	}, nil
}

// handleSendChatMessage relays the chat so far plus the new message and
// stores both turns only when generation succeeds.
func handleSendChatMessage(ctx context.Context, env *Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[ChatMessageArgs]("send_chat_message", raw)
	if err != nil {
		return nil, err
	}
	if args.ID == "" {
		return nil, required("send_chat_message", "id")
	}
	if strings.TrimSpace(args.Message) == "" {
		return nil, required("send_chat_message", "message")
	}
	if env.Chats == nil {
		return nil, errNoChats
	}

	chat, err := env.Chats.Get(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	if chat.Provider != model.ProviderOllama {
		return nil, fmt.Errorf("provider %s cannot generate replies", chat.Provider)
	}

	user := model.NewUserMessage(args.Message)
	chat.AddMessage(user)
	prompt := args.Message
	if len(chat.Messages) > 1 {
		prompt = chat.Transcript()
	}

	chunks, err := generate(ctx, env, chat.Model, prompt)
	if err != nil {
		return nil, err
	}

	var reply strings.Builder
	for _, c := range chunks {
		reply.WriteString(c.Response)
	}
	assistant := model.NewAssistantMessage(strings.TrimSpace(reply.String()))

	if err := env.Chats.AppendMessages(ctx, chat.ID, user, assistant); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("chat was deleted during generation: %w", err)
		}
		return nil, err
	}
	return env.Chats.Get(ctx, chat.ID)
}

// =============================================================================
// GENERAL HANDLERS
// =============================================================================

func (r *Registry) handleListCommands(_ context.Context, _ *Context, _ json.RawMessage) (any, error) {
	cmds := r.All()
	infos := make([]CommandInfo, 0, len(cmds))
	for _, cmd := range cmds {
		infos = append(infos, CommandInfo{
			Name:        cmd.Name,
			Description: cmd.Description,
			Args:        cmd.Args,
			Category:    cmd.Category,
		})
	}
	return infos, nil
}
