// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatdeck/internal/config"
	"github.com/jeranaias/chatdeck/internal/model"
	"github.com/jeranaias/chatdeck/internal/ollama"
	"github.com/jeranaias/chatdeck/internal/storage"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// fakeServer answers the Ollama endpoints the commands use.
type fakeServer struct {
	generate []string // chunks written for /api/generate
	tags     []string
	pull     []string

	mu      sync.Mutex
	prompts []string
	pulls   int
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		resp := ollama.ListModelsResponse{}
		for _, name := range f.tags {
			resp.Models = append(resp.Models, ollama.ModelInfo{Name: name})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req ollama.GenerateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.prompts = append(f.prompts, req.Prompt)
		f.mu.Unlock()
		writeChunks(w, f.generate)
	})
	mux.HandleFunc("POST /api/pull", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.pulls++
		f.mu.Unlock()
		writeChunks(w, f.pull)
	})
	return mux
}

func (f *fakeServer) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeServer) pullCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls
}

func writeChunks(w http.ResponseWriter, chunks []string) {
	flusher, _ := w.(http.Flusher)
	for _, c := range chunks {
		_, _ = w.Write([]byte(c))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

type fixture struct {
	registry *Registry
	env      *Context
	server   *fakeServer
}

func newFixture(t *testing.T, server *fakeServer) *fixture {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	if server == nil {
		server = &fakeServer{}
	}
	srv := httptest.NewServer(server.handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	chats, err := storage.Open(filepath.Join(dir, "chats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { chats.Close() })

	cfg := ollama.DefaultConfig()
	cfg.BaseURL = srv.URL

	return &fixture{
		registry: NewRegistry(),
		env:      NewContext(config.NewStore(dir), ollama.NewClientWithConfig(cfg), chats),
		server:   server,
	}
}

func (f *fixture) invoke(t *testing.T, name, args string) (any, error) {
	t.Helper()
	var raw json.RawMessage
	if args != "" {
		raw = json.RawMessage(args)
	}
	return f.registry.Dispatch(context.Background(), f.env, name, raw)
}

func requireKind(t *testing.T, err error, kind ErrorKind) *InvokeError {
	t.Helper()
	var ie *InvokeError
	require.True(t, errors.As(err, &ie), "want *InvokeError, got %T", err)
	assert.Equal(t, kind, ie.Kind)
	return ie
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestRegistry_Builtins(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{
		"get_config", "save_config", "set_openai_api_key",
		"send_ollama_message", "list_models", "pull_model",
		"list_chats", "get_chat", "create_chat", "rename_chat", "delete_chat", "export_chat", "send_chat_message",
		"list_commands",
	} {
		cmd := r.Get(name)
		if assert.NotNil(t, cmd, name) {
			assert.NotNil(t, cmd.Handler, name)
		}
	}

	all := r.All()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Name, all[i].Name, "All is sorted")
	}
	assert.Len(t, r.ByCategory()["Chat"], 7)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.invoke(t, "format_disk", "")

	ie := requireKind(t, err, KindUnknownCommand)
	assert.Equal(t, "unknown command: format_disk", ie.Error())
}

func TestDispatch_InvalidArgs(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name, command, args string
	}{
		{"not an object", "send_ollama_message", `"hello"`},
		{"wrong type", "send_ollama_message", `{"model": 3}`},
		{"missing model", "send_ollama_message", `{"message":"hi"}`},
		{"missing config", "save_config", `{}`},
		{"bad provider", "create_chat", `{"provider":"anthropic","model":"x"}`},
		{"missing id", "get_chat", ``},
		{"blank message", "send_chat_message", `{"id":"x","message":"  "}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.invoke(t, tc.command, tc.args)
			ie := requireKind(t, err, KindInvalidArgs)
			assert.Contains(t, ie.Error(), "invalid arguments for "+tc.command)
		})
	}
}

func TestDispatch_MissingServices(t *testing.T) {
	r := NewRegistry()
	env := &Context{}

	for _, name := range []string{"get_config", "list_models", "list_chats"} {
		_, err := r.Dispatch(context.Background(), env, name, nil)
		requireKind(t, err, KindFailed)
	}
}

// =============================================================================
// CONFIG COMMAND TESTS
// =============================================================================

func TestConfigCommands(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.invoke(t, "get_config", "")
	require.NoError(t, err)
	assert.False(t, got.(*config.Config).HasAPIKey())

	_, err = f.invoke(t, "set_openai_api_key", `{"api_key":"sk-one"}`)
	require.NoError(t, err)

	got, err = f.invoke(t, "get_config", "")
	require.NoError(t, err)
	assert.Equal(t, "sk-one", got.(*config.Config).APIKey())

	_, err = f.invoke(t, "save_config", `{"config":{"openai_api_key":null}}`)
	require.NoError(t, err)

	got, err = f.invoke(t, "get_config", "")
	require.NoError(t, err)
	assert.Nil(t, got.(*config.Config).OpenAIAPIKey)
}

func TestGetConfig_EnvOverride(t *testing.T) {
	f := newFixture(t, nil)
	t.Setenv("OPENAI_API_KEY", "sk-env")

	got, err := f.invoke(t, "get_config", "")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", got.(*config.Config).APIKey())

	// The override is never written back.
	stored, err := f.env.Config.Load()
	require.NoError(t, err)
	assert.Nil(t, stored.OpenAIAPIKey)
}

// =============================================================================
// MODEL COMMAND TESTS
// =============================================================================

func TestSendOllamaMessage(t *testing.T) {
	f := newFixture(t, &fakeServer{
		generate: []string{`{"respon`, `se":"Hel"}{"response":"lo"}`, "\n", `{"response":"","done":true}`},
	})

	got, err := f.invoke(t, "send_ollama_message", `{"model":"llama3","message":"Say hello"}`)
	require.NoError(t, err)

	chunks := got.([]ollama.GenerateChunk)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Hel", chunks[0].Response)
	assert.Equal(t, "lo", chunks[1].Response)
	assert.True(t, chunks[2].Done)
	assert.Equal(t, "Say hello", f.server.lastPrompt())
	assert.Zero(t, f.server.pullCount(), "default policy never pulls")
}

func TestSendOllamaMessage_EmptyStream(t *testing.T) {
	f := newFixture(t, &fakeServer{})

	got, err := f.invoke(t, "send_ollama_message", `{"model":"llama3","message":"hi"}`)
	require.NoError(t, err)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestSendOllamaMessage_ErrorIsOpaque(t *testing.T) {
	f := newFixture(t, &fakeServer{
		generate: []string{`{"response":"partial"}`, `{"error":"model crashed"}`},
	})

	got, err := f.invoke(t, "send_ollama_message", `{"model":"llama3","message":"hi"}`)

	assert.Nil(t, got)
	ie := requireKind(t, err, KindFailed)
	assert.Contains(t, ie.Error(), "model crashed")

	var ce *ollama.ClientError
	assert.False(t, errors.As(err, &ce), "the error chain does not cross the boundary")
}

func TestSendOllamaMessage_PullMissing(t *testing.T) {
	f := newFixture(t, &fakeServer{
		tags:     []string{"other:latest"},
		pull:     []string{`{"status":"pulling manifest"}`, "\n", `{"status":"success"}`},
		generate: []string{`{"response":"ok"}`},
	})
	f.env.PullPolicy = config.PullMissing

	_, err := f.invoke(t, "send_ollama_message", `{"model":"llama3","message":"hi"}`)
	require.NoError(t, err)
	assert.Equal(t, 1, f.server.pullCount())
}

func TestSendOllamaMessage_PullFailureStopsSend(t *testing.T) {
	f := newFixture(t, &fakeServer{
		pull:     []string{`{"status":"pulling manifest"}`},
		generate: []string{`{"response":"never"}`},
	})
	f.env.PullPolicy = config.PullMissing

	_, err := f.invoke(t, "send_ollama_message", `{"model":"llama3","message":"hi"}`)

	ie := requireKind(t, err, KindFailed)
	assert.Contains(t, ie.Error(), "failed to pull model: llama3")
	assert.Empty(t, f.server.lastPrompt())
}

func TestListAndPullModels(t *testing.T) {
	f := newFixture(t, &fakeServer{
		tags: []string{"llama3:latest", "qwen2:7b"},
		pull: []string{`{"status":"success"}`},
	})

	got, err := f.invoke(t, "list_models", "")
	require.NoError(t, err)
	models := got.([]ollama.ModelInfo)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3:latest", models[0].Name)

	_, err = f.invoke(t, "pull_model", `{"model":"mistral"}`)
	require.NoError(t, err)
	assert.Equal(t, 1, f.server.pullCount())
}

// =============================================================================
// CHAT COMMAND TESTS
// =============================================================================

func TestChatLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.invoke(t, "create_chat", `{"provider":"Ollama","model":"llama3"}`)
	require.NoError(t, err)
	chat := got.(*model.Chat)
	assert.Equal(t, DefaultChatName, chat.Name)
	assert.Equal(t, model.ProviderOllama, chat.Provider)

	_, err = f.invoke(t, "rename_chat", `{"id":"`+chat.ID+`","name":"Sky"}`)
	require.NoError(t, err)

	got, err = f.invoke(t, "list_chats", "")
	require.NoError(t, err)
	metas := got.([]storage.ChatMeta)
	require.Len(t, metas, 1)
	assert.Equal(t, "Sky", metas[0].Name)

	_, err = f.invoke(t, "delete_chat", `{"id":"`+chat.ID+`"}`)
	require.NoError(t, err)

	_, err = f.invoke(t, "get_chat", `{"id":"`+chat.ID+`"}`)
	ie := requireKind(t, err, KindFailed)
	assert.Contains(t, ie.Error(), "chat not found")
}

func TestSendChatMessage(t *testing.T) {
	f := newFixture(t, &fakeServer{
		generate: []string{`{"response":"Rayleigh "}`, `{"response":"scattering."}`},
	})

	got, err := f.invoke(t, "create_chat", `{"name":"Sky","provider":"ollama","model":"llama3"}`)
	require.NoError(t, err)
	id := got.(*model.Chat).ID

	got, err = f.invoke(t, "send_chat_message", `{"id":"`+id+`","message":"Why is the sky blue?"}`)
	require.NoError(t, err)
	chat := got.(*model.Chat)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, model.NewUserMessage("Why is the sky blue?"), chat.Messages[0])
	assert.Equal(t, model.NewAssistantMessage("Rayleigh scattering."), chat.Messages[1])
	assert.Equal(t, "Why is the sky blue?", f.server.lastPrompt())

	_, err = f.invoke(t, "send_chat_message", `{"id":"`+id+`","message":"And at sunset?"}`)
	require.NoError(t, err)
	assert.Equal(t,
		"You: Why is the sky blue?\n\nAssistant: Rayleigh scattering.\n\nYou: And at sunset?\n\nAssistant:",
		f.server.lastPrompt(), "follow-ups carry the transcript")
}

func TestExportChat(t *testing.T) {
	f := newFixture(t, &fakeServer{generate: []string{`{"response":"Rayleigh scattering."}`}})

	got, err := f.invoke(t, "create_chat", `{"name":"Sky","model":"llama3"}`)
	require.NoError(t, err)
	id := got.(*model.Chat).ID

	// An empty chat has nothing to render.
	_, err = f.invoke(t, "export_chat", `{"id":"`+id+`"}`)
	requireKind(t, err, KindFailed)

	_, err = f.invoke(t, "send_chat_message", `{"id":"`+id+`","message":"Why is the sky blue?"}`)
	require.NoError(t, err)

	got, err = f.invoke(t, "export_chat", `{"id":"`+id+`"}`)
	require.NoError(t, err)
	md := got.(ExportResult)
	assert.Equal(t, "text/markdown", md.MimeType)
	assert.Equal(t, "chat_Sky_"+id[:8]+".md", md.FileName)
	assert.Contains(t, md.Content, "### Assistant\n\nRayleigh scattering.")

	got, err = f.invoke(t, "export_chat", `{"id":"`+id+`","format":"json"}`)
	require.NoError(t, err)
	assert.Equal(t, "application/json", got.(ExportResult).MimeType)

	_, err = f.invoke(t, "export_chat", `{"id":"`+id+`","format":"pdf"}`)
	requireKind(t, err, KindInvalidArgs)
}

func TestSendChatMessage_FailureStoresNothing(t *testing.T) {
	f := newFixture(t, &fakeServer{
		generate: []string{`{"error":"out of memory"}`},
	})

	got, err := f.invoke(t, "create_chat", `{"name":"Sky","model":"llama3"}`)
	require.NoError(t, err)
	id := got.(*model.Chat).ID

	_, err = f.invoke(t, "send_chat_message", `{"id":"`+id+`","message":"hi"}`)
	requireKind(t, err, KindFailed)

	got, err = f.invoke(t, "get_chat", `{"id":"`+id+`"}`)
	require.NoError(t, err)
	assert.Empty(t, got.(*model.Chat).Messages)
}

func TestSendChatMessage_OpenAIChatRejected(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.invoke(t, "create_chat", `{"name":"GPT","provider":"openai","model":"gpt-4o"}`)
	require.NoError(t, err)
	id := got.(*model.Chat).ID

	_, err = f.invoke(t, "send_chat_message", `{"id":"`+id+`","message":"hi"}`)
	ie := requireKind(t, err, KindFailed)
	assert.Contains(t, ie.Error(), "openai")
	assert.Empty(t, f.server.lastPrompt())
}

func TestListCommands(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.invoke(t, "list_commands", "")
	require.NoError(t, err)

	infos := got.([]CommandInfo)
	assert.Len(t, infos, len(f.registry.All()))
	assert.Equal(t, "create_chat", infos[0].Name)
}

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindFailed, "failed"},
		{KindUnknownCommand, "unknown_command"},
		{KindInvalidArgs, "invalid_args"},
	}
	for _, tc := range tests {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", tc.kind, got, tc.want)
		}
	}
}
