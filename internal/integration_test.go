// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package internal provides integration tests for the complete chatdeck
// backend.
//
// These tests drive the HTTP command API end to end:
// - Config load, key storage and reload
// - Prompt relay with fragmented and concatenated stream records
// - Chat persistence across turns
// - Error flattening at the API boundary
package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatdeck/internal/commands"
	"github.com/jeranaias/chatdeck/internal/config"
	"github.com/jeranaias/chatdeck/internal/ollama"
	"github.com/jeranaias/chatdeck/internal/server"
	"github.com/jeranaias/chatdeck/internal/storage"
)

// =============================================================================
// TEST UTILITIES
// =============================================================================

// streamingOllama writes each generate chunk in its own flush so the client
// sees the fragments exactly as listed.
type streamingOllama struct {
	mu     sync.Mutex
	chunks []string
	tags   []string
	pulls  int
}

func (o *streamingOllama) setChunks(chunks ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.chunks = chunks
}

func (o *streamingOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Ollama is running")
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		defer o.mu.Unlock()
		resp := ollama.ListModelsResponse{Models: []ollama.ModelInfo{}}
		for _, name := range o.tags {
			resp.Models = append(resp.Models, ollama.ModelInfo{Name: name})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		chunks := append([]string(nil), o.chunks...)
		o.mu.Unlock()

		flusher := w.(http.Flusher)
		for _, c := range chunks {
			_, _ = io.WriteString(w, c)
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	})
	mux.HandleFunc("POST /api/pull", func(w http.ResponseWriter, r *http.Request) {
		var req ollama.PullRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		o.mu.Lock()
		o.pulls++
		o.tags = append(o.tags, req.Name)
		o.mu.Unlock()
		_, _ = io.WriteString(w, `{"status":"success"}`)
	})
	return mux
}

type backend struct {
	api    *httptest.Server
	ollama *streamingOllama
	dir    string
}

func startBackend(t *testing.T, policy string) *backend {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	fake := &streamingOllama{}
	ollamaSrv := httptest.NewServer(fake.handler())
	t.Cleanup(ollamaSrv.Close)

	dir := t.TempDir()
	chats, err := storage.Open(filepath.Join(dir, "chats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { chats.Close() })

	cfg := ollama.DefaultConfig()
	cfg.BaseURL = ollamaSrv.URL
	env := commands.NewContext(config.NewStore(dir), ollama.NewClientWithConfig(cfg), chats)
	env.PullPolicy = policy

	settings := config.DefaultSettings()
	settings.Server.RateLimit = 10000
	settings.Server.Burst = 10000
	srv := server.New(server.ConfigFromSettings(settings.Server, "it"), commands.NewRegistry(), env, zerolog.Nop())
	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)

	return &backend{api: api, ollama: fake, dir: dir}
}

// invoke calls a command and decodes the result into out (if non-nil).
// It returns the status code and the error string, if any.
func (b *backend) invoke(t *testing.T, command string, args any, out any) (int, string) {
	t.Helper()
	var body io.Reader = http.NoBody
	if args != nil {
		data, err := json.Marshal(args)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	resp, err := http.Post(b.api.URL+"/invoke/"+command, "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(envelope.Result, out))
	}
	return resp.StatusCode, envelope.Error
}

// =============================================================================
// END-TO-END TESTS
// =============================================================================

func TestConfigLifecycle(t *testing.T) {
	b := startBackend(t, config.PullNever)

	var cfg config.Config
	status, _ := b.invoke(t, "get_config", nil, &cfg)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, cfg.OpenAIAPIKey)

	status, _ = b.invoke(t, "set_openai_api_key", map[string]string{"api_key": "sk-it"}, nil)
	require.Equal(t, http.StatusOK, status)

	// The file on disk is what another process would read.
	onDisk, err := config.NewStore(b.dir).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-it", onDisk.APIKey())
}

func TestRelayFragmentedStream(t *testing.T) {
	b := startBackend(t, config.PullNever)
	b.ollama.setChunks(
		`{"respon`, `se":"The sky `,
		`is blue"}{"response":" because"}`,
		"\n",
		`{"response":" of Rayleigh scattering.","do`,
		`ne":true}`,
	)

	var records []ollama.GenerateChunk
	status, errMsg := b.invoke(t, "send_ollama_message",
		map[string]string{"model": "llama3", "message": "Why is the sky blue?"}, &records)

	require.Equal(t, http.StatusOK, status, errMsg)
	require.Len(t, records, 3)
	assert.Equal(t, "The sky is blue", records[0].Response)
	assert.Equal(t, " because", records[1].Response)
	assert.Equal(t, " of Rayleigh scattering.", records[2].Response)
	assert.True(t, records[2].Done)
}

func TestRelayIncompleteTailIsDropped(t *testing.T) {
	b := startBackend(t, config.PullNever)
	b.ollama.setChunks(`{"response":"kept"}`, `{"response":"cut of`)

	var records []ollama.GenerateChunk
	status, _ := b.invoke(t, "send_ollama_message",
		map[string]string{"model": "llama3", "message": "hi"}, &records)

	require.Equal(t, http.StatusOK, status)
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].Response)
}

func TestRelayServerErrorIsFlattened(t *testing.T) {
	b := startBackend(t, config.PullNever)
	b.ollama.setChunks(`{"response":"partial"}`, `{"error":"model runner crashed"}`)

	status, errMsg := b.invoke(t, "send_ollama_message",
		map[string]string{"model": "llama3", "message": "hi"}, nil)

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, errMsg, "model runner crashed")
}

func TestPullMissingPolicy(t *testing.T) {
	b := startBackend(t, config.PullMissing)
	b.ollama.setChunks(`{"response":"ok"}`)

	for i := 0; i < 2; i++ {
		status, errMsg := b.invoke(t, "send_ollama_message",
			map[string]string{"model": "llama3", "message": "hi"}, nil)
		require.Equal(t, http.StatusOK, status, errMsg)
	}

	b.ollama.mu.Lock()
	defer b.ollama.mu.Unlock()
	assert.Equal(t, 1, b.ollama.pulls, "the model is pulled once, then found in the tag list")
}

func TestChatConversation(t *testing.T) {
	b := startBackend(t, config.PullNever)

	var chat struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	status, _ := b.invoke(t, "create_chat",
		map[string]string{"name": "Sky", "provider": "ollama", "model": "llama3"}, &chat)
	require.Equal(t, http.StatusOK, status)

	b.ollama.setChunks(`{"response":"Rayleigh"}`, `{"response":" scattering."}`)
	status, errMsg := b.invoke(t, "send_chat_message",
		map[string]string{"id": chat.ID, "message": "Why is the sky blue?"}, &chat)
	require.Equal(t, http.StatusOK, status, errMsg)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "user", chat.Messages[0].Role)
	assert.Equal(t, "Rayleigh scattering.", chat.Messages[1].Content)

	var metas []storage.ChatMeta
	status, _ = b.invoke(t, "list_chats", nil, &metas)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, metas, 1)
	assert.Equal(t, 2, metas[0].MessageCount)
	assert.Equal(t, "Why is the sky blue?", metas[0].Preview)

	status, _ = b.invoke(t, "delete_chat", map[string]string{"id": chat.ID}, nil)
	require.Equal(t, http.StatusOK, status)

	status, errMsg = b.invoke(t, "get_chat", map[string]string{"id": chat.ID}, nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, errMsg, "chat not found")
}

func TestConfigReloadSeesAPIWrites(t *testing.T) {
	b := startBackend(t, config.PullNever)
	store := config.NewStore(b.dir)
	_, err := store.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloads := make(chan string, 4)
	go func() {
		_ = store.Watch(ctx, func(cfg *config.Config) { reloads <- cfg.APIKey() }, nil)
	}()
	time.Sleep(200 * time.Millisecond)

	status, _ := b.invoke(t, "set_openai_api_key", map[string]string{"api_key": "sk-reloaded"}, nil)
	require.Equal(t, http.StatusOK, status)

	select {
	case key := <-reloads:
		assert.Equal(t, "sk-reloaded", key)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not observe the write")
	}
}
