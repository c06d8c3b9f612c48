// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// DefaultBaseURL is where a local Ollama server listens out of the box.
const DefaultBaseURL = "http://localhost:11434"

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s).
	// Generation and pull streams have no timeout; cancel the context instead.
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
//
// The Client is safe for concurrent use. Each stream owns its own
// Reassembler, so no state crosses requests.
//
// Example:
//
//	client := ollama.NewClient()
//	err := client.GenerateStream(ctx, "llama3", "hi", func(c ollama.GenerateChunk) error {
//	    fmt.Print(c.Response)
//	    return nil
//	})
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		// No timeout for streams: a slow model may pause for a long time
		// between records. The caller's context bounds the request.
		streamClient: &http.Client{},
	}
}

// BaseURL returns the Ollama API base URL the client talks to.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return connectError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: "unexpected status from Ollama: " + resp.Status,
		}
	}

	return nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all locally available models from Ollama.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, connectError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, "failed to list models")
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}

	return result.Models, nil
}

// HasModel reports whether a model with exactly this name is available locally.
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Pull asks the server to fetch a model. The server answers with either a
// single status object or a stream of progress records; the pull succeeds
// only if the last status reported is "success".
func (c *Client) Pull(ctx context.Context, name string) error {
	return c.PullProgress(ctx, name, nil)
}

// PullProgress is Pull with a callback for every status record received.
func (c *Client) PullProgress(ctx context.Context, name string, fn func(PullStatus)) error {
	resp, err := c.postStream(ctx, "/api/pull", PullRequest{Name: name})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var last string
	err = Reassemble(ctx, resp.Body, func(s PullStatus) error {
		last = s.Status
		if fn != nil {
			fn(s)
		}
		return nil
	})
	if err != nil {
		return &ClientError{Type: ErrTypePullFailed, Message: "failed to pull model: " + name, Cause: err}
	}

	if last != PullSucceeded {
		return &ClientError{Type: ErrTypePullFailed, Message: "failed to pull model: " + name}
	}
	return nil
}

// PullIfNeeded pulls name unless the server already has it.
func (c *Client) PullIfNeeded(ctx context.Context, name string) error {
	ok, err := c.HasModel(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return c.Pull(ctx, name)
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate sends a prompt and collects every reassembled record.
// On any failure the records received so far are discarded.
func (c *Client) Generate(ctx context.Context, model, prompt string) ([]GenerateChunk, error) {
	chunks := []GenerateChunk{}
	err := c.GenerateStream(ctx, model, prompt, func(chunk GenerateChunk) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// GenerateStream sends a prompt and calls fn for each record as soon as it
// has been reassembled from the response stream. The callback is called
// synchronously in arrival order; returning an error aborts the stream.
func (c *Client) GenerateStream(ctx context.Context, model, prompt string, fn func(GenerateChunk) error) error {
	resp, err := c.postStream(ctx, "/api/generate", GenerateRequest{Model: model, Prompt: prompt})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return Reassemble(ctx, resp.Body, fn)
}

// GenerateStreamChan sends a prompt and returns a channel of records.
// The channel is closed when streaming is complete or an error occurs.
// Errors are delivered as a final chunk with the Err field set.
func (c *Client) GenerateStreamChan(ctx context.Context, model, prompt string) <-chan GenerateChunk {
	ch := make(chan GenerateChunk)

	go func() {
		defer close(ch)

		err := c.GenerateStream(ctx, model, prompt, func(chunk GenerateChunk) error {
			select {
			case ch <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})

		if err != nil {
			select {
			case ch <- GenerateChunk{Err: err, Done: true}:
			case <-ctx.Done():
			}
		}
	}()

	return ch
}

// =============================================================================
// HELPERS
// =============================================================================

// postStream issues a POST whose response body is read as a stream.
// The caller must close the returned body.
func (c *Client) postStream(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, connectError(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer drainAndClose(resp.Body)
		return nil, statusError(resp, "request failed")
	}

	return resp, nil
}

// connectError maps a failed round trip to a client error.
func connectError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	case errors.Is(err, context.Canceled):
		return &ClientError{Type: ErrTypeConnection, Message: "request cancelled", Cause: err}
	default:
		return &ClientError{Type: ErrTypeNotRunning, Message: ErrNotRunning.Message, Cause: err}
	}
}

// statusError turns a non-200 response into a client error, preferring the
// server's own {"error": ...} message when it sends one.
func statusError(resp *http.Response, prefix string) error {
	if resp.StatusCode == http.StatusNotFound {
		return ErrModelNotFound
	}

	var ollamaErr OllamaError
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&ollamaErr); err == nil && ollamaErr.Error != "" {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: ollamaErr.Error}
	}
	return &ClientError{Type: ErrTypeInvalidResponse, Message: prefix + ": " + resp.Status}
}

// drainAndClose drains the body so the connection can be reused.
func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64*1024))
	_ = r.Close()
}
