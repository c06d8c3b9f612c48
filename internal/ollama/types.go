// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"strconv"
	"time"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// GenerateRequest is the request body for the /api/generate endpoint.
// Only the model and prompt are sent; the server streams by default.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// PullRequest is the request body for the /api/pull endpoint.
type PullRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// GenerateChunk is one reassembled record from a /api/generate stream.
//
// Only Response is guaranteed; the metadata fields are filled when the server
// includes them (the final record usually carries Done and the eval counters).
type GenerateChunk struct {
	Response string `json:"response"`

	Model              string    `json:"model,omitempty"`
	CreatedAt          time.Time `json:"created_at,omitzero"`
	Done               bool      `json:"done,omitempty"`
	DoneReason         string    `json:"done_reason,omitempty"`
	TotalDuration      int64     `json:"total_duration,omitempty"`       // nanoseconds
	LoadDuration       int64     `json:"load_duration,omitempty"`        // nanoseconds
	PromptEvalCount    int       `json:"prompt_eval_count,omitempty"`    // tokens in prompt
	PromptEvalDuration int64     `json:"prompt_eval_duration,omitempty"` // nanoseconds
	EvalCount          int       `json:"eval_count,omitempty"`           // tokens generated
	EvalDuration       int64     `json:"eval_duration,omitempty"`        // nanoseconds

	// Error is set by the server when generation fails mid-stream.
	Error string `json:"error,omitempty"`

	// Err is only used by GenerateStreamChan to deliver a terminal error.
	Err error `json:"-"`
}

// TokensPerSecond calculates the generation speed from a final record.
func (c *GenerateChunk) TokensPerSecond() float64 {
	if c.EvalDuration == 0 {
		return 0
	}
	seconds := float64(c.EvalDuration) / 1e9
	return float64(c.EvalCount) / seconds
}

// TotalTime returns the total generation time reported by the server.
func (c *GenerateChunk) TotalTime() time.Duration {
	return time.Duration(c.TotalDuration)
}

// PullStatus is one status record from /api/pull. The server either answers
// with a single object or streams progress records ending in "success".
type PullStatus struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PullSucceeded is the status value that marks a completed pull.
const PullSucceeded = "success"

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelInfo contains information about a locally available model.
type ModelInfo struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

// ModelDetails contains detailed information about a model.
type ModelDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// ListModelsResponse is the response from /api/tags endpoint.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// OllamaError represents an error body from the Ollama API.
type OllamaError struct {
	Error string `json:"error"`
}

// FormatSize formats the model size in human-readable form.
func (m *ModelInfo) FormatSize() string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case m.Size >= GB:
		return strconvFloat(float64(m.Size)/GB) + " GB"
	case m.Size >= MB:
		return strconvFloat(float64(m.Size)/MB) + " MB"
	case m.Size >= KB:
		return strconvFloat(float64(m.Size)/KB) + " KB"
	default:
		return strconvFloat(float64(m.Size)) + " B"
	}
}

func strconvFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}
