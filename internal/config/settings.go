// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// SettingsFileName is the optional process settings file in the config directory.
const SettingsFileName = "settings.toml"

// DefaultOllamaURL is the base URL of a local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

const defaultOllamaPort = "11434"

// Pull policies decide whether a model is fetched before generation.
const (
	// PullNever sends the prompt straight to the server.
	PullNever = "never"
	// PullMissing checks the local model list and pulls the model if absent.
	PullMissing = "missing"
)

// Log output formats.
const (
	LogFormatAuto    = "auto"
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// =============================================================================
// SETTINGS STRUCTURES
// =============================================================================

// Settings holds process-level settings read from settings.toml.
type Settings struct {
	Server  ServerSettings  `toml:"server"`
	Ollama  OllamaSettings  `toml:"ollama"`
	Log     LogSettings     `toml:"log"`
	Storage StorageSettings `toml:"storage"`
}

// ServerSettings configures the local IPC HTTP surface.
type ServerSettings struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RateLimit      float64  `toml:"rate_limit"` // requests per second
	Burst          int      `toml:"burst"`
}

// OllamaSettings configures the Ollama client.
type OllamaSettings struct {
	URL         string `toml:"url"`
	PullPolicy  string `toml:"pull_policy"`
	AllowRemote bool   `toml:"allow_remote"`
}

// LogSettings configures the root logger.
type LogSettings struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// StorageSettings configures the chat database.
type StorageSettings struct {
	// Path of the SQLite database; empty means chats.db in the config directory.
	Path string `toml:"path"`
}

// DefaultSettings returns settings with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Server: ServerSettings{
			Addr:           "127.0.0.1:7878",
			AllowedOrigins: []string{"tauri://localhost", "http://tauri.localhost", "http://localhost:1420"},
			RateLimit:      20,
			Burst:          40,
		},
		Ollama: OllamaSettings{
			URL:        DefaultOllamaURL,
			PullPolicy: PullNever,
		},
		Log: LogSettings{
			Level:  "info",
			Format: LogFormatAuto,
		},
	}
}

// =============================================================================
// LOAD
// =============================================================================

// LoadSettings decodes the TOML file at path over the defaults. A missing file
// yields the defaults. Environment overrides are applied last.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	if path != "" {
		if _, err := toml.DecodeFile(path, s); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to decode settings file %s: %w", path, err)
		}
	}

	s.ApplyEnvOverrides()
	s.Ollama.URL = NormalizeOllamaURL(s.Ollama.URL)

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// SettingsPath returns the settings.toml path inside dir.
func SettingsPath(dir string) string {
	return filepath.Join(dir, SettingsFileName)
}

// DatabasePath returns the configured chat database path, defaulting to
// chats.db inside dir.
func (s *Settings) DatabasePath(dir string) string {
	if s.Storage.Path != "" {
		return s.Storage.Path
	}
	return filepath.Join(dir, "chats.db")
}

// ApplyEnvOverrides applies environment variable overrides to the settings.
//
// Supported environment variables:
//   - CHATDECK_ADDR: overrides server.addr
//   - CHATDECK_LOG_LEVEL: overrides log.level
//   - OLLAMA_HOST: overrides ollama.url (scheme optional, as in the Ollama CLI)
func (s *Settings) ApplyEnvOverrides() {
	if addr := os.Getenv("CHATDECK_ADDR"); addr != "" {
		s.Server.Addr = addr
	}
	if level := os.Getenv("CHATDECK_LOG_LEVEL"); level != "" {
		s.Log.Level = level
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		s.Ollama.URL = host
	}
}

// NormalizeOllamaURL adds the http scheme to a bare host:port and strips
// trailing slashes. A wildcard bind address such as 0.0.0.0 (the usual
// server-side OLLAMA_HOST) is dialed as localhost.
func NormalizeOllamaURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultOllamaURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	raw = strings.TrimRight(raw, "/")

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	switch u.Hostname() {
	case "0.0.0.0", "::":
		port := u.Port()
		if port == "" {
			port = defaultOllamaPort
		}
		u.Host = net.JoinHostPort("localhost", port)
		return u.String()
	}
	return raw
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate validates the settings and returns any errors.
func (s *Settings) Validate() error {
	var errs ValidateErrors

	if strings.TrimSpace(s.Server.Addr) == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Message: "must not be empty"})
	}
	if s.Server.RateLimit <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.rate_limit",
			Message: fmt.Sprintf("must be positive, got %v", s.Server.RateLimit),
		})
	}
	if s.Server.Burst <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.burst",
			Message: fmt.Sprintf("must be positive, got %d", s.Server.Burst),
		})
	}

	if u, err := url.Parse(s.Ollama.URL); err != nil || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "ollama.url",
			Message: fmt.Sprintf("invalid URL '%s'", s.Ollama.URL),
		})
	}

	switch strings.ToLower(s.Ollama.PullPolicy) {
	case PullNever, PullMissing:
		s.Ollama.PullPolicy = strings.ToLower(s.Ollama.PullPolicy)
	default:
		errs = append(errs, ValidationError{
			Field:   "ollama.pull_policy",
			Message: fmt.Sprintf("invalid policy '%s', must be one of: never, missing", s.Ollama.PullPolicy),
		})
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(s.Log.Level)); err != nil || s.Log.Level == "" {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s'", s.Log.Level),
		})
	}

	switch s.Log.Format {
	case LogFormatAuto, LogFormatConsole, LogFormatJSON:
	default:
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: auto, console, json", s.Log.Format),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
