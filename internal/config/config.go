// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"

	"github.com/jeranaias/chatdeck/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

const (
	// AppName names the per-user configuration directory.
	AppName = "chatdeck"

	// FileName is the user configuration file inside the config directory.
	FileName = "config.json"

	// filePerm keeps the API key readable by the owner only.
	filePerm = 0600
	dirPerm  = 0700
)

// Config is the persisted user configuration.
type Config struct {
	// OpenAIAPIKey is serialized as null when unset.
	OpenAIAPIKey *string `json:"openai_api_key"`
}

// Default returns the configuration written on first use.
func Default() *Config {
	return &Config{OpenAIAPIKey: nil}
}

// APIKey returns the OpenAI API key, or "" when unset.
func (c *Config) APIKey() string {
	if c == nil || c.OpenAIAPIKey == nil {
		return ""
	}
	return *c.OpenAIAPIKey
}

// HasAPIKey reports whether a non-empty OpenAI API key is configured.
func (c *Config) HasAPIKey() bool {
	return c.APIKey() != ""
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := &Config{}
	if c.OpenAIAPIKey != nil {
		key := *c.OpenAIAPIKey
		clone.OpenAIAPIKey = &key
	}
	return clone
}

// ApplyEnvOverrides returns a copy of the configuration with environment
// overrides applied. The receiver is left untouched so overrides are never
// persisted by a later Save.
//
// Supported environment variables:
//   - OPENAI_API_KEY: overrides openai_api_key
func (c *Config) ApplyEnvOverrides() *Config {
	out := c.Clone()
	if out == nil {
		out = Default()
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		out.OpenAIAPIKey = &key
	}
	return out
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// DefaultDir returns the per-user configuration directory for chatdeck.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", &Error{Kind: KindAppDir, Err: err}
	}
	return filepath.Join(base, AppName), nil
}

// LoadDotEnv loads .env files into the process environment. Variables that are
// already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// =============================================================================
// STORE
// =============================================================================

// Store reads and writes config.json inside one configuration directory.
// The directory is supplied by the caller; the Store never looks it up.
//
// A Store is safe for concurrent use. Writes are serialized, and every save
// replaces the file atomically, so readers never see a partial file.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the configuration directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path of config.json.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Load reads the configuration. When the file does not exist yet the defaults
// are written to disk (creating the directory) and returned.
func (s *Store) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save writes cfg as indented JSON, creating the directory if needed.
func (s *Store) Save(cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(cfg)
}

// SetOpenAIAPIKey loads the configuration, replaces the API key and saves it.
func (s *Store) SetOpenAIAPIKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load()
	if err != nil {
		return err
	}
	cfg.OpenAIAPIKey = &key
	return s.save(cfg)
}

func (s *Store) load() (*Config, error) {
	if s.dir == "" {
		return nil, &Error{Kind: KindAppDir}
	}

	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		if err := s.save(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, &Error{Kind: KindIO, Err: err}
	}

	return parse(data)
}

func parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, &Error{Kind: KindParse, Err: err}
	}
	return cfg, nil
}

func (s *Store) save(cfg *Config) error {
	if s.dir == "" {
		return &Error{Kind: KindAppDir}
	}
	if cfg == nil {
		cfg = Default()
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return &Error{Kind: KindParse, Err: err}
	}

	if err := util.AtomicWriteFileWithDir(s.Path(), data, filePerm, dirPerm); err != nil {
		return &Error{Kind: KindIO, Err: err}
	}
	return nil
}
