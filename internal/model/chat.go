// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// PROVIDER TYPE
// =============================================================================

// Provider identifies the backend that answers a chat.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

// String returns the string representation of the provider.
func (p Provider) String() string {
	return string(p)
}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return p == ProviderOpenAI || p == ProviderOllama
}

// ParseProvider parses a provider name case-insensitively.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return p, nil
}

// UnmarshalJSON rejects unknown providers.
func (p *Provider) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("provider must be a string: %w", err)
	}
	parsed, err := ParseProvider(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// =============================================================================
// CHAT TYPE
// =============================================================================

// MaxNameRunes bounds the length of a chat name.
const MaxNameRunes = 120

// Chat is a named conversation with one model of one provider.
type Chat struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Messages  []Message `json:"messages"`
	Provider  Provider  `json:"provider"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewChat creates a chat with a generated ID and no messages.
func NewChat(name string, provider Provider, model string) *Chat {
	now := time.Now().UTC()
	return &Chat{
		ID:        uuid.NewString(),
		Name:      name,
		Messages:  []Message{},
		Provider:  provider,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the fields a chat must carry before it is stored.
func (c *Chat) Validate() error {
	var errs []error
	if _, err := uuid.Parse(c.ID); err != nil {
		errs = append(errs, fmt.Errorf("invalid chat id %q", c.ID))
	}
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("chat name is required"))
	} else if len([]rune(c.Name)) > MaxNameRunes {
		errs = append(errs, fmt.Errorf("chat name exceeds %d characters", MaxNameRunes))
	}
	if !c.Provider.Valid() {
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("chat model is required"))
	}
	for i, m := range c.Messages {
		if !m.Role.Valid() {
			errs = append(errs, fmt.Errorf("message %d: unknown role %q", i, m.Role))
		}
	}
	return errors.Join(errs...)
}

// AddMessage appends messages and bumps UpdatedAt.
func (c *Chat) AddMessage(msgs ...Message) {
	c.Messages = append(c.Messages, msgs...)
	c.UpdatedAt = time.Now().UTC()
}

// LastMessage returns the most recent message, if any.
func (c *Chat) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Transcript renders the conversation as a plain-text prompt, one
// "Role: content" block per message, ending with an open assistant turn.
func (c *Chat) Transcript() string {
	var b strings.Builder
	for _, m := range c.Messages {
		b.WriteString(m.Role.DisplayName())
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	b.WriteString(RoleAssistant.DisplayName())
	b.WriteString(":")
	return b.String()
}
