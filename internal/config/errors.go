// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// STORE ERRORS
// =============================================================================

// Kind categorizes config store failures.
type Kind int

const (
	// KindAppDir means the per-user configuration directory could not be determined.
	KindAppDir Kind = iota + 1
	// KindIO means reading, creating or writing the config file failed.
	KindIO
	// KindParse means the config file exists but is not valid JSON for Config.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindAppDir:
		return "app_dir"
	case KindIO:
		return "io"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is returned by every Store operation.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAppDir:
		if e.Err != nil {
			return "failed to get app directory: " + e.Err.Error()
		}
		return "failed to get app directory"
	case KindParse:
		return "failed to parse config file: " + e.cause()
	default:
		return "failed to read config file: " + e.cause()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) cause() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

// IsKind reports whether err is a config store Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var cfgErr *Error
	return errors.As(err, &cfgErr) && cfgErr.Kind == kind
}

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

// ValidationError represents a settings validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}
