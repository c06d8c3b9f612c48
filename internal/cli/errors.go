// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatdeck/internal/config"
	"github.com/jeranaias/chatdeck/internal/localnet"
	"github.com/jeranaias/chatdeck/internal/ollama"
	"github.com/jeranaias/chatdeck/internal/storage"
)

// Exit codes for different error categories.
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNetworkError  = 4
	ExitNotFoundError = 5
)

// UsageError reports a malformed command line.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// ExitCode determines the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}

	var cfgErr *config.Error
	var verrs config.ValidateErrors
	if errors.As(err, &cfgErr) || errors.As(err, &verrs) ||
		errors.Is(err, localnet.ErrNonLocalhost) || errors.Is(err, localnet.ErrInvalidURL) ||
		errors.Is(err, localnet.ErrInvalidURLScheme) {
		return ExitConfigError
	}

	switch ollama.TypeOf(err) {
	case ollama.ErrTypeNotRunning, ollama.ErrTypeConnection, ollama.ErrTypeTimeout, ollama.ErrTypeTransport:
		return ExitNetworkError
	case ollama.ErrTypeModelNotFound:
		return ExitNotFoundError
	}

	if errors.Is(err, storage.ErrNotFound) {
		return ExitNotFoundError
	}

	return ExitGeneralError
}

// withHint adds the usual remedy to Ollama errors the user can act on.
// The original error stays wrapped so ExitCode still classifies it.
func withHint(err error, model string) error {
	switch {
	case err == nil:
		return nil
	case ollama.IsNotRunning(err):
		return fmt.Errorf("%w (start it with: ollama serve)", err)
	case ollama.IsModelNotFound(err):
		return fmt.Errorf("%w (download it with: chatdeck models pull %s)", err, model)
	case ollama.IsPullFailed(err):
		return fmt.Errorf("%w (check the name at https://ollama.com/library)", err)
	case ollama.IsTransport(err):
		return fmt.Errorf("%w (the reply was cut off)", err)
	}
	return err
}

// exactArgs is cobra.ExactArgs reporting a UsageError.
func exactArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.ExactArgs(n))
}

// minimumArgs is cobra.MinimumNArgs reporting a UsageError.
func minimumArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.MinimumNArgs(n))
}

// rangeArgs is cobra.RangeArgs reporting a UsageError.
func rangeArgs(lo, hi int) cobra.PositionalArgs {
	return wrapArgs(cobra.RangeArgs(lo, hi))
}

func wrapArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &UsageError{Err: fmt.Errorf("%w\nUsage: %s", err, cmd.UseLine())}
		}
		return nil
	}
}
