// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"fmt"
)

// ErrorKind classifies a dispatch failure.
type ErrorKind int

const (
	// KindFailed means the command ran and its operation failed.
	KindFailed ErrorKind = iota
	// KindUnknownCommand means no command is registered under the name.
	KindUnknownCommand
	// KindInvalidArgs means the argument object could not be decoded or
	// was missing a required field.
	KindInvalidArgs
)

// String returns a human-readable name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindUnknownCommand:
		return "unknown_command"
	case KindInvalidArgs:
		return "invalid_args"
	default:
		return "failed"
	}
}

// InvokeError is the opaque error returned to the host. Only the message
// crosses the boundary; the original error chain is not retained.
type InvokeError struct {
	Kind    ErrorKind
	Command string
	Message string
}

// Error implements the error interface.
func (e *InvokeError) Error() string {
	return e.Message
}

// argsError marks argument decoding and validation failures.
type argsError struct {
	command string
	msg     string
}

func (e *argsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.command, e.msg)
}

// decodeArgs decodes the argument object into T. Empty and null arguments
// decode to the zero value; unknown fields are ignored.
func decodeArgs[T any](command string, raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &argsError{command: command, msg: err.Error()}
	}
	return v, nil
}

// required reports a missing argument field.
func required(command, field string) error {
	return &argsError{command: command, msg: field + " is required"}
}
