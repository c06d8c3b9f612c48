// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package localnet keeps chatdeck's network traffic on the local machine.
//
// The Ollama base URL must use http or https and, unless remote servers are
// explicitly allowed, must point at a loopback host. The IPC listener is held
// to the same rule: it serves a desktop webview, not the network.
package localnet

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidURL is returned when a URL cannot be parsed or has no host.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrInvalidURLScheme is returned for anything other than http/https.
	ErrInvalidURLScheme = errors.New("only http and https URLs are allowed")

	// ErrNonLocalhost is returned when a non-loopback host is used without opt-in.
	ErrNonLocalhost = errors.New("only localhost connections are allowed")
)

// =============================================================================
// VALIDATION
// =============================================================================

// IsLocalhost checks if a host string refers to localhost.
// Accepts: "localhost", "127.0.0.1", "::1", "[::1]", and any IPv6 loopback variant.
// A trailing port is ignored.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	host = strings.ToLower(strings.Trim(host, "[]"))

	if host == "localhost" {
		return true
	}

	// Covers the whole 127.0.0.0/8 range and every spelling of ::1.
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}

	return false
}

// ValidateOllamaURL checks that rawURL is an http(s) URL and, unless
// allowRemote is set, that it points at a loopback host.
//
// The scheme check always applies: file://, data:// and custom handlers are
// never valid Ollama endpoints.
func ValidateOllamaURL(rawURL string, allowRemote bool) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: %q", ErrInvalidURLScheme, rawURL)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("%w: %q has no host", ErrInvalidURL, rawURL)
	}

	if !allowRemote && !IsLocalhost(parsed.Hostname()) {
		return fmt.Errorf("%w: %s (set ollama.allow_remote to permit it)", ErrNonLocalhost, parsed.Hostname())
	}

	return nil
}

// ValidateListenAddr checks that a host:port listen address binds loopback.
// An empty host (":8080") binds every interface and is rejected.
func ValidateListenAddr(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !IsLocalhost(host) {
		return fmt.Errorf("%w: listen address %q", ErrNonLocalhost, addr)
	}
	return nil
}
