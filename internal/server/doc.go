// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the command registry to the desktop shell over a
// loopback HTTP API.
//
// # Endpoints
//
//   - POST /invoke/{command} - Run a command; the JSON body is its argument object
//   - GET  /health           - Health check including Ollama reachability
//   - GET  /metrics          - Prometheus metrics
//
// A successful invocation answers 200 with {"result": ...}. Unknown commands
// and bad arguments answer 400, failed operations 500, both with
// {"error": "..."}.
//
// # Middleware
//
//   - Request IDs and panic recovery (chi)
//   - Structured request logging (zerolog)
//   - Prometheus request metrics keyed on the route pattern
//   - CORS for the webview origins
//   - Per-client token bucket rate limiting
//   - JSON content type check and a 1 MiB body limit
//
// # Usage
//
//	srv := server.New(server.ConfigFromSettings(settings.Server, version),
//		commands.NewRegistry(), env, logger)
//	if err := srv.ListenAndServe(ctx); err != nil {
//		return err
//	}
package server
