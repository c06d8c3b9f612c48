// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// Ollama answers a generation request with a stream of JSON objects whose
// boundaries have nothing to do with the transport's chunk boundaries. The
// Reassembler turns those chunks back into whole records: one object may span
// several reads, and one read may carry several objects.
//
// # Key Types
//
//   - Client: HTTP client for the generate, tags and pull endpoints
//   - Reassembler: incremental chunk-to-record decoder, generic over the record
//   - GenerateChunk: one record of a generation stream
//   - PullStatus: one record of a pull response
//   - ClientError: typed error carrying an ErrorType
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: url})
//	chunks, err := client.Generate(ctx, "llama3", "Why is the sky blue?")
//
// For streaming responses:
//
//	for chunk := range client.GenerateStreamChan(ctx, "llama3", prompt) {
//	    if chunk.Err != nil {
//	        return chunk.Err
//	    }
//	    fmt.Print(chunk.Response)
//	}
package ollama
