// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// =============================================================================
// STREAM REASSEMBLER
// =============================================================================

// readBufferSize is the size of a single read from the response body.
// Chunk boundaries are whatever the transport delivers within that limit.
const readBufferSize = 32 * 1024

// Reassembler turns arbitrarily chunked bytes into complete JSON records.
//
// Bytes are decoded lossily (invalid sequences become U+FFFD) and appended to
// a text buffer. After every Feed the head of the buffer is decoded value by
// value, so one object split over several chunks and several objects packed
// into one chunk both come out as separate records, in arrival order.
//
// A Reassembler is owned by a single stream and is not safe for concurrent use.
type Reassembler[T any] struct {
	decoder transform.Transformer
	pending []byte // trailing bytes of an incomplete UTF-8 sequence
	buf     []byte // decoded text that has not formed a complete value yet
	skipped int
}

// NewReassembler creates an empty Reassembler for records of type T.
func NewReassembler[T any]() *Reassembler[T] {
	return &Reassembler[T]{decoder: unicode.UTF8.NewDecoder()}
}

// Feed appends a chunk and returns every record completed by it.
func (r *Reassembler[T]) Feed(chunk []byte) []T {
	r.appendDecoded(chunk)
	return r.extract()
}

// Buffered returns the number of decoded bytes held for an incomplete value.
// Whatever is still buffered when the stream ends is discarded.
func (r *Reassembler[T]) Buffered() int {
	return len(r.buf) + len(r.pending)
}

// Skipped returns how many malformed values or lines have been dropped.
func (r *Reassembler[T]) Skipped() int {
	return r.skipped
}

// Reset clears all buffered state so the Reassembler can serve a new stream.
func (r *Reassembler[T]) Reset() {
	r.decoder.Reset()
	r.pending = r.pending[:0]
	r.buf = r.buf[:0]
	r.skipped = 0
}

// appendDecoded converts chunk to valid UTF-8 and appends it to buf. An
// incomplete rune at the end of the chunk is held back until the next Feed.
func (r *Reassembler[T]) appendDecoded(chunk []byte) {
	src := append(r.pending, chunk...)
	if len(src) == 0 {
		return
	}

	// Each invalid byte expands to the 3-byte replacement character at most.
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	nDst, nSrc, err := r.decoder.Transform(dst, src, false)
	if err != nil && !errors.Is(err, transform.ErrShortSrc) {
		// The UTF-8 decoder never fails on content; fall back to the stdlib.
		r.buf = append(r.buf, bytes.ToValidUTF8(src, []byte(string(utf8.RuneError)))...)
		r.pending = r.pending[:0]
		return
	}

	r.buf = append(r.buf, dst[:nDst]...)
	r.pending = append([]byte(nil), src[nSrc:]...)
}

// extract decodes complete values from the head of buf.
func (r *Reassembler[T]) extract() []T {
	var out []T

	for {
		start := skipSpace(r.buf)
		if start == len(r.buf) {
			r.buf = r.buf[:0]
			return out
		}

		dec := json.NewDecoder(bytes.NewReader(r.buf[start:]))
		var rec T
		err := dec.Decode(&rec)
		consumed := start + int(dec.InputOffset())

		switch {
		case err == nil && r.buf[start] != '{':
			// null decodes into a struct without error but is not a record.
			r.skipped++
			r.buf = r.buf[consumed:]

		case err == nil:
			out = append(out, rec)
			r.buf = r.buf[consumed:]

		case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
			// Incomplete value: wait for more data.
			r.buf = r.buf[start:]
			return out

		case consumed > start:
			// A complete value that does not fit T, e.g. a bare string.
			r.skipped++
			r.buf = r.buf[consumed:]

		default:
			// Syntax error: this line can never parse, resync on the next one.
			r.skipped++
			if nl := bytes.IndexByte(r.buf[start:], '\n'); nl >= 0 {
				r.buf = r.buf[start+nl+1:]
				continue
			}
			r.buf = r.buf[:0]
			return out
		}
	}
}

func skipSpace(b []byte) int {
	for i, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return i
		}
	}
	return len(b)
}

// =============================================================================
// READER DRIVER
// =============================================================================

// serverFailure is implemented by record types that can carry an error
// reported by the server inside the stream.
type serverFailure interface {
	serverError() string
}

func (c GenerateChunk) serverError() string { return c.Error }
func (s PullStatus) serverError() string    { return s.Error }

// Reassemble reads body until EOF and calls fn for each complete record.
//
// Records are delivered as soon as they are complete. A read error aborts with
// ErrTypeTransport; records already handed to fn stay delivered. Residue left
// in the buffer at EOF is dropped without error.
func Reassemble[T any](ctx context.Context, body io.Reader, fn func(T) error) error {
	r := NewReassembler[T]()
	buf := make([]byte, readBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			return &ClientError{Type: ErrTypeTransport, Message: "stream cancelled", Cause: err}
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			for _, rec := range r.Feed(buf[:n]) {
				if f, ok := any(rec).(serverFailure); ok && f.serverError() != "" {
					return &ClientError{Type: ErrTypeServer, Message: f.serverError()}
				}
				if err := fn(rec); err != nil {
					return err
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return &ClientError{Type: ErrTypeTransport, Message: "failed to read response stream", Cause: readErr}
		}
	}
}
