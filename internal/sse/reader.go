// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse turns chunked HTTP response bodies into discrete protocol
// frames, for both server-sent-event and bracketed-JSON-array transports.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// MaxFrameSize is the maximum allowed size for a single frame (64KB).
const MaxFrameSize = 64 * 1024

// doneSentinel terminates an SSE stream without further parsing.
var doneSentinel = []byte("[DONE]")

// ErrBadFrame reports a buffered segment that does not carry the required
// "data:" prefix. The stream cannot be resynchronized after this.
var ErrBadFrame = errors.New("segment does not start with data: prefix")

// =============================================================================
// SSE READER
// =============================================================================

// Reader parses server-sent-event frames: payload segments split on blank
// lines, each line carrying the literal prefix "data:". A payload equal to
// [DONE] ends the stream.
type Reader struct {
	reader *bufio.Reader
	done   bool
}

// NewReader creates an SSE frame reader over an io.Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{reader: bufio.NewReader(r)}
}

// Next returns the next frame payload. It returns io.EOF when the stream
// ends, either at the [DONE] sentinel or at the end of the body.
func (r *Reader) Next() ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}

	var dataLines [][]byte

	flush := func() ([]byte, error) {
		payload := bytes.Join(dataLines, []byte("\n"))
		if bytes.Equal(payload, doneSentinel) {
			r.done = true
			return nil, io.EOF
		}
		return payload, nil
	}

	for {
		line, err := r.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				line = bytes.TrimRight(line, "\r\n")
				if len(line) > 0 {
					payload, perr := parseDataLine(line)
					if perr != nil {
						r.done = true
						return nil, perr
					}
					dataLines = append(dataLines, payload)
				}
				r.done = true
				if len(dataLines) > 0 {
					return flush()
				}
				return nil, io.EOF
			}
			r.done = true
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line ends the current frame.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return flush()
			}
			continue
		}

		payload, err := parseDataLine(line)
		if err != nil {
			r.done = true
			return nil, err
		}
		dataLines = append(dataLines, payload)

		if lineTotal(dataLines) > MaxFrameSize {
			r.done = true
			return nil, fmt.Errorf("frame exceeds %d bytes", MaxFrameSize)
		}
	}
}

// parseDataLine validates the data: prefix and strips it, along with at
// most one leading space.
func parseDataLine(line []byte) ([]byte, error) {
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, fmt.Errorf("%w: %q", ErrBadFrame, truncateForError(line))
	}
	payload := line[len("data:"):]
	if len(payload) > 0 && payload[0] == ' ' {
		payload = payload[1:]
	}
	return payload, nil
}

func lineTotal(lines [][]byte) int {
	n := 0
	for _, l := range lines {
		n += len(l)
	}
	return n
}

func truncateForError(b []byte) string {
	if len(b) > 64 {
		b = b[:64]
	}
	return string(b)
}

// =============================================================================
// BRACKETED ARRAY READER
// =============================================================================

// ArrayReader parses a top-level JSON array streamed incrementally, the
// framing used by the Vertex/Gemini endpoints. Each flush boundary is a
// complete JSON value once a single leading '[' or ',' is stripped.
// Partial chunks are buffered across network reads; a parse is re-attempted
// after every chunk and a frame is emitted only when it succeeds.
type ArrayReader struct {
	reader io.Reader
	buf    []byte
	chunk  []byte
	done   bool
}

// NewArrayReader creates a bracketed-array frame reader.
func NewArrayReader(r io.Reader) *ArrayReader {
	return &ArrayReader{
		reader: r,
		chunk:  make([]byte, 4096),
	}
}

// Next returns the next complete JSON value from the array. It returns
// io.EOF once the closing bracket is consumed or the body ends.
func (r *ArrayReader) Next() ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}

	for {
		if frame, ok := r.tryParse(); ok {
			return frame, nil
		}

		n, err := r.reader.Read(r.chunk)
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
			if len(r.buf) > MaxFrameSize {
				r.done = true
				return nil, fmt.Errorf("frame exceeds %d bytes", MaxFrameSize)
			}
			continue
		}
		if err != nil {
			if err == io.EOF {
				r.done = true
				rest := bytes.TrimSpace(r.buf)
				if len(rest) == 0 || bytes.Equal(rest, []byte("]")) {
					return nil, io.EOF
				}
				return nil, fmt.Errorf("stream ended with unparsed data: %q", truncateForError(rest))
			}
			r.done = true
			return nil, err
		}
	}
}

// tryParse attempts to extract one complete JSON value from the buffer.
func (r *ArrayReader) tryParse() ([]byte, bool) {
	candidate := bytes.TrimSpace(r.buf)
	if len(candidate) == 0 {
		return nil, false
	}

	// Strip the array opener or the separator preceding this element.
	if candidate[0] == '[' || candidate[0] == ',' {
		candidate = bytes.TrimSpace(candidate[1:])
	}
	if len(candidate) == 0 {
		r.buf = r.buf[:0]
		return nil, false
	}

	if json.Valid(candidate) {
		r.buf = r.buf[:0]
		return candidate, true
	}

	// The final element may arrive glued to the closing bracket.
	if candidate[len(candidate)-1] == ']' {
		trimmed := bytes.TrimSpace(candidate[:len(candidate)-1])
		if json.Valid(trimmed) {
			r.buf = r.buf[:0]
			r.done = true
			return trimmed, true
		}
	}

	return nil, false
}
