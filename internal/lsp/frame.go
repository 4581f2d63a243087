// Package lsp implements framing and URI rewriting for language-server
// protocol traffic relayed between clients and sandbox containers.
package lsp

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
)

// headerSeparator terminates the header block of a protocol frame.
const headerSeparator = "\r\n\r\n"

// ErrMissingLength reports a terminated header block without a
// Content-Length field. This is a protocol violation, not a
// wait-for-more-data condition.
var ErrMissingLength = errors.New("Content-Length header not found")

var lengthPattern = regexp.MustCompile(`(?i)^Content-Length:\s*(\d+)\s*$`)

// FrameBuffer reassembles length-prefixed protocol messages from a byte
// stream. Bytes accumulate across writes until a complete frame (header
// block plus declared body length) is available.
type FrameBuffer struct {
	buf []byte
}

// Write appends a chunk and returns every complete raw frame (header and
// body) now available, in order. Leftover bytes are retained for the next
// write. On a header block missing its length field, frames decoded so far
// are returned together with ErrMissingLength and the offending header block
// is discarded.
func (b *FrameBuffer) Write(chunk []byte) ([][]byte, error) {
	b.buf = append(b.buf, chunk...)

	var frames [][]byte
	for {
		headerEnd := bytes.Index(b.buf, []byte(headerSeparator))
		if headerEnd == -1 {
			return frames, nil
		}

		contentLength, ok := parseContentLength(b.buf[:headerEnd])
		if !ok {
			b.buf = b.buf[headerEnd+len(headerSeparator):]
			return frames, ErrMissingLength
		}

		frameLength := headerEnd + len(headerSeparator) + contentLength
		if len(b.buf) < frameLength {
			return frames, nil
		}

		frame := make([]byte, frameLength)
		copy(frame, b.buf[:frameLength])
		frames = append(frames, frame)
		b.buf = b.buf[frameLength:]
	}
}

// Pending returns the number of buffered bytes not yet part of a complete frame.
func (b *FrameBuffer) Pending() int {
	return len(b.buf)
}

func parseContentLength(header []byte) (int, bool) {
	for _, line := range bytes.Split(header, []byte("\r\n")) {
		m := lengthPattern.FindSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(string(m[1]))
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}
