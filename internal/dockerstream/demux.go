// Package dockerstream decodes the multiplexed stdout/stderr byte stream
// produced by a container attached without a TTY.
package dockerstream

import "encoding/binary"

// Each frame starts with an 8-byte header: 1 byte stream descriptor
// (0=stdin, 1=stdout, 2=stderr), 3 reserved bytes, then a 4-byte big-endian
// payload length.
const (
	headerLen     = 8
	maxDescriptor = 2
)

// Demuxer splits a multiplexed container stream into discrete payloads.
// A single read may carry several concatenated frames, or a frame may span
// multiple reads; the demuxer buffers across writes and emits one payload
// per complete frame, preserving order.
//
// Chunks that cannot be framed (shorter than the header, or an out-of-range
// descriptor byte) are emitted verbatim as raw text. The lenient fallback
// matches what containers produce when a TTY is allocated and the stream
// arrives unframed.
type Demuxer struct {
	buf []byte
}

// Write feeds a chunk into the demuxer and returns the decoded payloads now
// available, in order.
func (d *Demuxer) Write(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}

	if len(d.buf) == 0 && !looksFramed(chunk) {
		raw := make([]byte, len(chunk))
		copy(raw, chunk)
		return [][]byte{raw}
	}

	d.buf = append(d.buf, chunk...)

	var payloads [][]byte
	for len(d.buf) >= headerLen {
		if d.buf[0] > maxDescriptor {
			// Desynced mid-stream; flush the remainder as raw text.
			payloads = append(payloads, d.buf)
			d.buf = nil
			break
		}

		size := int(binary.BigEndian.Uint32(d.buf[4:8]))
		if len(d.buf) < headerLen+size {
			break
		}

		payload := make([]byte, size)
		copy(payload, d.buf[headerLen:headerLen+size])
		payloads = append(payloads, payload)
		d.buf = d.buf[headerLen+size:]
	}

	return payloads
}

// Pending returns the number of buffered bytes awaiting a complete frame.
func (d *Demuxer) Pending() int {
	return len(d.buf)
}

func looksFramed(chunk []byte) bool {
	return len(chunk) >= headerLen && chunk[0] <= maxDescriptor
}
