// internal/protocol/decoder.go
package protocol

import (
	"strings"
	"unicode/utf8"
)

// Decoder turns a byte stream into UTF-8 text. Multi-byte sequences split
// across reads are held back until complete. Malformed bytes are replaced
// with U+FFFD, one replacement per offending byte, so the decoded text does
// not depend on how the stream was chunked.
type Decoder struct {
	pending   []byte
	anomalies int
}

// NewDecoder creates a new stream decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed decodes chunk and returns the longest complete text prefix
func (d *Decoder) Feed(chunk []byte) string {
	if len(chunk) == 0 {
		return ""
	}

	buf := chunk
	if len(d.pending) > 0 {
		buf = append(d.pending, chunk...)
		d.pending = nil
	}

	cut := incompleteTail(buf)
	if cut < len(buf) {
		d.pending = append([]byte(nil), buf[cut:]...)
	}
	return d.decode(buf[:cut])
}

// Flush decodes any retained bytes as malformed input. Used when the
// stream ends in the middle of a sequence.
func (d *Decoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	text := d.decode(d.pending)
	d.pending = nil
	return text
}

// Reset discards any retained partial sequence
func (d *Decoder) Reset() {
	d.pending = nil
}

// Pending returns the number of retained bytes
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// Anomalies returns how many malformed bytes have been replaced so far
func (d *Decoder) Anomalies() int {
	return d.anomalies
}

func (d *Decoder) decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b) + 8)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			d.anomalies++
		}
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}

// incompleteTail returns the offset of a trailing sequence that may still
// become valid once more bytes arrive, or len(b) if there is none.
func incompleteTail(b []byte) int {
	for i := len(b) - 1; i >= 0 && i > len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return i
		}
		break
	}
	return len(b)
}
