// internal/protocol/framer.go
package protocol

import (
	"strings"
	"time"

	"serial-bridge/internal/model"
)

// DefaultMaxLineLength bounds the buffered text of an unterminated line
const DefaultMaxLineLength = 4096

// FramerOptions configures a Framer
type FramerOptions struct {
	// EmitPartials emits the unterminated tail of every push as a
	// PartialChunk. The tail stays buffered and is repeated in full by the
	// Line that eventually terminates it.
	EmitPartials bool

	// MaxLineLength forces an unterminated buffer out as a PartialChunk
	// once it grows past this many bytes. Zero selects DefaultMaxLineLength.
	MaxLineLength int

	// Now supplies record timestamps
	Now func() time.Time
}

// Framer splits decoded text into newline-terminated records, in arrival order
type Framer struct {
	buf     strings.Builder
	opts    FramerOptions
	emitted int // length of buf already emitted as a partial chunk
}

// NewFramer creates a new frame accumulator
func NewFramer(opts FramerOptions) *Framer {
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = DefaultMaxLineLength
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Framer{opts: opts}
}

// Push appends text and returns one Line record per newline found
func (f *Framer) Push(text string) []model.InboundRecord {
	if text == "" {
		return nil
	}

	var records []model.InboundRecord
	for {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			break
		}
		f.buf.WriteString(text[:idx])
		records = append(records, f.record(model.RecordLine, f.buf.String()))
		f.buf.Reset()
		f.emitted = 0
		text = text[idx+1:]
	}
	f.buf.WriteString(text)

	switch {
	case f.buf.Len() > f.opts.MaxLineLength:
		records = append(records, f.record(model.RecordPartialChunk, f.buf.String()))
		f.buf.Reset()
		f.emitted = 0
	case f.opts.EmitPartials && f.buf.Len() > f.emitted:
		records = append(records, f.record(model.RecordPartialChunk, f.buf.String()))
		f.emitted = f.buf.Len()
	}

	return records
}

// FlushPartial emits any buffered, unterminated text as a PartialChunk.
// Text already emitted in full as a partial chunk is not repeated.
func (f *Framer) FlushPartial() (model.InboundRecord, bool) {
	if f.buf.Len() == 0 || f.buf.Len() == f.emitted {
		f.Reset()
		return model.InboundRecord{}, false
	}
	rec := f.record(model.RecordPartialChunk, f.buf.String())
	f.buf.Reset()
	f.emitted = 0
	return rec, true
}

// Buffered returns the number of bytes waiting for a newline
func (f *Framer) Buffered() int {
	return f.buf.Len()
}

// Reset drops buffered text
func (f *Framer) Reset() {
	f.buf.Reset()
	f.emitted = 0
}

func (f *Framer) record(kind model.RecordKind, text string) model.InboundRecord {
	rec := model.InboundRecord{
		Timestamp: f.opts.Now(),
		Kind:      kind,
		Text:      text,
	}
	if kind == model.RecordLine {
		if v, ok := ParseNumeric(text); ok {
			rec.NumericValue = &v
		}
	}
	return rec
}
