package usecase

import (
	"encoding/json"
	"strings"

	"docstream/internal/domain"
)

// Wire protocol tags. The response body is "<header>\n\n<body>": the header
// is a JSON payload behind headerTag, the body is plain text that may carry
// status lines and inline highlight markers.
const (
	headerTag       = "DATA: "
	headerDelimiter = "\n\n"
	statusTag       = "[STATUS]:"
	markerOpen      = "[[HIGHLIGHT:"
	markerClose     = "]]"
)

// EnvelopeSplitter is a one-shot state machine that separates the metadata
// header from the body. It buffers text until the header delimiter appears
// (the delimiter may straddle chunk boundaries), parses the header exactly
// once, and passes everything after it straight through.
type EnvelopeSplitter struct {
	parsed   bool
	envelope domain.Envelope
	buf      []byte // text accumulated while awaiting the delimiter
	scanFrom int    // resume offset into buf, so arrivals never re-scan from 0
}

// NewEnvelopeSplitter creates a splitter in the awaiting-header state.
func NewEnvelopeSplitter() *EnvelopeSplitter {
	return &EnvelopeSplitter{}
}

// Parsed reports whether the header boundary has been seen.
func (s *EnvelopeSplitter) Parsed() bool { return s.parsed }

// Envelope returns the parsed metadata. Present is false until the header is
// parsed, and stays false if the header was malformed or never arrived.
func (s *EnvelopeSplitter) Envelope() domain.Envelope { return s.envelope }

// Feed consumes newly decoded text and returns the portion that is body
// text. While awaiting the header it returns "" until the delimiter is
// found; once parsed, input passes through unchanged. Header-shaped text
// appearing after the boundary is plain body, never re-parsed.
func (s *EnvelopeSplitter) Feed(text string) string {
	if s.parsed {
		return text
	}
	if text == "" {
		return ""
	}
	s.buf = append(s.buf, text...)

	idx := strings.Index(string(s.buf[s.scanFrom:]), headerDelimiter)
	if idx < 0 {
		// Keep one byte of overlap so a delimiter split across arrivals is
		// still found.
		if s.scanFrom = len(s.buf) - (len(headerDelimiter) - 1); s.scanFrom < 0 {
			s.scanFrom = 0
		}
		return ""
	}

	boundary := s.scanFrom + idx
	header := string(s.buf[:boundary])
	rest := string(s.buf[boundary+len(headerDelimiter):])
	s.buf = nil
	s.parsed = true

	payload, ok := strings.CutPrefix(header, headerTag)
	if !ok {
		// No header was sent; the candidate and the delimiter are body text.
		return header + headerDelimiter + rest
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		// Malformed header: no metadata, but body processing proceeds.
		return rest
	}
	s.envelope = domain.Envelope{Present: true, Metadata: meta}
	return rest
}

// Finish handles a stream that ended before any delimiter arrived: the
// buffered text was never a header, so all of it becomes body.
func (s *EnvelopeSplitter) Finish() string {
	if s.parsed {
		return ""
	}
	s.parsed = true
	body := string(s.buf)
	s.buf = nil
	return body
}
