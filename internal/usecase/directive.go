package usecase

import (
	"strings"
)

// ExtractResult is what one extraction pass produced: text safe to display,
// highlights first seen in this pass, and a status replacement if a status
// line completed.
type ExtractResult struct {
	DisplayDelta  string
	NewHighlights []string
	Status        string
	StatusUpdated bool
}

// DirectiveExtractor scans body text for two line-oriented directives:
// status lines ("[STATUS]: ..." — consumed, latest wins) and inline
// highlight markers ("[[HIGHLIGHT: text]]" — payload collected, marker
// stripped). Either directive can arrive split across chunks, so the
// extractor holds back an unresolved tail and only ever emits text that can
// no longer be part of a directive: a partial marker is never displayed and
// a split marker is never missed.
type DirectiveExtractor struct {
	tail        string // text not yet classifiable as display or directive
	atLineStart bool   // whether tail begins at a line start
	status      string
	seen        map[string]struct{}
	highlights  []string // insertion order, no duplicates
}

// NewDirectiveExtractor creates an extractor for one session.
func NewDirectiveExtractor() *DirectiveExtractor {
	return &DirectiveExtractor{
		atLineStart: true,
		seen:        make(map[string]struct{}),
	}
}

// Status returns the current (latest-wins) status text.
func (e *DirectiveExtractor) Status() string { return e.status }

// Highlights returns the accumulated highlight set in first-seen order.
func (e *DirectiveExtractor) Highlights() []string {
	out := make([]string, len(e.highlights))
	copy(out, e.highlights)
	return out
}

// Process consumes newly arrived body text and returns the resolvable
// portion. Complete lines are classified immediately; the trailing
// incomplete line is emitted up to the first position that could still
// belong to a directive.
func (e *DirectiveExtractor) Process(delta string) ExtractResult {
	var res ExtractResult
	var out strings.Builder

	pending := e.tail + delta
	e.tail = ""

	for {
		nl := strings.IndexByte(pending, '\n')
		if nl < 0 {
			break
		}
		e.consumeLine(pending[:nl+1], &out, &res)
		pending = pending[nl+1:]
		e.atLineStart = true
	}

	e.holdBack(pending, &out, &res)
	res.DisplayDelta = out.String()
	return res
}

// Finish resolves whatever is still held when the stream ends. A held
// status line (no trailing newline) still applies; an unterminated marker
// fragment is literal text at this point and is displayed as-is.
func (e *DirectiveExtractor) Finish() ExtractResult {
	var res ExtractResult
	seg := e.tail
	e.tail = ""
	if seg == "" {
		return res
	}
	if e.atLineStart && strings.HasPrefix(seg, statusTag) {
		e.setStatus(seg[len(statusTag):], &res)
		return res
	}
	res.DisplayDelta = e.stripMarkers(seg, &res)
	return res
}

// consumeLine classifies one complete line (trailing newline included).
func (e *DirectiveExtractor) consumeLine(line string, out *strings.Builder, res *ExtractResult) {
	if e.atLineStart && strings.HasPrefix(line, statusTag) {
		e.setStatus(strings.TrimSuffix(line[len(statusTag):], "\n"), res)
		return
	}
	// Markers never span lines, so any unclosed opener left after stripping
	// is literal text here.
	out.WriteString(e.stripMarkers(line, res))
}

// holdBack emits the safe prefix of the trailing incomplete line and retains
// the rest: a possible status tag in progress, an unclosed marker, or a
// partial marker opener at the very end.
func (e *DirectiveExtractor) holdBack(seg string, out *strings.Builder, res *ExtractResult) {
	if seg == "" {
		return
	}

	if e.atLineStart {
		if len(seg) < len(statusTag) {
			if strings.HasPrefix(statusTag, seg) {
				e.tail = seg
				return
			}
		} else if strings.HasPrefix(seg, statusTag) {
			// Status line in progress; withhold until its newline (or Finish).
			e.tail = seg
			return
		}
	}

	seg = e.stripMarkers(seg, res)

	hold := len(seg)
	if i := strings.Index(seg, markerOpen); i >= 0 {
		// Complete markers were stripped above, so this one is unclosed.
		hold = i
	} else {
		max := len(markerOpen) - 1
		if max > len(seg) {
			max = len(seg)
		}
		for k := max; k > 0; k-- {
			if strings.HasSuffix(seg, markerOpen[:k]) {
				hold = len(seg) - k
				break
			}
		}
	}

	out.WriteString(seg[:hold])
	e.tail = seg[hold:]
	if hold > 0 {
		e.atLineStart = false
	}
}

// stripMarkers removes every complete highlight marker from s, recording
// first-seen payloads. Surrounding text is re-joined seamlessly.
func (e *DirectiveExtractor) stripMarkers(s string, res *ExtractResult) string {
	for {
		open := strings.Index(s, markerOpen)
		if open < 0 {
			return s
		}
		end := strings.Index(s[open+len(markerOpen):], markerClose)
		if end < 0 {
			return s
		}
		start := open + len(markerOpen)
		payload := strings.TrimSpace(s[start : start+end])
		if payload != "" {
			if _, dup := e.seen[payload]; !dup {
				e.seen[payload] = struct{}{}
				e.highlights = append(e.highlights, payload)
				res.NewHighlights = append(res.NewHighlights, payload)
			}
		}
		s = s[:open] + s[start+end+len(markerClose):]
	}
}

func (e *DirectiveExtractor) setStatus(text string, res *ExtractResult) {
	e.status = strings.TrimSpace(text)
	res.Status = e.status
	res.StatusUpdated = true
}
