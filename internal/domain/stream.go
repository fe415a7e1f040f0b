package domain

import "time"

// SessionState is the lifecycle state of one streaming session.
type SessionState string

const (
	// StateIdle: session created, no network activity yet.
	StateIdle SessionState = "idle"
	// StateConnecting: request sent, waiting for the first byte.
	StateConnecting SessionState = "connecting"
	// StateStreaming: at least one chunk has arrived.
	StateStreaming SessionState = "streaming"
	// StateCompleted: the stream ended normally and the message is final.
	StateCompleted SessionState = "completed"
	// StateCancelled: the caller (or a superseding query) stopped the session.
	// Not an error; already-published text stays visible.
	StateCancelled SessionState = "cancelled"
	// StateFailed: the transport or stream failed; see Snapshot.Err.
	StateFailed SessionState = "failed"
)

// Terminal reports whether the state is final for the session.
func (s SessionState) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Envelope is the metadata header of a response stream. It is parsed at most
// once per session; once Present is true, Metadata never changes.
type Envelope struct {
	Present  bool           `json:"present"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TotalDocuments returns the "total_documents" metadata entry, or 0 when the
// envelope is absent or the key is missing/non-numeric. Comparison views use
// it to size their progress display.
func (e Envelope) TotalDocuments() int {
	return e.Int("total_documents")
}

// Int looks up an integer metadata value. JSON numbers decode as float64, so
// both forms are accepted.
func (e Envelope) Int(key string) int {
	if !e.Present {
		return 0
	}
	switch v := e.Metadata[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// String looks up a string metadata value, or "" when absent.
func (e Envelope) String(key string) string {
	if !e.Present {
		return ""
	}
	s, _ := e.Metadata[key].(string)
	return s
}

// DirectiveKind distinguishes the inline directives carried in body text.
type DirectiveKind string

const (
	// DirectiveStatus is a whole line prefixed with the status tag; its text
	// replaces the current status and never reaches the display stream.
	DirectiveStatus DirectiveKind = "status"
	// DirectiveHighlight is an inline [[HIGHLIGHT: ...]] marker; its payload
	// joins the highlight set and the marker is stripped from display text.
	DirectiveHighlight DirectiveKind = "highlight"
)

// Directive is one extracted directive. Directives are ephemeral: applied to
// session state and discarded.
type Directive struct {
	Kind DirectiveKind
	Text string
}

// Snapshot is one observable frame of session progress, published at least
// once per processed chunk and once on finalization. DisplayText only ever
// grows within a session; Progress is monotonically non-decreasing.
type Snapshot struct {
	State       SessionState `json:"state"`
	Envelope    Envelope     `json:"envelope"`
	DisplayText string       `json:"display_text"`
	Highlights  []string     `json:"highlights,omitempty"`
	Progress    int          `json:"progress"`
	StatusText  string       `json:"status_text,omitempty"`
	Err         *StreamError `json:"error,omitempty"`
}

// Result is the terminal outcome of a session: exactly one of Message (on
// Completed), Cancelled, or Err is meaningful.
type Result struct {
	State      SessionState `json:"state"`
	Message    string       `json:"message,omitempty"`
	Highlights []string     `json:"highlights,omitempty"`
	Envelope   Envelope     `json:"envelope"`
	Err        *StreamError `json:"error,omitempty"`
	FinishedAt time.Time    `json:"finished_at"`
}
