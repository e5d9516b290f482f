// Package conversation owns the ordered collection of messages in one
// conversation and applies stream events to the in-flight message through
// an explicit lifecycle state machine.
package conversation

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// State is a message lifecycle state. Assistant messages move
// pending -> streaming -> {resolved, failed}; user messages are created
// already resolved.
type State string

const (
	StatePending   State = "pending"
	StateStreaming State = "streaming"
	StateResolved  State = "resolved"
	StateFailed    State = "failed"
)

// Terminal reports whether no further event may alter the message.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateFailed
}

// Error kinds attached to failed messages.
const (
	// ErrorKindTransport marks a connection drop or timeout before the
	// stream completed.
	ErrorKindTransport = "transport"
	// ErrorKindCancelled marks a user-initiated abort, so callers can avoid
	// rendering it as a server fault.
	ErrorKindCancelled = "cancelled"
)

// Message is one entry in a conversation. Assistant messages are mutated in
// place as events arrive, only ever by the Controller, and are never
// removed, only transitioned.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`

	// Content is the user's question for user messages and the final answer
	// text for resolved assistant messages.
	Content string `json:"content,omitempty"`

	// Streaming progress.
	LatestStatus string `json:"latest_status,omitempty"`
	SQL          string `json:"sql,omitempty"`
	RowCount     *int   `json:"row_count,omitempty"`

	// Final answer fields.
	Rows            []map[string]any `json:"rows,omitempty"`
	ExecutionTimeMs float64          `json:"execution_time_ms,omitempty"`
	Chart           map[string]any   `json:"chart,omitempty"`
	ChartData       []map[string]any `json:"chart_data,omitempty"`
	QueryType       string           `json:"query_type,omitempty"`
	Assumptions     []string         `json:"assumptions,omitempty"`

	// Failure fields.
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	Suggestion   string `json:"suggestion,omitempty"`

	// Diagnostics records malformed frames dropped while this message was
	// streaming. Failures stay observable even when not fatal.
	Diagnostics []string `json:"diagnostics,omitempty"`

	StreamStarted *time.Time `json:"stream_started,omitempty"`
	StreamEnded   *time.Time `json:"stream_ended,omitempty"`
}

// Clone returns a snapshot safe to hand outside the controller. Row and
// chart payloads are shared but never mutated after the terminal event.
func (m *Message) Clone() Message {
	out := *m
	if m.Assumptions != nil {
		out.Assumptions = append([]string(nil), m.Assumptions...)
	}
	if m.Diagnostics != nil {
		out.Diagnostics = append([]string(nil), m.Diagnostics...)
	}
	if m.RowCount != nil {
		rc := *m.RowCount
		out.RowCount = &rc
	}
	return out
}
