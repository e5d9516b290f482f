package stream

// Event type discriminants as they appear on the wire.
const (
	TypeStatus = "status"
	TypeFinal  = "final"
	TypeError  = "error"
)

// Event is a parsed, typed stream event: exactly one of StatusEvent,
// FinalEvent or ErrorEvent.
type Event interface {
	// Type returns the wire discriminant of the event.
	Type() string
}

// StatusEvent is a non-terminal progress update. Any number may arrive for
// one message, in arbitrary order among themselves.
type StatusEvent struct {
	Message  string
	SQL      string
	RowCount *int
}

// Type returns the wire discriminant of the event.
func (StatusEvent) Type() string { return TypeStatus }

// FinalEvent is the terminal success event carrying the full answer.
type FinalEvent struct {
	Question        string
	SQL             string
	Rows            []map[string]any
	RowCount        int
	ExecutionTimeMs float64
	Chart           map[string]any
	ChartData       []map[string]any
	Text            string
	QueryType       string
	Assumptions     []string
}

// Type returns the wire discriminant of the event.
func (FinalEvent) Type() string { return TypeFinal }

// ErrorEvent is the terminal failure event, surfaced verbatim.
type ErrorEvent struct {
	Message    string
	Kind       string
	Suggestion string
}

// Type returns the wire discriminant of the event.
func (ErrorEvent) Type() string { return TypeError }
