package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Parse failure reasons, used as diagnostics and metric labels.
const (
	ReasonInvalidJSON = "invalid_json"
	ReasonBadField    = "bad_field"
	ReasonMissingType = "missing_type"
	ReasonUnknownType = "unknown_type"
)

// ParseError reports a frame that could not be turned into an event. It is
// recoverable: the caller drops the frame and keeps consuming the stream.
type ParseError struct {
	Reason string
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("frame parse failure: %s", e.Reason)
	}
	return fmt.Sprintf("frame parse failure: %s: %s", e.Reason, e.Detail)
}

// wireEvent mirrors the JSON shape shared by all event types.
type wireEvent struct {
	Type            string           `json:"type"`
	Message         string           `json:"message"`
	SQL             string           `json:"sql"`
	RowCount        *int             `json:"row_count"`
	Question        string           `json:"question"`
	Data            []map[string]any `json:"data"`
	ExecutionTimeMs float64          `json:"execution_time_ms"`
	Chart           map[string]any   `json:"chart"`
	ChartData       []map[string]any `json:"chart_data"`
	FinalText       string           `json:"final_text"`
	QueryType       string           `json:"query_type"`
	Assumptions     []string         `json:"assumptions"`
	ErrorType       string           `json:"error_type"`
	Suggestion      string           `json:"suggestion"`
}

// Parse decodes one frame payload into a typed event. Failures come back as
// a *ParseError, never a panic: a bad frame must not abort the stream.
// Unrecognized discriminants are also a ParseError so protocol extensions
// do not break old clients. Missing optional fields are simply absent.
func Parse(f Frame) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(f.Payload), &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &ParseError{
				Reason: ReasonBadField,
				Detail: fmt.Sprintf("field %q: expected %s", typeErr.Field, typeErr.Type),
			}
		}
		return nil, &ParseError{Reason: ReasonInvalidJSON, Detail: err.Error()}
	}

	switch w.Type {
	case TypeStatus:
		return StatusEvent{
			Message:  w.Message,
			SQL:      w.SQL,
			RowCount: w.RowCount,
		}, nil

	case TypeFinal:
		rowCount := 0
		if w.RowCount != nil {
			rowCount = *w.RowCount
		}
		return FinalEvent{
			Question:        w.Question,
			SQL:             w.SQL,
			Rows:            w.Data,
			RowCount:        rowCount,
			ExecutionTimeMs: w.ExecutionTimeMs,
			Chart:           w.Chart,
			ChartData:       w.ChartData,
			Text:            w.FinalText,
			QueryType:       w.QueryType,
			Assumptions:     w.Assumptions,
		}, nil

	case TypeError:
		return ErrorEvent{
			Message:    w.Message,
			Kind:       w.ErrorType,
			Suggestion: w.Suggestion,
		}, nil

	case "":
		return nil, &ParseError{Reason: ReasonMissingType}

	default:
		return nil, &ParseError{Reason: ReasonUnknownType, Detail: w.Type}
	}
}
