package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	ev, err := Parse(Frame{Payload: `{"type":"status","message":"Generating SQL","sql":"SELECT 1","row_count":3}`})
	require.NoError(t, err)

	status, ok := ev.(StatusEvent)
	require.True(t, ok)
	assert.Equal(t, "Generating SQL", status.Message)
	assert.Equal(t, "SELECT 1", status.SQL)
	require.NotNil(t, status.RowCount)
	assert.Equal(t, 3, *status.RowCount)
}

func TestParseStatusMissingOptionals(t *testing.T) {
	ev, err := Parse(Frame{Payload: `{"type":"status","message":"Thinking"}`})
	require.NoError(t, err)

	status := ev.(StatusEvent)
	assert.Equal(t, "Thinking", status.Message)
	assert.Empty(t, status.SQL)
	assert.Nil(t, status.RowCount)
}

func TestParseFinal(t *testing.T) {
	payload := `{
		"type": "final",
		"question": "top stores",
		"sql": "SELECT store, SUM(revenue) FROM sales GROUP BY store",
		"data": [{"store": "Downtown", "revenue": 12.5}],
		"row_count": 1,
		"execution_time_ms": 42.7,
		"chart": {"type": "bar"},
		"chart_data": [{"store": "Downtown"}],
		"final_text": "Downtown leads.",
		"query_type": "aggregate",
		"assumptions": ["revenue excludes returns"]
	}`
	ev, err := Parse(Frame{Payload: payload})
	require.NoError(t, err)

	final, ok := ev.(FinalEvent)
	require.True(t, ok)
	assert.Equal(t, "top stores", final.Question)
	assert.Equal(t, 1, final.RowCount)
	assert.InDelta(t, 42.7, final.ExecutionTimeMs, 0.001)
	assert.Equal(t, "Downtown leads.", final.Text)
	assert.Equal(t, "aggregate", final.QueryType)
	require.Len(t, final.Rows, 1)
	assert.Equal(t, "Downtown", final.Rows[0]["store"])
	assert.Equal(t, "bar", final.Chart["type"])
	assert.Equal(t, []string{"revenue excludes returns"}, final.Assumptions)
}

func TestParseFinalDefaultsRowCount(t *testing.T) {
	ev, err := Parse(Frame{Payload: `{"type":"final","final_text":"done"}`})
	require.NoError(t, err)
	assert.Equal(t, 0, ev.(FinalEvent).RowCount)
}

func TestParseError(t *testing.T) {
	ev, err := Parse(Frame{Payload: `{"type":"error","message":"boom","error_type":"execution","suggestion":"narrow the range"}`})
	require.NoError(t, err)

	e, ok := ev.(ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "boom", e.Message)
	assert.Equal(t, "execution", e.Kind)
	assert.Equal(t, "narrow the range", e.Suggestion)
}

func TestParseInvalidJSON(t *testing.T) {
	ev, err := Parse(Frame{Payload: `{not json`})
	assert.Nil(t, ev)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonInvalidJSON, perr.Reason)
}

func TestParseMissingDiscriminant(t *testing.T) {
	_, err := Parse(Frame{Payload: `{"message":"no type"}`})

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonMissingType, perr.Reason)
}

// Unknown discriminants must fail softly: future protocol extensions should
// not break old clients.
func TestParseUnknownDiscriminant(t *testing.T) {
	_, err := Parse(Frame{Payload: `{"type":"heartbeat"}`})

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonUnknownType, perr.Reason)
	assert.Contains(t, perr.Detail, "heartbeat")
}

func TestParseNonNumericCount(t *testing.T) {
	_, err := Parse(Frame{Payload: `{"type":"status","message":"x","row_count":"three"}`})

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonBadField, perr.Reason)
}
