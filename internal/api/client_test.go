package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmetrics/insight-client/internal/conversation"
	"github.com/shelfmetrics/insight-client/internal/stream"
)

func TestOpenSendsQueryAndStreamsFrames(t *testing.T) {
	var got QueryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/query/stream", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"type\":\"status\",\"message\":\"Thinking\"}\n\n")
		io.WriteString(w, "data: {\"type\":\"final\",\"final_text\":\"Done\"}\n\n")
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Token: "secret"}, nil)

	rc, err := client.Open(context.Background(), "sess-1", conversation.Query{
		Question: "top stores",
		StoreID:  "s42",
		DateRange: &conversation.DateRange{
			StartDate: "2026-01-01",
			EndDate:   "2026-01-31",
		},
	})
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, "top stores", got.Question)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "s42", got.StoreID)
	require.NotNil(t, got.DateRange)
	assert.Equal(t, "2026-01-01", got.DateRange.StartDate)

	dec := stream.NewDecoder()
	var frames []stream.Frame
	for {
		chunk, err := rc.Next()
		frames = append(frames, dec.Feed(chunk)...)
		if errors.Is(err, io.EOF) {
			frames = append(frames, dec.Finish()...)
			break
		}
		require.NoError(t, err)
	}
	require.Len(t, frames, 2)
	assert.Contains(t, frames[0].Payload, "Thinking")
	assert.Contains(t, frames[1].Payload, "Done")
}

func TestOpenRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL}, nil)
	_, err := client.Open(context.Background(), "sess-1", conversation.Query{Question: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSuggestions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/suggestions", r.URL.Path)
		json.NewEncoder(w).Encode(map[string][]string{"suggestions": {"a", "b"}})
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL}, nil)
	got, err := client.Suggestions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSendFeedback(t *testing.T) {
	var got Feedback
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/feedback", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL}, nil)
	err := client.SendFeedback(context.Background(), Feedback{
		Question: "q",
		SQL:      "SELECT 1",
		Feedback: FeedbackIncorrect,
		Comment:  "wrong store",
	})
	require.NoError(t, err)
	assert.Equal(t, FeedbackIncorrect, got.Feedback)
	assert.Equal(t, "wrong store", got.Comment)
}

func TestSendFeedbackValidatesVerdict(t *testing.T) {
	client := New(Config{BaseURL: "http://localhost:0"}, nil)
	err := client.SendFeedback(context.Background(), Feedback{Feedback: "maybe"})
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"status": "degraded", "circuit_open": true})
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL}, nil)
	got, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "degraded", got.Status)
	assert.True(t, got.CircuitOpen)
}
