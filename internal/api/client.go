// Package api is the HTTP client for the analytics backend: the streaming
// query endpoint plus the plain request/response collaborator endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shelfmetrics/insight-client/internal/conversation"
	"github.com/shelfmetrics/insight-client/internal/stream"
	"github.com/shelfmetrics/insight-client/pkg/logger"
)

const defaultTimeout = 15 * time.Second

// Config holds client settings.
type Config struct {
	BaseURL string
	Token   string
	// Timeout bounds collaborator requests. Query streams are long-running
	// and bounded only by their context.
	Timeout time.Duration
}

// Client talks to the analytics backend.
type Client struct {
	baseURL   string
	token     string
	streaming *http.Client
	rest      *http.Client
	log       *logger.Logger
}

// New creates a client for the given backend.
func New(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		streaming: &http.Client{},
		rest:      &http.Client{Timeout: timeout},
		log:       log,
	}
}

// QueryRequest is the streaming query wire format.
type QueryRequest struct {
	Question  string     `json:"question"`
	SessionID string     `json:"session_id"`
	StoreID   string     `json:"store_id,omitempty"`
	DateRange *DateRange `json:"date_range,omitempty"`
}

// DateRange bounds a query to a date window on the wire.
type DateRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

var _ conversation.Streamer = (*Client)(nil)

// Open implements conversation.Streamer: it POSTs the query and hands back
// the response body as a pull-based chunk reader.
func (c *Client) Open(ctx context.Context, sessionID string, q conversation.Query) (stream.ChunkReader, error) {
	wire := QueryRequest{
		Question:  q.Question,
		SessionID: sessionID,
		StoreID:   q.StoreID,
	}
	if q.DateRange != nil {
		wire.DateRange = &DateRange{
			StartDate: q.DateRange.StartDate,
			EndDate:   q.DateRange.EndDate,
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode query request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/query/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.streaming.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open query stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("open query stream: unexpected status %d", resp.StatusCode)
	}

	c.log.Debugw("query stream opened", "session_id", sessionID)
	return &bodyChunks{body: resp.Body}, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// bodyChunks adapts a response body to the pull-based chunk contract.
type bodyChunks struct {
	body io.ReadCloser
	buf  [4096]byte
}

// Next returns the next chunk of bytes. The slice is only valid until the
// following call.
func (b *bodyChunks) Next() ([]byte, error) {
	n, err := b.body.Read(b.buf[:])
	if n > 0 {
		// Deliver the bytes first; a trailing EOF surfaces on the next call.
		return b.buf[:n], nil
	}
	return nil, err
}

// Close releases the underlying connection.
func (b *bodyChunks) Close() error {
	return b.body.Close()
}
