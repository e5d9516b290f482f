package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Feedback verdicts accepted by the backend.
const (
	FeedbackCorrect   = "correct"
	FeedbackIncorrect = "incorrect"
)

// Feedback reports whether a generated answer was right.
type Feedback struct {
	Question     string `json:"question"`
	SQL          string `json:"sql"`
	Feedback     string `json:"feedback"`
	CorrectedSQL string `json:"corrected_sql,omitempty"`
	Comment      string `json:"comment,omitempty"`
}

// ServerStatus is the backend's circuit-breaker/health state.
type ServerStatus struct {
	Status      string         `json:"status"`
	CircuitOpen bool           `json:"circuit_open,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Suggestions fetches example questions to seed the input box.
func (c *Client) Suggestions(ctx context.Context) ([]string, error) {
	var out suggestionsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/suggestions", nil, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

// SendFeedback submits a verdict on a generated answer.
func (c *Client) SendFeedback(ctx context.Context, fb Feedback) error {
	if fb.Feedback != FeedbackCorrect && fb.Feedback != FeedbackIncorrect {
		return fmt.Errorf("feedback must be %q or %q", FeedbackCorrect, FeedbackIncorrect)
	}
	return c.doJSON(ctx, http.MethodPost, "/feedback", fb, nil)
}

// Status fetches the backend health state.
func (c *Client) Status(ctx context.Context) (*ServerStatus, error) {
	var out ServerStatus
	if err := c.doJSON(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.rest.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
