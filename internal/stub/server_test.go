package stub

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmetrics/insight-client/internal/api"
	"github.com/shelfmetrics/insight-client/internal/conversation"
	"github.com/shelfmetrics/insight-client/internal/session"
	"github.com/shelfmetrics/insight-client/pkg/logger"
)

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

func newStub(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(Router(cfg, logger.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

// Full client path: submit through the controller, stream from the stub,
// end resolved.
func TestStreamedQueryResolves(t *testing.T) {
	srv := newStub(t, Config{})
	client := api.New(api.Config{BaseURL: srv.URL}, nil)
	ctrl := conversation.New(session.New(), client)

	id, err := ctrl.Submit(context.Background(), conversation.Query{Question: "top stores by revenue"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := ctrl.Wait(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, conversation.StateResolved, msg.State)
	assert.NotEmpty(t, msg.Content)
	assert.Contains(t, msg.SQL, "SELECT")
	require.NotNil(t, msg.RowCount)
	assert.Equal(t, 2, *msg.RowCount)
	assert.Len(t, msg.Rows, 2)
	assert.Equal(t, "aggregate", msg.QueryType)
	assert.NotEmpty(t, msg.Assumptions)
}

func TestStreamedQueryReportsServerError(t *testing.T) {
	srv := newStub(t, Config{})
	client := api.New(api.Config{BaseURL: srv.URL}, nil)
	ctrl := conversation.New(session.New(), client)

	id, err := ctrl.Submit(context.Background(), conversation.Query{Question: "please fail"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := ctrl.Wait(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, conversation.StateFailed, msg.State)
	assert.Equal(t, "query execution failed", msg.ErrorMessage)
	assert.Equal(t, "execution", msg.ErrorKind)
	assert.Equal(t, "try a narrower date range", msg.Suggestion)
}

func TestStreamRejectsMissingSessionID(t *testing.T) {
	srv := newStub(t, Config{})

	resp, err := http.Post(srv.URL+"/api/query/stream", "application/json",
		jsonBody(`{"question":"q"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthGuardsAPIRoutes(t *testing.T) {
	const secret = "test-secret"
	srv := newStub(t, Config{JWTSecret: secret})

	resp, err := http.Get(srv.URL + "/suggestions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Health stays open.
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	client := api.New(api.Config{BaseURL: srv.URL, Token: token}, nil)
	suggestions, err := client.Suggestions(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, suggestions)
}

func TestFeedbackRoundTrip(t *testing.T) {
	srv := newStub(t, Config{})
	client := api.New(api.Config{BaseURL: srv.URL}, nil)

	err := client.SendFeedback(context.Background(), api.Feedback{
		Question: "top stores",
		SQL:      "SELECT 1",
		Feedback: api.FeedbackCorrect,
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/feedback", "application/json",
		jsonBody(`{"question":"q","feedback":"maybe"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	srv := newStub(t, Config{})
	client := api.New(api.Config{BaseURL: srv.URL}, nil)

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)
	assert.False(t, status.CircuitOpen)
}
