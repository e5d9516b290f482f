// Package stub is a development stand-in for the analytics backend. It
// speaks the exact streaming wire protocol, so the client, integration
// tests, and local dashboards can run without the real service.
package stub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/shelfmetrics/insight-client/pkg/logger"
)

// Config holds stub server settings.
type Config struct {
	// JWTSecret enables bearer auth on the API routes when non-empty.
	JWTSecret string
	// RateLimit is requests per minute per IP; 0 disables limiting.
	RateLimit int
	// StreamDelay is the pause between emitted frames.
	StreamDelay time.Duration
}

type server struct {
	cfg Config
	log *logger.Logger
}

// Router builds the stub's HTTP routes.
func Router(cfg Config, log *logger.Logger) chi.Router {
	s := &server{cfg: cfg, log: log}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}

	r.Get("/health", s.health)
	r.Get("/status", s.status)

	r.Group(func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(Auth(cfg.JWTSecret))
		}
		r.Get("/suggestions", s.suggestions)
		r.Post("/feedback", s.feedback)
		r.Post("/api/query/stream", s.stream)
	})

	return r
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"circuit_open": false,
	})
}

func (s *server) suggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"suggestions": {
			"What were the top 5 stores by revenue last month?",
			"Show seasonal demand for the garden category",
			"Which warehouse is closest to a stockout this week?",
		},
	})
}

func (s *server) feedback(w http.ResponseWriter, r *http.Request) {
	var fb struct {
		Question string `json:"question"`
		SQL      string `json:"sql"`
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if fb.Feedback != "correct" && fb.Feedback != "incorrect" {
		writeError(w, http.StatusBadRequest, "feedback must be correct or incorrect")
		return
	}
	s.log.Infow("feedback received", "feedback", fb.Feedback, "question", fb.Question)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// stream handles POST /api/query/stream: it plays a canned progression of
// status frames followed by a final or error frame, as the real backend
// would while translating and executing the question.
func (s *server) stream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question  string `json:"question"`
		SessionID string `json:"session_id"`
		StoreID   string `json:"store_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "question and session_id are required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sql := "SELECT store_name, SUM(revenue) AS revenue FROM daily_sales GROUP BY store_name ORDER BY revenue DESC LIMIT 5"

	frames := []map[string]any{
		{"type": "status", "message": "Analyzing question"},
		{"type": "status", "message": "Generating SQL", "sql": sql},
	}

	if strings.Contains(strings.ToLower(req.Question), "fail") {
		frames = append(frames, map[string]any{
			"type":       "error",
			"message":    "query execution failed",
			"error_type": "execution",
			"suggestion": "try a narrower date range",
		})
	} else {
		rows := []map[string]any{
			{"store_name": "Downtown", "revenue": 125340.50},
			{"store_name": "Riverside", "revenue": 98210.00},
		}
		frames = append(frames,
			map[string]any{"type": "status", "message": "Executing query", "row_count": len(rows)},
			map[string]any{
				"type":              "final",
				"question":          req.Question,
				"sql":               sql,
				"data":              rows,
				"row_count":         len(rows),
				"execution_time_ms": 42.7,
				"chart":             map[string]any{"type": "bar"},
				"chart_data":        rows,
				"final_text":        "Downtown led revenue, followed by Riverside.",
				"query_type":        "aggregate",
				"assumptions":       []string{"revenue excludes returns"},
			},
		)
	}

	for _, frame := range frames {
		select {
		case <-r.Context().Done():
			return
		default:
		}
		if err := writeFrame(w, flusher, frame); err != nil {
			return
		}
		if s.cfg.StreamDelay > 0 {
			time.Sleep(s.cfg.StreamDelay)
		}
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
