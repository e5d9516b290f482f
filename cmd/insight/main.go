// Package main is the command-line entry point: it submits one question to
// the analytics backend and renders the streamed answer.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shelfmetrics/insight-client/internal/api"
	"github.com/shelfmetrics/insight-client/internal/config"
	"github.com/shelfmetrics/insight-client/internal/conversation"
	"github.com/shelfmetrics/insight-client/internal/observer"
	"github.com/shelfmetrics/insight-client/internal/session"
	"github.com/shelfmetrics/insight-client/pkg/logger"
	"github.com/shelfmetrics/insight-client/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "insight-client", cfg.TracingEndpoint)
		if err != nil {
			log.Warnw("failed to initialize tracing", "error", err)
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	if cfg.MetricsAddr != "" {
		go serveOps(cfg.MetricsAddr, log)
	}

	client := api.New(api.Config{
		BaseURL: cfg.BaseURL,
		Token:   cfg.APIToken,
		Timeout: cfg.RequestTimeout,
	}, log)

	question := strings.TrimSpace(strings.Join(os.Args[1:], " "))
	if question == "" {
		printSuggestions(ctx, client)
		return
	}

	if status, err := client.Status(ctx); err != nil {
		log.Warnw("backend status check failed", "error", err)
	} else if status.CircuitOpen {
		log.Warnw("backend circuit breaker is open", "status", status.Status)
	}

	observers := []conversation.Observer{conversation.ObserverFunc(render)}
	if cfg.NATSURL != "" {
		pub, err := observer.ConnectNATS(observer.NATSConfig{
			URL:           cfg.NATSURL,
			Token:         cfg.NATSToken,
			SubjectPrefix: cfg.NATSSubjectPrefix,
		}, log)
		if err != nil {
			log.Warnw("observer fan-out disabled", "error", err)
		} else {
			defer pub.Close()
			observers = append(observers, pub)
		}
	}

	ctrl := conversation.New(
		session.New(),
		client,
		conversation.WithLogger(log),
		conversation.WithObserver(conversation.MultiObserver(observers...)),
	)

	id, err := ctrl.Submit(ctx, conversation.Query{
		Question: question,
		StoreID:  cfg.StoreID,
	})
	if err != nil {
		log.Errorw("submit failed", "error", err)
		os.Exit(1)
	}

	msg, err := ctrl.Wait(ctx, id)
	if err != nil {
		// Interrupted: cancel the stream and report the cancelled state.
		_ = ctrl.Cancel(id)
		msg, _ = ctrl.Get(id)
	}

	if msg.State == conversation.StateFailed {
		os.Exit(1)
	}
}

// render is the terminal's passive view of message updates.
func render(msg conversation.Message) {
	if msg.Role != conversation.RoleAssistant {
		return
	}
	switch msg.State {
	case conversation.StateStreaming:
		fmt.Printf("· %s\n", msg.LatestStatus)
	case conversation.StateResolved:
		fmt.Printf("\n%s\n", msg.Content)
		if msg.SQL != "" {
			fmt.Printf("\nsql: %s\n", msg.SQL)
		}
		if msg.RowCount != nil {
			fmt.Printf("rows: %d (%.1fms)\n", *msg.RowCount, msg.ExecutionTimeMs)
		}
		for _, a := range msg.Assumptions {
			fmt.Printf("assumption: %s\n", a)
		}
	case conversation.StateFailed:
		fmt.Printf("\nquery failed (%s): %s\n", msg.ErrorKind, msg.ErrorMessage)
		if msg.Suggestion != "" {
			fmt.Printf("suggestion: %s\n", msg.Suggestion)
		}
	}
}

func printSuggestions(ctx context.Context, client *api.Client) {
	fmt.Println("usage: insight <question>")
	suggestions, err := client.Suggestions(ctx)
	if err != nil {
		return
	}
	fmt.Println("\ntry one of:")
	for _, s := range suggestions {
		fmt.Printf("  %s\n", s)
	}
}

// serveOps exposes health and Prometheus metrics for the client process.
func serveOps(addr string, log *logger.Logger) {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Infow("ops listener started", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warnw("ops listener stopped", "error", err)
	}
}
