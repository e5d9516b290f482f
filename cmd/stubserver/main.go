// Package main runs the development stub of the analytics backend.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/shelfmetrics/insight-client/internal/stub"
	"github.com/shelfmetrics/insight-client/pkg/logger"
)

func main() {
	log, err := logger.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := stub.Config{
		JWTSecret:   os.Getenv("STUB_JWT_SECRET"),
		RateLimit:   getIntEnv("STUB_RATE_LIMIT", 120),
		StreamDelay: 150 * time.Millisecond,
	}
	port := os.Getenv("STUB_PORT")
	if port == "" {
		port = "8095"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      stub.Router(cfg, log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infow("stub backend listening", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down stub backend")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
