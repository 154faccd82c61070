package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/momo-sms-api/internal/api/handlers"
	"github.com/dvloznov/momo-sms-api/internal/api/middleware"
	"github.com/dvloznov/momo-sms-api/internal/logger"
	"github.com/dvloznov/momo-sms-api/internal/source"
	"github.com/dvloznov/momo-sms-api/internal/store"
	"github.com/rs/zerolog"
)

func main() {
	// Parse command-line flags
	var (
		addr      = flag.String("addr", envOr("MOMO_API_ADDR", "localhost:8000"), "HTTP listen address (or set MOMO_API_ADDR env)")
		src       = flag.String("source", envOr("MOMO_SOURCE", "data/raw/modified_sms_v2.xml"), "SMS export path or gs://bucket/object (or set MOMO_SOURCE env)")
		user      = flag.String("user", envOr("MOMO_API_USER", "admin"), "Basic auth username (or set MOMO_API_USER env)")
		password  = flag.String("password", envOr("MOMO_API_PASSWORD", "secret"), "Basic auth password (or set MOMO_API_PASSWORD env)")
		logLevel  = flag.String("log-level", envOr("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
		logFormat = flag.String("log-format", envOr("LOG_FORMAT", "console"), "Log format: console or json")
	)
	flag.Parse()

	// Initialize logger
	log, err := logger.NewWithConfig(logger.Config{
		Level:  *logLevel,
		Format: logger.Format(*logFormat),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging configuration: %v\n", err)
		os.Exit(2)
	}

	ctx := logger.WithContext(context.Background(), log)

	// Startup aborts if the export cannot be loaded.
	txStore, err := store.Open(ctx, source.NewFetcher(), *src, time.Now)
	if err != nil {
		log.Fatal().Err(err).Str("source", *src).Msg("Failed to load SMS export")
	}
	log.Info().Str("source", *src).Int("transactions", txStore.Len()).Msg("SMS export loaded")

	creds, err := middleware.NewCredentials(*user, *password)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare credentials")
	}

	server := &http.Server{
		Addr:         *addr,
		Handler:      newRouter(txStore, creds, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", *addr).Str("user", *user).Msgf("Running on http://%s", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// newRouter puts every path, /health and preflights included, behind basic
// auth. Paths are dispatched as received, without ServeMux cleaning.
func newRouter(s handlers.TransactionStore, creds *middleware.Credentials, log zerolog.Logger) http.Handler {
	transactions := handlers.NewTransactionsHandler(s, log)

	routes := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			handlers.Health(w, r)
			return
		}
		transactions.ServeHTTP(w, r)
	})

	return middleware.RequestID(
		middleware.Logger(log)(
			middleware.Recovery(log)(
				middleware.BasicAuth(creds)(
					middleware.CORS(routes),
				),
			),
		),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
