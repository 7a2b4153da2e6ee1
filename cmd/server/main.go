package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kvn8888/AzureGoogleTTS/internal/config"
	"github.com/kvn8888/AzureGoogleTTS/internal/observability"
	"github.com/kvn8888/AzureGoogleTTS/internal/pipeline"
	"github.com/kvn8888/AzureGoogleTTS/internal/resilience"
	"github.com/kvn8888/AzureGoogleTTS/internal/scheduler"
	"github.com/kvn8888/AzureGoogleTTS/internal/server"
	"github.com/kvn8888/AzureGoogleTTS/internal/synthesis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("provider", cfg.Provider).
		Int("max_chunk_length", cfg.MaxChunkLength).
		Int("max_concurrent", cfg.MaxConcurrent).
		Int("max_requests_per_minute", cfg.MaxRequestsPerMinute).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Synthesis service starting")

	client := buildClient(cfg)
	plan := scheduler.Plan{
		MaxConcurrent:        cfg.MaxConcurrent,
		MaxRequestsPerMinute: cfg.MaxRequestsPerMinute,
		InitialRetryDelay:    cfg.InitialRetryDelay(),
		MaxRetries:           cfg.MaxRetries,
		FailureRatioCeiling:  cfg.FailureRatioCeiling,
	}
	p := pipeline.New(client, plan, cfg.MaxChunkLength)
	srv := server.New(cfg, p)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     srv.Routes(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: large documents legitimately synthesize for
		// many minutes under quota pacing.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/synthesize", cfg.Port)).
			Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server stopped")
}

// buildClient constructs the configured provider client, optionally
// wrapped in a circuit breaker.
func buildClient(cfg *config.Config) synthesis.Client {
	timeout := time.Duration(cfg.SynthesisTimeout) * time.Second

	var client synthesis.Client
	switch cfg.Provider {
	case "azure":
		client = synthesis.NewAzureClient(cfg.AzureSpeechKey, cfg.AzureSpeechRegion, timeout)
	default:
		client = synthesis.NewGoogleClient(cfg.GoogleAPIKey, timeout)
	}

	if cfg.CircuitBreakerEnabled {
		breaker := resilience.NewCircuitBreaker(
			client.Name(),
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		)
		client = synthesis.NewBreakerClient(client, breaker)
	}

	return client
}
