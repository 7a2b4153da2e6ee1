// Package server exposes the synthesis pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kvn8888/AzureGoogleTTS/internal/config"
	"github.com/kvn8888/AzureGoogleTTS/internal/observability"
	"github.com/kvn8888/AzureGoogleTTS/internal/pipeline"
	"github.com/kvn8888/AzureGoogleTTS/internal/scheduler"
	"github.com/kvn8888/AzureGoogleTTS/internal/synthesis"
)

// Server routes synthesis requests to the pipeline.
type Server struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	logger   zerolog.Logger
}

// New creates a server over the given pipeline.
func New(cfg *config.Config, p *pipeline.Pipeline) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: p,
		logger:   observability.GetLogger(),
	}
}

// Routes builds the service mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/synthesize", s.handleSynthesize)
	mux.HandleFunc("/synthesize/stream", s.handleSynthesizeStream)
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		s.cfg.Provider: s.providerCheck(),
	}))
	if s.cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

// providerCheck validates provider configuration without spending a
// billable synthesis call.
func (s *Server) providerCheck() observability.HealthCheckFunc {
	return func(ctx context.Context) (bool, error) {
		if err := s.cfg.Validate(); err != nil {
			return false, err
		}
		return true, nil
	}
}

// synthesizeRequest is the JSON request body. A raw text/plain body is
// accepted as a fallback.
type synthesizeRequest struct {
	Text  string         `json:"text"`
	Voice *voiceOverride `json:"voice,omitempty"`
}

type voiceOverride struct {
	LanguageCode  string  `json:"languageCode,omitempty"`
	Name          string  `json:"name,omitempty"`
	AudioEncoding string  `json:"audioEncoding,omitempty"`
	SpeakingRate  float64 `json:"speakingRate,omitempty"`
}

// voiceFor merges per-request overrides over the configured defaults.
func (s *Server) voiceFor(override *voiceOverride) synthesis.VoiceConfig {
	voice := synthesis.VoiceConfig{
		LanguageCode:  s.cfg.VoiceLanguage,
		VoiceName:     s.cfg.VoiceName,
		AudioEncoding: s.cfg.AudioEncoding,
		SpeakingRate:  s.cfg.SpeakingRate,
	}
	if override == nil {
		return voice
	}
	if override.LanguageCode != "" {
		voice.LanguageCode = override.LanguageCode
	}
	if override.Name != "" {
		voice.VoiceName = override.Name
	}
	if override.AudioEncoding != "" {
		voice.AudioEncoding = override.AudioEncoding
	}
	if override.SpeakingRate > 0 {
		voice.SpeakingRate = override.SpeakingRate
	}
	return voice
}

// parseRequest reads the synthesis request from a JSON or plain-text body.
func parseRequest(r *http.Request) (*synthesizeRequest, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var req synthesizeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		return &req, nil
	}

	return &synthesizeRequest{Text: string(body)}, nil
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := parseRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	voice := s.voiceFor(req.Voice)
	obs := scheduler.ObserverFunc(func(p scheduler.Progress) {
		s.logger.Info().
			Int("processed", p.Processed).
			Int("total", p.Total).
			Int("failed", p.Failed).
			Dur("remaining_estimate", p.EstimatedRemaining).
			Msg(p.Status)
	})

	out, err := s.pipeline.Run(r.Context(), req.Text, voice, obs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", synthesis.ContentTypeFor(voice.AudioEncoding))
	w.Header().Set("X-Job-ID", out.JobID)
	w.Header().Set("X-Chunks-Processed", strconv.Itoa(out.ChunksProcessed))
	w.Header().Set("X-Chunks-Failed", strconv.Itoa(out.FailedCount))
	w.WriteHeader(http.StatusOK)
	w.Write(out.Audio)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var thresholdErr *scheduler.ThresholdError

	switch {
	case errors.Is(err, pipeline.ErrEmptyInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &thresholdErr):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "synthesis job timed out", http.StatusGatewayTimeout)
	default:
		s.logger.Error().Err(err).Msg("Synthesis request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
