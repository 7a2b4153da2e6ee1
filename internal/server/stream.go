package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/kvn8888/AzureGoogleTTS/internal/pipeline"
	"github.com/kvn8888/AzureGoogleTTS/internal/scheduler"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The service sits behind the web frontend's reverse proxy;
		// origin policy is enforced there.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// progressEvent is one JSON frame on the progress stream.
type progressEvent struct {
	Event              string  `json:"event"` // "progress", "done", "error"
	Processed          int     `json:"processed,omitempty"`
	Total              int     `json:"total,omitempty"`
	Failed             int     `json:"failed,omitempty"`
	Status             string  `json:"status,omitempty"`
	EstimatedRemaining float64 `json:"estimatedRemainingMinutes,omitempty"`
	JobID              string  `json:"jobId,omitempty"`
	Error              string  `json:"error,omitempty"`
}

// handleSynthesizeStream runs a synthesis job over a WebSocket: the first
// client frame carries the request, the server answers with progress
// frames at batch boundaries, one binary frame with the audio, and a
// final done frame.
func (s *Server) handleSynthesizeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	var req synthesizeRequest
	if err := conn.ReadJSON(&req); err != nil {
		conn.WriteJSON(progressEvent{Event: "error", Error: "invalid request frame"})
		return
	}

	voice := s.voiceFor(req.Voice)

	// The observer runs on the scheduler's goroutine, so frames are
	// written in order without extra locking.
	obs := scheduler.ObserverFunc(func(p scheduler.Progress) {
		conn.WriteJSON(progressEvent{
			Event:              "progress",
			Processed:          p.Processed,
			Total:              p.Total,
			Failed:             p.Failed,
			Status:             p.Status,
			EstimatedRemaining: p.EstimatedRemaining.Minutes(),
		})
	})

	out, err := s.pipeline.Run(r.Context(), req.Text, voice, obs)
	if err != nil {
		if !errors.Is(err, pipeline.ErrEmptyInput) {
			s.logger.Error().Err(err).Msg("Streamed synthesis failed")
		}
		conn.WriteJSON(progressEvent{Event: "error", Error: err.Error()})
		return
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, out.Audio); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write audio frame")
		return
	}
	conn.WriteJSON(progressEvent{
		Event:     "done",
		JobID:     out.JobID,
		Processed: out.ChunksProcessed,
		Total:     out.ChunkCount,
		Failed:    out.FailedCount,
	})
}
