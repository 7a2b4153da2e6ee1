// Package pipeline wires segmentation, chunking, scheduled synthesis,
// and reassembly into one text-to-audio job.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kvn8888/AzureGoogleTTS/internal/audio"
	"github.com/kvn8888/AzureGoogleTTS/internal/observability"
	"github.com/kvn8888/AzureGoogleTTS/internal/scheduler"
	"github.com/kvn8888/AzureGoogleTTS/internal/synthesis"
	"github.com/kvn8888/AzureGoogleTTS/internal/text"
)

// ErrEmptyInput is returned for empty or whitespace-only request text.
var ErrEmptyInput = errors.New("input text is empty")

// Output is the result of one synthesis job.
type Output struct {
	JobID           string
	Audio           []byte
	ChunkCount      int
	ChunksProcessed int
	FailedCount     int
	Elapsed         time.Duration
}

// Pipeline converts long text into one ordered audio stream.
type Pipeline struct {
	scheduler      *scheduler.Scheduler
	maxChunkLength int
}

// New creates a pipeline over the given provider client and plan.
func New(client synthesis.Client, plan scheduler.Plan, maxChunkLength int) *Pipeline {
	if maxChunkLength <= 0 {
		maxChunkLength = text.DefaultMaxChunkLength
	}
	return &Pipeline{
		scheduler:      scheduler.New(client, plan),
		maxChunkLength: maxChunkLength,
	}
}

// Run validates, chunks, synthesizes, and reassembles rawText. The
// caller's context bounds the whole job: when it ends, in-flight chunks
// are abandoned and the job fails rather than returning partial audio.
func (p *Pipeline) Run(ctx context.Context, rawText string, voice synthesis.VoiceConfig, obs scheduler.Observer) (*Output, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, ErrEmptyInput
	}

	jobID := observability.NewJobID()
	logger := observability.WithJobID(jobID)
	start := time.Now()

	chunks := text.BuildChunksFromText(rawText, p.maxChunkLength)
	logger.Info().
		Int("input_chars", len(rawText)).
		Int("chunks", len(chunks)).
		Str("voice", voice.VoiceName).
		Msg("Synthesis job accepted")

	observability.RecordJobStart(len(chunks))

	result, err := p.scheduler.Run(ctx, chunks, voice, obs)
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordJobEnd(false, elapsed)
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("Synthesis job failed")
		return nil, err
	}

	stream, meta := audio.Assemble(result.Segments)
	observability.RecordJobEnd(true, elapsed)
	observability.RecordAudioBytes(len(stream))

	logger.Info().
		Int("chunks_processed", meta.ChunksProcessed).
		Int("chunks_failed", meta.FailedCount).
		Int("audio_bytes", len(stream)).
		Dur("elapsed", elapsed).
		Msg("Synthesis job complete")

	return &Output{
		JobID:           jobID,
		Audio:           stream,
		ChunkCount:      len(chunks),
		ChunksProcessed: meta.ChunksProcessed,
		FailedCount:     meta.FailedCount,
		Elapsed:         elapsed,
	}, nil
}
