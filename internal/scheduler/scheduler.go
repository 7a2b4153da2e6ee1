package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kvn8888/AzureGoogleTTS/internal/observability"
	"github.com/kvn8888/AzureGoogleTTS/internal/resilience"
	"github.com/kvn8888/AzureGoogleTTS/internal/synthesis"
	"github.com/kvn8888/AzureGoogleTTS/internal/text"
)

// staggerMargin inflates the per-slot launch delay by 10% so a batch
// never bursts right up against the provider's per-minute quota.
const staggerMargin = 1.1

// maxErrorSamples bounds how many per-chunk messages an aggregated
// threshold error carries.
const maxErrorSamples = 5

// Plan bounds one batch run. Immutable for the duration of the run.
type Plan struct {
	MaxConcurrent        int
	MaxRequestsPerMinute int
	InitialRetryDelay    time.Duration
	MaxRetries           int
	FailureRatioCeiling  float64
}

// DefaultPlan returns the provider-safe defaults.
func DefaultPlan() Plan {
	return Plan{
		MaxConcurrent:        10,
		MaxRequestsPerMinute: 100,
		InitialRetryDelay:    time.Second,
		MaxRetries:           3,
		FailureRatioCeiling:  0.10,
	}
}

// Progress is a snapshot reported at batch boundaries and before
// cooldown waits.
type Progress struct {
	Processed          int
	Total              int
	Failed             int
	Status             string
	EstimatedRemaining time.Duration
}

// Observer consumes progress snapshots. Callbacks run on the scheduler's
// goroutine, in order.
type Observer interface {
	OnProgress(Progress)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Progress)

// OnProgress implements Observer.
func (f ObserverFunc) OnProgress(p Progress) { f(p) }

// Result holds the ordered per-chunk audio. A nil slot marks a chunk
// that failed permanently within the tolerated ratio.
type Result struct {
	Segments        [][]byte
	ChunksProcessed int
	FailedCount     int
}

// ThresholdError is the aggregate failure returned when too large a
// fraction of chunks failed permanently.
type ThresholdError struct {
	Failed  int
	Total   int
	Samples []string
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("%d of %d chunks failed permanently: %s",
		e.Failed, e.Total, strings.Join(e.Samples, "; "))
}

// Scheduler executes synthesis jobs for many chunks under a concurrency
// cap and a requests-per-minute budget, retrying rate-limited chunks
// with exponential backoff.
type Scheduler struct {
	client synthesis.Client
	plan   Plan
	logger zerolog.Logger
}

// New creates a scheduler for the given provider client and plan.
func New(client synthesis.Client, plan Plan) *Scheduler {
	return &Scheduler{
		client: client,
		plan:   plan,
		logger: observability.GetLogger(),
	}
}

type chunkFailure struct {
	index int
	err   error
}

// runState is shared by the jobs of one run. Each job owns its own
// segment slot; the mutex guards only the counters and failure list.
type runState struct {
	mu       sync.Mutex
	segments [][]byte
	failures []chunkFailure
	done     int
}

// Run synthesizes all chunks and returns their audio in original chunk
// order. Completion order of individual jobs is unconstrained; slot
// order is not.
func (s *Scheduler) Run(ctx context.Context, chunks []text.Chunk, voice synthesis.VoiceConfig, obs Observer) (*Result, error) {
	total := len(chunks)
	state := &runState{segments: make([][]byte, total)}
	if total == 0 {
		return &Result{Segments: state.segments}, nil
	}

	jobID := uuid.New().String()
	logger := s.logger.With().Str("job_id", jobID).Logger()

	batchSize := s.batchSize()
	stagger := s.stagger()
	batchCount := (total + batchSize - 1) / batchSize

	logger.Info().
		Int("chunks", total).
		Int("batch_size", batchSize).
		Int("batches", batchCount).
		Dur("stagger", stagger).
		Msg("Starting batch synthesis")

	report := func(status string, remaining time.Duration) {
		if obs == nil {
			return
		}
		state.mu.Lock()
		p := Progress{
			Processed:          state.done,
			Total:              total,
			Failed:             len(state.failures),
			Status:             status,
			EstimatedRemaining: remaining,
		}
		state.mu.Unlock()
		obs.OnProgress(p)
	}

	report("starting synthesis", s.estimate(batchCount, 0))

	windowStart := time.Now()
	issuedInWindow := 0
	var lastBatch time.Duration

	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]
		batchNum := start/batchSize + 1

		batchStart := time.Now()
		var wg sync.WaitGroup
		for slot, chunk := range batch {
			wg.Add(1)
			go func(slot int, chunk text.Chunk) {
				defer wg.Done()
				// Fixed per-slot offset; retried jobs sleep only their
				// own backoff, not a new stagger slot.
				if sleepCtx(ctx, time.Duration(slot)*stagger) != nil {
					return
				}
				s.runJob(ctx, logger, chunk, voice, state)
			}(slot, chunk)
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			// In-flight work is abandoned; a deadline is a job-level
			// failure, never a partial result.
			return nil, fmt.Errorf("synthesis job aborted: %w", err)
		}

		lastBatch = time.Since(batchStart)
		observability.RecordBatch(lastBatch)
		issuedInWindow += len(batch)
		remainingBatches := batchCount - batchNum

		report(fmt.Sprintf("batch %d/%d complete", batchNum, batchCount),
			s.estimate(remainingBatches, lastBatch))

		if remainingBatches == 0 {
			break
		}
		nextBatch := batchSize
		if rest := total - end; rest < nextBatch {
			nextBatch = rest
		}
		if wait := s.quotaCooldown(issuedInWindow, nextBatch, windowStart, time.Now()); wait > 0 {
			observability.RecordCooldown()
			logger.Info().Dur("wait", wait).Msg("Request quota reached, cooling down")
			report("waiting out request quota window", s.estimate(remainingBatches, lastBatch))
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, fmt.Errorf("synthesis job aborted: %w", err)
			}
			windowStart = time.Now()
			issuedInWindow = 0
		}
	}

	failed := len(state.failures)
	if float64(failed)/float64(total) > s.plan.FailureRatioCeiling {
		samples := make([]string, 0, maxErrorSamples)
		for _, f := range state.failures {
			if len(samples) == maxErrorSamples {
				break
			}
			samples = append(samples, fmt.Sprintf("chunk %d: %v", f.index, f.err))
		}
		logger.Error().Int("failed", failed).Int("total", total).Msg("Failure ratio ceiling exceeded")
		return nil, &ThresholdError{Failed: failed, Total: total, Samples: samples}
	}

	report("synthesis complete", 0)
	logger.Info().Int("failed", failed).Int("total", total).Msg("Batch synthesis complete")

	return &Result{
		Segments:        state.segments,
		ChunksProcessed: total - failed,
		FailedCount:     failed,
	}, nil
}

// runJob drives one chunk to a terminal state: success, exhausted
// retries, or a non-retryable failure.
func (s *Scheduler) runJob(ctx context.Context, logger zerolog.Logger, chunk text.Chunk, voice synthesis.VoiceConfig, state *runState) {
	var lastErr error

	for attempt := 0; attempt <= s.plan.MaxRetries; attempt++ {
		start := time.Now()
		audio, err := s.client.Synthesize(ctx, chunk.Text, voice)
		latency := time.Since(start)

		if err == nil {
			observability.RecordSynthesis(s.client.Name(), "success", latency)
			state.mu.Lock()
			state.segments[chunk.Index] = audio
			state.done++
			state.mu.Unlock()
			return
		}

		lastErr = err
		if ctx.Err() != nil {
			// Abandoned; the run loop reports the deadline.
			return
		}

		if !synthesis.IsRateLimited(err) {
			observability.RecordSynthesis(s.client.Name(), "error", latency)
			logger.Warn().Err(err).Int("chunk", chunk.Index).Msg("Chunk failed permanently")
			break
		}

		observability.RecordSynthesis(s.client.Name(), "rate_limited", latency)
		observability.RecordRateLimit()
		if attempt == s.plan.MaxRetries {
			logger.Warn().Err(err).Int("chunk", chunk.Index).Msg("Chunk exhausted retries")
			break
		}

		delay := resilience.Backoff(attempt, s.plan.InitialRetryDelay, resilience.DefaultMaxBackoff, 2.0)
		observability.RecordRetry()
		logger.Debug().
			Int("chunk", chunk.Index).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Rate limited, re-queueing chunk")
		if sleepCtx(ctx, delay) != nil {
			return
		}
	}

	state.mu.Lock()
	state.failures = append(state.failures, chunkFailure{index: chunk.Index, err: lastErr})
	state.done++
	state.mu.Unlock()
}

// batchSize caps in-flight calls at MaxConcurrent without ever letting a
// single batch exceed the per-minute quota.
func (s *Scheduler) batchSize() int {
	size := s.plan.MaxConcurrent
	if s.plan.MaxRequestsPerMinute < size {
		size = s.plan.MaxRequestsPerMinute
	}
	if size < 1 {
		size = 1
	}
	return size
}

// stagger is the fixed per-slot launch offset within a batch.
func (s *Scheduler) stagger() time.Duration {
	rpm := s.plan.MaxRequestsPerMinute
	if rpm < 1 {
		rpm = 1
	}
	return time.Duration(float64(time.Minute) / float64(rpm) * staggerMargin)
}

// quotaCooldown returns how long to wait before the next batch, given
// how many requests this minute window has already issued.
func (s *Scheduler) quotaCooldown(issued, nextBatch int, windowStart, now time.Time) time.Duration {
	if issued+nextBatch <= s.plan.MaxRequestsPerMinute {
		return 0
	}
	wait := time.Minute - now.Sub(windowStart)
	if wait < 0 {
		wait = 0
	}
	return wait
}

// estimate projects the remaining runtime from the batch count still to
// run. Before any batch has finished it assumes each slot costs one
// stagger interval; when the quota is saturated a batch costs the whole
// minute window.
func (s *Scheduler) estimate(remainingBatches int, observed time.Duration) time.Duration {
	if remainingBatches <= 0 {
		return 0
	}
	per := observed
	if per == 0 {
		per = time.Duration(s.batchSize()) * s.stagger()
	}
	if s.batchSize() >= s.plan.MaxRequestsPerMinute && per < time.Minute {
		per = time.Minute
	}
	return time.Duration(remainingBatches) * per
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
