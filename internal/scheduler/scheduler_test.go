package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kvn8888/AzureGoogleTTS/internal/synthesis"
	"github.com/kvn8888/AzureGoogleTTS/internal/text"
)

// fakeClient counts in-flight calls and lets tests script per-attempt
// responses by chunk text.
type fakeClient struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	attempts    map[string]int
	delay       time.Duration
	respond     func(text string, attempt int) ([]byte, error)
}

func newFakeClient() *fakeClient {
	return &fakeClient{attempts: make(map[string]int)}
}

func (f *fakeClient) Synthesize(ctx context.Context, chunkText string, voice synthesis.VoiceConfig) ([]byte, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.attempts[chunkText]++
	attempt := f.attempts[chunkText]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(chunkText, attempt)
	}
	return []byte("audio:" + chunkText), nil
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) attemptsFor(chunkText string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[chunkText]
}

// fastPlan keeps stagger and backoff delays negligible for tests.
func fastPlan() Plan {
	return Plan{
		MaxConcurrent:        10,
		MaxRequestsPerMinute: 600000,
		InitialRetryDelay:    time.Millisecond,
		MaxRetries:           3,
		FailureRatioCeiling:  0.10,
	}
}

func makeChunks(n int) []text.Chunk {
	chunks := make([]text.Chunk, n)
	for i := range chunks {
		chunks[i] = text.Chunk{Index: i, Text: fmt.Sprintf("chunk-%d", i)}
	}
	return chunks
}

func TestRun_ResultsInOriginalOrder(t *testing.T) {
	client := newFakeClient()
	s := New(client, fastPlan())

	chunks := makeChunks(25)
	result, err := s.Run(context.Background(), chunks, synthesis.VoiceConfig{}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Segments) != 25 {
		t.Fatalf("Expected 25 segments, got %d", len(result.Segments))
	}
	for i, seg := range result.Segments {
		want := fmt.Sprintf("audio:chunk-%d", i)
		if string(seg) != want {
			t.Errorf("Segment %d = %q, want %q", i, seg, want)
		}
	}
	if result.ChunksProcessed != 25 || result.FailedCount != 0 {
		t.Errorf("Expected 25 processed / 0 failed, got %d / %d",
			result.ChunksProcessed, result.FailedCount)
	}
}

func TestRun_ConcurrencyCap(t *testing.T) {
	client := newFakeClient()
	client.delay = 5 * time.Millisecond

	plan := fastPlan()
	plan.MaxConcurrent = 5
	s := New(client, plan)

	if _, err := s.Run(context.Background(), makeChunks(30), synthesis.VoiceConfig{}, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if client.maxInFlight > 5 {
		t.Errorf("Observed %d concurrent calls, cap is 5", client.maxInFlight)
	}
}

func TestRun_RateLimitRetriesThenSucceeds(t *testing.T) {
	client := newFakeClient()
	client.respond = func(chunkText string, attempt int) ([]byte, error) {
		if attempt <= 2 {
			return nil, synthesis.NewRateLimited("fake", errors.New("throttled"))
		}
		return []byte("ok"), nil
	}
	s := New(client, fastPlan())

	result, err := s.Run(context.Background(), makeChunks(1), synthesis.VoiceConfig{}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.FailedCount != 0 {
		t.Errorf("Expected no failures, got %d", result.FailedCount)
	}
	if got := client.attemptsFor("chunk-0"); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestRun_RateLimitExhaustsRetriesWithBackoff(t *testing.T) {
	client := newFakeClient()
	client.respond = func(chunkText string, attempt int) ([]byte, error) {
		return nil, synthesis.NewRateLimited("fake", errors.New("throttled"))
	}

	plan := fastPlan()
	plan.InitialRetryDelay = 4 * time.Millisecond
	plan.MaxRetries = 3
	plan.FailureRatioCeiling = 0 // one failed chunk fails the run
	s := New(client, plan)

	start := time.Now()
	_, err := s.Run(context.Background(), makeChunks(1), synthesis.VoiceConfig{}, nil)
	elapsed := time.Since(start)

	var thresholdErr *ThresholdError
	if !errors.As(err, &thresholdErr) {
		t.Fatalf("Expected ThresholdError, got %v", err)
	}

	// Initial attempt plus exactly MaxRetries retries.
	if got := client.attemptsFor("chunk-0"); got != 4 {
		t.Errorf("Expected 4 attempts, got %d", got)
	}

	// Backoff delays: 4ms + 8ms + 16ms.
	if min := 28 * time.Millisecond; elapsed < min {
		t.Errorf("Expected at least %v of backoff, elapsed %v", min, elapsed)
	}
}

func TestRun_NonRetryableFailsImmediately(t *testing.T) {
	client := newFakeClient()
	client.respond = func(chunkText string, attempt int) ([]byte, error) {
		if chunkText == "chunk-1" {
			return nil, synthesis.NewFailed("fake", errors.New("bad input"))
		}
		return []byte("ok"), nil
	}

	plan := fastPlan()
	plan.FailureRatioCeiling = 0.5
	s := New(client, plan)

	result, err := s.Run(context.Background(), makeChunks(4), synthesis.VoiceConfig{}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := client.attemptsFor("chunk-1"); got != 1 {
		t.Errorf("Non-retryable failure was attempted %d times, want 1", got)
	}
	if result.FailedCount != 1 {
		t.Errorf("Expected 1 failed chunk, got %d", result.FailedCount)
	}
	if result.Segments[1] != nil {
		t.Errorf("Expected nil segment for failed chunk, got %q", result.Segments[1])
	}
}

func TestRun_FailureCeilingExceeded(t *testing.T) {
	// 3 of 20 chunks fail permanently; 0.15 > 0.10 fails the whole run.
	client := newFakeClient()
	client.respond = func(chunkText string, attempt int) ([]byte, error) {
		switch chunkText {
		case "chunk-3", "chunk-7", "chunk-12":
			return nil, synthesis.NewFailed("fake", errors.New("provider rejected chunk"))
		}
		return []byte("ok"), nil
	}
	s := New(client, fastPlan())

	_, err := s.Run(context.Background(), makeChunks(20), synthesis.VoiceConfig{}, nil)

	var thresholdErr *ThresholdError
	if !errors.As(err, &thresholdErr) {
		t.Fatalf("Expected ThresholdError, got %v", err)
	}
	if thresholdErr.Failed != 3 || thresholdErr.Total != 20 {
		t.Errorf("Expected 3/20 in error, got %d/%d", thresholdErr.Failed, thresholdErr.Total)
	}
	if len(thresholdErr.Samples) == 0 || len(thresholdErr.Samples) > maxErrorSamples {
		t.Errorf("Expected 1..%d samples, got %d", maxErrorSamples, len(thresholdErr.Samples))
	}
	if !strings.Contains(thresholdErr.Error(), "provider rejected chunk") {
		t.Errorf("Aggregated error missing per-chunk message: %v", thresholdErr)
	}
}

func TestRun_FailuresWithinCeilingProduceEmptyMarkers(t *testing.T) {
	// 2 of 20 failed chunks (0.10) is within the ceiling.
	client := newFakeClient()
	client.respond = func(chunkText string, attempt int) ([]byte, error) {
		if chunkText == "chunk-0" || chunkText == "chunk-19" {
			return nil, synthesis.NewFailed("fake", errors.New("boom"))
		}
		return []byte("audio:" + chunkText), nil
	}
	s := New(client, fastPlan())

	result, err := s.Run(context.Background(), makeChunks(20), synthesis.VoiceConfig{}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.ChunksProcessed != 18 || result.FailedCount != 2 {
		t.Errorf("Expected 18 processed / 2 failed, got %d / %d",
			result.ChunksProcessed, result.FailedCount)
	}
	if result.Segments[0] != nil || result.Segments[19] != nil {
		t.Error("Expected nil markers at failed indices")
	}
	if result.Segments[5] == nil {
		t.Error("Expected audio at successful index")
	}
}

func TestRun_ProgressReports(t *testing.T) {
	client := newFakeClient()
	s := New(client, fastPlan())

	var progress []Progress
	obs := ObserverFunc(func(p Progress) { progress = append(progress, p) })

	if _, err := s.Run(context.Background(), makeChunks(25), synthesis.VoiceConfig{}, obs); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Initial report, one per batch (25 chunks / batch of 10 = 3), final.
	if len(progress) != 5 {
		t.Fatalf("Expected 5 progress reports, got %d: %v", len(progress), progress)
	}
	if progress[0].Processed != 0 || progress[0].Total != 25 {
		t.Errorf("Unexpected initial report: %+v", progress[0])
	}
	if !strings.Contains(progress[1].Status, "batch 1/3") {
		t.Errorf("Unexpected first batch status: %q", progress[1].Status)
	}
	final := progress[len(progress)-1]
	if final.Processed != 25 || final.Failed != 0 {
		t.Errorf("Unexpected final report: %+v", final)
	}
	for _, p := range progress {
		if strings.Contains(p.Status, "quota") {
			t.Errorf("Unexpected cooldown with unsaturated quota: %q", p.Status)
		}
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	client := newFakeClient()
	client.delay = 50 * time.Millisecond
	s := New(client, fastPlan())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Run(ctx, makeChunks(5), synthesis.VoiceConfig{}, nil)
	if err == nil {
		t.Fatal("Expected error after context deadline, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
}

func TestRun_EmptyChunkList(t *testing.T) {
	s := New(newFakeClient(), fastPlan())

	result, err := s.Run(context.Background(), nil, synthesis.VoiceConfig{}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Segments) != 0 {
		t.Errorf("Expected empty result, got %d segments", len(result.Segments))
	}
}

func TestBatchSize(t *testing.T) {
	s := New(newFakeClient(), Plan{MaxConcurrent: 10, MaxRequestsPerMinute: 4})
	if got := s.batchSize(); got != 4 {
		t.Errorf("Expected batch size 4 (quota-bound), got %d", got)
	}

	s = New(newFakeClient(), Plan{MaxConcurrent: 3, MaxRequestsPerMinute: 100})
	if got := s.batchSize(); got != 3 {
		t.Errorf("Expected batch size 3 (concurrency-bound), got %d", got)
	}
}

func TestStagger(t *testing.T) {
	s := New(newFakeClient(), Plan{MaxConcurrent: 10, MaxRequestsPerMinute: 100})

	// 60000ms / 100 rpm * 1.1 margin = 660ms per slot.
	if got := s.stagger(); got != 660*time.Millisecond {
		t.Errorf("Expected 660ms stagger, got %v", got)
	}
}

func TestQuotaCooldown(t *testing.T) {
	s := New(newFakeClient(), Plan{MaxConcurrent: 10, MaxRequestsPerMinute: 20})
	windowStart := time.Now()

	// Next batch still fits: no wait.
	if got := s.quotaCooldown(10, 10, windowStart, windowStart.Add(5*time.Second)); got != 0 {
		t.Errorf("Expected no cooldown, got %v", got)
	}

	// Quota consumed: wait out the remainder of the minute.
	got := s.quotaCooldown(20, 10, windowStart, windowStart.Add(15*time.Second))
	if got != 45*time.Second {
		t.Errorf("Expected 45s cooldown, got %v", got)
	}

	// Window already elapsed: no wait.
	if got := s.quotaCooldown(20, 10, windowStart, windowStart.Add(2*time.Minute)); got != 0 {
		t.Errorf("Expected no cooldown after window elapsed, got %v", got)
	}
}
