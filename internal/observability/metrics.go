package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Job metrics
	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tts_pipeline_active_jobs",
		Help: "Number of synthesis jobs currently running",
	})

	totalJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_pipeline_jobs_total",
		Help: "Total number of synthesis jobs processed",
	}, []string{"status"})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_pipeline_job_duration_seconds",
		Help:    "End-to-end duration of synthesis jobs in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	chunksPerJob = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_pipeline_chunks_per_job",
		Help:    "Number of chunks a job was split into",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})

	// Synthesis request metrics
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_pipeline_synthesis_requests_total",
		Help: "Total number of provider synthesis requests",
	}, []string{"provider", "status"})

	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_pipeline_synthesis_latency_seconds",
		Help:    "Provider synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Scheduler metrics
	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_pipeline_batch_duration_seconds",
		Help:    "Duration of one scheduler batch in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_pipeline_retries_total",
		Help: "Total number of rate-limited chunks re-queued for retry",
	})

	rateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_pipeline_rate_limit_hits_total",
		Help: "Total number of rate-limit responses from the provider",
	})

	cooldownWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_pipeline_cooldown_waits_total",
		Help: "Total number of quota cooldown waits between batches",
	})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tts_pipeline_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"provider"})

	// Output metrics
	audioBytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_pipeline_audio_bytes_total",
		Help: "Total synthesized audio bytes returned to callers",
	})
)

// RecordJobStart marks a synthesis job as running.
func RecordJobStart(chunkCount int) {
	activeJobs.Inc()
	chunksPerJob.Observe(float64(chunkCount))
}

// RecordJobEnd marks a synthesis job as finished.
func RecordJobEnd(success bool, elapsed time.Duration) {
	activeJobs.Dec()
	jobDuration.Observe(elapsed.Seconds())

	status := "success"
	if !success {
		status = "error"
	}
	totalJobs.WithLabelValues(status).Inc()
}

// RecordSynthesis records the outcome of one provider request.
func RecordSynthesis(provider, status string, latency time.Duration) {
	synthesisRequests.WithLabelValues(provider, status).Inc()
	synthesisLatency.Observe(latency.Seconds())
}

// RecordBatch records the duration of one scheduler batch.
func RecordBatch(elapsed time.Duration) {
	batchDuration.Observe(elapsed.Seconds())
}

// RecordRetry records a rate-limited chunk being re-queued.
func RecordRetry() {
	retriesTotal.Inc()
}

// RecordRateLimit records a rate-limit response from the provider.
func RecordRateLimit() {
	rateLimitHits.Inc()
}

// RecordCooldown records a quota cooldown wait between batches.
func RecordCooldown() {
	cooldownWaits.Inc()
}

// RecordAudioBytes records synthesized bytes returned to a caller.
func RecordAudioBytes(n int) {
	audioBytesOut.Add(float64(n))
}

// UpdateCircuitBreakerState updates the breaker state gauge.
func UpdateCircuitBreakerState(provider string, state int) {
	circuitBreakerState.WithLabelValues(provider).Set(float64(state))
}
