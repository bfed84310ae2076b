// Package metrics provides Prometheus metrics for the summary
// automation pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// taskTotal records finished pipeline tasks.
	// Labels:
	//   - trigger: how the task started ("api", "webhook", "sweep")
	//   - status: terminal state ("completed", "failed")
	taskTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_tasks_total",
			Help: "Total number of finished pipeline tasks",
		},
		[]string{"trigger", "status"},
	)

	// stageDuration records per-stage latency.
	// Labels:
	//   - stage: pipeline stage ("resolve", "summarize", "deliver")
	// Buckets cover sub-second local scans through multi-minute
	// summarization calls.
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		},
		[]string{"stage"},
	)

	// resolutionTotal records where the recording was found.
	// Labels:
	//   - source: "local_exact", "local_fallback", "remote", "none"
	resolutionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_recording_resolutions_total",
			Help: "Total number of recording resolution attempts by source",
		},
		[]string{"source"},
	)

	// tokenExchangeTotal records credential acquisitions.
	// Labels:
	//   - strategy: "self_signed" or "oauth_exchange"
	//   - status: "success" or "failed"
	tokenExchangeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zoom_token_acquisitions_total",
			Help: "Total number of Zoom credential acquisitions",
		},
		[]string{"strategy", "status"},
	)

	// sweepMeetingsTotal records sweep outcomes per meeting.
	// Labels:
	//   - outcome: "processed", "skipped_processed", "skipped_no_recording",
	//     "skipped_no_room", "failed"
	sweepMeetingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_meetings_total",
			Help: "Total number of meetings examined by the automatic sweep",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(taskTotal)
	prometheus.MustRegister(stageDuration)
	prometheus.MustRegister(resolutionTotal)
	prometheus.MustRegister(tokenExchangeTotal)
	prometheus.MustRegister(sweepMeetingsTotal)
}

// RecordTask records a finished task with its trigger and terminal
// status.
func RecordTask(trigger, status string) {
	taskTotal.WithLabelValues(trigger, status).Inc()
}

// RecordStageDuration records the duration of one pipeline stage.
func RecordStageDuration(stage string, seconds float64) {
	stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordResolution records which source satisfied a recording lookup.
func RecordResolution(source string) {
	resolutionTotal.WithLabelValues(source).Inc()
}

// RecordTokenAcquisition records a credential acquisition attempt.
func RecordTokenAcquisition(strategy, status string) {
	tokenExchangeTotal.WithLabelValues(strategy, status).Inc()
}

// RecordSweepMeeting records the outcome of one meeting in a sweep.
func RecordSweepMeeting(outcome string) {
	sweepMeetingsTotal.WithLabelValues(outcome).Inc()
}
