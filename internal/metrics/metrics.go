// Package metrics provides the Prometheus metrics exported at /metrics:
// an active-session gauge, restart/backoff counters for both encoder
// supervisor paths (C1 in-process and C7 fallback), admission reject
// counters, and scheduler fire counters. No label carries a session id,
// trigger id, or other unbounded-cardinality value.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveSessions is the current count of sessions in {starting, running,
	// recovering}. Set by whatever polls store.SessionStore.CountActive.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamctl_active_sessions",
		Help: "Current number of sessions in starting, running, or recovering.",
	})

	// AdmissionRejectTotal counts Admit rejections by problem code.
	AdmissionRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_admission_reject_total",
		Help: "Total admission rejections, by reason code.",
	}, []string{"reason"})

	// AdmissionAdmitTotal counts successful admissions.
	AdmissionAdmitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamctl_admission_admit_total",
		Help: "Total admitted session start requests.",
	})

	// EncoderRestartTotal counts encoder restarts, by which path performed
	// them: "supervisor" is C1's in-process watcher, "health_monitor" is
	// C7's OS-level fallback restart.
	EncoderRestartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_encoder_restart_total",
		Help: "Total encoder restarts, by restart path.",
	}, []string{"path"})

	// EncoderRestartExhaustedTotal counts sessions that finalized failed
	// after exhausting a restart-delay sequence, by path.
	EncoderRestartExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_encoder_restart_exhausted_total",
		Help: "Total sessions finalized failed after exhausting restart retries, by restart path.",
	}, []string{"path"})

	// EncoderBackoffSeconds observes the delay chosen before each restart
	// attempt, by path, so operators can see how deep into backoff the
	// fleet typically runs.
	EncoderBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamctl_encoder_backoff_seconds",
		Help:    "Delay chosen before a restart attempt, by restart path.",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"path"})

	// SchedulerFireTotal counts scheduled-trigger fire outcomes.
	SchedulerFireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_scheduler_fire_total",
		Help: "Total scheduled-trigger fires, by outcome.",
	}, []string{"outcome"})

	// ProcTerminateTotal counts process-group termination signals sent
	// while stopping an encoder, by signal and result.
	ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_proc_terminate_total",
		Help: "Total process-group termination signals sent, by signal and result.",
	}, []string{"signal", "result"})

	// ProcWaitTotal counts how a signaled process group actually exited.
	ProcWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_proc_wait_total",
		Help: "Total process-group exit outcomes observed after a terminate signal, by outcome.",
	}, []string{"outcome"})

	// KeyRotationTotal counts automatic stream key rotations performed after
	// a session exhausted its restart-delay sequence.
	KeyRotationTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamctl_key_rotation_total",
		Help: "Total automatic stream key rotations performed after restart exhaustion.",
	})
)

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Restart path labels for EncoderRestartTotal / EncoderBackoffSeconds /
// EncoderRestartExhaustedTotal.
const (
	PathSupervisor    = "supervisor"
	PathHealthMonitor = "health_monitor"
)

// Scheduler fire outcome labels for SchedulerFireTotal.
const (
	OutcomeStarted = "started"
	OutcomeFailed  = "failed"
)

// RecordAdmit increments the admission-success counter.
func RecordAdmit() { AdmissionAdmitTotal.Inc() }

// RecordAdmissionReject increments the admission-reject counter for reason.
func RecordAdmissionReject(reason string) { AdmissionRejectTotal.WithLabelValues(reason).Inc() }

// RecordEncoderRestart increments the restart counter for path and observes
// the delay that preceded the attempt.
func RecordEncoderRestart(path string, delaySeconds float64) {
	EncoderRestartTotal.WithLabelValues(path).Inc()
	EncoderBackoffSeconds.WithLabelValues(path).Observe(delaySeconds)
}

// RecordRestartExhausted increments the terminal-failure counter for path.
func RecordRestartExhausted(path string) { EncoderRestartExhaustedTotal.WithLabelValues(path).Inc() }

// RecordSchedulerFire increments the scheduler fire counter for outcome.
func RecordSchedulerFire(outcome string) { SchedulerFireTotal.WithLabelValues(outcome).Inc() }

// RecordProcTerminate increments the process-group terminate-signal counter.
func RecordProcTerminate(signal, result string) {
	ProcTerminateTotal.WithLabelValues(signal, result).Inc()
}

// RecordProcWait increments the process-group exit-outcome counter.
func RecordProcWait(outcome string) { ProcWaitTotal.WithLabelValues(outcome).Inc() }

// SetActiveSessions sets the active-session gauge.
func SetActiveSessions(count float64) { ActiveSessions.Set(count) }

// RecordKeyRotation increments the stream key rotation counter.
func RecordKeyRotation() { KeyRotationTotal.Inc() }
