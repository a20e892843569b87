// Package metrics exposes prometheus instruments for charge and scheduler health.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Charge result labels, kept low-cardinality.
const (
	ChargeResultSuccess             = "success"
	ChargeResultInsufficientBalance = "insufficient_balance"
	ChargeResultIntervalNotElapsed  = "interval_not_elapsed"
	ChargeResultReplay              = "replay"
	ChargeResultNotActive           = "not_active"
	ChargeResultExpired             = "expired"
	ChargeResultNotFound            = "not_found"
	ChargeResultStopped             = "stopped"
	ChargeResultError               = "error"
)

const (
	JobErrorReasonDeadlineExceeded = "deadline_exceeded"
	JobErrorReasonForbidden        = "forbidden"
	JobErrorReasonDB               = "db"
	JobErrorReasonUnknown          = "unknown"
)

// Config carries the const labels stamped on every instrument.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics captures vault billing health signals.
type Metrics struct {
	charges        *prometheus.CounterVec
	usageCharges   *prometheus.CounterVec
	batchSize      prometheus.Histogram
	withdrawals    *prometheus.CounterVec
	jobRuns        *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	jobTimeouts    *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Default returns the singleton metrics registry.
func Default() *Metrics {
	return WithConfig(Config{})
}

// WithConfig returns the singleton metrics registry using config labels.
func WithConfig(cfg Config) *Metrics {
	metricsOnce.Do(func() {
		metrics = New(prometheus.DefaultRegisterer, cfg)
	})
	return metrics
}

// ResetForTest resets the metrics singleton for tests.
func ResetForTest() {
	metricsOnce = sync.Once{}
	metrics = nil
}

func New(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "subvault"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	charges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "subvault_charges_total",
		Help:        "Interval charge attempts by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	usageCharges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "subvault_usage_charges_total",
		Help:        "Usage charge attempts by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	batchSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "subvault_batch_charge_size",
		Help:        "Subscription count per batch charge call.",
		Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: constLabels,
	})
	withdrawals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "subvault_merchant_withdrawals_total",
		Help:        "Merchant withdrawal attempts by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "subvault_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "subvault_scheduler_job_errors_total",
		Help:        "Scheduler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "subvault_scheduler_job_timeouts_total",
		Help:        "Scheduler job timeouts that threaten billing freshness.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "subvault_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency to protect billing batch freshness.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"job"})

	registerer.MustRegister(
		charges,
		usageCharges,
		batchSize,
		withdrawals,
		jobRuns,
		jobErrors,
		jobTimeouts,
		jobDuration,
	)

	return &Metrics{
		charges:      charges,
		usageCharges: usageCharges,
		batchSize:    batchSize,
		withdrawals:  withdrawals,
		jobRuns:      jobRuns,
		jobErrors:    jobErrors,
		jobTimeouts:  jobTimeouts,
		jobDuration:  jobDuration,
	}
}

// RecordCharge counts one interval charge attempt.
func (m *Metrics) RecordCharge(result string) {
	if m == nil {
		return
	}
	m.charges.WithLabelValues(result).Inc()
}

// RecordUsageCharge counts one usage charge attempt.
func (m *Metrics) RecordUsageCharge(result string) {
	if m == nil {
		return
	}
	m.usageCharges.WithLabelValues(result).Inc()
}

// ObserveBatchSize records the size of one batch charge call.
func (m *Metrics) ObserveBatchSize(size int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
}

// RecordWithdrawal counts one merchant withdrawal attempt.
func (m *Metrics) RecordWithdrawal(result string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(result).Inc()
}

// RecordJobRun counts one scheduler job run.
func (m *Metrics) RecordJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// RecordJobError counts one scheduler job error by reason.
func (m *Metrics) RecordJobError(job string, reason string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, reason).Inc()
}

// RecordJobTimeout counts one scheduler job timeout.
func (m *Metrics) RecordJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// ObserveJobDuration records one scheduler job latency sample.
func (m *Metrics) ObserveJobDuration(job string, seconds float64) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(seconds)
}
