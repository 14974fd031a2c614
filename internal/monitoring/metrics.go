package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Ledger entries written, by type and status",
		},
		[]string{"type", "status"},
	)

	AccrualSweepPaid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accrual_sweep_paid_total",
			Help: "Investments credited by the daily accrual sweep",
		},
	)

	AccrualSweepSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accrual_sweep_skipped_total",
			Help: "Investments skipped because today's profit was already booked",
		},
	)

	AccrualSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accrual_sweep_duration_seconds",
			Help:    "Duration of the daily accrual sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_tasks_total",
			Help: "Outbox task executions, by kind and result",
		},
		[]string{"kind", "result"},
	)
)
