package checker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emailcheck_checks_total",
		Help: "The total number of completed checks by outcome",
	}, []string{"status"})

	CheckDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "emailcheck_check_duration_seconds",
		Help:    "Time taken to check one address, from syntax check to probe close",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "emailcheck_queue_depth",
		Help: "The number of submitted checks waiting for a worker",
	})

	ChecksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "emailcheck_checks_in_flight",
		Help: "The number of checks currently running",
	})

	SubmissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emailcheck_submissions_rejected_total",
		Help: "The total number of submissions refused by admission control",
	}, []string{"reason"})
)
