package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SigningAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontdoor_signing_attempts_total",
		Help: "personal_sign attempts by parameter shape and outcome",
	}, []string{"shape", "outcome"})

	SiweAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontdoor_siwe_attempts_total",
		Help: "SIWE login attempts by descriptor variant and outcome",
	}, []string{"variant", "outcome"})

	ValidationRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontdoor_validation_rejects_total",
		Help: "Runtime profile validation rejections",
	}, []string{"field"})

	LaunchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontdoor_launches_total",
		Help: "Launch protocol runs by outcome",
	}, []string{"outcome"})

	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontdoor_polls_total",
		Help: "Session status polls by reported status",
	}, []string{"status"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frontdoor_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
