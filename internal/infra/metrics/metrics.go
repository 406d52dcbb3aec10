package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts answered questions by routed intent.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docqa_requests_total",
		Help: "Questions admitted into the answering pipeline, by intent.",
	}, []string{"intent"})

	// TerminalEventsTotal counts how requests ended.
	TerminalEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docqa_terminal_events_total",
		Help: "Terminal pipeline events by kind (done or error).",
	}, []string{"kind"})

	// GenerationFallbacksTotal counts switches to the fallback model.
	GenerationFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docqa_generation_fallbacks_total",
		Help: "Generation attempts retried on the fallback model.",
	})

	// ReflectionRetriesTotal counts answer regenerations triggered by reflection.
	ReflectionRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docqa_reflection_retries_total",
		Help: "Answer regenerations triggered by the self-reflection grader.",
	})

	// StageDuration observes wall time per pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docqa_stage_duration_seconds",
		Help:    "Duration of each answering pipeline stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
)
