// Package metrics declares the Prometheus collectors shared by the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MappingResults counts value mapping outcomes by category, field and method.
	MappingResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wwfm_value_mapping_total",
		Help: "Value mapping outcomes by category, field and method",
	}, []string{"category", "field", "method"})

	// CredibilityVerdicts counts gate decisions by category and reason.
	CredibilityVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wwfm_credibility_verdicts_total",
		Help: "Credibility gate decisions by category and reason",
	}, []string{"category", "reason"})

	// PlausibilityScores tracks scores returned by the plausibility scorer.
	PlausibilityScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wwfm_plausibility_score",
		Help:    "Plausibility scores returned by the external scorer",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	// PersistenceSteps counts inserter step outcomes by step and status.
	PersistenceSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wwfm_persistence_steps_total",
		Help: "Inserter step outcomes by step and status",
	}, []string{"step", "status"})

	// GoalsSelected counts goals chosen by the selector per strategy.
	GoalsSelected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wwfm_goals_selected_total",
		Help: "Goals selected for generation by strategy",
	}, []string{"strategy"})

	// QualityRuns counts quality runs by final outcome.
	QualityRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wwfm_quality_runs_total",
		Help: "Quality orchestrator runs by outcome",
	}, []string{"outcome"})

	// QualityVerdicts counts applied quality verdicts.
	QualityVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wwfm_quality_verdicts_total",
		Help: "Quality verdicts applied by verdict",
	}, []string{"verdict"})

	// QualitySpend accumulates quality-check spend in USD.
	QualitySpend = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wwfm_quality_spend_usd_total",
		Help: "Cumulative quality-check spend in USD",
	})

	// ModelCallDuration tracks external model call latency.
	ModelCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wwfm_model_call_duration_seconds",
		Help:    "External model call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	}, []string{"operation"})
)
