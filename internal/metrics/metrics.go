// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "concertbot"

var (
	ExtractAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_attempts_total",
			Help:      "Page fetch attempts by transport path and outcome.",
		},
		[]string{"path", "outcome"},
	)

	PreviewTakes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preview_takes_total",
			Help:      "Preview cache lookups by result (hit, expired or denied).",
		},
		[]string{"result"},
	)

	DialogueOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_outcomes_total",
			Help:      "Finished guided dialogues by outcome.",
		},
		[]string{"outcome"},
	)

	AttendanceAnswers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_answers_total",
			Help:      "Poll answers received by reconciliation result.",
		},
		[]string{"result"},
	)

	PollsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_published_total",
			Help:      "Attendance polls sent for new concerts by result.",
		},
		[]string{"result"},
	)

	HTTPPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_panics_total",
			Help:      "API handler panics answered with a 500.",
		},
	)
)
