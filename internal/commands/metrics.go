// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeOK       = "ok"
	outcomeFailed   = "failed"
	outcomeRejected = "rejected"
)

var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatdeck",
			Subsystem: "commands",
			Name:      "invocations_total",
			Help:      "Total number of command invocations by outcome",
		},
		[]string{"command", "outcome"},
	)

	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatdeck",
			Subsystem: "commands",
			Name:      "duration_seconds",
			Help:      "Duration of command handlers in seconds",
			Buckets:   []float64{.005, .05, .25, 1, 2.5, 5, 15, 30, 60, 120},
		},
		[]string{"command"},
	)

	// Model names come from the host, so they are not used as a label.
	generationRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatdeck",
			Subsystem: "ollama",
			Name:      "generate_records_total",
			Help:      "Total number of reassembled generation records",
		},
	)

	pullsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatdeck",
			Subsystem: "ollama",
			Name:      "pulls_total",
			Help:      "Total number of model pulls by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(commandsTotal, commandDuration, generationRecords, pullsTotal)
}

func outcomeFor(kind ErrorKind) string {
	if kind == KindFailed {
		return outcomeFailed
	}
	return outcomeRejected
}
