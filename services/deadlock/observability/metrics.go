// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and tracing setup for deadlockd.
//
// # Description
//
// Prometheus metrics cover the allocation path:
//   - Allocation decisions (allocated, failed, blocked)
//   - Deadlocks detected and victims terminated
//   - Latest risk probability and level counts
//   - Observer delivery failures and active stream clients
//   - HTTP requests by route and status
//
// Tracing and OTel metric export are configured by Init (telemetry.go).
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every Record method is a no-op on a nil *Metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "aleutian"

const deadlockSubsystem = "deadlock"

// Metrics holds the Prometheus collectors for one coordinator.
type Metrics struct {
	// DecisionsTotal counts allocation decisions.
	// Labels: status (allocated, failed, blocked)
	DecisionsTotal *prometheus.CounterVec

	// DeadlocksTotal counts detected cycles that were resolved.
	DeadlocksTotal prometheus.Counter

	// VictimsTotal counts processes terminated by resolution.
	VictimsTotal prometheus.Counter

	// RiskProbability is the most recent estimated deadlock probability.
	RiskProbability prometheus.Gauge

	// RiskLevelsTotal counts predictions by level.
	// Labels: level (LOW, MEDIUM, HIGH, UNKNOWN, ERROR)
	RiskLevelsTotal *prometheus.CounterVec

	// Processes and Resources track registry sizes.
	Processes prometheus.Gauge
	Resources prometheus.Gauge

	// ObserverFailuresTotal counts failed event deliveries.
	ObserverFailuresTotal prometheus.Counter

	// ActiveStreams tracks connected websocket clients.
	ActiveStreams prometheus.Gauge

	// HTTPRequestsTotal counts API requests.
	// Labels: route, status
	HTTPRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors with reg.
//
// # Inputs
//
//   - reg: Registerer to use. Pass prometheus.NewRegistry() in tests so
//     multiple instances can coexist. nil uses the default registerer.
//
// # Limitations
//
//   - Panics if the same registerer already holds these collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		DecisionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: deadlockSubsystem,
				Name:      "decisions_total",
				Help:      "Allocation decisions by status",
			},
			[]string{"status"},
		),

		DeadlocksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: deadlockSubsystem,
			Name:      "deadlocks_total",
			Help:      "Deadlock cycles detected and resolved",
		}),

		VictimsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: deadlockSubsystem,
			Name:      "victims_total",
			Help:      "Processes terminated to break a cycle",
		}),

		RiskProbability: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: deadlockSubsystem,
			Name:      "risk_probability",
			Help:      "Most recent estimated deadlock probability",
		}),

		RiskLevelsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: deadlockSubsystem,
				Name:      "risk_levels_total",
				Help:      "Risk predictions by level",
			},
			[]string{"level"},
		),

		Processes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: deadlockSubsystem,
			Name:      "processes",
			Help:      "Registered processes",
		}),

		Resources: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: deadlockSubsystem,
			Name:      "resources",
			Help:      "Registered resources",
		}),

		ObserverFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: deadlockSubsystem,
			Name:      "observer_failures_total",
			Help:      "Failed or dropped event deliveries",
		}),

		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: deadlockSubsystem,
			Name:      "active_streams",
			Help:      "Connected websocket stream clients",
		}),

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: deadlockSubsystem,
				Name:      "http_requests_total",
				Help:      "API requests by route and status code",
			},
			[]string{"route", "status"},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordDecision counts an allocation decision.
func (m *Metrics) RecordDecision(status string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(status).Inc()
}

// RecordResolution counts one resolved deadlock and its victim.
func (m *Metrics) RecordResolution() {
	if m == nil {
		return
	}
	m.DeadlocksTotal.Inc()
	m.VictimsTotal.Inc()
}

// RecordPrediction stores the latest probability and counts its level.
func (m *Metrics) RecordPrediction(probability float64, level string) {
	if m == nil {
		return
	}
	m.RiskProbability.Set(probability)
	m.RiskLevelsTotal.WithLabelValues(level).Inc()
}

// SetSizes updates the registry size gauges.
func (m *Metrics) SetSizes(processes, resources int) {
	if m == nil {
		return
	}
	m.Processes.Set(float64(processes))
	m.Resources.Set(float64(resources))
}

// RecordObserverFailure counts a failed event delivery.
func (m *Metrics) RecordObserverFailure() {
	if m == nil {
		return
	}
	m.ObserverFailuresTotal.Inc()
}

// StreamStarted increments the active streams gauge.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *Metrics) StreamEnded() {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
}

// RecordHTTPRequest counts an API request.
func (m *Metrics) RecordHTTPRequest(route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
}
