// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	a.RecordDecision("allocated")
	a.RecordDecision("allocated")
	b.RecordDecision("blocked")

	assert.Equal(t, 2.0, testutil.ToFloat64(a.DecisionsTotal.WithLabelValues("allocated")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DecisionsTotal.WithLabelValues("allocated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.DecisionsTotal.WithLabelValues("blocked")))
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordResolution()
	m.RecordPrediction(0.85, "HIGH")
	m.SetSizes(3, 2)
	m.RecordObserverFailure()
	m.StreamStarted()
	m.StreamStarted()
	m.StreamEnded()
	m.RecordHTTPRequest("/api/process/request", "200")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeadlocksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VictimsTotal))
	assert.Equal(t, 0.85, testutil.ToFloat64(m.RiskProbability))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RiskLevelsTotal.WithLabelValues("HIGH")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Processes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Resources))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ObserverFailuresTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveStreams))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/api/process/request", "200")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDecision("allocated")
		m.RecordResolution()
		m.RecordPrediction(0.1, "LOW")
		m.SetSizes(1, 1)
		m.RecordObserverFailure()
		m.StreamStarted()
		m.StreamEnded()
		m.RecordHTTPRequest("/", "200")
	})
}

func TestInit_NoExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), TelemetryConfig{
		ServiceName:    "deadlockd-test",
		TraceExporter:  ExporterNone,
		MetricExporter: ExporterNone,
	})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_StdoutTraces(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := Init(context.Background(), TelemetryConfig{
		ServiceName:   "deadlockd-test",
		TraceExporter: ExporterStdout,
	})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_PrometheusMetricsUseRegisterer(t *testing.T) {
	prev := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	reg := prometheus.NewRegistry()
	shutdown, err := Init(context.Background(), TelemetryConfig{
		ServiceName:    "deadlockd-test",
		MetricExporter: ExporterPrometheus,
		Registerer:     reg,
	})
	require.NoError(t, err)
	defer shutdown(context.Background())

	counter, err := otel.Meter("test").Int64Counter("sample_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "sample") {
			found = true
		}
	}
	assert.True(t, found, "otel instrument exported through the prometheus registry")
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), TelemetryConfig{TraceExporter: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), TelemetryConfig{MetricExporter: "statsd"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}
