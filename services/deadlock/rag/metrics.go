// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rag

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph operations.
var (
	tracer = otel.Tracer("aleutian.deadlock.rag")
	meter  = otel.Meter("aleutian.deadlock.rag")
)

var (
	buildLatency  metric.Float64Histogram
	graphNodes    metric.Int64Histogram
	graphEdges    metric.Int64Histogram
	detectLatency metric.Float64Histogram
	cyclesFound   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"rag_build_duration_seconds",
			metric.WithDescription("Duration of resource-allocation graph builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		graphNodes, err = meter.Int64Histogram(
			"rag_nodes",
			metric.WithDescription("Number of nodes per built graph"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		graphEdges, err = meter.Int64Histogram(
			"rag_edges",
			metric.WithDescription("Number of edges per built graph"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		detectLatency, err = meter.Float64Histogram(
			"rag_detect_duration_seconds",
			metric.WithDescription("Duration of cycle detection"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cyclesFound, err = meter.Int64Counter(
			"rag_cycles_found_total",
			metric.WithDescription("Number of detections that found a cycle"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordBuildMetrics(ctx context.Context, d time.Duration, nodes, edges int) {
	if err := initMetrics(); err != nil {
		return
	}
	buildLatency.Record(ctx, d.Seconds())
	graphNodes.Record(ctx, int64(nodes))
	graphEdges.Record(ctx, int64(edges))
}

func recordDetectMetrics(ctx context.Context, d time.Duration, found bool) {
	if err := initMetrics(); err != nil {
		return
	}
	detectLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("cycle", found)))
	if found {
		cyclesFound.Add(ctx, 1)
	}
}

func startDetectSpan(ctx context.Context, processCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Detector.Detect",
		trace.WithAttributes(attribute.Int("rag.process_count", processCount)),
	)
}

func setDetectSpanResult(span trace.Span, g *Graph, result CycleResult) {
	span.SetAttributes(
		attribute.Int("rag.node_count", g.NodeCount()),
		attribute.Int("rag.edge_count", g.EdgeCount()),
		attribute.Bool("rag.has_cycle", result.HasDeadlock),
		attribute.Int("rag.cycle_length", len(result.Cycle)),
	)
}
