// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package risk estimates deadlock probability before a deadlock forms.
//
// # Description
//
// The estimator turns a (processes, resources) snapshot into a five-value
// feature vector, asks a pluggable Classifier for a base probability, then
// applies deterministic floors and boosts. The rules guarantee that the
// circular-wait signal is never underestimated, whatever the classifier says.
//
// # Failure Model
//
// The estimator never returns an error to its caller:
//
//   - No classifier loaded: probability 0.0, level UNKNOWN.
//   - Classifier error, NaN output or panic: probability 0.0, level ERROR,
//     logged at Error.
//
// # Thread Safety
//
// Estimator is safe for concurrent use. The classifier can be swapped at
// runtime with SetClassifier (see ArtifactWatcher).
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/process"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/resource"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("aleutian.deadlock.risk")

// =============================================================================
// Features
// =============================================================================

// FeatureCount is the length of the feature vector.
const FeatureCount = 5

// Vector is the raw feature vector consumed by classifiers, in the order
// [n_processes, n_resources, mean_wait_time, utilization, circular_wait].
type Vector [FeatureCount]float64

// Features is the named form of a feature vector.
type Features struct {
	NumProcesses float64 `json:"n_processes"`
	NumResources float64 `json:"n_resources"`
	MeanWaitTime float64 `json:"mean_wait_time"`
	Utilization  float64 `json:"utilization"`
	CircularWait float64 `json:"circular_wait"`
}

// Vector returns the classifier input for f.
func (f Features) Vector() Vector {
	return Vector{f.NumProcesses, f.NumResources, f.MeanWaitTime, f.Utilization, f.CircularWait}
}

// FeaturesFromVector is the inverse of Features.Vector.
func FeaturesFromVector(v Vector) Features {
	return Features{
		NumProcesses: v[0],
		NumResources: v[1],
		MeanWaitTime: v[2],
		Utilization:  v[3],
		CircularWait: v[4],
	}
}

// ExtractFeatures computes the feature vector for a snapshot.
//
// Description:
//
//	MeanWaitTime is the mean of all process wait times (0 with no
//	processes). Utilization is the share of resource instances in use
//	(0 when no instances exist). CircularWait is 1 if any process both
//	holds and requests resources.
func ExtractFeatures(processes []process.Process, resources []resource.Resource) Features {
	f := Features{
		NumProcesses: float64(len(processes)),
		NumResources: float64(len(resources)),
	}

	if len(processes) > 0 {
		var total float64
		for _, p := range processes {
			total += p.WaitTime
		}
		f.MeanWaitTime = total / float64(len(processes))
	}

	var inUse, instances int
	for _, r := range resources {
		inUse += r.Instances - r.Available
		instances += r.Instances
	}
	if instances > 0 {
		f.Utilization = float64(inUse) / float64(instances)
	}

	for _, p := range processes {
		if p.HoldsAndRequests() {
			f.CircularWait = 1
			break
		}
	}
	return f
}

// =============================================================================
// Levels and Predictions
// =============================================================================

// Level is a coarse risk bucket.
type Level string

const (
	LevelLow     Level = "LOW"
	LevelMedium  Level = "MEDIUM"
	LevelHigh    Level = "HIGH"
	LevelUnknown Level = "UNKNOWN"
	LevelError   Level = "ERROR"
)

// RiskLevel buckets a probability: LOW below 0.3, MEDIUM below 0.7,
// HIGH otherwise.
func RiskLevel(p float64) Level {
	switch {
	case p < 0.3:
		return LevelLow
	case p < 0.7:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// Prediction is the estimator's verdict.
type Prediction struct {
	Probability     float64  `json:"deadlock_probability"`
	Level           Level    `json:"risk_level"`
	BaseProbability float64  `json:"base_probability"`
	Features        Features `json:"features"`
}

// =============================================================================
// Rules
// =============================================================================

// ApplyRules applies the deterministic floors and boosts to a base
// probability, in order:
//
//  1. circular wait: floor 0.75; utilization > 0.8 floor 0.90, else > 0.6 floor 0.85
//  2. utilization > 0.9 and mean wait > 80: floor 0.70
//  3. n_processes >= 5 and utilization > 0.7: +0.15 (capped at 1)
//  4. mean wait > 100: +0.10 (capped at 1)
//
// The result is clamped to [0, 1].
func ApplyRules(f Features, base float64) float64 {
	p := base

	if f.CircularWait == 1 {
		p = math.Max(p, 0.75)
		if f.Utilization > 0.8 {
			p = math.Max(p, 0.90)
		} else if f.Utilization > 0.6 {
			p = math.Max(p, 0.85)
		}
	}

	if f.Utilization > 0.9 && f.MeanWaitTime > 80 {
		p = math.Max(p, 0.70)
	}

	if f.NumProcesses >= 5 && f.Utilization > 0.7 {
		p = math.Min(p+0.15, 1.0)
	}

	if f.MeanWaitTime > 100 {
		p = math.Min(p+0.10, 1.0)
	}

	return clamp01(p)
}

func clamp01(p float64) float64 {
	return math.Min(math.Max(p, 0), 1)
}

// =============================================================================
// Estimator
// =============================================================================

// Estimator produces deadlock risk predictions.
type Estimator struct {
	mu         sync.RWMutex
	classifier Classifier
	source     string
	logger     *slog.Logger
}

// EstimatorOption configures an Estimator.
type EstimatorOption func(*Estimator)

// WithLogger sets the logger used for failure reports.
func WithLogger(l *slog.Logger) EstimatorOption {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEstimator creates an estimator.
//
// Inputs:
//
//	classifier - The base probability model. May be nil, in which case
//	  every prediction is {0.0, UNKNOWN} until SetClassifier is called.
func NewEstimator(classifier Classifier, opts ...EstimatorOption) *Estimator {
	e := &Estimator{
		classifier: classifier,
		logger:     slog.Default(),
	}
	if classifier != nil {
		e.source = "initial"
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetClassifier swaps the classifier. source is a free-form label kept for
// diagnostics (for example the artifact path).
func (e *Estimator) SetClassifier(c Classifier, source string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.classifier = c
	e.source = source
}

// Loaded reports whether a classifier is installed and where it came from.
func (e *Estimator) Loaded() (bool, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.classifier != nil, e.source
}

// Assess extracts features from a snapshot and predicts. Any failure in
// either step degrades to {0.0, ERROR}.
func (e *Estimator) Assess(ctx context.Context, processes []process.Process, resources []resource.Resource) (pred Prediction) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("feature extraction panicked", "panic", r)
			pred = Prediction{Level: LevelError}
		}
	}()
	return e.Predict(ctx, ExtractFeatures(processes, resources))
}

// Predict computes the probability and level for a feature vector.
//
// Description:
//
//	Obtains the base probability from the classifier, applies ApplyRules
//	and buckets the result. Never fails; see the package doc for the
//	degraded outputs.
//
// Inputs:
//
//	ctx - Context for tracing.
//	f - Feature vector.
//
// Outputs:
//
//	Prediction - The verdict, including the base probability and features.
func (e *Estimator) Predict(ctx context.Context, f Features) Prediction {
	_, span := tracer.Start(ctx, "Estimator.Predict")
	defer span.End()

	e.mu.RLock()
	c := e.classifier
	e.mu.RUnlock()

	if c == nil {
		span.SetAttributes(attribute.String("risk.level", string(LevelUnknown)))
		return Prediction{Level: LevelUnknown, Features: f}
	}

	base, err := e.safePredict(c, f.Vector())
	if err != nil {
		e.logger.Error("deadlock risk prediction failed",
			"error", err,
			"features", f,
		)
		span.RecordError(err)
		span.SetAttributes(attribute.String("risk.level", string(LevelError)))
		return Prediction{Level: LevelError, Features: f}
	}

	p := ApplyRules(f, base)
	level := RiskLevel(p)
	span.SetAttributes(
		attribute.Float64("risk.base_probability", base),
		attribute.Float64("risk.probability", p),
		attribute.String("risk.level", string(level)),
	)
	return Prediction{
		Probability:     p,
		Level:           level,
		BaseProbability: base,
		Features:        f,
	}
}

// safePredict invokes the classifier with panic recovery.
func (e *Estimator) safePredict(c Classifier, v Vector) (p float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: classifier panicked: %v", ErrEstimatorFailure, r)
		}
	}()

	p, err = c.Predict(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEstimatorFailure, err)
	}
	if math.IsNaN(p) {
		return 0, fmt.Errorf("%w: classifier returned NaN", ErrEstimatorFailure)
	}
	return p, nil
}
