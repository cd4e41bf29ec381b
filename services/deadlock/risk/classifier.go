// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package risk

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Classifier maps a feature vector to a base deadlock probability.
//
// Implementations are produced offline (training is out of scope) and
// must be swappable without touching the estimator.
type Classifier interface {
	Predict(v Vector) (float64, error)
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(v Vector) (float64, error)

// Predict calls f(v).
func (f ClassifierFunc) Predict(v Vector) (float64, error) { return f(v) }

// Constant returns a classifier that always answers p.
func Constant(p float64) Classifier {
	return ClassifierFunc(func(Vector) (float64, error) { return p, nil })
}

// =============================================================================
// Heuristic Classifier
// =============================================================================

// HeuristicClassifier scores contention signals and maps the score to the
// expected deadlock rate of the labelled training scenarios.
//
// Score weights: circular wait 50; utilization > 0.8 / 0.6 / 0.4 adds
// 30 / 20 / 10; mean wait > 100 / 70 / 40 adds 15 / 10 / 5; at least as
// many processes as resources adds 5. Scores >= 70 map to 1.0, >= 50 to
// 0.7, >= 30 to 0.4, anything lower to 0.
//
// The output is non-decreasing in utilization and mean wait time.
type HeuristicClassifier struct{}

// Score returns the raw contention score for v.
func (HeuristicClassifier) Score(v Vector) int {
	f := FeaturesFromVector(v)
	score := 0

	if f.CircularWait == 1 {
		score += 50
	}

	switch {
	case f.Utilization > 0.8:
		score += 30
	case f.Utilization > 0.6:
		score += 20
	case f.Utilization > 0.4:
		score += 10
	}

	switch {
	case f.MeanWaitTime > 100:
		score += 15
	case f.MeanWaitTime > 70:
		score += 10
	case f.MeanWaitTime > 40:
		score += 5
	}

	if f.NumProcesses >= f.NumResources {
		score += 5
	}
	return score
}

// Predict implements Classifier.
func (h HeuristicClassifier) Predict(v Vector) (float64, error) {
	switch score := h.Score(v); {
	case score >= 70:
		return 1.0, nil
	case score >= 50:
		return 0.7, nil
	case score >= 30:
		return 0.4, nil
	default:
		return 0, nil
	}
}

// =============================================================================
// Logistic Classifier
// =============================================================================

// LogisticClassifier is a fitted logistic regression over the (optionally
// standardized) feature vector:
//
//	p = sigmoid(bias + sum_i weights[i] * (x[i] - means[i]) / scales[i])
type LogisticClassifier struct {
	Weights Vector
	Bias    float64
	Means   Vector
	Scales  Vector
}

// Predict implements Classifier.
func (l *LogisticClassifier) Predict(v Vector) (float64, error) {
	z := l.Bias
	for i := range v {
		scale := l.Scales[i]
		if scale == 0 {
			scale = 1
		}
		z += l.Weights[i] * (v[i] - l.Means[i]) / scale
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// =============================================================================
// Artifacts
// =============================================================================

// Artifact kinds.
const (
	ArtifactLogistic  = "logistic"
	ArtifactHeuristic = "heuristic"
)

// Artifact is the on-disk form of a classifier.
//
// Example:
//
//	kind: logistic
//	version: 1
//	weights: [0.05, -0.02, 0.03, 4.0, 3.0]
//	bias: -4.5
type Artifact struct {
	Kind    string    `yaml:"kind"`
	Version int       `yaml:"version"`
	Weights []float64 `yaml:"weights,omitempty"`
	Bias    float64   `yaml:"bias,omitempty"`
	Means   []float64 `yaml:"means,omitempty"`
	Scales  []float64 `yaml:"scales,omitempty"`
}

// ParseArtifact decodes a YAML artifact into a classifier.
//
// Outputs:
//
//	Classifier - The decoded model.
//	error - Wraps ErrInvalidArtifact on decode or shape errors.
func ParseArtifact(data []byte) (Classifier, error) {
	var a Artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	switch a.Kind {
	case ArtifactHeuristic:
		return HeuristicClassifier{}, nil

	case ArtifactLogistic:
		l := &LogisticClassifier{Bias: a.Bias}
		if err := fillVector(&l.Weights, a.Weights, "weights", true); err != nil {
			return nil, err
		}
		if err := fillVector(&l.Means, a.Means, "means", false); err != nil {
			return nil, err
		}
		if err := fillVector(&l.Scales, a.Scales, "scales", false); err != nil {
			return nil, err
		}
		if len(a.Scales) == 0 {
			l.Scales = Vector{1, 1, 1, 1, 1}
		}
		return l, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, a.Kind)
	}
}

func fillVector(dst *Vector, src []float64, field string, required bool) error {
	if len(src) == 0 && !required {
		return nil
	}
	if len(src) != FeatureCount {
		return fmt.Errorf("%w: %s must have %d values, got %d", ErrInvalidArtifact, field, FeatureCount, len(src))
	}
	for i, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s[%d] is not finite", ErrInvalidArtifact, field, i)
		}
		dst[i] = v
	}
	return nil
}

// LoadArtifact reads and parses a classifier artifact file.
//
// Outputs:
//
//	Classifier - The decoded model.
//	error - Wraps ErrEstimatorUnavailable if the file cannot be read, or
//	  ErrInvalidArtifact if it cannot be decoded.
func LoadArtifact(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrEstimatorUnavailable, path, err)
	}
	c, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return c, nil
}
