// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import "time"

// Config is the deadlockd configuration file.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Stream      StreamConfig      `yaml:"stream"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Estimator   EstimatorConfig   `yaml:"estimator"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

type ServerConfig struct {
	Port  int  `yaml:"port" validate:"min=1,max=65535"`
	Debug bool `yaml:"debug"`

	// RateLimitRPS limits mutating API calls per second. 0 disables.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int     `yaml:"rate_limit_burst" validate:"gte=0"`
}

type StreamConfig struct {
	// Interval between snapshot pushes to websocket clients.
	Interval time.Duration `yaml:"interval" validate:"gt=0"`

	// ClientBuffer is the per-client event buffer. Events beyond it are
	// dropped for that client only.
	ClientBuffer int `yaml:"client_buffer" validate:"min=1"`
}

type CoordinatorConfig struct {
	BlockThreshold     float64 `yaml:"block_threshold" validate:"gte=0,lte=1"`
	ReleaseOnTerminate bool    `yaml:"release_on_terminate"`
}

// Classifier sources.
const (
	ClassifierHeuristic = "heuristic"
	ClassifierArtifact  = "artifact"
	ClassifierNone      = "none"
)

type EstimatorConfig struct {
	// Classifier is "heuristic", "artifact" or "none".
	Classifier    string `yaml:"classifier" validate:"oneof=heuristic artifact none"`
	ArtifactPath  string `yaml:"artifact_path,omitempty" validate:"required_if=Classifier artifact"`
	WatchArtifact bool   `yaml:"watch_artifact"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`

	// Dir enables a JSON log file per day when set.
	Dir string `yaml:"dir,omitempty"`
}

type TracingConfig struct {
	// Exporter is "none", "stdout" or "otlp".
	Exporter string `yaml:"exporter" validate:"oneof=none stdout otlp"`

	// MetricExporter is "none", "stdout" or "prometheus".
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`

	Endpoint    string `yaml:"endpoint,omitempty" validate:"required_if=Exporter otlp"`
	ServiceName string `yaml:"service_name" validate:"required"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:           8000,
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Stream: StreamConfig{
			Interval:     time.Second,
			ClientBuffer: 16,
		},
		Coordinator: CoordinatorConfig{
			BlockThreshold: 0.7,
		},
		Estimator: EstimatorConfig{
			Classifier: ClassifierHeuristic,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Exporter:       "none",
			MetricExporter: "prometheus",
			ServiceName:    "deadlockd",
		},
	}
}
