// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package broadcast periodically pushes coordinator snapshots to observers.
package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/coordinator"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/events"
)

// DefaultInterval is the snapshot push period.
const DefaultInterval = time.Second

// Source produces snapshots. Implemented by *coordinator.Coordinator.
type Source interface {
	Snapshot(ctx context.Context) coordinator.Snapshot
}

// Publisher delivers events. Implemented by *events.Hub.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) int
	Len() int
}

// Broadcaster polls a Source on a fixed interval and publishes each
// snapshot.
type Broadcaster struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a broadcaster. A non-positive interval uses DefaultInterval.
func New(source Source, publisher Publisher, interval time.Duration, logger *slog.Logger) *Broadcaster {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		source:    source,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
	}
}

// Run pushes snapshots until ctx is cancelled.
//
// # Description
//
// Ticks at the configured interval. Ticks with no observers are skipped
// so an idle server does not rebuild the graph every second. Observer
// failures are isolated by the publisher and never stop the loop.
//
// # Outputs
//
//   - error: Always nil; returns when ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info("snapshot broadcaster starting", "interval", b.interval.String())
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("snapshot broadcaster stopped")
			return nil
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}

// Tick publishes one snapshot if anyone is listening.
//
// # Outputs
//
//   - int: Number of observers that accepted the snapshot.
func (b *Broadcaster) Tick(ctx context.Context) int {
	if b.publisher.Len() == 0 {
		return 0
	}
	snap := b.source.Snapshot(ctx)
	return b.publisher.Publish(ctx, events.Snapshot(snap))
}
