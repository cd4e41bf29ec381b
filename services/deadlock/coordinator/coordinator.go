// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package coordinator orchestrates allocation requests against the process
// and resource registries.
//
// # Description
//
// Each request is pre-checked by the risk estimator, applied to the
// resource registry, and re-checked by the cycle detector. A detected cycle
// is resolved by terminating one victim and notifying observers.
//
// The coordinator keeps each process record's allocated and requested
// lists mirrored from the resource registry outcome, so the allocation
// graph (built from process records) matches the registry bookkeeping.
//
// # Thread Safety
//
// All operations, mutations and reads alike, run under one mutex, so no
// reader ever sees a graph built from a half-applied mutation. Observer
// notification happens after the mutex is released.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/events"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/observability"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/process"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/rag"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/resource"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/risk"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("aleutian.deadlock.coordinator")

// DefaultBlockThreshold is the pre-check probability above which requests
// are refused.
const DefaultBlockThreshold = 0.7

// Coordinator owns one pair of registries. Instances are independent.
type Coordinator struct {
	mu        sync.Mutex
	processes *process.Registry
	resources *resource.Registry
	detector  *rag.Detector
	estimator *risk.Estimator
	hub       *events.Hub

	logger             *slog.Logger
	metrics            *observability.Metrics
	blockThreshold     float64
	releaseOnTerminate bool
	now                func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithEstimator sets the risk estimator. Defaults to the heuristic
// classifier.
func WithEstimator(e *risk.Estimator) Option {
	return func(c *Coordinator) {
		if e != nil {
			c.estimator = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithBlockThreshold overrides the pre-check threshold. Values outside
// [0, 1] are ignored.
func WithBlockThreshold(p float64) Option {
	return func(c *Coordinator) {
		if p >= 0 && p <= 1 {
			c.blockThreshold = p
		}
	}
}

// WithReleaseOnTerminate makes termination return every instance the
// process holds to the resource registry.
func WithReleaseOnTerminate(enabled bool) Option {
	return func(c *Coordinator) {
		c.releaseOnTerminate = enabled
	}
}

// WithClock sets the time source for process creation and snapshots.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a coordinator with empty registries.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		detector:       rag.NewDetector(),
		logger:         slog.Default(),
		blockThreshold: DefaultBlockThreshold,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.estimator == nil {
		c.estimator = risk.NewEstimator(risk.HeuristicClassifier{}, risk.WithLogger(c.logger))
	}
	c.processes = process.NewRegistry(process.WithClock(c.now))
	c.resources = resource.NewRegistry()
	c.hub = events.NewHub(
		events.WithHubLogger(c.logger),
		events.WithFailureHook(func(string, error) { c.metrics.RecordObserverFailure() }),
	)
	return c
}

// Estimator returns the estimator, for classifier hot reload.
func (c *Coordinator) Estimator() *risk.Estimator { return c.estimator }

// Hub returns the observer hub.
func (c *Coordinator) Hub() *events.Hub { return c.hub }

// Subscribe registers an observer for deadlock notifications.
func (c *Coordinator) Subscribe(o events.Observer) string { return c.hub.Subscribe(o) }

// Unsubscribe removes an observer.
func (c *Coordinator) Unsubscribe(id string) bool { return c.hub.Unsubscribe(id) }

// =============================================================================
// Creation
// =============================================================================

// CreateProcess registers a process with an initial request list.
func (c *Coordinator) CreateProcess(name string, requested []int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.processes.Create(name, requested)
	if len(requested) > 0 {
		_ = c.processes.SetState(id, process.StateWaiting)
	}
	c.updateSizes()
	c.logger.Debug("process created", "process_id", id, "name", name, "requested", requested)
	return id
}

// CreateResource registers a resource.
//
// Outputs:
//
//	int - The resource id.
//	error - resource.ErrInvalidInstanceCount if instances < 1.
func (c *Coordinator) CreateResource(name string, instances int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.resources.Create(name, instances)
	if err != nil {
		return 0, err
	}
	c.updateSizes()
	c.logger.Debug("resource created", "resource_id", id, "name", name, "instances", instances)
	return id, nil
}

// =============================================================================
// Allocation
// =============================================================================

// RequestAllocation asks for one instance of a resource on behalf of a
// process.
//
// Description:
//
//	 1. Predicts deadlock risk on the current state. Above the block
//	    threshold the request is refused with StatusBlocked and nothing
//	    changes.
//	 2. Allocates from the resource registry. On success the resource is
//	    credited to the process and one pending request for it is cleared.
//	    When the resource is exhausted the request is recorded and the
//	    process moves to waiting.
//	 3. Re-runs cycle detection and resolves a detected cycle.
//
// Inputs:
//
//	ctx - Context for tracing and observer notification.
//	processID - Requesting process.
//	resourceID - Requested resource.
//
// Outputs:
//
//	Decision - The outcome. Unknown or exhausted resources are reported as
//	  StatusFailed, not as errors.
//	error - process.ErrUnknownProcess if the process does not exist.
func (c *Coordinator) RequestAllocation(ctx context.Context, processID, resourceID int) (Decision, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.RequestAllocation",
		trace.WithAttributes(
			attribute.Int("process.id", processID),
			attribute.Int("resource.id", resourceID),
		))
	defer span.End()

	c.mu.Lock()
	decision, ev, err := c.requestLocked(ctx, processID, resourceID)
	c.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		return Decision{}, err
	}
	if ev != nil {
		decision.Resolution.Notified = c.hub.Publish(ctx, *ev)
	}

	span.SetAttributes(
		attribute.String("decision.status", string(decision.Status)),
		attribute.Bool("deadlock.detected", decision.DeadlockDetected),
	)
	c.metrics.RecordDecision(string(decision.Status))
	return decision, nil
}

func (c *Coordinator) requestLocked(ctx context.Context, processID, resourceID int) (Decision, *events.Event, error) {
	if !c.processes.Exists(processID) {
		return Decision{}, nil, fmt.Errorf("request by process %d: %w", processID, process.ErrUnknownProcess)
	}

	pred := c.estimator.Assess(ctx, c.processes.All(), c.resources.All())
	c.metrics.RecordPrediction(pred.Probability, string(pred.Level))

	decision := Decision{
		ProcessID:   processID,
		ResourceID:  resourceID,
		Probability: pred.Probability,
		RiskLevel:   pred.Level,
	}

	if pred.Probability > c.blockThreshold {
		decision.Status = StatusBlocked
		decision.Reason = ReasonHighRisk
		c.logger.Info("allocation blocked by risk pre-check",
			"process_id", processID,
			"resource_id", resourceID,
			"probability", pred.Probability,
			"risk_level", pred.Level,
		)
		return decision, nil, nil
	}

	err := c.resources.Allocate(processID, resourceID)
	switch {
	case err == nil:
		decision.Status = StatusAllocated
		c.creditAllocation(processID, resourceID)
	case errors.Is(err, resource.ErrResourceExhausted):
		decision.Status = StatusFailed
		decision.Reason = ReasonResourceExhausted
		c.recordPendingRequest(processID, resourceID)
	default:
		decision.Status = StatusFailed
		decision.Reason = ReasonUnknownResource
	}

	result := c.detector.Detect(ctx, c.processes.All())
	decision.DeadlockDetected = result.HasDeadlock
	if !result.HasDeadlock {
		return decision, nil, nil
	}

	res, ev := c.resolveLocked(result)
	decision.Resolution = &res
	return decision, ev, nil
}

// creditAllocation mirrors a successful allocation into the process view.
func (c *Coordinator) creditAllocation(processID, resourceID int) {
	p, _ := c.processes.Get(processID)
	requested, _ := removeFirst(p.Requested, resourceID)
	_ = c.processes.SetAllocated(processID, append(p.Allocated, resourceID))
	_ = c.processes.SetRequested(processID, requested)
	c.settleState(processID, len(requested))
}

// recordPendingRequest mirrors an exhausted allocation into the process view.
func (c *Coordinator) recordPendingRequest(processID, resourceID int) {
	p, _ := c.processes.Get(processID)
	if !contains(p.Requested, resourceID) {
		_ = c.processes.SetRequested(processID, append(p.Requested, resourceID))
	}
	_ = c.processes.SetState(processID, process.StateWaiting)
}

// settleState moves a process between ready and waiting according to its
// outstanding requests. Blocked processes are left alone.
func (c *Coordinator) settleState(processID, pending int) {
	p, ok := c.processes.Get(processID)
	if !ok || p.State == process.StateBlocked {
		return
	}
	if pending > 0 {
		_ = c.processes.SetState(processID, process.StateWaiting)
	} else {
		_ = c.processes.SetState(processID, process.StateReady)
	}
}

// ReleaseAllocation returns one instance of a resource held by a process.
//
// Unknown resources and processes that hold nothing are no-ops.
//
// Outputs:
//
//	bool - True if an instance was released.
func (c *Coordinator) ReleaseAllocation(ctx context.Context, processID, resourceID int) bool {
	_, span := tracer.Start(ctx, "Coordinator.ReleaseAllocation")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.resources.Release(processID, resourceID) {
		return false
	}
	if p, ok := c.processes.Get(processID); ok {
		allocated, _ := removeFirst(p.Allocated, resourceID)
		_ = c.processes.SetAllocated(processID, allocated)
		c.settleState(processID, len(p.Requested))
	}
	c.logger.Debug("resource released", "process_id", processID, "resource_id", resourceID)
	return true
}

// TerminateProcess removes a process outside the automated resolution path.
//
// Outputs:
//
//	[]int - Resource ids released, one per instance. Empty unless
//	  release-on-terminate is enabled.
//	error - process.ErrUnknownProcess if the process does not exist.
func (c *Coordinator) TerminateProcess(ctx context.Context, processID int) ([]int, error) {
	_, span := tracer.Start(ctx, "Coordinator.TerminateProcess")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	released, err := c.terminateLocked(processID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	c.logger.Info("process terminated", "process_id", processID, "released", released)
	return released, nil
}

func (c *Coordinator) terminateLocked(processID int) ([]int, error) {
	if !c.processes.Exists(processID) {
		return nil, fmt.Errorf("terminate process %d: %w", processID, process.ErrUnknownProcess)
	}
	var released []int
	if c.releaseOnTerminate {
		released = c.resources.ReleaseAll(processID)
	}
	if err := c.processes.Terminate(processID); err != nil {
		return nil, err
	}
	c.updateSizes()
	return released, nil
}

// =============================================================================
// Resolution
// =============================================================================

// Resolve runs detection on the current state and resolves a cycle if
// one exists.
func (c *Coordinator) Resolve(ctx context.Context) Resolution {
	ctx, span := tracer.Start(ctx, "Coordinator.Resolve")
	defer span.End()

	c.mu.Lock()
	result := c.detector.Detect(ctx, c.processes.All())
	if !result.HasDeadlock {
		c.mu.Unlock()
		return Resolution{Cycle: result.Cycle}
	}
	res, ev := c.resolveLocked(result)
	c.mu.Unlock()

	if ev != nil {
		res.Notified = c.hub.Publish(ctx, *ev)
	}
	span.SetAttributes(attribute.Int("deadlock.victim", res.Victim))
	return res
}

// resolveLocked terminates the victim of a detected cycle.
//
// Description:
//
//	The victim is the first process node in the cycle. Cycle members are
//	marked blocked, the victim is terminated and the survivors go back to
//	waiting. The returned event must be published after the lock is
//	released.
func (c *Coordinator) resolveLocked(result rag.CycleResult) (Resolution, *events.Event) {
	members := result.ProcessIDs()
	res := Resolution{DeadlockDetected: true, Cycle: result.Cycle}
	if len(members) == 0 {
		return res, nil
	}

	for _, pid := range members {
		_ = c.processes.SetState(pid, process.StateBlocked)
	}

	victim := members[0]
	released, err := c.terminateLocked(victim)
	if err != nil {
		c.logger.Error("failed to terminate deadlock victim", "victim", victim, "error", err)
		return res, nil
	}
	res.Victim = victim
	res.Released = released

	for _, pid := range members[1:] {
		_ = c.processes.SetState(pid, process.StateWaiting)
	}

	c.metrics.RecordResolution()
	c.logger.Info("deadlock resolved",
		"victim", victim,
		"cycle", result.Cycle,
		"released", released,
	)

	ev := events.DeadlockResolved(victim, result.Cycle)
	return res, &ev
}

// =============================================================================
// Mutators
// =============================================================================

// SetWaitTime sets a process's accumulated wait time.
func (c *Coordinator) SetWaitTime(processID int, v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processes.SetWaitTime(processID, v)
}

// SetRequested replaces a process's pending requests and moves it between
// ready and waiting accordingly.
func (c *Coordinator) SetRequested(processID int, ids []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.processes.SetRequested(processID, ids); err != nil {
		return err
	}
	c.settleState(processID, len(ids))
	return nil
}

// SetAllocated overrides a process's allocated view. The resource registry
// is not changed.
func (c *Coordinator) SetAllocated(processID int, ids []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processes.SetAllocated(processID, ids)
}

// =============================================================================
// Reads
// =============================================================================

// Process returns a copy of one process record.
func (c *Coordinator) Process(processID int) (process.Process, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processes.Get(processID)
}

// Snapshot returns the composite read model.
//
// Description:
//
//	Captures processes and resources, runs cycle detection and risk
//	prediction on that state, and includes the display view of the graph
//	just built. The result shares no memory with the coordinator.
func (c *Coordinator) Snapshot(ctx context.Context) Snapshot {
	ctx, span := tracer.Start(ctx, "Coordinator.Snapshot")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	procs := c.processes.All()
	res := c.resources.All()
	result := c.detector.Detect(ctx, procs)
	pred := c.estimator.Assess(ctx, procs, res)
	c.metrics.RecordPrediction(pred.Probability, string(pred.Level))

	return Snapshot{
		Processes:  procs,
		Resources:  res,
		Deadlock:   result,
		Prediction: pred,
		Graph:      c.detector.SnapshotView(),
		TakenAt:    c.now(),
	}
}

// Reset empties both registries and restarts id numbering. Observers stay
// subscribed.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.processes.Reset()
	c.resources.Reset()
	c.detector.Reset()
	c.updateSizes()
	c.logger.Info("system reset")
}

func (c *Coordinator) updateSizes() {
	c.metrics.SetSizes(c.processes.Len(), c.resources.Len())
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func removeFirst(ids []int, v int) ([]int, bool) {
	for i, id := range ids {
		if id == v {
			out := make([]int, 0, len(ids)-1)
			out = append(out, ids[:i]...)
			return append(out, ids[i+1:]...), true
		}
	}
	return append([]int{}, ids...), false
}

func contains(ids []int, v int) bool {
	for _, id := range ids {
		if id == v {
			return true
		}
	}
	return false
}
