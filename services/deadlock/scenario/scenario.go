// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scenario builds canned demonstration states through a
// coordinator's public operations.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/coordinator"
)

// Scenario names.
const (
	TwoProcess = "two-process"
	Ring       = "ring"
	SafeState  = "safe-state"
)

// Ring size bounds.
const (
	DefaultRingSize = 5
	MinRingSize     = 2
	MaxRingSize     = 64
)

var (
	// ErrUnknownScenario is returned for an unregistered name.
	ErrUnknownScenario = errors.New("unknown scenario")

	// ErrInvalidSize is returned for a ring size outside the bounds.
	ErrInvalidSize = errors.New("invalid scenario size")

	// ErrSetupFailed is returned when an allocation the scenario depends
	// on was not granted, for example because the pre-check blocked it.
	ErrSetupFailed = errors.New("scenario setup failed")
)

// Target is the subset of the coordinator a scenario drives.
type Target interface {
	Reset()
	CreateProcess(name string, requested []int) int
	CreateResource(name string, instances int) (int, error)
	RequestAllocation(ctx context.Context, processID, resourceID int) (coordinator.Decision, error)
	SetRequested(processID int, ids []int) error
	SetWaitTime(processID int, v float64) error
	Snapshot(ctx context.Context) coordinator.Snapshot
}

type builder func(ctx context.Context, t Target, size int) error

var registry = map[string]builder{
	TwoProcess: buildTwoProcess,
	Ring:       buildRing,
	SafeState:  buildSafeState,
}

// Names lists the registered scenarios in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run resets t, builds the named scenario and returns the resulting
// snapshot.
//
// Inputs:
//
//	ctx - Context passed to allocation requests.
//	t - The coordinator to drive.
//	name - Scenario name; see Names.
//	size - Ring size. Ignored by the other scenarios; 0 uses the default.
//
// Outputs:
//
//	coordinator.Snapshot - State after setup. Deadlock scenarios are left
//	  unresolved so the cycle is visible.
//	error - ErrUnknownScenario, ErrInvalidSize or ErrSetupFailed.
func Run(ctx context.Context, t Target, name string, size int) (coordinator.Snapshot, error) {
	build, ok := registry[name]
	if !ok {
		return coordinator.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	t.Reset()
	if err := build(ctx, t, size); err != nil {
		return coordinator.Snapshot{}, fmt.Errorf("scenario %s: %w", name, err)
	}
	return t.Snapshot(ctx), nil
}

// buildTwoProcess leaves P1 holding R1 and waiting on R2 while P2 holds R2
// and waits on R1.
func buildTwoProcess(ctx context.Context, t Target, _ int) error {
	return buildCycle(ctx, t, 2)
}

// buildRing leaves each of n processes holding its own resource and
// waiting on the next one.
func buildRing(ctx context.Context, t Target, size int) error {
	if size == 0 {
		size = DefaultRingSize
	}
	if size < MinRingSize || size > MaxRingSize {
		return fmt.Errorf("%w: ring of %d (want %d..%d)", ErrInvalidSize, size, MinRingSize, MaxRingSize)
	}
	return buildCycle(ctx, t, size)
}

func buildCycle(ctx context.Context, t Target, n int) error {
	resources := make([]int, n)
	for i := range resources {
		id, err := t.CreateResource(fmt.Sprintf("resource-%d", i+1), 1)
		if err != nil {
			return err
		}
		resources[i] = id
	}

	processes := make([]int, n)
	for i := range processes {
		processes[i] = t.CreateProcess(fmt.Sprintf("process-%d", i+1), nil)
	}

	for i, pid := range processes {
		if err := grant(ctx, t, pid, resources[i]); err != nil {
			return err
		}
	}
	for i, pid := range processes {
		if err := t.SetRequested(pid, []int{resources[(i+1)%n]}); err != nil {
			return err
		}
		if err := t.SetWaitTime(pid, float64(10*(i+1))); err != nil {
			return err
		}
	}
	return nil
}

// buildSafeState shares a two-instance resource between two processes and
// gives a third its own resource. Nothing waits.
func buildSafeState(ctx context.Context, t Target, _ int) error {
	shared, err := t.CreateResource("shared-pool", 2)
	if err != nil {
		return err
	}
	exclusive, err := t.CreateResource("exclusive", 1)
	if err != nil {
		return err
	}

	p1 := t.CreateProcess("process-1", nil)
	p2 := t.CreateProcess("process-2", nil)
	p3 := t.CreateProcess("process-3", nil)

	for _, g := range [][2]int{{p1, shared}, {p2, shared}, {p3, exclusive}} {
		if err := grant(ctx, t, g[0], g[1]); err != nil {
			return err
		}
	}
	return nil
}

func grant(ctx context.Context, t Target, pid, rid int) error {
	d, err := t.RequestAllocation(ctx, pid, rid)
	if err != nil {
		return err
	}
	if d.Status != coordinator.StatusAllocated {
		return fmt.Errorf("%w: P%d -> R%d was %s (%s)", ErrSetupFailed, pid, rid, d.Status, d.Reason)
	}
	return nil
}
