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

	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/process"
)

// -----------------------------------------------------------------------------
// Cycle Detection
// -----------------------------------------------------------------------------

// CycleResult is the verdict of a cycle search.
type CycleResult struct {
	// HasDeadlock is true if the graph contains a cycle.
	HasDeadlock bool `json:"has_deadlock"`

	// Cycle lists the nodes of the first cycle found, starting at the
	// node where the search re-entered the cycle. The start node is not
	// repeated at the end. Empty when HasDeadlock is false.
	Cycle []string `json:"cycle"`
}

// Err returns a *CycleError for a detected cycle, nil otherwise.
func (r CycleResult) Err() error {
	if !r.HasDeadlock {
		return nil
	}
	return NewCycleError(r.Cycle)
}

// ProcessIDs returns the ids of the process nodes in the cycle, in cycle
// order.
func (r CycleResult) ProcessIDs() []int {
	var ids []int
	for _, n := range r.Cycle {
		if typ, id, err := ParseNodeID(n); err == nil && typ == NodeProcess {
			ids = append(ids, id)
		}
	}
	return ids
}

const (
	white = iota // not visited
	grey         // on the current DFS path
	black        // fully explored
)

type frame struct {
	node string
	next int
}

// DetectCycle finds the first cycle in g.
//
// Description:
//
//	Iterative depth-first search with an explicit stack. Roots are taken in
//	node insertion order and successors in edge insertion order. A back
//	edge to a node still on the stack closes a cycle; the cycle is the
//	stack suffix starting at that node.
//
//	Time Complexity: O(V + E).
//
// Inputs:
//
//	g - The graph. A nil graph has no cycle.
//
// Outputs:
//
//	CycleResult - HasDeadlock and the ordered cycle, if any.
func DetectCycle(g *Graph) CycleResult {
	if g == nil {
		return CycleResult{Cycle: []string{}}
	}

	color := make(map[string]int, len(g.nodes))
	for _, root := range g.nodes {
		if color[root.ID] != white {
			continue
		}

		stack := []frame{{node: root.ID}}
		color[root.ID] = grey

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			succ := g.adj[top.node]
			if top.next >= len(succ) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}

			next := succ[top.next]
			top.next++

			switch color[next] {
			case grey:
				return CycleResult{HasDeadlock: true, Cycle: cycleFrom(stack, next)}
			case white:
				color[next] = grey
				stack = append(stack, frame{node: next})
			}
		}
	}
	return CycleResult{Cycle: []string{}}
}

func cycleFrom(stack []frame, entry string) []string {
	start := 0
	for i, f := range stack {
		if f.node == entry {
			start = i
			break
		}
	}
	cycle := make([]string, 0, len(stack)-start)
	for _, f := range stack[start:] {
		cycle = append(cycle, f.node)
	}
	return cycle
}

// -----------------------------------------------------------------------------
// Detector
// -----------------------------------------------------------------------------

// Detector builds graphs from snapshots and caches the most recent one for
// inspection.
//
// Thread Safety: Safe for concurrent use.
type Detector struct {
	mu   sync.RWMutex
	last *Graph
}

// NewDetector creates a detector with no cached graph.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect builds the graph for the given processes, caches it, and runs
// cycle detection.
//
// Inputs:
//
//	ctx - Context for tracing.
//	processes - Process snapshot.
//
// Outputs:
//
//	CycleResult - The verdict for the built graph.
func (d *Detector) Detect(ctx context.Context, processes []process.Process) CycleResult {
	ctx, span := startDetectSpan(ctx, len(processes))
	defer span.End()

	start := time.Now()
	g := Build(processes)
	recordBuildMetrics(ctx, time.Since(start), g.NodeCount(), g.EdgeCount())

	d.mu.Lock()
	d.last = g
	d.mu.Unlock()

	start = time.Now()
	result := DetectCycle(g)
	recordDetectMetrics(ctx, time.Since(start), result.HasDeadlock)
	setDetectSpanResult(span, g, result)
	return result
}

// SnapshotView returns the display form of the most recently built graph.
// Before the first Detect call the view is empty.
func (d *Detector) SnapshotView() View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last.View()
}

// Reset drops the cached graph.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.last = nil
	d.mu.Unlock()
}
