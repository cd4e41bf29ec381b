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
	"math/rand"
	"testing"

	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proc(id int, allocated, requested []int) process.Process {
	return process.Process{ID: id, Allocated: allocated, Requested: requested}
}

// assertValidCycle checks that consecutive nodes are joined by edges and
// the last node links back to the first.
func assertValidCycle(t *testing.T, g *Graph, cycle []string) {
	t.Helper()
	require.NotEmpty(t, cycle)
	for i := range cycle {
		src := cycle[i]
		dst := cycle[(i+1)%len(cycle)]
		assert.True(t, g.HasEdge(src, dst), "missing edge %s -> %s", src, dst)
	}
}

// hasCycleBruteForce reports whether any node can reach itself.
func hasCycleBruteForce(g *Graph) bool {
	for _, n := range g.nodes {
		seen := map[string]bool{}
		queue := append([]string{}, g.adj[n.ID]...)
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if cur == n.ID {
				return true
			}
			if seen[cur] {
				continue
			}
			seen[cur] = true
			queue = append(queue, g.adj[cur]...)
		}
	}
	return false
}

func TestBuild_NodesAndEdges(t *testing.T) {
	g := Build([]process.Process{
		proc(1, []int{1}, []int{2}),
	})

	view := g.View()
	assert.Equal(t, []Node{
		{ID: "P1", Type: NodeProcess},
		{ID: "R1", Type: NodeResource},
		{ID: "R2", Type: NodeResource},
	}, view.Nodes)
	assert.Equal(t, []Edge{
		{Source: "R1", Target: "P1"},
		{Source: "P1", Target: "R2"},
	}, view.Edges)
}

func TestBuild_DuplicateEdgesAreNoops(t *testing.T) {
	g := Build([]process.Process{
		proc(1, []int{1, 1}, []int{2, 2}),
	})
	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())
}

func TestBuild_OrdersByProcessID(t *testing.T) {
	in := []process.Process{proc(3, nil, nil), proc(1, nil, nil), proc(2, nil, nil)}
	g := Build(in)

	ids := make([]string, 0, 3)
	for _, n := range g.View().Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"P1", "P2", "P3"}, ids)
	assert.Equal(t, 3, in[0].ID, "input is not reordered")
}

func TestDetectCycle_TwoProcessMutualHold(t *testing.T) {
	g := Build([]process.Process{
		proc(1, []int{1}, []int{2}),
		proc(2, []int{2}, []int{1}),
	})

	result := DetectCycle(g)
	require.True(t, result.HasDeadlock)
	assert.Equal(t, []string{"P1", "R2", "P2", "R1"}, result.Cycle)
	assert.ElementsMatch(t, []int{1, 2}, result.ProcessIDs())
	assertValidCycle(t, g, result.Cycle)

	var cerr *CycleError
	require.ErrorAs(t, result.Err(), &cerr)
	assert.Equal(t, result.Cycle, cerr.Path)
}

func TestDetectCycle_FiveProcessRing(t *testing.T) {
	var procs []process.Process
	for i := 1; i <= 5; i++ {
		next := i%5 + 1
		procs = append(procs, proc(i, []int{i}, []int{next}))
	}
	g := Build(procs)

	result := DetectCycle(g)
	require.True(t, result.HasDeadlock)
	assert.Len(t, result.Cycle, 10)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, result.ProcessIDs())
	assertValidCycle(t, g, result.Cycle)
}

func TestDetectCycle_DisjointHoldersHaveNoCycle(t *testing.T) {
	g := Build([]process.Process{
		proc(1, []int{1}, nil),
		proc(2, []int{2}, nil),
	})

	result := DetectCycle(g)
	assert.False(t, result.HasDeadlock)
	assert.Empty(t, result.Cycle)
	assert.NoError(t, result.Err())
}

func TestDetectCycle_ChainWithoutClosure(t *testing.T) {
	// P1 waits on R2 held by P2, P2 waits on R3 which nobody holds.
	g := Build([]process.Process{
		proc(1, []int{1}, []int{2}),
		proc(2, []int{2}, []int{3}),
	})
	assert.False(t, DetectCycle(g).HasDeadlock)
}

func TestDetectCycle_CycleNotThroughFirstRoot(t *testing.T) {
	g := Build([]process.Process{
		proc(1, nil, []int{2}),
		proc(2, []int{2}, []int{3}),
		proc(3, []int{3}, []int{2}),
	})

	result := DetectCycle(g)
	require.True(t, result.HasDeadlock)
	assert.Equal(t, []string{"R2", "P2", "R3", "P3"}, result.Cycle)
	assert.Equal(t, []int{2, 3}, result.ProcessIDs())
}

func TestDetectCycle_NilAndEmpty(t *testing.T) {
	assert.False(t, DetectCycle(nil).HasDeadlock)
	assert.False(t, DetectCycle(Build(nil)).HasDeadlock)
}

func TestDetectCycle_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 500; trial++ {
		nProc := 1 + rng.Intn(6)
		nRes := 1 + rng.Intn(6)
		procs := make([]process.Process, 0, nProc)
		for p := 1; p <= nProc; p++ {
			var alloc, req []int
			for k := rng.Intn(3); k > 0; k-- {
				alloc = append(alloc, 1+rng.Intn(nRes))
			}
			for k := rng.Intn(3); k > 0; k-- {
				req = append(req, 1+rng.Intn(nRes))
			}
			procs = append(procs, proc(p, alloc, req))
		}

		g := Build(procs)
		result := DetectCycle(g)
		require.Equal(t, hasCycleBruteForce(g), result.HasDeadlock, "trial %d: %+v", trial, procs)
		if result.HasDeadlock {
			assertValidCycle(t, g, result.Cycle)
		}
	}
}

func TestDetectCycle_IsDeterministic(t *testing.T) {
	procs := []process.Process{
		proc(2, []int{2}, []int{1}),
		proc(1, []int{1}, []int{2}),
	}
	first := DetectCycle(Build(procs))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DetectCycle(Build(procs)))
	}
}

func TestParseNodeID(t *testing.T) {
	tests := []struct {
		in      string
		typ     NodeType
		id      int
		wantErr bool
	}{
		{"P1", NodeProcess, 1, false},
		{"R42", NodeResource, 42, false},
		{"X1", "", 0, true},
		{"P", "", 0, true},
		{"Pabc", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			typ, id, err := ParseNodeID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestDetector_CachesLastGraph(t *testing.T) {
	d := NewDetector()
	assert.Empty(t, d.SnapshotView().Nodes)

	result := d.Detect(context.Background(), []process.Process{
		proc(1, []int{1}, []int{2}),
		proc(2, []int{2}, []int{1}),
	})
	require.True(t, result.HasDeadlock)

	view := d.SnapshotView()
	assert.Len(t, view.Nodes, 4)
	assert.Len(t, view.Edges, 4)

	d.Reset()
	assert.Empty(t, d.SnapshotView().Edges)
}
