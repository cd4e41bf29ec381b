// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rag builds resource-allocation graphs and detects cycles in them.
//
// # Graph Model
//
// Nodes are "P<id>" for processes and "R<id>" for resources. Edges:
//
//	R<r> -> P<p>   for every r in process p's allocated list ("held by")
//	P<p> -> R<r>   for every r in process p's requested list ("requested by")
//
// The graph is simple: inserting an existing edge is a no-op. Resource
// nodes are created lazily the first time a process references them, so
// dangling resource ids never cause a failure.
//
// # Determinism
//
// Processes are added in ascending id order and, within a process, the
// allocated edges are added before the requested edges. Cycle detection
// walks roots and successors in insertion order, so the first cycle found
// is a pure function of the input.
package rag

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/process"
)

// NodeType tags a node as a process or a resource.
type NodeType string

const (
	NodeProcess  NodeType = "process"
	NodeResource NodeType = "resource"
)

// Node is a graph vertex.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
}

// Edge is a directed graph edge.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// ProcessNodeID returns the node id for a process.
func ProcessNodeID(id int) string { return "P" + strconv.Itoa(id) }

// ResourceNodeID returns the node id for a resource.
func ResourceNodeID(id int) string { return "R" + strconv.Itoa(id) }

// ParseNodeID splits a node id into its type and numeric id.
//
// Outputs:
//
//	NodeType - NodeProcess or NodeResource.
//	int - The numeric id.
//	error - Non-nil if the id is not of the form P<n> or R<n>.
func ParseNodeID(id string) (NodeType, int, error) {
	if len(id) < 2 {
		return "", 0, fmt.Errorf("malformed node id %q", id)
	}
	var typ NodeType
	switch id[0] {
	case 'P':
		typ = NodeProcess
	case 'R':
		typ = NodeResource
	default:
		return "", 0, fmt.Errorf("malformed node id %q", id)
	}
	n, err := strconv.Atoi(id[1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed node id %q: %w", id, err)
	}
	return typ, n, nil
}

// Graph is a directed resource-allocation graph.
//
// Thread Safety: Graph is immutable after Build returns and may be read
// concurrently.
type Graph struct {
	nodes []Node
	types map[string]NodeType
	adj   map[string][]string
	seen  map[Edge]struct{}
	edges []Edge
}

func newGraph() *Graph {
	return &Graph{
		types: make(map[string]NodeType),
		adj:   make(map[string][]string),
		seen:  make(map[Edge]struct{}),
	}
}

// Build constructs the graph from process records.
//
// Description:
//
//	Only process records are consulted. Callers must keep each process's
//	allocated and requested lists authoritative for detection to be
//	meaningful. The input slice is not modified.
//
// Inputs:
//
//	processes - Process snapshot, in any order.
//
// Outputs:
//
//	*Graph - The built graph. Never nil.
func Build(processes []process.Process) *Graph {
	sorted := slices.Clone(processes)
	slices.SortStableFunc(sorted, func(a, b process.Process) int { return a.ID - b.ID })

	g := newGraph()
	for _, p := range sorted {
		pid := ProcessNodeID(p.ID)
		g.addNode(pid, NodeProcess)
		for _, r := range p.Allocated {
			rid := ResourceNodeID(r)
			g.addNode(rid, NodeResource)
			g.addEdge(rid, pid)
		}
		for _, r := range p.Requested {
			rid := ResourceNodeID(r)
			g.addNode(rid, NodeResource)
			g.addEdge(pid, rid)
		}
	}
	return g
}

func (g *Graph) addNode(id string, typ NodeType) {
	if _, ok := g.types[id]; ok {
		return
	}
	g.types[id] = typ
	g.nodes = append(g.nodes, Node{ID: id, Type: typ})
}

func (g *Graph) addEdge(src, dst string) {
	e := Edge{Source: src, Target: dst}
	if _, ok := g.seen[e]; ok {
		return
	}
	g.seen[e] = struct{}{}
	g.edges = append(g.edges, e)
	g.adj[src] = append(g.adj[src], dst)
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// HasEdge reports whether src -> dst exists.
func (g *Graph) HasEdge(src, dst string) bool {
	_, ok := g.seen[Edge{Source: src, Target: dst}]
	return ok
}

// TypeOf returns the type of a node, or "" if absent.
func (g *Graph) TypeOf(id string) NodeType { return g.types[id] }

// Successors returns the out-neighbours of a node in insertion order.
func (g *Graph) Successors(id string) []string {
	return slices.Clone(g.adj[id])
}

// View is the display form of a graph.
type View struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// View serializes the graph for display.
func (g *Graph) View() View {
	if g == nil {
		return View{Nodes: []Node{}, Edges: []Edge{}}
	}
	return View{
		Nodes: append(make([]Node, 0, len(g.nodes)), g.nodes...),
		Edges: append(make([]Edge, 0, len(g.edges)), g.edges...),
	}
}

// CycleError describes a detected cycle.
type CycleError struct {
	Path []string
}

// Error returns the cycle description.
func (e *CycleError) Error() string {
	return "cycle detected: " + strings.Join(e.Path, " -> ")
}

// NewCycleError creates a CycleError.
func NewCycleError(path []string) *CycleError {
	return &CycleError{Path: path}
}
