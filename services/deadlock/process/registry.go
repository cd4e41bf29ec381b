// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package process owns process records and their lifecycle.
//
// A process is identified by a positive integer assigned monotonically by
// its Registry. Its allocated and requested resource lists are the
// process-side view of demand and supply; they feed the resource-allocation
// graph built by package rag.
//
// Thread Safety:
//
//	Registry is NOT safe for concurrent use. The coordinator serializes all
//	access under its own mutex.
package process

import (
	"fmt"
	"math"
	"time"
)

// State is the lifecycle state of a process.
type State string

const (
	// StateReady means the process has no outstanding requests.
	StateReady State = "ready"

	// StateWaiting means the process has at least one unsatisfied request.
	StateWaiting State = "waiting"

	// StateBlocked means the process is waiting and part of a detected cycle.
	StateBlocked State = "blocked"

	// StateTerminated is logical only; terminated records are removed.
	StateTerminated State = "terminated"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateReady, StateWaiting, StateBlocked, StateTerminated:
		return true
	}
	return false
}

// Process is a single process record.
//
// Values returned by the Registry are copies; mutate through the
// Registry's setters.
type Process struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Allocated []int     `json:"allocated"`
	Requested []int     `json:"requested"`
	WaitTime  float64   `json:"wait_time"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// HoldsAndRequests reports whether the process both holds and requests
// resources at the same time.
func (p Process) HoldsAndRequests() bool {
	return len(p.Allocated) > 0 && len(p.Requested) > 0
}

// clone returns a deep copy so callers never alias registry storage.
func (p *Process) clone() Process {
	c := *p
	c.Allocated = append(make([]int, 0, len(p.Allocated)), p.Allocated...)
	c.Requested = append(make([]int, 0, len(p.Requested)), p.Requested...)
	return c
}

// Registry owns all process records.
type Registry struct {
	records map[int]*Process
	order   []int
	nextID  int
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty registry whose first id is 1.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.Reset()
	return r
}

// Create registers a new process.
//
// Description:
//
//	Assigns the next id, starts with no allocations, the given initial
//	requests, zero wait time and state ready.
//
// Inputs:
//
//	name - Display name. Not required to be unique.
//	requested - Initial requested resource ids. Copied; may be nil.
//
// Outputs:
//
//	int - The new process id.
func (r *Registry) Create(name string, requested []int) int {
	r.nextID++
	p := &Process{
		ID:        r.nextID,
		Name:      name,
		Allocated: []int{},
		Requested: append([]int{}, requested...),
		State:     StateReady,
		CreatedAt: r.now(),
	}
	r.records[p.ID] = p
	r.order = append(r.order, p.ID)
	return p.ID
}

// Terminate removes the record entirely.
//
// Resources recorded as held in the resource registry are untouched.
func (r *Registry) Terminate(id int) error {
	if _, ok := r.records[id]; !ok {
		return fmt.Errorf("terminate %d: %w", id, ErrUnknownProcess)
	}
	delete(r.records, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a copy of the record with the given id.
func (r *Registry) Get(id int) (Process, bool) {
	p, ok := r.records[id]
	if !ok {
		return Process{}, false
	}
	return p.clone(), true
}

// Exists reports whether a process with the given id is registered.
func (r *Registry) Exists(id int) bool {
	_, ok := r.records[id]
	return ok
}

// SetRequested replaces the requested list.
func (r *Registry) SetRequested(id int, ids []int) error {
	p, err := r.lookup(id)
	if err != nil {
		return err
	}
	p.Requested = append([]int{}, ids...)
	return nil
}

// SetAllocated replaces the allocated list.
func (r *Registry) SetAllocated(id int, ids []int) error {
	p, err := r.lookup(id)
	if err != nil {
		return err
	}
	p.Allocated = append([]int{}, ids...)
	return nil
}

// SetWaitTime sets the accumulated wait time. Must be finite and >= 0.
func (r *Registry) SetWaitTime(id int, v float64) error {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("wait time %v: %w", v, ErrInvalidWaitTime)
	}
	p, err := r.lookup(id)
	if err != nil {
		return err
	}
	p.WaitTime = v
	return nil
}

// SetState sets the lifecycle state.
func (r *Registry) SetState(id int, s State) error {
	if !s.Valid() {
		return fmt.Errorf("state %q: %w", s, ErrInvalidState)
	}
	p, err := r.lookup(id)
	if err != nil {
		return err
	}
	p.State = s
	return nil
}

// All returns copies of every record in creation order.
func (r *Registry) All() []Process {
	out := make([]Process, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].clone())
	}
	return out
}

// Len returns the number of live records.
func (r *Registry) Len() int {
	return len(r.order)
}

// Reset clears all records and restarts id numbering at 1.
func (r *Registry) Reset() {
	r.records = make(map[int]*Process)
	r.order = nil
	r.nextID = 0
}

func (r *Registry) lookup(id int) (*Process, error) {
	p, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("process %d: %w", id, ErrUnknownProcess)
	}
	return p, nil
}
