// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resource owns multi-instance resource records and their
// allocation bookkeeping.
//
// Invariant: for every resource, Available == Instances - len(AllocatedTo)
// and Available is never negative. Allocate and Release are the only
// operations that change the bookkeeping and both preserve the invariant.
//
// The registry never writes to process records. Keeping the process-side
// view coherent is the caller's job.
//
// Thread Safety:
//
//	Registry is NOT safe for concurrent use. The coordinator serializes all
//	access under its own mutex.
package resource

import "fmt"

// Resource is a single resource record.
type Resource struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Instances   int    `json:"instances"`
	Available   int    `json:"available"`
	AllocatedTo []int  `json:"allocated_to"`
}

// InUse returns the number of instances currently allocated.
func (r Resource) InUse() int {
	return r.Instances - r.Available
}

func (r *Resource) clone() Resource {
	c := *r
	c.AllocatedTo = append(make([]int, 0, len(r.AllocatedTo)), r.AllocatedTo...)
	return c
}

// Registry owns all resource records.
type Registry struct {
	records map[int]*Resource
	order   []int
	nextID  int
}

// NewRegistry creates an empty registry whose first id is 1.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Reset()
	return r
}

// Create registers a resource with a fixed instance count.
//
// Description:
//
//	Assigns the next id and starts fully available. The instance count
//	never changes after creation.
//
// Inputs:
//
//	name - Display name.
//	instances - Number of interchangeable instances. Must be >= 1.
//
// Outputs:
//
//	int - The new resource id.
//	error - ErrInvalidInstanceCount if instances < 1. No id is consumed.
func (r *Registry) Create(name string, instances int) (int, error) {
	if instances < 1 {
		return 0, fmt.Errorf("create %q with %d instances: %w", name, instances, ErrInvalidInstanceCount)
	}
	r.nextID++
	res := &Resource{
		ID:          r.nextID,
		Name:        name,
		Instances:   instances,
		Available:   instances,
		AllocatedTo: []int{},
	}
	r.records[res.ID] = res
	r.order = append(r.order, res.ID)
	return res.ID, nil
}

// Allocate grants one instance of a resource to a process.
//
// Description:
//
//	On success Available drops by one and processID is appended to
//	AllocatedTo. On failure nothing changes.
//
// Inputs:
//
//	processID - The process receiving the instance. Not validated here.
//	resourceID - The resource to allocate from.
//
// Outputs:
//
//	error - nil on success; ErrUnknownResource or ErrResourceExhausted.
func (r *Registry) Allocate(processID, resourceID int) error {
	res, ok := r.records[resourceID]
	if !ok {
		return fmt.Errorf("allocate R%d to P%d: %w", resourceID, processID, ErrUnknownResource)
	}
	if res.Available == 0 {
		return fmt.Errorf("allocate R%d to P%d: %w", resourceID, processID, ErrResourceExhausted)
	}
	res.Available--
	res.AllocatedTo = append(res.AllocatedTo, processID)
	return nil
}

// Release returns one instance held by processID.
//
// Removes the first occurrence of processID from AllocatedTo. Unknown
// resources and processes that hold nothing are no-ops.
//
// Outputs:
//
//	bool - True if an instance was released.
func (r *Registry) Release(processID, resourceID int) bool {
	res, ok := r.records[resourceID]
	if !ok {
		return false
	}
	for i, pid := range res.AllocatedTo {
		if pid == processID {
			res.AllocatedTo = append(res.AllocatedTo[:i], res.AllocatedTo[i+1:]...)
			res.Available++
			return true
		}
	}
	return false
}

// ReleaseAll returns every instance held by processID across all
// resources and reports the released resource ids, one entry per instance.
func (r *Registry) ReleaseAll(processID int) []int {
	var released []int
	for _, id := range r.order {
		for r.Release(processID, id) {
			released = append(released, id)
		}
	}
	return released
}

// Get returns a copy of the resource with the given id.
func (r *Registry) Get(id int) (Resource, bool) {
	res, ok := r.records[id]
	if !ok {
		return Resource{}, false
	}
	return res.clone(), true
}

// All returns copies of every resource in creation order.
func (r *Registry) All() []Resource {
	out := make([]Resource, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].clone())
	}
	return out
}

// Len returns the number of resources.
func (r *Registry) Len() int {
	return len(r.order)
}

// Reset clears all records and restarts id numbering at 1.
func (r *Registry) Reset() {
	r.records = make(map[int]*Resource)
	r.order = nil
	r.nextID = 0
}
