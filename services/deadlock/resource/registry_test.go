// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkInvariant verifies Available == Instances - len(AllocatedTo) >= 0.
func checkInvariant(t *testing.T, r *Registry) {
	t.Helper()
	for _, res := range r.All() {
		assert.GreaterOrEqual(t, res.Available, 0, "R%d available", res.ID)
		assert.Equal(t, res.Instances-len(res.AllocatedTo), res.Available, "R%d bookkeeping", res.ID)
	}
}

func TestRegistry_Create(t *testing.T) {
	r := NewRegistry()

	id, err := r.Create("disk", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	res, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, 3, res.Instances)
	assert.Equal(t, 3, res.Available)
	assert.Empty(t, res.AllocatedTo)
	assert.Zero(t, res.InUse())
}

func TestRegistry_CreateRejectsInvalidInstances(t *testing.T) {
	r := NewRegistry()

	for _, n := range []int{0, -1} {
		_, err := r.Create("bad", n)
		assert.ErrorIs(t, err, ErrInvalidInstanceCount)
	}

	id, err := r.Create("ok", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, id, "rejected creates do not consume ids")
}

func TestRegistry_AllocateUntilExhausted(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("printer", 2)

	require.NoError(t, r.Allocate(1, id))
	require.NoError(t, r.Allocate(2, id))
	checkInvariant(t, r)

	before, _ := r.Get(id)
	err := r.Allocate(3, id)
	assert.ErrorIs(t, err, ErrResourceExhausted)

	after, _ := r.Get(id)
	assert.Equal(t, before, after, "failed allocate must not mutate")
	assert.Equal(t, 0, after.Available)
	assert.Equal(t, []int{1, 2}, after.AllocatedTo)
}

func TestRegistry_AllocateUnknownResource(t *testing.T) {
	r := NewRegistry()
	err := r.Allocate(1, 7)
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestRegistry_SameProcessMayHoldSeveralInstances(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("cpu", 3)

	require.NoError(t, r.Allocate(1, id))
	require.NoError(t, r.Allocate(1, id))

	assert.True(t, r.Release(1, id))
	res, _ := r.Get(id)
	assert.Equal(t, []int{1}, res.AllocatedTo, "only one occurrence removed")
	assert.Equal(t, 2, res.Available)
	checkInvariant(t, r)
}

func TestRegistry_ReleaseNoops(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("lock", 1)
	require.NoError(t, r.Allocate(1, id))
	before := r.All()

	assert.False(t, r.Release(2, id), "process not holding the resource")
	assert.False(t, r.Release(1, 99), "unknown resource")
	assert.Equal(t, before, r.All())

	assert.True(t, r.Release(1, id))
	assert.False(t, r.Release(1, id), "second release is idempotent")
	checkInvariant(t, r)
}

func TestRegistry_ReleaseAll(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Create("a", 3)
	b, _ := r.Create("b", 1)
	require.NoError(t, r.Allocate(1, a))
	require.NoError(t, r.Allocate(1, a))
	require.NoError(t, r.Allocate(1, b))
	require.NoError(t, r.Allocate(2, a))

	released := r.ReleaseAll(1)
	assert.Equal(t, []int{a, a, b}, released)

	resA, _ := r.Get(a)
	assert.Equal(t, []int{2}, resA.AllocatedTo, "other holders are kept")
	checkInvariant(t, r)
}

func TestRegistry_ResetRestartsNumbering(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Create("a", 1)
	_, _ = r.Create("b", 1)

	r.Reset()
	assert.Empty(t, r.All())
	id, err := r.Create("c", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
}
