// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrObserverFull is returned when a channel observer's buffer is full
	// and the event was dropped.
	ErrObserverFull = errors.New("observer buffer full")

	// ErrObserverClosed is returned after Close.
	ErrObserverClosed = errors.New("observer closed")
)

// ChannelObserver buffers events for a single consumer, such as a
// websocket writer goroutine.
//
// Notify never blocks. When the buffer is full a snapshot is dropped, while
// an urgent event such as deadlock_resolved evicts the oldest buffered
// snapshot. Both cases count as one drop.
type ChannelObserver struct {
	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped atomic.Int64
}

// NewChannelObserver creates an observer with the given buffer size.
func NewChannelObserver(size int) *ChannelObserver {
	if size < 1 {
		size = 1
	}
	return &ChannelObserver{ch: make(chan Event, size)}
}

// Notify implements Observer.
func (c *ChannelObserver) Notify(_ context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrObserverClosed
	}
	ok, evicted := offer(c.ch, ev, ev.Urgent(), func(q Event) bool { return !q.Urgent() })
	if evicted || !ok {
		c.dropped.Add(1)
	}
	if !ok {
		return ErrObserverFull
	}
	return nil
}

// Events returns the receive side. It is closed by Close.
func (c *ChannelObserver) Events() <-chan Event { return c.ch }

// Dropped returns how many events were discarded.
func (c *ChannelObserver) Dropped() int64 { return c.dropped.Load() }

// Close stops delivery. Safe to call more than once.
func (c *ChannelObserver) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
