// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events fans deadlock notifications and state snapshots out to
// observers.
//
// Delivery is best effort and isolated per observer. An observer that
// returns an error, panics or stalls never affects delivery to the others
// and never blocks the publisher.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of event.
type Type string

const (
	// TypeDeadlockResolved is published once per automated resolution.
	TypeDeadlockResolved Type = "deadlock_resolved"

	// TypeSnapshot carries a periodic state snapshot.
	TypeSnapshot Type = "snapshot"
)

// Event is the payload delivered to observers.
type Event struct {
	ID        string    `json:"id"`
	Event     Type      `json:"event"`
	Victim    int       `json:"victim,omitempty"`
	Cycle     []string  `json:"cycle,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DeadlockResolved builds the notification for a terminated victim.
func DeadlockResolved(victim int, cycle []string) Event {
	return Event{
		ID:        uuid.NewString(),
		Event:     TypeDeadlockResolved,
		Victim:    victim,
		Cycle:     cycle,
		Timestamp: time.Now(),
	}
}

// Snapshot wraps a state snapshot for streaming.
func Snapshot(data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Event:     TypeSnapshot,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// Observer receives events.
type Observer interface {
	Notify(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event) error

// Notify calls f.
func (f ObserverFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// ErrObserverPanicked wraps a recovered observer panic.
var ErrObserverPanicked = errors.New("observer panicked")

// Urgent reports whether ev must not be lost to a routine snapshot when a
// queue is full.
func (ev Event) Urgent() bool { return ev.Event != TypeSnapshot }

// =============================================================================
// Hub
// =============================================================================

const (
	// DefaultQueueSize is the per-subscription delivery queue length.
	DefaultQueueSize = 64

	// DefaultDeliveryTimeout bounds a single Notify call.
	DefaultDeliveryTimeout = 5 * time.Second
)

// Hub holds the set of registered observers.
//
// Description:
//
//	Every subscription owns a bounded queue drained by its own delivery
//	goroutine, so Publish never waits on an observer and a slow observer
//	only delays its own queue. When a queue is full a snapshot is dropped;
//	an urgent event evicts the oldest queued snapshot instead.
//
// Thread Safety: Hub is safe for concurrent use. Events reach each
// observer in publish order.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]*subscription
	order     []string
	logger    *slog.Logger
	onFailure func(id string, err error)
	queueSize int
	timeout   time.Duration
}

type delivery struct {
	ctx context.Context
	ev  Event
}

type subscription struct {
	id       string
	observer Observer
	queue    chan delivery
	stop     chan struct{}

	// offerMu serialises producers on queue.
	offerMu sync.Mutex
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the logger used for delivery failures.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithFailureHook registers a callback run after every failed or dropped
// delivery. It is called from delivery goroutines and must be safe for
// concurrent use.
func WithFailureHook(fn func(id string, err error)) HubOption {
	return func(h *Hub) {
		h.onFailure = fn
	}
}

// WithQueueSize sets the per-subscription queue length.
func WithQueueSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithDeliveryTimeout bounds each Notify call through its context.
func WithDeliveryTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:      make(map[string]*subscription),
		logger:    slog.Default(),
		queueSize: DefaultQueueSize,
		timeout:   DefaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers an observer, starts its delivery goroutine and
// returns the subscription id.
func (h *Hub) Subscribe(o Observer) string {
	s := &subscription{
		id:       uuid.NewString(),
		observer: o,
		queue:    make(chan delivery, h.queueSize),
		stop:     make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[s.id] = s
	h.order = append(h.order, s.id)
	h.mu.Unlock()

	go h.deliver(s)
	return s.id
}

// Unsubscribe removes a subscription and stops its delivery goroutine.
// Events still queued for it are discarded. Returns false if id is unknown.
func (h *Hub) Unsubscribe(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subs[id]
	if !ok {
		return false
	}
	delete(h.subs, id)
	for i, oid := range h.order {
		if oid == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	close(s.stop)
	return true
}

// Len returns the number of observers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish queues ev for every observer and returns without waiting for
// delivery.
//
// Description:
//
//	Nothing is queued once ctx is done. Deliveries run under a context
//	that keeps ctx's values but not its cancellation, bounded by the
//	delivery timeout. Failures are logged at Warn and reported to the
//	failure hook; they never affect other observers.
//
// Outputs:
//
//	int - Number of observers the event was queued for.
func (h *Hub) Publish(ctx context.Context, ev Event) int {
	if ctx.Err() != nil {
		h.logger.Debug("event not published, context done",
			"event", ev.Event, "event_id", ev.ID, "error", ctx.Err())
		return 0
	}

	h.mu.RLock()
	targets := make([]*subscription, len(h.order))
	for i, id := range h.order {
		targets[i] = h.subs[id]
	}
	h.mu.RUnlock()

	d := delivery{ctx: context.WithoutCancel(ctx), ev: ev}
	queued := 0
	for _, s := range targets {
		s.offerMu.Lock()
		ok, evicted := offer(s.queue, d, ev.Urgent(), func(q delivery) bool { return !q.ev.Urgent() })
		s.offerMu.Unlock()

		if evicted {
			h.fail(s.id, ev, fmt.Errorf("%w: queued snapshot evicted", ErrObserverFull))
		}
		if !ok {
			h.fail(s.id, ev, ErrObserverFull)
			continue
		}
		queued++
	}
	return queued
}

func (h *Hub) deliver(s *subscription) {
	for {
		select {
		case <-s.stop:
			return
		case d := <-s.queue:
			ctx, cancel := context.WithTimeout(d.ctx, h.timeout)
			err := h.safeNotify(ctx, s.observer, d.ev)
			cancel()
			if err != nil {
				h.fail(s.id, d.ev, err)
			}
		}
	}
}

func (h *Hub) fail(id string, ev Event, err error) {
	h.logger.Warn("event delivery failed",
		"subscription_id", id,
		"event", ev.Event,
		"event_id", ev.ID,
		"error", err,
	)
	if h.onFailure != nil {
		h.onFailure(id, err)
	}
}

func (h *Hub) safeNotify(ctx context.Context, o Observer, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrObserverPanicked, r)
		}
	}()
	return o.Notify(ctx, ev)
}
