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

// offer sends item on ch without blocking.
//
// Description:
//
//	When ch is full and urgent is set, the oldest queued value for which
//	evictable reports true is discarded to make room. Queue order is
//	otherwise preserved. Callers must be the only producer on ch for the
//	duration of the call; consumers may keep receiving.
//
// Outputs:
//
//	ok - The item was queued.
//	evicted - A queued value was discarded in its favour.
func offer[T any](ch chan T, item T, urgent bool, evictable func(T) bool) (ok, evicted bool) {
	select {
	case ch <- item:
		return true, false
	default:
	}
	if !urgent {
		return false, false
	}

	pending := make([]T, 0, cap(ch))
drain:
	for {
		select {
		case v := <-ch:
			pending = append(pending, v)
		default:
			break drain
		}
	}

	for i, v := range pending {
		if evictable(v) {
			pending = append(pending[:i], pending[i+1:]...)
			evicted = true
			break
		}
	}

	// Room exists for everything drained, since nothing else produces.
	for _, v := range pending {
		ch <- v
	}
	select {
	case ch <- item:
		return true, evicted
	default:
		return false, evicted
	}
}
