// frame_ring.go - Staging ring buffers between pipeline stages

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// Video output surfaces queued between stages.
	RENDER_SURFACES_MAX = 4

	// Poll interval for the bounded busy-waits on ring occupancy.
	RING_POLL_INTERVAL = 10 * time.Millisecond
)

// frameRing is a fixed-capacity FIFO of frame ownership handles.
// Producer and consumer run on different threads; every cursor/count
// mutation happens under the ring mutex, the occupancy count is
// additionally atomic so pollers can read it without the lock.
type frameRing struct {
	mu     sync.Mutex
	slots  [RENDER_SURFACES_MAX]*VideoFrame
	read   int
	write  int
	filled atomic.Int32
}

// Len returns the current occupancy.
func (r *frameRing) Len() int {
	return int(r.filled.Load())
}

// TryPush enqueues a frame if a slot is free, leaving one slot of
// headroom like the producer side of the display handler does.
// Returns false when the ring is full.
func (r *frameRing) TryPush(f *VideoFrame) bool {
	if r.filled.Load() >= RENDER_SURFACES_MAX-1 {
		return false
	}
	r.mu.Lock()
	r.slots[r.write] = f
	r.write = (r.write + 1) % RENDER_SURFACES_MAX
	r.filled.Add(1)
	r.mu.Unlock()
	return true
}

// Push enqueues a frame, busy-waiting with a short sleep while the
// ring is full. The wait aborts when the abort callback reports true;
// the frame is then NOT enqueued and the caller keeps ownership.
func (r *frameRing) Push(f *VideoFrame, abort func() bool) bool {
	for !r.TryPush(f) {
		if abort != nil && abort() {
			return false
		}
		time.Sleep(RING_POLL_INTERVAL)
	}
	return true
}

// Peek returns the frame at the read cursor without consuming it, or
// nil when the ring is empty. The frame stays owned by the ring until
// Advance.
func (r *frameRing) Peek() *VideoFrame {
	if r.filled.Load() == 0 {
		return nil
	}
	r.mu.Lock()
	f := r.slots[r.read]
	r.mu.Unlock()
	return f
}

// Advance consumes the entry at the read cursor. Caller must already
// hold the frame from Peek; ownership of it is the caller's.
func (r *frameRing) Advance() {
	r.mu.Lock()
	r.slots[r.read] = nil
	r.read = (r.read + 1) % RENDER_SURFACES_MAX
	r.filled.Add(-1)
	r.mu.Unlock()
}

// Pop is Peek+Advance, busy-waiting while the ring is empty. Returns
// nil when the abort callback reports true before a frame arrives.
func (r *frameRing) Pop(abort func() bool) *VideoFrame {
	for r.filled.Load() == 0 {
		if abort != nil && abort() {
			return nil
		}
		time.Sleep(RING_POLL_INTERVAL)
	}
	f := r.Peek()
	r.Advance()
	return f
}

// Drain releases every queued frame and resets the cursors. Only used
// at stream teardown after the producer has stopped.
func (r *frameRing) Drain() {
	r.mu.Lock()
	for i := range r.slots {
		if r.slots[i] != nil {
			r.slots[i].Release()
			r.slots[i] = nil
		}
	}
	r.read = 0
	r.write = 0
	r.filled.Store(0)
	r.mu.Unlock()
}
