// frame_pool_test.go - PRIME import cache and eviction

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import "testing"

func TestPoolFindPrime(t *testing.T) {
	var p bufferPool
	a := &FrameBuffer{PrimeFD: 7}
	b := &FrameBuffer{PrimeFD: 9}
	p.Add(a)
	p.Add(b)

	if got := p.FindPrime(9); got != b {
		t.Errorf("FindPrime(9) = %v, want cached buffer", got)
	}
	if got := p.FindPrime(5); got != nil {
		t.Errorf("FindPrime(5) = %v, want nil on miss", got)
	}
	if p.Len() != 2 {
		t.Errorf("Len = %d, want 2", p.Len())
	}
}

func TestPoolEvictLRU(t *testing.T) {
	var p bufferPool
	for fd := 1; fd <= 4; fd++ {
		p.Add(&FrameBuffer{PrimeFD: fd})
	}
	// Touch everything except fd 2, making it the LRU entry.
	p.FindPrime(1)
	p.FindPrime(3)
	p.FindPrime(4)

	victim := p.Evict(nil)
	if victim == nil || victim.PrimeFD != 2 {
		t.Fatalf("evicted %+v, want the fd 2 entry", victim)
	}
	if p.Len() != 3 {
		t.Errorf("Len after evict = %d, want 3", p.Len())
	}
	if p.FindPrime(2) != nil {
		t.Error("evicted entry still findable")
	}
}

func TestPoolEvictSkipsPinned(t *testing.T) {
	var p bufferPool
	onScreen := &FrameBuffer{PrimeFD: 1, FBID: 42}
	idle := &FrameBuffer{PrimeFD: 2}
	p.Add(onScreen)
	p.Add(idle)
	p.FindPrime(2) // idle is the most recently used, but not pinned

	victim := p.Evict(func(b *FrameBuffer) bool { return b.FBID == 42 })
	if victim != idle {
		t.Errorf("evicted %+v, want the unpinned entry", victim)
	}
}

func TestPoolEvictAllPinned(t *testing.T) {
	var p bufferPool
	p.Add(&FrameBuffer{PrimeFD: 1})
	if victim := p.Evict(func(*FrameBuffer) bool { return true }); victim != nil {
		t.Errorf("evicted %+v although every entry is pinned", victim)
	}
	if p.Len() != 1 {
		t.Errorf("Len = %d, want 1", p.Len())
	}
}

func TestPoolFullAndClear(t *testing.T) {
	var p bufferPool
	for fd := 1; fd <= FRAME_POOL_SIZE; fd++ {
		if p.Full() {
			t.Fatalf("Full() at %d entries, capacity %d", fd-1, FRAME_POOL_SIZE)
		}
		p.Add(&FrameBuffer{PrimeFD: fd})
	}
	if !p.Full() {
		t.Error("Full() = false at capacity")
	}
	out := p.Clear()
	if len(out) != FRAME_POOL_SIZE {
		t.Errorf("Clear returned %d buffers, want %d", len(out), FRAME_POOL_SIZE)
	}
	if p.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", p.Len())
	}
}
