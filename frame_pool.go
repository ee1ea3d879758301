// frame_pool.go - Scanout buffer pool with PRIME import cache

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

// A long-running PRIME stream can present an unbounded set of distinct
// import fds. The pool caches one FrameBuffer per fd so the same GPU
// memory is never imported twice, and recycles the least recently used
// idle entry once the fixed pool is exhausted.
const FRAME_POOL_SIZE = 36

type bufferPool struct {
	bufs    [FRAME_POOL_SIZE]*FrameBuffer
	count   int
	useTick uint64
}

// Len returns the number of live pooled buffers.
func (p *bufferPool) Len() int {
	return p.count
}

// FindPrime returns the cached buffer for an import fd, stamping it as
// recently used, or nil on a cache miss.
func (p *bufferPool) FindPrime(fd int) *FrameBuffer {
	for i := 0; i < p.count; i++ {
		if p.bufs[i].PrimeFD == fd {
			p.useTick++
			p.bufs[i].lastUse = p.useTick
			return p.bufs[i]
		}
	}
	return nil
}

// Add inserts a freshly set-up buffer into the pool.
func (p *bufferPool) Add(buf *FrameBuffer) {
	p.useTick++
	buf.lastUse = p.useTick
	p.bufs[p.count] = buf
	p.count++
}

// Full reports whether Add would overflow the fixed pool.
func (p *bufferPool) Full() bool {
	return p.count == FRAME_POOL_SIZE
}

// Evict removes and returns the least recently used buffer that is not
// pinned (on screen or still bound to a frame). The caller destroys
// the hardware resources. Returns nil when every entry is pinned.
func (p *bufferPool) Evict(pinned func(*FrameBuffer) bool) *FrameBuffer {
	victim := -1
	for i := 0; i < p.count; i++ {
		if pinned != nil && pinned(p.bufs[i]) {
			continue
		}
		if victim == -1 || p.bufs[i].lastUse < p.bufs[victim].lastUse {
			victim = i
		}
	}
	if victim == -1 {
		return nil
	}
	buf := p.bufs[victim]
	p.count--
	p.bufs[victim] = p.bufs[p.count]
	p.bufs[p.count] = nil
	return buf
}

// Clear empties the pool, returning the removed buffers for teardown.
func (p *bufferPool) Clear() []*FrameBuffer {
	out := make([]*FrameBuffer, 0, p.count)
	for i := 0; i < p.count; i++ {
		out = append(out, p.bufs[i])
		p.bufs[i] = nil
	}
	p.count = 0
	return out
}
