// display_headless.go - In-memory display backend

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"sync"
)

// HeadlessOutput implements DisplayOutput entirely in memory. Buffers
// are heap slices, commits append to a log and every commit completes
// immediately through a channel, so the pipeline runs at full speed
// with no hardware and no clock. Exercised by the test suite and by
// CI-style smoke runs.
type HeadlessOutput struct {
	mu       sync.Mutex
	screen   ScreenInfo
	pool     bufferPool
	cpuBufs  [2]*FrameBuffer
	frontBuf int
	actFB    uint32
	nextFBID uint32

	blackBuf *FrameBuffer
	osdBuf   *FrameBuffer

	flipCh chan struct{}

	// Test observability.
	commits     []uint32
	osdEnabled  bool
	osdRect     [4]int
	zposSwapped bool
	simZpos     bool

	started bool
}

func NewHeadlessOutput() *HeadlessOutput {
	return &HeadlessOutput{
		screen: ScreenInfo{Width: 1920, Height: 1080, Refresh: 50, PixelAspect: 16.0 / 9.0},
		flipCh: make(chan struct{}, RENDER_SURFACES_MAX),
	}
}

// SimulateZpos makes the backend report a non-primary video plane, so
// OSD drawing exercises the stacking swap path.
func (h *HeadlessOutput) SimulateZpos(on bool) { h.simZpos = on }

func (h *HeadlessOutput) allocBuffer(width, height, format uint32) *FrameBuffer {
	h.nextFBID++
	buf := &FrameBuffer{Width: width, Height: height, Format: format, FBID: h.nextFBID}
	switch format {
	case FOURCC_NV12:
		buf.Pitch[0] = width
		buf.Pitch[1] = width
		buf.Offset[1] = width * height
		buf.Size = uint64(width * height * 3 / 2)
		mem := make([]byte, buf.Size)
		buf.mem = mem
		buf.Plane[0] = mem[:buf.Offset[1]]
		buf.Plane[1] = mem[buf.Offset[1]:]
	case FOURCC_ARGB8888:
		buf.Pitch[0] = width * 4
		buf.Size = uint64(width * height * 4)
		mem := make([]byte, buf.Size)
		buf.mem = mem
		buf.Plane[0] = mem
	}
	return buf
}

func (h *HeadlessOutput) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}
	h.blackBuf = h.allocBuffer(BLACK_BUF_WIDTH, BLACK_BUF_HEIGHT, FOURCC_NV12)
	fillBlackNV12(h.blackBuf)
	h.osdBuf = h.allocBuffer(uint32(h.screen.Width), uint32(h.screen.Height), FOURCC_ARGB8888)
	h.actFB = h.blackBuf.FBID
	h.started = true
	return nil
}

func (h *HeadlessOutput) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = false
	return nil
}

func (h *HeadlessOutput) Close() error { return h.Stop() }

func (h *HeadlessOutput) ScreenInfo() ScreenInfo    { return h.screen }
func (h *HeadlessOutput) BlackBuffer() *FrameBuffer { return h.blackBuf }
func (h *HeadlessOutput) OSDBuffer() *FrameBuffer   { return h.osdBuf }
func (h *HeadlessOutput) UseZpos() bool             { return h.simZpos }

func (h *HeadlessOutput) CurrentFB() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.actFB
}

func (h *HeadlessOutput) AcquireBuffer(f *VideoFrame) (*FrameBuffer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if f.Format == FRAME_FORMAT_PRIME {
		if buf := h.pool.FindPrime(f.Prime.FD); buf != nil {
			return buf, nil
		}
		if h.pool.Full() {
			victim := h.pool.Evict(func(b *FrameBuffer) bool {
				return b.FBID == h.actFB || b.Frame != nil
			})
			if victim == nil {
				return nil, &RenderError{Operation: "buffer acquire",
					Details: "import cache full and every entry in flight"}
			}
		}
		buf := h.allocBuffer(uint32(f.Width), uint32(f.Height), FOURCC_NV12)
		buf.PrimeFD = f.Prime.FD
		h.pool.Add(buf)
		return buf, nil
	}

	height := uint32(f.Height)
	if f.Interlaced {
		height /= 2
	}
	buf := h.cpuBufs[h.frontBuf]
	if buf != nil && (buf.Width != uint32(f.Width) || buf.Height != height) {
		h.cpuBufs[h.frontBuf] = nil
		buf = nil
	}
	if buf == nil {
		buf = h.allocBuffer(uint32(f.Width), height, FOURCC_NV12)
		h.cpuBufs[h.frontBuf] = buf
	}
	return buf, nil
}

func (h *HeadlessOutput) CommitFrame(buf *FrameBuffer) error {
	h.mu.Lock()
	h.actFB = buf.FBID
	h.commits = append(h.commits, buf.FBID)
	h.frontBuf ^= 1
	h.mu.Unlock()

	select {
	case h.flipCh <- struct{}{}:
	default:
	}
	return nil
}

func (h *HeadlessOutput) AwaitFlip(stop <-chan struct{}) error {
	select {
	case <-h.flipCh:
		return nil
	case <-stop:
		return errStopped
	}
}

func (h *HeadlessOutput) OutstandingBuffers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.pool.Len()
	for _, b := range h.cpuBufs {
		if b != nil {
			n++
		}
	}
	return n
}

func (h *HeadlessOutput) ReleaseBuffers() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pool.Clear()
	h.cpuBufs[0], h.cpuBufs[1] = nil, nil
	h.frontBuf = 0
}

func (h *HeadlessOutput) SwapZpos(restore bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.zposSwapped = !restore
	return nil
}

func (h *HeadlessOutput) EnableOSD(x, y, width, height int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.osdEnabled = true
	h.osdRect = [4]int{x, y, width, height}
	return nil
}

func (h *HeadlessOutput) DisableOSD() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.osdEnabled = false
	return nil
}

// Commits returns a copy of the commit log for assertions.
func (h *HeadlessOutput) Commits() []uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]uint32, len(h.commits))
	copy(out, h.commits)
	return out
}

// OSDEnabled reports overlay visibility for assertions.
func (h *HeadlessOutput) OSDEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.osdEnabled
}

// ZposSwapped reports whether the stacking order is currently swapped.
func (h *HeadlessOutput) ZposSwapped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.zposSwapped
}

// String identifies the backend in stats output.
func (h *HeadlessOutput) String() string {
	return fmt.Sprintf("headless %dx%d@%d", h.screen.Width, h.screen.Height, h.screen.Refresh)
}
