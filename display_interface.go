// display_interface.go - Display backend interface for kmsplay

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import "fmt"

// ScreenInfo describes the active display mode.
type ScreenInfo struct {
	Width       int
	Height      int
	Refresh     int     // vertical refresh in Hz
	PixelAspect float64 // pixel aspect ratio of the output
}

// FrameBuffer describes one allocated or imported scanout buffer: the
// per-plane pitch/offset/handle triples registered with the display
// engine, the framebuffer object id, the CPU mapping for dumb buffers
// and the import fd for PRIME buffers.
type FrameBuffer struct {
	Width  uint32
	Height uint32
	Format uint32 // fourcc

	Pitch  [3]uint32
	Offset [3]uint32
	Handle [3]uint32
	FBID   uint32
	Size   uint64

	// CPU-mapped plane memory; nil for PRIME imports. Plane slices
	// alias mem, which holds the full mapping for unmapping.
	Plane [3][]byte
	mem   []byte

	// PRIME import source, 0 for locally allocated buffers.
	PrimeFD int

	// Frame currently bound to this buffer. Set when a commit puts
	// the buffer on screen, cleared by the completion thread once
	// the buffer is superseded.
	Frame *VideoFrame

	// Pool bookkeeping, monotonically increasing use stamp.
	lastUse uint64

	// OSD placement while the overlay plane is enabled.
	X, Y uint32
}

// Reserved black buffer dimensions (SD, letterboxed by the CRTC).
const (
	BLACK_BUF_WIDTH  = 720
	BLACK_BUF_HEIGHT = 576
)

// Predefined display backend types.
const (
	DISPLAY_BACKEND_DRM      = iota // KMS/DRM atomic backend
	DISPLAY_BACKEND_PREVIEW         // windowed development preview
	DISPLAY_BACKEND_HEADLESS        // in-memory backend for tests
)

// DisplayOutput is the contract between the presentation pipeline and
// a display engine. Start performs the initial modeset (black video
// plane, overlay prepared), CommitFrame flips the video plane to a new
// buffer requesting a completion event, and AwaitFlip blocks until the
// hardware confirms the flip - this blocking wait is what paces the
// whole pipeline.
type DisplayOutput interface {
	Start() error
	Stop() error
	Close() error
	ScreenInfo() ScreenInfo

	// AcquireBuffer returns the scanout buffer for a frame: the
	// cached import for PRIME frames, one of the persistent
	// front/back dumb buffers for CPU frames.
	AcquireBuffer(f *VideoFrame) (*FrameBuffer, error)

	// BlackBuffer returns the reserved black buffer shown while a
	// stream drains.
	BlackBuffer() *FrameBuffer

	// CurrentFB returns the framebuffer id last committed.
	CurrentFB() uint32

	// CommitFrame issues the atomic FB_ID property commit for the
	// video plane and requests a flip-completion event.
	CommitFrame(buf *FrameBuffer) error

	// AwaitFlip blocks until the pending flip completes or the stop
	// channel closes. Returns errStopped in the latter case.
	AwaitFlip(stop <-chan struct{}) error

	// OutstandingBuffers reports how many pooled buffers exist for
	// the active stream; ReleaseBuffers destroys them all.
	OutstandingBuffers() int
	ReleaseBuffers()

	// OSD plane access.
	OSDBuffer() *FrameBuffer
	UseZpos() bool
	SwapZpos(restore bool) error
	EnableOSD(x, y, width, height int) error
	DisableOSD() error
}

var errStopped = &RenderError{Operation: "await flip", Details: "pipeline stopping"}

// NewDisplayOutput creates a display output instance using the
// specified backend.
func NewDisplayOutput(backend int, hdr bool) (DisplayOutput, error) {
	switch backend {
	case DISPLAY_BACKEND_DRM:
		return NewDRMOutput(hdr)
	case DISPLAY_BACKEND_PREVIEW:
		return NewPreviewOutput()
	case DISPLAY_BACKEND_HEADLESS:
		return NewHeadlessOutput(), nil
	}
	return nil, &RenderError{
		Operation: "backend creation",
		Details:   fmt.Sprintf("unknown backend type: %d", backend),
	}
}
