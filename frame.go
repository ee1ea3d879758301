// frame.go - Decoded frame handles and ownership for kmsplay

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"sync/atomic"
)

// Presentation timestamps run on the 90kHz MPEG clock.
const (
	PTS_TICKS_PER_MS = 90
	PTS_NONE         = int64(-0x8000000000000000) // no timestamp available

	// One interlaced field on a 50Hz display, in 90kHz ticks (20ms).
	FIELD_DURATION_TICKS = 1800
)

// Frame pixel sources. YUV420 frames carry CPU-visible planar data and
// need packing into the video plane format; PRIME frames reference
// GPU-decoder memory through an import descriptor and are scanned out
// zero-copy.
type FrameFormat int

const (
	FRAME_FORMAT_YUV420 FrameFormat = iota
	FRAME_FORMAT_PRIME
)

// RenderError provides detailed error context for pipeline operations.
type RenderError struct {
	Operation string // What operation was being attempted
	Details   string // Additional error context
	Err       error  // Underlying error if any
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render %s failed: %s: %v", e.Operation, e.Details, e.Err)
	}
	return fmt.Sprintf("render %s failed: %s", e.Operation, e.Details)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// PrimeDescriptor describes one GPU-decoder-owned buffer shared into
// the pipeline as an opaque file descriptor. Pitch/offset pairs locate
// the luma and chroma planes inside the imported memory.
type PrimeDescriptor struct {
	FD     int
	Format uint32 // fourcc of the imported layout
	Pitch  [2]uint32
	Offset [2]uint32
	Size   uint32
}

// VideoFrame is an externally-owned decoded picture handle. Ownership
// transfers into the pipeline when enqueued and back out exactly once,
// through Release, when the frame has been displayed, dropped or the
// stream torn down.
type VideoFrame struct {
	PTS    int64 // 90kHz ticks
	Width  int
	Height int

	Interlaced    bool
	TopFieldFirst bool

	Format FrameFormat

	// CPU path: planar YUV 4:2:0, one slice per plane.
	Data   [3][]byte
	Stride [3]int

	// PRIME path.
	Prime *PrimeDescriptor

	release  func()
	released atomic.Bool
}

// NewVideoFrame wraps decoder output in a pipeline frame handle. The
// release callback returns the underlying picture to its owner; it is
// invoked at most once no matter how the frame leaves the pipeline.
func NewVideoFrame(width, height int, pts int64, release func()) *VideoFrame {
	return &VideoFrame{
		PTS:     pts,
		Width:   width,
		Height:  height,
		Format:  FRAME_FORMAT_YUV420,
		release: release,
	}
}

// Release returns the frame to its owner. Safe to call from any
// pipeline thread; the second and later calls are ignored so the
// shown/dropped/drained paths cannot double-free.
func (f *VideoFrame) Release() {
	if f == nil {
		return
	}
	if f.released.Swap(true) {
		return
	}
	if f.release != nil {
		f.release()
	}
}

// Released reports whether ownership already left the pipeline.
func (f *VideoFrame) Released() bool {
	return f.released.Load()
}
