// render.go - Render context: pipeline state and lifecycle

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"sync"
	"sync/atomic"
)

// Sync policy thresholds in 90kHz ticks. Early frames are tolerated up
// to 55ms before stalling to let audio catch up; late frames past 25ms
// are dropped. Dropping a late frame is visually less disruptive than
// a stutter, hence the asymmetry.
const (
	SYNC_DUP_THRESHOLD_TICKS  = 55 * PTS_TICKS_PER_MS
	SYNC_DROP_THRESHOLD_TICKS = -25 * PTS_TICKS_PER_MS
)

// RenderStats are the per-stream presentation counters.
type RenderStats struct {
	Dropped      int64
	Duplicated   int64
	FrameCounter int64
}

// RenderConfig carries the per-stream knobs set before Start.
type RenderConfig struct {
	// SoftDeint routes interlaced frames through the software
	// deinterlace stage instead of the field-split pack path alone.
	SoftDeint bool

	// VideoAudioDelay shifts the sync comparison, in milliseconds.
	// Positive values delay video relative to audio.
	VideoAudioDelay int

	// OnVideoReady fires once with the first frame's timestamp, before
	// the first sync decision, so the caller can start the audio clock.
	OnVideoReady func(pts int64)
}

// RenderContext owns all state of one video stream: the staging rings,
// the display backend, the audio clock reference, lifecycle flags and
// counters. Exactly one exists per active stream; Stop joins every
// pipeline goroutine before returning.
type RenderContext struct {
	display DisplayOutput
	clock   AudioClock
	cfg     RenderConfig

	ring1 frameRing // decoder output, feeds the deinterlace stage
	ring2 frameRing // presentation input

	closing      atomic.Bool
	deintClosing atomic.Bool
	cleanup      atomic.Bool
	trickSpeed   atomic.Int32
	trickCounter int

	delayTicks int64

	dropped    atomic.Int64
	duplicated atomic.Int64
	frames     atomic.Int64

	// Presenter-thread state. secondField is toggled by the pack path
	// between the two commits of one interlaced frame; holdFrame keeps
	// the ring head for trick-play repeats.
	secondField bool
	holdFrame   bool
	videoReady  bool

	// Frames currently bound to an on-screen buffer, kept as a counter
	// so the drain state can tell when everything is off screen.
	framesBound atomic.Int32

	// Commit handoff to the completion thread. lastBuf is owned by the
	// completion goroutine once the first commit is in flight.
	commitCh chan *FrameBuffer
	paceCh   chan struct{}
	lastBuf  *FrameBuffer

	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewRenderContext wires a stream to a display backend and an audio
// clock. The context is inert until Start.
func NewRenderContext(display DisplayOutput, clock AudioClock, cfg RenderConfig) *RenderContext {
	return &RenderContext{
		display:    display,
		clock:      clock,
		cfg:        cfg,
		delayTicks: int64(cfg.VideoAudioDelay) * PTS_TICKS_PER_MS,
		commitCh:   make(chan *FrameBuffer, 1),
		paceCh:     make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
}

// Start performs the initial modeset and launches the pipeline
// goroutines: the optional deinterlace stage, the presentation engine
// and the completion/pacing thread.
func (rc *RenderContext) Start() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.started {
		return nil
	}
	if err := rc.display.Start(); err != nil {
		return err
	}
	if rc.cfg.SoftDeint {
		rc.wg.Add(1)
		go rc.deinterlaceLoop()
	}
	rc.wg.Add(2)
	go rc.presentLoop()
	go rc.completionLoop()
	rc.started = true
	return nil
}

// Stop tears the pipeline down: cancel, join, drain both rings, free
// every stream buffer and restore the display.
func (rc *RenderContext) Stop() {
	rc.mu.Lock()
	if !rc.started {
		rc.mu.Unlock()
		return
	}
	rc.started = false
	rc.mu.Unlock()

	close(rc.stop)
	rc.wg.Wait()
	rc.ring1.Drain()
	rc.ring2.Drain()
	if rc.lastBuf != nil && rc.lastBuf.Frame != nil {
		rc.lastBuf.Frame.Release()
		rc.lastBuf.Frame = nil
	}
	rc.display.ReleaseBuffers()
	rc.display.Stop()
}

func (rc *RenderContext) stopped() bool {
	select {
	case <-rc.stop:
		return true
	default:
		return false
	}
}

// PresentFrame hands a decoded frame to the pipeline; ownership
// transfers on enqueue. Frames arriving while the stream is closing
// are released immediately.
func (rc *RenderContext) PresentFrame(f *VideoFrame) {
	if rc.closing.Load() || rc.stopped() {
		f.Release()
		return
	}
	ring := &rc.ring2
	if rc.cfg.SoftDeint && f.Interlaced && f.Format == FRAME_FORMAT_YUV420 {
		ring = &rc.ring1
	}
	if !ring.Push(f, rc.stopped) {
		f.Release()
	}
}

// SetClosing signals stream end: the presenter drains queued frames as
// black commits and returns to idle. cleanup additionally destroys the
// stream's hardware buffers once drained.
func (rc *RenderContext) SetClosing(cleanup bool) {
	rc.cleanup.Store(cleanup)
	rc.deintClosing.Store(true)
	rc.closing.Store(true)
}

// Closing reports whether a drain is in progress.
func (rc *RenderContext) Closing() bool {
	return rc.closing.Load()
}

// SetTrickSpeed switches trick play. Zero restores normal synced
// playback; n > 1 shows every frame n times with sync bypassed.
func (rc *RenderContext) SetTrickSpeed(speed int) {
	rc.trickSpeed.Store(int32(speed))
}

// GetStats returns the presentation counters.
func (rc *RenderContext) GetStats() RenderStats {
	return RenderStats{
		Dropped:      rc.dropped.Load(),
		Duplicated:   rc.duplicated.Load(),
		FrameCounter: rc.frames.Load(),
	}
}

// GetScreenSize reports the active mode for upstream scaling choices.
func (rc *RenderContext) GetScreenSize() (width, height int, pixelAspect float64) {
	si := rc.display.ScreenInfo()
	return si.Width, si.Height, si.PixelAspect
}

// QueuedFrames reports total ring occupancy, used by ingest pacing.
func (rc *RenderContext) QueuedFrames() int {
	return rc.ring1.Len() + rc.ring2.Len()
}
