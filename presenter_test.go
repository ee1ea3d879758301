// presenter_test.go - Presentation engine sync policy and drain

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestPipeline(t *testing.T, cfg RenderConfig) (*RenderContext, *HeadlessOutput, *ManualClock) {
	t.Helper()
	display := NewHeadlessOutput()
	clock := NewManualClock()
	rc := NewRenderContext(display, clock, cfg)
	if err := rc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(rc.Stop)
	return rc, display, clock
}

func countedFrame(pts int64, released *int) *VideoFrame {
	f := NewVideoFrame(720, 576, pts, func() { *released++ })
	f.Stride[0] = 720
	f.Stride[1] = 360
	f.Stride[2] = 360
	f.Data[0] = make([]byte, 720*576)
	f.Data[1] = make([]byte, 720*576/4)
	f.Data[2] = make([]byte, 720*576/4)
	return f
}

// A frame more than 55ms ahead of the audio clock must stall at the
// ring head: duplicate count rises, nothing is consumed or committed.
func TestSyncEarlyFrameNotConsumed(t *testing.T) {
	rc, display, clock := newTestPipeline(t, RenderConfig{})
	clock.Start(0)

	var rel int
	rc.PresentFrame(countedFrame(60*PTS_TICKS_PER_MS, &rel))
	rc.PresentFrame(countedFrame(76*PTS_TICKS_PER_MS, &rel))

	waitFor(t, "duplicate count", func() bool {
		return rc.GetStats().Duplicated >= 1
	})
	if got := rc.ring2.Len(); got != 2 {
		t.Errorf("ring occupancy = %d, want 2 (head not consumed)", got)
	}
	if got := len(display.Commits()); got != 0 {
		t.Errorf("commits = %d, want 0", got)
	}
	if got := rc.GetStats().Dropped; got != 0 {
		t.Errorf("dropped = %d, want 0", got)
	}
	if rel != 0 {
		t.Errorf("released %d frames, want 0", rel)
	}
}

// A lone in-sync frame is presented straight away - the engine never
// waits for queue depth before committing - and a single frame arriving
// after a drain is presented just the same.
func TestSingleFramePresented(t *testing.T) {
	rc, display, clock := newTestPipeline(t, RenderConfig{})
	clock.Start(0)

	var rel int
	rc.PresentFrame(countedFrame(0, &rel))
	waitFor(t, "single frame presented", func() bool {
		return rc.GetStats().FrameCounter == 1
	})
	if got := len(display.Commits()); got != 1 {
		t.Errorf("commits = %d, want 1", got)
	}

	rc.SetClosing(false)
	waitFor(t, "drain to idle", func() bool { return !rc.Closing() })
	if rel != 1 {
		t.Errorf("released %d frames after drain, want 1", rel)
	}

	rc.PresentFrame(countedFrame(33*PTS_TICKS_PER_MS, &rel))
	waitFor(t, "post-drain frame presented", func() bool {
		return rc.GetStats().FrameCounter >= 2
	})
}

// A frame more than 25ms behind the clock is dropped without a commit;
// the next in-window frame is presented.
func TestSyncLateFrameDropped(t *testing.T) {
	rc, display, clock := newTestPipeline(t, RenderConfig{})
	clock.Start(0)

	var relLate, relOK int
	late := NewVideoFrame(720, 576, -30*PTS_TICKS_PER_MS, func() { relLate++ })
	ok := countedFrame(0, &relOK)
	rc.PresentFrame(late)
	rc.PresentFrame(ok)

	waitFor(t, "drop count", func() bool {
		return rc.GetStats().Dropped == 1
	})
	waitFor(t, "in-window frame presented", func() bool {
		return rc.GetStats().FrameCounter >= 1
	})
	if relLate != 1 {
		t.Errorf("late frame released %d times, want 1", relLate)
	}
	if got := len(display.Commits()); got != 1 {
		t.Errorf("commits = %d, want 1 (drop must not commit)", got)
	}
	if got := rc.GetStats().Duplicated; got != 0 {
		t.Errorf("duplicated = %d, want 0", got)
	}
}

// Three frames in lockstep with the clock: all presented, none
// dropped, none duplicated.
func TestLockstepPresentsAll(t *testing.T) {
	rc, display, clock := newTestPipeline(t, RenderConfig{})
	clock.Start(0)

	var rel int
	for _, ms := range []int64{0, 16, 33} {
		rc.PresentFrame(countedFrame(ms*PTS_TICKS_PER_MS, &rel))
	}

	waitFor(t, "all frames presented", func() bool {
		return rc.GetStats().FrameCounter == 3
	})
	stats := rc.GetStats()
	if stats.Dropped != 0 || stats.Duplicated != 0 {
		t.Errorf("dropped=%d duplicated=%d, want 0/0", stats.Dropped, stats.Duplicated)
	}
	if got := len(display.Commits()); got != 3 {
		t.Errorf("commits = %d, want 3", got)
	}

	// Drain to idle: every frame handle comes back exactly once.
	rc.SetClosing(true)
	waitFor(t, "drain to idle", func() bool { return !rc.Closing() })
	if rel != 3 {
		t.Errorf("released %d frames, want 3", rel)
	}
	if got := rc.ring2.Len(); got != 0 {
		t.Errorf("ring occupancy after drain = %d, want 0", got)
	}
}

// Closing with frames still queued drains them as black-buffer commits
// and returns to idle with occupancy 0.
func TestClosingDrainsToBlack(t *testing.T) {
	rc, display, clock := newTestPipeline(t, RenderConfig{})
	clock.Start(0)

	var rel int
	rc.PresentFrame(countedFrame(0, &rel))
	rc.PresentFrame(countedFrame(16*PTS_TICKS_PER_MS, &rel))
	waitFor(t, "first frames presented", func() bool {
		return rc.GetStats().FrameCounter >= 2
	})

	// Two more frames parked far in the future so they stay queued.
	rc.PresentFrame(countedFrame(3600*PTS_TICKS_PER_MS, &rel))
	rc.PresentFrame(countedFrame(3700*PTS_TICKS_PER_MS, &rel))
	waitFor(t, "frames queued", func() bool { return rc.ring2.Len() == 2 })

	rc.SetClosing(true)
	waitFor(t, "drain to idle", func() bool { return !rc.Closing() })

	if got := rc.ring2.Len(); got != 0 {
		t.Errorf("ring occupancy after drain = %d, want 0", got)
	}
	if rel != 4 {
		t.Errorf("released %d frames, want 4", rel)
	}
	blackFB := display.BlackBuffer().FBID
	blacks := 0
	for _, fb := range display.Commits() {
		if fb == blackFB {
			blacks++
		}
	}
	if blacks < 2 {
		t.Errorf("black commits = %d, want at least one per drained frame", blacks)
	}
	if display.CurrentFB() != blackFB {
		t.Errorf("current fb = %d, want black %d", display.CurrentFB(), blackFB)
	}
}

// Trick play bypasses the sync policy entirely (the clock is not even
// running here) and shows every frame trickSpeed times.
func TestTrickPlayBypassesSync(t *testing.T) {
	rc, display, _ := newTestPipeline(t, RenderConfig{})
	rc.SetTrickSpeed(2)

	var rel int
	rc.PresentFrame(countedFrame(0, &rel))
	rc.PresentFrame(countedFrame(16*PTS_TICKS_PER_MS, &rel))

	waitFor(t, "trick-rate presentation", func() bool {
		return rc.GetStats().FrameCounter == 4
	})
	if got := len(display.Commits()); got != 4 {
		t.Errorf("commits = %d, want 4 (each frame twice)", got)
	}
	stats := rc.GetStats()
	if stats.Dropped != 0 || stats.Duplicated != 0 {
		t.Errorf("dropped=%d duplicated=%d, want 0/0", stats.Dropped, stats.Duplicated)
	}
}

// Closing before any frame arrived resets to idle without committing.
func TestClosingBeforeFirstFrame(t *testing.T) {
	rc, display, _ := newTestPipeline(t, RenderConfig{})
	rc.SetClosing(false)
	waitFor(t, "idle reset", func() bool { return !rc.Closing() })
	if got := len(display.Commits()); got != 0 {
		t.Errorf("commits = %d, want 0", got)
	}
}

// The first frame's timestamp reaches the ready callback before any
// sync decision, so the audio clock can be started from it.
func TestVideoReadyCallback(t *testing.T) {
	got := make(chan int64, 1)
	display := NewHeadlessOutput()
	clock := NewManualClock()
	rc := NewRenderContext(display, clock, RenderConfig{
		OnVideoReady: func(pts int64) {
			got <- pts
			clock.Start(pts)
		},
	})
	if err := rc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rc.Stop()

	var rel int
	rc.PresentFrame(countedFrame(900, &rel))
	rc.PresentFrame(countedFrame(2340, &rel))

	select {
	case pts := <-got:
		if pts != 900 {
			t.Errorf("ready pts = %d, want 900", pts)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("ready callback never fired")
	}
	waitFor(t, "presentation", func() bool { return rc.GetStats().FrameCounter >= 1 })
}
