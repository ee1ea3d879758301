// deinterlace_test.go - Deinterlace stage timestamps and field pacing

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import "testing"

func interlacedFrame(pts int64, released *int) *VideoFrame {
	f := NewVideoFrame(720, 576, pts, func() { *released++ })
	f.Interlaced = true
	f.TopFieldFirst = true
	f.Stride[0] = 720
	f.Stride[1] = 360
	f.Stride[2] = 360
	f.Data[0] = make([]byte, 720*576)
	f.Data[1] = make([]byte, 720*576/4)
	f.Data[2] = make([]byte, 720*576/4)
	return f
}

func TestDeinterlaceHalvesTimestamp(t *testing.T) {
	var rel int
	in := interlacedFrame(3600, &rel)
	in.Data[0][0] = 0xAB

	out := deinterlaceFrame(in)
	if out == in {
		t.Fatal("interlaced frame passed through unchanged")
	}
	if out.PTS != 1800 {
		t.Errorf("output pts = %d, want 1800", out.PTS)
	}
	if !out.Interlaced || !out.TopFieldFirst {
		t.Error("field flags lost")
	}
	if out.Data[0][0] != 0xAB {
		t.Error("pixel data not carried over")
	}
	if rel != 1 {
		t.Errorf("input released %d times, want 1", rel)
	}
}

func TestDeinterlacePassthroughProgressive(t *testing.T) {
	var rel int
	in := countedFrame(3600, &rel)
	if out := deinterlaceFrame(in); out != in {
		t.Error("progressive frame was rebuilt")
	}
	if rel != 0 {
		t.Errorf("progressive input released %d times, want 0", rel)
	}
	in.Release()
}

// Presenting one interlaced frame takes two commits: the first field
// at the frame's timestamp, then the second field with the timestamp
// advanced by one field duration.
func TestSecondFieldAdvancesTimestamp(t *testing.T) {
	display := NewHeadlessOutput()
	if err := display.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rc := NewRenderContext(display, NewManualClock(), RenderConfig{})
	rc.wg.Add(1)
	go rc.completionLoop()
	defer func() {
		close(rc.stop)
		rc.wg.Wait()
	}()

	var rel int
	f := interlacedFrame(1800, &rel)
	if !rc.ring2.TryPush(f) {
		t.Fatal("TryPush failed on empty ring")
	}

	if !rc.presentCurrent(f) {
		t.Fatal("first field present aborted")
	}
	if !rc.secondField {
		t.Error("secondField not set after first field")
	}
	if f.PTS != 1800 {
		t.Errorf("pts after first field = %d, want unchanged 1800", f.PTS)
	}
	if got := rc.ring2.Len(); got != 1 {
		t.Errorf("ring occupancy after first field = %d, want 1 (frame kept)", got)
	}

	if !rc.presentCurrent(f) {
		t.Fatal("second field present aborted")
	}
	if rc.secondField {
		t.Error("secondField still set after second field")
	}
	if f.PTS != 1800+FIELD_DURATION_TICKS {
		t.Errorf("pts after second field = %d, want %d", f.PTS, 1800+FIELD_DURATION_TICKS)
	}
	if got := rc.ring2.Len(); got != 0 {
		t.Errorf("ring occupancy after second field = %d, want 0", got)
	}
	if got := len(display.Commits()); got != 2 {
		t.Errorf("commits = %d, want 2 (one per field)", got)
	}
	if got := rc.GetStats().FrameCounter; got != 2 {
		t.Errorf("frame counter = %d, want 2", got)
	}
}

// The stage keeps running across a closing drain: interlaced frames
// arriving after the context returns to idle still flow through to
// presentation instead of piling up in ring 1.
func TestDeinterlaceStageSurvivesDrain(t *testing.T) {
	rc, _, clock := newTestPipeline(t, RenderConfig{SoftDeint: true})
	clock.Start(0)

	var rel int
	rc.PresentFrame(interlacedFrame(3600, &rel))
	waitFor(t, "two field commits", func() bool {
		return rc.GetStats().FrameCounter == 2
	})

	rc.SetClosing(false)
	waitFor(t, "drain to idle", func() bool { return !rc.Closing() })

	rc.PresentFrame(interlacedFrame(3600, &rel))
	rc.PresentFrame(interlacedFrame(7200, &rel))
	waitFor(t, "post-drain fields presented", func() bool {
		return rc.GetStats().FrameCounter == 6
	})
	if got := rc.ring1.Len(); got != 0 {
		t.Errorf("ring 1 occupancy = %d, want 0", got)
	}
	if rel != 3 {
		t.Errorf("decoder frames released %d times, want 3", rel)
	}
}

// End to end with the software stage enabled: interlaced input flows
// ring 1 -> deinterlace -> ring 2 and is presented as two fields.
func TestDeinterlacePipeline(t *testing.T) {
	rc, display, clock := newTestPipeline(t, RenderConfig{SoftDeint: true})
	clock.Start(0)

	var rel int
	rc.PresentFrame(interlacedFrame(3600, &rel))
	rc.PresentFrame(interlacedFrame(7200, &rel))

	waitFor(t, "four field commits", func() bool {
		return rc.GetStats().FrameCounter == 4
	})
	if got := len(display.Commits()); got != 4 {
		t.Errorf("commits = %d, want 4", got)
	}
	if rel != 2 {
		t.Errorf("decoder frames released %d times, want 2 (by the stage)", rel)
	}
	stats := rc.GetStats()
	if stats.Dropped != 0 {
		t.Errorf("dropped = %d, want 0", stats.Dropped)
	}
}
