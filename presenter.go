// presenter.go - Presentation engine and completion/pacing thread

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"os"
	"time"
)

// Presentation engine states. The synchronisation policy is an
// explicit machine: dequeue a frame, compare against the audio clock,
// commit - with a drain state entered when the stream is closing.
type presentState int

const (
	stateDequeue presentState = iota
	stateSync
	statePresent
	stateClosing
)

// presentLoop is the presentation engine thread. It consumes ring 2,
// applies the sync policy and issues atomic commits. Pacing comes from
// the completion thread: after every commit the loop blocks until the
// hardware confirms the flip, binding the whole pipeline to the
// display refresh.
func (rc *RenderContext) presentLoop() {
	defer rc.wg.Done()

	state := stateDequeue
	var f *VideoFrame

	for {
		if rc.stopped() {
			return
		}
		switch state {

		case stateDequeue:
			if rc.closing.Load() {
				state = stateClosing
				continue
			}
			if rc.secondField {
				// Same frame, other field.
				state = statePresent
				continue
			}
			f = rc.ring2.Peek()
			if f == nil {
				time.Sleep(RING_POLL_INTERVAL)
				continue
			}
			if !rc.videoReady {
				rc.videoReady = true
				if rc.cfg.OnVideoReady != nil {
					rc.cfg.OnVideoReady(f.PTS)
				}
			}
			state = stateSync

		case stateSync:
			if rc.closing.Load() {
				state = stateClosing
				continue
			}
			trick := int(rc.trickSpeed.Load())
			if trick != 0 {
				// Trick play bypasses drift correction and shows every
				// frame trickSpeed times.
				if rc.trickCounter+1 < trick {
					rc.trickCounter++
					rc.holdFrame = true
				} else {
					rc.trickCounter = 0
					rc.holdFrame = false
				}
				state = statePresent
				continue
			}
			audioPTS, ok := rc.clock.Clock()
			if !ok {
				// Indefinite poll: resolved by the clock appearing or
				// by closing.
				if rc.closing.Load() {
					state = stateClosing
					continue
				}
				time.Sleep(RING_POLL_INTERVAL)
				continue
			}
			diff := f.PTS - audioPTS - rc.delayTicks
			if diff > SYNC_DUP_THRESHOLD_TICKS {
				// Video ahead: stall without consuming, audio catches up.
				rc.duplicated.Add(1)
				time.Sleep(RING_POLL_INTERVAL)
				continue
			}
			if diff < SYNC_DROP_THRESHOLD_TICKS {
				// Late: drop and try the next frame.
				rc.dropped.Add(1)
				rc.ring2.Advance()
				f.Release()
				f = nil
				state = stateDequeue
				continue
			}
			state = statePresent

		case statePresent:
			if !rc.presentCurrent(f) {
				return
			}
			if !rc.secondField && !rc.holdFrame {
				f = nil
			}
			state = stateDequeue

		case stateClosing:
			if !rc.drainClosing() {
				return
			}
			f = nil
			state = stateDequeue
		}
	}
}

// presentCurrent commits one frame (or one field of it) to the video
// plane and blocks until the flip completes. Returns false only when
// the pipeline is stopping. Buffer acquisition failure counts as a
// drop; the pipeline continues.
func (rc *RenderContext) presentCurrent(f *VideoFrame) bool {
	buf, err := rc.display.AcquireBuffer(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: dropping frame pts %d: %v\n", f.PTS, err)
		rc.dropped.Add(1)
		rc.ring2.Advance()
		f.Release()
		rc.secondField = false
		rc.holdFrame = false
		return true
	}

	final := !rc.holdFrame
	if f.Format == FRAME_FORMAT_YUV420 {
		packFrameNV12(buf, f, rc.secondField)
		if f.Interlaced && !rc.holdFrame {
			if rc.secondField {
				rc.secondField = false
				f.PTS += FIELD_DURATION_TICKS
			} else {
				rc.secondField = true
				final = false
			}
		}
	}
	if final {
		rc.ring2.Advance()
		buf.Frame = f
		rc.framesBound.Add(1)
	}
	rc.frames.Add(1)
	rc.display.CommitFrame(buf)
	return rc.pace(buf)
}

// drainClosing implements the closing state: every still-queued frame
// is released and replaced by a black-buffer commit, then one more
// black commit unbinds the last presented frame. Returns true once the
// context is back at steady idle, false when the pipeline is stopping.
func (rc *RenderContext) drainClosing() bool {
	black := rc.display.BlackBuffer()
	for {
		if rc.stopped() {
			return false
		}
		if qf := rc.ring2.Peek(); qf != nil {
			rc.ring2.Advance()
			qf.Release()
			rc.display.CommitFrame(black)
			if !rc.pace(black) {
				return false
			}
			continue
		}
		if rc.ring1.Len() > 0 {
			// The deinterlace stage is still flushing into ring 2.
			time.Sleep(RING_POLL_INTERVAL)
			continue
		}
		if rc.framesBound.Load() > 0 {
			rc.display.CommitFrame(black)
			if !rc.pace(black) {
				return false
			}
			continue
		}
		break
	}
	if rc.cleanup.Load() {
		rc.display.ReleaseBuffers()
	}
	rc.secondField = false
	rc.holdFrame = false
	rc.videoReady = false
	rc.closing.Store(false)
	return true
}

// pace hands the committed buffer to the completion thread and waits
// for the flip to be confirmed.
func (rc *RenderContext) pace(buf *FrameBuffer) bool {
	select {
	case rc.commitCh <- buf:
	case <-rc.stop:
		return false
	}
	select {
	case <-rc.paceCh:
		return true
	case <-rc.stop:
		return false
	}
}

// completionLoop is the completion/pacing thread: it blocks on the
// flip event, releases the frame bound to the superseded buffer - only
// once the hardware confirms it is off screen - and unblocks the
// presentation engine for the next cycle.
func (rc *RenderContext) completionLoop() {
	defer rc.wg.Done()
	for {
		var buf *FrameBuffer
		select {
		case <-rc.stop:
			return
		case buf = <-rc.commitCh:
		}
		if err := rc.display.AwaitFlip(rc.stop); err != nil {
			if err == errStopped {
				return
			}
			fmt.Fprintf(os.Stderr, "render: flip wait failed: %v\n", err)
		}
		if rc.lastBuf != nil && rc.lastBuf != buf && rc.lastBuf.Frame != nil {
			rc.lastBuf.Frame.Release()
			rc.lastBuf.Frame = nil
			rc.framesBound.Add(-1)
		}
		rc.lastBuf = buf
		select {
		case rc.paceCh <- struct{}{}:
		case <-rc.stop:
			return
		}
	}
}
