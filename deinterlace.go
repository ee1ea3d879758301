// deinterlace.go - Software deinterlace stage

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

// The deinterlace stage sits between the two staging rings. It takes
// ownership of each decoded frame, copies it into a pipeline-owned
// frame with its timestamp halved (field presentation doubles the rate
// back downstream) and releases the input. Field flags are preserved;
// the presenter's pack path splits the fields at display rate.

// deinterlaceFrame produces the pipeline-owned output for one input
// frame. Progressive and PRIME frames pass through untouched since
// there is nothing to rebuild.
func deinterlaceFrame(f *VideoFrame) *VideoFrame {
	if !f.Interlaced || f.Format == FRAME_FORMAT_PRIME {
		return f
	}
	out := NewVideoFrame(f.Width, f.Height, f.PTS/2, nil)
	out.Interlaced = f.Interlaced
	out.TopFieldFirst = f.TopFieldFirst
	for p := 0; p < 3; p++ {
		if f.Data[p] == nil {
			continue
		}
		out.Data[p] = make([]byte, len(f.Data[p]))
		copy(out.Data[p], f.Data[p])
		out.Stride[p] = f.Stride[p]
	}
	f.Release()
	return out
}

// deinterlaceLoop pumps ring 1 into ring 2 for the lifetime of the
// pipeline. A closing drain only flushes the stage: once its input is
// empty the close flag is re-armed so frames arriving after the drain
// flow through again. Only Stop terminates the goroutine.
func (rc *RenderContext) deinterlaceLoop() {
	defer rc.wg.Done()
	abort := func() bool {
		select {
		case <-rc.stop:
			return true
		default:
		}
		return rc.deintClosing.Load() && rc.ring1.Len() == 0
	}
	for {
		f := rc.ring1.Pop(abort)
		if f == nil {
			if rc.stopped() {
				return
			}
			// Input drained for this close; ready for the next stream.
			rc.deintClosing.Store(false)
			continue
		}
		out := deinterlaceFrame(f)
		if !rc.ring2.Push(out, rc.stopped) {
			out.Release()
			return
		}
	}
}
