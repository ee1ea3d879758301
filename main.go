// main.go - kmsplay demo player entry point

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"flag"
	"fmt"
	"image/color"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

func boilerPlate() {
	fmt.Println("\nkmsplay - KMS/DRM video presentation pipeline")
	fmt.Println("(c) 2025 - 2026 Zayn Otley")
	fmt.Println("https://github.com/IntuitionAmiga/kmsplay")
	fmt.Println("License: GPLv3 or later")
}

func main() {
	boilerPlate()

	var (
		backendName string
		hdr         bool
		deint       bool
		trick       int
		frames      int
		fps         int
		interlaced  bool
		avDelay     int
	)

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&backendName, "backend", "drm", "display backend: drm, preview or headless")
	flagSet.BoolVar(&hdr, "hdr", false, "use the HDR mode policy (720p50)")
	flagSet.BoolVar(&deint, "deint", false, "software-deinterlace interlaced frames")
	flagSet.IntVar(&trick, "trick", 0, "start at trick-play speed (0 = normal)")
	flagSet.IntVar(&frames, "frames", 500, "number of test frames to present")
	flagSet.IntVar(&fps, "fps", 50, "test pattern frame rate")
	flagSet.BoolVar(&interlaced, "interlaced", false, "flag test frames as interlaced")
	flagSet.IntVar(&avDelay, "delay", 0, "video/audio delay in ms")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./kmsplay [-backend drm|preview|headless] [-hdr] [-deint] [-interlaced] [-trick n] [-frames n] [-fps n] [-delay ms]")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	backend := DISPLAY_BACKEND_DRM
	switch backendName {
	case "drm":
	case "preview":
		backend = DISPLAY_BACKEND_PREVIEW
	case "headless":
		backend = DISPLAY_BACKEND_HEADLESS
	default:
		fmt.Printf("Error: unknown backend %q\n", backendName)
		os.Exit(1)
	}

	display, err := NewDisplayOutput(backend, hdr)
	if err != nil {
		fmt.Printf("Failed to initialize display: %v\n", err)
		os.Exit(1)
	}

	var clock AudioClock
	if oto, err := NewOtoClock(); err == nil {
		clock = oto
	} else {
		fmt.Printf("No audio device (%v), using wall-clock pacing\n", err)
		manual := NewManualClock()
		go driveManualClock(manual)
		clock = manual
	}

	rc := NewRenderContext(display, clock, RenderConfig{
		SoftDeint:       deint,
		VideoAudioDelay: avDelay,
		OnVideoReady: func(pts int64) {
			clock.Start(pts)
		},
	})
	if err := rc.Start(); err != nil {
		fmt.Printf("Failed to start pipeline: %v\n", err)
		os.Exit(1)
	}
	rc.SetTrickSpeed(trick)

	si := display.ScreenInfo()
	fmt.Printf("Output: %dx%d@%dHz, backend %s\n", si.Width, si.Height, si.Refresh, backendName)

	osd := NewOSD(display)
	quit := make(chan struct{})
	go handleKeys(rc, osd, trick, quit)

	// Synthetic decoder: moving-bar frames fed through the ingest
	// boundary the way a real decoder thread would.
	ptsStep := int64(90000 / fps)
ingest:
	for i := 0; i < frames; i++ {
		select {
		case <-quit:
			break ingest
		default:
		}
		rc.PresentFrame(makeTestFrame(i, 720, 576, int64(i)*ptsStep, interlaced))
	}

	// Drain: let queued frames play out, then close.
drain:
	for rc.QueuedFrames() > 0 {
		select {
		case <-quit:
			break drain
		case <-time.After(RING_POLL_INTERVAL):
		}
	}
	rc.SetClosing(true)
	for rc.Closing() {
		time.Sleep(RING_POLL_INTERVAL)
	}
	rc.Stop()
	clock.Stop()
	display.Close()

	stats := rc.GetStats()
	fmt.Printf("Presented %d frames, %d dropped, %d duplicated\n",
		stats.FrameCounter, stats.Dropped, stats.Duplicated)
}

// driveManualClock advances a manual clock in real time once started,
// standing in for audio-device pacing.
func driveManualClock(c *ManualClock) {
	tick := 10 * time.Millisecond
	for range time.Tick(tick) {
		if _, ok := c.Clock(); ok {
			c.Advance(int64(tick/time.Millisecond) * PTS_TICKS_PER_MS)
		}
	}
}

// handleKeys runs the interactive controls when stdin is a terminal:
// q quits, t toggles trick play, o toggles the status overlay.
func handleKeys(rc *RenderContext, osd *OSD, trick int, quit chan struct{}) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Printf("Cannot switch terminal to raw mode: %v\n", err)
		return
	}
	defer term.Restore(fd, oldState)

	fmt.Print("Keys: q quit, t trick play, o overlay\r\n")
	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return
		}
		switch buf[0] {
		case 'q', 3: // ^C
			close(quit)
			return
		case 't':
			if trick == 0 {
				trick = 3
			} else {
				trick = 0
			}
			rc.SetTrickSpeed(trick)
		case 'o':
			if osd.Shown() {
				osd.ClearOverlay()
			} else {
				stats := rc.GetStats()
				text := fmt.Sprintf("kmsplay  frames %d  drop %d  dup %d",
					stats.FrameCounter, stats.Dropped, stats.Duplicated)
				w, h, pitch, pixels := renderTextARGB(text,
					color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
					color.RGBA{A: 0xC0})
				osd.DrawOverlay(32, 32, w, h, pitch, pixels)
			}
		}
	}
}

// makeTestFrame builds one planar YUV420 frame of a grey field with a
// moving white bar, at the given timestamp.
func makeTestFrame(index, width, height int, pts int64, interlaced bool) *VideoFrame {
	f := NewVideoFrame(width, height, pts, nil)
	f.Interlaced = interlaced
	f.TopFieldFirst = interlaced
	f.Stride[0] = width
	f.Stride[1] = width / 2
	f.Stride[2] = width / 2
	f.Data[0] = make([]byte, width*height)
	f.Data[1] = make([]byte, width*height/4)
	f.Data[2] = make([]byte, width*height/4)

	barX := (index * 8) % width
	for y := 0; y < height; y++ {
		row := f.Data[0][y*width:]
		for x := 0; x < width; x++ {
			if x >= barX && x < barX+32 {
				row[x] = 0xEB
			} else {
				row[x] = 0x40
			}
		}
	}
	for i := range f.Data[1] {
		f.Data[1][i] = 0x80
		f.Data[2][i] = 0x80
	}
	return f
}
