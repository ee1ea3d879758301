//go:build headless

// audio_clock_headless.go - Audio clock stub for headless builds

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

// NewOtoClock has no audio device to drive in headless builds; callers
// fall back to their own timebase.
func NewOtoClock() (*ManualClock, error) {
	return nil, &RenderError{
		Operation: "audio clock",
		Details:   "no audio device in headless build",
	}
}
