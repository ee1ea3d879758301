// audio_clock.go - Audio master clock interface

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import "sync"

// AudioClock is the master timebase for audio/video synchronisation.
// Clock returns the current audio position in 90 kHz ticks; ok is
// false while no audio is running, in which case the presenter shows
// frames unsynchronised.
type AudioClock interface {
	Clock() (pts int64, ok bool)
	Start(basePTS int64)
	Stop()
}

// ManualClock is an AudioClock whose position is set explicitly. Used
// by tests and as the fallback when no audio device exists.
type ManualClock struct {
	mu      sync.Mutex
	pts     int64
	running bool
}

func NewManualClock() *ManualClock { return &ManualClock{} }

func (c *ManualClock) Clock() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pts, c.running
}

func (c *ManualClock) Start(basePTS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pts = basePTS
	c.running = true
}

func (c *ManualClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
}

// Set moves the clock to an absolute position.
func (c *ManualClock) Set(pts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pts = pts
}

// Advance moves the clock forward by delta ticks.
func (c *ManualClock) Advance(delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pts += delta
}
