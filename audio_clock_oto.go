//go:build !headless

// audio_clock_oto.go - Audio clock backed by a real output device

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	OTO_SAMPLE_RATE = 48000
	OTO_CHANNELS    = 2
	OTO_BYTES_PER_S = OTO_SAMPLE_RATE * OTO_CHANNELS * 2 // s16le
)

// OtoClock derives the master timebase from actual audio consumption:
// the device pulls silence through an io.Reader and every byte pulled
// advances the clock at the sample rate. Video then follows whatever
// the sound card really plays, including its startup latency.
type OtoClock struct {
	ctx    *oto.Context
	player *oto.Player
	src    *pacedSilence
}

// pacedSilence feeds zero samples and counts what the device consumed.
type pacedSilence struct {
	mu       sync.Mutex
	consumed int64 // bytes handed to the device
	base     int64 // PTS at Start, 90 kHz ticks
	running  bool
}

func (s *pacedSilence) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	s.mu.Lock()
	s.consumed += int64(len(p))
	s.mu.Unlock()
	return len(p), nil
}

func (s *pacedSilence) clock() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0, false
	}
	return s.base + s.consumed*90000/OTO_BYTES_PER_S, true
}

func NewOtoClock() (*OtoClock, error) {
	op := &oto.NewContextOptions{
		SampleRate:   OTO_SAMPLE_RATE,
		ChannelCount: OTO_CHANNELS,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, &RenderError{Operation: "audio clock", Details: "cannot open audio device", Err: err}
	}
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		return nil, &RenderError{Operation: "audio clock", Details: "audio device initialisation timed out"}
	}
	src := &pacedSilence{}
	return &OtoClock{ctx: ctx, player: ctx.NewPlayer(src), src: src}, nil
}

func (c *OtoClock) Clock() (int64, bool) { return c.src.clock() }

func (c *OtoClock) Start(basePTS int64) {
	c.src.mu.Lock()
	c.src.base = basePTS
	c.src.consumed = 0
	c.src.running = true
	c.src.mu.Unlock()
	c.player.Play()
}

func (c *OtoClock) Stop() {
	c.player.Pause()
	c.src.mu.Lock()
	c.src.running = false
	c.src.mu.Unlock()
}
