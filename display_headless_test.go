// display_headless_test.go - In-memory backend buffer management

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import "testing"

func primeFrame(fd int) *VideoFrame {
	f := NewVideoFrame(1280, 720, 0, nil)
	f.Format = FRAME_FORMAT_PRIME
	f.Prime = &PrimeDescriptor{FD: fd, Format: FOURCC_NV12}
	return f
}

func TestHeadlessPrimeImportCached(t *testing.T) {
	h := NewHeadlessOutput()
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	a, err := h.AcquireBuffer(primeFrame(7))
	if err != nil {
		t.Fatalf("AcquireBuffer: %v", err)
	}
	b, err := h.AcquireBuffer(primeFrame(7))
	if err != nil {
		t.Fatalf("AcquireBuffer: %v", err)
	}
	if a != b {
		t.Error("same import fd produced two buffers")
	}
	if h.OutstandingBuffers() != 1 {
		t.Errorf("outstanding = %d, want 1", h.OutstandingBuffers())
	}
}

func TestHeadlessCPUFrontBack(t *testing.T) {
	h := NewHeadlessOutput()
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f := NewVideoFrame(720, 576, 0, nil)
	a, _ := h.AcquireBuffer(f)
	h.CommitFrame(a) // toggles front/back
	b, _ := h.AcquireBuffer(f)
	if a == b {
		t.Error("front and back resolve to the same buffer")
	}
	h.CommitFrame(b)
	c, _ := h.AcquireBuffer(f)
	if c != a {
		t.Error("front buffer not reused on the third frame")
	}
	if h.OutstandingBuffers() != 2 {
		t.Errorf("outstanding = %d, want 2", h.OutstandingBuffers())
	}

	h.ReleaseBuffers()
	if h.OutstandingBuffers() != 0 {
		t.Errorf("outstanding after release = %d, want 0", h.OutstandingBuffers())
	}
}

func TestHeadlessInterlacedBufferHalfHeight(t *testing.T) {
	h := NewHeadlessOutput()
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f := NewVideoFrame(720, 576, 0, nil)
	f.Interlaced = true
	buf, err := h.AcquireBuffer(f)
	if err != nil {
		t.Fatalf("AcquireBuffer: %v", err)
	}
	if buf.Height != 288 {
		t.Errorf("field buffer height = %d, want 288", buf.Height)
	}
}
