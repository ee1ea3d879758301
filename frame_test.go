// frame_test.go - Frame ownership guarantees

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"sync"
	"testing"
)

func TestFrameReleaseExactlyOnce(t *testing.T) {
	count := 0
	f := NewVideoFrame(720, 576, 0, func() { count++ })
	f.Release()
	f.Release()
	f.Release()
	if count != 1 {
		t.Errorf("release callback ran %d times, want 1", count)
	}
	if !f.Released() {
		t.Error("Released() = false after Release")
	}
}

func TestFrameReleaseConcurrent(t *testing.T) {
	var count int
	var mu sync.Mutex
	f := NewVideoFrame(720, 576, 0, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Release()
		}()
	}
	wg.Wait()
	if count != 1 {
		t.Errorf("release callback ran %d times under contention, want 1", count)
	}
}

func TestFrameReleaseNilSafe(t *testing.T) {
	var f *VideoFrame
	f.Release() // must not panic
}

func TestFrameReleaseWithoutCallback(t *testing.T) {
	f := NewVideoFrame(720, 576, 0, nil)
	f.Release() // must not panic
	if !f.Released() {
		t.Error("Released() = false after Release")
	}
}
