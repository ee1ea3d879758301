// display_select_test.go - Mode policy and plane classification

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import "testing"

func TestPickDisplayMode(t *testing.T) {
	modes := []modeChoice{
		{Index: 0, Width: 1920, Height: 1080, Refresh: 60},
		{Index: 1, Width: 1920, Height: 1080, Refresh: 50, Interlaced: true},
		{Index: 2, Width: 1920, Height: 1080, Refresh: 50},
		{Index: 3, Width: 1280, Height: 720, Refresh: 50},
	}

	if got := pickDisplayMode(modes, false); got != 2 {
		t.Errorf("SDR policy picked index %d, want 2 (1080p50 progressive)", got)
	}
	if got := pickDisplayMode(modes, true); got != 3 {
		t.Errorf("HDR policy picked index %d, want 3 (720p50)", got)
	}
	if got := pickDisplayMode(modes[:2], false); got != -1 {
		t.Errorf("no-match picked index %d, want -1", got)
	}
}

func TestClassifyPlanesPrimaryVideo(t *testing.T) {
	planes := []planeProps{
		{ID: 10, PossibleCrtcs: 1, Formats: []uint32{FOURCC_NV12, FOURCC_ARGB8888},
			Type: PLANE_TYPE_PRIMARY},
		{ID: 20, PossibleCrtcs: 1, Formats: []uint32{FOURCC_ARGB8888},
			Type: PLANE_TYPE_OVERLAY, Zpos: 1, ZposMutable: true},
	}
	sel, err := classifyPlanes(planes, 1)
	if err != nil {
		t.Fatalf("classifyPlanes: %v", err)
	}
	if sel.VideoPlane != 10 {
		t.Errorf("video plane = %d, want 10", sel.VideoPlane)
	}
	if sel.OSDPlane != 20 {
		t.Errorf("OSD plane = %d, want 20", sel.OSDPlane)
	}
	if sel.UseZpos {
		t.Error("UseZpos set although video is on the primary plane")
	}
}

func TestClassifyPlanesOverlayVideo(t *testing.T) {
	planes := []planeProps{
		{ID: 10, PossibleCrtcs: 1, Formats: []uint32{FOURCC_ARGB8888},
			Type: PLANE_TYPE_PRIMARY, Zpos: 0, ZposMutable: true},
		{ID: 20, PossibleCrtcs: 1, Formats: []uint32{FOURCC_NV12},
			Type: PLANE_TYPE_OVERLAY, Zpos: 1, ZposMutable: true},
	}
	sel, err := classifyPlanes(planes, 1)
	if err != nil {
		t.Fatalf("classifyPlanes: %v", err)
	}
	if sel.VideoPlane != 20 {
		t.Errorf("video plane = %d, want 20", sel.VideoPlane)
	}
	if sel.OSDPlane != 10 {
		t.Errorf("OSD plane = %d, want 10", sel.OSDPlane)
	}
	if !sel.UseZpos {
		t.Error("UseZpos not set although video is on an overlay plane")
	}
	if sel.ZposOverlay != 1 || sel.ZposVideo != 0 {
		t.Errorf("zpos pair = (%d,%d), want (0,1)", sel.ZposVideo, sel.ZposOverlay)
	}
}

func TestClassifyPlanesImmutableZpos(t *testing.T) {
	planes := []planeProps{
		{ID: 10, PossibleCrtcs: 1, Formats: []uint32{FOURCC_ARGB8888},
			Type: PLANE_TYPE_PRIMARY, Zpos: 0, ZposMutable: true},
		// Video lands on an overlay plane whose zpos cannot be changed.
		{ID: 20, PossibleCrtcs: 1, Formats: []uint32{FOURCC_NV12},
			Type: PLANE_TYPE_OVERLAY, Zpos: 1},
	}
	sel, err := classifyPlanes(planes, 1)
	if err != nil {
		t.Fatalf("classifyPlanes: %v", err)
	}
	if sel.UseZpos {
		t.Error("UseZpos set although the video plane's zpos is immutable")
	}
}

func TestClassifyPlanesCrtcMask(t *testing.T) {
	planes := []planeProps{
		// Both planes belong to another CRTC.
		{ID: 10, PossibleCrtcs: 2, Formats: []uint32{FOURCC_NV12}},
		{ID: 20, PossibleCrtcs: 2, Formats: []uint32{FOURCC_ARGB8888}},
	}
	if _, err := classifyPlanes(planes, 1); err == nil {
		t.Error("expected error for planes on an incompatible CRTC")
	}
}

func TestClassifyPlanesMissing(t *testing.T) {
	onlyVideo := []planeProps{
		{ID: 10, PossibleCrtcs: 1, Formats: []uint32{FOURCC_NV12}, Type: PLANE_TYPE_PRIMARY},
	}
	if _, err := classifyPlanes(onlyVideo, 1); err == nil {
		t.Error("expected error when no ARGB plane exists")
	}
	onlyOSD := []planeProps{
		{ID: 10, PossibleCrtcs: 1, Formats: []uint32{FOURCC_ARGB8888}, Type: PLANE_TYPE_PRIMARY},
	}
	if _, err := classifyPlanes(onlyOSD, 1); err == nil {
		t.Error("expected error when no NV12 plane exists")
	}
}
