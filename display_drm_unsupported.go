//go:build !linux

// display_drm_unsupported.go - DRM backend stub for non-Linux builds

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

func NewDRMOutput(hdr bool) (DisplayOutput, error) {
	return nil, &RenderError{
		Operation: "backend creation",
		Details:   "KMS/DRM output requires Linux",
	}
}
