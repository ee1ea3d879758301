//go:build headless

// display_preview_headless.go - Preview backend stub for headless builds

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

func NewPreviewOutput() (DisplayOutput, error) {
	return nil, &RenderError{
		Operation: "backend creation",
		Details:   "preview output not available in headless build",
	}
}
