// osd.go - On-screen display plane integration

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// OSD pushes externally composited ARGB pixels onto the overlay plane.
// The compositor calls from its own thread; calls are side-effecting
// on hardware state and never overlap each other (single caller), so
// there is no lock here. OSD traffic is outside the frame rings and
// their timing guarantees.
type OSD struct {
	display DisplayOutput
	shown   bool
}

func NewOSD(display DisplayOutput) *OSD {
	return &OSD{display: display}
}

// DrawOverlay copies a pixel block into the overlay buffer at (x, y)
// and makes the overlay visible. When the video plane is not the
// hardware primary the first draw swaps plane stacking so the overlay
// ends up above video; otherwise it enables the overlay plane at the
// block's position.
func (o *OSD) DrawOverlay(x, y, width, height, pitch int, pixels []byte) error {
	buf := o.display.OSDBuffer()
	if buf == nil {
		return &RenderError{Operation: "OSD draw", Details: "no overlay buffer"}
	}
	if o.display.UseZpos() {
		if !o.shown {
			if err := o.display.SwapZpos(false); err != nil {
				return err
			}
		}
		o.copyBlock(buf, x, y, width, height, pitch, pixels)
	} else {
		if !o.shown {
			if err := o.display.EnableOSD(x, y, width, height); err != nil {
				return err
			}
			buf.X, buf.Y = uint32(x), uint32(y)
		}
		// The plane is positioned by the hardware; blocks land in the
		// buffer relative to where the plane was enabled.
		o.copyBlock(buf, x-int(buf.X), y-int(buf.Y), width, height, pitch, pixels)
	}
	o.shown = true
	return nil
}

func (o *OSD) copyBlock(buf *FrameBuffer, x, y, width, height, pitch int, pixels []byte) {
	dstPitch := int(buf.Pitch[0])
	sx := 0
	if x < 0 {
		sx = -x * 4
		width += x
		x = 0
	}
	w := width * 4
	if max := (int(buf.Width) - x) * 4; w > max {
		w = max
	}
	if w <= 0 {
		return
	}
	for row := 0; row < height; row++ {
		if y+row < 0 {
			continue
		}
		if y+row >= int(buf.Height) {
			break
		}
		d := (y+row)*dstPitch + x*4
		s := row*pitch + sx
		copy(buf.Plane[0][d:d+w], pixels[s:s+w])
	}
}

// ClearOverlay hides the overlay: restore the default stacking order
// and black out the buffer when stacking was swapped, disable the
// plane otherwise.
func (o *OSD) ClearOverlay() error {
	buf := o.display.OSDBuffer()
	if buf == nil {
		return &RenderError{Operation: "OSD clear", Details: "no overlay buffer"}
	}
	if o.display.UseZpos() {
		if err := o.display.SwapZpos(true); err != nil {
			return err
		}
		mem := buf.Plane[0]
		for i := range mem {
			mem[i] = 0
		}
	} else if o.shown {
		if err := o.display.DisableOSD(); err != nil {
			return err
		}
	}
	o.shown = false
	return nil
}

// Shown reports overlay visibility.
func (o *OSD) Shown() bool { return o.shown }

// renderTextARGB rasterises one line of text into a little-endian ARGB
// (BGRA byte order) pixel block suitable for DrawOverlay. Used by the
// demo player's status overlay.
func renderTextARGB(text string, fg, bg color.RGBA) (width, height, pitch int, pixels []byte) {
	face := basicfont.Face7x13
	pad := 4
	width = font.MeasureString(face, text).Ceil() + 2*pad
	height = face.Metrics().Height.Ceil() + 2*pad

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(pad, pad+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	pitch = width * 4
	pixels = make([]byte, pitch*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			o := img.PixOffset(x, y)
			p := y*pitch + x*4
			pixels[p+0] = img.Pix[o+2] // B
			pixels[p+1] = img.Pix[o+1] // G
			pixels[p+2] = img.Pix[o+0] // R
			pixels[p+3] = img.Pix[o+3] // A
		}
	}
	return width, height, pitch, pixels
}
