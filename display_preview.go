//go:build !headless

// display_preview.go - Windowed preview backend (Ebitengine)

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
)

// PreviewOutput presents frames in a desktop window for development on
// machines without a spare KMS device. Buffer bookkeeping is shared
// with the headless backend; commits convert NV12 to RGBA and flips
// complete on the window's own vertical sync, so pacing behaves like
// the real display path.
type PreviewOutput struct {
	*HeadlessOutput

	mu       sync.Mutex
	videoImg *image.RGBA
	osdImg   *image.RGBA
	tex      *ebiten.Image
	osdTex   *ebiten.Image

	vsyncCh chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewPreviewOutput() (DisplayOutput, error) {
	return &PreviewOutput{
		HeadlessOutput: NewHeadlessOutput(),
		vsyncCh:        make(chan struct{}, 1),
		done:           make(chan struct{}),
	}, nil
}

func (p *PreviewOutput) Start() error {
	if err := p.HeadlessOutput.Start(); err != nil {
		return err
	}
	si := p.ScreenInfo()
	go func() {
		ebiten.SetWindowSize(si.Width/2, si.Height/2)
		ebiten.SetWindowTitle("kmsplay preview")
		if err := ebiten.RunGame(p); err != nil && err != ebiten.Termination {
			fmt.Fprintf(os.Stderr, "preview: window terminated: %v\n", err)
		}
	}()
	return nil
}

func (p *PreviewOutput) Stop() error {
	p.once.Do(func() { close(p.done) })
	return p.HeadlessOutput.Stop()
}

func (p *PreviewOutput) Close() error { return p.Stop() }

// CommitFrame converts the committed buffer for the window and logs it
// through the shared bookkeeping. Flip completion is deferred to the
// next window vsync instead of firing immediately.
func (p *PreviewOutput) CommitFrame(buf *FrameBuffer) error {
	if buf.Format == FOURCC_NV12 && buf.Plane[0] != nil {
		img := nv12ToRGBA(buf)
		p.mu.Lock()
		p.videoImg = img
		p.mu.Unlock()
	}
	if err := p.HeadlessOutput.CommitFrame(buf); err != nil {
		return err
	}
	// Drop the immediate completion; AwaitFlip waits for vsync.
	select {
	case <-p.HeadlessOutput.flipCh:
	default:
	}
	return nil
}

func (p *PreviewOutput) AwaitFlip(stop <-chan struct{}) error {
	select {
	case <-p.vsyncCh:
		return nil
	case <-p.done:
		return errStopped
	case <-stop:
		return errStopped
	}
}

// Update implements ebiten.Game: one call per display refresh.
func (p *PreviewOutput) Update() error {
	select {
	case <-p.done:
		return ebiten.Termination
	default:
	}
	select {
	case p.vsyncCh <- struct{}{}:
	default:
	}
	return nil
}

// Draw implements ebiten.Game, scaling the last committed frame to the
// window and compositing the OSD above it when enabled.
func (p *PreviewOutput) Draw(screen *ebiten.Image) {
	p.mu.Lock()
	video := p.videoImg
	p.mu.Unlock()

	if video != nil {
		b := video.Bounds()
		if p.tex == nil || p.tex.Bounds() != b {
			p.tex = ebiten.NewImage(b.Dx(), b.Dy())
		}
		p.tex.WritePixels(video.Pix)
		op := &ebiten.DrawImageOptions{}
		sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
		op.GeoM.Scale(float64(sw)/float64(b.Dx()), float64(sh)/float64(b.Dy()))
		screen.DrawImage(p.tex, op)
	}

	if p.OSDEnabled() {
		osd := p.OSDBuffer()
		img := argbToRGBA(osd)
		if p.osdTex == nil || p.osdTex.Bounds() != img.Bounds() {
			p.osdTex = ebiten.NewImage(img.Bounds().Dx(), img.Bounds().Dy())
		}
		p.osdTex.WritePixels(img.Pix)
		op := &ebiten.DrawImageOptions{}
		sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
		op.GeoM.Scale(float64(sw)/float64(img.Bounds().Dx()),
			float64(sh)/float64(img.Bounds().Dy()))
		screen.DrawImage(p.osdTex, op)
	}
}

// Layout implements ebiten.Game.
func (p *PreviewOutput) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// nv12ToRGBA converts a CPU-visible NV12 buffer with BT.601 studio
// range coefficients.
func nv12ToRGBA(buf *FrameBuffer) *image.RGBA {
	w, h := int(buf.Width), int(buf.Height)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	luma, chroma := buf.Plane[0], buf.Plane[1]
	pitch := int(buf.Pitch[0])
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			yy := int(luma[y*pitch+x]) - 16
			ci := (y/2)*int(buf.Pitch[1]) + (x &^ 1)
			cb := int(chroma[ci]) - 128
			cr := int(chroma[ci+1]) - 128
			o := img.PixOffset(x, y)
			img.Pix[o+0] = clamp8((298*yy + 409*cr + 128) >> 8)
			img.Pix[o+1] = clamp8((298*yy - 100*cb - 208*cr + 128) >> 8)
			img.Pix[o+2] = clamp8((298*yy + 516*cb + 128) >> 8)
			img.Pix[o+3] = 0xFF
		}
	}
	return img
}

// argbToRGBA reorders the little-endian BGRA scanout bytes of the OSD
// buffer into RGBA for the window.
func argbToRGBA(buf *FrameBuffer) *image.RGBA {
	w, h := int(buf.Width), int(buf.Height)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	pitch := int(buf.Pitch[0])
	for y := 0; y < h; y++ {
		row := buf.Plane[0][y*pitch:]
		for x := 0; x < w; x++ {
			o := img.PixOffset(x, y)
			img.Pix[o+0] = row[x*4+2]
			img.Pix[o+1] = row[x*4+1]
			img.Pix[o+2] = row[x*4+0]
			img.Pix[o+3] = row[x*4+3]
		}
	}
	return img
}
