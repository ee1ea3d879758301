//go:build linux

// display_drm_buffer.go - Dumb buffer allocation and PRIME import

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"os"

	"github.com/NeowayLabs/drm/mode"
	"golang.org/x/sys/unix"
)

// setupDumbFB allocates a CPU-mappable dumb buffer for buf's format
// and dimensions, maps it and registers it as a framebuffer object.
// NV12 allocates 12 bits per pixel with the UV plane behind the luma;
// ARGB uses the pitch the kernel picked.
func (d *DRMOutput) setupDumbFB(buf *FrameBuffer) error {
	var bpp uint32 = 32
	if buf.Format == FOURCC_NV12 {
		bpp = 12
	}
	fb, err := mode.CreateFB(d.file, uint16(buf.Width), uint16(buf.Height), bpp)
	if err != nil {
		return fmt.Errorf("create dumb %dx%d bpp %d: %w", buf.Width, buf.Height, bpp, err)
	}
	buf.Handle[0] = fb.Handle
	buf.Size = fb.Size

	planes := 1
	if buf.Format == FOURCC_NV12 {
		buf.Pitch[0] = buf.Width
		buf.Pitch[1] = buf.Width
		buf.Offset[1] = buf.Width * buf.Height
		buf.Handle[1] = fb.Handle
		planes = 2
	} else {
		buf.Pitch[0] = fb.Pitch
	}

	mapOffset, err := mode.MapDumb(d.file, fb.Handle)
	if err != nil {
		mode.DestroyDumb(d.file, fb.Handle)
		return fmt.Errorf("map dumb handle %d: %w", fb.Handle, err)
	}
	mem, err := unix.Mmap(int(d.file.Fd()), int64(mapOffset), int(fb.Size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		mode.DestroyDumb(d.file, fb.Handle)
		return fmt.Errorf("mmap %d bytes: %w", fb.Size, err)
	}
	buf.mem = mem
	buf.Plane[0] = mem[buf.Offset[0]:]
	if planes == 2 {
		buf.Plane[0] = mem[buf.Offset[0]:buf.Offset[1]]
		buf.Plane[1] = mem[buf.Offset[1]:]
	}

	fbID, err := mode.AddFB2(d.file, uint16(buf.Width), uint16(buf.Height), buf.Format, 0,
		buf.Pitch[:planes], buf.Offset[:planes], buf.Handle[:planes], nil)
	if err != nil {
		unix.Munmap(mem)
		mode.DestroyDumb(d.file, fb.Handle)
		return fmt.Errorf("add framebuffer %dx%d: %w", buf.Width, buf.Height, err)
	}
	buf.FBID = fbID
	return nil
}

// setupPrimeFB imports a decoder-exported dmabuf fd and registers it
// as a framebuffer with the exporter's plane layout.
func (d *DRMOutput) setupPrimeFB(buf *FrameBuffer, desc *PrimeDescriptor) error {
	handle, err := drmPrimeFDToHandle(d.file, desc.FD)
	if err != nil {
		return fmt.Errorf("import PRIME fd %d: %w", desc.FD, err)
	}
	buf.Handle[0] = handle
	buf.Handle[1] = handle
	buf.Pitch[0] = desc.Pitch[0]
	buf.Pitch[1] = desc.Pitch[1]
	buf.Offset[0] = desc.Offset[0]
	buf.Offset[1] = desc.Offset[1]
	buf.Size = uint64(desc.Size)

	fbID, err := mode.AddFB2(d.file, uint16(buf.Width), uint16(buf.Height), buf.Format, 0,
		buf.Pitch[:2], buf.Offset[:2], buf.Handle[:2], nil)
	if err != nil {
		return fmt.Errorf("add imported framebuffer %dx%d: %w", buf.Width, buf.Height, err)
	}
	buf.FBID = fbID
	return nil
}

// destroyFB tears down one buffer: unmap, deregister, free the dumb
// handle. Imported handles have no dumb object but must still drop the
// GEM reference, which DestroyDumb also does.
func (d *DRMOutput) destroyFB(buf *FrameBuffer) {
	if buf.mem != nil {
		if err := unix.Munmap(buf.mem); err != nil {
			fmt.Fprintf(os.Stderr, "drm: cannot unmap buffer fb %d: %v\n", buf.FBID, err)
		}
		buf.mem = nil
		buf.Plane[0], buf.Plane[1], buf.Plane[2] = nil, nil, nil
	}
	if buf.FBID != 0 {
		if err := mode.RmFB(d.file, buf.FBID); err != nil {
			fmt.Fprintf(os.Stderr, "drm: cannot remove framebuffer %d: %v\n", buf.FBID, err)
		}
		buf.FBID = 0
	}
	if buf.Handle[0] != 0 {
		if err := mode.DestroyDumb(d.file, buf.Handle[0]); err != nil {
			fmt.Fprintf(os.Stderr, "drm: cannot destroy buffer handle %d: %v\n", buf.Handle[0], err)
		}
		buf.Handle[0], buf.Handle[1] = 0, 0
	}
	buf.Frame = nil
}

// AcquireBuffer maps a frame to a scanout buffer. PRIME frames hit the
// import cache or set up a new import, evicting the least recently
// used idle entry when the pool is full. CPU frames get one of the two
// persistent dumb buffers, created lazily at the frame's packed size
// (half height when a single field is packed per buffer).
func (d *DRMOutput) AcquireBuffer(f *VideoFrame) (*FrameBuffer, error) {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	if f.Format == FRAME_FORMAT_PRIME {
		return d.acquirePrime(f)
	}
	return d.acquireCPU(f)
}

func (d *DRMOutput) acquirePrime(f *VideoFrame) (*FrameBuffer, error) {
	if buf := d.pool.FindPrime(f.Prime.FD); buf != nil {
		return buf, nil
	}
	if d.pool.Full() {
		victim := d.pool.Evict(func(b *FrameBuffer) bool {
			return b.FBID == d.actFB || b.Frame != nil
		})
		if victim == nil {
			return nil, &RenderError{Operation: "buffer acquire",
				Details: "import cache full and every entry in flight"}
		}
		d.destroyFB(victim)
	}
	format := f.Prime.Format
	if format == 0 {
		format = FOURCC_NV12
	}
	buf := &FrameBuffer{
		Width:   uint32(f.Width),
		Height:  uint32(f.Height),
		Format:  format,
		PrimeFD: f.Prime.FD,
	}
	first := d.outstandingLocked() == 0
	if err := d.setupPrimeFB(buf, f.Prime); err != nil {
		return nil, &RenderError{Operation: "buffer acquire",
			Details: fmt.Sprintf("PRIME import of fd %d", f.Prime.FD), Err: err}
	}
	d.pool.Add(buf)
	if first {
		d.setBuf(buf)
	}
	return buf, nil
}

func (d *DRMOutput) acquireCPU(f *VideoFrame) (*FrameBuffer, error) {
	height := uint32(f.Height)
	if f.Interlaced {
		height /= 2
	}
	buf := d.cpuBufs[d.frontBuf]
	if buf != nil && (buf.Width != uint32(f.Width) || buf.Height != height) {
		d.destroyFB(buf)
		d.cpuBufs[d.frontBuf] = nil
		buf = nil
	}
	if buf == nil {
		buf = &FrameBuffer{
			Width:  uint32(f.Width),
			Height: height,
			Format: FOURCC_NV12,
		}
		first := d.outstandingLocked() == 0
		if err := d.setupDumbFB(buf); err != nil {
			return nil, &RenderError{Operation: "buffer acquire",
				Details: fmt.Sprintf("dumb buffer %dx%d", f.Width, height), Err: err}
		}
		d.cpuBufs[d.frontBuf] = buf
		if first {
			d.setBuf(buf)
		}
	}
	return buf, nil
}

func (d *DRMOutput) outstandingLocked() int {
	n := d.pool.Len()
	for _, b := range d.cpuBufs {
		if b != nil {
			n++
		}
	}
	return n
}

// OutstandingBuffers reports how many stream buffers currently exist.
func (d *DRMOutput) OutstandingBuffers() int {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	return d.outstandingLocked()
}

// ReleaseBuffers destroys every stream buffer once the stream has
// drained to the black buffer. The reserved black and OSD buffers
// survive until Close.
func (d *DRMOutput) ReleaseBuffers() {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	for _, buf := range d.pool.Clear() {
		d.destroyFB(buf)
	}
	for i, buf := range d.cpuBufs {
		if buf != nil {
			d.destroyFB(buf)
			d.cpuBufs[i] = nil
		}
	}
	d.frontBuf = 0
}
