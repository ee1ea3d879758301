//go:build linux

// display_drm.go - KMS/DRM atomic display backend

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/NeowayLabs/drm"
	"github.com/NeowayLabs/drm/ioctl"
	"github.com/NeowayLabs/drm/mode"
	"golang.org/x/sys/unix"
)

const (
	// drmModeModeInfo flag for interlaced modes.
	MODE_FLAG_INTERLACE = 1 << 4

	// DRM event types delivered on the card fd.
	DRM_EVENT_VBLANK        = 0x01
	DRM_EVENT_FLIP_COMPLETE = 0x02
)

// drm_get_cap / drm_prime_handle ioctls are not wrapped by the mode
// package, so they are declared here the same way the library builds
// its own codes.
type (
	sysGetCap struct {
		capability uint64
		value      uint64
	}

	sysPrimeHandle struct {
		handle uint32
		flags  uint32
		fd     int32
	}
)

var (
	ioctlGetCap = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysGetCap{})), drm.IOCTLBase, 0x0C)

	ioctlPrimeFDToHandle = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysPrimeHandle{})), drm.IOCTLBase, 0x2E)
)

const (
	DRM_CAP_DUMB_BUFFER     = 0x1
	DRM_CAP_PRIME           = 0x5
	DRM_PRIME_CAP_IMPORT    = 0x1
	DRM_PRIME_CAP_EXPORT    = 0x2
	DRM_CAP_TIMESTAMP_QUERY = 0x6
)

func drmGetCap(file *os.File, capability uint64) (uint64, error) {
	arg := sysGetCap{capability: capability}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(ioctlGetCap), uintptr(unsafe.Pointer(&arg)))
	return arg.value, err
}

func drmPrimeFDToHandle(file *os.File, fd int) (uint32, error) {
	arg := sysPrimeHandle{fd: int32(fd)}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(ioctlPrimeFDToHandle), uintptr(unsafe.Pointer(&arg)))
	return arg.handle, err
}

// propKey identifies one named property on one KMS object.
type propKey struct {
	objID uint32
	name  string
}

// DRMOutput drives one CRTC/connector pair through the atomic
// interface: an NV12 plane for video, an ARGB plane for the OSD.
type DRMOutput struct {
	file *os.File
	hdr  bool

	modeInfo    mode.Info
	modeBlob    uint32
	connectorID uint32
	crtcID      uint32
	sel         planeSelection
	savedCrtc   *mode.Crtc

	propIDs map[propKey]uint32

	commitMu sync.Mutex
	pool     bufferPool
	cpuBufs  [2]*FrameBuffer
	frontBuf int
	actFB    uint32
	srcW     uint32 // SRC_W currently programmed on the video plane
	srcH     uint32

	blackBuf *FrameBuffer
	osdBuf   *FrameBuffer
	osdShown bool

	started bool
}

// NewDRMOutput opens the display device, declares atomic/universal
// plane capability and selects connector, mode, CRTC and planes.
// Failure to find a connected display or both required planes is fatal
// for stream startup; there is no retry.
func NewDRMOutput(hdr bool) (DisplayOutput, error) {
	file, err := drm.OpenCard(0)
	if err != nil {
		return nil, &RenderError{Operation: "device open", Details: "cannot open DRM card 0", Err: err}
	}
	d := &DRMOutput{
		file:    file,
		hdr:     hdr,
		propIDs: make(map[propKey]uint32),
	}

	if v, err := drmGetCap(file, DRM_CAP_DUMB_BUFFER); err != nil || v == 0 {
		fmt.Fprintf(os.Stderr, "drm: device does not advertise dumb buffers: %v\n", err)
	}
	if v, err := drmGetCap(file, DRM_CAP_PRIME); err != nil || v&DRM_PRIME_CAP_IMPORT == 0 {
		fmt.Fprintf(os.Stderr, "drm: PRIME import not available: %v\n", err)
	}
	if err := mode.SetClientCap(file, mode.ClientCapUniversalPlanes, 1); err != nil {
		file.Close()
		return nil, &RenderError{Operation: "device open", Details: "universal planes not available", Err: err}
	}
	if err := mode.SetClientCap(file, mode.ClientCapAtomic, 1); err != nil {
		file.Close()
		return nil, &RenderError{Operation: "device open", Details: "atomic modesetting not available", Err: err}
	}

	if err := d.findDisplay(); err != nil {
		file.Close()
		return nil, err
	}
	return d, nil
}

// findDisplay enumerates connectors for a connected one with modes,
// resolves its encoder/CRTC pairing, picks the output mode and
// classifies the planes compatible with that CRTC.
func (d *DRMOutput) findDisplay() error {
	res, err := mode.GetResources(d.file)
	if err != nil {
		return &RenderError{Operation: "display scan", Details: "cannot retrieve DRM resources", Err: err}
	}

	var conn *mode.Connector
	var enc *mode.Encoder
	for _, id := range res.Connectors {
		c, err := mode.GetConnector(d.file, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "drm: cannot retrieve connector %d: %v\n", id, err)
			continue
		}
		if c.Connection != mode.Connected || len(c.Modes) == 0 {
			continue
		}
		e, err := mode.GetEncoder(d.file, c.EncoderID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "drm: cannot retrieve encoder %d: %v\n", c.EncoderID, err)
			continue
		}
		conn, enc = c, e
		break
	}
	if conn == nil || enc == nil {
		return &RenderError{Operation: "display scan", Details: "no connected display found"}
	}
	d.connectorID = conn.ID
	d.crtcID = enc.CrtcID

	choices := make([]modeChoice, len(conn.Modes))
	for i, m := range conn.Modes {
		choices[i] = modeChoice{
			Index:      i,
			Width:      int(m.Hdisplay),
			Height:     int(m.Vdisplay),
			Refresh:    int(m.Vrefresh),
			Interlaced: m.Flags&MODE_FLAG_INTERLACE != 0,
		}
	}
	idx := pickDisplayMode(choices, d.hdr)
	if idx < 0 {
		idx = 0 // no policy match, fall back to the connector's preferred mode
	}
	d.modeInfo = conn.Modes[idx]

	planes, err := d.scanPlanes()
	if err != nil {
		return err
	}
	sel, err := classifyPlanes(planes, enc.PossibleCrtcs)
	if err != nil {
		return err
	}
	d.sel = sel
	return nil
}

// scanPlanes collects id, formats and type/zpos properties for every
// hardware plane.
func (d *DRMOutput) scanPlanes() ([]planeProps, error) {
	planeRes, err := mode.GetPlaneResources(d.file)
	if err != nil {
		return nil, &RenderError{Operation: "plane scan", Details: "cannot retrieve plane resources", Err: err}
	}
	var out []planeProps
	for _, id := range planeRes.Planes {
		p, err := mode.GetPlane(d.file, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "drm: cannot query plane %d: %v\n", id, err)
			continue
		}
		pp := planeProps{
			ID:            p.ID,
			PossibleCrtcs: p.PossibleCrtcs,
			Formats:       p.FormatTypes,
		}
		props, err := mode.GetProperties(d.file, id, mode.ObjectPlane)
		if err != nil {
			fmt.Fprintf(os.Stderr, "drm: cannot query plane %d properties: %v\n", id, err)
			continue
		}
		for i, propID := range props.Props {
			prop, err := mode.GetProperty(d.file, propID)
			if err != nil {
				continue
			}
			switch prop.Name {
			case "type":
				pp.Type = props.PropValues[i]
			case "zpos":
				pp.Zpos = props.PropValues[i]
				pp.ZposMutable = prop.Flags&mode.PropImmutable == 0
			}
		}
		out = append(out, pp)
	}
	return out, nil
}

// propID resolves and caches the property id for a named property of
// a KMS object. Re-importing ids per commit is wasteful; the kernel
// never renumbers them while the device stays open.
func (d *DRMOutput) propID(objID, objType uint32, name string) (uint32, error) {
	key := propKey{objID: objID, name: name}
	if id, ok := d.propIDs[key]; ok {
		return id, nil
	}
	props, err := mode.GetProperties(d.file, objID, objType)
	if err != nil {
		return 0, err
	}
	for _, pid := range props.Props {
		prop, err := mode.GetProperty(d.file, pid)
		if err != nil {
			continue
		}
		d.propIDs[propKey{objID: objID, name: prop.Name}] = prop.ID
	}
	if id, ok := d.propIDs[key]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("object %d has no property %q", objID, name)
}

// atomicAdd appends one property assignment to a pending request,
// logging and skipping properties the object does not expose.
func (d *DRMOutput) atomicAdd(req *[]mode.AtomicProperty, objID, objType uint32, name string, value uint64) {
	id, err := d.propID(objID, objType, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "drm: object %d: property %q unavailable: %v\n", objID, name, err)
		return
	}
	*req = append(*req, mode.AtomicProperty{ObjectID: objID, PropertyID: id, Value: value})
}

// addCrtcCoords programs a plane to cover the full CRTC.
func (d *DRMOutput) addCrtcCoords(req *[]mode.AtomicProperty, planeID uint32) {
	d.atomicAdd(req, planeID, mode.ObjectPlane, "CRTC_X", 0)
	d.atomicAdd(req, planeID, mode.ObjectPlane, "CRTC_Y", 0)
	d.atomicAdd(req, planeID, mode.ObjectPlane, "CRTC_W", uint64(d.modeInfo.Hdisplay))
	d.atomicAdd(req, planeID, mode.ObjectPlane, "CRTC_H", uint64(d.modeInfo.Vdisplay))
}

// addSrcCoords programs a plane's source rectangle in 16.16 fixed
// point from a buffer's dimensions.
func (d *DRMOutput) addSrcCoords(req *[]mode.AtomicProperty, planeID uint32, buf *FrameBuffer) {
	d.atomicAdd(req, planeID, mode.ObjectPlane, "SRC_X", 0)
	d.atomicAdd(req, planeID, mode.ObjectPlane, "SRC_Y", 0)
	d.atomicAdd(req, planeID, mode.ObjectPlane, "SRC_W", uint64(buf.Width)<<16)
	d.atomicAdd(req, planeID, mode.ObjectPlane, "SRC_H", uint64(buf.Height)<<16)
}

// setBuf points the video plane at a buffer outside the flip path,
// used when a stream's first buffer appears.
func (d *DRMOutput) setBuf(buf *FrameBuffer) {
	var req []mode.AtomicProperty
	d.addSrcCoords(&req, d.sel.VideoPlane, buf)
	d.atomicAdd(&req, d.sel.VideoPlane, mode.ObjectPlane, "FB_ID", uint64(buf.FBID))
	if err := mode.Atomic(d.file, mode.AtomicAllowModeSet, req); err != nil {
		fmt.Fprintf(os.Stderr, "drm: cannot set buffer fb %d %dx%d on plane %d: %v\n",
			buf.FBID, buf.Width, buf.Height, d.sel.VideoPlane, err)
	}
	d.srcW, d.srcH = buf.Width, buf.Height
	d.actFB = buf.FBID
}

// Start performs the initial modeset: mode blob + ACTIVE on the CRTC,
// connector routing, the black buffer on the video plane and, when
// stacking has to be swapped later, the OSD buffer preloaded on the
// primary plane.
func (d *DRMOutput) Start() error {
	if d.started {
		return nil
	}

	d.blackBuf = &FrameBuffer{
		Width:  BLACK_BUF_WIDTH,
		Height: BLACK_BUF_HEIGHT,
		Format: FOURCC_NV12,
	}
	if err := d.setupDumbFB(d.blackBuf); err != nil {
		return &RenderError{Operation: "modeset", Details: "black framebuffer", Err: err}
	}
	fillBlackNV12(d.blackBuf)

	d.osdBuf = &FrameBuffer{
		Width:  uint32(d.modeInfo.Hdisplay),
		Height: uint32(d.modeInfo.Vdisplay),
		Format: FOURCC_ARGB8888,
	}
	if err := d.setupDumbFB(d.osdBuf); err != nil {
		return &RenderError{Operation: "modeset", Details: "OSD framebuffer", Err: err}
	}

	if crtc, err := mode.GetCrtc(d.file, d.crtcID); err == nil {
		d.savedCrtc = crtc
	}

	blob, err := mode.CreateInfoBlob(d.file, d.modeInfo)
	if err != nil {
		return &RenderError{Operation: "modeset", Details: "mode property blob", Err: err}
	}
	d.modeBlob = blob

	primePlane := d.sel.VideoPlane
	overlayPlane := d.sel.OSDPlane
	if d.sel.UseZpos {
		primePlane, overlayPlane = d.sel.OSDPlane, d.sel.VideoPlane
	}

	var req []mode.AtomicProperty
	d.atomicAdd(&req, d.crtcID, mode.ObjectCRTC, "MODE_ID", uint64(blob))
	d.atomicAdd(&req, d.connectorID, mode.ObjectConnector, "CRTC_ID", uint64(d.crtcID))
	d.atomicAdd(&req, d.crtcID, mode.ObjectCRTC, "ACTIVE", 1)
	d.atomicAdd(&req, primePlane, mode.ObjectPlane, "CRTC_ID", uint64(d.crtcID))
	d.addCrtcCoords(&req, primePlane)

	if d.sel.UseZpos {
		d.addSrcCoords(&req, primePlane, d.osdBuf)
		d.atomicAdd(&req, primePlane, mode.ObjectPlane, "FB_ID", uint64(d.osdBuf.FBID))
		d.atomicAdd(&req, overlayPlane, mode.ObjectPlane, "CRTC_ID", uint64(d.crtcID))
		d.addCrtcCoords(&req, overlayPlane)
		d.addSrcCoords(&req, overlayPlane, d.blackBuf)
		d.atomicAdd(&req, overlayPlane, mode.ObjectPlane, "FB_ID", uint64(d.blackBuf.FBID))
	} else {
		d.addSrcCoords(&req, primePlane, d.blackBuf)
		d.atomicAdd(&req, primePlane, mode.ObjectPlane, "FB_ID", uint64(d.blackBuf.FBID))
	}

	if err := mode.Atomic(d.file, mode.AtomicAllowModeSet, req); err != nil {
		return &RenderError{Operation: "modeset", Details: "initial atomic commit rejected", Err: err}
	}
	d.actFB = d.blackBuf.FBID
	d.srcW, d.srcH = d.blackBuf.Width, d.blackBuf.Height
	d.started = true
	return nil
}

func (d *DRMOutput) ScreenInfo() ScreenInfo {
	return ScreenInfo{
		Width:       int(d.modeInfo.Hdisplay),
		Height:      int(d.modeInfo.Vdisplay),
		Refresh:     int(d.modeInfo.Vrefresh),
		PixelAspect: 16.0 / 9.0,
	}
}

func (d *DRMOutput) BlackBuffer() *FrameBuffer { return d.blackBuf }
func (d *DRMOutput) OSDBuffer() *FrameBuffer   { return d.osdBuf }
func (d *DRMOutput) UseZpos() bool             { return d.sel.UseZpos }
func (d *DRMOutput) CurrentFB() uint32         { return d.actFB }

// CommitFrame flips the video plane to a new buffer as one atomic
// property commit, requesting a completion event. A rejected commit is
// logged and the frame treated as presented so the pipeline never
// stalls on a transient hardware error.
func (d *DRMOutput) CommitFrame(buf *FrameBuffer) error {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	var req []mode.AtomicProperty
	if buf.Width != d.srcW || buf.Height != d.srcH {
		d.addSrcCoords(&req, d.sel.VideoPlane, buf)
		d.srcW, d.srcH = buf.Width, buf.Height
	}
	d.atomicAdd(&req, d.sel.VideoPlane, mode.ObjectPlane, "FB_ID", uint64(buf.FBID))
	if err := mode.Atomic(d.file, mode.PageFlipEvent, req); err != nil {
		fmt.Fprintf(os.Stderr, "drm: cannot page flip plane %d to fb %d: %v\n",
			d.sel.VideoPlane, buf.FBID, err)
	}
	d.actFB = buf.FBID
	d.frontBuf ^= 1
	return nil
}

// AwaitFlip blocks on the card fd until a flip-completion event
// arrives. The poll timeout keeps teardown responsive: stop is checked
// between waits instead of cancelling a blocked read.
func (d *DRMOutput) AwaitFlip(stop <-chan struct{}) error {
	fd := int(d.file.Fd())
	buf := make([]byte, 1024)
	for {
		select {
		case <-stop:
			return errStopped
		default:
		}
		pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pfd, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return &RenderError{Operation: "await flip", Details: "poll on card fd", Err: err}
		}
		if n == 0 {
			continue
		}
		nr, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return &RenderError{Operation: "await flip", Details: "read DRM event", Err: err}
		}
		if drainFlipEvents(buf[:nr]) {
			return nil
		}
	}
}

// drainFlipEvents walks a raw DRM event buffer and reports whether a
// flip-completion (or legacy vblank) event was present.
func drainFlipEvents(raw []byte) bool {
	flipped := false
	for len(raw) >= 8 {
		typ := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
		length := uint32(raw[4]) | uint32(raw[5])<<8 | uint32(raw[6])<<16 | uint32(raw[7])<<24
		if length < 8 || int(length) > len(raw) {
			break
		}
		if typ == DRM_EVENT_FLIP_COMPLETE || typ == DRM_EVENT_VBLANK {
			flipped = true
		}
		raw = raw[length:]
	}
	return flipped
}

// SwapZpos exchanges the stacking order of the video and OSD planes.
// restore puts the hardware default order back.
func (d *DRMOutput) SwapZpos(restore bool) error {
	zposVideo, zposOSD := d.sel.ZposVideo, d.sel.ZposOverlay
	if restore {
		zposVideo, zposOSD = d.sel.ZposOverlay, d.sel.ZposVideo
	}
	var req []mode.AtomicProperty
	d.atomicAdd(&req, d.sel.VideoPlane, mode.ObjectPlane, "zpos", zposVideo)
	d.atomicAdd(&req, d.sel.OSDPlane, mode.ObjectPlane, "zpos", zposOSD)
	if err := mode.Atomic(d.file, mode.AtomicAllowModeSet, req); err != nil {
		fmt.Fprintf(os.Stderr, "drm: cannot change plane stacking: %v\n", err)
		return &RenderError{Operation: "zpos swap", Details: "atomic commit rejected", Err: err}
	}
	return nil
}

// EnableOSD makes the overlay plane visible at the given screen
// rectangle, scanning out of the OSD buffer.
func (d *DRMOutput) EnableOSD(x, y, width, height int) error {
	err := mode.SetPlane(d.file, d.sel.OSDPlane, d.crtcID, d.osdBuf.FBID, 0,
		int32(x), int32(y), uint32(width), uint32(height),
		0, 0, uint32(height)<<16, uint32(width)<<16)
	if err != nil {
		fmt.Fprintf(os.Stderr, "drm: cannot enable OSD plane %d: %v\n", d.sel.OSDPlane, err)
		return &RenderError{Operation: "OSD enable", Details: "set plane rejected", Err: err}
	}
	d.osdShown = true
	return nil
}

// DisableOSD hides the overlay plane.
func (d *DRMOutput) DisableOSD() error {
	err := mode.SetPlane(d.file, d.sel.OSDPlane, d.crtcID, 0, 0,
		0, 0, uint32(d.osdBuf.Width), uint32(d.osdBuf.Height), 0, 0, 0, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "drm: cannot disable OSD plane %d: %v\n", d.sel.OSDPlane, err)
		return &RenderError{Operation: "OSD disable", Details: "set plane rejected", Err: err}
	}
	d.osdShown = false
	return nil
}

// Stop restores the CRTC configuration that was active before the
// pipeline took over the display.
func (d *DRMOutput) Stop() error {
	if !d.started {
		return nil
	}
	if d.savedCrtc != nil {
		connector := d.connectorID
		err := mode.SetCrtc(d.file, d.savedCrtc.ID, d.savedCrtc.BufferID,
			d.savedCrtc.X, d.savedCrtc.Y, &connector, 1, &d.savedCrtc.Mode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "drm: cannot restore saved CRTC %d: %v\n", d.savedCrtc.ID, err)
		}
	}
	d.started = false
	return nil
}

// Close releases every hardware resource still held.
func (d *DRMOutput) Close() error {
	d.Stop()
	d.ReleaseBuffers()
	if d.blackBuf != nil {
		d.destroyFB(d.blackBuf)
		d.blackBuf = nil
	}
	if d.osdBuf != nil {
		d.destroyFB(d.osdBuf)
		d.osdBuf = nil
	}
	if d.modeBlob != 0 {
		if err := mode.DestroyBlob(d.file, d.modeBlob); err != nil {
			fmt.Fprintf(os.Stderr, "drm: cannot destroy mode blob %d: %v\n", d.modeBlob, err)
		}
		d.modeBlob = 0
	}
	return d.file.Close()
}
