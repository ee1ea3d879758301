// display_select.go - Display mode and plane selection policy

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

// Pixel format fourcc codes used on the wire.
const (
	FOURCC_NV12     = uint32('N') | uint32('V')<<8 | uint32('1')<<16 | uint32('2')<<24
	FOURCC_YUV420   = uint32('Y') | uint32('U')<<8 | uint32('1')<<16 | uint32('2')<<24
	FOURCC_ARGB8888 = uint32('A') | uint32('R')<<8 | uint32('2')<<16 | uint32('4')<<24
)

// Hardware plane types as reported by the "type" plane property.
const (
	PLANE_TYPE_OVERLAY = 0
	PLANE_TYPE_PRIMARY = 1
	PLANE_TYPE_CURSOR  = 2
)

// modeChoice is one display mode reported by a connector, reduced to
// the fields the selection policy looks at.
type modeChoice struct {
	Index      int // position in the connector's mode list
	Width      int
	Height     int
	Refresh    int
	Interlaced bool
}

// pickDisplayMode selects the output mode: 1080p50 progressive for
// standard dynamic range, 720p50 when the HDR policy is requested.
// Returns the index into the candidate list, or -1 if no candidate
// matches the policy.
func pickDisplayMode(modes []modeChoice, hdr bool) int {
	wantW, wantH := 1920, 1080
	if hdr {
		wantW, wantH = 1280, 720
	}
	for _, m := range modes {
		if m.Width == wantW && m.Height == wantH && m.Refresh == 50 && !m.Interlaced {
			return m.Index
		}
	}
	return -1
}

// planeProps is one hardware plane reduced to what classification
// needs: its object id, the CRTCs it can drive, supported formats and
// the type/zpos property values.
type planeProps struct {
	ID            uint32
	PossibleCrtcs uint32
	Formats       []uint32
	Type          uint64
	Zpos          uint64
	ZposMutable   bool
}

// planeSelection is the outcome of walking the plane list: one
// NV12-capable plane for video, one ARGB-capable plane for the OSD,
// and whether stacking order has to be swapped at OSD draw time to
// keep video below the overlay.
type planeSelection struct {
	VideoPlane uint32
	OSDPlane   uint32
	UseZpos    bool

	// Swap targets: the value each plane's zpos is set to while the
	// overlay is shown. ZposVideo carries the OSD plane's default and
	// ZposOverlay the video plane's default, so the swap commit simply
	// crosses the two defaults over and the restore writes them back.
	ZposVideo   uint64
	ZposOverlay uint64
}

// classifyPlanes walks every plane compatible with the chosen CRTC and
// assigns the first NV12-capable one to video and the first
// ARGB8888-capable one to the OSD. When the video plane is not the
// hardware primary, its stacking order must be swapped dynamically so
// the OSD renders above video; both property values are recorded for
// the swap and its restore. An immutable zpos on either plane rules
// the swap out and the OSD falls back to plane enable/disable.
func classifyPlanes(planes []planeProps, crtcMask uint32) (planeSelection, error) {
	var sel planeSelection
	zposMutable := true
	for _, p := range planes {
		if p.PossibleCrtcs&crtcMask == 0 {
			continue
		}
		for _, format := range p.Formats {
			switch format {
			case FOURCC_NV12:
				if sel.VideoPlane == 0 {
					if p.Type != PLANE_TYPE_PRIMARY {
						sel.UseZpos = true
						sel.ZposOverlay = p.Zpos
						zposMutable = zposMutable && p.ZposMutable
					}
					sel.VideoPlane = p.ID
					if sel.OSDPlane == p.ID {
						sel.OSDPlane = 0
					}
				}
			case FOURCC_ARGB8888:
				if sel.OSDPlane == 0 && p.ID != sel.VideoPlane {
					if p.Type != PLANE_TYPE_OVERLAY {
						sel.ZposVideo = p.Zpos
						zposMutable = zposMutable && p.ZposMutable
					}
					sel.OSDPlane = p.ID
				}
			}
		}
	}
	if sel.UseZpos && !zposMutable {
		sel.UseZpos = false
	}
	if sel.VideoPlane == 0 {
		return sel, &RenderError{Operation: "plane selection", Details: "no NV12-capable plane found"}
	}
	if sel.OSDPlane == 0 {
		return sel, &RenderError{Operation: "plane selection", Details: "no ARGB8888-capable plane found"}
	}
	return sel, nil
}
