// nv12.go - YUV420 to NV12 packing with field selection

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

// The video plane scans out NV12: full-resolution luma followed by one
// interleaved UV plane at half vertical resolution. Software-decoded
// frames arrive as planar YUV 4:2:0, so the copy into the mapped dumb
// buffer interleaves the chroma on the fly. For interlaced frames the
// same pass also selects one field by row parity, writing a half
// height buffer per field.

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// includeRow reports whether a source row belongs to the field being
// packed. Progressive frames take every row.
func includeRow(row int, interlaced, topFieldFirst, secondField bool) bool {
	if !interlaced {
		return true
	}
	tff := b2i(topFieldFirst)
	if secondField {
		return (row+tff)%2 == 0
	}
	return (row+tff+1)%2 == 0
}

// packLumaNV12 copies the luma plane, compacting the selected field
// into consecutive destination rows when the source is interlaced.
func packLumaNV12(dst []byte, dstPitch int, src []byte, srcStride, width, height int,
	interlaced, topFieldFirst, secondField bool) {

	rowDiv := 1 + b2i(interlaced)
	for i := 0; i < height; i++ {
		if !includeRow(i, interlaced, topFieldFirst, secondField) {
			continue
		}
		d := (i / rowDiv) * dstPitch
		s := i * srcStride
		copy(dst[d:d+width], src[s:s+width])
	}
}

// packChromaNV12 interleaves the planar U and V planes into the NV12
// UV plane, with the same per-field row selection as the luma pass.
// Chroma rows cover height/2 source lines; each destination row holds
// width bytes (width/2 UV pairs).
func packChromaNV12(dst []byte, dstPitch int, u, v []byte, uStride, vStride, width, height int,
	interlaced, topFieldFirst, secondField bool) {

	rowDiv := 1 + b2i(interlaced)
	for i := 0; i < height/2; i++ {
		if !includeRow(i, interlaced, topFieldFirst, secondField) {
			continue
		}
		d := (i / rowDiv) * dstPitch
		us := i * uStride
		vs := i * vStride
		for j := 0; j < width; j += 2 {
			dst[d+j] = u[us+j/2]
			dst[d+j+1] = v[vs+j/2]
		}
	}
}

// fillBlackNV12 paints an NV12 buffer video black: luma 0x10, chroma
// at the 0x80 neutral point.
func fillBlackNV12(buf *FrameBuffer) {
	for i := range buf.Plane[0] {
		buf.Plane[0][i] = 0x10
	}
	for i := range buf.Plane[1] {
		buf.Plane[1][i] = 0x80
	}
}

// packFrameNV12 packs one frame (or one field of an interlaced frame)
// into a mapped scanout buffer.
func packFrameNV12(buf *FrameBuffer, f *VideoFrame, secondField bool) {
	packLumaNV12(buf.Plane[0], int(buf.Pitch[0]), f.Data[0], f.Stride[0],
		f.Width, f.Height, f.Interlaced, f.TopFieldFirst, secondField)
	packChromaNV12(buf.Plane[1], int(buf.Pitch[1]), f.Data[1], f.Data[2],
		f.Stride[1], f.Stride[2], f.Width, f.Height,
		f.Interlaced, f.TopFieldFirst, secondField)
}
