package tensorfold

import "github.com/geometryos/substrate/internal/hilbert"

// FoldCPU performs the pure-Go fold of data into target's pixel buffer,
// placing consecutive bytes at successive Hilbert distances so that spatial
// locality in the rendered texture reflects byte-offset locality in the
// source buffer. Must produce output observationally identical to any GPU
// accelerator's Fold for the same inputs. adj is applied to every pixel's
// RGB channels after the mode's color mapping; pass DefaultAdjustment() for
// an unmodified fold.
func FoldCPU(target RenderTarget, data []byte, n uint32, mode ColorMode, adj Adjustment) {
	for d := uint32(0); d < n*n; d++ {
		x, y := hilbert.DToXY(n, d)
		r, g, b, a := colorForOffset(data, int(d), mode)
		r, g, b = adjustRGB(r, g, b, adj)
		off := int(y)*target.Stride + int(x)*4
		if off+4 > len(target.Data) {
			continue
		}
		target.Data[off] = r
		target.Data[off+1] = g
		target.Data[off+2] = b
		target.Data[off+3] = a
	}
}

// colorForOffset computes the RGBA color for the byte(s) at distance d
// according to mode.
func colorForOffset(data []byte, d int, mode ColorMode) (r, g, b, a uint8) {
	switch mode {
	case ModeMultiChannel:
		// Four raw bytes per pixel: R, G, B, and alpha read straight
		// through rather than forced opaque.
		base := d * 4
		return byteAt(data, base), byteAt(data, base+1), byteAt(data, base+2), byteAt(data, base+3)
	case ModeHeatmap:
		v := byteAt(data, d)
		r, g, b := heatmapColor(v)
		return r, g, b, 255
	case ModeAttentionFlow:
		// Byte magnitude drives both a directional tint and, crucially,
		// the alpha channel: low-magnitude attention fades toward
		// transparent instead of painting a fully opaque pixel.
		v := byteAt(data, d)
		return v, 255 - v, 128, v
	case ModeMemoryPattern:
		signed := int8(byteAt(data, d))
		mag := absInt8(signed)
		if signed >= 0 {
			// Warm: white fading to red as positive magnitude grows.
			return 255, 255 - mag, 255 - mag, 255
		}
		// Cool: white fading to blue as negative magnitude grows.
		return 255 - mag, 255 - mag, 255, 255
	default:
		v := byteAt(data, d)
		return v, v, v, 255
	}
}

// heatmapColor maps a byte magnitude to a 5-stop blue -> cyan -> green ->
// yellow -> red gradient, the conventional thermal palette.
func heatmapColor(v uint8) (r, g, b uint8) {
	stops := [5][3]int{
		{0, 0, 255},   // blue
		{0, 255, 255}, // cyan
		{0, 255, 0},   // green
		{255, 255, 0}, // yellow
		{255, 0, 0},   // red
	}
	breakpoints := [5]int{0, 64, 128, 192, 255}

	vi := int(v)
	seg := 0
	for seg < 3 && vi > breakpoints[seg+1] {
		seg++
	}
	lo, hi := stops[seg], stops[seg+1]
	spanLo, spanHi := breakpoints[seg], breakpoints[seg+1]
	span := spanHi - spanLo
	if span == 0 {
		span = 1
	}
	frac := vi - spanLo
	lerp := func(a, b int) uint8 {
		return uint8(a + (b-a)*frac/span)
	}
	return lerp(lo[0], hi[0]), lerp(lo[1], hi[1]), lerp(lo[2], hi[2])
}

func absInt8(v int8) uint8 {
	if v < 0 {
		return uint8(-int16(v))
	}
	return uint8(v)
}

func byteAt(data []byte, i int) uint8 {
	if i < 0 || i >= len(data) {
		return 0
	}
	return data[i]
}
