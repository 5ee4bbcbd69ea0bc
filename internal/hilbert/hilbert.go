// Package hilbert implements the Hilbert space-filling curve bijection used
// to map flat distance values onto 2D grid coordinates and back. Every other
// package that needs a stable, locality-preserving placement of artifacts on
// the infinite map (codec tile layout, agent navigation, process clustering)
// builds on this bijection rather than re-deriving it.
package hilbert

import "sync"

// DToXY converts a Hilbert distance d into (x, y) grid coordinates for an
// n x n grid, where n must be a power of two. Behavior is undefined for n
// that is not a power of two or for d >= n*n.
func DToXY(n, d uint32) (x, y uint32) {
	var rx, ry uint32
	t := d
	for s := uint32(1); s < n; s <<= 1 {
		rx = 1 & (t / 2)
		ry = 1 & (t ^ rx)
		x, y = rotate(s, x, y, rx, ry)
		x += s * rx
		y += s * ry
		t /= 4
	}
	return x, y
}

// XYToD converts (x, y) grid coordinates into a Hilbert distance for an n x n
// grid, where n must be a power of two.
func XYToD(n, x, y uint32) uint32 {
	var d uint32
	for s := n / 2; s > 0; s >>= 1 {
		var rx, ry uint32
		if x&s > 0 {
			rx = 1
		}
		if y&s > 0 {
			ry = 1
		}
		d += s * s * ((3 * rx) ^ ry)
		x, y = rotate(s, x, y, rx, ry)
	}
	return d
}

// rotate performs the quadrant rotation/reflection step shared by both
// directions of the bijection.
func rotate(s, x, y, rx, ry uint32) (uint32, uint32) {
	if ry == 0 {
		if rx == 1 {
			x = s - 1 - x
			y = s - 1 - y
		}
		x, y = y, x
	}
	return x, y
}

// table caches a precomputed d->(x,y) lookup for small grids (order n<=1024)
// so repeated lookups on the same grid size avoid recomputation. Built
// lazily per order on first use.
type table struct {
	n   uint32
	xy  [][2]uint32
}

var tables sync.Map // uint32 -> *table

// Table returns a cached lookup table mapping every distance in [0, n*n) to
// its (x, y) coordinate, building it on first request for this n. Only
// intended for n <= 1024 (1M entries); callers with larger grids should call
// DToXY directly.
func Table(n uint32) [][2]uint32 {
	if v, ok := tables.Load(n); ok {
		return v.(*table).xy
	}
	xy := make([][2]uint32, int(n)*int(n))
	for d := uint32(0); d < n*n; d++ {
		x, y := DToXY(n, d)
		xy[d] = [2]uint32{x, y}
	}
	t := &table{n: n, xy: xy}
	actual, _ := tables.LoadOrStore(n, t)
	return actual.(*table).xy
}
