// Package tile defines the shared spatial-artifact type every subsystem
// places on the infinite map: a Hilbert-addressed tile with a kind-specific
// payload reference and a lifecycle the substrate tracks independently of
// any one subsystem's own state machine.
package tile

import (
	"github.com/geometryos/substrate/internal/hilbert"
	"github.com/geometryos/substrate/internal/vat"
)

// Kind names what a tile represents on the map.
type Kind int

const (
	KindArtifact Kind = iota
	KindModule
	KindVM
	KindProcess
	KindAgent
	KindSourceFile
)

// Tile is one spatial entity on the map, addressed by Hilbert distance at a
// given grid order.
type Tile struct {
	ID        string
	Kind      Kind
	GridOrder uint32
	Hilbert   uint32
	X, Y      uint32
	VatID     vat.Id
	Color     [3]uint8
	Label     string
}

// NewTile constructs a tile at the given Hilbert distance, deriving its
// (x, y) coordinate from the grid order.
func NewTile(id string, kind Kind, gridOrder, d uint32) Tile {
	x, y := hilbert.DToXY(gridOrder, d)
	return Tile{ID: id, Kind: kind, GridOrder: gridOrder, Hilbert: d, X: x, Y: y}
}
