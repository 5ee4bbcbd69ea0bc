package tile

import "testing"

func TestNewTileDerivesCoordinates(t *testing.T) {
	tl := NewTile("a1", KindModule, 64, 5)
	if tl.GridOrder != 64 || tl.Hilbert != 5 {
		t.Fatalf("unexpected tile fields: %+v", tl)
	}
	if tl.X >= 64 || tl.Y >= 64 {
		t.Fatalf("expected coordinates within grid, got (%d,%d)", tl.X, tl.Y)
	}
}
