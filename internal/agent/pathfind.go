package agent

import (
	"container/heap"

	"github.com/geometryos/substrate/internal/hilbert"
)

// PathStrategy selects how a Pathfinder routes an agent between two Hilbert
// coordinates. Grounded on the teacher pack's hilbert_pathfinder.rs
// PathStrategy enum; PreferComplexity/PreferRecent are not carried forward
// since nothing in this substrate tracks per-tile complexity or mtimes yet.
type PathStrategy int

const (
	// StrategyDirect follows the Hilbert curve exactly between start and
	// end, in fixed-size steps.
	StrategyDirect PathStrategy = iota
	// StrategyAvoidDistricts runs A* over the grid's 4-connected
	// neighbor graph, routing around any Excluded range.
	StrategyAvoidDistricts
	// StrategyShortest is reserved for a future shortcut-aware router;
	// it behaves identically to StrategyDirect today.
	StrategyShortest
)

// HilbertRange is an inclusive band of excluded Hilbert coordinates, used by
// StrategyAvoidDistricts to keep an agent out of a district.
type HilbertRange struct {
	Min, Max uint32
}

func (r HilbertRange) contains(h uint32) bool { return h >= r.Min && h <= r.Max }

// Waypoint is one stop along a path: a 2D world position paired with the 1D
// Hilbert index it corresponds to, so a renderer can place it either way.
type Waypoint struct {
	X, Y    float64
	Hilbert uint32
}

// HilbertPath is an ordered route between two Hilbert coordinates.
type HilbertPath struct {
	StartHilbert, EndHilbert uint32
	Waypoints                []Waypoint
}

// Valid reports whether the path carries at least one waypoint.
func (p HilbertPath) Valid() bool { return len(p.Waypoints) > 0 }

// Pathfinder computes routes between Hilbert coordinates on an n x n grid.
type Pathfinder struct {
	grid uint32
}

// NewPathfinder constructs a pathfinder for the given grid order.
func NewPathfinder(grid uint32) *Pathfinder {
	return &Pathfinder{grid: grid}
}

// FindPath computes a route from start to end using strategy. excluded is
// only consulted for StrategyAvoidDistricts; a failed A* search (no route
// around the exclusions) falls back to the direct path.
func (p *Pathfinder) FindPath(start, end uint32, strategy PathStrategy, excluded []HilbertRange) HilbertPath {
	switch strategy {
	case StrategyAvoidDistricts:
		if path, ok := p.astarPath(start, end, excluded); ok {
			return path
		}
		return p.directPath(start, end)
	default: // StrategyDirect, StrategyShortest
		return p.directPath(start, end)
	}
}

func (p *Pathfinder) waypointAt(h uint32) Waypoint {
	x, y := hilbert.DToXY(p.grid, h)
	return Waypoint{X: float64(x), Y: float64(y), Hilbert: h}
}

// directPath walks the Hilbert curve directly from start to end in
// grid/16-sized steps (minimum 1), mirroring find_direct_path's adaptive
// step size.
func (p *Pathfinder) directPath(start, end uint32) HilbertPath {
	path := HilbertPath{StartHilbert: start, EndHilbert: end}
	path.Waypoints = append(path.Waypoints, p.waypointAt(start))
	if start == end {
		return path
	}

	step := p.grid / 16
	if step < 1 {
		step = 1
	}

	current := start
	if end > start {
		for current != end {
			next := current + step
			if next > end {
				next = end
			}
			path.Waypoints = append(path.Waypoints, p.waypointAt(next))
			current = next
		}
	} else {
		for current != end {
			var next uint32
			if current < step {
				next = 0
			} else {
				next = current - step
			}
			if next < end {
				next = end
			}
			path.Waypoints = append(path.Waypoints, p.waypointAt(next))
			current = next
		}
	}
	return path
}

// astarNode is a priority-queue entry for astarPath's open set.
type astarNode struct {
	hilbert uint32
	f       uint32
}

type astarQueue []astarNode

func (q astarQueue) Len() int            { return len(q) }
func (q astarQueue) Less(i, j int) bool  { return q[i].f < q[j].f }
func (q astarQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *astarQueue) Push(x interface{}) { *q = append(*q, x.(astarNode)) }
func (q *astarQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// astarPath runs A* over the grid's 4-connected neighbor graph, addressed by
// Hilbert index, skipping any coordinate inside an excluded range. The
// Hilbert-coordinate difference serves as the heuristic, exactly as in
// hilbert_heuristic: the curve's locality makes it an effective (if
// inadmissible in the worst case) distance estimate.
func (p *Pathfinder) astarPath(start, end uint32, excluded []HilbertRange) (HilbertPath, bool) {
	blocked := func(h uint32) bool {
		for _, r := range excluded {
			if r.contains(h) {
				return true
			}
		}
		return false
	}
	if blocked(start) || blocked(end) {
		return HilbertPath{}, false
	}

	open := &astarQueue{{hilbert: start, f: hilbertHeuristic(start, end)}}
	heap.Init(open)
	cameFrom := make(map[uint32]uint32)
	gScore := map[uint32]uint32{start: 0}
	visited := make(map[uint32]bool)

	for open.Len() > 0 {
		cur := heap.Pop(open).(astarNode)
		if visited[cur.hilbert] {
			continue
		}
		visited[cur.hilbert] = true
		if cur.hilbert == end {
			return p.reconstructPath(start, end, cameFrom), true
		}
		for _, nb := range p.neighbors(cur.hilbert) {
			if blocked(nb) || visited[nb] {
				continue
			}
			tentative := gScore[cur.hilbert] + 1
			if existing, ok := gScore[nb]; !ok || tentative < existing {
				cameFrom[nb] = cur.hilbert
				gScore[nb] = tentative
				heap.Push(open, astarNode{hilbert: nb, f: tentative + hilbertHeuristic(nb, end)})
			}
		}
	}
	return HilbertPath{}, false
}

func (p *Pathfinder) reconstructPath(start, end uint32, cameFrom map[uint32]uint32) HilbertPath {
	path := HilbertPath{StartHilbert: start, EndHilbert: end}
	var rev []Waypoint
	current := end
	for current != start {
		rev = append(rev, p.waypointAt(current))
		prev, ok := cameFrom[current]
		if !ok {
			break
		}
		current = prev
	}
	rev = append(rev, p.waypointAt(start))
	for i := len(rev) - 1; i >= 0; i-- {
		path.Waypoints = append(path.Waypoints, rev[i])
	}
	return path
}

func (p *Pathfinder) neighbors(h uint32) []uint32 {
	x, y := hilbert.DToXY(p.grid, h)
	var out []uint32
	deltas := [4][2]int64{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}
	for _, d := range deltas {
		nx := int64(x) + d[0]
		ny := int64(y) + d[1]
		if nx < 0 || ny < 0 || nx >= int64(p.grid) || ny >= int64(p.grid) {
			continue
		}
		out = append(out, hilbert.XYToD(p.grid, uint32(nx), uint32(ny)))
	}
	return out
}

func hilbertHeuristic(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
