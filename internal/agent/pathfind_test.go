package agent

import "testing"

func TestDirectPathReachesEnd(t *testing.T) {
	pf := NewPathfinder(256)
	path := pf.FindPath(0, 100, StrategyDirect, nil)
	if !path.Valid() {
		t.Fatalf("expected a valid path")
	}
	last := path.Waypoints[len(path.Waypoints)-1]
	if last.Hilbert != 100 {
		t.Fatalf("expected path to terminate at hilbert 100, got %d", last.Hilbert)
	}
}

func TestDirectPathSinglePointWhenStartEqualsEnd(t *testing.T) {
	pf := NewPathfinder(256)
	path := pf.FindPath(42, 42, StrategyDirect, nil)
	if len(path.Waypoints) != 1 {
		t.Fatalf("expected a single waypoint, got %d", len(path.Waypoints))
	}
}

func TestAvoidDistrictsRoutesAroundExclusion(t *testing.T) {
	pf := NewPathfinder(16)
	start := uint32(0)
	end := uint32(30)
	excluded := []HilbertRange{{Min: 10, Max: 20}}
	path := pf.FindPath(start, end, StrategyAvoidDistricts, excluded)
	if !path.Valid() {
		t.Fatalf("expected a valid path")
	}
	for _, wp := range path.Waypoints {
		for _, r := range excluded {
			if r.contains(wp.Hilbert) {
				t.Fatalf("path passes through excluded hilbert %d", wp.Hilbert)
			}
		}
	}
}

func TestShortestStrategyBehavesLikeDirect(t *testing.T) {
	pf := NewPathfinder(64)
	direct := pf.FindPath(5, 55, StrategyDirect, nil)
	shortest := pf.FindPath(5, 55, StrategyShortest, nil)
	if len(direct.Waypoints) != len(shortest.Waypoints) {
		t.Fatalf("expected StrategyShortest to match StrategyDirect, got %d vs %d waypoints", len(shortest.Waypoints), len(direct.Waypoints))
	}
}

func TestBeginNavigationAimsAtFirstWaypoint(t *testing.T) {
	a := New(RoleScout, [2]float64{0, 0})
	a.HilbertPos = 0
	g := Goal{TargetHilbert: 40, Strategy: StrategyDirect}
	a.beginNavigation(g, 64)
	if a.TargetPos == a.WorldPos {
		t.Fatalf("expected agent to aim at a waypoint beyond its own position")
	}
}

func TestAdvanceWaypointReachesWorkingState(t *testing.T) {
	a := New(RoleScout, [2]float64{0, 0})
	a.path = HilbertPath{Waypoints: []Waypoint{{X: 0, Y: 0, Hilbert: 0}}}
	a.waypointIdx = 0
	a.State = StateNavigating
	a.advanceWaypoint()
	if a.State != StateWorking {
		t.Fatalf("expected StateWorking once path is exhausted, got %v", a.State)
	}
}
