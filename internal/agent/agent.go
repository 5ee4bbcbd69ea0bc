// Package agent implements finite-state cognitive agents that roam the
// Hilbert-indexed map pursuing goals, remembering what they observe, and
// emitting requests the substrate fulfills on their behalf. Grounded
// directly on the teacher pack's cognitive/agents.rs CityAgent.
package agent

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/geometryos/substrate/internal/hilbert"
	"github.com/geometryos/substrate/internal/vat"
)

// Role is an agent's behavioral specialty.
type Role int

const (
	RoleScout Role = iota
	RoleEngineer
	RoleArchivist
)

// Color returns the role's default tile tint, matching agents.rs.
func (r Role) Color() [3]uint8 {
	switch r {
	case RoleScout:
		return [3]uint8{255, 215, 0} // gold
	case RoleEngineer:
		return [3]uint8{0, 200, 200} // cyan
	case RoleArchivist:
		return [3]uint8{160, 0, 220} // purple
	default:
		return [3]uint8{255, 255, 255}
	}
}

// State is an agent's current FSM state.
type State int

const (
	StateIdle State = iota
	StateNavigating
	StateAnalyzing
	StateWorking
	StateWaiting
	StateCompleted
	StateError
)

// GoalType names what a goal asks the agent to do.
type GoalType int

const (
	GoalNavigate GoalType = iota
	GoalAnalyze
	GoalRebuild
	GoalArchive
	GoalScoutDistrict
)

// Goal is one queued unit of agent intent.
type Goal struct {
	ID            string
	Type          GoalType
	TargetPath    string
	TargetVatID   vat.Id
	TargetHilbert uint32
	District      string
	Priority      uint8
	CreatedAt     time.Time
	Deadline      *time.Time

	// Strategy selects how the agent navigates to TargetHilbert.
	Strategy PathStrategy
	// Excluded is consulted only when Strategy is StrategyAvoidDistricts.
	Excluded []HilbertRange
}

// Memory is one bounded observation recorded by the agent.
type Memory struct {
	Timestamp  time.Time
	Location   uint32
	Observation string
	Confidence float64
}

// RequestKind names the kind of request an agent can emit for the substrate
// to act on.
type RequestKind int

const (
	RequestRebuild RequestKind = iota
	RequestArchive
	RequestLog
)

// Request is emitted by Tick when an agent completes work that the
// substrate (not the agent itself) must carry out.
type Request struct {
	Kind    RequestKind
	Path    string
	VatID   vat.Id
	Message string
	AgentID string
}

const memoryCapacity = 1000

// Agent is one cognitive agent's full runtime state.
type Agent struct {
	ID         string
	Name       string
	Role       Role
	State      State
	HilbertPos uint32
	WorldPos   [2]float64
	TargetPos  [2]float64
	Goals      []Goal
	memory     []Memory
	VatID      vat.Id
	BornAt     time.Time
	LastActive time.Time
	Speed      float64
	Color      [3]uint8

	path        HilbertPath
	waypointIdx int
}

// New constructs an agent with a freshly generated id/name.
func New(role Role, worldPos [2]float64) *Agent {
	id := uuid.NewString()
	return &Agent{
		ID:         id,
		Name:       roleName(role) + "-" + id[:8],
		Role:       role,
		State:      StateIdle,
		WorldPos:   worldPos,
		TargetPos:  worldPos,
		VatID:      vat.NewID("agent:" + id),
		BornAt:     time.Now(),
		LastActive: time.Now(),
		Speed:      100.0,
		Color:      role.Color(),
	}
}

func roleName(r Role) string {
	switch r {
	case RoleScout:
		return "scout"
	case RoleEngineer:
		return "engineer"
	case RoleArchivist:
		return "archivist"
	default:
		return "agent"
	}
}

// AddGoal appends g to the agent's FIFO goal queue.
func (a *Agent) AddGoal(g Goal) {
	a.Goals = append(a.Goals, g)
}

// CurrentGoal returns the head of the goal queue, if any.
func (a *Agent) CurrentGoal() (Goal, bool) {
	if len(a.Goals) == 0 {
		return Goal{}, false
	}
	return a.Goals[0], true
}

// CompleteGoal pops the head goal, records a high-confidence memory of its
// completion, and transitions to Idle (or Navigating if more goals remain).
func (a *Agent) CompleteGoal() {
	if len(a.Goals) == 0 {
		return
	}
	g := a.Goals[0]
	a.Goals = a.Goals[1:]
	a.Remember(Memory{
		Timestamp:   time.Now(),
		Location:    a.HilbertPos,
		Observation: "completed goal " + g.ID,
		Confidence:  0.9,
	})
	if len(a.Goals) > 0 {
		a.State = StateNavigating
	} else {
		a.State = StateIdle
	}
}

// Remember appends an observation, evicting the oldest entry once the
// bounded memory ring is full (capacity 1000, matching agents.rs).
func (a *Agent) Remember(m Memory) {
	a.memory = append(a.memory, m)
	if len(a.memory) > memoryCapacity {
		a.memory = a.memory[len(a.memory)-memoryCapacity:]
	}
}

// RecallNearby returns memories recorded within radius (in Hilbert-distance
// units) of the agent's current position.
func (a *Agent) RecallNearby(radius uint32) []Memory {
	var out []Memory
	for _, m := range a.memory {
		d := hilbertDistanceDelta(a.HilbertPos, m.Location)
		if d <= radius {
			out = append(out, m)
		}
	}
	return out
}

func hilbertDistanceDelta(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// UpdatePosition advances the agent toward TargetPos at Speed units/sec for
// dt seconds, recomputing HilbertPos from the new world position on grid.
func (a *Agent) UpdatePosition(dt float64, grid uint32) {
	dx := a.TargetPos[0] - a.WorldPos[0]
	dy := a.TargetPos[1] - a.WorldPos[1]
	dist := math.Hypot(dx, dy)
	step := a.Speed * dt
	if dist <= step || dist == 0 {
		a.WorldPos = a.TargetPos
	} else {
		a.WorldPos[0] += dx / dist * step
		a.WorldPos[1] += dy / dist * step
	}
	x := clampGrid(a.WorldPos[0], grid)
	y := clampGrid(a.WorldPos[1], grid)
	a.HilbertPos = hilbert.XYToD(grid, x, y)
	a.LastActive = time.Now()
}

func clampGrid(v float64, grid uint32) uint32 {
	if v < 0 {
		return 0
	}
	if v >= float64(grid) {
		return grid - 1
	}
	return uint32(v)
}

// Tick advances the agent's FSM by one step, appending any substrate
// requests it generates (Rebuild/Archive) to requests.
func (a *Agent) Tick(requests *[]Request, grid uint32, rng func(n uint32) uint32) {
	switch a.State {
	case StateIdle:
		if g, ok := a.CurrentGoal(); ok {
			a.beginNavigation(g, grid)
			a.State = StateNavigating
			return
		}
		// Wander: synthesize a random navigate goal.
		d := rng(grid * grid)
		a.AddGoal(Goal{ID: "wander-" + time.Now().Format("150405.000"), Type: GoalNavigate, TargetHilbert: d, CreatedAt: time.Now()})

	case StateNavigating:
		if a.WorldPos != a.TargetPos {
			return
		}
		a.advanceWaypoint()

	case StateWorking:
		g, ok := a.CurrentGoal()
		if !ok {
			a.State = StateIdle
			return
		}
		switch g.Type {
		case GoalRebuild:
			*requests = append(*requests, Request{Kind: RequestRebuild, Path: g.TargetPath, AgentID: a.ID})
			a.CompleteGoal()
		case GoalArchive:
			*requests = append(*requests, Request{Kind: RequestArchive, VatID: g.TargetVatID, AgentID: a.ID})
			a.CompleteGoal()
		case GoalAnalyze:
			a.Remember(Memory{Timestamp: time.Now(), Location: a.HilbertPos, Observation: "analyzed " + g.TargetPath, Confidence: 0.7})
			a.CompleteGoal()
		case GoalScoutDistrict:
			a.Remember(Memory{Timestamp: time.Now(), Location: a.HilbertPos, Observation: "scouted " + g.District, Confidence: 0.6})
			a.CompleteGoal()
		default:
			a.CompleteGoal()
		}
	}
}

func worldPosForHilbert(d uint32, grid uint32) [2]float64 {
	x, y := hilbert.DToXY(grid, d)
	return [2]float64{float64(x), float64(y)}
}

// beginNavigation computes a Hilbert path to g's target using g.Strategy
// and aims the agent at its first waypoint beyond the current position.
func (a *Agent) beginNavigation(g Goal, grid uint32) {
	pf := NewPathfinder(grid)
	a.path = pf.FindPath(a.HilbertPos, g.TargetHilbert, g.Strategy, g.Excluded)
	a.waypointIdx = 0
	if !a.path.Valid() {
		a.TargetPos = worldPosForHilbert(g.TargetHilbert, grid)
		return
	}
	// Waypoint 0 is the agent's own starting position; aim at the next
	// one if there is one, otherwise the path is a single point.
	if len(a.path.Waypoints) > 1 {
		a.waypointIdx = 1
	}
	wp := a.path.Waypoints[a.waypointIdx]
	a.TargetPos = [2]float64{wp.X, wp.Y}
}

// advanceWaypoint moves to the next waypoint in the agent's current path,
// transitioning to StateWorking once the path is exhausted.
func (a *Agent) advanceWaypoint() {
	a.waypointIdx++
	if a.waypointIdx < len(a.path.Waypoints) {
		wp := a.path.Waypoints[a.waypointIdx]
		a.TargetPos = [2]float64{wp.X, wp.Y}
		return
	}
	a.State = StateWorking
}

// Manager tracks every agent spawned on a single grid.
type Manager struct {
	agents map[string]*Agent
	grid   uint32
}

// NewManager constructs a manager for the given grid order (grid x grid
// coordinate space).
func NewManager(grid uint32) *Manager {
	return &Manager{agents: make(map[string]*Agent), grid: grid}
}

// SpawnAgent creates and tracks a new agent.
func (m *Manager) SpawnAgent(role Role, worldPos [2]float64) *Agent {
	a := New(role, worldPos)
	m.agents[a.ID] = a
	return a
}

// GetAgent returns the agent with the given id.
func (m *Manager) GetAgent(id string) (*Agent, bool) {
	a, ok := m.agents[id]
	return a, ok
}

// DespawnAgent removes an agent from tracking.
func (m *Manager) DespawnAgent(id string) {
	delete(m.agents, id)
}

// ListAgents returns every tracked agent.
func (m *Manager) ListAgents() []*Agent {
	out := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	return out
}

// AgentsNear returns every agent within radius Hilbert-distance units of pos.
func (m *Manager) AgentsNear(pos uint32, radius uint32) []*Agent {
	var out []*Agent
	for _, a := range m.agents {
		if hilbertDistanceDelta(a.HilbertPos, pos) <= radius {
			out = append(out, a)
		}
	}
	return out
}

// AssignGoal appends g to agentID's queue.
func (m *Manager) AssignGoal(agentID string, g Goal) bool {
	a, ok := m.agents[agentID]
	if !ok {
		return false
	}
	a.AddGoal(g)
	return true
}

// Update advances every tracked agent by dt seconds, returning the combined
// set of substrate requests generated this tick.
func (m *Manager) Update(dt float64, rng func(n uint32) uint32) []Request {
	var requests []Request
	for _, a := range m.agents {
		a.UpdatePosition(dt, m.grid)
		a.Tick(&requests, m.grid, rng)
	}
	return requests
}
