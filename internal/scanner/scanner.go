// Package scanner reads Linux /proc to produce per-process tile metrics:
// CPU%/memory% deltas between polls, a golden-angle spiral placement for
// child processes clustered around their parent, and a semantic color
// derived from the process name. Grounded directly on the teacher pack's
// process_tile.rs.
package scanner

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// goldenAngle is the fixed angular step (radians) used to place sibling
// tiles around a cluster center without overlap, matching process_tile.rs.
const goldenAngle = math.Pi * (3.0 - 2.23606797749979) // Pi*(3-sqrt(5))

// ProcessInfo is one sampled process's tile metrics.
type ProcessInfo struct {
	PID           int
	Name          string
	Cmdline       string
	State         byte
	CPUPercent    float64
	MemoryKB      uint64
	MemoryPercent float64
	PPID          int
	NumThreads    int
	utime, stime  uint64
	starttime     uint64
}

// CPUToBrightness maps a CPU% reading to a 0-255 tile brightness value.
func CPUToBrightness(cpuPercent float64) uint8 {
	v := cpuPercent * 2.55
	if v > 255 {
		v = 255
	}
	if v < 0 {
		v = 0
	}
	return uint8(v)
}

// MemoryToSize maps a memory reading in KB to a tile size in pixels,
// log-scaled so a handful of huge processes don't dwarf everything else.
func MemoryToSize(memKB uint64) float64 {
	if memKB == 0 {
		return 4
	}
	return 4 + math.Log2(float64(memKB))
}

// SemanticColor returns a categorical RGB color for a process based on
// common name patterns, matching process_tile.rs's palette.
func SemanticColor(name string) [3]uint8 {
	n := strings.ToLower(name)
	switch {
	case containsAny(n, "code", "vim", "emacs", "nvim", "idea"):
		return [3]uint8{0, 200, 200} // cyan: dev tools
	case containsAny(n, "python", "node", "ruby", "perl", "php"):
		return [3]uint8{220, 220, 0} // yellow: script runtimes
	case containsAny(n, "gpu", "x11", "wayland", "mesa", "nvidia"):
		return [3]uint8{160, 0, 220} // purple: graphics
	case containsAny(n, "systemd", "kernel", "kthread", "init"):
		return [3]uint8{0, 200, 0} // green: kernel/systemd
	case containsAny(n, "bash", "zsh", "fish", "sh"):
		return [3]uint8{230, 140, 0} // orange: shells
	default:
		return [3]uint8{140, 140, 140} // gray: default
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// clusterCenter is a cached placement anchor for a parent PID's children.
type clusterCenter struct {
	x, y float64
}

// Manager periodically samples /proc and computes CPU%/memory% deltas
// against the previous sample.
type Manager struct {
	mu              sync.Mutex
	procPath        string
	prevCPUTimes    map[int]uint64
	prevTotalCPU    uint64
	totalMemoryKB   uint64
	refreshInterval time.Duration
	lastRefresh     time.Time
	clusterCenters  *lru.Cache[int, clusterCenter]
}

// NewManager constructs a scanner reading /proc.
func NewManager() *Manager {
	return newManagerForPath("/proc")
}

// NewManagerForPath constructs a scanner reading procPath, for tests or for
// scanning a VM guest's mounted /proc.
func NewManagerForPath(procPath string) *Manager {
	return newManagerForPath(procPath)
}

func newManagerForPath(procPath string) *Manager {
	cache, _ := lru.New[int, clusterCenter](4096)
	return &Manager{
		procPath:        procPath,
		prevCPUTimes:    make(map[int]uint64),
		refreshInterval: 2 * time.Second,
		clusterCenters:  cache,
	}
}

// ProcPath returns the /proc root this manager scans.
func (m *Manager) ProcPath() string { return m.procPath }

// Refresh re-samples every process under ProcPath, computing CPU%/memory%
// deltas against the previous sample.
func (m *Manager) Refresh() ([]ProcessInfo, error) {
	entries, err := os.ReadDir(m.procPath)
	if err != nil {
		return nil, fmt.Errorf("scanner: read %s: %w", m.procPath, err)
	}

	totalCPU, err := readTotalCPUTime(m.procPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prevTotal := m.prevTotalCPU
	deltaTotal := totalCPU - prevTotal
	if prevTotal == 0 {
		deltaTotal = 0
	}
	m.mu.Unlock()

	var out []ProcessInfo
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || !e.IsDir() {
			continue
		}
		info, err := m.readProcess(pid, deltaTotal)
		if err != nil {
			continue
		}
		out = append(out, info)
	}

	m.mu.Lock()
	m.prevTotalCPU = totalCPU
	for _, info := range out {
		m.prevCPUTimes[info.PID] = info.utime + info.stime
	}
	m.lastRefresh = time.Now()
	m.mu.Unlock()

	return out, nil
}

func (m *Manager) readProcess(pid int, deltaTotal uint64) (ProcessInfo, error) {
	statPath := filepath.Join(m.procPath, strconv.Itoa(pid), "stat")
	raw, err := os.ReadFile(statPath)
	if err != nil {
		return ProcessInfo{}, err
	}
	fields, name, err := parseStat(string(raw))
	if err != nil {
		return ProcessInfo{}, err
	}

	info := ProcessInfo{PID: pid, Name: name}
	info.State = fields[0][0]
	info.PPID, _ = strconv.Atoi(fields[1])
	info.NumThreads, _ = strconv.Atoi(fields[17])
	info.utime, _ = strconv.ParseUint(fields[11], 10, 64)
	info.stime, _ = strconv.ParseUint(fields[12], 10, 64)
	info.starttime, _ = strconv.ParseUint(fields[19], 10, 64)

	m.mu.Lock()
	prev := m.prevCPUTimes[pid]
	m.mu.Unlock()
	curTotal := info.utime + info.stime
	if deltaTotal > 0 && prev > 0 && curTotal >= prev {
		info.CPUPercent = 100.0 * float64(curTotal-prev) / float64(deltaTotal)
	}

	if cmdline, err := os.ReadFile(filepath.Join(m.procPath, strconv.Itoa(pid), "cmdline")); err == nil {
		info.Cmdline = strings.ReplaceAll(strings.Trim(string(cmdline), "\x00"), "\x00", " ")
	}

	if memKB, totalKB, err := readStatusMemory(m.procPath, pid); err == nil {
		info.MemoryKB = memKB
		if totalKB > 0 {
			info.MemoryPercent = 100.0 * float64(memKB) / float64(totalKB)
		}
	}

	return info, nil
}

// parseStat splits a /proc/[pid]/stat line into its space-separated fields
// after the parenthesized comm field, returning the comm name separately
// since it may itself contain spaces or parens.
func parseStat(line string) ([]string, string, error) {
	open := strings.IndexByte(line, '(')
	shut := strings.LastIndexByte(line, ')')
	if open < 0 || shut < 0 || shut < open {
		return nil, "", fmt.Errorf("scanner: malformed stat line")
	}
	name := line[open+1 : shut]
	rest := strings.TrimSpace(line[shut+1:])
	fields := strings.Fields(rest)
	if len(fields) < 20 {
		return nil, "", fmt.Errorf("scanner: stat line too short")
	}
	return fields, name, nil
}

func readTotalCPUTime(procPath string) (uint64, error) {
	f, err := os.Open(filepath.Join(procPath, "stat"))
	if err != nil {
		return 0, fmt.Errorf("scanner: open /proc/stat: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)[1:]
		var total uint64
		for _, fv := range fields {
			n, err := strconv.ParseUint(fv, 10, 64)
			if err == nil {
				total += n
			}
		}
		return total, nil
	}
	return 0, fmt.Errorf("scanner: cpu line not found")
}

func readStatusMemory(procPath string, pid int) (memKB, totalKB uint64, err error) {
	f, err := os.Open(filepath.Join(procPath, strconv.Itoa(pid), "status"))
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	meminfo, _ := os.Open(filepath.Join(procPath, "meminfo"))
	if meminfo != nil {
		defer meminfo.Close()
		s := bufio.NewScanner(meminfo)
		for s.Scan() {
			if strings.HasPrefix(s.Text(), "MemTotal:") {
				fields := strings.Fields(s.Text())
				if len(fields) >= 2 {
					totalKB, _ = strconv.ParseUint(fields[1], 10, 64)
				}
				break
			}
		}
	}

	s := bufio.NewScanner(f)
	for s.Scan() {
		if strings.HasPrefix(s.Text(), "VmRSS:") {
			fields := strings.Fields(s.Text())
			if len(fields) >= 2 {
				memKB, _ = strconv.ParseUint(fields[1], 10, 64)
			}
			break
		}
	}
	return memKB, totalKB, nil
}

// ClusterPlacement returns the (x, y) position for childIndex-th child of
// parentPID, spiraling outward at the golden angle from a cluster center
// derived deterministically from the parent PID so repeated calls for the
// same parent are stable across polls.
func (m *Manager) ClusterPlacement(parentPID, childIndex int) (x, y float64) {
	center, ok := m.clusterCenters.Get(parentPID)
	if !ok {
		center = clusterCenterFor(parentPID)
		m.clusterCenters.Add(parentPID, center)
	}
	theta := float64(childIndex) * goldenAngle
	radius := 8.0 * math.Sqrt(float64(childIndex)+1)
	return center.x + radius*math.Cos(theta), center.y + radius*math.Sin(theta)
}

// clusterCenterFor derives a deterministic pseudo-random cluster center
// from a PID so the same parent always anchors its children at the same
// spot across process-table polls.
func clusterCenterFor(pid int) clusterCenter {
	h := uint32(pid)*2654435761 + 1
	x := float64(h%2000) - 1000
	h = h*2654435761 + 1
	y := float64(h%2000) - 1000
	return clusterCenter{x: x, y: y}
}
