package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFakeProc(t *testing.T, root string, pid int, comm string, utime, stime uint64, ppid int) {
	t.Helper()
	pdir := filepath.Join(root, itoa(pid))
	if err := os.MkdirAll(pdir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	stat := "0 (" + comm + ") R " + itoa(ppid) +
		" 0 0 0 0 0 0 0 0 0 " + itoa(int(utime)) + " " + itoa(int(stime)) +
		" 0 0 0 0 1 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0"
	if err := os.WriteFile(filepath.Join(pdir, "stat"), []byte(stat), 0o644); err != nil {
		t.Fatalf("write stat: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pdir, "cmdline"), []byte(comm+"\x00--flag\x00"), 0o644); err != nil {
		t.Fatalf("write cmdline: %v", err)
	}
	status := "VmRSS:    1024 kB\n"
	if err := os.WriteFile(filepath.Join(pdir, "status"), []byte(status), 0o644); err != nil {
		t.Fatalf("write status: %v", err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func writeFakeCPUStat(t *testing.T, root string, total uint64) {
	t.Helper()
	line := "cpu  " + itoa(int(total)) + " 0 0 0 0 0 0 0 0 0\n"
	if err := os.WriteFile(filepath.Join(root, "stat"), []byte(line), 0o644); err != nil {
		t.Fatalf("write /proc/stat: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "meminfo"), []byte("MemTotal:  2048 kB\n"), 0o644); err != nil {
		t.Fatalf("write meminfo: %v", err)
	}
}

func TestRefreshParsesProcesses(t *testing.T) {
	root := t.TempDir()
	writeFakeCPUStat(t, root, 1000)
	writeFakeProc(t, root, 42, "worker", 10, 5, 1)

	m := NewManagerForPath(root)
	procs, err := m.Refresh()
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(procs) != 1 {
		t.Fatalf("expected 1 process, got %d", len(procs))
	}
	p := procs[0]
	if p.PID != 42 || p.Name != "worker" || p.PPID != 1 {
		t.Fatalf("unexpected process info: %+v", p)
	}
	if p.MemoryKB != 1024 {
		t.Fatalf("expected memory 1024kb, got %d", p.MemoryKB)
	}
}

func TestRefreshComputesCPUDeltaOnSecondSample(t *testing.T) {
	root := t.TempDir()
	writeFakeCPUStat(t, root, 1000)
	writeFakeProc(t, root, 42, "worker", 10, 5, 1)

	m := NewManagerForPath(root)
	if _, err := m.Refresh(); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	writeFakeCPUStat(t, root, 1100) // total cpu advanced by 100
	writeFakeProc(t, root, 42, "worker", 30, 10, 1) // proc advanced by 25

	procs, err := m.Refresh()
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if len(procs) != 1 {
		t.Fatalf("expected 1 process, got %d", len(procs))
	}
	want := 100.0 * 25.0 / 100.0
	if procs[0].CPUPercent != want {
		t.Fatalf("expected cpu%% %f, got %f", want, procs[0].CPUPercent)
	}
}

func TestSemanticColorCategories(t *testing.T) {
	if c := SemanticColor("python3"); c != [3]uint8{220, 220, 0} {
		t.Fatalf("expected yellow for python, got %v", c)
	}
	if c := SemanticColor("systemd"); c != [3]uint8{0, 200, 0} {
		t.Fatalf("expected green for systemd, got %v", c)
	}
	if c := SemanticColor("mystery-proc"); c != [3]uint8{140, 140, 140} {
		t.Fatalf("expected gray default, got %v", c)
	}
}

func TestClusterPlacementIsStablePerParent(t *testing.T) {
	m := NewManager()
	x1, y1 := m.ClusterPlacement(100, 0)
	x2, y2 := m.ClusterPlacement(100, 0)
	if x1 != x2 || y1 != y2 {
		t.Fatalf("expected stable placement for repeated calls, got (%f,%f) vs (%f,%f)", x1, y1, x2, y2)
	}
}

func TestClusterPlacementSpreadsChildren(t *testing.T) {
	m := NewManager()
	x0, y0 := m.ClusterPlacement(7, 0)
	x1, y1 := m.ClusterPlacement(7, 1)
	if x0 == x1 && y0 == y1 {
		t.Fatalf("expected distinct placements for different child indices")
	}
}

func TestCPUToBrightnessClampsAtBounds(t *testing.T) {
	if b := CPUToBrightness(200); b != 255 {
		t.Fatalf("expected clamp to 255, got %d", b)
	}
	if b := CPUToBrightness(-5); b != 0 {
		t.Fatalf("expected clamp to 0, got %d", b)
	}
}
