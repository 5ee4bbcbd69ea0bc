// Package module implements hot-swappable artifact modules: shared objects
// built with -buildmode=plugin, loaded via the standard library's plugin
// package (Go's closest analogue to the dlopen-style libloading contract the
// teacher module was built against), exposing ModuleInit / ModuleSuspend /
// an optional ModuleUpdate symbol.
package module

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"sync"
	"time"
	"unsafe"

	"github.com/geometryos/substrate/internal/vat"
)

// Errors returned by module loading and lifecycle operations.
var (
	ErrAlreadyLoaded   = errors.New("module: already loaded")
	ErrNotLoaded       = errors.New("module: not loaded")
	ErrSymbolNotFound  = errors.New("module: required symbol not found")
	ErrInitFailed      = errors.New("module: module_init failed")
	ErrSuspendFailed   = errors.New("module: module_suspend failed")
	ErrUpdateFailed    = errors.New("module: module_update failed")
)

// Status describes where a module is in its lifecycle.
type Status int

const (
	StatusLoading Status = iota
	StatusActive
	StatusSuspended
	StatusSwapping
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	case StatusSwapping:
		return "swapping"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Metadata tracks a loaded module's lifecycle bookkeeping.
type Metadata struct {
	Path        string
	VatID       vat.Id
	Status      Status
	LoadedAt    time.Time
	LastUpdated time.Time
	UpdateCount uint64
	Version     uint32
}

// InitFn initializes the module with an optional restored-state buffer
// (nil data, 0 size if none). Returns 0 on success, nonzero on failure.
type InitFn func(data unsafe.Pointer, size int32) int32

// SuspendFn serializes the module's state into the provided scratch buffer
// and returns the number of bytes written, or a negative value on failure.
type SuspendFn func(buf unsafe.Pointer, cap int32) int32

// UpdateFn runs one tick of the module's logic. Returns 0 on success.
type UpdateFn func() int32

const suspendScratchSize = 64 * 1024

// loaded wraps a plugin.Plugin together with its required/optional symbols.
type loaded struct {
	lib     *plugin.Plugin
	init    InitFn
	suspend SuspendFn
	update  UpdateFn // nil if the module doesn't export module_update
	meta    Metadata
}

func (m *loaded) doInit(data []byte) error {
	var ptr unsafe.Pointer
	var size int32
	if len(data) > 0 {
		ptr = unsafe.Pointer(&data[0])
		size = int32(len(data))
	}
	rc := m.init(ptr, size)
	if rc != 0 {
		m.meta.Status = StatusFailed
		return fmt.Errorf("%w: module_init returned %d", ErrInitFailed, rc)
	}
	m.meta.Status = StatusActive
	return nil
}

func (m *loaded) doSuspend(id vat.Id) (*vat.Buffer, error) {
	scratch := make([]byte, suspendScratchSize)
	n := m.suspend(unsafe.Pointer(&scratch[0]), suspendScratchSize)
	if n < 0 {
		m.meta.Status = StatusFailed
		return nil, fmt.Errorf("%w: module_suspend returned %d", ErrSuspendFailed, n)
	}
	buf := vat.NewBuffer(id)
	buf.WriteBytes(scratch[:n])
	buf.Finalize(time.Now().UnixNano())
	m.meta.Status = StatusSuspended
	return buf, nil
}

func (m *loaded) doUpdate() error {
	if m.update == nil {
		return nil
	}
	rc := m.update()
	if rc != 0 {
		return fmt.Errorf("%w: module_update returned %d", ErrUpdateFailed, rc)
	}
	m.meta.UpdateCount++
	m.meta.LastUpdated = time.Now()
	return nil
}

func lookupSymbol(p *plugin.Plugin, name string) (plugin.Symbol, error) {
	sym, err := p.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	return sym, nil
}

func loadPlugin(path string) (*loaded, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("module: open plugin %s: %w", path, err)
	}
	initSym, err := lookupSymbol(p, "ModuleInit")
	if err != nil {
		return nil, err
	}
	suspendSym, err := lookupSymbol(p, "ModuleSuspend")
	if err != nil {
		return nil, err
	}
	initFn, ok := initSym.(func(unsafe.Pointer, int32) int32)
	if !ok {
		return nil, fmt.Errorf("%w: ModuleInit has wrong signature", ErrSymbolNotFound)
	}
	suspendFn, ok := suspendSym.(func(unsafe.Pointer, int32) int32)
	if !ok {
		return nil, fmt.Errorf("%w: ModuleSuspend has wrong signature", ErrSymbolNotFound)
	}
	var updateFn UpdateFn
	if updateSym, err := lookupSymbol(p, "ModuleUpdate"); err == nil {
		if fn, ok := updateSym.(func() int32); ok {
			updateFn = fn
		}
	}
	return &loaded{lib: p, init: initFn, suspend: suspendFn, update: updateFn}, nil
}

// Manager tracks loaded modules, their on-disk paths, and handles hot-swap
// and auto-reload polling driven by mtime changes.
type Manager struct {
	mu          sync.Mutex
	modules     map[vat.Id]*loaded
	pathMap     map[string]vat.Id
	vatRegistry *vat.Registry
	searchPaths []string
	autoReload  bool
	fileMtimes  map[string]time.Time
	logger      *slog.Logger
}

// NewManager creates a module manager persisting restored state through reg.
func NewManager(reg *vat.Registry, searchPaths []string, autoReload bool) *Manager {
	return &Manager{
		modules:     make(map[vat.Id]*loaded),
		pathMap:     make(map[string]vat.Id),
		vatRegistry: reg,
		searchPaths: searchPaths,
		autoReload:  autoReload,
		fileMtimes:  make(map[string]time.Time),
		logger:      slog.Default(),
	}
}

// SetLogger overrides the manager's logger.
func (m *Manager) SetLogger(l *slog.Logger) {
	if l != nil {
		m.logger = l
	}
}

// LoadModule loads the plugin at path, restoring any previously persisted
// state for its derived vat id, and initializing it.
func (m *Manager) LoadModule(path string) (vat.Id, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("module: resolve path: %w", err)
	}
	id := vat.IDFromPath(abs)

	m.mu.Lock()
	if _, ok := m.modules[id]; ok {
		m.mu.Unlock()
		return "", ErrAlreadyLoaded
	}
	m.mu.Unlock()

	lm, err := loadPlugin(abs)
	if err != nil {
		return "", err
	}
	lm.meta = Metadata{Path: abs, VatID: id, Status: StatusLoading, LoadedAt: time.Now(), Version: 1}

	var restoreData []byte
	if m.vatRegistry != nil {
		if buf, err := m.vatRegistry.GetVat(id); err == nil {
			buf.Rewind()
			restoreData = buf.RemainingBytes()
		}
	}

	if err := lm.doInit(restoreData); err != nil {
		m.logger.Warn("module init failed", "path", abs, "err", err)
		return "", err
	}

	m.mu.Lock()
	m.modules[id] = lm
	m.pathMap[abs] = id
	if fi, err := os.Stat(abs); err == nil {
		m.fileMtimes[abs] = fi.ModTime()
	}
	m.mu.Unlock()

	m.logger.Info("module loaded", "path", abs, "vat_id", id)
	return id, nil
}

// UnloadModule suspends and persists the module's state, then removes it.
func (m *Manager) UnloadModule(id vat.Id) error {
	m.mu.Lock()
	lm, ok := m.modules[id]
	m.mu.Unlock()
	if !ok {
		return ErrNotLoaded
	}
	buf, err := lm.doSuspend(id)
	if err != nil {
		return err
	}
	if m.vatRegistry != nil {
		if err := m.vatRegistry.RegisterVat(buf); err != nil {
			return fmt.Errorf("module: persist suspended state: %w", err)
		}
	}
	m.mu.Lock()
	delete(m.modules, id)
	delete(m.pathMap, lm.meta.Path)
	m.mu.Unlock()
	return nil
}

// HotSwap suspends the module currently loaded at oldPath (if any),
// persists its state, loads newPath, and restores the state into it under
// the same vat id derived from oldPath, so in-flight references by vat id
// continue to resolve.
func (m *Manager) HotSwap(oldPath, newPath string) (vat.Id, error) {
	absOld, err := filepath.Abs(oldPath)
	if err != nil {
		return "", fmt.Errorf("module: resolve old path: %w", err)
	}

	m.mu.Lock()
	id, wasLoaded := m.pathMap[absOld]
	var lm *loaded
	if wasLoaded {
		lm = m.modules[id]
	}
	m.mu.Unlock()

	if !wasLoaded {
		return m.LoadModule(newPath)
	}

	lm.meta.Status = StatusSwapping
	buf, err := lm.doSuspend(id)
	if err != nil {
		return "", err
	}
	if m.vatRegistry != nil {
		if err := m.vatRegistry.RegisterVat(buf); err != nil {
			return "", fmt.Errorf("module: persist pre-swap state: %w", err)
		}
	}

	absNew, err := filepath.Abs(newPath)
	if err != nil {
		return "", fmt.Errorf("module: resolve new path: %w", err)
	}
	newLm, err := loadPlugin(absNew)
	if err != nil {
		return "", err
	}
	newLm.meta = Metadata{Path: absNew, VatID: id, Status: StatusLoading, LoadedAt: time.Now(), Version: lm.meta.Version + 1}

	buf.Rewind()
	if err := newLm.doInit(buf.RemainingBytes()); err != nil {
		return "", err
	}

	m.mu.Lock()
	delete(m.pathMap, absOld)
	m.modules[id] = newLm
	m.pathMap[absNew] = id
	if fi, err := os.Stat(absNew); err == nil {
		m.fileMtimes[absNew] = fi.ModTime()
	}
	m.mu.Unlock()

	m.logger.Info("module hot-swapped", "old_path", absOld, "new_path", absNew, "vat_id", id)
	return id, nil
}

// UpdateAll runs one tick on every active module, logging (but not failing
// on) individual update errors so one misbehaving module can't stall others.
func (m *Manager) UpdateAll() {
	m.mu.Lock()
	targets := make([]*loaded, 0, len(m.modules))
	for _, lm := range m.modules {
		if lm.meta.Status == StatusActive {
			targets = append(targets, lm)
		}
	}
	m.mu.Unlock()

	for _, lm := range targets {
		if err := lm.doUpdate(); err != nil {
			m.logger.Warn("module update failed", "path", lm.meta.Path, "err", err)
		}
	}
}

// CheckForChanges polls the mtimes of loaded modules' files and hot-swaps any
// module whose backing file changed on disk, if auto-reload is enabled.
func (m *Manager) CheckForChanges() {
	if !m.autoReload {
		return
	}
	m.mu.Lock()
	paths := make([]string, 0, len(m.pathMap))
	for p := range m.pathMap {
		paths = append(paths, p)
	}
	m.mu.Unlock()

	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		m.mu.Lock()
		last, seen := m.fileMtimes[p]
		m.mu.Unlock()
		if seen && !fi.ModTime().After(last) {
			continue
		}
		if _, err := m.HotSwap(p, p); err != nil {
			m.logger.Warn("auto-reload hot-swap failed", "path", p, "err", err)
		}
	}
}

// GetModule returns metadata for id.
func (m *Manager) GetModule(id vat.Id) (Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lm, ok := m.modules[id]
	if !ok {
		return Metadata{}, false
	}
	return lm.meta, true
}

// ListModules returns metadata for every currently loaded module.
func (m *Manager) ListModules() []Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Metadata, 0, len(m.modules))
	for _, lm := range m.modules {
		out = append(out, lm.meta)
	}
	return out
}

// ModuleCount returns the number of currently loaded modules.
func (m *Manager) ModuleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.modules)
}

// UnloadAll suspends and unloads every module, intended for orderly shutdown.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	ids := make([]vat.Id, 0, len(m.modules))
	for id := range m.modules {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		if err := m.UnloadModule(id); err != nil {
			m.logger.Warn("unload during shutdown failed", "vat_id", id, "err", err)
		}
	}
}
