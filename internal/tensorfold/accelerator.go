// Package tensorfold implements the tensor-fold dispatcher: folding raw
// byte buffers (module memory, neural activations) into a Hilbert-ordered
// RGBA texture for visualization, with an optional GPU compute path and a
// CPU software fallback that must be observationally identical.
//
// The GPU/CPU duality mirrors the teacher's accelerator.go/software.go
// split: an Accelerator interface attempted first, falling back to pure-Go
// CPU folding via ErrFallbackToCPU.
package tensorfold

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrFallbackToCPU indicates the GPU accelerator cannot handle this fold and
// the caller should use the CPU path transparently.
var ErrFallbackToCPU = errors.New("tensorfold: falling back to CPU")

// ColorMode selects how folded bytes map to pixel color.
type ColorMode int

const (
	// ModeMultiChannel maps each group of four consecutive bytes directly to
	// one pixel's R, G, B and A channels (the default, highest-fidelity raw
	// view).
	ModeMultiChannel ColorMode = iota
	// ModeHeatmap maps byte magnitude to a blue-to-red gradient.
	ModeHeatmap
	// ModeAttentionFlow renders attention-weight-like data as intensity
	// with a directional green/magenta tint.
	ModeAttentionFlow
	// ModeMemoryPattern reads each byte as a signed value: non-negative
	// bytes fade from white toward red and negative bytes from white toward
	// blue as magnitude grows, for spotting change clusters at a glance.
	ModeMemoryPattern
)

// RenderTarget is a CPU-addressable RGBA pixel buffer, analogous to the
// teacher's GPURenderTarget.
type RenderTarget struct {
	Data          []uint8
	Width, Height int
	Stride        int
}

// Accelerator is an optional GPU-backed fold provider. Registered instances
// back internal/tensorfold's Dispatch function; when absent or when
// CanAccelerate reports false, folding happens on the CPU.
type Accelerator interface {
	Name() string
	Init() error
	Close()
	CanAccelerate(n uint32, mode ColorMode) bool
	// Fold dispatches a single compute pass folding data into target
	// using the Hilbert order for an n x n grid. Returns
	// ErrFallbackToCPU if this accelerator cannot handle the request.
	Fold(target RenderTarget, data []byte, n uint32, mode ColorMode) error
	Flush(target RenderTarget) error
}

var (
	accelMu sync.RWMutex
	accel   Accelerator
)

// RegisterAccelerator installs a GPU accelerator for optional-first dispatch.
func RegisterAccelerator(a Accelerator) error {
	if a == nil {
		return errors.New("tensorfold: accelerator must not be nil")
	}
	if err := a.Init(); err != nil {
		return err
	}
	accelMu.Lock()
	old := accel
	accel = a
	accelMu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// CurrentAccelerator returns the registered accelerator, or nil.
func CurrentAccelerator() Accelerator {
	accelMu.RLock()
	defer accelMu.RUnlock()
	return accel
}

// CloseAccelerator releases the registered GPU accelerator, if any.
func CloseAccelerator() {
	accelMu.Lock()
	a := accel
	accel = nil
	accelMu.Unlock()
	if a != nil {
		a.Close()
	}
}

var logger = slog.Default()

// SetLogger overrides the package logger used for fallback diagnostics.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Dispatch folds data into an n x n RGBA texture using mode, trying the
// registered GPU accelerator first and transparently falling back to the
// CPU path on ErrFallbackToCPU or when no accelerator is registered. adj
// scales the result's brightness/contrast; pass DefaultAdjustment() for an
// unmodified fold.
func Dispatch(data []byte, n uint32, mode ColorMode, adj Adjustment) RenderTarget {
	target := RenderTarget{
		Data:   make([]uint8, int(n)*int(n)*4),
		Width:  int(n),
		Height: int(n),
		Stride: int(n) * 4,
	}

	a := CurrentAccelerator()
	if a != nil && a.CanAccelerate(n, mode) {
		if err := a.Fold(target, data, n, mode); err == nil {
			if err := a.Flush(target); err == nil {
				applyAdjustment(target, adj)
				return target
			}
		} else if !errors.Is(err, ErrFallbackToCPU) {
			logger.Warn("tensorfold GPU fold failed, falling back to CPU", "err", err)
		}
	}

	FoldCPU(target, data, n, mode, adj)
	return target
}

// applyAdjustment rewrites target's RGB channels in place, used for the GPU
// path where the accelerator itself has no notion of brightness/contrast.
func applyAdjustment(target RenderTarget, adj Adjustment) {
	if adj.Brightness == 0 && adj.Contrast == 1 {
		return
	}
	for off := 0; off+4 <= len(target.Data); off += 4 {
		r, g, b := adjustRGB(target.Data[off], target.Data[off+1], target.Data[off+2], adj)
		target.Data[off], target.Data[off+1], target.Data[off+2] = r, g, b
	}
}
