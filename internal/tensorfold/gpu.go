package tensorfold

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/core"
)

// WGPUAccelerator is an Accelerator backed by a real wgpu device, following
// the same instance/adapter/device/queue bring-up as the teacher's own
// backend.Init sequence. Folding is staged the way the teacher's gogpu
// backend stages scene rendering: resources come up for real, but the
// compute-pipeline dispatch itself is phase 2 work, so Fold reports
// ErrFallbackToCPU until that pipeline lands.
type WGPUAccelerator struct {
	mu sync.Mutex

	instance *core.Instance
	adapter  core.AdapterID
	device   core.DeviceID
	queue    core.QueueID

	initialized bool
}

// NewWGPUAccelerator constructs an uninitialized GPU accelerator.
func NewWGPUAccelerator() *WGPUAccelerator {
	return &WGPUAccelerator{}
}

func (a *WGPUAccelerator) Name() string { return "wgpu" }

// Init requests a high-performance adapter and opens a device and queue on
// it, mirroring gogpu-gg's internal/gpu backend bring-up.
func (a *WGPUAccelerator) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}

	a.instance = core.NewInstance(&gputypes.InstanceDescriptor{
		Backends: gputypes.BackendsPrimary,
	})

	adapterID, err := a.instance.RequestAdapter(&gputypes.RequestAdapterOptions{
		PowerPreference: gputypes.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("tensorfold: request adapter: %w", err)
	}
	a.adapter = adapterID

	deviceDesc := gputypes.DefaultDeviceDescriptor()
	deviceDesc.Label = "substrate-tensorfold-device"
	deviceID, err := core.CreateDevice(adapterID, &deviceDesc)
	if err != nil {
		return fmt.Errorf("tensorfold: create device: %w", err)
	}
	a.device = deviceID

	queueID, err := core.GetDeviceQueue(deviceID)
	if err != nil {
		return fmt.Errorf("tensorfold: get device queue: %w", err)
	}
	a.queue = queueID

	a.initialized = true
	logger.Info("tensorfold: wgpu accelerator initialized", "adapter", adapterID)
	return nil
}

func (a *WGPUAccelerator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = false
	a.instance = nil
}

// CanAccelerate reports true once the device is up; the CPU path is
// numerically identical so there is no per-mode capability gap to track.
func (a *WGPUAccelerator) CanAccelerate(n uint32, mode ColorMode) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// Fold always falls back to software today: the compute shader that would
// evaluate colorForOffset per-lane on the GPU hasn't been written yet.
// TODO: dispatch a WGSL compute pass over target.Data instead of falling
// back, using the device/queue acquired in Init.
func (a *WGPUAccelerator) Fold(target RenderTarget, data []byte, n uint32, mode ColorMode) error {
	return ErrFallbackToCPU
}

func (a *WGPUAccelerator) Flush(target RenderTarget) error { return nil }

// DeviceHandle is the gpucontext.DeviceProvider a host embedding substrate
// can hand in to share its own GPU device instead of substrate opening a
// second one, named the way render/device.go names the same alias.
type DeviceHandle = gpucontext.DeviceProvider
