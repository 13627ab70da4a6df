// Package device abstracts the accelerator runtime hosting model
// computation: scratch-memory release, synchronization of in-flight
// asynchronous work, peak-memory accounting, and the wired-limit scope held
// around a generation session. An explicit handle is acquired at session
// start and released at session end; nothing here is global.
package device

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/DePasqualeOrg/mlx-vlm/internal/logger"
)

// Device is the execution-context handle passed into the decoding loop and
// the memory-scoping operation.
type Device interface {
	// ClearCache releases cached scratch memory. It never touches model
	// state or KV caches, so it is safe to call mid-session.
	ClearCache()
	// Synchronize blocks until all asynchronously issued work completes.
	// It must be called before a wired-limit change takes effect.
	Synchronize()
	// PeakMemory returns the high-water memory mark in bytes.
	PeakMemory() uint64
	// SetWiredLimit sets the wired memory limit and returns the previous
	// value. 0 means unlimited.
	SetWiredLimit(limit uint64) uint64
	// RecommendedWorkingSetSize returns the largest working set the
	// device can serve without degradation.
	RecommendedWorkingSetSize() uint64
}

// Host is a Device backed by the Go runtime, used when model computation
// runs in-process on the CPU.
type Host struct {
	mu         sync.Mutex
	wiredLimit uint64
	peak       uint64
}

// NewHost returns a host-memory device handle.
func NewHost() *Host { return &Host{} }

// ClearCache returns cached spans to the OS, the host analogue of releasing
// device scratch buffers.
func (h *Host) ClearCache() {
	debug.FreeOSMemory()
}

// Synchronize is a no-op: host computation is synchronous.
func (h *Host) Synchronize() {}

// PeakMemory returns the observed high-water heap mark, refreshed on every
// call so periodic reads track the true peak closely enough for reporting.
func (h *Host) PeakMemory() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	h.mu.Lock()
	defer h.mu.Unlock()
	if stats.HeapAlloc > h.peak {
		h.peak = stats.HeapAlloc
	}
	return h.peak
}

func (h *Host) SetWiredLimit(limit uint64) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.wiredLimit
	h.wiredLimit = limit
	return old
}

// RecommendedWorkingSetSize reports total heap space obtained from the OS as
// a stand-in for an accelerator working-set recommendation.
func (h *Host) RecommendedWorkingSetSize() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapSys
}

// WiredLimitScope temporarily raises dev's wired limit to the recommended
// working-set size for the duration of a generation session, warning when the
// model occupies most of it. The returned release function synchronizes
// outstanding work before restoring the previous limit and must be called at
// session end.
func WiredLimitScope(dev Device, log logger.Logger, modelBytes uint64) func() {
	maxRec := dev.RecommendedWorkingSetSize()
	if modelBytes > 0 && maxRec > 0 && float64(modelBytes) > 0.9*float64(maxRec) {
		log.Warn("model size approaches the recommended working set; generation can be slow",
			"model_mb", modelBytes>>20, "recommended_mb", maxRec>>20)
	}
	old := dev.SetWiredLimit(maxRec)
	return func() {
		dev.Synchronize()
		dev.SetWiredLimit(old)
	}
}
