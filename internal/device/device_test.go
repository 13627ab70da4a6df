package device

import (
	"testing"

	"github.com/DePasqualeOrg/mlx-vlm/internal/logger"
)

func TestHostPeakMemoryMonotonic(t *testing.T) {
	h := NewHost()
	first := h.PeakMemory()
	if first == 0 {
		t.Fatal("peak memory reported zero")
	}
	// Allocate something measurable and keep it live across the read.
	buf := make([]byte, 1<<20)
	second := h.PeakMemory()
	_ = buf[len(buf)-1]
	if second < first {
		t.Fatalf("peak decreased: %d -> %d", first, second)
	}
}

func TestSetWiredLimitReturnsPrevious(t *testing.T) {
	h := NewHost()
	if old := h.SetWiredLimit(100); old != 0 {
		t.Fatalf("initial limit = %d, want 0", old)
	}
	if old := h.SetWiredLimit(200); old != 100 {
		t.Fatalf("previous limit = %d, want 100", old)
	}
}

// fakeDevice records calls for scope tests.
type fakeDevice struct {
	Host
	limits []uint64
	synced int
	rec    uint64
}

func (f *fakeDevice) Synchronize() { f.synced++ }

func (f *fakeDevice) SetWiredLimit(limit uint64) uint64 {
	f.limits = append(f.limits, limit)
	return f.Host.SetWiredLimit(limit)
}

func (f *fakeDevice) RecommendedWorkingSetSize() uint64 { return f.rec }

func TestWiredLimitScopeRestores(t *testing.T) {
	dev := &fakeDevice{rec: 1000}
	dev.Host.SetWiredLimit(7)

	release := WiredLimitScope(dev, logger.Discard(), 10)
	if len(dev.limits) != 1 || dev.limits[0] != 1000 {
		t.Fatalf("scope set limits %v, want [1000]", dev.limits)
	}
	release()
	if dev.synced != 1 {
		t.Fatalf("release synchronized %d times, want 1", dev.synced)
	}
	if len(dev.limits) != 2 || dev.limits[1] != 7 {
		t.Fatalf("release set limits %v, want previous limit 7 restored", dev.limits)
	}
}
