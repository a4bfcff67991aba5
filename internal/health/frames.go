package health

import (
	"context"
	"fmt"

	"github.com/zsiec/edgeview/internal/edgefilter"
	"github.com/zsiec/edgeview/internal/memory"
)

// MemoryBudgetChecker reports frame memory pressure. Above the pressure
// threshold the check is degraded; a full budget is down.
type MemoryBudgetChecker struct {
	controller *memory.Controller
}

// NewMemoryBudgetChecker creates a checker for the frame memory budget.
func NewMemoryBudgetChecker(c *memory.Controller) *MemoryBudgetChecker {
	return &MemoryBudgetChecker{controller: c}
}

func (m *MemoryBudgetChecker) Name() string { return "memory_budget" }

func (m *MemoryBudgetChecker) Check(ctx context.Context) error {
	st := m.controller.Stats()
	switch {
	case st.GlobalLimit > 0 && st.GlobalUsage >= st.GlobalLimit:
		return fmt.Errorf("frame memory budget exhausted: %d of %d bytes", st.GlobalUsage, st.GlobalLimit)
	case m.controller.UnderPressure():
		return Degraded(fmt.Sprintf("frame memory pressure %.0f%%", st.GlobalPressure*100))
	}
	return nil
}

func (m *MemoryBudgetChecker) Details() map[string]interface{} {
	st := m.controller.Stats()
	return map[string]interface{}{
		"usage_bytes":   st.GlobalUsage,
		"limit_bytes":   st.GlobalLimit,
		"pressure":      st.GlobalPressure,
		"active_owners": st.ActiveOwners,
	}
}

// selfTestFrame is 2x1 RGBA: one white pixel, one black pixel.
var selfTestFrame = []byte{255, 255, 255, 255, 0, 0, 0, 255}

// FilterChecker runs a tiny frame through the configured filter and checks
// the output contract: same length, full alpha.
type FilterChecker struct {
	filter *edgefilter.Filter
}

// NewFilterChecker creates a self-test checker for f.
func NewFilterChecker(f *edgefilter.Filter) *FilterChecker {
	return &FilterChecker{filter: f}
}

func (f *FilterChecker) Name() string { return "edge_filter" }

func (f *FilterChecker) Check(ctx context.Context) error {
	out, err := f.filter.Process(selfTestFrame, 2, 1)
	if err != nil {
		return fmt.Errorf("self-test frame rejected: %w", err)
	}
	if len(out) != len(selfTestFrame) {
		return fmt.Errorf("self-test output is %d bytes, want %d", len(out), len(selfTestFrame))
	}

	_, _, _, alpha := f.filter.Layout().Offsets()
	for i := alpha; i < len(out); i += edgefilter.BytesPerPixel {
		if out[i] != 0xff {
			return fmt.Errorf("self-test alpha at byte %d is %d", i, out[i])
		}
	}
	return nil
}

func (f *FilterChecker) Details() map[string]interface{} {
	t := f.filter.Thresholds()
	return map[string]interface{}{
		"engine":         f.filter.Detector().Name(),
		"layout":         f.filter.Layout().String(),
		"low_threshold":  t.Low,
		"high_threshold": t.High,
	}
}
