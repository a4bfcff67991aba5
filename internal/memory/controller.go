package memory

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zsiec/edgeview/internal/metrics"
)

var (
	// ErrGlobalMemoryLimit indicates the global frame budget has been reached
	ErrGlobalMemoryLimit = errors.New("global memory limit exceeded")

	// ErrOwnerMemoryLimit indicates one session or request used up its share
	ErrOwnerMemoryLimit = errors.New("owner memory limit exceeded")

	// ErrInvalidSize indicates a negative request
	ErrInvalidSize = errors.New("invalid allocation size")
)

// DefaultPressureThreshold is the fraction of the global budget above which
// the controller reports itself under pressure.
const DefaultPressureThreshold = 0.8

var (
	usageGauge = metrics.NewGauge("edgeview_memory_usage_bytes",
		"Frame bytes currently reserved across all owners", nil)
	limitGauge = metrics.NewGauge("edgeview_memory_limit_bytes",
		"Global frame memory budget", nil)
	ownersGauge = metrics.NewGauge("edgeview_memory_owners",
		"Owners currently holding frame memory", nil)
	allocationsCounter = metrics.NewCounter("edgeview_memory_allocations_total",
		"Granted frame memory requests", nil)
	globalDenials = metrics.NewCounter("edgeview_memory_denials_total",
		"Refused frame memory requests", map[string]string{"limit": "global"})
	ownerDenials = metrics.NewCounter("edgeview_memory_owner_denials_total",
		"Refused frame memory requests", map[string]string{"limit": "owner"})
)

// Controller accounts frame memory against a global budget and a per-owner
// budget. Owners are stream sessions or single HTTP requests. Accounting is
// lock-free; the controller never allocates itself.
type Controller struct {
	maxTotal  int64
	perOwner  int64
	threshold float64

	usage  atomic.Int64
	owners sync.Map // owner -> *atomic.Int64

	allocationCount atomic.Int64
	releaseCount    atomic.Int64
	denialCount     atomic.Int64

	ownerInitMu sync.Mutex
}

// NewController creates a controller. perOwner is capped at maxTotal.
func NewController(maxTotal, perOwner int64) *Controller {
	if perOwner <= 0 || perOwner > maxTotal {
		perOwner = maxTotal
	}
	limitGauge.Set(float64(maxTotal))
	return &Controller{
		maxTotal:  maxTotal,
		perOwner:  perOwner,
		threshold: DefaultPressureThreshold,
	}
}

// SetPressureThreshold changes the fraction reported by UnderPressure.
func (c *Controller) SetPressureThreshold(t float64) {
	if t > 0 && t <= 1 {
		c.threshold = t
	}
}

// RequestMemory reserves size bytes for owner.
func (c *Controller) RequestMemory(owner string, size int64) error {
	if size < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	if newUsage := c.usage.Add(size); newUsage > c.maxTotal {
		c.usage.Add(-size)
		c.denialCount.Add(1)
		globalDenials.Inc()
		return fmt.Errorf("%w: %d requested, %d of %d in use", ErrGlobalMemoryLimit, size, newUsage-size, c.maxTotal)
	}

	usage := c.ownerUsage(owner)
	if newUsage := usage.Add(size); newUsage > c.perOwner {
		usage.Add(-size)
		c.usage.Add(-size)
		c.denialCount.Add(1)
		ownerDenials.Inc()
		return fmt.Errorf("%w: %s requested %d, %d of %d in use", ErrOwnerMemoryLimit, owner, size, newUsage-size, c.perOwner)
	}

	c.allocationCount.Add(1)
	allocationsCounter.Inc()
	usageGauge.Set(float64(c.usage.Load()))
	return nil
}

func (c *Controller) ownerUsage(owner string) *atomic.Int64 {
	if val, ok := c.owners.Load(owner); ok {
		return val.(*atomic.Int64)
	}

	c.ownerInitMu.Lock()
	defer c.ownerInitMu.Unlock()

	if val, ok := c.owners.Load(owner); ok {
		return val.(*atomic.Int64)
	}
	usage := &atomic.Int64{}
	c.owners.Store(owner, usage)
	return usage
}

// ReleaseMemory returns size bytes reserved by owner. Releasing more than
// the owner holds releases only what it holds; unknown owners are ignored.
func (c *Controller) ReleaseMemory(owner string, size int64) {
	val, ok := c.owners.Load(owner)
	if !ok || size <= 0 {
		return
	}
	usage := val.(*atomic.Int64)

	for {
		old := usage.Load()
		if old <= 0 {
			return
		}
		release := size
		if release > old {
			release = old
		}
		if usage.CompareAndSwap(old, old-release) {
			c.usage.Add(-release)
			break
		}
	}

	c.releaseCount.Add(1)
	usageGauge.Set(float64(c.usage.Load()))
}

// ResetOwner drops all accounting for owner, returning its bytes to the
// global budget.
func (c *Controller) ResetOwner(owner string) {
	if val, ok := c.owners.LoadAndDelete(owner); ok {
		if remaining := val.(*atomic.Int64).Swap(0); remaining > 0 {
			c.usage.Add(-remaining)
		}
	}
	usageGauge.Set(float64(c.usage.Load()))
}

// Pressure returns global usage as a fraction of the budget.
func (c *Controller) Pressure() float64 {
	if c.maxTotal <= 0 {
		return 0
	}
	return float64(c.usage.Load()) / float64(c.maxTotal)
}

// UnderPressure reports whether Pressure is above the threshold.
func (c *Controller) UnderPressure() bool {
	return c.Pressure() > c.threshold
}

// OwnerUsage returns the bytes currently reserved by owner.
func (c *Controller) OwnerUsage(owner string) int64 {
	if val, ok := c.owners.Load(owner); ok {
		return val.(*atomic.Int64).Load()
	}
	return 0
}

// Stats returns a snapshot of the controller's accounting.
func (c *Controller) Stats() Stats {
	st := Stats{
		GlobalUsage:       c.usage.Load(),
		GlobalLimit:       c.maxTotal,
		GlobalPressure:    c.Pressure(),
		PerOwnerLimit:     c.perOwner,
		AllocationCount:   c.allocationCount.Load(),
		ReleaseCount:      c.releaseCount.Load(),
		DenialCount:       c.denialCount.Load(),
		PressureThreshold: c.threshold,
	}

	c.owners.Range(func(key, value interface{}) bool {
		usage := value.(*atomic.Int64).Load()
		if usage > 0 {
			st.Owners = append(st.Owners, OwnerStats{
				Owner:   key.(string),
				Usage:   usage,
				Percent: float64(usage) / float64(c.perOwner) * 100,
			})
		}
		return true
	})
	sort.Slice(st.Owners, func(i, j int) bool { return st.Owners[i].Usage > st.Owners[j].Usage })
	st.ActiveOwners = len(st.Owners)
	ownersGauge.Set(float64(st.ActiveOwners))

	return st
}

// Stats holds memory controller statistics
type Stats struct {
	GlobalUsage       int64        `json:"global_usage"`
	GlobalLimit       int64        `json:"global_limit"`
	GlobalPressure    float64      `json:"global_pressure"`
	PerOwnerLimit     int64        `json:"per_owner_limit"`
	ActiveOwners      int          `json:"active_owners"`
	Owners            []OwnerStats `json:"owners,omitempty"`
	AllocationCount   int64        `json:"allocation_count"`
	ReleaseCount      int64        `json:"release_count"`
	DenialCount       int64        `json:"denial_count"`
	PressureThreshold float64      `json:"pressure_threshold"`
}

// OwnerStats holds per-owner memory statistics
type OwnerStats struct {
	Owner   string  `json:"owner"`
	Usage   int64   `json:"usage"`
	Percent float64 `json:"percent"`
}
