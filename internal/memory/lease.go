package memory

import (
	"sync/atomic"

	"github.com/zsiec/edgeview/internal/edgefilter"
)

// Lease reserves memory for one owner and hands out buffers against that
// reservation. It implements edgefilter.Allocator, so a refused reservation
// surfaces from Filter.Process as edgefilter.ErrOutputAllocation.
type Lease struct {
	c        *Controller
	owner    string
	reserved atomic.Int64
}

var _ edgefilter.Allocator = (*Lease)(nil)

// NewLease starts an empty lease for owner.
func (c *Controller) NewLease(owner string) *Lease {
	return &Lease{c: c, owner: owner}
}

// Owner returns the owner the lease accounts against.
func (l *Lease) Owner() string { return l.owner }

// Reserve accounts n bytes without allocating, e.g. for a request body the
// caller has already read.
func (l *Lease) Reserve(n int) error {
	if err := l.c.RequestMemory(l.owner, int64(n)); err != nil {
		return err
	}
	l.reserved.Add(int64(n))
	return nil
}

// Allocate reserves n bytes and returns a zeroed buffer of that size.
func (l *Lease) Allocate(n int) ([]byte, error) {
	if err := l.Reserve(n); err != nil {
		return nil, err
	}
	return make([]byte, n), nil
}

// Reserved returns the bytes currently held by the lease.
func (l *Lease) Reserved() int64 { return l.reserved.Load() }

// Release returns everything the lease holds. The buffers themselves stay
// valid; only the accounting ends. Release is idempotent.
func (l *Lease) Release() {
	if n := l.reserved.Swap(0); n > 0 {
		l.c.ReleaseMemory(l.owner, n)
	}
}
