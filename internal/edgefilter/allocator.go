package edgefilter

// Allocator provides output buffers. Implementations may refuse a request,
// for example when a memory budget is exhausted.
type Allocator interface {
	Allocate(n int) ([]byte, error)
}

// AllocatorFunc adapts an ordinary function to the Allocator interface.
type AllocatorFunc func(n int) ([]byte, error)

// Allocate calls f(n).
func (f AllocatorFunc) Allocate(n int) ([]byte, error) {
	return f(n)
}

// HeapAllocator allocates from the Go heap and never fails.
type HeapAllocator struct{}

// Allocate returns a zeroed slice of n bytes.
func (HeapAllocator) Allocate(n int) ([]byte, error) {
	return make([]byte, n), nil
}
