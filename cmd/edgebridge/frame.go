package main

import (
	"unsafe"

	"github.com/zsiec/edgeview/pkg/bridge"
)

// inputView exposes length bytes at data without copying. A NULL pointer or
// a negative length yields nil, which the filter rejects as inaccessible.
func inputView(data unsafe.Pointer, length int) []byte {
	if data == nil || length < 0 {
		return nil
	}
	return unsafe.Slice((*byte)(data), length)
}

// processInto filters input and copies the edge map into memory from alloc.
// A rejected frame returns nil and 0 without calling alloc.
func processInto(input []byte, width, height int, alloc func(n int) unsafe.Pointer) (unsafe.Pointer, int) {
	out := bridge.ProcessFrame(input, width, height)
	if len(out) == 0 {
		return nil, 0
	}

	buf := alloc(len(out))
	copy(unsafe.Slice((*byte)(buf), len(out)), out)
	return buf, len(out)
}
