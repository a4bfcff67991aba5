// Command edgebridge builds the edge filter as a C shared library:
//
//	go build -buildmode=c-shared -o libedgeview.so ./cmd/edgebridge
//
// Output buffers are allocated with malloc and must be returned with
// EdgeViewFree.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"github.com/zsiec/edgeview/pkg/bridge"
)

// EdgeViewGreet returns a C string owned by the caller.
//
//export EdgeViewGreet
func EdgeViewGreet() *C.char {
	return C.CString(bridge.Greet())
}

// EdgeViewProcessFrame filters width*height RGBA pixels at data. The input
// is only read during the call. On success it returns a malloc'd buffer and
// stores its length in outLen; on failure it returns NULL and stores 0.
//
//export EdgeViewProcessFrame
func EdgeViewProcessFrame(data *C.uchar, length C.int, width, height C.int, outLen *C.int) *C.uchar {
	input := inputView(unsafe.Pointer(data), int(length))
	buf, n := processInto(input, int(width), int(height), cAlloc)
	setLen(outLen, n)
	return (*C.uchar)(buf)
}

// EdgeViewFree releases memory returned by this library.
//
//export EdgeViewFree
func EdgeViewFree(p unsafe.Pointer) {
	C.free(p)
}

// cAlloc never returns NULL: cgo's C.malloc crashes the process when out of
// memory.
func cAlloc(n int) unsafe.Pointer {
	return C.malloc(C.size_t(n))
}

func setLen(p *C.int, n int) {
	if p != nil {
		*p = C.int(n)
	}
}

func main() {}
