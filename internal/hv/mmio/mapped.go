package mmio

import (
	"sync/atomic"
	"unsafe"
)

// mappedWindow is a Window over host memory that aliases device registers.
// Every access is a single 32-bit atomic load or store so the compiler can
// neither elide nor reorder it.
type mappedWindow struct {
	mem  []byte
	off  uint64
	size uint64
}

func newMappedWindow(mem []byte, off, size uint64) *mappedWindow {
	return &mappedWindow{mem: mem, off: off, size: size}
}

func (w *mappedWindow) word(off uint64) *uint32 {
	return (*uint32)(unsafe.Pointer(&w.mem[w.off+off]))
}

func (w *mappedWindow) Load32(off uint64) uint32 {
	if !inWindow(off, w.size) {
		return 0
	}
	return atomic.LoadUint32(w.word(off))
}

func (w *mappedWindow) Store32(off uint64, v uint32) {
	if !inWindow(off, w.size) {
		return
	}
	atomic.StoreUint32(w.word(off), v)
}

func (w *mappedWindow) Size() uint64 { return w.size }

var _ Window = (*mappedWindow)(nil)
