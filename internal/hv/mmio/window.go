package mmio

import (
	"log/slog"
	"sync/atomic"
)

// Window is a mapped range of device registers. Loads and stores go straight
// to the device in program order; nothing is cached or merged.
type Window interface {
	Load32(off uint64) uint32
	Store32(off uint64, v uint32)
	Size() uint64
}

// Syncer is implemented by windows and devices that need to observe barriers.
type Syncer interface {
	Sync()
}

var fenceWord atomic.Uint32

// Fence orders every register access issued before it against every access
// issued after it, and propagates the barrier to windows that implement Syncer.
func Fence(windows ...Window) {
	fenceWord.Add(1)
	for _, w := range windows {
		if s, ok := w.(Syncer); ok {
			s.Sync()
		}
	}
}

// inWindow reports whether a 4-byte access at off is aligned and inside size.
func inWindow(off, size uint64) bool {
	return off%4 == 0 && off+4 <= size
}

type deviceWindow struct {
	dev  Device
	base uint64
	size uint64
}

// DeviceWindow exposes [base, base+size) of dev as a Window.
func DeviceWindow(dev Device, base, size uint64) Window {
	return &deviceWindow{dev: dev, base: base, size: size}
}

func (w *deviceWindow) Load32(off uint64) uint32 {
	if !inWindow(off, w.size) {
		return 0
	}
	v, err := w.dev.Read(w.base+off, 4)
	if err != nil {
		slog.Warn("mmio: device read", "offset", w.base+off, "error", err)
		return 0
	}
	return uint32(v)
}

func (w *deviceWindow) Store32(off uint64, v uint32) {
	if !inWindow(off, w.size) {
		return
	}
	if err := w.dev.Write(w.base+off, 4, uint64(v)); err != nil {
		slog.Warn("mmio: device write", "offset", w.base+off, "error", err)
	}
}

func (w *deviceWindow) Size() uint64 { return w.size }

func (w *deviceWindow) Sync() {
	if s, ok := w.dev.(Syncer); ok {
		s.Sync()
	}
}

var (
	_ Window = (*deviceWindow)(nil)
	_ Syncer = (*deviceWindow)(nil)
)
