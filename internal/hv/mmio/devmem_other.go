//go:build !linux

package mmio

import "fmt"

// DevMem is only available on linux.
type DevMem struct{}

// OpenDevMem always fails on this platform.
func OpenDevMem(path string) (*DevMem, error) {
	return nil, fmt.Errorf("mmio: %s: physical memory mapping is only supported on linux", path)
}

func (d *DevMem) Map(base, size uint64) (Window, error) {
	return nil, fmt.Errorf("mmio: physical memory mapping is only supported on linux")
}

func (d *DevMem) Close() error { return nil }
