//go:build linux

package mmio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

// DevMem maps physical address ranges through a /dev/mem style character
// device.
type DevMem struct {
	mu   sync.Mutex
	path string
	fd   int
	maps [][]byte
}

// OpenDevMem opens path (usually /dev/mem or a UIO node) for uncached
// read-write mapping.
func OpenDevMem(path string) (*DevMem, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("mmio: open %s: %w", path, err)
	}
	return &DevMem{path: path, fd: fd}, nil
}

// Map maps [base, base+size) shared with the device. The mapping is widened
// to page boundaries; the returned window covers exactly the requested range.
func (d *DevMem) Map(base, size uint64) (Window, error) {
	if size == 0 {
		return nil, fmt.Errorf("mmio: map 0x%x: zero size", base)
	}
	if base%4 != 0 {
		return nil, fmt.Errorf("mmio: map 0x%x: base is not word aligned", base)
	}
	page := uint64(unix.Getpagesize())
	start := base &^ (page - 1)
	delta := base - start
	length := (delta + size + page - 1) &^ (page - 1)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fd < 0 {
		return nil, fmt.Errorf("mmio: map 0x%x: %s is closed", base, d.path)
	}

	mem, err := unix.Mmap(d.fd, int64(start), int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmio: mmap %s [0x%x-0x%x): %w", d.path, start, start+length, err)
	}
	d.maps = append(d.maps, mem)

	slog.Debug("mmio: mapped device range", "path", d.path, "base", base, "size", size)
	return newMappedWindow(mem, delta, size), nil
}

// Close unmaps every window and closes the device. Windows must not be used
// afterwards.
func (d *DevMem) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for _, mem := range d.maps {
		if err := unix.Munmap(mem); err != nil {
			errs = append(errs, fmt.Errorf("mmio: munmap: %w", err))
		}
	}
	d.maps = nil
	if d.fd >= 0 {
		if err := unix.Close(d.fd); err != nil {
			errs = append(errs, fmt.Errorf("mmio: close %s: %w", d.path, err))
		}
		d.fd = -1
	}
	return errors.Join(errs...)
}
