// Package hv holds the hypervisor's view of physical memory: which ranges are
// RAM, which are devices, and how device ranges are mapped for drivers.
package hv

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/tinyrange/irqc/internal/hv/mmio"
)

// MMIORegion names a physical device register range.
type MMIORegion struct {
	Name string
	Base uint64
	Size uint64
}

// End returns the first address after the region.
func (r MMIORegion) End() uint64 { return r.Base + r.Size }

func (r MMIORegion) overlaps(base, size uint64) bool {
	return base < r.End() && base+size > r.Base
}

// Backing produces windows for physical ranges. mmio.Bus serves simulated
// devices and mmio.DevMem serves real hardware.
type Backing interface {
	Map(base, size uint64) (mmio.Window, error)
}

// AddressSpace tracks RAM and the fixed device regions of a platform, and maps
// device regions into the hypervisor through its Backing.
type AddressSpace struct {
	mu sync.Mutex

	ramBase uint64
	ramSize uint64

	backing Backing

	// fixedRegions holds pre-determined MMIO regions (PLIC, UART, CLINT, etc.)
	fixedRegions []MMIORegion
}

// NewAddressSpace creates an address space whose device regions are served by
// backing. Device regions may not overlap [ramBase, ramBase+ramSize).
func NewAddressSpace(ramBase, ramSize uint64, backing Backing) *AddressSpace {
	return &AddressSpace{
		ramBase: ramBase,
		ramSize: ramSize,
		backing: backing,
	}
}

// RegisterFixed reserves a device range. Later MapDevice calls may map any
// part of it. Registering the same region twice is allowed; partial overlaps
// are not.
func (a *AddressSpace) RegisterFixed(name string, base, size uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := MMIORegion{Name: name, Base: base, Size: size}
	known, err := a.checkLocked(r)
	if err != nil {
		return err
	}
	if !known {
		a.fixedRegions = append(a.fixedRegions, r)
	}
	return nil
}

// checkLocked validates r against RAM and the registered regions. It reports
// whether r is already covered by a registered region.
func (a *AddressSpace) checkLocked(r MMIORegion) (bool, error) {
	if r.Size == 0 {
		return false, fmt.Errorf("address_space: cannot register zero-size fixed region %s", r.Name)
	}
	if r.End() < r.Base {
		return false, fmt.Errorf("address_space: fixed region %s at 0x%x wraps the address space", r.Name, r.Base)
	}

	ramEnd := a.ramBase + a.ramSize
	if a.ramSize != 0 && r.Base < ramEnd && r.End() > a.ramBase {
		return false, fmt.Errorf("address_space: fixed region %s [0x%x-0x%x) overlaps RAM [0x%x-0x%x)",
			r.Name, r.Base, r.End(), a.ramBase, ramEnd)
	}

	for _, existing := range a.fixedRegions {
		if r.Base >= existing.Base && r.End() <= existing.End() {
			return true, nil
		}
		if existing.overlaps(r.Base, r.Size) {
			return false, fmt.Errorf("address_space: fixed region %s [0x%x-0x%x) overlaps %s [0x%x-0x%x)",
				r.Name, r.Base, r.End(), existing.Name, existing.Base, existing.End())
		}
	}
	return false, nil
}

// MapDevice maps r for register access, registering it unless it lies
// inside a reserved region.
func (a *AddressSpace) MapDevice(r MMIORegion) (mmio.Window, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.backing == nil {
		return nil, fmt.Errorf("address_space: map %s: no backing configured", r.Name)
	}
	known, err := a.checkLocked(r)
	if err != nil {
		return nil, err
	}

	w, err := a.backing.Map(r.Base, r.Size)
	if err != nil {
		return nil, fmt.Errorf("address_space: map %s: %w", r.Name, err)
	}
	if !known {
		a.fixedRegions = append(a.fixedRegions, r)
	}

	slog.Debug("address_space: mapped device", "name", r.Name, "base", r.Base, "size", r.Size)
	return w, nil
}

// FixedRegions returns a copy of all fixed MMIO regions.
func (a *AddressSpace) FixedRegions() []MMIORegion {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := make([]MMIORegion, len(a.fixedRegions))
	copy(result, a.fixedRegions)
	return result
}

// Close releases the backing if it holds host resources.
func (a *AddressSpace) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if c, ok := a.backing.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.backing = nil
	return errors.Join(errs...)
}

// AlignUp aligns value up to the specified power-of-two alignment.
func AlignUp(value, align uint64) uint64 {
	if align == 0 {
		return value
	}
	mask := align - 1
	return (value + mask) &^ mask
}
