package mmio

import "fmt"

// DeviceMapping maps a device to an address range
type DeviceMapping struct {
	Base   uint64
	Size   uint64
	Device Device
}

// Bus routes physical addresses to simulated devices.
type Bus struct {
	Devices []DeviceMapping
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// AddDevice adds a device mapping to the bus. Overlapping mappings are rejected.
func (bus *Bus) AddDevice(base uint64, dev Device) error {
	size := dev.Size()
	if size == 0 {
		return fmt.Errorf("mmio: device at 0x%x has zero size", base)
	}
	for _, m := range bus.Devices {
		if base < m.Base+m.Size && base+size > m.Base {
			return fmt.Errorf("mmio: device [0x%x-0x%x) overlaps [0x%x-0x%x)", base, base+size, m.Base, m.Base+m.Size)
		}
	}
	bus.Devices = append(bus.Devices, DeviceMapping{
		Base:   base,
		Size:   size,
		Device: dev,
	})
	return nil
}

// findDevice finds a device at the given address
func (bus *Bus) findDevice(addr uint64) (Device, uint64, error) {
	for _, mapping := range bus.Devices {
		if addr >= mapping.Base && addr < mapping.Base+mapping.Size {
			return mapping.Device, addr - mapping.Base, nil
		}
	}

	return nil, 0, fmt.Errorf("no device at address 0x%x", addr)
}

// Map returns a Window over [base, base+size). The whole range must be served
// by a single device.
func (bus *Bus) Map(base, size uint64) (Window, error) {
	dev, offset, err := bus.findDevice(base)
	if err != nil {
		return nil, fmt.Errorf("mmio: map 0x%x: %w", base, err)
	}
	if offset+size > dev.Size() {
		return nil, fmt.Errorf("mmio: map [0x%x-0x%x) crosses the end of its device", base, base+size)
	}
	return DeviceWindow(dev, offset, size), nil
}
