// Package mmio provides the register windows the hypervisor's device drivers
// use to reach memory-mapped hardware, along with a bus for simulated devices.
package mmio

// Device is a simulated device attached to a Bus. Offsets are relative to
// the device base.
type Device interface {
	Read(offset uint64, size int) (uint64, error)
	Write(offset uint64, size int, value uint64) error
	Size() uint64
}
