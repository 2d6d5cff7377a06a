package hv

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tinyrange/irqc/internal/hv/mmio"
)

// regBank is a device of plain 32-bit registers.
type regBank []byte

func (r regBank) Read(offset uint64, size int) (uint64, error) {
	if size != 4 || offset+4 > uint64(len(r)) {
		return 0, fmt.Errorf("regBank: bad read at 0x%x", offset)
	}
	return uint64(binary.LittleEndian.Uint32(r[offset:])), nil
}

func (r regBank) Write(offset uint64, size int, value uint64) error {
	if size != 4 || offset+4 > uint64(len(r)) {
		return fmt.Errorf("regBank: bad write at 0x%x", offset)
	}
	binary.LittleEndian.PutUint32(r[offset:], uint32(value))
	return nil
}

func (r regBank) Size() uint64 { return uint64(len(r)) }

func newTestSpace(t *testing.T) (*AddressSpace, regBank) {
	t.Helper()
	bus := mmio.NewBus()
	dev := make(regBank, 0x4000)
	if err := bus.AddDevice(0x0c00_0000, dev); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	return NewAddressSpace(0x8000_0000, 0x1000_0000, bus), dev
}

func TestMapDeviceThroughBus(t *testing.T) {
	as, dev := newTestSpace(t)

	w, err := as.MapDevice(MMIORegion{Name: "regs", Base: 0x0c00_1000, Size: 0x1000})
	if err != nil {
		t.Fatalf("MapDevice: %v", err)
	}
	w.Store32(0x8, 42)
	if got, _ := dev.Read(0x1008, 4); got != 42 {
		t.Fatalf("expected store at device offset 0x1008, got %d", got)
	}

	want := []MMIORegion{{Name: "regs", Base: 0x0c00_1000, Size: 0x1000}}
	if diff := cmp.Diff(want, as.FixedRegions()); diff != "" {
		t.Fatalf("FixedRegions mismatch (-want +got):\n%s", diff)
	}
}

func TestMapDeviceRejectsConflicts(t *testing.T) {
	as, _ := newTestSpace(t)

	if _, err := as.MapDevice(MMIORegion{Name: "a", Base: 0x0c00_0000, Size: 0x2000}); err != nil {
		t.Fatalf("MapDevice: %v", err)
	}
	// Mapping the identical region again is fine.
	if _, err := as.MapDevice(MMIORegion{Name: "a", Base: 0x0c00_0000, Size: 0x2000}); err != nil {
		t.Fatalf("MapDevice repeat: %v", err)
	}

	tests := []struct {
		name   string
		region MMIORegion
	}{
		{"zero size", MMIORegion{Name: "z", Base: 0x0c00_3000}},
		{"partial overlap", MMIORegion{Name: "b", Base: 0x0c00_1000, Size: 0x2000}},
		{"overlaps ram", MMIORegion{Name: "c", Base: 0x7fff_f000, Size: 0x2000}},
		{"unbacked", MMIORegion{Name: "d", Base: 0x1000_0000, Size: 0x1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := as.MapDevice(tt.region); err == nil {
				t.Fatalf("expected MapDevice(%+v) to fail", tt.region)
			}
		})
	}
}

func TestMapDeviceInsideReservedRegion(t *testing.T) {
	as, dev := newTestSpace(t)

	if err := as.RegisterFixed("bank", 0x0c00_0000, 0x4000); err != nil {
		t.Fatalf("RegisterFixed: %v", err)
	}
	if err := as.RegisterFixed("bank", 0x0c00_0000, 0x4000); err != nil {
		t.Fatalf("RegisterFixed repeat: %v", err)
	}
	w, err := as.MapDevice(MMIORegion{Name: "bank-hi", Base: 0x0c00_3000, Size: 0x1000})
	if err != nil {
		t.Fatalf("MapDevice: %v", err)
	}
	w.Store32(0, 7)
	if got, _ := dev.Read(0x3000, 4); got != 7 {
		t.Fatalf("expected store at device offset 0x3000, got %d", got)
	}

	want := []MMIORegion{{Name: "bank", Base: 0x0c00_0000, Size: 0x4000}}
	if diff := cmp.Diff(want, as.FixedRegions()); diff != "" {
		t.Fatalf("FixedRegions mismatch (-want +got):\n%s", diff)
	}

	if err := as.RegisterFixed("wide", 0x0c00_2000, 0x4000); err == nil {
		t.Fatalf("expected a partially overlapping reservation to fail")
	}
	if err := as.RegisterFixed("ram", 0x8000_0000, 0x1000); err == nil {
		t.Fatalf("expected a reservation inside RAM to fail")
	}
}

func TestCloseDropsBacking(t *testing.T) {
	as, _ := newTestSpace(t)
	if err := as.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := as.MapDevice(MMIORegion{Name: "a", Base: 0x0c00_0000, Size: 0x1000}); err == nil {
		t.Fatalf("expected MapDevice after Close to fail")
	}
}

func TestAlignUp(t *testing.T) {
	if got := AlignUp(0x1001, 0x1000); got != 0x2000 {
		t.Fatalf("AlignUp(0x1001) = 0x%x", got)
	}
	if got := AlignUp(0x2000, 0x1000); got != 0x2000 {
		t.Fatalf("AlignUp(0x2000) = 0x%x", got)
	}
}
