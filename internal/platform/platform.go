package platform

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tinyrange/irqc/internal/chipset"
	simplic "github.com/tinyrange/irqc/internal/devices/plic"
	"github.com/tinyrange/irqc/internal/hv"
	"github.com/tinyrange/irqc/internal/hv/mmio"
	"github.com/tinyrange/irqc/internal/irqc/plic"
)

// CPU identifies a hart.
type CPU struct {
	ID int
}

func (c CPU) CoreID() int { return c.ID }

// CPUs returns the identities of every hart of the platform.
func (p Platform) CPUs() []CPU {
	cpus := make([]CPU, p.Harts)
	for i := range cpus {
		cpus[i] = CPU{ID: i}
	}
	return cpus
}

// PLICRegion is the full register range of the platform's PLIC.
func (p Platform) PLICRegion() hv.MMIORegion {
	return hv.MMIORegion{
		Name: "plic",
		Base: p.PLIC.Base,
		Size: plic.HartRegOffset + plic.HartSize(p.PLIC.Contexts),
	}
}

// newSpace builds the address space of p with the PLIC range reserved.
func (p Platform) newSpace(backing hv.Backing) (*hv.AddressSpace, error) {
	space := hv.NewAddressSpace(p.Memory.Base, p.Memory.Size, backing)
	r := p.PLICRegion()
	if err := space.RegisterFixed(r.Name, r.Base, r.Size); err != nil {
		return nil, fmt.Errorf("platform %s: %w", p.Name, err)
	}
	return space, nil
}

// Simulated is a platform whose PLIC is the register-level model.
type Simulated struct {
	Platform Platform

	Bus   *mmio.Bus
	PLIC  *simplic.PLIC
	Lines *chipset.LineSet
	Space *hv.AddressSpace

	external []atomic.Bool
}

// NewSimulated builds p around a simulated PLIC implementing sources
// interrupt sources with 3-bit priorities.
func NewSimulated(p Platform, sources int) (*Simulated, error) {
	dev, err := simplic.New(simplic.Config{
		Sources:      sources,
		Contexts:     p.PLIC.Contexts,
		PriorityMask: 0x7,
	})
	if err != nil {
		return nil, fmt.Errorf("platform %s: %w", p.Name, err)
	}

	bus := mmio.NewBus()
	if err := bus.AddDevice(p.PLIC.Base, dev); err != nil {
		return nil, fmt.Errorf("platform %s: attach plic: %w", p.Name, err)
	}

	space, err := p.newSpace(bus)
	if err != nil {
		return nil, err
	}

	s := &Simulated{
		Platform: p,
		Bus:      bus,
		PLIC:     dev,
		Lines:    chipset.NewLineSet(dev),
		Space:    space,
		external: make([]atomic.Bool, p.PLIC.Contexts),
	}
	dev.OnComplete(s.Lines.BroadcastEOI)
	for ctx := range s.external {
		dev.ConnectContext(ctx, chipset.LineInterruptFromFunc(s.external[ctx].Store))
	}

	slog.Debug("platform: simulated", "name", p.Name, "sources", sources, "contexts", p.PLIC.Contexts)
	return s, nil
}

// Line returns the interrupt line of source.
func (s *Simulated) Line(source uint32) chipset.LineInterrupt {
	return s.Lines.AllocateLine(source)
}

// ExternalPending reports whether the PLIC is signalling context.
func (s *Simulated) ExternalPending(context int) bool {
	if context < 0 || context >= len(s.external) {
		return false
	}
	return s.external[context].Load()
}

// Hardware is a platform whose device ranges are mapped from physical memory.
type Hardware struct {
	Platform Platform
	Space    *hv.AddressSpace
}

// OpenHardware maps device ranges of p through the physical memory device at
// path. Closing the address space closes the device.
func OpenHardware(p Platform, path string) (*Hardware, error) {
	mem, err := mmio.OpenDevMem(path)
	if err != nil {
		return nil, fmt.Errorf("platform %s: %w", p.Name, err)
	}
	space, err := p.newSpace(mem)
	if err != nil {
		mem.Close()
		return nil, err
	}
	return &Hardware{Platform: p, Space: space}, nil
}
