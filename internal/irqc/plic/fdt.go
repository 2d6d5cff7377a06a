package plic

import (
	"fmt"

	"github.com/tinyrange/irqc/internal/fdt"
)

// Local interrupt numbers of the hart interrupt controller.
const (
	irqUserExternal       = 8
	irqSupervisorExternal = 9
	irqMachineExternal    = 11
)

// DeviceTree describes the controller as a device-tree node. intc returns the
// phandle of a hart's interrupt controller. Contexts the map cannot place are
// listed against hart 0 with interrupt -1, which marks them unused.
func (c *Controller) DeviceTree(phandle uint32, intc func(hart int) uint32) fdt.Node {
	ext := make([]uint32, 0, c.contexts*2)
	for id := 0; id < c.contexts; id++ {
		ctx, ok := c.cmap.Context(id)
		if !ok {
			ext = append(ext, intc(0), 0xffffffff)
			continue
		}
		var irq uint32
		switch ctx.Mode {
		case PrivMachine:
			irq = irqMachineExternal
		case PrivSupervisor:
			irq = irqSupervisorExternal
		default:
			irq = irqUserExternal
		}
		ext = append(ext, intc(ctx.Hart), irq)
	}

	return fdt.Node{
		Name: fmt.Sprintf("plic@%x", c.base),
		Properties: map[string]fdt.Property{
			"compatible":           {Strings: []string{"sifive,plic-1.0.0", "riscv,plic0"}},
			"#interrupt-cells":     {U32: []uint32{1}},
			"#address-cells":       {U32: []uint32{0}},
			"interrupt-controller": {Flag: true},
			"reg":                  {U64: []uint64{c.base, HartRegOffset + HartSize(c.contexts)}},
			"riscv,ndev":           {U32: []uint32{c.implMax}},
			"phandle":              {U32: []uint32{phandle}},
			"interrupts-extended":  {U32: ext},
		},
	}
}
