package plic

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	simplic "github.com/tinyrange/irqc/internal/devices/plic"
	"github.com/tinyrange/irqc/internal/fdt"
)

func cells(t *testing.T, n fdt.Node, name string) []uint32 {
	t.Helper()
	p, ok := n.Properties[name]
	if !ok {
		t.Fatalf("property %q missing", name)
	}
	c, err := p.Cells()
	if err != nil {
		t.Fatalf("property %q: %v", name, err)
	}
	return c
}

func roundTrip(t *testing.T, node fdt.Node) fdt.Node {
	t.Helper()
	blob, err := fdt.Build(fdt.Node{Children: []fdt.Node{node}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	root, err := fdt.Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, ok := root.Child(node.Name)
	if !ok {
		t.Fatalf("node %q missing from parsed tree", node.Name)
	}
	return got
}

func TestDeviceTreeNode(t *testing.T) {
	r := newRig(t, simplic.Config{Sources: 31, Contexts: 4}, Config{})
	r.init(t)

	node := roundTrip(t, r.c.DeviceTree(5, func(hart int) uint32 { return uint32(10 + hart) }))
	if node.Name != "plic@c000000" {
		t.Fatalf("node name %q", node.Name)
	}

	got := map[string][]uint32{
		"interrupts-extended": cells(t, node, "interrupts-extended"),
		"reg":                 cells(t, node, "reg"),
		"riscv,ndev":          cells(t, node, "riscv,ndev"),
		"phandle":             cells(t, node, "phandle"),
		"#interrupt-cells":    cells(t, node, "#interrupt-cells"),
	}
	want := map[string][]uint32{
		"interrupts-extended": {10, 11, 10, 9, 11, 11, 11, 9},
		"reg":                 {0, testBase, 0, HartRegOffset + 4*hartStride},
		"riscv,ndev":          {31},
		"phandle":             {5},
		"#interrupt-cells":    {1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("properties mismatch (-want +got):\n%s", diff)
	}

	if !node.Properties["interrupt-controller"].Flag {
		t.Fatalf("interrupt-controller flag missing")
	}
	compat := string(node.Properties["compatible"].Bytes)
	if compat != "sifive,plic-1.0.0\x00riscv,plic0\x00" {
		t.Fatalf("compatible = %q", compat)
	}
}

func TestDeviceTreeMarksUnmappedContexts(t *testing.T) {
	r := newRig(t, simplic.Config{Sources: 2, Contexts: 2}, Config{Map: SupervisorOnly{Contexts: 1}})
	r.init(t)

	node := roundTrip(t, r.c.DeviceTree(1, func(hart int) uint32 { return uint32(2 + hart) }))
	if diff := cmp.Diff([]uint32{2, 9, 2, 0xffffffff}, cells(t, node, "interrupts-extended")); diff != "" {
		t.Fatalf("interrupts-extended mismatch (-want +got):\n%s", diff)
	}
}
