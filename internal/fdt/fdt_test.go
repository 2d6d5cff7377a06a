package fdt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildParse(t *testing.T) {
	root := Node{
		Name: "",
		Properties: map[string]Property{
			"#address-cells": {U32: []uint32{2}},
			"compatible":     {Strings: []string{"riscv-virtio"}},
		},
		Children: []Node{{
			Name: "plic@c000000",
			Properties: map[string]Property{
				"interrupt-controller": {Flag: true},
				"reg":                  {U64: []uint64{0xc000000, 0x600000}},
				"riscv,ndev":           {U32: []uint32{95}},
			},
		}},
	}

	blob, err := Build(root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	plic, ok := got.Child("plic@c000000")
	if !ok {
		t.Fatalf("plic node missing from %+v", got)
	}
	if !plic.Properties["interrupt-controller"].Flag {
		t.Fatalf("interrupt-controller flag lost")
	}
	ndev, err := plic.Properties["riscv,ndev"].Cells()
	if err != nil {
		t.Fatalf("Cells: %v", err)
	}
	if diff := cmp.Diff([]uint32{95}, ndev); diff != "" {
		t.Fatalf("riscv,ndev mismatch (-want +got):\n%s", diff)
	}
	reg, err := plic.Properties["reg"].Cells()
	if err != nil {
		t.Fatalf("Cells: %v", err)
	}
	if diff := cmp.Diff([]uint32{0, 0xc000000, 0, 0x600000}, reg); diff != "" {
		t.Fatalf("reg mismatch (-want +got):\n%s", diff)
	}
	if string(got.Properties["compatible"].Bytes) != "riscv-virtio\x00" {
		t.Fatalf("compatible = %q", got.Properties["compatible"].Bytes)
	}
}

func TestBuildRejectsAmbiguousProperty(t *testing.T) {
	_, err := Build(Node{Properties: map[string]Property{
		"bad": {U32: []uint32{1}, Strings: []string{"x"}},
	}})
	if err == nil {
		t.Fatalf("expected error for property with two value kinds")
	}
	_, err = Build(Node{Properties: map[string]Property{"empty": {}}})
	if err == nil {
		t.Fatalf("expected error for property with no value")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short blob")
	}
	blob, err := Build(Node{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	blob[0] = 0
	if _, err := Parse(blob); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestPropertyKinds(t *testing.T) {
	props := map[string]Property{
		"compatible":           {Strings: []string{"a"}},
		"phandle":              {U32: []uint32{1}},
		"reg":                  {U64: []uint64{0, 0x1000}},
		"blob":                 {Bytes: []byte{1}},
		"interrupt-controller": {Flag: true},
	}
	got := map[string]string{}
	for name, p := range props {
		got[name] = p.Kind()
	}
	want := map[string]string{
		"compatible":           "strings",
		"phandle":              "u32",
		"reg":                  "u64",
		"blob":                 "bytes",
		"interrupt-controller": "flag",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("kinds mismatch (-want +got):\n%s", diff)
	}

	blob, err := Build(Node{Properties: props})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	root, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for name, p := range root.Properties {
		wantKind := "bytes"
		if name == "interrupt-controller" {
			wantKind = "flag"
		}
		if p.Kind() != wantKind {
			t.Errorf("parsed %q has kind %q, want %q", name, p.Kind(), wantKind)
		}
	}
	if (Property{}).Kind() != "" {
		t.Fatalf("empty property should have no kind")
	}
}
