// Package platform describes the boards the hypervisor runs on and assembles
// the memory and interrupt plumbing the PLIC driver needs.
package platform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tinyrange/irqc/internal/irqc/plic"
	"gopkg.in/yaml.v3"
)

const DefaultFilename = "platform.yaml"

// Context layouts.
const (
	LayoutPairPerHart    = "pair-per-hart"
	LayoutSupervisorOnly = "supervisor-only"
)

// Platform is the on-disk description of a board.
type Platform struct {
	Name  string `yaml:"name"`
	Harts int    `yaml:"harts"`

	Memory MemoryConfig `yaml:"memory"`
	PLIC   PLICConfig   `yaml:"plic"`
}

type MemoryConfig struct {
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`
}

type PLICConfig struct {
	Base       uint64 `yaml:"base"`
	Contexts   int    `yaml:"contexts,omitempty"`
	MaxSources uint32 `yaml:"maxSources,omitempty"`
	Layout     string `yaml:"layout,omitempty"`
}

// QemuVirt returns the layout of the qemu "virt" machine.
func QemuVirt(harts int) Platform {
	p := Platform{Name: "virt", Harts: harts}
	p.normalize()
	return p
}

func (p *Platform) normalize() {
	if p.Name == "" {
		p.Name = "virt"
	}
	if p.Harts == 0 {
		p.Harts = 1
	}
	if p.Memory.Base == 0 && p.Memory.Size == 0 {
		p.Memory = MemoryConfig{Base: 0x8000_0000, Size: 128 << 20}
	}
	if p.PLIC.Base == 0 {
		p.PLIC.Base = 0x0c00_0000
	}
	if p.PLIC.Layout == "" {
		p.PLIC.Layout = LayoutPairPerHart
	}
	if p.PLIC.Contexts == 0 {
		switch p.PLIC.Layout {
		case LayoutSupervisorOnly:
			p.PLIC.Contexts = p.Harts
		default:
			p.PLIC.Contexts = p.Harts * 2
		}
	}
}

// Validate checks that every hart has a supervisor context.
func (p Platform) Validate() error {
	var errs []error
	if p.Harts <= 0 {
		errs = append(errs, fmt.Errorf("harts must be positive (got %d)", p.Harts))
	}
	if p.Memory.Size == 0 {
		errs = append(errs, fmt.Errorf("memory size must be set"))
	}
	if p.PLIC.MaxSources > plic.DefaultMaxSources {
		errs = append(errs, fmt.Errorf("plic maxSources %d exceeds %d", p.PLIC.MaxSources, plic.DefaultMaxSources))
	}

	need := p.Harts * 2
	switch p.PLIC.Layout {
	case LayoutPairPerHart:
	case LayoutSupervisorOnly:
		need = p.Harts
	default:
		errs = append(errs, fmt.Errorf("unknown plic layout %q", p.PLIC.Layout))
	}
	if p.PLIC.Contexts < need {
		errs = append(errs, fmt.Errorf("plic has %d contexts, %s layout needs %d for %d harts",
			p.PLIC.Contexts, p.PLIC.Layout, need, p.Harts))
	}

	if len(errs) > 0 {
		return fmt.Errorf("platform %s: %w", p.Name, errors.Join(errs...))
	}
	return nil
}

// ContextMap returns the PLIC context layout of the platform.
func (p Platform) ContextMap() plic.ContextMap {
	if p.PLIC.Layout == LayoutSupervisorOnly {
		return plic.SupervisorOnly{Contexts: p.PLIC.Contexts}
	}
	return plic.PairPerHart{Contexts: p.PLIC.Contexts}
}

// DriverConfig returns the PLIC driver configuration for the platform.
func (p Platform) DriverConfig(dispatch plic.Dispatcher) plic.Config {
	return plic.Config{
		Base:       p.PLIC.Base,
		Contexts:   p.PLIC.Contexts,
		MaxSources: p.PLIC.MaxSources,
		Map:        p.ContextMap(),
		Dispatch:   dispatch,
	}
}

// Parse decodes a platform description, applies defaults and validates it.
func Parse(data []byte) (Platform, error) {
	var p Platform
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Platform{}, fmt.Errorf("parse platform: %w", err)
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return Platform{}, err
	}
	return p, nil
}

func Load(path string) (Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Platform{}, fmt.Errorf("read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return Platform{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Marshal encodes p as YAML.
func (p Platform) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
