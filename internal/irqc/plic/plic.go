// Package plic drives a RISC-V platform-level interrupt controller on behalf
// of the hypervisor.
//
// The controller is brought up once with Controller.Init, then each hart
// calls Controller.CPUInit to obtain its Hart, whose Handle method services
// external interrupts from the trap path.
//
// Configuration accessors never fail: requests naming an unimplemented source
// or a context the driver may not program are ignored, and reads return zero.
// Source 0 is reserved and rejected by every accessor, and machine-mode
// contexts are never programmed.
// Accessors take no locks. The global priority and enable registers are
// shared by every hart; SetEnabled is a read-modify-write of a 32-bit enable
// word, so callers changing sources that share a word from different harts
// concurrently must serialize among themselves.
package plic

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tinyrange/irqc/internal/hv"
	"github.com/tinyrange/irqc/internal/hv/mmio"
)

var (
	ErrAlreadyInitialized = errors.New("plic: already initialized")
	ErrNotInitialized     = errors.New("plic: not initialized")
	ErrInvalidContext     = errors.New("plic: invalid context")
)

// DeviceMapper maps device register ranges. hv.AddressSpace implements it.
type DeviceMapper interface {
	MapDevice(r hv.MMIORegion) (mmio.Window, error)
}

// CoreIdentity identifies the calling hart.
type CoreIdentity interface {
	CoreID() int
}

// Config describes the controller instance of a platform.
type Config struct {
	// Base is the physical address of the register file.
	Base uint64
	// Contexts is the number of contexts the platform wires up.
	Contexts int
	// MaxSources bounds the source scan. Defaults to DefaultMaxSources.
	MaxSources uint32
	// Map is the platform context layout. Defaults to PairPerHart.
	Map ContextMap
	// Dispatch receives every claimed source.
	Dispatch Dispatcher
}

// Controller is the driver state shared by all harts.
type Controller struct {
	base       uint64
	contexts   int
	maxSources uint32
	cmap       ContextMap
	dispatch   Dispatcher

	// cpus holds the Hart initialized on each context.
	cpus []atomic.Pointer[Hart]

	global mmio.Window
	harts  mmio.Window

	// implMax is written once by Init before any hart runs CPUInit.
	implMax uint32
}

// New validates cfg and returns an uninitialized controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Contexts <= 0 {
		return nil, fmt.Errorf("plic: context count must be positive (got %d)", cfg.Contexts)
	}
	if uint64(cfg.Contexts)*enableStride > HartRegOffset-enableBase {
		return nil, fmt.Errorf("plic: %d contexts do not fit the enable block", cfg.Contexts)
	}
	if cfg.Base%pageSize != 0 {
		return nil, fmt.Errorf("plic: base 0x%x is not page aligned", cfg.Base)
	}
	if cfg.Dispatch == nil {
		return nil, fmt.Errorf("plic: no dispatcher configured")
	}

	maxSources := cfg.MaxSources
	if maxSources == 0 {
		maxSources = DefaultMaxSources
	}
	if maxSources > DefaultMaxSources {
		return nil, fmt.Errorf("plic: max sources %d exceeds the architectural limit %d", maxSources, DefaultMaxSources)
	}

	cmap := cfg.Map
	if cmap == nil {
		cmap = PairPerHart{Contexts: cfg.Contexts}
	}

	return &Controller{
		base:       cfg.Base,
		contexts:   cfg.Contexts,
		maxSources: maxSources,
		cmap:       cmap,
		dispatch:   cfg.Dispatch,
		cpus:       make([]atomic.Pointer[Hart], cfg.Contexts),
	}, nil
}

// Init maps the controller, discovers how many sources it implements, and
// clears every priority and enable bit. It must complete on one hart before
// any hart calls CPUInit. Failure to map the device is returned and leaves
// the controller uninitialized.
func (c *Controller) Init(m DeviceMapper) error {
	if c.global != nil {
		return ErrAlreadyInitialized
	}

	global, err := m.MapDevice(hv.MMIORegion{
		Name: "plic-global",
		Base: c.base,
		Size: GlobalSize(c.contexts),
	})
	if err != nil {
		return fmt.Errorf("plic: map global registers: %w", err)
	}
	// The DeviceMapper has no unmap, so a failure here leaves the global
	// block mapped. Boot treats it as fatal.
	harts, err := m.MapDevice(hv.MMIORegion{
		Name: "plic-hart",
		Base: c.base + HartRegOffset,
		Size: HartSize(c.contexts),
	})
	if err != nil {
		return fmt.Errorf("plic: map context registers: %w", err)
	}

	// The scan relies on reading true register contents.
	mmio.Fence(global, harts)

	implMax := scanSources(global, c.maxSources)

	for src := uint32(0); src <= implMax; src++ {
		global.Store32(priorityOff(src), 0)
	}
	for ctx := 0; ctx < c.contexts; ctx++ {
		for w := uint32(0); w < enableWords; w++ {
			global.Store32(enableOff(ctx, w*32), 0)
		}
	}

	c.global = global
	c.harts = harts
	c.implMax = implMax

	slog.Info("plic: initialized", "base", fmt.Sprintf("0x%x", c.base), "sources", implMax, "contexts", c.contexts)
	return nil
}

// ImplementedMax returns the highest source id the hardware implements, or 0
// before Init.
func (c *Controller) ImplementedMax() uint32 {
	return c.implMax
}

// Contexts returns the number of contexts of the platform.
func (c *Controller) Contexts() int {
	return c.contexts
}

// ContextMap returns the context layout in use.
func (c *Controller) ContextMap() ContextMap {
	return c.cmap
}

// ContextValid reports whether the driver may program context id: it must
// exist on the platform and belong to supervisor or a lower privilege.
func (c *Controller) ContextValid(id int) bool {
	if id < 0 || id >= c.contexts {
		return false
	}
	ctx, ok := c.cmap.Context(id)
	return ok && ctx.Mode <= PrivSupervisor
}

// sourceValid reports whether source is implemented. Source 0 is reserved.
func (c *Controller) sourceValid(source uint32) bool {
	return source != 0 && source <= c.implMax
}

func (c *Controller) contextReady(context int) bool {
	return c.harts != nil && c.ContextValid(context)
}

// SetEnabled enables or disables delivery of source to context.
func (c *Controller) SetEnabled(context int, source uint32, on bool) {
	if !c.sourceValid(source) || !c.contextReady(context) {
		slog.Debug("plic: ignoring enable", "context", context, "source", source)
		return
	}
	off := enableOff(context, source)
	word := c.global.Load32(off)
	if on {
		word |= bit(source)
	} else {
		word &^= bit(source)
	}
	c.global.Store32(off, word)
}

// Enabled reports whether source is enabled for context.
func (c *Controller) Enabled(context int, source uint32) bool {
	if !c.sourceValid(source) || !c.contextReady(context) {
		return false
	}
	return c.global.Load32(enableOff(context, source))&bit(source) != 0
}

// SetPriority sets the priority of source for all contexts. Priority 0 never
// interrupts.
func (c *Controller) SetPriority(source uint32, priority uint32) {
	if !c.sourceValid(source) {
		slog.Debug("plic: ignoring priority", "source", source)
		return
	}
	c.global.Store32(priorityOff(source), priority)
}

// Priority returns the priority of source.
func (c *Controller) Priority(source uint32) uint32 {
	if !c.sourceValid(source) {
		return 0
	}
	return c.global.Load32(priorityOff(source))
}

// Pending reports whether source has asserted and not yet been claimed.
func (c *Controller) Pending(source uint32) bool {
	if !c.sourceValid(source) {
		return false
	}
	return c.global.Load32(pendingOff(source))&bit(source) != 0
}

// SetThreshold sets the priority a source must exceed to reach context.
func (c *Controller) SetThreshold(context int, threshold uint32) {
	if !c.contextReady(context) {
		slog.Debug("plic: ignoring threshold", "context", context)
		return
	}
	c.harts.Store32(thresholdOff(context), threshold)
}

// Threshold returns the threshold of context.
func (c *Controller) Threshold(context int) uint32 {
	if !c.contextReady(context) {
		return 0
	}
	return c.harts.Load32(thresholdOff(context))
}

// Complete retires a source that was claimed on context and delegated. The
// new owner calls it once it has finished servicing the source.
func (c *Controller) Complete(context int, source uint32) {
	if !c.sourceValid(source) || !c.contextReady(context) {
		slog.Debug("plic: ignoring completion", "context", context, "source", source)
		return
	}
	c.harts.Store32(claimOff(context), source)
	if h := c.cpus[context].Load(); h != nil {
		h.handling.CompareAndSwap(source, 0)
	}
}
