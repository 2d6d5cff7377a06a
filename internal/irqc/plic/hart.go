package plic

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Hart is the per-hart driver state returned by CPUInit. Each Hart must only
// be used by the hart it was created for.
type Hart struct {
	c       *Controller
	hart    int
	context int

	handling atomic.Uint32
}

// CPUInit resolves the supervisor context of the calling hart and opens it to
// every enabled source by setting its threshold to 0.
func (c *Controller) CPUInit(cpu CoreIdentity) (*Hart, error) {
	if c.harts == nil {
		return nil, ErrNotInitialized
	}

	hart := cpu.CoreID()
	id, ok := c.cmap.ID(Context{Hart: hart, Mode: PrivSupervisor})
	if !ok || !c.ContextValid(id) {
		return nil, fmt.Errorf("%w: hart %d has no supervisor context", ErrInvalidContext, hart)
	}

	c.harts.Store32(thresholdOff(id), 0)

	h := &Hart{c: c, hart: hart, context: id}
	c.cpus[id].Store(h)

	slog.Debug("plic: hart initialized", "hart", hart, "context", id)
	return h, nil
}

// ID returns the hart id.
func (h *Hart) ID() int { return h.hart }

// Context returns the context id the hart claims from.
func (h *Hart) Context() int { return h.context }

// Handling returns the source the hart is dispatching. Once dispatch
// returns, a delegated source stays reported until Controller.Complete
// retires it; otherwise the previous value is restored. It is 0 when nothing
// is in flight.
func (h *Hart) Handling() uint32 { return h.handling.Load() }

// Handle services one external interrupt: it claims the best pending source
// of the hart's context, passes it to the dispatcher, and completes it unless
// it was delegated. It returns the claimed source, or 0 if nothing was
// pending. Handle is called from the trap path and never blocks.
func (h *Hart) Handle() uint32 {
	regs := h.c.harts
	off := claimOff(h.context)

	source := regs.Load32(off)
	if source == 0 {
		return 0
	}

	prev := h.handling.Swap(source)
	d := h.c.dispatch.HandleSource(source)

	if d.completes() {
		regs.Store32(off, source)
		h.handling.CompareAndSwap(source, prev)
	}
	return source
}
