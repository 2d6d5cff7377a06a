// Package plic models a platform-level interrupt controller at register
// level, for exercising the hypervisor's PLIC driver without hardware.
package plic

import (
	"fmt"
	"sync"

	"github.com/tinyrange/irqc/internal/chipset"
	"github.com/tinyrange/irqc/internal/hv/mmio"
)

// PLIC register offsets
const (
	PriorityBase = 0x000000 // Priority registers (1024 sources)
	PendingBase  = 0x001000 // Pending bits
	EnableBase   = 0x002000 // Enable bits per context
	ContextBase  = 0x200000 // Threshold and claim per context
)

// PLIC context strides
const (
	EnableStride  = 0x80
	ContextStride = 0x1000
)

// MaxSources is the architectural number of interrupt sources, including the
// reserved source 0.
const MaxSources = 1024

// MaxContexts is the number of contexts whose enable banks fit below ContextBase.
const MaxContexts = (ContextBase - EnableBase) / EnableStride

const words = MaxSources / 32

// Config describes one hardware instance.
type Config struct {
	// Sources is the highest implemented source id. Priority registers above
	// it read as zero.
	Sources int
	// Contexts is the number of interrupt targets.
	Contexts int
	// PriorityMask selects the implemented priority and threshold bits.
	// Zero means all 32 bits are implemented.
	PriorityMask uint32
}

// EventKind classifies entries in the event log.
type EventKind int

const (
	EventClaim EventKind = iota
	EventComplete
)

func (k EventKind) String() string {
	switch k {
	case EventClaim:
		return "claim"
	case EventComplete:
		return "complete"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event records a claim read that returned a source, or a completion write.
type Event struct {
	Kind    EventKind
	Context int
	Source  uint32
}

// PLIC implements the Platform Level Interrupt Controller
type PLIC struct {
	mu sync.Mutex

	sources  uint32
	contexts int
	prioMask uint32

	// Priority for each source (0 = never interrupts)
	priority [MaxSources]uint32

	// Pending bits (1 bit per source)
	pending [words]uint32

	// Gateway state: input level and claimed-but-not-completed
	level    [words]uint32
	inFlight [words]uint32

	// Enable bits per context
	enable [][words]uint32

	// Threshold per context
	threshold []uint32

	outputs []chipset.LineInterrupt
	eoi     func(source uint32)

	events   []Event
	synced   bool
	unsynced int
}

// New creates a PLIC with every register cleared. Real hardware makes no such
// promise; use Scramble to model an uninitialised controller.
func New(cfg Config) (*PLIC, error) {
	if cfg.Sources < 0 || cfg.Sources >= MaxSources {
		return nil, fmt.Errorf("plic: implemented sources %d out of range [0, %d)", cfg.Sources, MaxSources)
	}
	if cfg.Contexts <= 0 || cfg.Contexts > MaxContexts {
		return nil, fmt.Errorf("plic: contexts %d out of range [1, %d]", cfg.Contexts, MaxContexts)
	}
	mask := cfg.PriorityMask
	if mask == 0 {
		mask = ^uint32(0)
	}

	p := &PLIC{
		sources:   uint32(cfg.Sources),
		contexts:  cfg.Contexts,
		prioMask:  mask,
		enable:    make([][words]uint32, cfg.Contexts),
		threshold: make([]uint32, cfg.Contexts),
		outputs:   make([]chipset.LineInterrupt, cfg.Contexts),
	}
	for i := range p.outputs {
		p.outputs[i] = chipset.LineInterruptDetached()
	}
	return p, nil
}

// Size implements mmio.Device
func (p *PLIC) Size() uint64 {
	return ContextBase + uint64(p.contexts)*ContextStride
}

// ConnectContext routes the external interrupt output of context to line.
// The line is driven with the PLIC lock held and must not call back into it.
func (p *PLIC) ConnectContext(context int, line chipset.LineInterrupt) {
	if context < 0 || context >= p.contexts || line == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outputs[context] = line
	line.SetLevel(p.hasPendingInterrupt(context))
}

// OnComplete registers fn to be called, without the PLIC lock held, after a
// completion retires a source.
func (p *PLIC) OnComplete(fn func(source uint32)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eoi = fn
}

// Sync implements mmio.Syncer.
func (p *PLIC) Sync() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.synced = true
}

// UnsyncedAccesses reports how many register accesses arrived before the
// first barrier.
func (p *PLIC) UnsyncedAccesses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unsynced
}

// Events returns a copy of the claim/complete log.
func (p *PLIC) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// ResetEvents empties the event log.
func (p *PLIC) ResetEvents() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// Scramble fills priorities, enables and thresholds with garbage, as found
// after a warm reset.
func (p *PLIC) Scramble(seed uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	x := seed | 1
	next := func() uint32 {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		return x
	}
	for src := uint32(1); src <= p.sources; src++ {
		p.priority[src] = next() & p.prioMask
	}
	for ctx := range p.enable {
		for w := range p.enable[ctx] {
			p.enable[ctx][w] = next() & p.implementedMask(w)
		}
		p.threshold[ctx] = next() & p.prioMask
	}
	p.updateInterrupt()
}

// Read implements mmio.Device
func (p *PLIC) Read(offset uint64, size int) (uint64, error) {
	if size != 4 {
		return 0, fmt.Errorf("plic: invalid read size %d at 0x%x", size, offset)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.noteAccess()

	switch {
	case offset < PendingBase:
		source := uint32(offset / 4)
		if source >= 1 && source <= p.sources {
			return uint64(p.priority[source]), nil
		}

	case offset < EnableBase:
		word := (offset - PendingBase) / 4
		if word < words {
			return uint64(p.pending[word]), nil
		}

	case offset < ContextBase:
		rel := offset - EnableBase
		context := int(rel / EnableStride)
		word := (rel % EnableStride) / 4
		if context < p.contexts && word < words {
			return uint64(p.enable[context][word]), nil
		}

	default:
		rel := offset - ContextBase
		context := int(rel / ContextStride)
		if context < p.contexts {
			switch rel % ContextStride {
			case 0:
				return uint64(p.threshold[context]), nil
			case 4:
				return uint64(p.claim(context)), nil
			}
		}
	}

	return 0, nil
}

// Write implements mmio.Device
func (p *PLIC) Write(offset uint64, size int, value uint64) error {
	if size != 4 {
		return fmt.Errorf("plic: invalid write size %d at 0x%x", size, offset)
	}

	retired, eoi := p.write(offset, uint32(value))
	if retired != 0 && eoi != nil {
		eoi(retired)
	}
	return nil
}

func (p *PLIC) write(offset uint64, value uint32) (uint32, func(uint32)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.noteAccess()

	var retired uint32

	switch {
	case offset < PendingBase:
		source := uint32(offset / 4)
		if source >= 1 && source <= p.sources { // Source 0 is reserved
			p.priority[source] = value & p.prioMask
		}

	case offset < EnableBase:
		// Pending bits are read-only

	case offset < ContextBase:
		rel := offset - EnableBase
		context := int(rel / EnableStride)
		word := int((rel % EnableStride) / 4)
		if context < p.contexts && word < words {
			p.enable[context][word] = value & p.implementedMask(word)
		}

	default:
		rel := offset - ContextBase
		context := int(rel / ContextStride)
		if context < p.contexts {
			switch rel % ContextStride {
			case 0:
				p.threshold[context] = value & p.prioMask
			case 4:
				retired = p.complete(context, value)
			}
		}
	}

	p.updateInterrupt()
	return retired, p.eoi
}

// SetIRQ implements chipset.InterruptSink. Each source has a level-triggered
// gateway: a high line pends once and re-pends only after completion.
func (p *PLIC) SetIRQ(source uint32, level bool) {
	if source == 0 || source > p.sources {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	word, bit := source/32, uint32(1)<<(source%32)
	if level {
		p.level[word] |= bit
		if p.inFlight[word]&bit == 0 {
			p.pending[word] |= bit
		}
	} else {
		p.level[word] &^= bit
	}

	p.updateInterrupt()
}

func (p *PLIC) noteAccess() {
	if !p.synced {
		p.unsynced++
	}
}

// implementedMask returns the bits of enable/pending word w that correspond to
// implemented sources.
func (p *PLIC) implementedMask(w int) uint32 {
	var mask uint32
	for bit := 0; bit < 32; bit++ {
		src := uint32(w*32 + bit)
		if src >= 1 && src <= p.sources {
			mask |= 1 << bit
		}
	}
	return mask
}

// claim claims the highest priority pending interrupt for a context.
// Ties go to the lowest source id.
func (p *PLIC) claim(context int) uint32 {
	best := p.best(context)
	if best == 0 {
		return 0
	}

	word, bit := best/32, uint32(1)<<(best%32)
	p.pending[word] &^= bit
	p.inFlight[word] |= bit
	p.events = append(p.events, Event{Kind: EventClaim, Context: context, Source: best})

	p.updateInterrupt()
	return best
}

// complete signals completion of interrupt handling. Completions for sources
// that are not enabled for the context are ignored, as on SiFive parts.
func (p *PLIC) complete(context int, source uint32) uint32 {
	p.events = append(p.events, Event{Kind: EventComplete, Context: context, Source: source})

	if source == 0 || source > p.sources {
		return 0
	}
	word, bit := source/32, uint32(1)<<(source%32)
	if p.enable[context][word]&bit == 0 || p.inFlight[word]&bit == 0 {
		return 0
	}

	p.inFlight[word] &^= bit
	if p.level[word]&bit != 0 {
		p.pending[word] |= bit
	}
	return source
}

func (p *PLIC) best(context int) uint32 {
	var bestSource, bestPriority uint32
	for source := uint32(1); source <= p.sources; source++ {
		word, bit := source/32, uint32(1)<<(source%32)
		if p.pending[word]&bit == 0 || p.enable[context][word]&bit == 0 {
			continue
		}
		priority := p.priority[source]
		if priority <= p.threshold[context] {
			continue
		}
		if priority > bestPriority {
			bestPriority = priority
			bestSource = source
		}
	}
	return bestSource
}

// updateInterrupt drives every context output from the current state.
func (p *PLIC) updateInterrupt() {
	for context, out := range p.outputs {
		out.SetLevel(p.hasPendingInterrupt(context))
	}
}

// hasPendingInterrupt checks if there's a pending interrupt above threshold
func (p *PLIC) hasPendingInterrupt(context int) bool {
	return p.best(context) != 0
}

var (
	_ mmio.Device           = (*PLIC)(nil)
	_ mmio.Syncer           = (*PLIC)(nil)
	_ chipset.InterruptSink = (*PLIC)(nil)
)
