package plic

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	simplic "github.com/tinyrange/irqc/internal/devices/plic"
)

func TestHartsHandleConcurrently(t *testing.T) {
	const harts = 4

	var (
		mu   sync.Mutex
		seen = map[uint32]int{}
	)
	r := newRig(t, simplic.Config{Sources: 16, Contexts: harts * 2}, Config{
		Dispatch: DispatcherFunc(func(src uint32) Disposition {
			mu.Lock()
			seen[src]++
			mu.Unlock()
			return HandledLocally
		}),
	})
	r.init(t)

	hs := make([]*Hart, harts)
	for i := range hs {
		hs[i] = r.hart(t, i)
		src := uint32(i + 1)
		r.c.SetPriority(src, 1)
		r.c.SetEnabled(hs[i].Context(), src, true)
	}
	for i := range hs {
		r.sim.SetIRQ(uint32(i+1), true)
		r.sim.SetIRQ(uint32(i+1), false)
	}

	var wg sync.WaitGroup
	for i, h := range hs {
		i, h := i, h
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := h.Handle(); got != uint32(i+1) {
				t.Errorf("hart %d claimed %d", i, got)
			}
			if got := h.Handle(); got != 0 {
				t.Errorf("hart %d claimed %d twice", i, got)
			}
		}()
	}
	wg.Wait()

	want := map[uint32]int{1: 1, 2: 1, 3: 1, 4: 1}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Fatalf("dispatch mismatch (-want +got):\n%s", diff)
	}
}

func TestThresholdMasksHart(t *testing.T) {
	var n int
	r := newRig(t, simplic.Config{Sources: 8, Contexts: 2}, Config{
		Dispatch: DispatcherFunc(func(uint32) Disposition { n++; return HandledLocally }),
	})
	r.init(t)
	h := r.hart(t, 0)

	r.c.SetPriority(2, 3)
	r.c.SetEnabled(h.Context(), 2, true)
	r.c.SetThreshold(h.Context(), 3)
	r.sim.SetIRQ(2, true)

	if got := h.Handle(); got != 0 || n != 0 {
		t.Fatalf("source at threshold was claimed (%d)", got)
	}
	r.c.SetThreshold(h.Context(), 2)
	if got := h.Handle(); got != 2 || n != 1 {
		t.Fatalf("Handle = %d (dispatched %d), want 2", got, n)
	}
}
