package chipset

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type recordingSink struct {
	events []sinkEvent
}

type sinkEvent struct {
	Line  uint32
	Level bool
}

func (s *recordingSink) SetIRQ(line uint32, level bool) {
	s.events = append(s.events, sinkEvent{Line: line, Level: level})
}

func TestLineSetForwardsLevelChanges(t *testing.T) {
	sink := &recordingSink{}
	lines := NewLineSet(sink)

	line := lines.AllocateLine(5)
	line.SetLevel(true)
	line.SetLevel(true) // no change, not forwarded
	line.SetLevel(false)
	lines.AllocateLine(9).PulseInterrupt()

	want := []sinkEvent{
		{Line: 5, Level: true},
		{Line: 5, Level: false},
		{Line: 9, Level: true},
		{Line: 9, Level: false},
	}
	if diff := cmp.Diff(want, sink.events); diff != "" {
		t.Fatalf("sink events mismatch (-want +got):\n%s", diff)
	}
	if lines.Level(5) {
		t.Fatalf("line 5 should be low")
	}
}

func TestBroadcastEOICanReassert(t *testing.T) {
	sink := &recordingSink{}
	lines := NewLineSet(sink)
	line := lines.AllocateLine(3)

	calls := 0
	lines.RegisterEOICallback(3, func() {
		calls++
		line.SetLevel(false)
	})
	lines.RegisterEOICallback(3, nil)

	line.SetLevel(true)
	lines.BroadcastEOI(3)
	lines.BroadcastEOI(4)

	if calls != 1 {
		t.Fatalf("expected 1 EOI callback, got %d", calls)
	}
	if lines.Level(3) {
		t.Fatalf("EOI callback should have lowered line 3")
	}
}

func TestLineInterruptFromFunc(t *testing.T) {
	var levels []bool
	li := LineInterruptFromFunc(func(b bool) { levels = append(levels, b) })
	li.PulseInterrupt()
	li.SetLevel(true)

	if diff := cmp.Diff([]bool{true, false, true}, levels); diff != "" {
		t.Fatalf("levels mismatch (-want +got):\n%s", diff)
	}

	LineInterruptDetached().SetLevel(true)
	LineInterruptFromFunc(nil).PulseInterrupt()
}
