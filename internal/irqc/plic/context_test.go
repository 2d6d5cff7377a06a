package plic

import "testing"

func TestContextMapsAreBijective(t *testing.T) {
	tests := []struct {
		name  string
		m     ContextMap
		harts int
		modes []Privilege
		ids   int
	}{
		{"pair per hart", PairPerHart{Contexts: 8}, 4, []Privilege{PrivMachine, PrivSupervisor}, 8},
		{"pair per hart odd", PairPerHart{Contexts: 5}, 2, []Privilege{PrivMachine, PrivSupervisor}, 5},
		{"supervisor only", SupervisorOnly{Contexts: 3}, 3, []Privilege{PrivSupervisor}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for hart := 0; hart < tt.harts; hart++ {
				for _, mode := range tt.modes {
					ctx := Context{Hart: hart, Mode: mode}
					id, ok := tt.m.ID(ctx)
					if !ok {
						t.Fatalf("ID(%v) not mapped", ctx)
					}
					back, ok := tt.m.Context(id)
					if !ok || back != ctx {
						t.Fatalf("Context(ID(%v)) = %v, %v", ctx, back, ok)
					}
				}
			}
			for id := 0; id < tt.ids; id++ {
				ctx, ok := tt.m.Context(id)
				if !ok {
					t.Fatalf("Context(%d) not mapped", id)
				}
				back, ok := tt.m.ID(ctx)
				if !ok || back != id {
					t.Fatalf("ID(Context(%d)) = %d, %v", id, back, ok)
				}
			}
		})
	}
}

func TestPairPerHartLayout(t *testing.T) {
	m := PairPerHart{Contexts: 4}

	if id, _ := m.ID(Context{Hart: 1, Mode: PrivMachine}); id != 2 {
		t.Fatalf("hart 1 machine context = %d, want 2", id)
	}
	if id, _ := m.ID(Context{Hart: 1, Mode: PrivSupervisor}); id != 3 {
		t.Fatalf("hart 1 supervisor context = %d, want 3", id)
	}

	for _, ctx := range []Context{
		{Hart: 0, Mode: PrivUser},
		{Hart: 2, Mode: PrivMachine},
		{Hart: -1, Mode: PrivSupervisor},
	} {
		if id, ok := m.ID(ctx); ok {
			t.Errorf("ID(%v) = %d, expected unmapped", ctx, id)
		}
	}
	if ctx, ok := m.Context(4); ok || ctx.Hart != -1 {
		t.Errorf("Context(4) = %v, %v, expected unmapped", ctx, ok)
	}
}

func TestContextString(t *testing.T) {
	if got := (Context{Hart: 2, Mode: PrivSupervisor}).String(); got != "hart2/S" {
		t.Fatalf("String = %q", got)
	}
	if got := Privilege(2).String(); got != "Privilege(2)" {
		t.Fatalf("String = %q", got)
	}
}
