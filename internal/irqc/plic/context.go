package plic

import "fmt"

// Privilege is a RISC-V privilege level, encoded as in the mstatus.MPP field.
type Privilege uint8

const (
	PrivUser       Privilege = 0
	PrivSupervisor Privilege = 1
	PrivMachine    Privilege = 3
)

func (p Privilege) String() string {
	switch p {
	case PrivUser:
		return "U"
	case PrivSupervisor:
		return "S"
	case PrivMachine:
		return "M"
	default:
		return fmt.Sprintf("Privilege(%d)", uint8(p))
	}
}

// Context is the (hart, privilege) pair a PLIC context delivers to.
type Context struct {
	Hart int
	Mode Privilege
}

func (c Context) String() string {
	return fmt.Sprintf("hart%d/%s", c.Hart, c.Mode)
}

// ContextMap translates between linear context ids and the harts they serve.
// Context layout is vendor defined and platforms supply their own. ID and
// Context must be inverses over their valid domains.
type ContextMap interface {
	ID(ctx Context) (int, bool)
	Context(id int) (Context, bool)
}

// PairPerHart is the SiFive layout: each hart owns two consecutive contexts,
// machine mode at 2*hart and supervisor mode at 2*hart+1.
type PairPerHart struct {
	Contexts int
}

func (m PairPerHart) ID(ctx Context) (int, bool) {
	if ctx.Hart < 0 {
		return -1, false
	}
	var id int
	switch ctx.Mode {
	case PrivMachine:
		id = ctx.Hart * 2
	case PrivSupervisor:
		id = ctx.Hart*2 + 1
	default:
		return -1, false
	}
	if id >= m.Contexts {
		return -1, false
	}
	return id, true
}

func (m PairPerHart) Context(id int) (Context, bool) {
	if id < 0 || id >= m.Contexts {
		return Context{Hart: -1}, false
	}
	mode := PrivSupervisor
	if id%2 == 0 {
		mode = PrivMachine
	}
	return Context{Hart: id / 2, Mode: mode}, true
}

// SupervisorOnly is the layout of platforms that wire only supervisor
// contexts to the PLIC, one per hart, with the context id equal to the hart id.
type SupervisorOnly struct {
	Contexts int
}

func (m SupervisorOnly) ID(ctx Context) (int, bool) {
	if ctx.Mode != PrivSupervisor || ctx.Hart < 0 || ctx.Hart >= m.Contexts {
		return -1, false
	}
	return ctx.Hart, true
}

func (m SupervisorOnly) Context(id int) (Context, bool) {
	if id < 0 || id >= m.Contexts {
		return Context{Hart: -1}, false
	}
	return Context{Hart: id, Mode: PrivSupervisor}, true
}

var (
	_ ContextMap = PairPerHart{}
	_ ContextMap = SupervisorOnly{}
)
