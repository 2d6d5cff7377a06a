package plic

import "fmt"

// Disposition is the dispatch layer's verdict on a claimed source.
type Disposition int

const (
	// HandledLocally means the hypervisor finished servicing the source and
	// the driver completes it.
	HandledLocally Disposition = iota
	// Delegated means the source now belongs to someone else, typically a
	// guest, who completes it later through Controller.Complete.
	Delegated
)

func (d Disposition) String() string {
	switch d {
	case HandledLocally:
		return "handled-locally"
	case Delegated:
		return "delegated"
	default:
		return fmt.Sprintf("Disposition(%d)", int(d))
	}
}

// completes reports whether the driver writes the completion register.
// Unknown values do not complete.
func (d Disposition) completes() bool {
	switch d {
	case HandledLocally:
		return true
	default:
		return false
	}
}

// Dispatcher decides who services a claimed source. It runs in trap context
// and must not block.
type Dispatcher interface {
	HandleSource(source uint32) Disposition
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(source uint32) Disposition

func (f DispatcherFunc) HandleSource(source uint32) Disposition { return f(source) }
