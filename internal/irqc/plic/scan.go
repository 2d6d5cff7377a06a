package plic

import "github.com/tinyrange/irqc/internal/hv/mmio"

// scanSources finds the highest implemented source id below limit.
// Unimplemented priority registers ignore writes and read as zero, so the
// first source that does not hold an all-ones pattern ends the scan. Scanned
// registers are left at zero.
func scanSources(global mmio.Window, limit uint32) uint32 {
	for src := uint32(1); src < limit; src++ {
		off := priorityOff(src)
		global.Store32(off, ^uint32(0))
		if global.Load32(off) == 0 {
			return src - 1
		}
		global.Store32(off, 0)
	}
	return limit - 1
}
