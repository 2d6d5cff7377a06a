package plic

import "github.com/tinyrange/irqc/internal/hv"

// Global register block.
const (
	priorityBase = 0x000000 // one word per source
	pendingBase  = 0x001000 // one bit per source
	enableBase   = 0x002000 // one bitmap per context
	enableStride = 0x80
)

// Per-context register block, HartRegOffset above the controller base.
const (
	HartRegOffset = 0x200000
	hartStride    = 0x1000

	thresholdReg = 0x0
	claimReg     = 0x4 // read claims, write completes
)

// DefaultMaxSources is the architectural source limit and the default bound
// for the source scan.
const DefaultMaxSources = 1024

// enableWords is the number of enable words per context.
const enableWords = DefaultMaxSources / 32

const pageSize = 0x1000

func priorityOff(source uint32) uint64 { return priorityBase + uint64(source)*4 }
func pendingOff(source uint32) uint64  { return pendingBase + uint64(source/32)*4 }

func enableOff(context int, source uint32) uint64 {
	return enableBase + uint64(context)*enableStride + uint64(source/32)*4
}

func thresholdOff(context int) uint64 { return uint64(context)*hartStride + thresholdReg }
func claimOff(context int) uint64     { return uint64(context)*hartStride + claimReg }

func bit(source uint32) uint32 { return 1 << (source % 32) }

// GlobalSize is the mapped size of the global block for the given context count.
func GlobalSize(contexts int) uint64 {
	return hv.AlignUp(enableBase+uint64(contexts)*enableStride, pageSize)
}

// HartSize is the mapped size of the per-context block.
func HartSize(contexts int) uint64 {
	return uint64(contexts) * hartStride
}
