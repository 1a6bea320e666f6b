package isel

import (
	"sable/internal/ir"
	"sable/internal/mir"
	"sable/internal/pass"
)

// Emitter is the selection pass's surface a pattern's emit callback uses:
// recursive materialization of operands the tile does not cover, plus the
// per-function output state.
type Emitter interface {
	// EmitOrGet materializes n into b, or returns the cached operand from a
	// previous materialization. With autoextract, ExtractValue nodes are
	// resolved to their aggregate's field register first.
	EmitOrGet(n Node, b *mir.Block, autoextract bool) mir.Operand
	// Output is the machine function being filled.
	Output() *mir.Function
	// Context reaches the type/constant tables.
	Context() *ir.Context
	// MIRBlock maps a Root to its machine block, for branch targets.
	MIRBlock(r *Root) *mir.Block
	// Layout is the target data layout.
	Layout() ir.DataLayout
}

// Pattern is one target tile: a structural matcher over a node and the
// operands it absorbs, a cost, and an emit callback producing the MIR
// operand that represents the node's result.
type Pattern struct {
	// MinOptLevel gates the pattern: it only applies at this level or above.
	MinOptLevel pass.OptimizationLevel
	// Cost is the latency+size proxy summed during tiling.
	Cost uint32
	// Covered lists operand indices absorbed into the tile; absorbed
	// operands are never emitted standalone.
	Covered []int
	// Match tests the structural shape; nil means always.
	Match func(n Node, layout ir.DataLayout) bool
	// Emit appends MIR to b and returns the operand holding n's result
	// (nil for pure control flow).
	Emit func(e Emitter, b *mir.Block, n Node) mir.Operand
}

func (p *Pattern) Covers(idx int) bool {
	for _, c := range p.Covered {
		if c == idx {
			return true
		}
	}
	return false
}
