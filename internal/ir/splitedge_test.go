package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCriticalEdges(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)
	funcType := ctx.FunctionType(ctx.I32Type(), []Type{ctx.I1Type(), ctx.I1Type(), ctx.I32Type(), ctx.I32Type()}, false)
	f := unit.AddFunction("f", funcType, LinkageInternal)

	a := f.AppendBlock("a")
	bb := f.AppendBlock("b")
	c := f.AppendBlock("c")
	d := f.AppendBlock("d")

	b := NewBuilder(ctx)
	// b has two successors and d has two predecessors with a φ, so b→d is
	// critical; c→d is not (c has one successor), and the edges into c are
	// left alone because c holds no φ.
	b.SetBlock(a)
	b.CreateCondJump(bb, c, f.Arg(0))
	b.SetBlock(bb)
	b.CreateCondJump(d, c, f.Arg(1))
	b.SetBlock(c)
	b.CreateJump(d)
	b.SetBlock(d)
	phi := b.CreatePhi(ctx.I32Type(), "merge",
		PhiEdge{Value: f.Arg(2), Block: bb},
		PhiEdge{Value: f.Arg(3), Block: c})
	b.CreateRet(phi)

	changed := NewSplitCriticalEdges(ctx).RunOnFunction(f)
	require.True(t, changed)

	// the b→d edge was critical; c→d was not (c has one successor)
	edges := phi.PhiIncoming()
	require.Len(t, edges, 2)
	for _, edge := range edges {
		_, isPred := d.Predecessors()[edge.Block]
		assert.True(t, isPred, "φ incoming %s must be a predecessor", edge.Block.Name())
		if edge.Block != c {
			// the interposed block holds a single jump to d
			require.Len(t, edge.Block.Instructions(), 1)
			assert.Equal(t, OpJump, edge.Block.Instructions()[0].Opcode())
		}
	}
	assert.NotContains(t, d.Predecessors(), bb, "critical edge must be rerouted")
	verifyUseDefConsistency(t, f)
}

func TestSplitLeavesNonCriticalAlone(t *testing.T) {
	ctx := NewContext()
	f, _, left, right, merge := diamond(t, ctx)
	b := NewBuilder(ctx)
	b.SetBlock(merge)
	b.SetInsertPoint(merge.First())
	b.SetInsertBefore(true)
	b.CreatePhi(ctx.I32Type(), "m",
		PhiEdge{Value: ctx.ConstantInt(ctx.I32Type(), 1), Block: left},
		PhiEdge{Value: ctx.ConstantInt(ctx.I32Type(), 2), Block: right})

	changed := NewSplitCriticalEdges(ctx).RunOnFunction(f)
	assert.False(t, changed, "left and right have single successors")
	assert.Len(t, f.Blocks(), 4)
}
