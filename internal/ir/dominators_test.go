package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond builds entry → (left | right) → merge.
func diamond(t *testing.T, ctx *Context) (*Function, *Block, *Block, *Block, *Block) {
	t.Helper()
	unit := NewUnit("test", ctx)
	funcType := ctx.FunctionType(ctx.VoidType(), []Type{ctx.I1Type()}, false)
	f := unit.AddFunction("f", funcType, LinkageInternal)

	entry := f.AppendBlock("entry")
	left := f.AppendBlock("left")
	right := f.AppendBlock("right")
	merge := f.AppendBlock("merge")

	b := NewBuilder(ctx)
	b.SetBlock(entry)
	b.CreateCondJump(left, right, f.Arg(0))
	b.SetBlock(left)
	b.CreateJump(merge)
	b.SetBlock(right)
	b.CreateJump(merge)
	b.SetBlock(merge)
	b.CreateRet(nil)
	return f, entry, left, right, merge
}

func TestDominatorsDiamond(t *testing.T) {
	ctx := NewContext()
	f, entry, left, right, merge := diamond(t, ctx)
	tree := f.Dominators()

	assert.Nil(t, tree.IDom(entry))
	assert.Same(t, entry, tree.IDom(left))
	assert.Same(t, entry, tree.IDom(right))
	assert.Same(t, entry, tree.IDom(merge))

	// entry dominates every reachable block; every block dominates itself
	for _, b := range f.Blocks() {
		assert.True(t, tree.Dominates(entry, b))
		assert.True(t, tree.Dominates(b, b))
	}
	assert.False(t, tree.Dominates(left, merge))
	assert.False(t, tree.Dominates(merge, left))
}

func TestDominanceFrontiers(t *testing.T) {
	ctx := NewContext()
	f, _, left, right, merge := diamond(t, ctx)
	tree := f.Dominators()

	assert.Equal(t, []*Block{merge}, tree.Frontier(left))
	assert.Equal(t, []*Block{merge}, tree.Frontier(right))
	assert.Empty(t, tree.Frontier(merge))
}

func TestDominatorsLoop(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)
	funcType := ctx.FunctionType(ctx.VoidType(), []Type{ctx.I1Type()}, false)
	f := unit.AddFunction("f", funcType, LinkageInternal)

	entry := f.AppendBlock("entry")
	header := f.AppendBlock("header")
	body := f.AppendBlock("body")
	exit := f.AppendBlock("exit")

	b := NewBuilder(ctx)
	b.SetBlock(entry)
	b.CreateJump(header)
	b.SetBlock(header)
	b.CreateCondJump(body, exit, f.Arg(0))
	b.SetBlock(body)
	b.CreateJump(header)
	b.SetBlock(exit)
	b.CreateRet(nil)

	tree := f.Dominators()
	assert.Same(t, header, tree.IDom(body))
	assert.Same(t, header, tree.IDom(exit))
	assert.True(t, tree.Dominates(header, body))

	loops := f.Heuristics().Loops()
	require.Len(t, loops, 1)
	assert.Same(t, header, loops[0].Header)
	assert.Equal(t, 1, loops[0].Depth)
	assert.True(t, loops[0].Contains(body))
	assert.False(t, loops[0].Contains(exit))
}

func TestDominatorTreeRecomputedAfterMutation(t *testing.T) {
	ctx := NewContext()
	f, entry, _, _, merge := diamond(t, ctx)
	first := f.Dominators()

	extra := f.AppendBlock("extra")
	b := NewBuilder(ctx)
	b.SetBlock(extra)
	b.CreateJump(merge)
	entry.Terminator().ReplaceOperand(f.Blocks()[1], extra)

	second := f.Dominators()
	assert.NotSame(t, first, second, "CFG mutation must invalidate the cached tree")
}
