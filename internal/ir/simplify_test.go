package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimplifyRemovesUnreachable(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)
	funcType := ctx.FunctionType(ctx.VoidType(), nil, false)
	f := unit.AddFunction("f", funcType, LinkageInternal)

	entry := f.AppendBlock("entry")
	dead := f.AppendBlock("dead")
	b := NewBuilder(ctx)
	b.SetBlock(entry)
	b.CreateRet(nil)
	b.SetBlock(dead)
	b.CreateRet(nil)

	changed := NewCFGSimplify().RunOnFunction(f)
	assert.True(t, changed)
	require.Len(t, f.Blocks(), 1)
	assert.Same(t, entry, f.Blocks()[0])
}

func TestSimplifyMergesStraightLine(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)
	funcType := ctx.FunctionType(ctx.I32Type(), []Type{ctx.I32Type()}, false)
	f := unit.AddFunction("f", funcType, LinkageInternal)

	entry := f.AppendBlock("entry")
	tail := f.AppendBlock("tail")
	b := NewBuilder(ctx)
	b.SetBlock(entry)
	sum := b.CreateAdd(f.Arg(0), ctx.ConstantInt(ctx.I32Type(), 1), "sum")
	b.CreateJump(tail)
	b.SetBlock(tail)
	b.CreateRet(sum)

	changed := NewCFGSimplify().RunOnFunction(f)
	assert.True(t, changed)
	require.Len(t, f.Blocks(), 1)
	instrs := f.Blocks()[0].Instructions()
	require.Len(t, instrs, 2)
	assert.Equal(t, OpAdd, instrs[0].Opcode())
	assert.Equal(t, OpRet, instrs[1].Opcode())
	verifyUseDefConsistency(t, f)
}

func TestSimplifyForwardsEmptyJumpBlocks(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)
	funcType := ctx.FunctionType(ctx.VoidType(), []Type{ctx.I1Type()}, false)
	f := unit.AddFunction("f", funcType, LinkageInternal)

	entry := f.AppendBlock("entry")
	hop := f.AppendBlock("hop")
	other := f.AppendBlock("other")
	final := f.AppendBlock("final")

	b := NewBuilder(ctx)
	b.SetBlock(entry)
	b.CreateCondJump(hop, other, f.Arg(0))
	b.SetBlock(hop)
	b.CreateJump(final)
	b.SetBlock(other)
	b.CreateJump(final)
	b.SetBlock(final)
	b.CreateRet(nil)

	changed := NewCFGSimplify().RunOnFunction(f)
	assert.True(t, changed)
	// both edges of the conditional now reach final directly
	term := entry.Terminator()
	require.NotNil(t, term)
	assert.Same(t, final, term.Operand(0).(*Block))
	assert.Same(t, final, term.Operand(1).(*Block))
}

func TestSimplifyIdempotent(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)
	funcType := ctx.FunctionType(ctx.VoidType(), nil, false)
	f := unit.AddFunction("f", funcType, LinkageInternal)
	entry := f.AppendBlock("entry")
	tail := f.AppendBlock("tail")
	b := NewBuilder(ctx)
	b.SetBlock(entry)
	b.CreateJump(tail)
	b.SetBlock(tail)
	b.CreateRet(nil)

	NewCFGSimplify().RunOnFunction(f)
	assert.False(t, NewCFGSimplify().RunOnFunction(f))
}

func TestDCERemovesUnusedPureInstructions(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)
	funcType := ctx.FunctionType(ctx.I32Type(), []Type{ctx.I32Type()}, false)
	f := unit.AddFunction("f", funcType, LinkageInternal)
	f.AppendBlock("entry")

	b := NewBuilder(ctx)
	b.SetBlock(f.Entry())
	b.CreateAdd(f.Arg(0), f.Arg(0), "unused")
	kept := b.CreateAdd(f.Arg(0), ctx.ConstantInt(ctx.I32Type(), 1), "kept")
	b.CreateRet(kept)

	changed := NewDCE().RunOnFunction(f)
	assert.True(t, changed)
	require.Len(t, f.Entry().Instructions(), 2)
	assert.Equal(t, OpAdd, f.Entry().Instructions()[0].Opcode())
}
