package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFunction(t *testing.T, ctx *Context, params ...Type) (*Unit, *Function, *Builder) {
	t.Helper()
	unit := NewUnit("test", ctx)
	funcType := ctx.FunctionType(ctx.I32Type(), params, false)
	f := unit.AddFunction("f", funcType, LinkageExternal)
	f.AppendBlock("entry")
	b := NewBuilder(ctx)
	b.SetBlock(f.Entry())
	return unit, f, b
}

func TestBuilderAppendsAndLinksUses(t *testing.T) {
	ctx := NewContext()
	_, f, b := testFunction(t, ctx, ctx.I32Type(), ctx.I32Type())

	sum := b.CreateAdd(f.Arg(0), f.Arg(1), "sum")
	b.CreateRet(sum)

	require.Len(t, f.Entry().Instructions(), 2)
	inst := sum.(*Instruction)
	assert.Equal(t, OpAdd, inst.Opcode())
	assert.Contains(t, f.Arg(0).Uses(), inst)
	assert.Contains(t, f.Arg(1).Uses(), inst)
	assert.Len(t, sum.Uses(), 1)
}

func TestFolderConstantArithmetic(t *testing.T) {
	ctx := NewContext()
	_, f, b := testFunction(t, ctx)

	five := ctx.ConstantInt(ctx.I32Type(), 5)
	three := ctx.ConstantInt(ctx.I32Type(), 3)

	sum := b.CreateAdd(five, three, "")
	c, ok := sum.(*ConstantInt)
	require.True(t, ok, "constant operands must fold")
	assert.EqualValues(t, 8, c.Value())

	// a folded return must not append anything
	assert.Empty(t, f.Entry().Instructions())

	cmp := b.CreateCmp(OpICmpLt, three, five, "")
	assert.Same(t, ctx.True(), cmp)
}

func TestFolderWrapsTwosComplement(t *testing.T) {
	ctx := NewContext()
	_, _, b := testFunction(t, ctx)

	big := ctx.ConstantInt(ctx.I8Type(), 127)
	one := ctx.ConstantInt(ctx.I8Type(), 1)
	wrapped := b.CreateAdd(big, one, "")
	c := wrapped.(*ConstantInt)
	assert.EqualValues(t, -128, c.Value())
}

func TestFolderDivisionByZeroDoesNotFold(t *testing.T) {
	ctx := NewContext()
	_, f, b := testFunction(t, ctx)

	lhs := ctx.ConstantInt(ctx.I32Type(), 9)
	zero := ctx.ConstantInt(ctx.I32Type(), 0)
	div := b.CreateIDiv(lhs, zero, "")

	_, isInstruction := div.(*Instruction)
	assert.True(t, isInstruction, "division by zero stays a runtime instruction")
	assert.Len(t, f.Entry().Instructions(), 1)
}

func TestBuilderCursorAfterFold(t *testing.T) {
	ctx := NewContext()
	_, f, b := testFunction(t, ctx, ctx.I32Type())

	first := b.CreateAdd(f.Arg(0), ctx.ConstantInt(ctx.I32Type(), 1), "a")
	// a folded create must leave the cursor on first
	b.CreateAdd(ctx.ConstantInt(ctx.I32Type(), 2), ctx.ConstantInt(ctx.I32Type(), 2), "")
	second := b.CreateAdd(f.Arg(0), ctx.ConstantInt(ctx.I32Type(), 2), "b")

	instrs := f.Entry().Instructions()
	require.Len(t, instrs, 2)
	assert.Same(t, first, Value(instrs[0]))
	assert.Same(t, second, Value(instrs[1]))
}

func TestCondJumpCollapsesOnConstant(t *testing.T) {
	ctx := NewContext()
	_, f, b := testFunction(t, ctx)
	then := f.AppendBlock("then")
	els := f.AppendBlock("else")

	b.CreateCondJump(then, els, ctx.True())
	term := f.Entry().Terminator()
	require.NotNil(t, term)
	require.Equal(t, 1, term.NumOperands())
	assert.Same(t, then, term.Operand(0).(*Block))
	assert.Equal(t, 1, then.NumPredecessors())
	assert.Equal(t, 0, els.NumPredecessors())
}

func TestReplaceKeepsUseListsConsistent(t *testing.T) {
	ctx := NewContext()
	_, f, b := testFunction(t, ctx, ctx.I32Type(), ctx.I32Type())

	sum := b.CreateAdd(f.Arg(0), f.Arg(1), "sum")
	ret := b.CreateRet(sum)

	f.Replace(sum, f.Arg(0))
	assert.Empty(t, sum.Uses())
	assert.Same(t, Value(f.Arg(0)), ret.Operand(0))
	assert.Contains(t, f.Arg(0).Uses(), ret)
}
