package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingLoop builds the classic `int i = 0; while (i < 10) i++; return i`
// through a stack slot, the way a frontend without SSA construction would.
func countingLoop(t *testing.T, ctx *Context) (*Function, *Block, *Block, *Block) {
	t.Helper()
	unit := NewUnit("test", ctx)
	funcType := ctx.FunctionType(ctx.I32Type(), nil, false)
	f := unit.AddFunction("count", funcType, LinkageExternal)

	entry := f.AppendBlock("entry")
	header := f.AppendBlock("header")
	latch := f.AppendBlock("latch")
	exit := f.AppendBlock("exit")

	b := NewBuilder(ctx)
	b.SetBlock(entry)
	slot := b.CreateAllocate(ctx.I32Type(), "i")
	b.CreateStore(slot, ctx.ConstantInt(ctx.I32Type(), 0))
	b.CreateJump(header)

	b.SetBlock(header)
	current := b.CreateLoad(slot, "cur")
	cond := b.CreateCmp(OpICmpLt, current, ctx.ConstantInt(ctx.I32Type(), 10), "cond")
	b.CreateCondJump(latch, exit, cond)

	b.SetBlock(latch)
	again := b.CreateLoad(slot, "again")
	next := b.CreateAdd(again, ctx.ConstantInt(ctx.I32Type(), 1), "next")
	b.CreateStore(slot, next)
	b.CreateJump(header)

	b.SetBlock(exit)
	result := b.CreateLoad(slot, "result")
	b.CreateRet(result)

	return f, entry, header, latch
}

func TestMem2RegPromotesLoopCounter(t *testing.T) {
	ctx := NewContext()
	f, entry, header, latch := countingLoop(t, ctx)

	changed := NewMem2Reg(ctx).RunOnFunction(f)
	require.True(t, changed)

	// the allocation and all its loads/stores are gone
	assert.Empty(t, f.Allocations())
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions() {
			assert.NotEqual(t, OpAllocate, inst.Opcode())
			assert.NotEqual(t, OpLoad, inst.Opcode())
			assert.NotEqual(t, OpStore, inst.Opcode())
		}
	}

	// a φ sits in the loop header with incoming (0, entry) and (next, latch)
	phis := header.Phis()
	require.Len(t, phis, 1)
	phi := phis[0]
	edges := phi.PhiIncoming()
	require.Len(t, edges, 2)

	byBlock := map[*Block]Value{}
	for _, edge := range edges {
		byBlock[edge.Block] = edge.Value
	}
	zero, ok := byBlock[entry].(*ConstantInt)
	require.True(t, ok)
	assert.EqualValues(t, 0, zero.Value())

	add, ok := byBlock[latch].(*Instruction)
	require.True(t, ok)
	assert.Equal(t, OpAdd, add.Opcode())

	verifyUseDefConsistency(t, f)
}

func TestMem2RegIdempotent(t *testing.T) {
	ctx := NewContext()
	f, _, _, _ := countingLoop(t, ctx)

	require.True(t, NewMem2Reg(ctx).RunOnFunction(f))
	before := f.InstructionCount()
	assert.False(t, NewMem2Reg(ctx).RunOnFunction(f))
	assert.Equal(t, before, f.InstructionCount())
}

func TestMem2RegSkipsEscapedSlot(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)
	calleeType := ctx.FunctionType(ctx.VoidType(), []Type{ctx.PointerType(ctx.I32Type())}, false)
	callee := unit.AddFunction("sink", calleeType, LinkageExternal)
	funcType := ctx.FunctionType(ctx.I32Type(), nil, false)
	f := unit.AddFunction("f", funcType, LinkageExternal)
	f.AppendBlock("entry")

	b := NewBuilder(ctx)
	b.SetBlock(f.Entry())
	slot := b.CreateAllocate(ctx.I32Type(), "x")
	b.CreateStore(slot, ctx.ConstantInt(ctx.I32Type(), 1))
	b.CreateCall(callee, []Value{slot}, "")
	loaded := b.CreateLoad(slot, "")
	b.CreateRet(loaded)

	NewMem2Reg(ctx).RunOnFunction(f)
	assert.Len(t, f.Allocations(), 1, "address-taken slot must stay")
}

func TestMem2RegSkipsAggregates(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)
	funcType := ctx.FunctionType(ctx.VoidType(), nil, false)
	f := unit.AddFunction("f", funcType, LinkageExternal)
	f.AppendBlock("entry")

	b := NewBuilder(ctx)
	b.SetBlock(f.Entry())
	b.CreateAllocate(ctx.ArrayType(ctx.I32Type(), 4), "arr")
	b.CreateRet(nil)

	NewMem2Reg(ctx).RunOnFunction(f)
	assert.Len(t, f.Allocations(), 1)
}

// verifyUseDefConsistency checks the central invariant: every operand's
// use list contains its user once per occurrence, both directions.
func verifyUseDefConsistency(t *testing.T, f *Function) {
	t.Helper()
	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions() {
			for i, operand := range inst.Operands() {
				occurrences := 0
				for _, op := range inst.Operands() {
					if op == operand {
						occurrences++
					}
				}
				uses := 0
				for _, user := range operand.Uses() {
					if user == inst {
						uses++
					}
				}
				assert.Equal(t, occurrences, uses,
					"use-def mismatch for operand %d of %s in %s", i, inst.Opcode(), b.Name())
			}
		}
	}
}
