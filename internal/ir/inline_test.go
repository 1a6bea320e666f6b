package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildSelect builds `int f(int x) { if (x) return 1; return 2; }`.
func buildSelect(t *testing.T, unit *Unit) *Function {
	t.Helper()
	ctx := unit.Context()
	funcType := ctx.FunctionType(ctx.I32Type(), []Type{ctx.I32Type()}, false)
	f := unit.AddFunction("pick", funcType, LinkageInternal)

	entry := f.AppendBlock("entry")
	then := f.AppendBlock("then")
	els := f.AppendBlock("else")

	b := NewBuilder(ctx)
	b.SetBlock(entry)
	cond := b.CreateCmp(OpICmpNe, f.Arg(0), ctx.ConstantInt(ctx.I32Type(), 0), "cond")
	b.CreateCondJump(then, els, cond)
	b.SetBlock(then)
	b.CreateRet(ctx.ConstantInt(ctx.I32Type(), 1))
	b.SetBlock(els)
	b.CreateRet(ctx.ConstantInt(ctx.I32Type(), 2))
	return f
}

func TestInlinerReplacesCall(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)
	callee := buildSelect(t, unit)

	funcType := ctx.FunctionType(ctx.I32Type(), nil, false)
	caller := unit.AddFunction("caller", funcType, LinkageExternal)
	caller.AppendBlock("entry")
	b := NewBuilder(ctx)
	b.SetBlock(caller.Entry())
	result := b.CreateCall(callee, []Value{ctx.ConstantInt(ctx.I32Type(), 0)}, "r")
	b.CreateRet(result)

	changed := NewInliner().RunOnFunction(caller)
	require.True(t, changed)

	for _, block := range caller.Blocks() {
		for _, inst := range block.Instructions() {
			assert.NotEqual(t, OpCall, inst.Opcode(), "call must be gone after inlining")
		}
	}
	verifyUseDefConsistency(t, caller)

	// after mem2reg + folding + simplification the caller collapses to the
	// constant-folded branch
	NewMem2Reg(ctx).RunOnFunction(caller)
	folder := NewConstantFolder(ctx)
	for _, block := range caller.Blocks() {
		for restart := true; restart; {
			restart = false
			for _, inst := range block.Instructions() {
				folder.RunOnInstruction(inst)
				if folder.TakeRestart() {
					restart = true
					break
				}
			}
		}
	}
	NewDCE().RunOnFunction(caller)
	NewCFGSimplify().RunOnFunction(caller)
	verifyUseDefConsistency(t, caller)
}

func TestInlinerSkipsRecursive(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)

	funcType := ctx.FunctionType(ctx.I32Type(), []Type{ctx.I32Type()}, false)
	fact := unit.AddFunction("fact", funcType, LinkageExternal)
	entry := fact.AppendBlock("entry")
	recurse := fact.AppendBlock("recurse")
	base := fact.AppendBlock("base")

	b := NewBuilder(ctx)
	b.SetBlock(entry)
	cond := b.CreateCmp(OpICmpLe, fact.Arg(0), ctx.ConstantInt(ctx.I32Type(), 1), "cond")
	b.CreateCondJump(base, recurse, cond)
	b.SetBlock(recurse)
	less := b.CreateSub(fact.Arg(0), ctx.ConstantInt(ctx.I32Type(), 1), "less")
	inner := b.CreateCall(fact, []Value{less}, "inner")
	product := b.CreateIMul(fact.Arg(0), inner, "product")
	b.CreateRet(product)
	b.SetBlock(base)
	b.CreateRet(ctx.ConstantInt(ctx.I32Type(), 1))

	assert.True(t, fact.Heuristics() != nil)
	assert.True(t, fact.IsRecursive(), "call analysis must flag the self-call")

	changed := NewInliner().RunOnFunction(fact)
	assert.False(t, changed, "recursive functions are never inlined")
}

func TestCallAnalysisInventory(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)
	callee := buildSelect(t, unit)

	funcType := ctx.FunctionType(ctx.I32Type(), nil, false)
	caller := unit.AddFunction("caller", funcType, LinkageExternal)
	caller.AppendBlock("entry")
	b := NewBuilder(ctx)
	b.SetBlock(caller.Entry())
	first := b.CreateCall(callee, []Value{ctx.ConstantInt(ctx.I32Type(), 1)}, "a")
	second := b.CreateCall(callee, []Value{first}, "b")
	b.CreateRet(second)

	sites := caller.Heuristics().CallSites()
	require.Len(t, sites, 2)
	assert.Same(t, caller.Entry(), sites[0].Location)
	assert.Same(t, Value(callee), sites[0].Callee)
	assert.False(t, caller.IsRecursive())
}
