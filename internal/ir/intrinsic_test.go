package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntrinsicDeclaredOnce(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)

	memcpy := unit.IntrinsicFunction(IntrinsicMemcpy)
	require.NotNil(t, memcpy)
	assert.False(t, memcpy.HasBody())
	assert.Equal(t, "memcpy", memcpy.Name())
	assert.Same(t, memcpy, unit.IntrinsicFunction(IntrinsicMemcpy))

	// callable like any declared function
	funcType := ctx.FunctionType(ctx.VoidType(), nil, false)
	f := unit.AddFunction("f", funcType, LinkageInternal)
	f.AppendBlock("entry")
	b := NewBuilder(ctx)
	b.SetBlock(f.Entry())
	dst := b.CreateAllocate(ctx.ArrayType(ctx.I8Type(), 8), "dst")
	src := b.CreateAllocate(ctx.ArrayType(ctx.I8Type(), 8), "src")
	dstPtr := b.CreateBitcast(dst, ctx.PointerType(ctx.I8Type()), "")
	srcPtr := b.CreateBitcast(src, ctx.PointerType(ctx.I8Type()), "")
	b.CreateCall(memcpy, []Value{dstPtr, srcPtr, ctx.ConstantInt(ctx.I64Type(), 8)}, "")
	b.CreateRet(nil)

	sites := f.Heuristics().CallSites()
	require.Len(t, sites, 1)
	assert.Same(t, Value(memcpy), sites[0].Callee)
}
