package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeInterning(t *testing.T) {
	ctx := NewContext()

	assert.Same(t, ctx.I32Type(), ctx.IntType(32))
	assert.Same(t, ctx.F64Type(), ctx.FloatType(64))
	assert.NotSame(t, ctx.I32Type(), ctx.I64Type())

	p1 := ctx.PointerType(ctx.I32Type())
	p2 := ctx.PointerType(ctx.I32Type())
	assert.Same(t, p1, p2)
	assert.Same(t, ctx.I32Type(), p1.Pointee())

	a1 := ctx.ArrayType(ctx.I8Type(), 16)
	a2 := ctx.ArrayType(ctx.I8Type(), 16)
	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, ctx.ArrayType(ctx.I8Type(), 8))

	s1 := ctx.StructType(ctx.I64Type(), ctx.I64Type())
	s2 := ctx.StructType(ctx.I64Type(), ctx.I64Type())
	assert.Same(t, s1, s2)

	f1 := ctx.FunctionType(ctx.I32Type(), []Type{ctx.I32Type()}, false)
	f2 := ctx.FunctionType(ctx.I32Type(), []Type{ctx.I32Type()}, false)
	assert.Same(t, f1, f2)
	assert.NotSame(t, f1, ctx.FunctionType(ctx.I32Type(), []Type{ctx.I32Type()}, true))
}

func TestConstantInterning(t *testing.T) {
	ctx := NewContext()

	c1 := ctx.ConstantInt(ctx.I32Type(), 42)
	c2 := ctx.ConstantInt(ctx.I32Type(), 42)
	assert.Same(t, c1, c2)
	assert.NotSame(t, c1, ctx.ConstantInt(ctx.I64Type(), 42))

	// values intern truncated to the type width
	wrapped := ctx.ConstantInt(ctx.I8Type(), 256+7)
	assert.EqualValues(t, 7, wrapped.Value())

	f1 := ctx.ConstantFloat(ctx.F64Type(), 1.5)
	f2 := ctx.ConstantFloat(ctx.F64Type(), 1.5)
	assert.Same(t, f1, f2)
}

func TestZeroInitializer(t *testing.T) {
	ctx := NewContext()
	z := ctx.ZeroInitializer(ctx.I32Type())
	c, ok := z.(*ConstantInt)
	require.True(t, ok)
	assert.EqualValues(t, 0, c.Value())
}
