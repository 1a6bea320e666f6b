package ir

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSink struct {
	messages []string
}

func (s *testSink) Errorf(code string, format string, args ...any) {
	s.messages = append(s.messages, code+": "+fmt.Sprintf(format, args...))
}

func (s *testSink) containing(fragment string) int {
	count := 0
	for _, m := range s.messages {
		if strings.Contains(m, fragment) {
			count++
		}
	}
	return count
}

func TestVerifierAcceptsWellFormed(t *testing.T) {
	ctx := NewContext()
	_, f, b := testFunction(t, ctx, ctx.I32Type(), ctx.I32Type())
	sum := b.CreateAdd(f.Arg(0), f.Arg(1), "sum")
	b.CreateRet(sum)

	sink := &testSink{}
	NewVerifier(sink).RunOnFunction(f)
	assert.Empty(t, sink.messages)
}

func TestVerifierReportsMissingTerminator(t *testing.T) {
	ctx := NewContext()
	_, f, b := testFunction(t, ctx, ctx.I32Type())
	b.CreateAdd(f.Arg(0), f.Arg(0), "sum")

	sink := &testSink{}
	NewVerifier(sink).RunOnFunction(f)
	assert.Equal(t, 1, sink.containing("no terminator"))
}

func TestVerifierReportsStoreTypeMismatch(t *testing.T) {
	ctx := NewContext()
	_, f, b := testFunction(t, ctx, ctx.I64Type())
	slot := b.CreateAllocate(ctx.I32Type(), "slot")
	// bypass the builder's check to produce the broken store
	bad := NewInstruction(OpStore, ctx.VoidType(), "", slot, f.Arg(0))
	f.Entry().Append(bad)
	b.SetBlock(f.Entry())
	b.CreateRet(ctx.ConstantInt(ctx.I32Type(), 0))

	sink := &testSink{}
	NewVerifier(sink).RunOnFunction(f)
	assert.Equal(t, 1, sink.containing("mismatched type"))
}

func TestVerifierReportsPhiNonPredecessor(t *testing.T) {
	ctx := NewContext()
	f, _, left, right, merge := diamond(t, ctx)
	stranger := f.AppendBlock("stranger")
	b := NewBuilder(ctx)
	b.SetBlock(stranger)
	b.CreateRet(nil)

	phi := NewInstruction(OpPhi, ctx.I32Type(), "m")
	phi.AddPhiIncoming(ctx.ConstantInt(ctx.I32Type(), 1), left)
	phi.AddPhiIncoming(ctx.ConstantInt(ctx.I32Type(), 2), stranger)
	merge.InsertAtFront(phi)
	_ = right

	sink := &testSink{}
	NewVerifier(sink).RunOnFunction(f)
	assert.Equal(t, 1, sink.containing("not a predecessor"))
}

func TestVerifierReportsCastDirection(t *testing.T) {
	ctx := NewContext()
	_, f, b := testFunction(t, ctx, ctx.I32Type())
	// a "zext" to a narrower type, built by hand
	bad := NewInstruction(OpZext, ctx.IntType(8), "shrunk", f.Arg(0))
	f.Entry().Append(bad)
	b.SetBlock(f.Entry())
	b.CreateRet(ctx.ConstantInt(ctx.I32Type(), 0))

	sink := &testSink{}
	NewVerifier(sink).RunOnFunction(f)
	assert.Equal(t, 1, sink.containing("strictly widen"))
}

func TestVerifierReportsCallArityMismatch(t *testing.T) {
	ctx := NewContext()
	unit := NewUnit("test", ctx)
	calleeType := ctx.FunctionType(ctx.I32Type(), []Type{ctx.I32Type(), ctx.I32Type()}, false)
	callee := unit.AddFunction("callee", calleeType, LinkageExternal)
	funcType := ctx.FunctionType(ctx.I32Type(), nil, false)
	f := unit.AddFunction("f", funcType, LinkageExternal)
	f.AppendBlock("entry")

	call := NewInstruction(OpCall, ctx.I32Type(), "r", callee, ctx.ConstantInt(ctx.I32Type(), 1))
	f.Entry().Append(call)
	b := NewBuilder(ctx)
	b.SetBlock(f.Entry())
	b.CreateRet(call)

	sink := &testSink{}
	NewVerifier(sink).RunOnFunction(f)
	require.Equal(t, 1, sink.containing("passes 1 arguments"))
}
