package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/internal/ir"
)

const addSource = `
unit "add"

func @add(i32 %a, i32 %b) -> i32 {
entry:
  %sum = add %a, %b
  ret %sum
}
`

func TestParseAdd(t *testing.T) {
	ctx := ir.NewContext()
	unit, err := ParseSource("add.sbl", addSource, ctx)
	require.NoError(t, err)

	f := unit.FindFunction("add")
	require.NotNil(t, f)
	require.True(t, f.HasBody())
	require.Len(t, f.Blocks(), 1)

	instrs := f.Entry().Instructions()
	require.Len(t, instrs, 2)
	assert.Equal(t, ir.OpAdd, instrs[0].Opcode())
	assert.Equal(t, ir.OpRet, instrs[1].Opcode())
	assert.Same(t, ir.Value(f.Arg(0)), instrs[0].Operand(0))
}

func TestParseControlFlowAndPhi(t *testing.T) {
	source := `
unit "loop"

func @count() -> i32 {
entry:
  jump %header
header:
  %i = phi i32 [ i32 0, %entry ], [ %next, %latch ]
  %cond = icmp.lt %i, i32 10
  br %cond, %latch, %exit
latch:
  %next = add %i, i32 1
  jump %header
exit:
  ret %i
}
`
	ctx := ir.NewContext()
	unit, err := ParseSource("loop.sbl", source, ctx)
	require.NoError(t, err)

	f := unit.FindFunction("count")
	require.NotNil(t, f)
	require.Len(t, f.Blocks(), 4)

	header := f.Blocks()[1]
	phis := header.Phis()
	require.Len(t, phis, 1)
	edges := phis[0].PhiIncoming()
	require.Len(t, edges, 2, "φ forward reference to %%next must resolve")

	// the latch edge names the add defined after the φ
	var latchValue ir.Value
	for _, edge := range edges {
		if edge.Block.Name() == f.Blocks()[2].Name() {
			latchValue = edge.Value
		}
	}
	add, ok := latchValue.(*ir.Instruction)
	require.True(t, ok)
	assert.Equal(t, ir.OpAdd, add.Opcode())
}

func TestParseGlobalsAndCalls(t *testing.T) {
	source := `
unit "globals"

global @counter: i64 = 7

func @bump(ptr i64 %p) -> i64
func @main() -> i64 {
entry:
  %r = call i64 @bump(@counter)
  ret %r
}
`
	ctx := ir.NewContext()
	unit, err := ParseSource("globals.sbl", source, ctx)
	require.NoError(t, err)

	g := unit.FindGlobal("counter")
	require.NotNil(t, g)
	init, ok := g.Initializer().(*ir.ConstantInt)
	require.True(t, ok)
	assert.EqualValues(t, 7, init.Value())

	bump := unit.FindFunction("bump")
	require.NotNil(t, bump)
	assert.False(t, bump.HasBody())

	main := unit.FindFunction("main")
	require.NotNil(t, main)
	call := main.Entry().Instructions()[0]
	assert.Equal(t, ir.OpCall, call.Opcode())
	assert.Same(t, ir.Value(bump), call.Callee())
}

func TestParseErrorHasPosition(t *testing.T) {
	ctx := ir.NewContext()
	_, err := ParseSource("bad.sbl", "unit \"x\"\nfunc @f( -> i32\n", ctx)
	require.Error(t, err)
	line, _, _, ok := Position(err)
	assert.True(t, ok)
	assert.Greater(t, line, 0)
}

func TestPrintParseRoundTrip(t *testing.T) {
	ctx := ir.NewContext()
	unit, err := ParseSource("add.sbl", addSource, ctx)
	require.NoError(t, err)

	printed := ir.Print(unit)
	assert.True(t, strings.Contains(printed, "func @add"), printed)

	ctx2 := ir.NewContext()
	unit2, err := ParseSource("printed.sbl", printed, ctx2)
	require.NoError(t, err, "printer output must parse back:\n%s", printed)
	f := unit2.FindFunction("add")
	require.NotNil(t, f)
	assert.Equal(t, 2, f.InstructionCount())
}

func TestUndefinedValueRejected(t *testing.T) {
	source := `
unit "bad"

func @f() -> i32 {
entry:
  ret %missing
}
`
	ctx := ir.NewContext()
	_, err := ParseSource("bad.sbl", source, ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined")
}
