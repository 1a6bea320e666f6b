package aarch64

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/internal/ir"
	"sable/internal/parser"
	"sable/internal/pass"
	"sable/internal/target"
)

func compile(t *testing.T, source string, level pass.OptimizationLevel) string {
	t.Helper()
	ctx := ir.NewContext()
	unit, err := parser.ParseSource("test.sbl", source, ctx)
	require.NoError(t, err)

	machine := NewMachine(ctx, target.Spec{Arch: target.AArch64, OS: target.Linux})
	manager := pass.NewManager()
	out := &bytes.Buffer{}
	require.NoError(t, machine.AddPassesForCodeGeneration(manager, out, target.AssemblyFile, level))
	require.NoError(t, manager.Run(unit))
	return out.String()
}

func TestCompileAddToAssembly(t *testing.T) {
	asm := compile(t, `
unit "add"

func @add(i32 %a, i32 %b) -> i32 {
entry:
  %sum = add %a, %b
  ret %sum
}
`, pass.O1)

	assert.Contains(t, asm, "add:")
	assert.Contains(t, asm, "\tret")
	assert.Contains(t, asm, "w0")
	assert.Contains(t, asm, "stp x29, x30, [sp, #-16]!")
	assert.NotContains(t, asm, "%", asm)
}

func TestCompileBranchToAssembly(t *testing.T) {
	asm := compile(t, `
unit "cmp"

func @pick(i64 %x) -> i64 {
entry:
  %c = icmp.gt %x, i64 10
  br %c, %yes, %no
yes:
  ret i64 1
no:
  ret i64 2
}
`, pass.O0)

	assert.Contains(t, asm, "cmp")
	assert.Contains(t, asm, "b.gt")
	assert.NotContains(t, asm, "%", asm)
}

func TestObjectEmissionUnsupported(t *testing.T) {
	ctx := ir.NewContext()
	machine := NewMachine(ctx, target.Spec{Arch: target.AArch64, OS: target.Linux})
	err := machine.AddPassesForCodeGeneration(pass.NewManager(), &bytes.Buffer{}, target.ObjectFile, pass.O0)
	require.Error(t, err)
}
