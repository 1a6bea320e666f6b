package x64

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/internal/codegen"
	"sable/internal/ir"
	"sable/internal/mir"
	"sable/internal/parser"
	"sable/internal/pass"
	"sable/internal/target"
)

func compile(t *testing.T, source string, fileType target.FileType, level pass.OptimizationLevel) string {
	t.Helper()
	ctx := ir.NewContext()
	unit, err := parser.ParseSource("test.sbl", source, ctx)
	require.NoError(t, err)

	machine := NewMachine(ctx, target.Spec{Arch: target.X8664, OS: target.Linux})
	manager := pass.NewManager()
	out := &bytes.Buffer{}
	require.NoError(t, machine.AddPassesForCodeGeneration(manager, out, fileType, level))
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
`, target.AssemblyFile, pass.O1)

	assert.Contains(t, asm, "add:")
	assert.Contains(t, asm, "\tret")
	// the ABI argument registers feed the result
	assert.Contains(t, asm, "edi")
	assert.Contains(t, asm, "esi")
	// every virtual register must be gone after allocation
	assert.NotContains(t, asm, "%", asm)
}

func TestCompileLoopToAssembly(t *testing.T) {
	asm := compile(t, `
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
`, target.AssemblyFile, pass.O1)

	assert.Contains(t, asm, "count:")
	assert.Contains(t, asm, "cmp")
	assert.Contains(t, asm, "jl")
	assert.NotContains(t, asm, "%", asm)
}

func TestCompileBranchesAndCalls(t *testing.T) {
	asm := compile(t, `
unit "calls"

func @helper(i64 %x) -> i64
func @main(i64 %n) -> i64 {
entry:
  %big = icmp.gt %n, i64 100
  br %big, %yes, %no
yes:
  %r1 = call i64 @helper(%n)
  ret %r1
no:
  ret i64 0
}
`, target.AssemblyFile, pass.O0)

	assert.Contains(t, asm, "main:")
	assert.Contains(t, asm, "call helper")
	assert.Contains(t, asm, "rdi")
	assert.NotContains(t, asm, "%", asm)
}

func TestCompileFloatArithmetic(t *testing.T) {
	asm := compile(t, `
unit "float"

func @scale(f64 %x, f64 %y) -> f64 {
entry:
  %p = fmul %x, %y
  %s = add %p, f64 1.5
  ret %s
}
`, target.AssemblyFile, pass.O1)

	assert.Contains(t, asm, "mulsd")
	assert.Contains(t, asm, "addsd")
	assert.Contains(t, asm, ".LCPI_scale_0")
	assert.Contains(t, asm, "xmm0")
	assert.NotContains(t, asm, "%", asm)
}

func TestCompileMemoryAndGEP(t *testing.T) {
	asm := compile(t, `
unit "mem"

func @index(ptr i64 %base, i64 %i) -> i64 {
entry:
  %slot = gep %base, %i
  %v = load %slot
  ret %v
}
`, target.AssemblyFile, pass.O1)

	assert.Contains(t, asm, "lea")
	assert.Contains(t, asm, "qword ptr")
	assert.NotContains(t, asm, "%", asm)
}

func TestCompileToObjectProducesELF(t *testing.T) {
	object := compile(t, `
unit "obj"

func @answer() -> i32 {
entry:
  ret i32 42
}
`, target.ObjectFile, pass.O1)

	require.Greater(t, len(object), 64)
	assert.True(t, strings.HasPrefix(object, "\x7fELF"), "object must start with the ELF magic")
	assert.Contains(t, object, "answer")
}

func TestCompileStructReturningCall(t *testing.T) {
	asm := compile(t, `
unit "pair"

func @make() -> { i64, i64 }
func @total() -> i64 {
entry:
  %p = call { i64, i64 } @make()
  %lo = extractvalue %p, i64 0
  %hi = extractvalue %p, i64 1
  %sum = add %lo, %hi
  ret %sum
}
`, target.AssemblyFile, pass.O0)

	assert.Contains(t, asm, "call make")
	// the two fields come back in registers; no stack traffic binds them
	assert.Contains(t, asm, "rdx")
	assert.NotContains(t, asm, "%", asm)
}

func TestRegallocColorsInterferingRegisters(t *testing.T) {
	ctx := ir.NewContext()
	unit := ir.NewUnit("t", ctx)
	funcType := ctx.FunctionType(ctx.I64Type(), nil, false)
	f := unit.AddFunction("f", funcType, ir.LinkageInternal)
	f.AppendBlock("entry")

	regInfo := NewRegisterInfo()
	m := mir.NewFunction(f, regInfo)
	block := m.AddBlock("entry", f.Entry())

	v1 := m.RegInfo().NewVirtualRegister(ctx.I64Type(), mir.ClassGPR)
	v2 := m.RegInfo().NewVirtualRegister(ctx.I64Type(), mir.ClassGPR)
	r1 := mir.NewRegister(v1, mir.ClassGPR, mir.FlagForce64Bit)
	r2 := mir.NewRegister(v2, mir.ClassGPR, mir.FlagForce64Bit)

	block.Append(mir.NewInstruction(Mov64ri, r1, mir.NewImmediateInt(1, mir.Imm32)))
	block.Append(mir.NewInstruction(Mov64ri, r2, mir.NewImmediateInt(2, mir.Imm32)))
	block.Append(mir.NewInstruction(Add64rr, r1, r2))
	block.Append(mir.NewInstruction(Mov64rr, regInfo.Register(RAX), r1))
	block.Append(mir.NewInstruction(Ret))

	spec := target.Spec{Arch: target.X8664, OS: target.Linux}
	instrInfo := NewInstructionInfo(regInfo, spec)
	allocator := codegen.NewGraphColorRegalloc(instrInfo, regInfo, NewSpiller(regInfo))
	allocator.RunOnMachineFunction(m)

	p1, ok1 := m.RegInfo().Mapping(v1)
	p2, ok2 := m.RegInfo().Mapping(v2)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.False(t, regInfo.IsSameRegister(p1, p2),
		"interfering virtual registers must not share a physical register")

	for _, inst := range block.Instructions() {
		for _, use := range inst.Registers() {
			assert.False(t, use.Reg.IsVirtual(), "all registers must be physical after allocation")
		}
	}
}

func TestSpillerNarrowsPressure(t *testing.T) {
	// more simultaneously-live values than allocatable registers forces
	// the colour/spill loop through at least one spill round and it must
	// still terminate with a full colouring
	var sb strings.Builder
	sb.WriteString("unit \"pressure\"\n\nfunc @many(i64 %a) -> i64 {\nentry:\n")
	names := []string{}
	for i := 0; i < 20; i++ {
		name := "v" + string(rune('a'+i))
		sb.WriteString("  %" + name + " = add %a, i64 " + strconv.Itoa(i) + "\n")
		names = append(names, name)
	}
	sb.WriteString("  %acc0 = add %" + names[0] + ", %" + names[1] + "\n")
	acc := "acc0"
	for i := 2; i < len(names); i++ {
		next := "acc" + strconv.Itoa(i)
		sb.WriteString("  %" + next + " = add %" + acc + ", %" + names[i] + "\n")
		acc = next
	}
	sb.WriteString("  ret %" + acc + "\n}\n")

	asm := compile(t, sb.String(), target.AssemblyFile, pass.O0)
	assert.Contains(t, asm, "many:")
	assert.NotContains(t, asm, "%", asm)
}
