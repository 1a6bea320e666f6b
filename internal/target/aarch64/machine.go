package aarch64

import (
	"fmt"
	"io"

	"sable/internal/codegen"
	"sable/internal/ir"
	"sable/internal/mir"
	"sable/internal/pass"
	"sable/internal/target"
)

// DataLayout matches the x86-64 model: natural scalar alignment, 8 for
// aggregates.
type DataLayout struct{}

func (DataLayout) PointerSize() int { return 8 }

func (l DataLayout) Alignment(t ir.Type) int {
	switch typ := t.(type) {
	case *ir.IntegerType:
		return max(1, typ.Bits()/8)
	case *ir.FloatType:
		return typ.Bits() / 8
	case *ir.VoidType:
		return 0
	case *ir.StructType, *ir.ArrayType:
		return 8
	case *ir.PointerType, *ir.FunctionType:
		return l.PointerSize()
	}
	return 0
}

func (l DataLayout) Size(t ir.Type) int {
	switch typ := t.(type) {
	case *ir.IntegerType:
		return max(1, typ.Bits()/8)
	case *ir.FloatType:
		return typ.Bits() / 8
	case *ir.PointerType, *ir.FunctionType:
		return l.PointerSize()
	case *ir.VoidType:
		return 0
	case *ir.StructType:
		size := 0
		for _, field := range typ.Fields() {
			size += l.Size(field)
		}
		return size
	case *ir.ArrayType:
		return typ.Count() * l.Size(typ.Element())
	}
	return 0
}

// Machine is the AArch64 target. It emits assembly; object emission is
// not wired for this target yet.
type Machine struct {
	ctx       *ir.Context
	spec      target.Spec
	regInfo   *RegisterInfo
	instrInfo *InstructionInfo
}

func NewMachine(ctx *ir.Context, spec target.Spec) *Machine {
	regInfo := NewRegisterInfo()
	return &Machine{
		ctx:       ctx,
		spec:      spec,
		regInfo:   regInfo,
		instrInfo: NewInstructionInfo(regInfo, spec),
	}
}

func (m *Machine) Spec() target.Spec                       { return m.spec }
func (m *Machine) RegisterInfo() target.RegisterInfo       { return m.regInfo }
func (m *Machine) InstructionInfo() target.InstructionInfo { return m.instrInfo }
func (m *Machine) DataLayout() ir.DataLayout               { return DataLayout{} }

// SaveCallRegisters for AAPCS64 finalizes the frame layout and patches the
// prologue and epilogue frame-size immediates. It inserts no register saves:
// caller-saved registers live across a call and callee-saved registers used
// by the function are not stored or reloaded.
type SaveCallRegisters struct {
	regInfo   *RegisterInfo
	instrInfo target.InstructionInfo
}

func NewSaveCallRegisters(regInfo *RegisterInfo, instrInfo target.InstructionInfo) *SaveCallRegisters {
	return &SaveCallRegisters{regInfo: regInfo, instrInfo: instrInfo}
}

func (SaveCallRegisters) Name() string { return "aarch64savecall" }

func (p *SaveCallRegisters) RunOnMachineFunction(f *mir.Function) bool {
	f.PatchFrameSize(16)
	return false
}

func (m *Machine) AddPassesForCodeGeneration(manager *pass.Manager, out io.Writer, fileType target.FileType, level pass.OptimizationLevel) error {
	if fileType == target.ObjectFile {
		return fmt.Errorf("aarch64: object emission is not supported; use assembly output")
	}

	if level >= pass.O1 {
		manager.AddRun([]pass.Pass{
			ir.NewInliner(),
			ir.NewMem2Reg(m.ctx),
			ir.NewConstantFolder(m.ctx),
			ir.NewDCE(),
			ir.NewCFGSimplify(),
		}, true)
	}

	layout := DataLayout{}
	manager.AddRun([]pass.Pass{
		ir.NewSplitCriticalEdges(m.ctx),
		codegen.NewISelPass(m.instrInfo, m.regInfo, layout, m.ctx, level),
		NewLowering(m.regInfo, layout, m.spec),
		codegen.NewGraphColorRegalloc(m.instrInfo, m.regInfo, NewSpiller(m.regInfo)),
		NewSaveCallRegisters(m.regInfo, m.instrInfo),
	}, false)

	manager.AddRun([]pass.Pass{
		NewAsmPrinter(out, m.instrInfo, m.regInfo, layout, m.spec),
	}, false)
	return nil
}
