package x64

import (
	"io"

	"sable/internal/codegen"
	"sable/internal/ir"
	"sable/internal/pass"
	"sable/internal/target"
)

// DataLayout is the x86-64 size/alignment model: natural alignment for
// scalars, 8 for aggregates, naive summed struct sizes.
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

// Machine is the x86-64 target: tables plus the pass pipeline.
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

func (m *Machine) AddPassesForCodeGeneration(manager *pass.Manager, out io.Writer, fileType target.FileType, level pass.OptimizationLevel) error {
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
		NewLegalizer(m.ctx, m.spec),
		codegen.NewISelPass(m.instrInfo, m.regInfo, layout, m.ctx, level),
		NewLowering(m.regInfo, layout, m.spec, level),
		codegen.NewGraphColorRegalloc(m.instrInfo, m.regInfo, NewSpiller(m.regInfo)),
		NewSaveCallRegisters(m.regInfo, m.instrInfo),
	}, false)

	if fileType == target.AssemblyFile {
		manager.AddRun([]pass.Pass{
			NewAsmPrinter(out, m.instrInfo, m.regInfo, layout, m.spec),
		}, false)
		return nil
	}

	encoder := NewEncoder(m.instrInfo, m.regInfo, m.spec)
	var format codegen.ObjectFormat = codegen.ELFFormat{}
	if m.spec.OS == target.Windows {
		format = codegen.COFFFormat{}
	}
	manager.AddRun([]pass.Pass{
		codegen.NewObjectEmitter(out, encoder, format),
	}, false)
	return nil
}
