package x64

import (
	"fmt"

	"sable/internal/ir"
	"sable/internal/mir"
	"sable/internal/pass"
	"sable/internal/target"
)

// Lowering is the post-selection MachineFunction pass: move ABI argument
// registers into the argument virtual registers, replace φs with copies on
// their incoming edges, and wrap the function in its prologue and
// epilogues. The frame-size immediate stays a placeholder until the save
// pass finalizes the layout.
type Lowering struct {
	regInfo *RegisterInfo
	layout  ir.DataLayout
	spec    target.Spec
	level   pass.OptimizationLevel
}

func NewLowering(regInfo *RegisterInfo, layout ir.DataLayout, spec target.Spec, level pass.OptimizationLevel) *Lowering {
	return &Lowering{regInfo: regInfo, layout: layout, spec: spec, level: level}
}

func (Lowering) Name() string { return "x64lower" }

func (p *Lowering) RunOnMachineFunction(f *mir.Function) bool {
	p.lowerPhis(f)
	p.lowerArguments(f)
	p.insertPrologueEpilogue(f)
	return false
}

// lowerArguments copies the ABI registers into the argument vregs at the
// top of the entry block, and loads stack-passed arguments from above the
// saved frame pointer.
func (p *Lowering) lowerArguments(f *mir.Function) {
	cc := f.IRFunction().CallConv()
	if cc == ir.CallConvDefault {
		cc = p.spec.DefaultCallConv()
	}
	gprArgs, fprArgs := sysvGPRArgs, sysvFPRArgs
	if cc == ir.CallConvWin64 {
		gprArgs, fprArgs = win64GPRArgs, win64FPRArgs
	}

	entry := f.Entry()
	at := 0
	insert := func(inst *mir.Instruction) {
		entry.InsertAt(inst, at)
		at++
	}

	gprUsed, fprUsed, stackUsed := 0, 0, 0
	for i, arg := range f.IRFunction().Args() {
		vreg := f.Arg(i)
		if vreg == nil {
			continue // by-value argument, addressed through its frame slot
		}
		t := arg.Type()
		if ir.IsFloat(t) {
			if fprUsed < len(fprArgs) {
				phys := p.regInfo.Register(fprArgs[fprUsed])
				fprUsed++
				insert(mir.NewInstruction(Movaps_rr, vreg, phys))
				f.RegInfo().AddLiveIn(fprArgs[fprUsed-1])
				continue
			}
		} else if gprUsed < len(gprArgs) {
			phys := p.regInfo.RegisterWithFlags(gprArgs[gprUsed], widthFlag(t))
			gprUsed++
			insert(mir.NewInstruction(is32or64(t, Mov32rr, Mov64rr),
				reflag(vreg, widthFlag(t)), phys))
			f.RegInfo().AddLiveIn(gprArgs[gprUsed-1])
			continue
		}
		// stack argument: above the return address and saved rbp
		disp := int64(16 + 8*stackUsed)
		stackUsed++
		size := p.layout.Size(t)
		insert(mir.NewInstruction(loadOpcode(t, p.layout),
			reflag(vreg, loadFlag(t, size)),
			&mir.Memory{Base: p.regInfo.Register(RBP), Disp: disp, OpSize: size}))
	}
}

// lowerPhis rewrites every φ into copies at the end of its incoming
// blocks, in front of the trailing branch cluster. Critical edges were
// split beforehand, so each incoming block reaches the φ's block alone.
func (p *Lowering) lowerPhis(f *mir.Function) {
	for _, irBlock := range f.IRFunction().Blocks() {
		for _, phi := range irBlock.Phis() {
			destOp, ok := f.ValueOperand(phi)
			if !ok {
				continue // unused φ never materialized
			}
			dest := reflag(destOp, widthFlag(phi.Type()))
			for _, edge := range phi.PhiIncoming() {
				predBlock := p.machineBlock(f, edge.Block)
				p.insertPhiCopy(f, predBlock, dest, edge.Value, phi.Type())
			}
		}
	}
}

func (p *Lowering) machineBlock(f *mir.Function, b *ir.Block) *mir.Block {
	for _, mb := range f.Blocks() {
		if mb.IRBlock() == b {
			return mb
		}
	}
	panic(fmt.Sprintf("x64: no machine block for %s", b.Name()))
}

// branchClusterStart finds the index of the first instruction of the
// block's trailing branch sequence.
func branchClusterStart(b *mir.Block) int {
	instrs := b.Instructions()
	idx := len(instrs)
	for idx > 0 {
		desc, ok := descriptors[instrs[idx-1].Opcode()]
		if !ok || (!desc.IsBranch && !desc.IsReturn) {
			break
		}
		idx--
	}
	return idx
}

func (p *Lowering) insertPhiCopy(f *mir.Function, pred *mir.Block, dest mir.Operand, value ir.Value, t ir.Type) {
	at := branchClusterStart(pred)
	insert := func(inst *mir.Instruction) {
		pred.InsertAt(inst, at)
		at++
	}

	switch v := value.(type) {
	case *ir.UndefValue:
		return
	case *ir.ConstantInt:
		destReg, ok := dest.(*mir.Register)
		if !ok {
			return
		}
		bits := typeBits(t)
		switch {
		case bits == 64 && !fitsImm32(v.Value()):
			insert(mir.NewInstruction(Movabs64ri, reflag(destReg, mir.FlagForce64Bit), mir.NewImmediateInt(v.Value(), mir.Imm64)))
		case bits == 64:
			insert(mir.NewInstruction(Mov64ri, reflag(destReg, mir.FlagForce64Bit), mir.NewImmediateInt(v.Value(), mir.Imm32)))
		default:
			insert(mir.NewInstruction(Mov32ri, reflag(destReg, mir.FlagForce32Bit), mir.NewImmediateInt(v.Value(), mir.Imm32)))
		}
	case *ir.ConstantFloat:
		bits := typeBits(t)
		idx := f.AddConstant(floatConstBytes(v.Value(), bits), bits/8)
		op := Movsd_rm
		if bits == 32 {
			op = Movss_rm
		}
		insert(mir.NewInstruction(op, dest, &mir.Memory{Base: mir.NewConstantPoolIndex(idx), OpSize: bits / 8}))
	case *ir.GlobalVariable:
		insert(mir.NewInstruction(Lea64rm, reflag(dest, mir.FlagForce64Bit),
			&mir.Memory{Base: mir.NewGlobalAddress(v, 0), OpSize: 8}))
	case *ir.Function:
		insert(mir.NewInstruction(Lea64rm, reflag(dest, mir.FlagForce64Bit),
			&mir.Memory{Base: mir.NewGlobalAddress(v, 0), OpSize: 8}))
	case *ir.FunctionArgument:
		src := f.Arg(v.Slot())
		if src == nil {
			return
		}
		insert(p.copyInstruction(t, dest, src))
	default:
		src, ok := f.ValueOperand(value)
		if !ok {
			panic(fmt.Sprintf("x64: φ incoming %s has no operand", value.Name()))
		}
		insert(p.copyInstruction(t, dest, src))
	}
}

func (p *Lowering) copyInstruction(t ir.Type, dest, src mir.Operand) *mir.Instruction {
	if ir.IsFloat(t) {
		return mir.NewInstruction(Movaps_rr, dest, src)
	}
	flag := widthFlag(t)
	return mir.NewInstruction(is32or64(t, Mov32rr, Mov64rr), reflag(dest, flag), reflag(src, flag))
}

// insertPrologueEpilogue sets up the rbp frame. The sub immediate is a
// placeholder; SaveCallRegisters patches it after the last frame slot is
// created.
func (p *Lowering) insertPrologueEpilogue(f *mir.Function) {
	entry := f.Entry()
	if entry == nil {
		return
	}
	rbp := p.regInfo.Register(RBP)
	rsp := p.regInfo.Register(RSP)

	frameImm := mir.NewImmediateInt(0, mir.Imm32)
	f.AddFrameSizeImmediate(frameImm)

	entry.InsertAt(mir.NewInstruction(Push64r, rbp), 0)
	entry.InsertAt(mir.NewInstruction(Mov64rr, rbp, rsp), 1)
	entry.InsertAt(mir.NewInstruction(Sub64ri, rsp, frameImm), 2)
	f.SetPrologueSize(3)

	for _, b := range f.Blocks() {
		last := b.Last()
		if last == nil || last.Opcode() != Ret {
			continue
		}
		idx := b.IndexOf(last)
		b.InsertAt(mir.NewInstruction(Mov64rr, rsp, rbp), idx)
		b.InsertAt(mir.NewInstruction(Pop64r, rbp), idx+1)
		b.SetEpilogueSize(2)
	}
}
