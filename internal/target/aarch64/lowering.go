package aarch64

import (
	"fmt"

	"sable/internal/ir"
	"sable/internal/mir"
	"sable/internal/target"
)

// Lowering mirrors the x86-64 post-selection pass for AAPCS64: argument
// register copies, φ-elimination copies, and the stp/ldp frame sequence.
type Lowering struct {
	regInfo *RegisterInfo
	layout  ir.DataLayout
	spec    target.Spec
}

func NewLowering(regInfo *RegisterInfo, layout ir.DataLayout, spec target.Spec) *Lowering {
	return &Lowering{regInfo: regInfo, layout: layout, spec: spec}
}

func (Lowering) Name() string { return "aarch64lower" }

func (p *Lowering) RunOnMachineFunction(f *mir.Function) bool {
	p.lowerPhis(f)
	p.lowerArguments(f)
	p.insertPrologueEpilogue(f)
	return false
}

func (p *Lowering) lowerArguments(f *mir.Function) {
	entry := f.Entry()
	at := 0
	gprUsed, fprUsed := 0, 0
	for i, arg := range f.IRFunction().Args() {
		vreg := f.Arg(i)
		if vreg == nil {
			continue
		}
		t := arg.Type()
		if ir.IsFloat(t) {
			if fprUsed < len(aapcsFPRArgs) {
				entry.InsertAt(mir.NewInstruction(FMovRR, vreg, p.regInfo.Register(aapcsFPRArgs[fprUsed])), at)
				f.RegInfo().AddLiveIn(aapcsFPRArgs[fprUsed])
				fprUsed++
				at++
			}
			continue
		}
		if gprUsed < len(aapcsGPRArgs) {
			entry.InsertAt(mir.NewInstruction(MovRR,
				reflag(vreg, widthFlag(t)),
				p.regInfo.RegisterWithFlags(aapcsGPRArgs[gprUsed], widthFlag(t))), at)
			f.RegInfo().AddLiveIn(aapcsGPRArgs[gprUsed])
			gprUsed++
			at++
		}
	}
}

func (p *Lowering) lowerPhis(f *mir.Function) {
	for _, irBlock := range f.IRFunction().Blocks() {
		for _, phi := range irBlock.Phis() {
			destOp, ok := f.ValueOperand(phi)
			if !ok {
				continue
			}
			dest := reflag(destOp, widthFlag(phi.Type()))
			for _, edge := range phi.PhiIncoming() {
				pred := p.machineBlock(f, edge.Block)
				p.insertPhiCopy(f, pred, dest, edge.Value, phi.Type())
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
	panic(fmt.Sprintf("aarch64: no machine block for %s", b.Name()))
}

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
		// materialize straight into the φ register
		tmpBlock := &mir.Block{}
		materializeInt(tmpBlock, destReg, v.Value())
		for _, inst := range tmpBlock.Instructions() {
			insert(inst)
		}
	case *ir.ConstantFloat:
		bits := 64
		if ft, ok := t.(*ir.FloatType); ok {
			bits = ft.Bits()
		}
		idx := f.AddConstant(floatBytes(v.Value(), bits), bits/8)
		insert(mir.NewInstruction(LdrFRM, dest, &mir.Memory{Base: mir.NewConstantPoolIndex(idx), OpSize: bits / 8}))
	case *ir.FunctionArgument:
		src := f.Arg(v.Slot())
		if src == nil {
			return
		}
		insert(p.copyInstruction(t, dest, src))
	default:
		src, ok := f.ValueOperand(value)
		if !ok {
			panic(fmt.Sprintf("aarch64: φ incoming %s has no operand", value.Name()))
		}
		insert(p.copyInstruction(t, dest, src))
	}
}

func (p *Lowering) copyInstruction(t ir.Type, dest, src mir.Operand) *mir.Instruction {
	if ir.IsFloat(t) {
		return mir.NewInstruction(FMovRR, dest, src)
	}
	flag := widthFlag(t)
	return mir.NewInstruction(MovRR, reflag(dest, flag), reflag(src, flag))
}

func (p *Lowering) insertPrologueEpilogue(f *mir.Function) {
	entry := f.Entry()
	if entry == nil {
		return
	}
	sp := p.regInfo.Register(SP)
	fp := p.regInfo.Register(X29)
	lr := p.regInfo.Register(X30)

	frameImm := mir.NewImmediateInt(0, mir.Imm32)
	f.AddFrameSizeImmediate(frameImm)
	epilogueImm := mir.NewImmediateInt(0, mir.Imm32)
	f.AddFrameSizeImmediate(epilogueImm)

	entry.InsertAt(mir.NewInstruction(StpPre, fp, lr, sp), 0)
	entry.InsertAt(mir.NewInstruction(MovSPFP, fp, sp), 1)
	entry.InsertAt(mir.NewInstruction(SubSPImm, sp, sp, frameImm), 2)
	f.SetPrologueSize(3)

	for _, b := range f.Blocks() {
		last := b.Last()
		if last == nil || last.Opcode() != RetOp {
			continue
		}
		idx := b.IndexOf(last)
		b.InsertAt(mir.NewInstruction(AddSPImm, sp, sp, epilogueImm), idx)
		b.InsertAt(mir.NewInstruction(LdpPost, fp, lr, sp), idx+1)
		b.SetEpilogueSize(2)
	}
}
