package x64

import (
	"sable/internal/mir"
	"sable/internal/target"
)

// SaveCallRegisters runs after colouring: push every callee-saved register
// the function ever uses at entry (mirrored pops before each return), and
// around every call push the caller-saved registers live across it that
// are not part of the call's return set. An odd push count gets an 8-byte
// stack adjust to keep 16-byte alignment. The pass also finalizes the
// frame layout, since no later pass creates stack slots.
type SaveCallRegisters struct {
	regInfo   *RegisterInfo
	instrInfo target.InstructionInfo
}

func NewSaveCallRegisters(regInfo *RegisterInfo, instrInfo target.InstructionInfo) *SaveCallRegisters {
	return &SaveCallRegisters{regInfo: regInfo, instrInfo: instrInfo}
}

func (SaveCallRegisters) Name() string { return "x64savecall" }

func (p *SaveCallRegisters) RunOnMachineFunction(f *mir.Function) bool {
	f.PatchFrameSize(16)

	var pushed []*mir.Register
	at := f.PrologueSize()

	for _, save := range p.regInfo.CalleeSaved() {
		if save == RBP {
			continue // the prologue already pushed it
		}
		if !f.RegInfo().IsRegisterEverLive(save, p.regInfo) {
			continue
		}
		reg := p.regInfo.Register(save)
		f.Entry().InsertAt(mir.NewInstruction(Push64r, reg), at)
		at++
		pushed = append(pushed, reg)
	}

	rsp := p.regInfo.Register(RSP)
	eight := mir.NewImmediateInt(8, mir.Imm8)
	if len(pushed)%2 != 0 {
		f.Entry().InsertAt(mir.NewInstruction(Sub64r8i, rsp, eight), at)
		at++
	}

	if len(pushed) > 0 {
		for _, b := range f.Blocks() {
			last := b.Last()
			if last == nil || !p.instrInfo.Descriptor(last.Opcode()).IsReturn {
				continue
			}
			pos := b.IndexOf(last) - b.EpilogueSize()
			if len(pushed)%2 != 0 {
				b.InsertAt(mir.NewInstruction(Add64r8i, rsp, eight), pos)
				pos++
			}
			for i := len(pushed) - 1; i >= 0; i-- {
				b.InsertAt(mir.NewInstruction(Pop64r, pushed[i]), pos)
				pos++
			}
		}
	}

	for _, call := range f.Calls() {
		p.saveAroundCall(f, call)
	}
	return false
}

func (p *SaveCallRegisters) saveAroundCall(f *mir.Function, call *mir.Instruction) {
	block := call.Parent()
	info := call.Call()

	var pushed []*mir.Register
	callIdx := f.InstructionIndex(call)
	at := block.IndexOf(call) - info.StartOffset
	rsp := p.regInfo.Register(RSP)
	eight := mir.NewImmediateInt(8, mir.Imm8)

	for _, save := range p.regInfo.CallerSaved() {
		isReturnReg := false
		for _, ret := range info.ReturnRegisters {
			if p.regInfo.IsSameRegister(save, ret) {
				isReturnReg = true
				break
			}
		}
		if isReturnReg {
			continue
		}
		if !f.RegInfo().IsRegisterLive(f, callIdx, save, p.regInfo) {
			continue
		}
		reg := p.regInfo.Register(save)
		if save >= XMM0 {
			// no push for SSE registers: spill through the stack pointer
			block.InsertAt(mir.NewInstruction(Sub64r8i, rsp, eight), at)
			block.InsertAt(mir.NewInstruction(Movsd_mr, &mir.Memory{Base: rsp, OpSize: 8}, reg), at+1)
			at += 2
		} else {
			block.InsertAt(mir.NewInstruction(Push64r, reg), at)
			at++
		}
		pushed = append(pushed, reg)
	}

	if len(pushed)%2 != 0 {
		block.InsertAt(mir.NewInstruction(Sub64r8i, rsp, eight), at)
		at++
	}

	// restore after the call, in reverse
	at = block.IndexOf(call) + 1
	if len(pushed)%2 != 0 {
		block.InsertAt(mir.NewInstruction(Add64r8i, rsp, eight), at)
		at++
	}
	for i := len(pushed) - 1; i >= 0; i-- {
		reg := pushed[i]
		if reg.ID() >= XMM0 {
			block.InsertAt(mir.NewInstruction(Movsd_rm, reg, &mir.Memory{Base: rsp, OpSize: 8}), at)
			block.InsertAt(mir.NewInstruction(Add64r8i, rsp, eight), at+1)
			at += 2
		} else {
			block.InsertAt(mir.NewInstruction(Pop64r, reg), at)
			at++
		}
	}
}
