package ir

// ConstantFolder re-runs the builder's fold rules over existing
// instructions, collapsing constant expressions the frontend produced
// before their operands were known and conditional jumps whose condition
// became constant.
type ConstantFolder struct {
	ctx     *Context
	folder  Folder
	restart bool
}

func NewConstantFolder(ctx *Context) *ConstantFolder {
	return &ConstantFolder{ctx: ctx, folder: Folder{ctx: ctx}}
}

func (ConstantFolder) Name() string { return "constfold" }

func (p *ConstantFolder) TakeRestart() bool {
	r := p.restart
	p.restart = false
	return r
}

func (p *ConstantFolder) RunOnInstruction(inst *Instruction) bool {
	f := inst.Parent().Parent()

	var result Value
	switch {
	case inst.Opcode().IsCast():
		result = p.folder.FoldCast(inst.Opcode(), inst.Operand(0), inst.Type())
	case inst.Opcode().IsBinary() || inst.Opcode().IsCompare():
		result = p.folder.FoldBinOp(inst.Opcode(), inst.Operand(0), inst.Operand(1))
	case inst.Opcode() == OpJump && inst.NumOperands() == 3:
		then := inst.Operand(0).(*Block)
		els := inst.Operand(1).(*Block)
		builder := NewBuilder(p.ctx)
		builder.SetBlock(inst.Parent())
		builder.SetInsertPoint(inst)

		if then == els {
			builder.CreateJump(then)
			f.RemoveInstruction(inst)
			p.restart = true
			return true
		}
		cond, ok := inst.Operand(2).(*ConstantInt)
		if !ok {
			return false
		}
		if cond.Value() != 0 {
			builder.CreateJump(then)
		} else {
			builder.CreateJump(els)
		}
		f.RemoveInstruction(inst)
		p.restart = true
		return true
	}

	if result == nil {
		return false
	}
	f.Replace(inst, result)
	f.RemoveInstruction(inst)
	p.restart = true
	return true
}
