package x64

import (
	"sable/internal/ir"
	"sable/internal/target"
)

// Legalizer rewrites IR the instruction set cannot express directly:
// 64-bit unsigned/float conversions become branchy scalar sequences, and
// SysV var-arg functions get an empty header block for later lowering to
// fill without disturbing the real entry.
type Legalizer struct {
	ctx     *ir.Context
	spec    target.Spec
	restart bool
}

func NewLegalizer(ctx *ir.Context, spec target.Spec) *Legalizer {
	return &Legalizer{ctx: ctx, spec: spec}
}

func (Legalizer) Name() string { return "x64legalize" }

func (p *Legalizer) TakeRestart() bool {
	r := p.restart
	p.restart = false
	return r
}

func (p *Legalizer) Init(unit *ir.Unit) {
	for _, f := range unit.Functions() {
		if !f.HasBody() || !f.FuncType().IsVarArg() {
			continue
		}
		cc := f.CallConv()
		if cc == ir.CallConvDefault {
			cc = p.spec.DefaultCallConv()
		}
		if cc != ir.CallConvX64SysV {
			continue
		}
		realEntry := f.Entry()
		vaHeader := f.InsertBlockBefore(realEntry, "vaheader")
		builder := ir.NewBuilder(p.ctx)
		builder.SetBlock(vaHeader)
		builder.CreateJump(realEntry)
	}
}

func (p *Legalizer) RunOnInstruction(inst *ir.Instruction) bool {
	switch inst.Opcode() {
	case ir.OpUitofp:
		return p.legalizeUitofp(inst)
	case ir.OpFptoui:
		return p.legalizeFptoui(inst)
	}
	return false
}

// legalizeUitofp rewrites u64→float: non-negative values convert signed on
// the fast path; otherwise halve with the low bit folded back in, convert,
// and double.
func (p *Legalizer) legalizeUitofp(inst *ir.Instruction) bool {
	from, ok := inst.Operand(0).Type().(*ir.IntegerType)
	if !ok || from.Bits() != 64 {
		return false
	}
	to := inst.Type()
	f := inst.Parent().Parent()

	builder := ir.NewBuilder(p.ctx)
	builder.SetBlock(inst.Parent())
	builder.SetInsertPoint(inst)

	left := inst.Operand(0)
	one := p.ctx.ConstantInt(p.ctx.I64Type(), 1)
	zero := p.ctx.ConstantInt(p.ctx.I64Type(), 0)

	result := builder.CreateAllocate(to, inst.Name()+".cvt")
	merge := inst.Parent().Split(result)
	fast := f.InsertBlockAfter(inst.Parent(), "fast")
	slow := f.InsertBlockAfter(inst.Parent(), "slow")
	builder.SetBlock(inst.Parent())
	builder.SetInsertPoint(inst)

	isLarge := builder.CreateCmp(ir.OpICmpLt, left, zero, "")
	builder.CreateCondJump(slow, fast, isLarge)

	builder.SetBlock(fast)
	builder.CreateStore(result, builder.CreateSitofp(left, to, ""))
	builder.CreateJump(merge)

	builder.SetBlock(slow)
	shifted := builder.CreateLShr(left, one, "")
	lsb := builder.CreateAnd(left, one, "")
	folded := builder.CreateOr(shifted, lsb, "")
	asSigned := builder.CreateSitofp(folded, to, "")
	builder.CreateStore(result, builder.CreateAdd(asSigned, asSigned, ""))
	builder.CreateJump(merge)

	builder.SetBlock(merge)
	builder.SetInsertPoint(merge.First())
	builder.SetInsertBefore(true)
	loaded := builder.CreateLoad(result, "")
	f.Replace(inst, loaded)
	merge.Remove(inst)
	p.restart = true
	return true
}

// legalizeFptoui rewrites float→u64: values under 2^63 convert signed; the
// rest subtract 2^63 first and OR the top bit back afterwards.
func (p *Legalizer) legalizeFptoui(inst *ir.Instruction) bool {
	to, ok := inst.Type().(*ir.IntegerType)
	if !ok || to.Bits() != 64 {
		return false
	}
	from := inst.Operand(0).Type().(*ir.FloatType)
	f := inst.Parent().Parent()

	builder := ir.NewBuilder(p.ctx)
	builder.SetBlock(inst.Parent())
	builder.SetInsertPoint(inst)

	left := inst.Operand(0)
	big := p.ctx.ConstantInt(p.ctx.I64Type(), -0x8000000000000000)
	limitValue := 9223372036854775808.0
	if from.Bits() == 32 {
		limitValue = 9.223372e18
	}
	limit := p.ctx.ConstantFloat(from, limitValue)

	result := builder.CreateAllocate(to, inst.Name()+".cvt")
	merge := inst.Parent().Split(result)
	fast := f.InsertBlockAfter(inst.Parent(), "fast")
	slow := f.InsertBlockAfter(inst.Parent(), "slow")
	builder.SetBlock(inst.Parent())
	builder.SetInsertPoint(inst)

	inRange := builder.CreateCmp(ir.OpFCmpLt, left, limit, "")
	builder.CreateCondJump(fast, slow, inRange)

	builder.SetBlock(fast)
	builder.CreateStore(result, builder.CreateFptosi(left, to, ""))
	builder.CreateJump(merge)

	builder.SetBlock(slow)
	shifted := builder.CreateSub(left, limit, "")
	converted := builder.CreateFptosi(shifted, to, "")
	builder.CreateStore(result, builder.CreateOr(converted, big, ""))
	builder.CreateJump(merge)

	builder.SetBlock(merge)
	builder.SetInsertPoint(merge.First())
	builder.SetInsertBefore(true)
	loaded := builder.CreateLoad(result, "")
	f.Replace(inst, loaded)
	merge.Remove(inst)
	p.restart = true
	return true
}
