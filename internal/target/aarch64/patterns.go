package aarch64

import (
	"encoding/binary"
	"math"

	"sable/internal/ir"
	"sable/internal/isel"
	"sable/internal/mir"
)

func widthFlag(t ir.Type) uint32 {
	if ir.IsFloat(t) {
		return 0
	}
	if bits, ok := t.(*ir.IntegerType); ok && bits.Bits() < 64 {
		return mir.FlagForce32Bit
	}
	return mir.FlagForce64Bit
}

func classOf(t ir.Type) mir.RegClass {
	if ir.IsFloat(t) {
		return mir.ClassFPR
	}
	return mir.ClassGPR
}

func newVReg(e isel.Emitter, t ir.Type) *mir.Register {
	class := classOf(t)
	id := e.Output().RegInfo().NewVirtualRegister(t, class)
	return mir.NewRegister(id, class, widthFlag(t))
}

func reflag(op mir.Operand, flags uint32) mir.Operand {
	if r, ok := op.(*mir.Register); ok {
		return mir.NewRegister(r.ID(), r.Class(), flags)
	}
	return op
}

func nodeType(n isel.Node) ir.Type {
	switch v := n.(type) {
	case isel.ValueNode:
		return v.Type()
	case *isel.Instruction:
		if v.Result() != nil {
			return v.Result().Type()
		}
	}
	panic("aarch64: node has no type")
}

type cc struct {
	cset uint32
	b    uint32
}

var compareCC = map[isel.NodeKind]cc{
	isel.KindICmpEq: {CsetEq, BEq},
	isel.KindICmpNe: {CsetNe, BNe},
	isel.KindICmpGt: {CsetGt, BGt},
	isel.KindICmpGe: {CsetGe, BGe},
	isel.KindICmpLt: {CsetLt, BLt},
	isel.KindICmpLe: {CsetLe, BLe},
	isel.KindUCmpGt: {CsetHi, BHi},
	isel.KindUCmpGe: {CsetHs, BHs},
	isel.KindUCmpLt: {CsetLo, BLo},
	isel.KindUCmpLe: {CsetLs, BLs},
	isel.KindFCmpEq: {CsetEq, BEq},
	isel.KindFCmpNe: {CsetNe, BNe},
	isel.KindFCmpGt: {CsetGt, BGt},
	isel.KindFCmpGe: {CsetGe, BGe},
	isel.KindFCmpLt: {CsetLt, BLt},
	isel.KindFCmpLe: {CsetLe, BLe},
}

var aapcsGPRArgs = []uint32{X0, X1, X2, X3, X4, X5, X6, X7}
var aapcsFPRArgs = []uint32{D0, D0 + 1, D0 + 2, D0 + 3, D0 + 4, D0 + 5, D0 + 6, D0 + 7}

func (info *InstructionInfo) build() {
	info.add(isel.KindRegister, isel.Pattern{
		Cost: 0,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			return newVReg(e, n.(*isel.Register).Type())
		},
	})
	info.add(isel.KindFunctionArgument, isel.Pattern{
		Cost: 0,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			arg := n.(*isel.FunctionArgument)
			reg := e.Output().Arg(arg.Slot())
			return mir.NewRegister(reg.ID(), reg.Class(), widthFlag(arg.Type()))
		},
	})
	info.add(isel.KindConstantInt, isel.Pattern{
		Cost: 1,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			c := n.(*isel.ConstantInt)
			dst := newVReg(e, c.Type())
			materializeInt(b, dst, c.Value())
			return dst
		},
	})
	info.add(isel.KindConstantFloat, isel.Pattern{
		Cost: 2,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			c := n.(*isel.ConstantFloat)
			bits := 64
			if ft, ok := c.Type().(*ir.FloatType); ok {
				bits = ft.Bits()
			}
			idx := e.Output().AddConstant(floatBytes(c.Value(), bits), bits/8)
			dst := newVReg(e, c.Type())
			b.Append(mir.NewInstruction(LdrFRM, dst, &mir.Memory{Base: mir.NewConstantPoolIndex(idx), OpSize: bits / 8}))
			return dst
		},
	})
	info.add(isel.KindFrameIndex, isel.Pattern{
		Cost: 1,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			fi := n.(*isel.FrameIndex)
			dst := newVReg(e, e.Context().PointerType(e.Context().I8Type()))
			b.Append(mir.NewInstruction(AddRRI, dst, info.regInfo.Register(X29),
				&mir.Memory{Base: mir.NewFrameIndex(fi.Slot()), OpSize: 8}))
			return dst
		},
	})
	info.add(isel.KindGlobalValue, isel.Pattern{
		Cost: 2,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			g := n.(*isel.GlobalValue)
			dst := newVReg(e, e.Context().PointerType(e.Context().I8Type()))
			b.Append(mir.NewInstruction(AdrpSym, dst, mir.NewGlobalAddress(g.Value(), 0)))
			b.Append(mir.NewInstruction(AddLoSym, dst, dst, mir.NewGlobalAddress(g.Value(), 0)))
			return dst
		},
	})

	binops := map[isel.NodeKind][2]uint32{
		isel.KindAdd:         {AddRRR, FAddRRR},
		isel.KindSub:         {SubRRR, FSubRRR},
		isel.KindIMul:        {MulRRR, 0},
		isel.KindUMul:        {MulRRR, 0},
		isel.KindFMul:        {0, FMulRRR},
		isel.KindFDiv:        {0, FDivRRR},
		isel.KindIDiv:        {SDivRRR, 0},
		isel.KindUDiv:        {UDivRRR, 0},
		isel.KindAnd:         {AndRRR, 0},
		isel.KindOr:          {OrrRRR, 0},
		isel.KindXor:         {EorRRR, 0},
		isel.KindShiftLeft:   {LslRRR, 0},
		isel.KindLShiftRight: {LsrRRR, 0},
		isel.KindAShiftRight: {AsrRRR, 0},
	}
	for kind, ops := range binops {
		ops := ops
		info.add(kind, isel.Pattern{
			Cost: 1,
			Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
				instr := n.(*isel.Instruction)
				t := instr.Result().Type()
				lhs := e.EmitOrGet(instr.Operand(0), b, true)
				rhs := e.EmitOrGet(instr.Operand(1), b, true)
				dst := newVReg(e, t)
				op := ops[0]
				if ir.IsFloat(t) {
					op = ops[1]
				}
				b.Append(mir.NewInstruction(op, dst, reflag(lhs, dst.Flags()), reflag(rhs, dst.Flags())))
				return dst
			},
		})
	}

	// remainder: msub dst, quotient, rhs, lhs
	for _, kind := range []isel.NodeKind{isel.KindIRem, isel.KindURem} {
		divOp := uint32(SDivRRR)
		if kind == isel.KindURem {
			divOp = UDivRRR
		}
		info.add(kind, isel.Pattern{
			Cost: 2,
			Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
				instr := n.(*isel.Instruction)
				t := instr.Result().Type()
				lhs := e.EmitOrGet(instr.Operand(0), b, true)
				rhs := e.EmitOrGet(instr.Operand(1), b, true)
				quot := newVReg(e, t)
				dst := newVReg(e, t)
				b.Append(mir.NewInstruction(divOp, quot, reflag(lhs, quot.Flags()), reflag(rhs, quot.Flags())))
				b.Append(mir.NewInstruction(MSubRRRR, dst, quot, reflag(rhs, dst.Flags()), reflag(lhs, dst.Flags())))
				return dst
			},
		})
	}

	for kind, codes := range compareCC {
		kind, codes := kind, codes
		info.add(kind, isel.Pattern{
			Cost: 2,
			Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
				instr := n.(*isel.Instruction)
				info.emitCompare(e, b, instr)
				dst := newVReg(e, instr.Result().Type())
				b.Append(mir.NewInstruction(codes.cset, reflag(dst, mir.FlagForce32Bit)))
				return dst
			},
		})
	}

	info.buildCastPatterns()
	info.buildMemoryPatterns()
	info.buildControlPatterns()
}

func (info *InstructionInfo) emitCompare(e isel.Emitter, b *mir.Block, instr *isel.Instruction) {
	t := nodeType(instr.Operand(0))
	lhs := e.EmitOrGet(instr.Operand(0), b, true)
	if instr.Kind() >= isel.KindFCmpEq && instr.Kind() <= isel.KindFCmpLe {
		rhs := e.EmitOrGet(instr.Operand(1), b, true)
		b.Append(mir.NewInstruction(FCmpRR, lhs, rhs))
		return
	}
	flag := widthFlag(t)
	if c, ok := instr.Operand(1).(*isel.ConstantInt); ok && c.Value() >= 0 && c.Value() < 4096 {
		b.Append(mir.NewInstruction(CmpRI, reflag(lhs, flag), mir.NewImmediateInt(c.Value(), mir.Imm32)))
		return
	}
	rhs := e.EmitOrGet(instr.Operand(1), b, true)
	b.Append(mir.NewInstruction(CmpRR, reflag(lhs, flag), reflag(rhs, flag)))
}

func (info *InstructionInfo) buildCastPatterns() {
	info.add(isel.KindZext, isel.Pattern{
		Cost: 1,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			from := nodeType(instr.Operand(0))
			src := e.EmitOrGet(instr.Operand(0), b, true)
			dst := newVReg(e, instr.Result().Type())
			var op uint32
			switch bits(from) {
			case 1, 8:
				op = UxtbRR
			case 16:
				op = UxthRR
			default:
				op = MovRR // a W write zeroes the upper half
			}
			b.Append(mir.NewInstruction(op, reflag(dst, mir.FlagForce32Bit), reflag(src, mir.FlagForce32Bit)))
			return dst
		},
	})
	info.add(isel.KindSext, isel.Pattern{
		Cost: 1,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			from := nodeType(instr.Operand(0))
			src := e.EmitOrGet(instr.Operand(0), b, true)
			dst := newVReg(e, instr.Result().Type())
			var op uint32
			switch bits(from) {
			case 1, 8:
				op = SxtbRR
			case 16:
				op = SxthRR
			default:
				op = SxtwRR
			}
			b.Append(mir.NewInstruction(op, reflag(dst, mir.FlagForce64Bit), reflag(src, mir.FlagForce32Bit)))
			return dst
		},
	})

	copyCast := func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
		instr := n.(*isel.Instruction)
		src := e.EmitOrGet(instr.Operand(0), b, true)
		dst := newVReg(e, instr.Result().Type())
		b.Append(mir.NewInstruction(MovRR, dst, reflag(src, dst.Flags())))
		return dst
	}
	info.add(isel.KindTrunc, isel.Pattern{Cost: 1, Emit: copyCast})
	info.add(isel.KindGenericCast, isel.Pattern{Cost: 1, Emit: copyCast})

	info.add(isel.KindSitofp, isel.Pattern{
		Cost: 1,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			src := e.EmitOrGet(instr.Operand(0), b, true)
			dst := newVReg(e, instr.Result().Type())
			b.Append(mir.NewInstruction(ScvtfRR, dst, reflag(src, widthFlag(nodeType(instr.Operand(0))))))
			return dst
		},
	})
	info.add(isel.KindFptosi, isel.Pattern{
		Cost: 1,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			src := e.EmitOrGet(instr.Operand(0), b, true)
			dst := newVReg(e, instr.Result().Type())
			b.Append(mir.NewInstruction(FcvtzsRR, dst, src))
			return dst
		},
	})
	info.add(isel.KindFpext, isel.Pattern{Cost: 1, Emit: copyFMov})
	info.add(isel.KindFptrunc, isel.Pattern{Cost: 1, Emit: copyFMov})
}

func copyFMov(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
	instr := n.(*isel.Instruction)
	src := e.EmitOrGet(instr.Operand(0), b, true)
	dst := newVReg(e, instr.Result().Type())
	b.Append(mir.NewInstruction(FMovRR, dst, src))
	return dst
}

func bits(t ir.Type) int {
	if it, ok := t.(*ir.IntegerType); ok {
		return it.Bits()
	}
	if ft, ok := t.(*ir.FloatType); ok {
		return ft.Bits()
	}
	return 64
}

func loadOpcodeFor(t ir.Type, layout ir.DataLayout) uint32 {
	if ir.IsFloat(t) {
		return LdrFRM
	}
	switch layout.Size(t) {
	case 1:
		return LdrbRM
	case 2:
		return LdrhRM
	}
	return LdrRM
}

func storeOpcodeFor(t ir.Type, layout ir.DataLayout) uint32 {
	if ir.IsFloat(t) {
		return StrFMR
	}
	switch layout.Size(t) {
	case 1:
		return StrbMR
	case 2:
		return StrhMR
	}
	return StrMR
}

func regFlagForSize(size int) uint32 {
	if size == 8 {
		return mir.FlagForce64Bit
	}
	return mir.FlagForce32Bit
}

func (info *InstructionInfo) buildMemoryPatterns() {
	info.add(isel.KindLoad, isel.Pattern{
		Cost:    1,
		Covered: []int{0},
		Match: func(n isel.Node, layout ir.DataLayout) bool {
			instr := n.(*isel.Instruction)
			_, ok := instr.Operand(0).(*isel.FrameIndex)
			return ok && instr.Result().Kind() != isel.KindMultiValue
		},
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			fi := instr.Operand(0).(*isel.FrameIndex)
			t := instr.Result().Type()
			size := e.Layout().Size(t)
			dst := newVReg(e, t)
			b.Append(mir.NewInstruction(loadOpcodeFor(t, e.Layout()),
				reflag(dst, loadRegFlag(t, size)),
				&mir.Memory{Base: mir.NewFrameIndex(fi.Slot()), OpSize: size}))
			return dst
		},
	})
	info.add(isel.KindLoad, isel.Pattern{
		Cost: 2,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			addr := e.EmitOrGet(instr.Operand(0), b, true)
			t := instr.Result().Type()
			size := e.Layout().Size(t)
			dst := newVReg(e, t)
			b.Append(mir.NewInstruction(loadOpcodeFor(t, e.Layout()),
				reflag(dst, loadRegFlag(t, size)),
				&mir.Memory{Base: reflag(addr, mir.FlagForce64Bit), OpSize: size}))
			return dst
		},
	})
	info.add(isel.KindStore, isel.Pattern{
		Cost:    1,
		Covered: []int{0},
		Match: func(n isel.Node, layout ir.DataLayout) bool {
			_, ok := n.(*isel.Instruction).Operand(0).(*isel.FrameIndex)
			return ok
		},
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			fi := instr.Operand(0).(*isel.FrameIndex)
			t := nodeType(instr.Operand(1))
			size := e.Layout().Size(t)
			value := e.EmitOrGet(instr.Operand(1), b, true)
			b.Append(mir.NewInstruction(storeOpcodeFor(t, e.Layout()),
				&mir.Memory{Base: mir.NewFrameIndex(fi.Slot()), OpSize: size},
				reflag(value, loadRegFlag(t, size))))
			return nil
		},
	})
	info.add(isel.KindStore, isel.Pattern{
		Cost: 2,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			addr := e.EmitOrGet(instr.Operand(0), b, true)
			t := nodeType(instr.Operand(1))
			size := e.Layout().Size(t)
			value := e.EmitOrGet(instr.Operand(1), b, true)
			b.Append(mir.NewInstruction(storeOpcodeFor(t, e.Layout()),
				&mir.Memory{Base: reflag(addr, mir.FlagForce64Bit), OpSize: size},
				reflag(value, loadRegFlag(t, size))))
			return nil
		},
	})

	info.add(isel.KindGEP, isel.Pattern{
		Cost: 2,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			return info.emitGEP(e, b, n.(*isel.Instruction))
		},
	})
	info.add(isel.KindExtractValue, isel.Pattern{
		Cost: 0,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			field := isel.ExtractOperand(n)
			if field == n {
				panic("aarch64: extractvalue without a multi-value aggregate")
			}
			return e.EmitOrGet(field, b, false)
		},
	})
}

func loadRegFlag(t ir.Type, size int) uint32 {
	if ir.IsFloat(t) {
		return 0
	}
	return regFlagForSize(size)
}

func (info *InstructionInfo) emitGEP(e isel.Emitter, b *mir.Block, instr *isel.Instruction) mir.Operand {
	base := e.EmitOrGet(instr.Operand(0), b, true)
	current := nodeType(instr.Operand(0))
	layout := e.Layout()
	ptrType := e.Context().PointerType(e.Context().I8Type())

	result := reflag(base, mir.FlagForce64Bit)
	disp := int64(0)
	flush := func() {
		if disp == 0 {
			return
		}
		dst := newVReg(e, ptrType)
		tmp := newVReg(e, e.Context().I64Type())
		materializeInt(b, tmp, disp)
		b.Append(mir.NewInstruction(AddRRR, dst, result, tmp))
		result = dst
		disp = 0
	}

	for _, index := range instr.Operands()[1:] {
		contained := current.Contained()
		if c, ok := index.(*isel.ConstantInt); ok {
			if ir.IsPointer(current) || ir.IsArray(current) {
				element := contained[0]
				disp += c.Value() * int64(layout.Size(element))
				current = element
			} else {
				for i := int64(0); i < c.Value(); i++ {
					disp += int64(layout.Size(contained[i]))
				}
				current = contained[c.Value()]
			}
			continue
		}
		element := contained[0]
		scale := layout.Size(element)
		idx := e.EmitOrGet(index, b, true)
		wide := newVReg(e, e.Context().I64Type())
		b.Append(mir.NewInstruction(SxtwRR, wide, reflag(idx, mir.FlagForce32Bit)))
		scaled := newVReg(e, e.Context().I64Type())
		factor := newVReg(e, e.Context().I64Type())
		materializeInt(b, factor, int64(scale))
		b.Append(mir.NewInstruction(MulRRR, scaled, wide, factor))
		flush()
		dst := newVReg(e, ptrType)
		b.Append(mir.NewInstruction(AddRRR, dst, result, scaled))
		result = dst
		current = element
	}
	flush()
	return result
}

func (info *InstructionInfo) buildControlPatterns() {
	info.add(isel.KindPhi, isel.Pattern{
		Cost: 0,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			return e.EmitOrGet(n.(*isel.Instruction).Result(), b, false)
		},
	})

	info.add(isel.KindRet, isel.Pattern{
		Cost: 1,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			if instr.NumOperands() > 0 {
				t := nodeType(instr.Operand(0))
				value := e.EmitOrGet(instr.Operand(0), b, true)
				if ir.IsFloat(t) {
					b.Append(mir.NewInstruction(FMovRR, info.regInfo.Register(D0), value))
				} else {
					b.Append(mir.NewInstruction(MovRR,
						info.regInfo.RegisterWithFlags(X0, widthFlag(t)), reflag(value, widthFlag(t))))
				}
			}
			b.Append(mir.NewInstruction(RetOp))
			return nil
		},
	})

	info.add(isel.KindJump, isel.Pattern{
		Cost:    1,
		Covered: []int{2},
		Match: func(n isel.Node, layout ir.DataLayout) bool {
			instr := n.(*isel.Instruction)
			if instr.NumOperands() != 3 {
				return false
			}
			cond, ok := instr.Operand(2).(*isel.Instruction)
			if !ok {
				return false
			}
			_, isCompare := compareCC[cond.Kind()]
			return isCompare
		},
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			cond := instr.Operand(2).(*isel.Instruction)
			info.emitCompare(e, b, cond)
			then := e.MIRBlock(instr.Operand(0).(*isel.Root))
			els := e.MIRBlock(instr.Operand(1).(*isel.Root))
			b.Append(mir.NewInstruction(compareCC[cond.Kind()].b, mir.NewBlockRef(then)))
			b.Append(mir.NewInstruction(B, mir.NewBlockRef(els)))
			return nil
		},
	})
	info.add(isel.KindJump, isel.Pattern{
		Cost: 2,
		Match: func(n isel.Node, layout ir.DataLayout) bool {
			return n.(*isel.Instruction).NumOperands() == 3
		},
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			cond := e.EmitOrGet(instr.Operand(2), b, true)
			then := e.MIRBlock(instr.Operand(0).(*isel.Root))
			els := e.MIRBlock(instr.Operand(1).(*isel.Root))
			b.Append(mir.NewInstruction(Cbnz, reflag(cond, mir.FlagForce32Bit), mir.NewBlockRef(then)))
			b.Append(mir.NewInstruction(B, mir.NewBlockRef(els)))
			return nil
		},
	})
	info.add(isel.KindJump, isel.Pattern{
		Cost: 1,
		Match: func(n isel.Node, layout ir.DataLayout) bool {
			return n.(*isel.Instruction).NumOperands() == 1
		},
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			b.Append(mir.NewInstruction(B, mir.NewBlockRef(e.MIRBlock(instr.Operand(0).(*isel.Root)))))
			return nil
		},
	})

	info.add(isel.KindSwitch, isel.Pattern{
		Cost: 2,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			t := nodeType(instr.Operand(0))
			value := e.EmitOrGet(instr.Operand(0), b, true)
			def := e.MIRBlock(instr.Operand(1).(*isel.Root))
			for idx := 2; idx+1 < instr.NumOperands(); idx += 2 {
				c := instr.Operand(idx).(*isel.ConstantInt)
				caseBlock := e.MIRBlock(instr.Operand(idx + 1).(*isel.Root))
				if c.Value() >= 0 && c.Value() < 4096 {
					b.Append(mir.NewInstruction(CmpRI, reflag(value, widthFlag(t)), mir.NewImmediateInt(c.Value(), mir.Imm32)))
				} else {
					tmp := newVReg(e, t)
					materializeInt(b, tmp, c.Value())
					b.Append(mir.NewInstruction(CmpRR, reflag(value, widthFlag(t)), tmp))
				}
				b.Append(mir.NewInstruction(BEq, mir.NewBlockRef(caseBlock)))
			}
			b.Append(mir.NewInstruction(B, mir.NewBlockRef(def)))
			return nil
		},
	})

	info.add(isel.KindCall, isel.Pattern{
		Cost: 3,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			return info.emitCall(e, b, n.(*isel.Instruction))
		},
	})
}

func (info *InstructionInfo) emitCall(e isel.Emitter, b *mir.Block, instr *isel.Instruction) mir.Operand {
	setupStart := len(b.Instructions())

	gprUsed, fprUsed := 0, 0
	for _, argNode := range instr.Operands()[1:] {
		t := nodeType(argNode)
		value := e.EmitOrGet(argNode, b, true)
		if ir.IsFloat(t) {
			b.Append(mir.NewInstruction(FMovRR, info.regInfo.Register(aapcsFPRArgs[fprUsed]), value))
			fprUsed++
			continue
		}
		b.Append(mir.NewInstruction(MovRR,
			info.regInfo.RegisterWithFlags(aapcsGPRArgs[gprUsed], mir.FlagForce64Bit),
			reflag(value, mir.FlagForce64Bit)))
		gprUsed++
	}

	var returnRegs []uint32
	var callResult ir.Type
	switch res := instr.Result().(type) {
	case *isel.MultiValue:
		intReturns := []uint32{X0, X1}
		for i := range res.Values() {
			if i < len(intReturns) {
				returnRegs = append(returnRegs, intReturns[i])
			}
		}
	case *isel.Register:
		callResult = res.Type()
		if ir.IsFloat(callResult) {
			returnRegs = []uint32{D0}
		} else {
			returnRegs = []uint32{X0}
		}
	}

	callInfo := &mir.CallInfo{ReturnRegisters: returnRegs, StartOffset: len(b.Instructions()) - setupStart}
	var call *mir.Instruction
	switch callee := instr.Operand(0).(type) {
	case *isel.GlobalValue:
		if f, ok := callee.Value().(*ir.Function); ok && !f.HasBody() {
			call = mir.NewCallInstruction(Bl, callInfo, mir.NewExternalSymbol(f.Name(), 0))
		} else {
			call = mir.NewCallInstruction(Bl, callInfo, mir.NewGlobalAddress(callee.Value(), 0))
		}
	default:
		ptr := e.EmitOrGet(instr.Operand(0), b, true)
		call = mir.NewCallInstruction(Blr, callInfo, reflag(ptr, mir.FlagForce64Bit))
	}
	b.Append(call)
	e.Output().RegisterCall(call)

	switch res := instr.Result().(type) {
	case *isel.MultiValue:
		intReturns := []uint32{X0, X1}
		for i, field := range res.Values() {
			if i >= len(intReturns) {
				break
			}
			dst := e.EmitOrGet(field, b, false)
			b.Append(mir.NewInstruction(MovRR, reflag(dst, mir.FlagForce64Bit), info.regInfo.Register(intReturns[i])))
		}
		return nil
	case *isel.Register:
		dst := newVReg(e, callResult)
		if ir.IsFloat(callResult) {
			b.Append(mir.NewInstruction(FMovRR, dst, info.regInfo.Register(D0)))
		} else {
			b.Append(mir.NewInstruction(MovRR, dst, info.regInfo.RegisterWithFlags(X0, dst.Flags())))
		}
		return dst
	}
	return nil
}

// materializeInt loads an integer with mov plus movk halves as needed.
func materializeInt(b *mir.Block, dst *mir.Register, value int64) {
	if value >= 0 && value < 1<<16 {
		b.Append(mir.NewInstruction(MovRI, dst, mir.NewImmediateInt(value, mir.Imm32)))
		return
	}
	if value < 0 && value >= -(1<<31) {
		b.Append(mir.NewInstruction(MovRI, reflag(dst, mir.FlagForce64Bit).(*mir.Register), mir.NewImmediateInt(value, mir.Imm64)))
		return
	}
	b.Append(mir.NewInstruction(MovRI, reflag(dst, mir.FlagForce64Bit).(*mir.Register), mir.NewImmediateInt(value&0xFFFF, mir.Imm32)))
	for shift := 16; shift < 64; shift += 16 {
		part := (value >> shift) & 0xFFFF
		if part == 0 {
			continue
		}
		b.Append(mir.NewInstruction(MovKShift16,
			reflag(dst, mir.FlagForce64Bit).(*mir.Register),
			mir.NewImmediateInt(part, mir.Imm32),
			mir.NewImmediateInt(int64(shift), mir.Imm8)))
	}
}

func floatBytes(value float64, bits int) []byte {
	if bits == 32 {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(value)))
		return buf[:]
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(value))
	return buf[:]
}
