package x64

import (
	"fmt"

	"sable/internal/ir"
	"sable/internal/isel"
	"sable/internal/mir"
	"sable/internal/target"
)

// InstructionInfo is the x86-64 opcode table plus the selection patterns,
// indexed by node kind. Pattern order is the declaration order; ties in
// tiling cost go to the first declared.
type InstructionInfo struct {
	regInfo  *RegisterInfo
	spec     target.Spec
	patterns map[isel.NodeKind][]isel.Pattern
}

func NewInstructionInfo(regInfo *RegisterInfo, spec target.Spec) *InstructionInfo {
	info := &InstructionInfo{
		regInfo:  regInfo,
		spec:     spec,
		patterns: make(map[isel.NodeKind][]isel.Pattern),
	}
	info.build()
	return info
}

func (info *InstructionInfo) Descriptor(opcode uint32) target.InstructionDescriptor {
	d, ok := descriptors[opcode]
	if !ok {
		panic(fmt.Sprintf("x64: unknown opcode %d", opcode))
	}
	return d
}

func (info *InstructionInfo) Patterns(kind isel.NodeKind) []isel.Pattern {
	return info.patterns[kind]
}

func (info *InstructionInfo) add(kind isel.NodeKind, p isel.Pattern) {
	info.patterns[kind] = append(info.patterns[kind], p)
}

func (info *InstructionInfo) build() {
	info.buildValuePatterns()
	info.buildArithmeticPatterns()
	info.buildComparePatterns()
	info.buildCastPatterns()
	info.buildMemoryPatterns()
	info.buildControlPatterns()
	info.buildCallPatterns()
}

// ---- value leaves ----

func (info *InstructionInfo) buildValuePatterns() {
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
			materializeInt(b, dst, c.Value(), typeBits(c.Type()))
			return dst
		},
	})

	info.add(isel.KindConstantFloat, isel.Pattern{
		Cost: 2,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			c := n.(*isel.ConstantFloat)
			bits := typeBits(c.Type())
			idx := e.Output().AddConstant(floatConstBytes(c.Value(), bits), bits/8)
			dst := newVReg(e, c.Type())
			op := Movsd_rm
			if bits == 32 {
				op = Movss_rm
			}
			b.Append(mir.NewInstruction(op, dst, &mir.Memory{Base: mir.NewConstantPoolIndex(idx), OpSize: bits / 8}))
			return dst
		},
	})

	info.add(isel.KindFrameIndex, isel.Pattern{
		Cost: 1,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			fi := n.(*isel.FrameIndex)
			dst := newVReg(e, e.Context().PointerType(e.Context().I8Type()))
			b.Append(mir.NewInstruction(Lea64rm, dst, frameMemory(fi.Slot(), 8)))
			return dst
		},
	})

	info.add(isel.KindGlobalValue, isel.Pattern{
		Cost: 1,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			g := n.(*isel.GlobalValue)
			dst := newVReg(e, e.Context().PointerType(e.Context().I8Type()))
			b.Append(mir.NewInstruction(Lea64rm, dst, &mir.Memory{Base: mir.NewGlobalAddress(g.Value(), 0), OpSize: 8}))
			return dst
		},
	})
}

// ---- integer and float arithmetic ----

type binOpOpcodes struct {
	rr32, rr64 uint32
	ri32, ri64 uint32
	hasImm     bool
	ss, sd     uint32
	hasFloat   bool
}

func (info *InstructionInfo) buildArithmeticPatterns() {
	binops := map[isel.NodeKind]binOpOpcodes{
		isel.KindAdd:  {rr32: Add32rr, rr64: Add64rr, ri32: Add32ri, ri64: Add64ri, hasImm: true, ss: Addss_rr, sd: Addsd_rr, hasFloat: true},
		isel.KindSub:  {rr32: Sub32rr, rr64: Sub64rr, ri32: Sub32ri, ri64: Sub64ri, hasImm: true, ss: Subss_rr, sd: Subsd_rr, hasFloat: true},
		isel.KindAnd:  {rr32: And32rr, rr64: And64rr, ri32: And32ri, ri64: And64ri, hasImm: true},
		isel.KindOr:   {rr32: Or32rr, rr64: Or64rr, ri32: Or32ri, ri64: Or64ri, hasImm: true},
		isel.KindXor:  {rr32: Xor32rr, rr64: Xor64rr, ri32: Xor32ri, ri64: Xor64ri, hasImm: true},
		isel.KindIMul: {rr32: IMul32rr, rr64: IMul64rr},
		isel.KindUMul: {rr32: IMul32rr, rr64: IMul64rr},
		isel.KindFMul: {ss: Mulss_rr, sd: Mulsd_rr, hasFloat: true},
		isel.KindFDiv: {ss: Divss_rr, sd: Divsd_rr, hasFloat: true},
	}

	for kind, ops := range binops {
		ops := ops
		if ops.hasImm {
			// register-immediate form absorbs a constant right operand
			info.add(kind, isel.Pattern{
				Cost:    1,
				Covered: []int{1},
				Match: func(n isel.Node, layout ir.DataLayout) bool {
					instr := n.(*isel.Instruction)
					if ir.IsFloat(instr.Result().Type()) {
						return false
					}
					c, ok := instr.Operand(1).(*isel.ConstantInt)
					return ok && fitsImm32(c.Value())
				},
				Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
					instr := n.(*isel.Instruction)
					t := instr.Result().Type()
					lhs := e.EmitOrGet(instr.Operand(0), b, true)
					c := instr.Operand(1).(*isel.ConstantInt)
					dst := newVReg(e, t)
					b.Append(mir.NewInstruction(movRR(t), dst, reflag(lhs, dst.Flags())))
					b.Append(mir.NewInstruction(is32or64(t, ops.ri32, ops.ri64), dst, mir.NewImmediateInt(c.Value(), mir.Imm32)))
					return dst
				},
			})
		}
		if ops.rr32 != 0 || ops.rr64 != 0 {
			info.add(kind, isel.Pattern{
				Cost: 2,
				Match: func(n isel.Node, layout ir.DataLayout) bool {
					return !ir.IsFloat(n.(*isel.Instruction).Result().Type())
				},
				Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
					instr := n.(*isel.Instruction)
					t := instr.Result().Type()
					lhs := e.EmitOrGet(instr.Operand(0), b, true)
					rhs := e.EmitOrGet(instr.Operand(1), b, true)
					dst := newVReg(e, t)
					b.Append(mir.NewInstruction(movRR(t), dst, reflag(lhs, dst.Flags())))
					b.Append(mir.NewInstruction(is32or64(t, ops.rr32, ops.rr64), dst, reflag(rhs, dst.Flags())))
					return dst
				},
			})
		}
		if ops.hasFloat {
			info.add(kind, isel.Pattern{
				Cost: 2,
				Match: func(n isel.Node, layout ir.DataLayout) bool {
					return ir.IsFloat(n.(*isel.Instruction).Result().Type())
				},
				Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
					instr := n.(*isel.Instruction)
					t := instr.Result().Type()
					lhs := e.EmitOrGet(instr.Operand(0), b, true)
					rhs := e.EmitOrGet(instr.Operand(1), b, true)
					dst := newVReg(e, t)
					op := ops.sd
					if typeBits(t) == 32 {
						op = ops.ss
					}
					b.Append(mir.NewInstruction(Movaps_rr, dst, lhs))
					b.Append(mir.NewInstruction(op, dst, rhs))
					return dst
				},
			})
		}
	}

	// division and remainder through rax/rdx
	divKinds := []struct {
		kind   isel.NodeKind
		signed bool
		remRes bool
	}{
		{isel.KindIDiv, true, false},
		{isel.KindUDiv, false, false},
		{isel.KindIRem, true, true},
		{isel.KindURem, false, true},
	}
	for _, dk := range divKinds {
		dk := dk
		info.add(dk.kind, isel.Pattern{
			Cost: 4,
			Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
				instr := n.(*isel.Instruction)
				t := instr.Result().Type()
				lhs := e.EmitOrGet(instr.Operand(0), b, true)
				rhs := e.EmitOrGet(instr.Operand(1), b, true)
				wide := typeBits(t) == 64

				axID, dxID := uint32(EAX), uint32(EDX)
				if wide {
					axID, dxID = RAX, RDX
				}
				ax := info.regInfo.Register(axID)
				b.Append(mir.NewInstruction(is32or64(t, Mov32rr, Mov64rr), ax, reflag(lhs, widthFlag(t))))
				if dk.signed {
					if wide {
						b.Append(mir.NewInstruction(Cqo))
					} else {
						b.Append(mir.NewInstruction(Cdq))
					}
				} else {
					edx := info.regInfo.Register(EDX)
					b.Append(mir.NewInstruction(Xor32rr, edx, edx))
				}
				divOp := is32or64(t, IDiv32r, IDiv64r)
				if !dk.signed {
					divOp = is32or64(t, Div32r, Div64r)
				}
				b.Append(mir.NewInstruction(divOp, reflag(rhs, widthFlag(t))))
				dst := newVReg(e, t)
				src := axID
				if dk.remRes {
					src = dxID
				}
				b.Append(mir.NewInstruction(is32or64(t, Mov32rr, Mov64rr), dst, info.regInfo.Register(src)))
				return dst
			},
		})
	}

	// shifts: immediate count or through cl
	shifts := map[isel.NodeKind][3]uint32{
		isel.KindShiftLeft:   {Shl32rCL, Shl64rCL, Shl64ri},
		isel.KindLShiftRight: {Shr32rCL, Shr64rCL, Shr64ri},
		isel.KindAShiftRight: {Sar32rCL, Sar64rCL, Sar64ri},
	}
	for kind, ops := range shifts {
		ops := ops
		info.add(kind, isel.Pattern{
			Cost:    1,
			Covered: []int{1},
			Match: func(n isel.Node, layout ir.DataLayout) bool {
				_, ok := n.(*isel.Instruction).Operand(1).(*isel.ConstantInt)
				return ok
			},
			Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
				instr := n.(*isel.Instruction)
				t := instr.Result().Type()
				lhs := e.EmitOrGet(instr.Operand(0), b, true)
				c := instr.Operand(1).(*isel.ConstantInt)
				dst := newVReg(e, t)
				b.Append(mir.NewInstruction(movRR(t), dst, reflag(lhs, dst.Flags())))
				b.Append(mir.NewInstruction(ops[2], dst, mir.NewImmediateInt(c.Value(), mir.Imm8)))
				return dst
			},
		})
		info.add(kind, isel.Pattern{
			Cost: 2,
			Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
				instr := n.(*isel.Instruction)
				t := instr.Result().Type()
				lhs := e.EmitOrGet(instr.Operand(0), b, true)
				rhs := e.EmitOrGet(instr.Operand(1), b, true)
				dst := newVReg(e, t)
				cl := info.regInfo.Register(ECX)
				b.Append(mir.NewInstruction(movRR(t), dst, reflag(lhs, dst.Flags())))
				b.Append(mir.NewInstruction(Mov32rr, cl, reflag(rhs, mir.FlagForce32Bit)))
				b.Append(mir.NewInstruction(is32or64(t, ops[0], ops[1]), dst))
				return dst
			},
		})
	}
}

// ---- comparisons ----

type ccOpcodes struct {
	set uint32
	jcc uint32
}

var compareCC = map[isel.NodeKind]ccOpcodes{
	isel.KindICmpEq: {Sete8r, Je},
	isel.KindICmpNe: {Setne8r, Jne},
	isel.KindICmpGt: {Setg8r, Jg},
	isel.KindICmpGe: {Setge8r, Jge},
	isel.KindICmpLt: {Setl8r, Jl},
	isel.KindICmpLe: {Setle8r, Jle},
	isel.KindUCmpGt: {Seta8r, Ja},
	isel.KindUCmpGe: {Setae8r, Jae},
	isel.KindUCmpLt: {Setb8r, Jb},
	isel.KindUCmpLe: {Setbe8r, Jbe},
	isel.KindFCmpEq: {Sete8r, Je},
	isel.KindFCmpNe: {Setne8r, Jne},
	isel.KindFCmpGt: {Seta8r, Ja},
	isel.KindFCmpGe: {Setae8r, Jae},
	isel.KindFCmpLt: {Setb8r, Jb},
	isel.KindFCmpLe: {Setbe8r, Jbe},
}

func isFloatCompare(kind isel.NodeKind) bool {
	return kind >= isel.KindFCmpEq && kind <= isel.KindFCmpLe
}

// emitCompare materializes the flags for a compare node.
func (info *InstructionInfo) emitCompare(e isel.Emitter, b *mir.Block, instr *isel.Instruction) {
	lhsType := nodeType(instr.Operand(0))
	lhs := e.EmitOrGet(instr.Operand(0), b, true)

	if isFloatCompare(instr.Kind()) {
		rhs := e.EmitOrGet(instr.Operand(1), b, true)
		op := Ucomisd_rr
		if typeBits(lhsType) == 32 {
			op = Ucomiss_rr
		}
		b.Append(mir.NewInstruction(op, lhs, rhs))
		return
	}

	flag := widthFlag(lhsType)
	if c, ok := instr.Operand(1).(*isel.ConstantInt); ok && fitsImm32(c.Value()) {
		b.Append(mir.NewInstruction(is32or64(lhsType, Cmp32ri, Cmp64ri),
			reflag(lhs, flag), mir.NewImmediateInt(c.Value(), mir.Imm32)))
		return
	}
	rhs := e.EmitOrGet(instr.Operand(1), b, true)
	b.Append(mir.NewInstruction(is32or64(lhsType, Cmp32rr, Cmp64rr), reflag(lhs, flag), reflag(rhs, flag)))
}

func (info *InstructionInfo) buildComparePatterns() {
	for kind, cc := range compareCC {
		kind, cc := kind, cc
		info.add(kind, isel.Pattern{
			Cost: 2,
			Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
				instr := n.(*isel.Instruction)
				info.emitCompare(e, b, instr)
				dst := newVReg(e, instr.Result().Type())
				b.Append(mir.NewInstruction(cc.set, reflag(dst, mir.FlagForce8Bit)))
				return dst
			},
		})
	}
}

// ---- casts ----

func (info *InstructionInfo) buildCastPatterns() {
	info.add(isel.KindZext, isel.Pattern{
		Cost: 1,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			from := nodeType(instr.Operand(0))
			to := instr.Result().Type()
			src := e.EmitOrGet(instr.Operand(0), b, true)
			dst := newVReg(e, to)
			switch typeBits(from) {
			case 1, 8:
				b.Append(mir.NewInstruction(Movzx32r8, reflag(dst, mir.FlagForce32Bit), reflag(src, mir.FlagForce8Bit)))
			case 16:
				b.Append(mir.NewInstruction(Movzx32r16, reflag(dst, mir.FlagForce32Bit), reflag(src, mir.FlagForce16Bit)))
			default:
				// writing the 32-bit register zeroes the upper half
				b.Append(mir.NewInstruction(Mov32rr, reflag(dst, mir.FlagForce32Bit), reflag(src, mir.FlagForce32Bit)))
			}
			return dst
		},
	})

	info.add(isel.KindSext, isel.Pattern{
		Cost: 1,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			from := nodeType(instr.Operand(0))
			to := instr.Result().Type()
			src := e.EmitOrGet(instr.Operand(0), b, true)
			dst := newVReg(e, to)
			wide := typeBits(to) == 64
			switch typeBits(from) {
			case 1, 8:
				op := Movsx32r8
				if wide {
					op = Movsx64r8
				}
				b.Append(mir.NewInstruction(op, dst, reflag(src, mir.FlagForce8Bit)))
			case 16:
				op := Movsx32r16
				if wide {
					op = Movsx64r16
				}
				b.Append(mir.NewInstruction(op, dst, reflag(src, mir.FlagForce16Bit)))
			default:
				b.Append(mir.NewInstruction(Movsx64r32, dst, reflag(src, mir.FlagForce32Bit)))
			}
			return dst
		},
	})

	truncLike := func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
		instr := n.(*isel.Instruction)
		to := instr.Result().Type()
		src := e.EmitOrGet(instr.Operand(0), b, true)
		dst := newVReg(e, to)
		b.Append(mir.NewInstruction(movRR(to), dst, reflag(src, dst.Flags())))
		return dst
	}
	info.add(isel.KindTrunc, isel.Pattern{Cost: 1, Emit: truncLike})
	info.add(isel.KindGenericCast, isel.Pattern{Cost: 1, Emit: truncLike})

	info.add(isel.KindSitofp, isel.Pattern{
		Cost: 2,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			from := nodeType(instr.Operand(0))
			to := instr.Result().Type()
			src := e.EmitOrGet(instr.Operand(0), b, true)
			dst := newVReg(e, to)
			wideSrc := typeBits(from) == 64
			var op uint32
			if typeBits(to) == 32 {
				op = Cvtsi2ss32
				if wideSrc {
					op = Cvtsi2ss64
				}
			} else {
				op = Cvtsi2sd32
				if wideSrc {
					op = Cvtsi2sd64
				}
			}
			srcFlag := mir.FlagForce32Bit
			if wideSrc {
				srcFlag = mir.FlagForce64Bit
			}
			b.Append(mir.NewInstruction(op, dst, reflag(src, srcFlag)))
			return dst
		},
	})

	// uitofp below 64 bits zero-extends then converts signed; the 64-bit
	// case was rewritten by the legalizer.
	info.add(isel.KindUitofp, isel.Pattern{
		Cost: 3,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			to := instr.Result().Type()
			src := e.EmitOrGet(instr.Operand(0), b, true)
			wide := newVReg(e, e.Context().I64Type())
			b.Append(mir.NewInstruction(Mov32rr, reflag(wide, mir.FlagForce32Bit), reflag(src, mir.FlagForce32Bit)))
			dst := newVReg(e, to)
			op := Cvtsi2sd64
			if typeBits(to) == 32 {
				op = Cvtsi2ss64
			}
			b.Append(mir.NewInstruction(op, dst, reflag(wide, mir.FlagForce64Bit)))
			return dst
		},
	})

	fptoint := func(e isel.Emitter, b *mir.Block, n isel.Node, unsigned bool) mir.Operand {
		instr := n.(*isel.Instruction)
		from := nodeType(instr.Operand(0))
		to := instr.Result().Type()
		src := e.EmitOrGet(instr.Operand(0), b, true)
		dst := newVReg(e, to)
		fromSingle := typeBits(from) == 32
		// unsigned narrow results convert through the 64-bit form
		wideDst := typeBits(to) == 64 || unsigned
		var op uint32
		if fromSingle {
			op = Cvttss2si32
			if wideDst {
				op = Cvttss2si64
			}
		} else {
			op = Cvttsd2si32
			if wideDst {
				op = Cvttsd2si64
			}
		}
		dstFlag := mir.FlagForce32Bit
		if wideDst {
			dstFlag = mir.FlagForce64Bit
		}
		b.Append(mir.NewInstruction(op, reflag(dst, dstFlag), src))
		return dst
	}
	info.add(isel.KindFptosi, isel.Pattern{
		Cost: 2,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			return fptoint(e, b, n, false)
		},
	})
	info.add(isel.KindFptoui, isel.Pattern{
		Cost: 2,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			return fptoint(e, b, n, true)
		},
	})

	info.add(isel.KindFpext, isel.Pattern{
		Cost: 1,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			src := e.EmitOrGet(instr.Operand(0), b, true)
			dst := newVReg(e, instr.Result().Type())
			b.Append(mir.NewInstruction(Cvtss2sd, dst, src))
			return dst
		},
	})
	info.add(isel.KindFptrunc, isel.Pattern{
		Cost: 1,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			src := e.EmitOrGet(instr.Operand(0), b, true)
			dst := newVReg(e, instr.Result().Type())
			b.Append(mir.NewInstruction(Cvtsd2ss, dst, src))
			return dst
		},
	})
}

// ---- loads, stores, gep, extractvalue ----

func (info *InstructionInfo) buildMemoryPatterns() {
	// load straight out of a frame slot, absorbing the address leaf
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
			b.Append(mir.NewInstruction(loadOpcode(t, e.Layout()),
				reflag(dst, loadFlag(t, size)), frameMemory(fi.Slot(), size)))
			return dst
		},
	})

	info.add(isel.KindLoad, isel.Pattern{
		Cost: 2,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			addr := e.EmitOrGet(instr.Operand(0), b, true)
			if multi, ok := instr.Result().(*isel.MultiValue); ok {
				info.emitStructLoad(e, b, multi, addr)
				return nil
			}
			t := instr.Result().Type()
			size := e.Layout().Size(t)
			dst := newVReg(e, t)
			b.Append(mir.NewInstruction(loadOpcode(t, e.Layout()),
				reflag(dst, loadFlag(t, size)), regMemory(addr, 0, size)))
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
			b.Append(mir.NewInstruction(storeOpcode(t, e.Layout()),
				frameMemory(fi.Slot(), size), reflag(value, loadFlag(t, size))))
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
			b.Append(mir.NewInstruction(storeOpcode(t, e.Layout()),
				regMemory(addr, 0, size), reflag(value, loadFlag(t, size))))
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
				panic("x64: extractvalue without a multi-value aggregate")
			}
			return e.EmitOrGet(field, b, false)
		},
	})
}

// loadFlag picks the register-width flag matching a memory access.
func loadFlag(t ir.Type, size int) uint32 {
	if ir.IsFloat(t) {
		return 0
	}
	return regFlagForWidth(size)
}

// emitStructLoad loads each scalar field of a struct into its register.
func (info *InstructionInfo) emitStructLoad(e isel.Emitter, b *mir.Block, multi *isel.MultiValue, addr mir.Operand) {
	st := multi.Type().(*ir.StructType)
	offset := int64(0)
	for i, field := range st.Fields() {
		if i >= len(multi.Values()) {
			break
		}
		if ir.IsStruct(field) {
			offset += int64(e.Layout().Size(field))
			continue
		}
		size := e.Layout().Size(field)
		dst := e.EmitOrGet(multi.Values()[i], b, false)
		b.Append(mir.NewInstruction(loadOpcode(field, e.Layout()),
			reflag(dst, loadFlag(field, size)), regMemory(addr, offset, size)))
		offset += int64(size)
	}
}

// emitGEP walks the indices accumulating a constant displacement and
// scaled dynamic parts, folding into lea where the scale allows.
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
		b.Append(mir.NewInstruction(Lea64rm, dst, regMemory(result, disp, 8)))
		result = dst
		disp = 0
	}

	for _, index := range instr.Operands()[1:] {
		contained := current.Contained()
		if c, ok := index.(*isel.ConstantInt); ok {
			switch {
			case ir.IsPointer(current) || ir.IsArray(current):
				element := contained[0]
				disp += c.Value() * int64(layout.Size(element))
				current = element
			default: // struct field select
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
		// widen the index to pointer width before scaling
		wide := newVReg(e, e.Context().I64Type())
		if typeBits(nodeType(index)) == 64 {
			b.Append(mir.NewInstruction(Mov64rr, wide, reflag(idx, mir.FlagForce64Bit)))
		} else {
			b.Append(mir.NewInstruction(Movsx64r32, wide, reflag(idx, mir.FlagForce32Bit)))
		}
		switch scale {
		case 1, 2, 4, 8:
			flush()
			dst := newVReg(e, ptrType)
			b.Append(mir.NewInstruction(Lea64rm, dst, &mir.Memory{
				Base:   reflag(result, mir.FlagForce64Bit),
				Index:  reflag(wide, mir.FlagForce64Bit).(*mir.Register),
				Scale:  scale,
				OpSize: 8,
			}))
			result = dst
		default:
			scaled := newVReg(e, e.Context().I64Type())
			materializeInt(b, scaled, int64(scale), 64)
			b.Append(mir.NewInstruction(IMul64rr, reflag(wide, mir.FlagForce64Bit), scaled))
			flush()
			dst := newVReg(e, ptrType)
			b.Append(mir.NewInstruction(Lea64rm, dst, &mir.Memory{
				Base:   reflag(result, mir.FlagForce64Bit),
				Index:  reflag(wide, mir.FlagForce64Bit).(*mir.Register),
				Scale:  1,
				OpSize: 8,
			}))
			result = dst
		}
		current = element
	}
	flush()
	return result
}

// ---- control flow ----

func (info *InstructionInfo) buildControlPatterns() {
	info.add(isel.KindPhi, isel.Pattern{
		Cost: 0,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			// copies on each incoming edge are placed by target lowering
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
					b.Append(mir.NewInstruction(Movaps_rr, info.regInfo.Register(XMM0), value))
				} else {
					flag := widthFlag(t)
					dstID := uint32(EAX)
					if typeBits(t) == 64 {
						dstID = RAX
					}
					b.Append(mir.NewInstruction(is32or64(t, Mov32rr, Mov64rr),
						info.regInfo.Register(dstID), reflag(value, flag)))
				}
			}
			b.Append(mir.NewInstruction(Ret))
			return nil
		},
	})

	// conditional jump fused with a compare in the same block
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
			b.Append(mir.NewInstruction(compareCC[cond.Kind()].jcc, mir.NewBlockRef(then)))
			b.Append(mir.NewInstruction(Jmp, mir.NewBlockRef(els)))
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
			c := reflag(cond, mir.FlagForce8Bit)
			b.Append(mir.NewInstruction(Test8rr, c, c))
			b.Append(mir.NewInstruction(Jne, mir.NewBlockRef(then)))
			b.Append(mir.NewInstruction(Jmp, mir.NewBlockRef(els)))
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
			b.Append(mir.NewInstruction(Jmp, mir.NewBlockRef(e.MIRBlock(instr.Operand(0).(*isel.Root)))))
			return nil
		},
	})

	info.add(isel.KindSwitch, isel.Pattern{
		Cost: 2,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			instr := n.(*isel.Instruction)
			t := nodeType(instr.Operand(0))
			value := e.EmitOrGet(instr.Operand(0), b, true)
			flag := widthFlag(t)
			def := e.MIRBlock(instr.Operand(1).(*isel.Root))
			for idx := 2; idx+1 < instr.NumOperands(); idx += 2 {
				c := instr.Operand(idx).(*isel.ConstantInt)
				caseBlock := e.MIRBlock(instr.Operand(idx + 1).(*isel.Root))
				b.Append(mir.NewInstruction(is32or64(t, Cmp32ri, Cmp64ri),
					reflag(value, flag), mir.NewImmediateInt(c.Value(), mir.Imm32)))
				b.Append(mir.NewInstruction(Je, mir.NewBlockRef(caseBlock)))
			}
			b.Append(mir.NewInstruction(Jmp, mir.NewBlockRef(def)))
			return nil
		},
	})
}

// ---- calls ----

var sysvGPRArgs = []uint32{RDI, RSI, RDX, RCX, R8, R9}
var sysvFPRArgs = []uint32{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7}
var win64GPRArgs = []uint32{RCX, RDX, R8, R9}
var win64FPRArgs = []uint32{XMM0, XMM1, XMM2, XMM3}

func (info *InstructionInfo) buildCallPatterns() {
	info.add(isel.KindCall, isel.Pattern{
		Cost: 3,
		Emit: func(e isel.Emitter, b *mir.Block, n isel.Node) mir.Operand {
			return info.emitCall(e, b, n.(*isel.Instruction))
		},
	})
}

func (info *InstructionInfo) emitCall(e isel.Emitter, b *mir.Block, instr *isel.Instruction) mir.Operand {
	cc := instr.CallConv()
	if cc == ir.CallConvDefault {
		cc = info.spec.DefaultCallConv()
	}
	gprArgs, fprArgs := sysvGPRArgs, sysvFPRArgs
	win64 := cc == ir.CallConvWin64
	if win64 {
		gprArgs, fprArgs = win64GPRArgs, win64FPRArgs
	}

	setupStart := len(b.Instructions())

	// argument registers, in declaration order
	gprUsed, fprUsed := 0, 0
	for _, argNode := range instr.Operands()[1:] {
		t := nodeType(argNode)
		value := e.EmitOrGet(argNode, b, true)
		if ir.IsFloat(t) {
			if fprUsed >= len(fprArgs) {
				panic("x64: stack-passed float arguments are not supported")
			}
			b.Append(mir.NewInstruction(Movaps_rr, info.regInfo.Register(fprArgs[fprUsed]), value))
			fprUsed++
			continue
		}
		if gprUsed >= len(gprArgs) {
			panic("x64: stack-passed integer arguments are not supported")
		}
		b.Append(mir.NewInstruction(Mov64rr, info.regInfo.Register(gprArgs[gprUsed]), reflag(value, mir.FlagForce64Bit)))
		gprUsed++
	}

	if win64 {
		// 32-byte shadow space the callee owns
		b.Append(mir.NewInstruction(Sub64r8i, info.regInfo.Register(RSP), mir.NewImmediateInt(32, mir.Imm8)))
	}

	// calls define their return registers
	var returnRegs []uint32
	var callResult ir.Type
	switch res := instr.Result().(type) {
	case *isel.MultiValue:
		intReturns := []uint32{RAX, RDX}
		for i := range res.Values() {
			if i < len(intReturns) {
				returnRegs = append(returnRegs, intReturns[i])
			}
		}
	case *isel.Register:
		callResult = res.Type()
		if ir.IsFloat(callResult) {
			returnRegs = []uint32{XMM0}
		} else {
			returnRegs = []uint32{RAX}
		}
	}

	callInfo := &mir.CallInfo{ReturnRegisters: returnRegs, StartOffset: len(b.Instructions()) - setupStart}

	var call *mir.Instruction
	switch callee := instr.Operand(0).(type) {
	case *isel.GlobalValue:
		if f, ok := callee.Value().(*ir.Function); ok && !f.HasBody() {
			call = mir.NewCallInstruction(CallSym, callInfo, mir.NewExternalSymbol(f.Name(), mir.FlagPLT))
		} else {
			call = mir.NewCallInstruction(CallSym, callInfo, mir.NewGlobalAddress(callee.Value(), 0))
		}
	default:
		ptr := e.EmitOrGet(instr.Operand(0), b, true)
		call = mir.NewCallInstruction(CallR64, callInfo, reflag(ptr, mir.FlagForce64Bit))
	}
	b.Append(call)
	e.Output().RegisterCall(call)

	if win64 {
		b.Append(mir.NewInstruction(Add64r8i, info.regInfo.Register(RSP), mir.NewImmediateInt(32, mir.Imm8)))
	}

	// bind results to fresh virtual registers
	switch res := instr.Result().(type) {
	case *isel.MultiValue:
		intReturns := []uint32{RAX, RDX}
		for i, field := range res.Values() {
			if i >= len(intReturns) {
				break
			}
			dst := e.EmitOrGet(field, b, false)
			b.Append(mir.NewInstruction(Mov64rr, reflag(dst, mir.FlagForce64Bit), info.regInfo.Register(intReturns[i])))
		}
		return nil
	case *isel.Register:
		dst := newVReg(e, callResult)
		if ir.IsFloat(callResult) {
			b.Append(mir.NewInstruction(Movaps_rr, dst, info.regInfo.Register(XMM0)))
		} else {
			srcID := uint32(EAX)
			if typeBits(callResult) == 64 {
				srcID = RAX
			}
			b.Append(mir.NewInstruction(is32or64(callResult, Mov32rr, Mov64rr), dst, info.regInfo.Register(srcID)))
		}
		return dst
	}
	return nil
}
