package x64

import (
	"encoding/binary"
	"fmt"

	"sable/internal/codegen"
	"sable/internal/mir"
)

type formKind int

const (
	// formRR: opcode /r with the source register in reg and the
	// destination in rm (the store-direction byte, 89-style).
	formRR formKind = iota
	// formRM: opcode /r with the destination register in reg and a
	// register or memory source in rm (8B-style).
	formRM
	// formMR: store: memory destination in rm, register source in reg.
	formMR
	// formRI: opcode /digit with a register-or-memory destination and an
	// immediate.
	formRI
	// formR: opcode /digit on a single register-or-memory operand.
	formR
	// formSet: setcc on an 8-bit register.
	formSet
	// formMovAbs: B8+r with a 64-bit immediate.
	formMovAbs
)

type gprForm struct {
	kind    formKind
	width   int // operand width in bytes
	opcode  []byte
	digit   byte
	immSize int
}

var gprForms = map[uint32]gprForm{
	Mov8rr:  {kind: formRR, width: 1, opcode: []byte{0x88}},
	Mov8ri:  {kind: formRI, width: 1, opcode: []byte{0xC6}, immSize: 1},
	Mov8rm:  {kind: formRM, width: 1, opcode: []byte{0x8A}},
	Mov8mr:  {kind: formMR, width: 1, opcode: []byte{0x88}},
	Mov16rr: {kind: formRR, width: 2, opcode: []byte{0x89}},
	Mov16ri: {kind: formRI, width: 2, opcode: []byte{0xC7}, immSize: 2},
	Mov16rm: {kind: formRM, width: 2, opcode: []byte{0x8B}},
	Mov16mr: {kind: formMR, width: 2, opcode: []byte{0x89}},
	Mov32rr: {kind: formRR, width: 4, opcode: []byte{0x89}},
	Mov32ri: {kind: formRI, width: 4, opcode: []byte{0xC7}, immSize: 4},
	Mov32rm: {kind: formRM, width: 4, opcode: []byte{0x8B}},
	Mov32mr: {kind: formMR, width: 4, opcode: []byte{0x89}},
	Mov32mi: {kind: formRI, width: 4, opcode: []byte{0xC7}, immSize: 4},
	Mov64rr: {kind: formRR, width: 8, opcode: []byte{0x89}},
	Mov64ri: {kind: formRI, width: 8, opcode: []byte{0xC7}, immSize: 4},
	Mov64rm: {kind: formRM, width: 8, opcode: []byte{0x8B}},
	Mov64mr: {kind: formMR, width: 8, opcode: []byte{0x89}},
	Mov64mi: {kind: formRI, width: 8, opcode: []byte{0xC7}, immSize: 4},

	Movabs64ri: {kind: formMovAbs, width: 8, immSize: 8},

	Movsx64r32: {kind: formRM, width: 8, opcode: []byte{0x63}},
	Movsx64r16: {kind: formRM, width: 8, opcode: []byte{0x0F, 0xBF}},
	Movsx64r8:  {kind: formRM, width: 8, opcode: []byte{0x0F, 0xBE}},
	Movsx32r16: {kind: formRM, width: 4, opcode: []byte{0x0F, 0xBF}},
	Movsx32r8:  {kind: formRM, width: 4, opcode: []byte{0x0F, 0xBE}},
	Movzx32r16: {kind: formRM, width: 4, opcode: []byte{0x0F, 0xB7}},
	Movzx32r8:  {kind: formRM, width: 4, opcode: []byte{0x0F, 0xB6}},

	Lea64rm: {kind: formRM, width: 8, opcode: []byte{0x8D}},

	Add32rr:  {kind: formRR, width: 4, opcode: []byte{0x01}},
	Add32ri:  {kind: formRI, width: 4, opcode: []byte{0x81}, digit: 0, immSize: 4},
	Add64rr:  {kind: formRR, width: 8, opcode: []byte{0x01}},
	Add64ri:  {kind: formRI, width: 8, opcode: []byte{0x81}, digit: 0, immSize: 4},
	Add64r8i: {kind: formRI, width: 8, opcode: []byte{0x83}, digit: 0, immSize: 1},
	Sub32rr:  {kind: formRR, width: 4, opcode: []byte{0x29}},
	Sub32ri:  {kind: formRI, width: 4, opcode: []byte{0x81}, digit: 5, immSize: 4},
	Sub64rr:  {kind: formRR, width: 8, opcode: []byte{0x29}},
	Sub64ri:  {kind: formRI, width: 8, opcode: []byte{0x81}, digit: 5, immSize: 4},
	Sub64r8i: {kind: formRI, width: 8, opcode: []byte{0x83}, digit: 5, immSize: 1},

	IMul32rr: {kind: formRM, width: 4, opcode: []byte{0x0F, 0xAF}},
	IMul64rr: {kind: formRM, width: 8, opcode: []byte{0x0F, 0xAF}},
	IDiv32r:  {kind: formR, width: 4, opcode: []byte{0xF7}, digit: 7},
	IDiv64r:  {kind: formR, width: 8, opcode: []byte{0xF7}, digit: 7},
	Div32r:   {kind: formR, width: 4, opcode: []byte{0xF7}, digit: 6},
	Div64r:   {kind: formR, width: 8, opcode: []byte{0xF7}, digit: 6},

	And32rr: {kind: formRR, width: 4, opcode: []byte{0x21}},
	And32ri: {kind: formRI, width: 4, opcode: []byte{0x81}, digit: 4, immSize: 4},
	And64rr: {kind: formRR, width: 8, opcode: []byte{0x21}},
	And64ri: {kind: formRI, width: 8, opcode: []byte{0x81}, digit: 4, immSize: 4},
	Or32rr:  {kind: formRR, width: 4, opcode: []byte{0x09}},
	Or32ri:  {kind: formRI, width: 4, opcode: []byte{0x81}, digit: 1, immSize: 4},
	Or64rr:  {kind: formRR, width: 8, opcode: []byte{0x09}},
	Or64ri:  {kind: formRI, width: 8, opcode: []byte{0x81}, digit: 1, immSize: 4},
	Xor32rr: {kind: formRR, width: 4, opcode: []byte{0x31}},
	Xor32ri: {kind: formRI, width: 4, opcode: []byte{0x81}, digit: 6, immSize: 4},
	Xor64rr: {kind: formRR, width: 8, opcode: []byte{0x31}},
	Xor64ri: {kind: formRI, width: 8, opcode: []byte{0x81}, digit: 6, immSize: 4},

	Shl32rCL: {kind: formR, width: 4, opcode: []byte{0xD3}, digit: 4},
	Shl64rCL: {kind: formR, width: 8, opcode: []byte{0xD3}, digit: 4},
	Shl64ri:  {kind: formRI, width: 8, opcode: []byte{0xC1}, digit: 4, immSize: 1},
	Shr32rCL: {kind: formR, width: 4, opcode: []byte{0xD3}, digit: 5},
	Shr64rCL: {kind: formR, width: 8, opcode: []byte{0xD3}, digit: 5},
	Shr64ri:  {kind: formRI, width: 8, opcode: []byte{0xC1}, digit: 5, immSize: 1},
	Sar32rCL: {kind: formR, width: 4, opcode: []byte{0xD3}, digit: 7},
	Sar64rCL: {kind: formR, width: 8, opcode: []byte{0xD3}, digit: 7},
	Sar64ri:  {kind: formRI, width: 8, opcode: []byte{0xC1}, digit: 7, immSize: 1},
	Neg32r:   {kind: formR, width: 4, opcode: []byte{0xF7}, digit: 3},
	Neg64r:   {kind: formR, width: 8, opcode: []byte{0xF7}, digit: 3},

	Cmp8ri:  {kind: formRI, width: 1, opcode: []byte{0x80}, digit: 7, immSize: 1},
	Cmp32rr: {kind: formRR, width: 4, opcode: []byte{0x39}},
	Cmp32ri: {kind: formRI, width: 4, opcode: []byte{0x81}, digit: 7, immSize: 4},
	Cmp64rr: {kind: formRR, width: 8, opcode: []byte{0x39}},
	Cmp64ri: {kind: formRI, width: 8, opcode: []byte{0x81}, digit: 7, immSize: 4},

	Test8rr:  {kind: formRR, width: 1, opcode: []byte{0x84}},
	Test32rr: {kind: formRR, width: 4, opcode: []byte{0x85}},
	Test64rr: {kind: formRR, width: 8, opcode: []byte{0x85}},

	Sete8r:  {kind: formSet, width: 1},
	Setne8r: {kind: formSet, width: 1},
	Setg8r:  {kind: formSet, width: 1},
	Setge8r: {kind: formSet, width: 1},
	Setl8r:  {kind: formSet, width: 1},
	Setle8r: {kind: formSet, width: 1},
	Seta8r:  {kind: formSet, width: 1},
	Setae8r: {kind: formSet, width: 1},
	Setb8r:  {kind: formSet, width: 1},
	Setbe8r: {kind: formSet, width: 1},
}

type sseForm struct {
	prefix byte // 0 means none
	opcode []byte
	// regIsDst: destination register goes in the reg field (10-style
	// loads); otherwise the source does (11-style stores).
	regIsDst bool
	// rexW forces REX.W (64-bit integer conversions).
	rexW bool
}

var sseForms = map[uint32]sseForm{
	Movss_rm:    {prefix: 0xF3, opcode: []byte{0x0F, 0x10}, regIsDst: true},
	Movss_mr:    {prefix: 0xF3, opcode: []byte{0x0F, 0x11}},
	Movsd_rm:    {prefix: 0xF2, opcode: []byte{0x0F, 0x10}, regIsDst: true},
	Movsd_mr:    {prefix: 0xF2, opcode: []byte{0x0F, 0x11}},
	Movaps_rr:   {opcode: []byte{0x0F, 0x28}, regIsDst: true},
	Movq_rr64:   {prefix: 0x66, opcode: []byte{0x0F, 0x6E}, regIsDst: true, rexW: true},
	Addss_rr:    {prefix: 0xF3, opcode: []byte{0x0F, 0x58}, regIsDst: true},
	Addsd_rr:    {prefix: 0xF2, opcode: []byte{0x0F, 0x58}, regIsDst: true},
	Subss_rr:    {prefix: 0xF3, opcode: []byte{0x0F, 0x5C}, regIsDst: true},
	Subsd_rr:    {prefix: 0xF2, opcode: []byte{0x0F, 0x5C}, regIsDst: true},
	Mulss_rr:    {prefix: 0xF3, opcode: []byte{0x0F, 0x59}, regIsDst: true},
	Mulsd_rr:    {prefix: 0xF2, opcode: []byte{0x0F, 0x59}, regIsDst: true},
	Divss_rr:    {prefix: 0xF3, opcode: []byte{0x0F, 0x5E}, regIsDst: true},
	Divsd_rr:    {prefix: 0xF2, opcode: []byte{0x0F, 0x5E}, regIsDst: true},
	Ucomiss_rr:  {opcode: []byte{0x0F, 0x2E}, regIsDst: true},
	Ucomisd_rr:  {prefix: 0x66, opcode: []byte{0x0F, 0x2E}, regIsDst: true},
	Cvtsi2ss32:  {prefix: 0xF3, opcode: []byte{0x0F, 0x2A}, regIsDst: true},
	Cvtsi2ss64:  {prefix: 0xF3, opcode: []byte{0x0F, 0x2A}, regIsDst: true, rexW: true},
	Cvtsi2sd32:  {prefix: 0xF2, opcode: []byte{0x0F, 0x2A}, regIsDst: true},
	Cvtsi2sd64:  {prefix: 0xF2, opcode: []byte{0x0F, 0x2A}, regIsDst: true, rexW: true},
	Cvttss2si32: {prefix: 0xF3, opcode: []byte{0x0F, 0x2C}, regIsDst: true},
	Cvttss2si64: {prefix: 0xF3, opcode: []byte{0x0F, 0x2C}, regIsDst: true, rexW: true},
	Cvttsd2si32: {prefix: 0xF2, opcode: []byte{0x0F, 0x2C}, regIsDst: true},
	Cvttsd2si64: {prefix: 0xF2, opcode: []byte{0x0F, 0x2C}, regIsDst: true, rexW: true},
	Cvtss2sd:    {prefix: 0xF3, opcode: []byte{0x0F, 0x5A}, regIsDst: true},
	Cvtsd2ss:    {prefix: 0xF2, opcode: []byte{0x0F, 0x5A}, regIsDst: true},
}

// needsLowByteREX reports an 8-bit operand that only encodes with a REX
// prefix present (spl, bpl, sil, dil).
func needsLowByteREX(width int, num byte, ext bool) bool {
	return width == 1 && !ext && num >= 4
}

func (enc *Encoder) encodeGPR(e *codegen.ObjectEmitter, f *mir.Function, inst *mir.Instruction, form gprForm) error {
	i := &insn{}
	if form.width == 2 {
		i.prefixes = append(i.prefixes, 0x66)
	}
	w := form.width == 8

	switch form.kind {
	case formRR:
		dst := inst.Operand(0).(*mir.Register)
		src := inst.Operand(1).(*mir.Register)
		srcNum, srcExt := encGroup(src.ID())
		dstNum, dstExt := encGroup(dst.ID())
		i.opcode = form.opcode
		i.regreg(srcNum, dstNum)
		i.setRex(w, srcExt, false, dstExt)
		if needsLowByteREX(form.width, srcNum, srcExt) || needsLowByteREX(form.width, dstNum, dstExt) {
			i.rexUsed = true
		}
	case formRM:
		dst := inst.Operand(0).(*mir.Register)
		dstNum, dstExt := encGroup(dst.ID())
		i.opcode = form.opcode
		switch src := inst.Operand(1).(type) {
		case *mir.Register:
			srcNum, srcExt := encGroup(src.ID())
			i.regreg(dstNum, srcNum)
			i.setRex(w, dstExt, false, srcExt)
		case *mir.Memory:
			if err := enc.memOperand(i, f, dstNum, dstExt, src, w); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported source operand %T", inst.Operand(1))
		}
	case formMR:
		src := inst.Operand(1).(*mir.Register)
		srcNum, srcExt := encGroup(src.ID())
		i.opcode = form.opcode
		switch dst := inst.Operand(0).(type) {
		case *mir.Memory:
			if err := enc.memOperand(i, f, srcNum, srcExt, dst, w); err != nil {
				return err
			}
		case *mir.Register:
			dstNum, dstExt := encGroup(dst.ID())
			i.regreg(srcNum, dstNum)
			i.setRex(w, srcExt, false, dstExt)
		default:
			return fmt.Errorf("unsupported destination operand %T", inst.Operand(0))
		}
	case formRI:
		imm := inst.Operand(1).(*mir.ImmediateInt)
		i.opcode = form.opcode
		switch dst := inst.Operand(0).(type) {
		case *mir.Register:
			dstNum, dstExt := encGroup(dst.ID())
			i.regreg(form.digit, dstNum)
			i.setRex(w, false, false, dstExt)
		case *mir.Memory:
			if err := enc.memOperand(i, f, form.digit, false, dst, w); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported destination operand %T", inst.Operand(0))
		}
		i.imm = immBytes(imm.Value(), form.immSize)
	case formR:
		reg := inst.Operand(0).(*mir.Register)
		num, ext := encGroup(reg.ID())
		i.opcode = form.opcode
		i.regreg(form.digit, num)
		i.setRex(w, false, false, ext)
	case formSet:
		reg := inst.Operand(0).(*mir.Register)
		num, ext := encGroup(reg.ID())
		i.opcode = []byte{0x0F, setccByte(inst.Opcode())}
		i.regreg(0, num)
		i.setRex(false, false, false, ext)
		if needsLowByteREX(1, num, ext) {
			i.rexUsed = true
		}
	case formMovAbs:
		reg := inst.Operand(0).(*mir.Register)
		imm := inst.Operand(1).(*mir.ImmediateInt)
		num, ext := encGroup(reg.ID())
		i.setRex(true, false, false, ext)
		i.opcode = []byte{0xB8 + num}
		i.imm = imm64Bytes(imm.Value())
	}

	i.flush(e)
	return nil
}

func immBytes(v int64, size int) []byte {
	switch size {
	case 1:
		return []byte{byte(int8(v))}
	case 2:
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(int16(v)))
		return buf[:]
	case 8:
		return imm64Bytes(v)
	default:
		return imm32Bytes(v)
	}
}

func (enc *Encoder) encodeSSE(e *codegen.ObjectEmitter, f *mir.Function, inst *mir.Instruction, form sseForm) error {
	i := &insn{}
	if form.prefix != 0 {
		i.prefixes = append(i.prefixes, form.prefix)
	}
	i.opcode = form.opcode

	regOperandIdx, rmOperandIdx := 0, 1
	if !form.regIsDst {
		regOperandIdx, rmOperandIdx = 1, 0
	}

	reg, ok := inst.Operand(regOperandIdx).(*mir.Register)
	if !ok {
		return fmt.Errorf("sse instruction needs a register operand")
	}
	regNum, regExt := encGroup(reg.ID())

	switch rm := inst.Operand(rmOperandIdx).(type) {
	case *mir.Register:
		rmNum, rmExt := encGroup(rm.ID())
		i.regreg(regNum, rmNum)
		i.setRex(form.rexW, regExt, false, rmExt)
	case *mir.Memory:
		if err := enc.memOperand(i, f, regNum, regExt, rm, form.rexW); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported sse operand %T", inst.Operand(rmOperandIdx))
	}

	i.flush(e)
	return nil
}
