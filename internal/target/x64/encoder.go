package x64

import (
	"encoding/binary"
	"fmt"

	"sable/internal/codegen"
	"sable/internal/mir"
	"sable/internal/target"
)

// Encoder emits x86-64 machine code for the MIR opcode set. An opcode it
// does not know is a target-description bug and aborts the compile.
type Encoder struct {
	instrInfo target.InstructionInfo
	regInfo   *RegisterInfo
	spec      target.Spec
}

func NewEncoder(instrInfo target.InstructionInfo, regInfo *RegisterInfo, spec target.Spec) *Encoder {
	return &Encoder{instrInfo: instrInfo, regInfo: regInfo, spec: spec}
}

// enc returns the 3-bit register number and extension bit.
func enc(id uint32) (byte, bool) {
	var n uint32
	if id >= XMM0 {
		n = id - XMM0
	} else {
		n = id % 16
	}
	return byte(n & 7), n >= 8
}

type insn struct {
	prefixes []byte
	rex      byte
	rexUsed  bool
	opcode   []byte
	modrm    byte
	hasModRM bool
	sib      byte
	hasSIB   bool
	disp     []byte
	imm      []byte

	// pending symbol reference inside disp
	sym     string
	symKind codegen.RelocKind
	isBlock bool
}

func (i *insn) setRex(w, r, x, b bool) {
	i.rex = 0x40
	if w {
		i.rex |= 8
	}
	if r {
		i.rex |= 4
	}
	if x {
		i.rex |= 2
	}
	if b {
		i.rex |= 1
	}
	i.rexUsed = w || r || x || b
}

// regreg sets ModRM for register-direct rm.
func (i *insn) regreg(reg byte, rm byte) {
	i.modrm = 0xC0 | reg<<3 | rm
	i.hasModRM = true
}

func (i *insn) flush(e *codegen.ObjectEmitter) {
	e.AppendText(i.prefixes...)
	if i.rexUsed {
		e.AppendText(i.rex)
	}
	e.AppendText(i.opcode...)
	if i.hasModRM {
		e.AppendText(i.modrm)
	}
	if i.hasSIB {
		e.AppendText(i.sib)
	}
	if i.sym != "" {
		loc := len(e.Text())
		tail := 4 + len(i.imm)
		fx := codegen.Fixup{
			Symbol:    i.sym,
			Location:  loc,
			InstrSize: tail,
			Section:   codegen.SectionText,
			Kind:      i.symKind,
		}
		if i.isBlock {
			e.AddBlockFixup(fx)
		} else {
			e.AddFixup(fx)
		}
		e.AppendText(0, 0, 0, 0)
	} else {
		e.AppendText(i.disp...)
	}
	e.AppendText(i.imm...)
}

// memOperand fills ModRM/SIB/disp for a memory operand with reg in the
// reg field.
func (enc *Encoder) memOperand(i *insn, f *mir.Function, reg byte, regExt bool, m *mir.Memory, w bool) error {
	var rexX, rexB bool

	switch base := m.Base.(type) {
	case *mir.GlobalAddress, *mir.ExternalSymbol, *mir.ConstantPoolIndex:
		// RIP-relative: mod=00 rm=101
		i.modrm = reg<<3 | 0x05
		i.hasModRM = true
		switch b := base.(type) {
		case *mir.GlobalAddress:
			i.sym = b.Name()
			i.symKind = codegen.RelocPC32
			if b.HasFlag(mir.FlagGOTPCRel) {
				i.symKind = codegen.RelocGOTPCRel
			}
		case *mir.ExternalSymbol:
			i.sym = b.Name()
			i.symKind = codegen.RelocPC32
		case *mir.ConstantPoolIndex:
			i.sym = codegen.PoolSymbol(f, b.Index())
			i.symKind = codegen.RelocPC32
		}
		i.setRex(w, regExt, false, false)
		return nil
	}

	var baseNum byte
	disp := m.Disp
	switch base := m.Base.(type) {
	case *mir.Register:
		var ext bool
		baseNum, ext = encGroup(base.ID())
		rexB = ext
	case *mir.FrameIndex:
		baseNum, _ = encGroup(RBP)
		disp += f.Frame().Slot(base.Index()).Offset
	default:
		return fmt.Errorf("unsupported memory base %T", m.Base)
	}

	var indexNum byte
	hasIndex := false
	if m.Index != nil {
		r, ok := m.Index.(*mir.Register)
		if !ok {
			return fmt.Errorf("unsupported memory index %T", m.Index)
		}
		var ext bool
		indexNum, ext = encGroup(r.ID())
		rexX = ext
		hasIndex = true
	}

	mod := byte(0)
	var dispBytes []byte
	switch {
	case disp == 0 && baseNum != 5: // rbp always needs a displacement
		mod = 0
	case disp >= -128 && disp <= 127:
		mod = 1
		dispBytes = []byte{byte(int8(disp))}
	default:
		mod = 2
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(int32(disp)))
		dispBytes = buf[:]
	}

	if hasIndex {
		scaleBits := map[int]byte{1: 0, 2: 1, 4: 2, 8: 3}[m.Scale]
		i.modrm = mod<<6 | reg<<3 | 0x04
		i.sib = scaleBits<<6 | indexNum<<3 | baseNum
		i.hasSIB = true
	} else if baseNum == 4 { // rsp-based needs a SIB
		i.modrm = mod<<6 | reg<<3 | 0x04
		i.sib = 0x24
		i.hasSIB = true
	} else {
		i.modrm = mod<<6 | reg<<3 | baseNum
	}
	i.hasModRM = true
	i.disp = dispBytes
	i.setRex(w, regExt, rexX, rexB)
	return nil
}

// encGroup maps a register id of any width to its 4-bit encoding.
func encGroup(id uint32) (byte, bool) {
	return enc(id)
}

func imm32Bytes(v int64) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(int32(v)))
	return buf[:]
}

func imm64Bytes(v int64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

func (enc *Encoder) Encode(e *codegen.ObjectEmitter, f *mir.Function, inst *mir.Instruction) error {
	op := inst.Opcode()
	switch op {
	case Ret:
		e.AppendText(0xC3)
		return nil
	case Cdq:
		e.AppendText(0x99)
		return nil
	case Cqo:
		e.AppendText(0x48, 0x99)
		return nil
	case Jmp:
		return enc.encodeBranch(e, inst, []byte{0xE9})
	case Je, Jne, Jg, Jge, Jl, Jle, Ja, Jae, Jb, Jbe, Jp, Jnp:
		return enc.encodeBranch(e, inst, []byte{0x0F, ccByte(op)})
	case CallSym:
		return enc.encodeCall(e, inst)
	case CallR64:
		return enc.encodeUnaryRM(e, f, inst, 0xFF, 2, true)
	case Push64r:
		return enc.encodePushPop(e, inst, 0x50)
	case Pop64r:
		return enc.encodePushPop(e, inst, 0x58)
	}

	if sse, ok := sseForms[op]; ok {
		return enc.encodeSSE(e, f, inst, sse)
	}
	if form, ok := gprForms[op]; ok {
		return enc.encodeGPR(e, f, inst, form)
	}
	return fmt.Errorf("unknown opcode %d", op)
}

func ccByte(op uint32) byte {
	switch op {
	case Je:
		return 0x84
	case Jne:
		return 0x85
	case Jg:
		return 0x8F
	case Jge:
		return 0x8D
	case Jl:
		return 0x8C
	case Jle:
		return 0x8E
	case Ja:
		return 0x87
	case Jae:
		return 0x83
	case Jb:
		return 0x82
	case Jbe:
		return 0x86
	case Jp:
		return 0x8A
	case Jnp:
		return 0x8B
	}
	panic("not a conditional jump")
}

func setccByte(op uint32) byte {
	switch op {
	case Sete8r:
		return 0x94
	case Setne8r:
		return 0x95
	case Setg8r:
		return 0x9F
	case Setge8r:
		return 0x9D
	case Setl8r:
		return 0x9C
	case Setle8r:
		return 0x9E
	case Seta8r:
		return 0x97
	case Setae8r:
		return 0x93
	case Setb8r:
		return 0x92
	case Setbe8r:
		return 0x96
	}
	panic("not a setcc")
}

func (enc *Encoder) encodeBranch(e *codegen.ObjectEmitter, inst *mir.Instruction, opcode []byte) error {
	ref, ok := inst.Operand(0).(*mir.BlockRef)
	if !ok {
		return fmt.Errorf("branch without a block target")
	}
	e.AppendText(opcode...)
	e.AddBlockFixup(codegen.Fixup{
		Symbol:    ref.Block().Name(),
		Location:  len(e.Text()),
		InstrSize: 4,
		Section:   codegen.SectionText,
		Kind:      codegen.RelocPC32,
	})
	e.AppendText(0, 0, 0, 0)
	return nil
}

func (enc *Encoder) encodeCall(e *codegen.ObjectEmitter, inst *mir.Instruction) error {
	e.AppendText(0xE8)
	var name string
	kind := codegen.RelocPC32
	switch sym := inst.Operand(0).(type) {
	case *mir.GlobalAddress:
		name = sym.Name()
	case *mir.ExternalSymbol:
		name = sym.Name()
		if sym.HasFlag(mir.FlagPLT) {
			kind = codegen.RelocPLT32
		}
	default:
		return fmt.Errorf("call without a symbol operand")
	}
	e.AddFixup(codegen.Fixup{
		Symbol:    name,
		Location:  len(e.Text()),
		InstrSize: 4,
		Section:   codegen.SectionText,
		Kind:      kind,
	})
	e.AppendText(0, 0, 0, 0)
	return nil
}

func (enc *Encoder) encodePushPop(e *codegen.ObjectEmitter, inst *mir.Instruction, base byte) error {
	reg, ok := inst.Operand(0).(*mir.Register)
	if !ok {
		return fmt.Errorf("push/pop needs a register")
	}
	num, ext := encGroup(reg.ID())
	if ext {
		e.AppendText(0x41)
	}
	e.AppendText(base + num)
	return nil
}

// encodeUnaryRM handles FF-style /digit forms on a 64-bit register.
func (enc *Encoder) encodeUnaryRM(e *codegen.ObjectEmitter, f *mir.Function, inst *mir.Instruction, opcode byte, digit byte, callForm bool) error {
	reg, ok := inst.Operand(0).(*mir.Register)
	if !ok {
		return fmt.Errorf("register operand expected")
	}
	num, ext := encGroup(reg.ID())
	i := &insn{opcode: []byte{opcode}}
	i.regreg(digit, num)
	i.setRex(!callForm, false, false, ext) // indirect call is default-64
	i.flush(e)
	return nil
}
