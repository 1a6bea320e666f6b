package x64

import "sable/internal/target"

// MIR opcodes for x86-64. Mnemonics are Intel syntax; the width suffix in
// the constant names where the mnemonic alone is ambiguous: r register,
// m memory, i immediate, 8i an 8-bit immediate.
const (
	Mov8rr uint32 = iota
	Mov8ri
	Mov8rm
	Mov8mr
	Mov16rr
	Mov16ri
	Mov16rm
	Mov16mr
	Mov32rr
	Mov32ri
	Mov32rm
	Mov32mr
	Mov32mi
	Mov64rr
	Mov64ri
	Mov64rm
	Mov64mr
	Mov64mi
	Movabs64ri

	Movsx64r32
	Movsx64r16
	Movsx64r8
	Movsx32r16
	Movsx32r8
	Movzx32r16
	Movzx32r8

	Lea64rm
	Push64r
	Pop64r
	Cdq
	Cqo

	Add32rr
	Add32ri
	Add64rr
	Add64ri
	Add64r8i
	Sub32rr
	Sub32ri
	Sub64rr
	Sub64ri
	Sub64r8i
	IMul32rr
	IMul64rr
	IDiv32r
	IDiv64r
	Div32r
	Div64r
	And32rr
	And32ri
	And64rr
	And64ri
	Or32rr
	Or32ri
	Or64rr
	Or64ri
	Xor32rr
	Xor32ri
	Xor64rr
	Xor64ri
	Shl32rCL
	Shl64rCL
	Shl64ri
	Shr32rCL
	Shr64rCL
	Shr64ri
	Sar32rCL
	Sar64rCL
	Sar64ri
	Neg32r
	Neg64r

	Cmp8ri
	Cmp32rr
	Cmp32ri
	Cmp64rr
	Cmp64ri
	Test8rr
	Test32rr
	Test64rr

	Sete8r
	Setne8r
	Setg8r
	Setge8r
	Setl8r
	Setle8r
	Seta8r
	Setae8r
	Setb8r
	Setbe8r

	Jmp
	Je
	Jne
	Jg
	Jge
	Jl
	Jle
	Ja
	Jae
	Jb
	Jbe
	Jp
	Jnp

	CallSym
	CallR64
	Ret

	Movss_rm
	Movss_mr
	Movsd_rm
	Movsd_mr
	Movaps_rr
	Movq_rr64
	Addss_rr
	Addsd_rr
	Subss_rr
	Subsd_rr
	Mulss_rr
	Mulsd_rr
	Divss_rr
	Divsd_rr
	Ucomiss_rr
	Ucomisd_rr
	Cvtsi2ss32
	Cvtsi2ss64
	Cvtsi2sd32
	Cvtsi2sd64
	Cvttss2si32
	Cvttss2si64
	Cvttsd2si32
	Cvttsd2si64
	Cvtss2sd
	Cvtsd2ss

	NumOpcodes
)

// assignedDst marks opcode shapes whose first operand is written without
// being read.
func assignedDst(name string) target.InstructionDescriptor {
	return target.InstructionDescriptor{Name: name, Restrictions: []target.Restriction{{Assigned: true}}}
}

func plain(name string) target.InstructionDescriptor {
	return target.InstructionDescriptor{Name: name}
}

// loadDst is an assigned destination fed from memory; storeOp writes its
// first operand's memory location.
func loadDst(name string) target.InstructionDescriptor {
	d := assignedDst(name)
	d.MayLoad = true
	return d
}

func storeOp(name string) target.InstructionDescriptor {
	d := plain(name)
	d.MayStore = true
	return d
}

var descriptors = map[uint32]target.InstructionDescriptor{
	Mov8rr:     assignedDst("mov"),
	Mov8ri:     assignedDst("mov"),
	Mov8rm:     loadDst("mov"),
	Mov8mr:     storeOp("mov"),
	Mov16rr:    assignedDst("mov"),
	Mov16ri:    assignedDst("mov"),
	Mov16rm:    loadDst("mov"),
	Mov16mr:    storeOp("mov"),
	Mov32rr:    assignedDst("mov"),
	Mov32ri:    assignedDst("mov"),
	Mov32rm:    loadDst("mov"),
	Mov32mr:    storeOp("mov"),
	Mov32mi:    storeOp("mov"),
	Mov64rr:    assignedDst("mov"),
	Mov64ri:    assignedDst("mov"),
	Mov64rm:    loadDst("mov"),
	Mov64mr:    storeOp("mov"),
	Mov64mi:    storeOp("mov"),
	Movabs64ri: assignedDst("movabs"),

	Movsx64r32: assignedDst("movsxd"),
	Movsx64r16: assignedDst("movsx"),
	Movsx64r8:  assignedDst("movsx"),
	Movsx32r16: assignedDst("movsx"),
	Movsx32r8:  assignedDst("movsx"),
	Movzx32r16: assignedDst("movzx"),
	Movzx32r8:  assignedDst("movzx"),

	Lea64rm: assignedDst("lea"),
	Push64r: storeOp("push"),
	Pop64r:  loadDst("pop"),
	Cdq:     target.InstructionDescriptor{Name: "cdq", Clobbers: []uint32{EDX}},
	Cqo:     target.InstructionDescriptor{Name: "cqo", Clobbers: []uint32{RDX}},

	Add32rr:  plain("add"),
	Add32ri:  plain("add"),
	Add64rr:  plain("add"),
	Add64ri:  plain("add"),
	Add64r8i: plain("add"),
	Sub32rr:  plain("sub"),
	Sub32ri:  plain("sub"),
	Sub64rr:  plain("sub"),
	Sub64ri:  plain("sub"),
	Sub64r8i: plain("sub"),
	IMul32rr: plain("imul"),
	IMul64rr: plain("imul"),
	IDiv32r:  target.InstructionDescriptor{Name: "idiv", Clobbers: []uint32{EAX, EDX}},
	IDiv64r:  target.InstructionDescriptor{Name: "idiv", Clobbers: []uint32{RAX, RDX}},
	Div32r:   target.InstructionDescriptor{Name: "div", Clobbers: []uint32{EAX, EDX}},
	Div64r:   target.InstructionDescriptor{Name: "div", Clobbers: []uint32{RAX, RDX}},
	And32rr:  plain("and"),
	And32ri:  plain("and"),
	And64rr:  plain("and"),
	And64ri:  plain("and"),
	Or32rr:   plain("or"),
	Or32ri:   plain("or"),
	Or64rr:   plain("or"),
	Or64ri:   plain("or"),
	Xor32rr:  plain("xor"),
	Xor32ri:  plain("xor"),
	Xor64rr:  plain("xor"),
	Xor64ri:  plain("xor"),
	Shl32rCL: target.InstructionDescriptor{Name: "shl", Clobbers: []uint32{CL}},
	Shl64rCL: target.InstructionDescriptor{Name: "shl", Clobbers: []uint32{CL}},
	Shl64ri:  plain("shl"),
	Shr32rCL: target.InstructionDescriptor{Name: "shr", Clobbers: []uint32{CL}},
	Shr64rCL: target.InstructionDescriptor{Name: "shr", Clobbers: []uint32{CL}},
	Shr64ri:  plain("shr"),
	Sar32rCL: target.InstructionDescriptor{Name: "sar", Clobbers: []uint32{CL}},
	Sar64rCL: target.InstructionDescriptor{Name: "sar", Clobbers: []uint32{CL}},
	Sar64ri:  plain("sar"),
	Neg32r:   plain("neg"),
	Neg64r:   plain("neg"),

	Cmp8ri:   plain("cmp"),
	Cmp32rr:  plain("cmp"),
	Cmp32ri:  plain("cmp"),
	Cmp64rr:  plain("cmp"),
	Cmp64ri:  plain("cmp"),
	Test8rr:  plain("test"),
	Test32rr: plain("test"),
	Test64rr: plain("test"),

	Sete8r:  assignedDst("sete"),
	Setne8r: assignedDst("setne"),
	Setg8r:  assignedDst("setg"),
	Setge8r: assignedDst("setge"),
	Setl8r:  assignedDst("setl"),
	Setle8r: assignedDst("setle"),
	Seta8r:  assignedDst("seta"),
	Setae8r: assignedDst("setae"),
	Setb8r:  assignedDst("setb"),
	Setbe8r: assignedDst("setbe"),

	Jmp: target.InstructionDescriptor{Name: "jmp", IsBranch: true},
	Je:  target.InstructionDescriptor{Name: "je", IsBranch: true},
	Jne: target.InstructionDescriptor{Name: "jne", IsBranch: true},
	Jg:  target.InstructionDescriptor{Name: "jg", IsBranch: true},
	Jge: target.InstructionDescriptor{Name: "jge", IsBranch: true},
	Jl:  target.InstructionDescriptor{Name: "jl", IsBranch: true},
	Jle: target.InstructionDescriptor{Name: "jle", IsBranch: true},
	Ja:  target.InstructionDescriptor{Name: "ja", IsBranch: true},
	Jae: target.InstructionDescriptor{Name: "jae", IsBranch: true},
	Jb:  target.InstructionDescriptor{Name: "jb", IsBranch: true},
	Jbe: target.InstructionDescriptor{Name: "jbe", IsBranch: true},
	Jp:  target.InstructionDescriptor{Name: "jp", IsBranch: true},
	Jnp: target.InstructionDescriptor{Name: "jnp", IsBranch: true},

	CallSym: plain("call"),
	CallR64: plain("call"),
	Ret:     target.InstructionDescriptor{Name: "ret", IsReturn: true},

	Movss_rm:    loadDst("movss"),
	Movss_mr:    storeOp("movss"),
	Movsd_rm:    loadDst("movsd"),
	Movsd_mr:    storeOp("movsd"),
	Movaps_rr:   assignedDst("movaps"),
	Movq_rr64:   assignedDst("movq"),
	Addss_rr:    plain("addss"),
	Addsd_rr:    plain("addsd"),
	Subss_rr:    plain("subss"),
	Subsd_rr:    plain("subsd"),
	Mulss_rr:    plain("mulss"),
	Mulsd_rr:    plain("mulsd"),
	Divss_rr:    plain("divss"),
	Divsd_rr:    plain("divsd"),
	Ucomiss_rr:  plain("ucomiss"),
	Ucomisd_rr:  plain("ucomisd"),
	Cvtsi2ss32:  assignedDst("cvtsi2ss"),
	Cvtsi2ss64:  assignedDst("cvtsi2ss"),
	Cvtsi2sd32:  assignedDst("cvtsi2sd"),
	Cvtsi2sd64:  assignedDst("cvtsi2sd"),
	Cvttss2si32: assignedDst("cvttss2si"),
	Cvttss2si64: assignedDst("cvttss2si"),
	Cvttsd2si32: assignedDst("cvttsd2si"),
	Cvttsd2si64: assignedDst("cvttsd2si"),
	Cvtss2sd:    assignedDst("cvtss2sd"),
	Cvtsd2ss:    assignedDst("cvtsd2ss"),
}
