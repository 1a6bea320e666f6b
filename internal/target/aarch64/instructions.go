package aarch64

import (
	"fmt"

	"sable/internal/isel"
	"sable/internal/mir"
	"sable/internal/target"
)

// AArch64 MIR opcodes. Three-operand arithmetic keeps the destination
// separate, so most shapes mark operand 0 assigned.
const (
	MovRR uint32 = iota
	MovRI
	MovKShift16 // movk for wide immediates
	FMovRR
	LdrRM
	LdrbRM
	LdrhRM
	LdrFRM
	StrMR
	StrbMR
	StrhMR
	StrFMR
	AdrpSym
	AddLoSym
	AddRRR
	AddRRI
	SubRRR
	SubRRI
	MulRRR
	SDivRRR
	UDivRRR
	MSubRRRR
	AndRRR
	OrrRRR
	EorRRR
	LslRRR
	LsrRRR
	AsrRRR
	SxtwRR
	SxtbRR
	SxthRR
	UxtbRR
	UxthRR
	CmpRR
	CmpRI
	FCmpRR
	CsetEq
	CsetNe
	CsetGt
	CsetGe
	CsetLt
	CsetLe
	CsetHi
	CsetHs
	CsetLo
	CsetLs
	B
	BEq
	BNe
	BGt
	BGe
	BLt
	BLe
	BHi
	BHs
	BLo
	BLs
	Cbnz
	Bl
	Blr
	RetOp
	StpPre   // stp x29, x30, [sp, #-16]!
	LdpPost  // ldp x29, x30, [sp], #16
	MovSPFP  // mov x29, sp
	SubSPImm // sub sp, sp, #imm
	AddSPImm
	FAddRRR
	FSubRRR
	FMulRRR
	FDivRRR
	ScvtfRR
	FcvtzsRR

	NumOpcodes
)

func dst3(name string) target.InstructionDescriptor {
	return target.InstructionDescriptor{Name: name, Restrictions: []target.Restriction{{Assigned: true}}}
}

var descriptors = map[uint32]target.InstructionDescriptor{
	MovRR:       dst3("mov"),
	MovRI:       dst3("mov"),
	MovKShift16: {Name: "movk"},
	FMovRR:      dst3("fmov"),
	LdrRM:       {Name: "ldr", MayLoad: true, Restrictions: []target.Restriction{{Assigned: true}}},
	LdrbRM:      {Name: "ldrb", MayLoad: true, Restrictions: []target.Restriction{{Assigned: true}}},
	LdrhRM:      {Name: "ldrh", MayLoad: true, Restrictions: []target.Restriction{{Assigned: true}}},
	LdrFRM:      {Name: "ldr", MayLoad: true, Restrictions: []target.Restriction{{Assigned: true}}},
	StrMR:       {Name: "str", MayStore: true},
	StrbMR:      {Name: "strb", MayStore: true},
	StrhMR:      {Name: "strh", MayStore: true},
	StrFMR:      {Name: "str", MayStore: true},
	AdrpSym:     dst3("adrp"),
	AddLoSym:    {Name: "add"},
	AddRRR:      dst3("add"),
	AddRRI:      dst3("add"),
	SubRRR:      dst3("sub"),
	SubRRI:      dst3("sub"),
	MulRRR:      dst3("mul"),
	SDivRRR:     dst3("sdiv"),
	UDivRRR:     dst3("udiv"),
	MSubRRRR:    dst3("msub"),
	AndRRR:      dst3("and"),
	OrrRRR:      dst3("orr"),
	EorRRR:      dst3("eor"),
	LslRRR:      dst3("lsl"),
	LsrRRR:      dst3("lsr"),
	AsrRRR:      dst3("asr"),
	SxtwRR:      dst3("sxtw"),
	SxtbRR:      dst3("sxtb"),
	SxthRR:      dst3("sxth"),
	UxtbRR:      dst3("uxtb"),
	UxthRR:      dst3("uxth"),
	CmpRR:       {Name: "cmp"},
	CmpRI:       {Name: "cmp"},
	FCmpRR:      {Name: "fcmp"},
	CsetEq:      dst3("cset"),
	CsetNe:      dst3("cset"),
	CsetGt:      dst3("cset"),
	CsetGe:      dst3("cset"),
	CsetLt:      dst3("cset"),
	CsetLe:      dst3("cset"),
	CsetHi:      dst3("cset"),
	CsetHs:      dst3("cset"),
	CsetLo:      dst3("cset"),
	CsetLs:      dst3("cset"),
	B:           {Name: "b", IsBranch: true},
	BEq:         {Name: "b.eq", IsBranch: true},
	BNe:         {Name: "b.ne", IsBranch: true},
	BGt:         {Name: "b.gt", IsBranch: true},
	BGe:         {Name: "b.ge", IsBranch: true},
	BLt:         {Name: "b.lt", IsBranch: true},
	BLe:         {Name: "b.le", IsBranch: true},
	BHi:         {Name: "b.hi", IsBranch: true},
	BHs:         {Name: "b.hs", IsBranch: true},
	BLo:         {Name: "b.lo", IsBranch: true},
	BLs:         {Name: "b.ls", IsBranch: true},
	Cbnz:        {Name: "cbnz", IsBranch: true},
	Bl:          {Name: "bl"},
	Blr:         {Name: "blr"},
	RetOp:       {Name: "ret", IsReturn: true},
	StpPre:      {Name: "stp", MayStore: true},
	LdpPost:     {Name: "ldp", MayLoad: true},
	MovSPFP:     {Name: "mov"},
	SubSPImm:    {Name: "sub"},
	AddSPImm:    {Name: "add"},
	FAddRRR:     dst3("fadd"),
	FSubRRR:     dst3("fsub"),
	FMulRRR:     dst3("fmul"),
	FDivRRR:     dst3("fdiv"),
	ScvtfRR:     dst3("scvtf"),
	FcvtzsRR:    dst3("fcvtzs"),
}

// InstructionInfo is the AArch64 opcode table and pattern set.
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
		panic(fmt.Sprintf("aarch64: unknown opcode %d", opcode))
	}
	return d
}

func (info *InstructionInfo) Patterns(kind isel.NodeKind) []isel.Pattern {
	return info.patterns[kind]
}

func (info *InstructionInfo) add(kind isel.NodeKind, p isel.Pattern) {
	info.patterns[kind] = append(info.patterns[kind], p)
}

// Spiller reloads through the frame with ldr/str.
type Spiller struct {
	regInfo *RegisterInfo
}

func NewSpiller(regInfo *RegisterInfo) *Spiller { return &Spiller{regInfo: regInfo} }

func (s *Spiller) Spill(reg uint32, f *mir.Function) {
	info := f.RegInfo().VirtualRegisterInfo(reg)
	slot := f.Frame().AddSlot(8, 8)
	loadOp, storeOp := uint32(LdrRM), uint32(StrMR)
	if info.Class == mir.ClassFPR {
		loadOp, storeOp = LdrFRM, StrFMR
	}

	fresh := func(flags uint32) *mir.Register {
		id := f.RegInfo().NewVirtualRegister(info.Type, info.Class)
		return mir.NewRegister(id, info.Class, flags)
	}
	slotMem := func() *mir.Memory {
		return &mir.Memory{Base: mir.NewFrameIndex(slot), OpSize: 8}
	}

	for _, b := range f.Blocks() {
		for idx := 0; idx < len(b.Instructions()); idx++ {
			inst := b.Instructions()[idx]
			desc := descriptors[inst.Opcode()]
			for n, op := range inst.Operands() {
				r, ok := op.(*mir.Register)
				if !ok || r.ID() != reg {
					continue
				}
				replacement := fresh(r.Flags())
				if desc.Restriction(n).Assigned {
					inst.SetOperand(n, replacement)
					b.InsertAt(mir.NewInstruction(storeOp, slotMem(), mir.NewRegister(replacement.ID(), replacement.Class(), mir.FlagForce64Bit)), idx+1)
					idx++
					continue
				}
				b.InsertAt(mir.NewInstruction(loadOp, mir.NewRegister(replacement.ID(), replacement.Class(), mir.FlagForce64Bit), slotMem()), idx)
				idx++
				inst.SetOperand(n, replacement)
			}
			for _, op := range inst.Operands() {
				if mem, ok := op.(*mir.Memory); ok {
					if base, ok := mem.Base.(*mir.Register); ok && base.ID() == reg {
						replacement := fresh(base.Flags())
						b.InsertAt(mir.NewInstruction(loadOp, mir.NewRegister(replacement.ID(), replacement.Class(), mir.FlagForce64Bit), slotMem()), idx)
						idx++
						mem.Base = replacement
					}
				}
			}
		}
	}
}
