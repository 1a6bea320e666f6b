package x64

import (
	"strconv"

	"sable/internal/ir"
	"sable/internal/mir"
)

// Register ids: sixteen general-purpose groups with four width aliases
// each, then the sixteen SSE registers. Aliases of one group share id mod
// 16 within their width band.
const (
	RAX uint32 = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	EAX
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
	R8D
	R9D
	R10D
	R11D
	R12D
	R13D
	R14D
	R15D

	AX
	CX
	DX
	BX
	SP
	BP
	SI
	DI
	R8W
	R9W
	R10W
	R11W
	R12W
	R13W
	R14W
	R15W

	AL
	CL
	DL
	BL
	SPL
	BPL
	SIL
	DIL
	R8B
	R9B
	R10B
	R11B
	R12B
	R13B
	R14B
	R15B

	XMM0
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15

	numRegisters
)

var gprNames = [64]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d",
	"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
	"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w",
	"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
	"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b",
}

// RegisterInfo is the x86-64 register table.
type RegisterInfo struct {
	registers [numRegisters]*mir.Register
}

func NewRegisterInfo() *RegisterInfo {
	info := &RegisterInfo{}
	for id := uint32(0); id < numRegisters; id++ {
		class := mir.ClassGPR
		if id >= XMM0 {
			class = mir.ClassFPR
		}
		info.registers[id] = mir.NewRegister(id, class, 0)
	}
	return info
}

func (info *RegisterInfo) Register(id uint32) *mir.Register { return info.registers[id] }

func (info *RegisterInfo) RegisterWithFlags(id uint32, flags uint32) *mir.Register {
	class := mir.ClassGPR
	if id >= XMM0 {
		class = mir.ClassFPR
	}
	return mir.NewRegister(id, class, flags)
}

func (info *RegisterInfo) IsPhysical(id uint32) bool { return id < numRegisters }

func (info *RegisterInfo) Name(id uint32) string {
	if id < XMM0 {
		return gprNames[id]
	}
	return "xmm" + strconv.Itoa(int(id-XMM0))
}

// IsSameRegister is alias-aware: the width aliases of one general-purpose
// group are the same register.
func (info *RegisterInfo) IsSameRegister(a, b uint32) bool {
	if a >= numRegisters || b >= numRegisters {
		return a == b
	}
	if a >= XMM0 || b >= XMM0 {
		return a == b
	}
	return a%16 == b%16
}

// RegisterWithSize maps any alias of a group to the alias of the requested
// byte width. SSE registers have a single name at every width.
func (info *RegisterInfo) RegisterWithSize(id uint32, size int) (uint32, bool) {
	if id >= XMM0 && id < numRegisters {
		return id, true
	}
	if id >= numRegisters {
		return 0, false
	}
	group := id % 16
	switch size {
	case 8:
		return group, true
	case 4:
		return EAX + group, true
	case 2:
		return AX + group, true
	case 1:
		return AL + group, true
	}
	return 0, false
}

var allocatableGPR = []uint32{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11, RBX, R12, R13, R14, R15}

var allocatableFPR = []uint32{
	XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7,
	XMM8, XMM9, XMM10, XMM11, XMM12, XMM13, XMM14, XMM15,
}

func (info *RegisterInfo) AvailableRegisters(c mir.RegClass) []uint32 {
	if c == mir.ClassFPR {
		return allocatableFPR
	}
	return allocatableGPR
}

var callerSaved = []uint32{
	RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11,
	XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7,
	XMM8, XMM9, XMM10, XMM11, XMM12, XMM13, XMM14, XMM15,
}

var calleeSaved = []uint32{RBX, RBP, R12, R13, R14, R15}

func (info *RegisterInfo) CallerSaved() []uint32 { return callerSaved }
func (info *RegisterInfo) CalleeSaved() []uint32 { return calleeSaved }

func (info *RegisterInfo) ClassForType(t ir.Type) mir.RegClass {
	if ir.IsFloat(t) {
		return mir.ClassFPR
	}
	return mir.ClassGPR
}
