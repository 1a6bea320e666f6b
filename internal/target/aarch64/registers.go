package aarch64

import (
	"strconv"

	"sable/internal/ir"
	"sable/internal/mir"
)

// Register ids: X0–X30 and SP, their W aliases, then the D registers used
// for floats. An X register and its W alias are the same register.
const (
	X0 uint32 = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29 // frame pointer
	X30 // link register
	SP

	wBase // W0 = wBase + n
)

const (
	numX     = 32
	W0       = wBase
	dBase    = wBase + numX
	D0       = dBase
	numD     = 16
	numTotal = dBase + numD
)

// RegisterInfo is the AArch64 register table.
type RegisterInfo struct {
	registers [numTotal]*mir.Register
}

func NewRegisterInfo() *RegisterInfo {
	info := &RegisterInfo{}
	for id := uint32(0); id < numTotal; id++ {
		class := mir.ClassGPR
		if id >= dBase {
			class = mir.ClassFPR
		}
		info.registers[id] = mir.NewRegister(id, class, 0)
	}
	return info
}

func (info *RegisterInfo) Register(id uint32) *mir.Register { return info.registers[id] }

func (info *RegisterInfo) RegisterWithFlags(id uint32, flags uint32) *mir.Register {
	class := mir.ClassGPR
	if id >= dBase {
		class = mir.ClassFPR
	}
	return mir.NewRegister(id, class, flags)
}

func (info *RegisterInfo) IsPhysical(id uint32) bool { return id < numTotal }

func (info *RegisterInfo) Name(id uint32) string {
	switch {
	case id == SP:
		return "sp"
	case id == X29:
		return "x29"
	case id == X30:
		return "x30"
	case id < wBase:
		return "x" + strconv.Itoa(int(id))
	case id < dBase:
		if id-wBase == SP {
			return "wsp"
		}
		return "w" + strconv.Itoa(int(id-wBase))
	default:
		return "d" + strconv.Itoa(int(id-dBase))
	}
}

func (info *RegisterInfo) IsSameRegister(a, b uint32) bool {
	return info.canonical(a) == info.canonical(b)
}

func (info *RegisterInfo) canonical(id uint32) uint32 {
	if id >= wBase && id < dBase {
		return id - wBase
	}
	return id
}

func (info *RegisterInfo) RegisterWithSize(id uint32, size int) (uint32, bool) {
	if id >= dBase {
		return id, true
	}
	x := info.canonical(id)
	if size == 8 {
		return x, true
	}
	if size <= 4 {
		return x + wBase, true
	}
	return 0, false
}

// x18 is platform-reserved, x29/x30 frame and link.
var allocatableGPR = []uint32{
	X0, X1, X2, X3, X4, X5, X6, X7, X9, X10, X11, X12, X13, X14, X15,
	X19, X20, X21, X22, X23, X24, X25, X26, X27, X28,
}

var allocatableFPR = []uint32{
	D0, D0 + 1, D0 + 2, D0 + 3, D0 + 4, D0 + 5, D0 + 6, D0 + 7,
	D0 + 8, D0 + 9, D0 + 10, D0 + 11, D0 + 12, D0 + 13, D0 + 14, D0 + 15,
}

func (info *RegisterInfo) AvailableRegisters(c mir.RegClass) []uint32 {
	if c == mir.ClassFPR {
		return allocatableFPR
	}
	return allocatableGPR
}

var callerSaved = []uint32{
	X0, X1, X2, X3, X4, X5, X6, X7, X8, X9, X10, X11, X12, X13, X14, X15, X16, X17,
	D0, D0 + 1, D0 + 2, D0 + 3, D0 + 4, D0 + 5, D0 + 6, D0 + 7,
}

var calleeSaved = []uint32{X19, X20, X21, X22, X23, X24, X25, X26, X27, X28}

func (info *RegisterInfo) CallerSaved() []uint32 { return callerSaved }
func (info *RegisterInfo) CalleeSaved() []uint32 { return calleeSaved }

func (info *RegisterInfo) ClassForType(t ir.Type) mir.RegClass {
	if ir.IsFloat(t) {
		return mir.ClassFPR
	}
	return mir.ClassGPR
}
