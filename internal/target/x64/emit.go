package x64

import (
	"encoding/binary"
	"fmt"
	"math"

	"sable/internal/ir"
	"sable/internal/isel"
	"sable/internal/mir"
)

// typeBits is the operation width of a type on x86-64; pointers are 64.
func typeBits(t ir.Type) int {
	switch typ := t.(type) {
	case *ir.IntegerType:
		return typ.Bits()
	case *ir.FloatType:
		return typ.Bits()
	case *ir.PointerType, *ir.FunctionType:
		return 64
	}
	return 64
}

// widthFlag picks the register-width flag a value of t occupies. Narrow
// integers compute at 32 bits; only their memory accesses are narrow.
func widthFlag(t ir.Type) uint32 {
	if ir.IsFloat(t) {
		return 0
	}
	if typeBits(t) == 64 {
		return mir.FlagForce64Bit
	}
	return mir.FlagForce32Bit
}

func classOf(t ir.Type) mir.RegClass {
	if ir.IsFloat(t) {
		return mir.ClassFPR
	}
	return mir.ClassGPR
}

// newVReg allocates a fresh virtual register operand for a value of t,
// carrying its width flag.
func newVReg(e isel.Emitter, t ir.Type) *mir.Register {
	class := classOf(t)
	id := e.Output().RegInfo().NewVirtualRegister(t, class)
	return mir.NewRegister(id, class, widthFlag(t))
}

// reflag clones a register operand with different width flags; other
// operand kinds pass through.
func reflag(op mir.Operand, flags uint32) mir.Operand {
	if r, ok := op.(*mir.Register); ok {
		return mir.NewRegister(r.ID(), r.Class(), flags)
	}
	return op
}

// is32or64 picks between a 32-bit and a 64-bit opcode by operation width.
func is32or64(t ir.Type, op32, op64 uint32) uint32 {
	if typeBits(t) == 64 {
		return op64
	}
	return op32
}

// fitsImm32 reports whether v encodes as a sign-extended 32-bit immediate.
func fitsImm32(v int64) bool { return v >= math.MinInt32 && v <= math.MaxInt32 }

// movRR returns the register-register copy opcode for a type.
func movRR(t ir.Type) uint32 {
	if ir.IsFloat(t) {
		return Movaps_rr
	}
	return is32or64(t, Mov32rr, Mov64rr)
}

// loadOpcode picks the memory-to-register move for an access width.
func loadOpcode(t ir.Type, layout ir.DataLayout) uint32 {
	if ir.IsFloat(t) {
		if typeBits(t) == 32 {
			return Movss_rm
		}
		return Movsd_rm
	}
	switch layout.Size(t) {
	case 1:
		return Mov8rm
	case 2:
		return Mov16rm
	case 4:
		return Mov32rm
	}
	return Mov64rm
}

func storeOpcode(t ir.Type, layout ir.DataLayout) uint32 {
	if ir.IsFloat(t) {
		if typeBits(t) == 32 {
			return Movss_mr
		}
		return Movsd_mr
	}
	switch layout.Size(t) {
	case 1:
		return Mov8mr
	case 2:
		return Mov16mr
	case 4:
		return Mov32mr
	}
	return Mov64mr
}

// regFlagForWidth maps an access width to the register flag the value
// side of the move needs.
func regFlagForWidth(size int) uint32 {
	switch size {
	case 1:
		return mir.FlagForce8Bit
	case 2:
		return mir.FlagForce16Bit
	case 4:
		return mir.FlagForce32Bit
	}
	return mir.FlagForce64Bit
}

// materializeInt emits the cheapest load of an integer constant into dst.
func materializeInt(b *mir.Block, dst *mir.Register, value int64, bits int) {
	switch {
	case bits == 64 && !fitsImm32(value):
		b.Append(mir.NewInstruction(Movabs64ri, reflag(dst, mir.FlagForce64Bit), mir.NewImmediateInt(value, mir.Imm64)))
	case bits == 64:
		b.Append(mir.NewInstruction(Mov64ri, reflag(dst, mir.FlagForce64Bit), mir.NewImmediateInt(value, mir.Imm32)))
	default:
		b.Append(mir.NewInstruction(Mov32ri, reflag(dst, mir.FlagForce32Bit), mir.NewImmediateInt(value, mir.Imm32)))
	}
}

// floatConstBytes encodes a float literal for the constant pool.
func floatConstBytes(value float64, bits int) []byte {
	if bits == 32 {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(value)))
		return buf[:]
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(value))
	return buf[:]
}

// nodeType returns the IR type of a value node or of an instruction node's
// result.
func nodeType(n isel.Node) ir.Type {
	switch v := n.(type) {
	case isel.ValueNode:
		return v.Type()
	case *isel.Instruction:
		if v.Result() != nil {
			return v.Result().Type()
		}
	}
	panic(fmt.Sprintf("x64: node kind %d has no type", n.Kind()))
}

// frameMemory wraps a frame slot as a memory operand of the given access
// width.
func frameMemory(slot int, size int) *mir.Memory {
	return &mir.Memory{Base: mir.NewFrameIndex(slot), OpSize: size}
}

// regMemory addresses through a register.
func regMemory(base mir.Operand, disp int64, size int) *mir.Memory {
	return &mir.Memory{Base: reflag(base, mir.FlagForce64Bit), Disp: disp, OpSize: size}
}
