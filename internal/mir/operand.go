package mir

import (
	"fmt"

	"sable/internal/ir"
)

// OperandKind discriminates machine operands.
type OperandKind int

const (
	OperandRegister OperandKind = iota
	OperandImmediateInt
	OperandBlock
	OperandGlobalAddress
	OperandExternalSymbol
	OperandConstantPoolIndex
	OperandFrameIndex
	OperandMemory
)

// Operand flags consumed by the register allocator, printer, and encoder.
const (
	FlagForce8Bit uint32 = 1 << iota
	FlagForce16Bit
	FlagForce32Bit
	FlagForce64Bit
	// FlagGOTPCRel marks a global reference that must go through the GOT.
	FlagGOTPCRel
	// FlagPLT marks an external call routed through the PLT.
	FlagPLT
)

// Operand is one machine-instruction operand. Operands are value-like;
// Equals compares identity-relevant fields and optionally flags.
type Operand interface {
	Kind() OperandKind
	Flags() uint32
	Equals(other Operand, withFlags bool) bool
	String() string
}

type operandBase struct {
	flags uint32
}

func (o *operandBase) Flags() uint32         { return o.flags }
func (o *operandBase) HasFlag(f uint32) bool { return o.flags&f != 0 }
func (o *operandBase) SetFlags(flags uint32) { o.flags = flags }

// RegClass partitions registers for allocation.
type RegClass int

const (
	ClassGPR RegClass = iota
	ClassFPR
)

// FirstVirtualRegister splits the register id space: ids below it are
// physical (rows in the target's register table), ids at or above it are
// virtual and per-function.
const FirstVirtualRegister uint32 = 1 << 10

// Register is a virtual or physical register operand.
type Register struct {
	operandBase
	id    uint32
	class RegClass
}

func NewRegister(id uint32, class RegClass, flags uint32) *Register {
	r := &Register{id: id, class: class}
	r.flags = flags
	return r
}

func (r *Register) Kind() OperandKind { return OperandRegister }
func (r *Register) ID() uint32        { return r.id }
func (r *Register) Class() RegClass   { return r.class }
func (r *Register) IsVirtual() bool   { return r.id >= FirstVirtualRegister }

func (r *Register) Equals(other Operand, withFlags bool) bool {
	o, ok := other.(*Register)
	if !ok || o.id != r.id {
		return false
	}
	return !withFlags || o.flags == r.flags
}

func (r *Register) String() string {
	if r.IsVirtual() {
		return fmt.Sprintf("%%%d", r.id)
	}
	return fmt.Sprintf("$r%d", r.id)
}

// ImmediateInt sizes select the encoder's immediate width.
type ImmSize int

const (
	Imm8 ImmSize = iota
	Imm16
	Imm32
	Imm64
)

type ImmediateInt struct {
	operandBase
	value int64
	size  ImmSize
}

func NewImmediateInt(value int64, size ImmSize) *ImmediateInt {
	return &ImmediateInt{value: value, size: size}
}

func (i *ImmediateInt) Kind() OperandKind { return OperandImmediateInt }
func (i *ImmediateInt) Value() int64      { return i.value }
func (i *ImmediateInt) Size() ImmSize     { return i.size }

// SetValue finalizes a placeholder immediate; the prologue's frame-size
// operand is patched this way once every stack slot exists.
func (i *ImmediateInt) SetValue(v int64) { i.value = v }

func (i *ImmediateInt) Equals(other Operand, withFlags bool) bool {
	o, ok := other.(*ImmediateInt)
	if !ok || o.value != i.value || o.size != i.size {
		return false
	}
	return !withFlags || o.flags == i.flags
}

func (i *ImmediateInt) String() string { return fmt.Sprintf("%d", i.value) }

// BlockRef is a branch target label.
type BlockRef struct {
	operandBase
	block *Block
}

func NewBlockRef(b *Block) *BlockRef { return &BlockRef{block: b} }

func (b *BlockRef) Kind() OperandKind { return OperandBlock }
func (b *BlockRef) Block() *Block     { return b.block }

func (b *BlockRef) Equals(other Operand, withFlags bool) bool {
	o, ok := other.(*BlockRef)
	return ok && o.block == b.block
}

func (b *BlockRef) String() string { return b.block.Name() }

// GlobalAddress references a global value defined in this unit.
type GlobalAddress struct {
	operandBase
	value ir.Value
}

func NewGlobalAddress(value ir.Value, flags uint32) *GlobalAddress {
	g := &GlobalAddress{value: value}
	g.flags = flags
	return g
}

func (g *GlobalAddress) Kind() OperandKind { return OperandGlobalAddress }
func (g *GlobalAddress) Value() ir.Value   { return g.value }
func (g *GlobalAddress) Name() string      { return g.value.Name() }

func (g *GlobalAddress) Equals(other Operand, withFlags bool) bool {
	o, ok := other.(*GlobalAddress)
	if !ok || o.value != g.value {
		return false
	}
	return !withFlags || o.flags == g.flags
}

func (g *GlobalAddress) String() string { return g.value.Name() }

// ExternalSymbol references a symbol resolved at link time.
type ExternalSymbol struct {
	operandBase
	name string
}

func NewExternalSymbol(name string, flags uint32) *ExternalSymbol {
	s := &ExternalSymbol{name: name}
	s.flags = flags
	return s
}

func (s *ExternalSymbol) Kind() OperandKind { return OperandExternalSymbol }
func (s *ExternalSymbol) Name() string      { return s.name }

func (s *ExternalSymbol) Equals(other Operand, withFlags bool) bool {
	o, ok := other.(*ExternalSymbol)
	if !ok || o.name != s.name {
		return false
	}
	return !withFlags || o.flags == s.flags
}

func (s *ExternalSymbol) String() string { return s.name }

// ConstantPoolIndex references an entry in the function's constant pool
// (float literals that need a memory home).
type ConstantPoolIndex struct {
	operandBase
	index int
}

func NewConstantPoolIndex(index int) *ConstantPoolIndex {
	return &ConstantPoolIndex{index: index}
}

func (c *ConstantPoolIndex) Kind() OperandKind { return OperandConstantPoolIndex }
func (c *ConstantPoolIndex) Index() int        { return c.index }

func (c *ConstantPoolIndex) Equals(other Operand, withFlags bool) bool {
	o, ok := other.(*ConstantPoolIndex)
	return ok && o.index == c.index
}

func (c *ConstantPoolIndex) String() string { return fmt.Sprintf("cp#%d", c.index) }

// FrameIndex references a stack slot; the slot's byte offset is resolved
// when the prologue is laid out.
type FrameIndex struct {
	operandBase
	index int
}

func NewFrameIndex(index int) *FrameIndex { return &FrameIndex{index: index} }

func (f *FrameIndex) Kind() OperandKind { return OperandFrameIndex }
func (f *FrameIndex) Index() int        { return f.index }

func (f *FrameIndex) Equals(other Operand, withFlags bool) bool {
	o, ok := other.(*FrameIndex)
	return ok && o.index == f.index
}

func (f *FrameIndex) String() string { return fmt.Sprintf("fi#%d", f.index) }

// Memory is an addressing-mode operand: [base + index*scale + disp]. Base
// is a register, frame index, or global address; index may be nil.
type Memory struct {
	operandBase
	Base  Operand
	Index Operand
	Scale int
	Disp  int64
	// OpSize is the access width in bytes, for printing and encoding.
	OpSize int
}

func (m *Memory) Kind() OperandKind { return OperandMemory }

func (m *Memory) Equals(other Operand, withFlags bool) bool {
	o, ok := other.(*Memory)
	if !ok || o.Scale != m.Scale || o.Disp != m.Disp || o.OpSize != m.OpSize {
		return false
	}
	if (m.Base == nil) != (o.Base == nil) || (m.Index == nil) != (o.Index == nil) {
		return false
	}
	if m.Base != nil && !m.Base.Equals(o.Base, withFlags) {
		return false
	}
	if m.Index != nil && !m.Index.Equals(o.Index, withFlags) {
		return false
	}
	return true
}

func (m *Memory) String() string {
	s := "["
	if m.Base != nil {
		s += m.Base.String()
	}
	if m.Index != nil {
		s += fmt.Sprintf(" + %s * %d", m.Index, m.Scale)
	}
	if m.Disp != 0 {
		s += fmt.Sprintf(" %+d", m.Disp)
	}
	return s + "]"
}
