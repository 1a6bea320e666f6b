package mir

import (
	"fmt"
	"strings"
)

// Instruction is one machine instruction: a target opcode and its operand
// list. Call sites additionally carry the registers the call defines and
// the length of the argument-setup sequence in front of them, which the
// save pass needs.
type Instruction struct {
	opcode   uint32
	operands []Operand
	block    *Block

	call *CallInfo
}

// CallInfo is attached to call instructions only.
type CallInfo struct {
	// ReturnRegisters are physical registers the call defines.
	ReturnRegisters []uint32
	// StartOffset counts the argument-setup instructions emitted directly
	// before the call; pushes that save live registers go in front of them.
	StartOffset int
}

func NewInstruction(opcode uint32, operands ...Operand) *Instruction {
	return &Instruction{opcode: opcode, operands: operands}
}

func NewCallInstruction(opcode uint32, info *CallInfo, operands ...Operand) *Instruction {
	return &Instruction{opcode: opcode, operands: operands, call: info}
}

func (i *Instruction) Opcode() uint32      { return i.opcode }
func (i *Instruction) Operands() []Operand { return i.operands }
func (i *Instruction) Operand(n int) Operand {
	return i.operands[n]
}
func (i *Instruction) NumOperands() int { return len(i.operands) }
func (i *Instruction) Parent() *Block   { return i.block }
func (i *Instruction) Call() *CallInfo  { return i.call }
func (i *Instruction) IsCall() bool     { return i.call != nil }

func (i *Instruction) SetOperand(n int, op Operand) { i.operands[n] = op }

// Registers yields every register operand, including registers nested in
// memory operands. Memory-nested registers are always reads.
type RegisterUse struct {
	Reg *Register
	// OperandIndex is the top-level operand position the register sits in.
	OperandIndex int
	// InMemory is true for base/index registers of a memory operand.
	InMemory bool
}

func (i *Instruction) Registers() []RegisterUse {
	var uses []RegisterUse
	for idx, op := range i.operands {
		switch o := op.(type) {
		case *Register:
			uses = append(uses, RegisterUse{Reg: o, OperandIndex: idx})
		case *Memory:
			if r, ok := o.Base.(*Register); ok {
				uses = append(uses, RegisterUse{Reg: r, OperandIndex: idx, InMemory: true})
			}
			if r, ok := o.Index.(*Register); ok {
				uses = append(uses, RegisterUse{Reg: r, OperandIndex: idx, InMemory: true})
			}
		}
	}
	return uses
}

func (i *Instruction) String() string {
	parts := make([]string, len(i.operands))
	for n, op := range i.operands {
		parts[n] = op.String()
	}
	return fmt.Sprintf("op%d %s", i.opcode, strings.Join(parts, ", "))
}
