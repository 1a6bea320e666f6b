package ir

// Opcode enumerates every IR instruction. Passes switch over this
// exhaustively; adding an opcode means visiting every switch.
type Opcode int

const (
	OpAllocate Opcode = iota
	OpLoad
	OpStore
	OpAdd
	OpSub
	OpIMul
	OpUMul
	OpFMul
	OpIDiv
	OpUDiv
	OpFDiv
	OpIRem
	OpURem
	OpICmpEq
	OpICmpNe
	OpICmpGt
	OpICmpGe
	OpICmpLt
	OpICmpLe
	OpUCmpGt
	OpUCmpGe
	OpUCmpLt
	OpUCmpLe
	OpFCmpEq
	OpFCmpNe
	OpFCmpGt
	OpFCmpGe
	OpFCmpLt
	OpFCmpLe
	OpShiftLeft
	OpLShiftRight
	OpAShiftRight
	OpAnd
	OpOr
	OpXor
	OpGetElementPtr
	OpZext
	OpSext
	OpTrunc
	OpFptrunc
	OpFpext
	OpFptosi
	OpFptoui
	OpSitofp
	OpUitofp
	OpBitcast
	OpPtrtoint
	OpInttoptr
	OpExtractValue
	OpPhi
	OpCall
	OpRet
	OpJump
	OpSwitch
)

var opcodeNames = [...]string{
	OpAllocate:      "allocate",
	OpLoad:          "load",
	OpStore:         "store",
	OpAdd:           "add",
	OpSub:           "sub",
	OpIMul:          "imul",
	OpUMul:          "umul",
	OpFMul:          "fmul",
	OpIDiv:          "idiv",
	OpUDiv:          "udiv",
	OpFDiv:          "fdiv",
	OpIRem:          "irem",
	OpURem:          "urem",
	OpICmpEq:        "icmp.eq",
	OpICmpNe:        "icmp.ne",
	OpICmpGt:        "icmp.gt",
	OpICmpGe:        "icmp.ge",
	OpICmpLt:        "icmp.lt",
	OpICmpLe:        "icmp.le",
	OpUCmpGt:        "ucmp.gt",
	OpUCmpGe:        "ucmp.ge",
	OpUCmpLt:        "ucmp.lt",
	OpUCmpLe:        "ucmp.le",
	OpFCmpEq:        "fcmp.eq",
	OpFCmpNe:        "fcmp.ne",
	OpFCmpGt:        "fcmp.gt",
	OpFCmpGe:        "fcmp.ge",
	OpFCmpLt:        "fcmp.lt",
	OpFCmpLe:        "fcmp.le",
	OpShiftLeft:     "shl",
	OpLShiftRight:   "lshr",
	OpAShiftRight:   "ashr",
	OpAnd:           "and",
	OpOr:            "or",
	OpXor:           "xor",
	OpGetElementPtr: "gep",
	OpZext:          "zext",
	OpSext:          "sext",
	OpTrunc:         "trunc",
	OpFptrunc:       "fptrunc",
	OpFpext:         "fpext",
	OpFptosi:        "fptosi",
	OpFptoui:        "fptoui",
	OpSitofp:        "sitofp",
	OpUitofp:        "uitofp",
	OpBitcast:       "bitcast",
	OpPtrtoint:      "ptrtoint",
	OpInttoptr:      "inttoptr",
	OpExtractValue:  "extractvalue",
	OpPhi:           "phi",
	OpCall:          "call",
	OpRet:           "ret",
	OpJump:          "jump",
	OpSwitch:        "switch",
}

func (op Opcode) String() string { return opcodeNames[op] }

// IsTerminator reports whether op ends a block.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpRet, OpJump, OpSwitch:
		return true
	}
	return false
}

func (op Opcode) IsCompare() bool {
	return op >= OpICmpEq && op <= OpFCmpLe
}

func (op Opcode) IsCast() bool {
	return op >= OpZext && op <= OpInttoptr
}

func (op Opcode) IsBinary() bool {
	return (op >= OpAdd && op <= OpXor) && op != OpGetElementPtr
}

// Instruction is a single tagged operation. The operand layout per opcode:
//
//	load        [ptr]
//	store       [ptr, value]
//	binary ops  [lhs, rhs]
//	casts       [value]
//	gep         [base, index...]
//	extractvalue[aggregate, index]
//	phi         [value, block]... (alternating)
//	call        [callee, arg...]
//	ret         [] or [value]
//	jump        [target] or [then, else, cond]
//	switch      [value, default, (const, block)...]
type Instruction struct {
	valueBase
	op       Opcode
	operands []Value
	block    *Block

	// callConv applies to OpCall sites only.
	callConv CallingConvention
	// phiAlloca links a φ inserted by Mem2Reg back to its allocation while
	// renaming runs; nil otherwise.
	phiAlloca *Instruction
}

func NewInstruction(op Opcode, typ Type, name string, operands ...Value) *Instruction {
	inst := &Instruction{op: op}
	inst.init(name, typ, KindInstruction)
	for _, operand := range operands {
		inst.AddOperand(operand)
	}
	return inst
}

func (i *Instruction) Opcode() Opcode      { return i.op }
func (i *Instruction) Operands() []Value   { return i.operands }
func (i *Instruction) NumOperands() int    { return len(i.operands) }
func (i *Instruction) Operand(n int) Value { return i.operands[n] }
func (i *Instruction) Parent() *Block      { return i.block }
func (i *Instruction) IsTerminator() bool  { return i.op.IsTerminator() }

func (i *Instruction) CallConv() CallingConvention      { return i.callConv }
func (i *Instruction) SetCallConv(cc CallingConvention) { i.callConv = cc }
func (i *Instruction) PhiAlloca() *Instruction          { return i.phiAlloca }
func (i *Instruction) setPhiAlloca(alloca *Instruction) { i.phiAlloca = alloca }

// AddOperand appends v and registers this instruction in v's use list. If
// the instruction is an attached terminator and v is a block, the CFG edge
// is added too.
func (i *Instruction) AddOperand(v Value) {
	i.operands = append(i.operands, v)
	v.addUse(i)
	if b, ok := v.(*Block); ok && i.block != nil && i.IsTerminator() {
		i.block.addSuccessor(b)
	}
}

// SetOperand replaces the operand at index n with v, updating both use
// lists and, for terminators, the predecessor/successor multisets.
func (i *Instruction) SetOperand(n int, v Value) {
	old := i.operands[n]
	if old == v {
		return
	}
	old.removeUse(i)
	i.operands[n] = v
	v.addUse(i)
	if i.block != nil && i.IsTerminator() {
		if ob, ok := old.(*Block); ok {
			i.block.removeSuccessor(ob)
		}
		if nb, ok := v.(*Block); ok {
			i.block.addSuccessor(nb)
		}
	}
}

// RemoveOperand removes every occurrence of v from the operand list.
func (i *Instruction) RemoveOperand(v Value) {
	kept := i.operands[:0]
	for _, operand := range i.operands {
		if operand != v {
			kept = append(kept, operand)
			continue
		}
		operand.removeUse(i)
		if b, ok := operand.(*Block); ok && i.block != nil && i.IsTerminator() {
			i.block.removeSuccessor(b)
		}
	}
	i.operands = kept
}

// ReplaceOperand swaps every occurrence of old for with.
func (i *Instruction) ReplaceOperand(old, with Value) {
	for n, operand := range i.operands {
		if operand == old {
			i.SetOperand(n, with)
		}
	}
}

// dropOperands clears the operand list and every use-list entry it holds.
// Called when the instruction is destroyed.
func (i *Instruction) dropOperands() {
	for _, operand := range i.operands {
		operand.removeUse(i)
	}
	i.operands = nil
}

// Clone copies the instruction with the same operands and no parent block.
// Use lists are populated for the clone's operands.
func (i *Instruction) Clone() *Instruction {
	clone := NewInstruction(i.op, i.Type(), i.Name(), i.operands...)
	clone.callConv = i.callConv
	clone.phiAlloca = i.phiAlloca
	return clone
}

// Successors lists the block operands of a terminator, with multiplicity.
func (i *Instruction) Successors() []*Block {
	var succs []*Block
	switch i.op {
	case OpJump:
		if len(i.operands) == 1 {
			succs = append(succs, i.operands[0].(*Block))
		} else {
			succs = append(succs, i.operands[0].(*Block), i.operands[1].(*Block))
		}
	case OpSwitch:
		succs = append(succs, i.operands[1].(*Block))
		for n := 2; n+1 < len(i.operands); n += 2 {
			succs = append(succs, i.operands[n+1].(*Block))
		}
	}
	return succs
}

// PhiIncoming returns the (value, block) pairs of a φ.
func (i *Instruction) PhiIncoming() []PhiEdge {
	edges := make([]PhiEdge, 0, len(i.operands)/2)
	for n := 0; n+1 < len(i.operands); n += 2 {
		edges = append(edges, PhiEdge{Value: i.operands[n], Block: i.operands[n+1].(*Block)})
	}
	return edges
}

type PhiEdge struct {
	Value Value
	Block *Block
}

// AddPhiIncoming appends an incoming edge to a φ.
func (i *Instruction) AddPhiIncoming(v Value, from *Block) {
	i.AddOperand(v)
	i.AddOperand(from)
}

// Callee returns the called value of an OpCall.
func (i *Instruction) Callee() Value { return i.operands[0] }

// CallArgs returns the argument operands of an OpCall.
func (i *Instruction) CallArgs() []Value { return i.operands[1:] }
