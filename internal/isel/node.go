package isel

import (
	"sable/internal/ir"
)

// NodeKind enumerates selection-DAG nodes: one kind per IR operation that
// survives to selection, plus the value leaves.
type NodeKind int

const (
	KindRoot NodeKind = iota

	// value nodes
	KindRegister
	KindConstantInt
	KindConstantFloat
	KindFrameIndex
	KindGlobalValue
	KindFunctionArgument
	KindMultiValue

	// operations
	KindAdd
	KindSub
	KindIMul
	KindUMul
	KindFMul
	KindIDiv
	KindUDiv
	KindFDiv
	KindIRem
	KindURem
	KindICmpEq
	KindICmpNe
	KindICmpGt
	KindICmpGe
	KindICmpLt
	KindICmpLe
	KindUCmpGt
	KindUCmpGe
	KindUCmpLt
	KindUCmpLe
	KindFCmpEq
	KindFCmpNe
	KindFCmpGt
	KindFCmpGe
	KindFCmpLt
	KindFCmpLe
	KindShiftLeft
	KindLShiftRight
	KindAShiftRight
	KindAnd
	KindOr
	KindXor
	KindGEP
	KindLoad
	KindStore
	KindCall
	KindJump
	KindSwitch
	KindRet
	KindPhi
	KindExtractValue
	KindZext
	KindSext
	KindTrunc
	KindFptrunc
	KindFpext
	KindFptosi
	KindFptoui
	KindSitofp
	KindUitofp
	KindGenericCast

	NumNodeKinds
)

// Node is anything in the per-function selection graph.
type Node interface {
	Kind() NodeKind
	Root() *Root
	SetRoot(r *Root)
}

type nodeBase struct {
	root *Root
}

func (n *nodeBase) Root() *Root     { return n.root }
func (n *nodeBase) SetRoot(r *Root) { n.root = r }

// ValueNode is a node with a materializable value and type.
type ValueNode interface {
	Node
	Type() ir.Type
}

type valueNodeBase struct {
	nodeBase
	typ ir.Type
}

func (n *valueNodeBase) Type() ir.Type { return n.typ }

// Register models one SSA value; it is interned per reference value so
// every use sees the same node.
type Register struct {
	valueNodeBase
	name string
}

func NewRegister(name string, typ ir.Type) *Register {
	r := &Register{name: name}
	r.typ = typ
	return r
}

func (r *Register) Kind() NodeKind { return KindRegister }
func (r *Register) Name() string   { return r.name }

type ConstantInt struct {
	valueNodeBase
	value int64
}

func NewConstantInt(value int64, typ ir.Type) *ConstantInt {
	c := &ConstantInt{value: value}
	c.typ = typ
	return c
}

func (c *ConstantInt) Kind() NodeKind { return KindConstantInt }
func (c *ConstantInt) Value() int64   { return c.value }

type ConstantFloat struct {
	valueNodeBase
	value float64
}

func NewConstantFloat(value float64, typ ir.Type) *ConstantFloat {
	c := &ConstantFloat{value: value}
	c.typ = typ
	return c
}

func (c *ConstantFloat) Kind() NodeKind { return KindConstantFloat }
func (c *ConstantFloat) Value() float64 { return c.value }

type FrameIndex struct {
	valueNodeBase
	slot int
}

func NewFrameIndex(slot int, typ ir.Type) *FrameIndex {
	f := &FrameIndex{slot: slot}
	f.typ = typ
	return f
}

func (f *FrameIndex) Kind() NodeKind { return KindFrameIndex }
func (f *FrameIndex) Slot() int      { return f.slot }

// GlobalValue wraps a global variable or function address.
type GlobalValue struct {
	valueNodeBase
	value ir.Value
}

func NewGlobalValue(value ir.Value) *GlobalValue {
	g := &GlobalValue{value: value}
	g.typ = value.Type()
	return g
}

func (g *GlobalValue) Kind() NodeKind  { return KindGlobalValue }
func (g *GlobalValue) Value() ir.Value { return g.value }

type FunctionArgument struct {
	valueNodeBase
	slot int
}

func NewFunctionArgument(slot int, typ ir.Type) *FunctionArgument {
	a := &FunctionArgument{slot: slot}
	a.typ = typ
	return a
}

func (a *FunctionArgument) Kind() NodeKind { return KindFunctionArgument }
func (a *FunctionArgument) Slot() int      { return a.slot }

// MultiValue carries the field registers of a struct-valued operation; an
// ExtractValue picks one of them without memory traffic.
type MultiValue struct {
	valueNodeBase
	values []ValueNode
}

func NewMultiValue(typ ir.Type) *MultiValue {
	m := &MultiValue{}
	m.typ = typ
	return m
}

func (m *MultiValue) Kind() NodeKind       { return KindMultiValue }
func (m *MultiValue) Values() []ValueNode  { return m.values }
func (m *MultiValue) AddValue(v ValueNode) { m.values = append(m.values, v) }

// Instruction is an operation node with wired operands. Operand wiring
// happens in a second phase, after every node exists.
type Instruction struct {
	nodeBase
	kind     NodeKind
	result   ValueNode
	operands []Node

	callConv   ir.CallingConvention
	resultUsed bool
}

func NewInstruction(kind NodeKind, result ValueNode) *Instruction {
	return &Instruction{kind: kind, result: result}
}

func NewCall(result ValueNode, cc ir.CallingConvention) *Instruction {
	return &Instruction{kind: KindCall, result: result, callConv: cc}
}

func (i *Instruction) Kind() NodeKind    { return i.kind }
func (i *Instruction) Result() ValueNode { return i.result }
func (i *Instruction) Operands() []Node  { return i.operands }
func (i *Instruction) Operand(n int) Node {
	return i.operands[n]
}
func (i *Instruction) NumOperands() int { return len(i.operands) }

func (i *Instruction) AddOperand(n Node) { i.operands = append(i.operands, n) }

func (i *Instruction) CallConv() ir.CallingConvention { return i.callConv }
func (i *Instruction) ResultUsed() bool               { return i.resultUsed }
func (i *Instruction) SetResultUsed(used bool)        { i.resultUsed = used }

// Root owns the node list of one IR block, with the operation nodes in
// original program order.
type Root struct {
	nodeBase
	name         string
	irBlock      *ir.Block
	nodes        []Node
	Instructions []*Instruction
}

func NewRoot(name string, irBlock *ir.Block) *Root {
	return &Root{name: name, irBlock: irBlock}
}

func (r *Root) Kind() NodeKind     { return KindRoot }
func (r *Root) Name() string       { return r.name }
func (r *Root) IRBlock() *ir.Block { return r.irBlock }

// Inserter appends nodes to the current root, like a builder cursor over
// the DAG under construction.
type Inserter struct {
	root *Root
}

func (ins *Inserter) Root() *Root        { return ins.root }
func (ins *Inserter) SetRoot(root *Root) { ins.root = root }

func (ins *Inserter) Insert(n Node) {
	n.SetRoot(ins.root)
	ins.root.nodes = append(ins.root.nodes, n)
	if instr, ok := n.(*Instruction); ok {
		ins.root.Instructions = append(ins.root.Instructions, instr)
	}
}

// ExtractOperand resolves an ExtractValue node to the field register of
// its aggregate's MultiValue; any other node passes through.
func ExtractOperand(n Node) Node {
	instr, ok := n.(*Instruction)
	if !ok || instr.Kind() != KindExtractValue {
		return n
	}
	multi, ok := instr.Operand(0).(*MultiValue)
	if !ok {
		// aggregate came through another ExtractValue or a value node
		if inner, ok := instr.Operand(0).(*Instruction); ok {
			if m, ok := inner.Result().(*MultiValue); ok {
				multi = m
			}
		}
		if multi == nil {
			return n
		}
	}
	index := instr.Operand(1).(*ConstantInt)
	return multi.Values()[index.Value()]
}
