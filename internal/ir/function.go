package ir

import "fmt"

// MachineCode is the function's machine-level mirror, attached by the
// instruction selector. Declared as an interface here so the IR does not
// depend on the MIR package; codegen stores a *mir.Function in it.
type MachineCode interface{}

// Function owns its blocks, parameters, and (after selection) a machine
// function. The dominator tree and the loop/call heuristics are cached with
// dirty flags; any CFG mutation invalidates them.
type Function struct {
	valueBase
	funcType *FunctionType
	unit     *Unit
	linkage  Linkage
	callConv CallingConvention

	args   []*FunctionArgument
	blocks []*Block

	// allocations caches the OpAllocate instructions of the function, in
	// insertion order, so Mem2Reg and ISel need not rescan blocks.
	allocations []*Instruction

	dominators      *DominatorTree
	dominatorsDirty bool
	heuristics      Heuristics
	heuristicsDirty bool
	recursive       bool

	machine MachineCode
}

func newFunction(unit *Unit, name string, funcType *FunctionType, linkage Linkage) *Function {
	f := &Function{
		funcType:        funcType,
		unit:            unit,
		linkage:         linkage,
		dominatorsDirty: true,
		heuristicsDirty: true,
	}
	f.init(name, unit.ctx.PointerType(funcType), KindFunction)
	for i, param := range funcType.Params() {
		arg := &FunctionArgument{slot: i}
		arg.init(fmt.Sprintf("arg%d", i), param, KindFunctionArgument)
		f.args = append(f.args, arg)
	}
	return f
}

func (f *Function) FuncType() *FunctionType     { return f.funcType }
func (f *Function) Unit() *Unit                 { return f.unit }
func (f *Function) Linkage() Linkage            { return f.linkage }
func (f *Function) Args() []*FunctionArgument   { return f.args }
func (f *Function) Arg(i int) *FunctionArgument { return f.args[i] }
func (f *Function) Blocks() []*Block            { return f.blocks }
func (f *Function) Allocations() []*Instruction { return f.allocations }
func (f *Function) HasBody() bool               { return len(f.blocks) > 0 }
func (f *Function) IsRecursive() bool           { return f.recursive }
func (f *Function) Machine() MachineCode        { return f.machine }
func (f *Function) SetMachine(m MachineCode)    { f.machine = m }

func (f *Function) CallConv() CallingConvention      { return f.callConv }
func (f *Function) SetCallConv(cc CallingConvention) { f.callConv = cc }

func (f *Function) Entry() *Block {
	if len(f.blocks) == 0 {
		panic("ir: function has no blocks")
	}
	return f.blocks[0]
}

// AppendBlock creates a block at the end of the function. Block names are
// made unique across the unit so labels never collide in emitted assembly.
func (f *Function) AppendBlock(name string) *Block {
	b := f.newNamedBlock(name)
	f.blocks = append(f.blocks, b)
	return b
}

// InsertBlockAfter creates a block right after pos.
func (f *Function) InsertBlockAfter(pos *Block, name string) *Block {
	b := f.newNamedBlock(name)
	idx := f.blockIndex(pos) + 1
	f.blocks = append(f.blocks, nil)
	copy(f.blocks[idx+1:], f.blocks[idx:])
	f.blocks[idx] = b
	return b
}

// InsertBlockBefore creates a block right before pos.
func (f *Function) InsertBlockBefore(pos *Block, name string) *Block {
	b := f.newNamedBlock(name)
	idx := f.blockIndex(pos)
	f.blocks = append(f.blocks, nil)
	copy(f.blocks[idx+1:], f.blocks[idx:])
	f.blocks[idx] = b
	return b
}

func (f *Function) newNamedBlock(name string) *Block {
	if name == "" {
		name = "bb"
	}
	b := newBlock(f.unit.ctx, f.unit.uniqueBlockName(name))
	b.parent = f
	f.dominatorsDirty = true
	f.heuristicsDirty = true
	return b
}

func (f *Function) blockIndex(b *Block) int {
	for i, candidate := range f.blocks {
		if candidate == b {
			return i
		}
	}
	panic("ir: block not in function")
}

// RemoveBlock deletes the block after scrubbing every reference to it:
// operand uses, predecessor/successor links, and the instructions it owns.
func (f *Function) RemoveBlock(b *Block) {
	for len(b.uses) > 0 {
		b.uses[0].RemoveOperand(b)
	}
	for len(b.instructions) > 0 {
		b.Remove(b.instructions[len(b.instructions)-1])
	}
	for pred := range b.predecessors {
		delete(pred.successors, b)
	}
	for succ := range b.successors {
		delete(succ.predecessors, b)
	}
	idx := f.blockIndex(b)
	f.blocks = append(f.blocks[:idx], f.blocks[idx+1:]...)
	b.parent = nil
	f.dominatorsDirty = true
	f.heuristicsDirty = true
}

// Replace rewrites every use of old to with, across all blocks.
func (f *Function) Replace(old, with Value) {
	for _, b := range f.blocks {
		b.replaceValue(old, with)
	}
}

// RemoveInstruction removes inst from whichever block contains it.
func (f *Function) RemoveInstruction(inst *Instruction) {
	if inst.block != nil {
		inst.block.Remove(inst)
	}
}

func (f *Function) removeAllocation(inst *Instruction) {
	for i, a := range f.allocations {
		if a == inst {
			f.allocations = append(f.allocations[:i], f.allocations[i+1:]...)
			return
		}
	}
}

// Dominators returns the cached dominator tree, recomputing it when a CFG
// mutation has happened since the last query.
func (f *Function) Dominators() *DominatorTree {
	if f.dominatorsDirty || f.dominators == nil {
		f.dominators = buildDominatorTree(f)
		f.dominatorsDirty = false
	}
	return f.dominators
}

// Heuristics returns the cached loop nest and call-site inventory.
func (f *Function) Heuristics() *Heuristics {
	if f.heuristicsDirty {
		f.heuristicsDirty = false
		analyzeLoops(f)
		analyzeCalls(f)
	}
	return &f.heuristics
}

// InstructionIndex returns the function-wide index of inst in layout order.
func (f *Function) InstructionIndex(inst *Instruction) int {
	idx := 0
	for _, b := range f.blocks {
		if !b.Contains(inst) {
			idx += len(b.instructions)
			continue
		}
		return idx + b.InstructionIndex(inst)
	}
	return idx
}

// InstructionCount is the number of instructions across all blocks.
func (f *Function) InstructionCount() int {
	n := 0
	for _, b := range f.blocks {
		n += len(b.instructions)
	}
	return n
}
