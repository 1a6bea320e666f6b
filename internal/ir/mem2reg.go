package ir

// Mem2Reg promotes stack slots that are only loaded and stored (never
// address-taken, never aggregate-typed) to SSA values, placing φs on the
// iterated dominance frontier of the stores and renaming along the
// dominator tree. Non-promotable allocations are left alone; the pass never
// fails.
type Mem2Reg struct {
	ctx *Context
}

func NewMem2Reg(ctx *Context) *Mem2Reg { return &Mem2Reg{ctx: ctx} }

func (Mem2Reg) Name() string { return "mem2reg" }

func (m *Mem2Reg) RunOnFunction(f *Function) bool {
	var promoted []*Instruction
	promotedSet := make(map[*Instruction]bool)

	for _, alloca := range append([]*Instruction(nil), f.Allocations()...) {
		if !promotable(alloca) {
			continue
		}
		promoted = append(promoted, alloca)
		promotedSet[alloca] = true

		// Iterated dominance frontier of the store blocks, by BFS to
		// fixpoint.
		tree := f.Dominators()
		idf := make(map[*Block]bool)
		var queue []*Block
		for b := range definingBlocks(alloca) {
			queue = append(queue, b)
		}
		for len(queue) > 0 {
			b := queue[0]
			queue = queue[1:]
			for _, frontier := range tree.Frontier(b) {
				if idf[frontier] {
					continue
				}
				idf[frontier] = true
				queue = append(queue, frontier)
			}
		}

		pointee := alloca.Type().(*PointerType).Pointee()
		for need := range idf {
			phi := NewInstruction(OpPhi, pointee, alloca.Name())
			phi.setPhiAlloca(alloca)
			need.setPhiForValue(alloca, phi)

			if last := lastPhi(need); last != nil {
				need.InsertAfter(phi, last)
			} else {
				need.InsertAtFront(phi)
			}
		}
	}

	if len(promoted) == 0 {
		return false
	}

	stacks := make(map[*Instruction][]Value)
	m.rename(f.Dominators(), f.Entry(), stacks, promoted, promotedSet)

	for _, alloca := range promoted {
		alloca.Parent().Remove(alloca)
	}
	for _, b := range f.blocks {
		b.clearPhiForValues()
	}
	return true
}

// rename walks the dominator tree with a per-allocation value stack: stores
// push and vanish, loads are replaced by the stack top, Mem2Reg φs push
// themselves, and successors' φs receive the current top for this block's
// incoming edge.
func (m *Mem2Reg) rename(tree *DominatorTree, current *Block, stacks map[*Instruction][]Value, promoted []*Instruction, promotedSet map[*Instruction]bool) {
	depth := make(map[*Instruction]int, len(promoted))
	for _, alloca := range promoted {
		depth[alloca] = len(stacks[alloca])
	}

	var toRemove []*Instruction
	for _, inst := range append([]*Instruction(nil), current.instructions...) {
		switch inst.Opcode() {
		case OpStore:
			alloca, ok := inst.Operand(0).(*Instruction)
			if !ok || !promotedSet[alloca] {
				continue
			}
			stacks[alloca] = append(stacks[alloca], inst.Operand(1))
			toRemove = append(toRemove, inst)
		case OpLoad:
			alloca, ok := inst.Operand(0).(*Instruction)
			if !ok || !promotedSet[alloca] {
				continue
			}
			var top Value
			if stack := stacks[alloca]; len(stack) > 0 {
				top = stack[len(stack)-1]
			} else {
				top = m.ctx.Undef(inst.Type())
			}
			current.parent.Replace(inst, top)
			toRemove = append(toRemove, inst)
		case OpPhi:
			if alloca := inst.PhiAlloca(); alloca != nil {
				stacks[alloca] = append(stacks[alloca], inst)
			}
		}
	}
	for _, inst := range toRemove {
		current.Remove(inst)
	}

	for _, child := range tree.Children(current) {
		m.rename(tree, child, stacks, promoted, promotedSet)
	}

	for succ := range current.successors {
		for _, alloca := range promoted {
			phi, ok := succ.phiFor(alloca)
			if !ok {
				continue
			}
			var top Value
			if stack := stacks[alloca]; len(stack) > 0 {
				top = stack[len(stack)-1]
			} else {
				top = m.ctx.Undef(alloca.Type().(*PointerType).Pointee())
			}
			phi.AddPhiIncoming(top, current)
		}
	}

	for _, alloca := range promoted {
		stacks[alloca] = stacks[alloca][:depth[alloca]]
	}
}

// promotable requires a scalar pointee, every use a direct load or store of
// this pointer, and at least one of each.
func promotable(alloca *Instruction) bool {
	pointee := alloca.Type().(*PointerType).Pointee()
	if !IsScalar(pointee) {
		return false
	}

	hasLoad, hasStore := false, false
	for _, use := range alloca.Uses() {
		switch use.Opcode() {
		case OpLoad:
			hasLoad = true
		case OpStore:
			if use.Operand(0) != Value(alloca) {
				return false // stored as a value, address escapes
			}
			hasStore = true
		default:
			return false
		}
	}
	return hasLoad && hasStore
}

func definingBlocks(alloca *Instruction) map[*Block]bool {
	blocks := make(map[*Block]bool)
	for _, use := range alloca.Uses() {
		if use.Opcode() == OpStore {
			blocks[use.Parent()] = true
		}
	}
	return blocks
}

func lastPhi(b *Block) *Instruction {
	for i := len(b.instructions) - 1; i >= 0; i-- {
		if b.instructions[i].Opcode() == OpPhi {
			return b.instructions[i]
		}
	}
	return nil
}
