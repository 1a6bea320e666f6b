package ir

// CFGSimplify removes unreachable blocks, merges single-entry blocks into
// their sole predecessor, and forwards jumps that target blocks containing
// nothing but an unconditional jump.
type CFGSimplify struct{}

func NewCFGSimplify() *CFGSimplify { return &CFGSimplify{} }

func (CFGSimplify) Name() string { return "simplifycfg" }

func (p *CFGSimplify) RunOnFunction(f *Function) bool {
	anyChange := false
	for {
		changed := p.removeUnreachable(f)
		changed = p.forwardJumps(f) || changed
		changed = p.mergeBlocks(f) || changed
		if !changed {
			return anyChange
		}
		anyChange = true
	}
}

func (p *CFGSimplify) removeUnreachable(f *Function) bool {
	if !f.HasBody() {
		return false
	}
	reachable := map[*Block]bool{f.Entry(): true}
	work := []*Block{f.Entry()}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		if term := b.Terminator(); term != nil {
			for _, succ := range term.Successors() {
				if !reachable[succ] {
					reachable[succ] = true
					work = append(work, succ)
				}
			}
		}
	}

	var dead []*Block
	for _, b := range f.blocks {
		if !reachable[b] {
			dead = append(dead, b)
		}
	}
	for _, b := range dead {
		// A dying block's φ references must be scrubbed first.
		for _, other := range f.blocks {
			for _, phi := range other.Phis() {
				removePhiEdgesFor(phi, b)
			}
		}
		f.RemoveBlock(b)
	}
	return len(dead) > 0
}

// mergeBlocks folds a block into its predecessor when the edge between them
// is the only one either side has.
func (p *CFGSimplify) mergeBlocks(f *Function) bool {
	for _, b := range f.blocks {
		if b == f.Entry() || b.NumPredecessors() != 1 {
			continue
		}
		var pred *Block
		for candidate := range b.predecessors {
			pred = candidate
		}
		if pred == b || pred.NumSuccessors() != 1 {
			continue
		}
		term := pred.Terminator()
		if term == nil || term.Opcode() != OpJump || term.NumOperands() != 1 {
			continue
		}
		if len(b.Phis()) > 0 {
			// A single-predecessor φ is trivial; fold it before merging.
			for _, phi := range b.Phis() {
				f.Replace(phi, phi.Operand(0))
				b.Remove(phi)
			}
		}
		pred.Remove(term)
		for len(b.instructions) > 0 {
			inst := b.instructions[0]
			b.Detach(inst)
			pred.Append(inst)
		}
		// Successor φs of the merged block now come in through pred.
		for succ := range pred.successors {
			for _, phi := range succ.Phis() {
				for idx := 1; idx < phi.NumOperands(); idx += 2 {
					if phi.Operand(idx) == Value(b) {
						phi.SetOperand(idx, pred)
					}
				}
			}
		}
		f.RemoveBlock(b)
		return true
	}
	return false
}

// forwardJumps retargets edges that point at a block whose whole body is a
// single unconditional jump.
func (p *CFGSimplify) forwardJumps(f *Function) bool {
	changed := false
	for _, b := range f.blocks {
		if len(b.instructions) != 1 {
			continue
		}
		only := b.instructions[0]
		if only.Opcode() != OpJump || only.NumOperands() != 1 {
			continue
		}
		target := only.Operand(0).(*Block)
		if target == b || len(target.Phis()) > 0 {
			continue
		}
		for _, user := range append([]*Instruction(nil), b.Uses()...) {
			if !user.IsTerminator() || user.Parent() == nil || user.Parent() == b {
				continue
			}
			user.ReplaceOperand(b, target)
			changed = true
		}
	}
	return changed
}

func removePhiEdgesFor(phi *Instruction, from *Block) {
	for idx := phi.NumOperands() - 2; idx >= 0; idx -= 2 {
		if phi.Operand(idx+1) == Value(from) {
			phi.removeOperandPair(idx)
		}
	}
}

// removeOperandPair drops the operands at idx and idx+1, fixing use lists.
func (i *Instruction) removeOperandPair(idx int) {
	for _, operand := range i.operands[idx : idx+2] {
		operand.removeUse(i)
	}
	i.operands = append(i.operands[:idx], i.operands[idx+2:]...)
}
