package ir

import "sort"

// Loop is a natural loop discovered from a back-edge u→h where h dominates
// u. Depth is 1 for a top-level loop and grows inward.
type Loop struct {
	Header *Block
	Blocks []*Block
	Parent *Loop
	Depth  int
}

func (l *Loop) Contains(b *Block) bool {
	for _, candidate := range l.Blocks {
		if candidate == b {
			return true
		}
	}
	return false
}

// CallSite is one call instruction with its location and callee.
type CallSite struct {
	Call     *Instruction
	Location *Block
	Callee   Value
}

// Heuristics caches the loop nest and call-site inventory that feed the
// inliner's cost model.
type Heuristics struct {
	loops     []*Loop
	callSites []CallSite
}

func (h *Heuristics) Loops() []*Loop        { return h.loops }
func (h *Heuristics) CallSites() []CallSite { return h.callSites }

// InnermostLoop returns the deepest loop containing b, or nil.
func (h *Heuristics) InnermostLoop(b *Block) *Loop {
	sort.SliceStable(h.loops, func(i, j int) bool { return h.loops[i].Depth > h.loops[j].Depth })
	for _, loop := range h.loops {
		if loop.Contains(b) {
			return loop
		}
	}
	return nil
}

// analyzeLoops finds every natural loop: for each back-edge u→h the body is
// the set of blocks reaching u without leaving the region dominated by h.
// Loops nest by header dominance.
func analyzeLoops(f *Function) {
	f.heuristics.loops = nil
	tree := f.Dominators()

	for _, b := range f.blocks {
		term := b.Terminator()
		if term == nil {
			continue
		}
		for _, succ := range term.Successors() {
			if !tree.Dominates(succ, b) {
				continue
			}
			loop := &Loop{Header: succ}
			loop.Blocks = loopBody(tree, succ, b)
			f.heuristics.loops = append(f.heuristics.loops, loop)
		}
	}

	// Nest by header dominance: a loop's parent is the smallest enclosing
	// loop whose body contains this header.
	loops := f.heuristics.loops
	sort.SliceStable(loops, func(i, j int) bool { return len(loops[i].Blocks) > len(loops[j].Blocks) })
	for i, loop := range loops {
		for j := i - 1; j >= 0; j-- {
			if loops[j] != loop && loops[j].Contains(loop.Header) {
				loop.Parent = loops[j]
				break
			}
		}
	}
	for _, loop := range loops {
		depth := 1
		for parent := loop.Parent; parent != nil; parent = parent.Parent {
			depth++
		}
		loop.Depth = depth
	}
}

// loopBody collects the blocks that can reach latch backwards without
// passing through the header, all within the region dominated by header.
func loopBody(tree *DominatorTree, header, latch *Block) []*Block {
	body := []*Block{header}
	seen := map[*Block]bool{header: true}
	work := []*Block{latch}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[b] || !tree.Dominates(header, b) {
			continue
		}
		seen[b] = true
		body = append(body, b)
		for pred := range b.predecessors {
			work = append(work, pred)
		}
	}
	return body
}

// analyzeCalls inventories every call site and flags direct recursion.
func analyzeCalls(f *Function) {
	f.heuristics.callSites = nil
	f.recursive = false

	for _, b := range f.blocks {
		for _, inst := range b.instructions {
			if inst.Opcode() != OpCall {
				continue
			}
			callee := inst.Callee()
			if callee == Value(f) {
				f.recursive = true
			}
			f.heuristics.callSites = append(f.heuristics.callSites, CallSite{
				Call:     inst,
				Location: b,
				Callee:   callee,
			})
		}
	}
}
