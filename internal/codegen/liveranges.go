package codegen

import (
	"sable/internal/mir"
	"sable/internal/target"
)

// rangeBlock is the allocator's parallel view of a machine block: per
// register id, the live ranges discovered inside it.
type rangeBlock struct {
	mirBlock *mir.Block
	succs    []*rangeBlock
	ranges   map[uint32][]*mir.LiveRange
	vector   []*mir.LiveRange
}

func newRangeBlock(b *mir.Block) *rangeBlock {
	return &rangeBlock{mirBlock: b, ranges: make(map[uint32][]*mir.LiveRange)}
}

// computeLiveRanges walks every block discovering ranges, then extends
// them across the CFG: hole filling synthesises full-block ranges on
// intermediate blocks of any path between two blocks where a register
// lives, and propagation stretches ranges over every live successor edge.
func computeLiveRanges(f *mir.Function, instrInfo target.InstructionInfo, regInfo target.RegisterInfo) []*rangeBlock {
	byBlock := make(map[*mir.Block]*rangeBlock)
	for _, b := range f.Blocks() {
		byBlock[b] = newRangeBlock(b)
	}
	for _, b := range f.Blocks() {
		for _, succ := range b.Successors() {
			byBlock[b].succs = append(byBlock[b].succs, byBlock[succ])
		}
	}

	var result []*rangeBlock
	for _, b := range f.Blocks() {
		result = append(result, byBlock[b])
	}

	for _, rb := range result {
		fillRanges(rb, instrInfo)
	}

	entry := byBlock[f.Entry()]
	for _, livein := range f.RegInfo().LiveIns() {
		rangeForRegister(livein, 0, entry, false)
	}

	visited := make(map[*rangeBlock]bool)
	visitHoles(entry, visited)
	visited = make(map[*rangeBlock]bool)
	propagate(entry, visited)

	for _, rb := range result {
		for id, ranges := range rb.ranges {
			for _, lr := range ranges {
				f.RegInfo().AddLiveRange(id, *lr)
			}
		}
	}
	return result
}

// rangeForRegister starts a new range at pos when the register is freshly
// defined (or has no range yet in this block); otherwise it extends the
// current range's end.
func rangeForRegister(regID uint32, pos int, block *rangeBlock, assigned bool) {
	instrs := block.mirBlock.Instructions()
	if assigned || len(block.ranges[regID]) == 0 {
		lr := &mir.LiveRange{
			ID:            regID,
			First:         instrs[pos],
			AssignedFirst: assigned,
		}
		block.ranges[regID] = append(block.ranges[regID], lr)
		block.vector = append(block.vector, lr)
	}
	ranges := block.ranges[regID]
	ranges[len(ranges)-1].Last = instrs[pos]
}

// fillRanges scans one block in instruction order. Operands in assigned
// (pure-definition) positions are processed after every other operand at
// the same instruction, so a copy like
//
//	mov %a, [rbp-32]
//	lea %a, [%a + %b*8]
//
// does not split %a's range at the lea.
func fillRanges(block *rangeBlock, instrInfo target.InstructionInfo) {
	instrs := block.mirBlock.Instructions()
	if len(instrs) == 0 {
		return
	}
	block.ranges = make(map[uint32][]*mir.LiveRange)
	block.vector = nil

	for i, inst := range instrs {
		if call := inst.Call(); call != nil {
			for _, ret := range call.ReturnRegisters {
				rangeForRegister(ret, i, block, true)
			}
		}

		desc := instrInfo.Descriptor(inst.Opcode())

		var assigned []uint32
		for _, use := range inst.Registers() {
			if !use.InMemory && desc.Restriction(use.OperandIndex).Assigned {
				assigned = append(assigned, use.Reg.ID())
				continue
			}
			rangeForRegister(use.Reg.ID(), i, block, false)
		}
		for _, clobber := range desc.Clobbers {
			rangeForRegister(clobber, i, block, false)
		}
		for _, reg := range assigned {
			rangeForRegister(reg, i, block, true)
		}
	}
}

// visitHoles runs hole filling from every block reachable from the entry.
func visitHoles(root *rangeBlock, visited map[*rangeBlock]bool) {
	if visited[root] {
		return
	}
	visited[root] = true
	var path []*rangeBlock
	inner := make(map[*rangeBlock]bool)
	fillHoles(root, root, path, inner)
	for _, succ := range root.succs {
		visitHoles(succ, visited)
	}
}

// fillHoles walks paths out of from depth-first; when a register lives in
// both endpoints of the path, any intermediate block with no range for it
// receives a synthetic full-block range. Each block's successors are
// expanded only once per walk, so a path that reaches an already-expanded
// block ends there; not every simple path is visited.
func fillHoles(from, current *rangeBlock, path []*rangeBlock, visited map[*rangeBlock]bool) {
	path = append(path, current)

	if len(path) > 2 {
		for _, lr := range from.vector {
			if lr.AssignedFirst {
				continue
			}
			if _, liveAtEnd := current.ranges[lr.ID]; !liveAtEnd {
				continue
			}
			for _, mid := range path[1 : len(path)-1] {
				if _, has := mid.ranges[lr.ID]; has {
					continue
				}
				instrs := mid.mirBlock.Instructions()
				if len(instrs) == 0 {
					continue
				}
				copyRange := &mir.LiveRange{
					ID:            lr.ID,
					First:         instrs[0],
					Last:          instrs[len(instrs)-1],
					AssignedFirst: lr.AssignedFirst,
				}
				mid.ranges[lr.ID] = append(mid.ranges[lr.ID], copyRange)
				mid.vector = append(mid.vector, copyRange)
			}
		}
	}

	if visited[current] {
		return
	}
	visited[current] = true
	for _, succ := range current.succs {
		fillHoles(from, succ, path, visited)
	}
}

// propagate stretches a range across each successor edge where the
// register is live on both sides: to the end of the predecessor and the
// beginning of the successor.
func propagate(root *rangeBlock, visited map[*rangeBlock]bool) {
	if visited[root] {
		return
	}
	visited[root] = true

	for _, lr := range root.vector {
		for _, succ := range root.succs {
			succRanges, live := succ.ranges[lr.ID]
			if !live || len(succRanges) == 0 {
				continue
			}
			instrs := root.mirBlock.Instructions()
			if len(instrs) > 0 {
				lr.Last = instrs[len(instrs)-1]
			}
			succInstrs := succ.mirBlock.Instructions()
			if len(succInstrs) > 0 {
				succRanges[len(succRanges)-1].First = succInstrs[0]
			}
		}
	}

	for _, succ := range root.succs {
		propagate(succ, visited)
	}
}

// overlaps collects the register ids whose ranges intersect any range of
// id within the block, on function-wide instruction indices.
func overlaps(id uint32, block *rangeBlock) map[uint32]bool {
	f := block.mirBlock.Parent()
	result := make(map[uint32]bool)
	for _, mine := range block.ranges[id] {
		myFirst := f.InstructionIndex(mine.First)
		myLast := f.InstructionIndex(mine.Last)
		for other, ranges := range block.ranges {
			if other == id {
				continue
			}
			for _, lr := range ranges {
				first := f.InstructionIndex(lr.First)
				last := f.InstructionIndex(lr.Last)
				if myFirst <= last && first <= myLast {
					result[other] = true
				}
			}
		}
	}
	return result
}
