package mir

import "sable/internal/ir"

// Block mirrors an IR block at the machine level: an ordered instruction
// list plus predecessor/successor links copied from the IR CFG.
type Block struct {
	name     string
	irBlock  *ir.Block
	parent   *Function
	instrs   []*Instruction
	preds    []*Block
	succs    []*Block
	epilogue int
}

func (b *Block) Name() string                 { return b.name }
func (b *Block) IRBlock() *ir.Block           { return b.irBlock }
func (b *Block) Parent() *Function            { return b.parent }
func (b *Block) Instructions() []*Instruction { return b.instrs }
func (b *Block) Predecessors() []*Block       { return b.preds }
func (b *Block) Successors() []*Block         { return b.succs }

func (b *Block) AddSuccessor(s *Block)   { b.succs = append(b.succs, s) }
func (b *Block) AddPredecessor(s *Block) { b.preds = append(b.preds, s) }

// EpilogueSize is the number of instructions the prologue/epilogue pass
// placed directly before each return; callee-save pops go in front of them.
func (b *Block) EpilogueSize() int     { return b.epilogue }
func (b *Block) SetEpilogueSize(n int) { b.epilogue = n }

func (b *Block) Append(inst *Instruction) {
	inst.block = b
	b.instrs = append(b.instrs, inst)
}

func (b *Block) InsertAt(inst *Instruction, idx int) {
	inst.block = b
	b.instrs = append(b.instrs, nil)
	copy(b.instrs[idx+1:], b.instrs[idx:])
	b.instrs[idx] = inst
}

func (b *Block) Remove(inst *Instruction) {
	for i, candidate := range b.instrs {
		if candidate == inst {
			b.instrs = append(b.instrs[:i], b.instrs[i+1:]...)
			inst.block = nil
			return
		}
	}
}

func (b *Block) IndexOf(inst *Instruction) int {
	for i, candidate := range b.instrs {
		if candidate == inst {
			return i
		}
	}
	return -1
}

func (b *Block) First() *Instruction {
	if len(b.instrs) == 0 {
		return nil
	}
	return b.instrs[0]
}

func (b *Block) Last() *Instruction {
	if len(b.instrs) == 0 {
		return nil
	}
	return b.instrs[len(b.instrs)-1]
}
