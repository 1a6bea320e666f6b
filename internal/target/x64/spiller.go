package x64

import (
	"sable/internal/mir"
)

// Spiller rewrites one virtual register to a stack slot: every use reloads
// into a fresh short-lived register right before the instruction, every
// definition stores right after it. The narrowed ranges make the next
// colouring round strictly easier.
type Spiller struct {
	regInfo *RegisterInfo
}

func NewSpiller(regInfo *RegisterInfo) *Spiller { return &Spiller{regInfo: regInfo} }

func (s *Spiller) Spill(reg uint32, f *mir.Function) {
	info := f.RegInfo().VirtualRegisterInfo(reg)
	slot := f.Frame().AddSlot(8, 8)

	isFloat := info.Class == mir.ClassFPR
	loadOp, storeOp := uint32(Mov64rm), uint32(Mov64mr)
	if isFloat {
		loadOp, storeOp = Movsd_rm, Movsd_mr
	}

	freshReg := func(flags uint32) *mir.Register {
		id := f.RegInfo().NewVirtualRegister(info.Type, info.Class)
		return mir.NewRegister(id, info.Class, flags)
	}

	for _, b := range f.Blocks() {
		for idx := 0; idx < len(b.Instructions()); idx++ {
			inst := b.Instructions()[idx]

			// uses nested in memory operands always reload
			for _, op := range inst.Operands() {
				mem, ok := op.(*mir.Memory)
				if !ok {
					continue
				}
				if base, ok := mem.Base.(*mir.Register); ok && base.ID() == reg {
					fresh := freshReg(base.Flags())
					b.InsertAt(mir.NewInstruction(loadOp, reflag(fresh, mir.FlagForce64Bit), frameMemory(slot, 8)), idx)
					idx++
					mem.Base = fresh
				}
				if index, ok := mem.Index.(*mir.Register); ok && index.ID() == reg {
					fresh := freshReg(index.Flags())
					b.InsertAt(mir.NewInstruction(loadOp, reflag(fresh, mir.FlagForce64Bit), frameMemory(slot, 8)), idx)
					idx++
					mem.Index = fresh
				}
			}

			desc := descriptors[inst.Opcode()]
			for n, op := range inst.Operands() {
				r, ok := op.(*mir.Register)
				if !ok || r.ID() != reg {
					continue
				}
				fresh := freshReg(r.Flags())
				if desc.Restriction(n).Assigned {
					// definition: write the fresh register, then save it
					inst.SetOperand(n, fresh)
					b.InsertAt(mir.NewInstruction(storeOp, frameMemory(slot, 8), reflag(fresh, mir.FlagForce64Bit)), idx+1)
					idx++
					continue
				}
				// read (or read-modify-write): reload first
				b.InsertAt(mir.NewInstruction(loadOp, reflag(fresh, mir.FlagForce64Bit), frameMemory(slot, 8)), idx)
				idx++
				inst.SetOperand(n, fresh)
				if !desc.Restriction(n).Assigned && n == 0 && !desc.MayStore && !desc.IsBranch {
					// two-address destinations are written too; keep the
					// slot current
					b.InsertAt(mir.NewInstruction(storeOp, frameMemory(slot, 8), reflag(fresh, mir.FlagForce64Bit)), idx+1)
					idx++
				}
			}
		}
	}
}
