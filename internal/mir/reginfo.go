package mir

import "sable/internal/ir"

// RegisterAliases is the slice of the target register table the
// per-function state needs: physical-register identification and
// alias-aware equality across sub-register widths.
type RegisterAliases interface {
	IsPhysical(id uint32) bool
	IsSameRegister(a, b uint32) bool
}

// VRegInfo describes one virtual register.
type VRegInfo struct {
	Class RegClass
	Type  ir.Type
}

// LiveRange is a closed interval of instructions over which a register id
// is live. Ranges from different blocks for the same id are kept separate;
// interference merges them per id.
type LiveRange struct {
	ID    uint32
	First *Instruction
	Last  *Instruction
	// AssignedFirst marks ranges opened by a pure definition.
	AssignedFirst bool
}

// RegInfo is the per-function register state: the virtual register table,
// the colouring produced by the allocator, pending spills, computed live
// ranges, and the physical registers live on entry.
type RegInfo struct {
	next    uint32
	vregs   map[uint32]VRegInfo
	vToP    map[uint32]uint32
	pToV    map[uint32][]uint32
	spills  []uint32
	ranges  map[uint32][]LiveRange
	liveIns []uint32
}

func newRegInfo() *RegInfo {
	return &RegInfo{
		next:  FirstVirtualRegister,
		vregs: make(map[uint32]VRegInfo),
		vToP:  make(map[uint32]uint32),
		pToV:  make(map[uint32][]uint32),
	}
}

// NewVirtualRegister allocates a fresh virtual register id.
func (r *RegInfo) NewVirtualRegister(t ir.Type, class RegClass) uint32 {
	id := r.next
	r.next++
	r.vregs[id] = VRegInfo{Class: class, Type: t}
	return id
}

func (r *RegInfo) VirtualRegisterInfo(id uint32) VRegInfo { return r.vregs[id] }

func (r *RegInfo) SetMapping(vreg, phys uint32) {
	r.vToP[vreg] = phys
	r.pToV[phys] = append(r.pToV[phys], vreg)
}

func (r *RegInfo) Mapping(vreg uint32) (uint32, bool) {
	p, ok := r.vToP[vreg]
	return p, ok
}

func (r *RegInfo) AddSpill(id uint32) { r.spills = append(r.spills, id) }
func (r *RegInfo) Spills() []uint32   { return r.spills }
func (r *RegInfo) ClearSpills()       { r.spills = nil }

// ResetAllocation drops colouring state and live ranges before a re-run of
// the allocator after spilling.
func (r *RegInfo) ResetAllocation() {
	r.vToP = make(map[uint32]uint32)
	r.pToV = make(map[uint32][]uint32)
	r.ranges = nil
}

func (r *RegInfo) AddLiveRange(id uint32, lr LiveRange) {
	if r.ranges == nil {
		r.ranges = make(map[uint32][]LiveRange)
	}
	r.ranges[id] = append(r.ranges[id], lr)
}

func (r *RegInfo) LiveRanges() map[uint32][]LiveRange { return r.ranges }

func (r *RegInfo) AddLiveIn(reg uint32) { r.liveIns = append(r.liveIns, reg) }
func (r *RegInfo) LiveIns() []uint32    { return r.liveIns }

// HasLiveIn is alias-aware.
func (r *RegInfo) HasLiveIn(reg uint32, aliases RegisterAliases) bool {
	for _, li := range r.liveIns {
		if aliases.IsSameRegister(li, reg) {
			return true
		}
	}
	return false
}

// effectiveRegister maps a range's id to the physical register it occupies
// after colouring; virtual ids without a mapping stay virtual.
func (r *RegInfo) effectiveRegister(id uint32, aliases RegisterAliases) uint32 {
	if aliases.IsPhysical(id) {
		return id
	}
	if p, ok := r.vToP[id]; ok {
		return p
	}
	return id
}

// IsRegisterLive reports whether reg (or an alias) is live at the
// function-wide instruction index.
func (r *RegInfo) IsRegisterLive(f *Function, idx int, reg uint32, aliases RegisterAliases) bool {
	for id, ranges := range r.ranges {
		effective := r.effectiveRegister(id, aliases)
		if !aliases.IsPhysical(effective) || !aliases.IsSameRegister(effective, reg) {
			continue
		}
		for _, lr := range ranges {
			first := f.InstructionIndex(lr.First)
			last := f.InstructionIndex(lr.Last)
			if first <= idx && idx <= last {
				return true
			}
		}
	}
	return false
}

// IsRegisterEverLive reports whether reg (or an alias) appears in any live
// range of the function.
func (r *RegInfo) IsRegisterEverLive(reg uint32, aliases RegisterAliases) bool {
	for id := range r.ranges {
		effective := r.effectiveRegister(id, aliases)
		if aliases.IsPhysical(effective) && aliases.IsSameRegister(effective, reg) {
			return true
		}
	}
	return false
}
