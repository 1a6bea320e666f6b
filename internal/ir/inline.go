package ir

// Inliner replaces profitable call sites with a clone of the callee's body.
// Profitability weighs eliminated call overhead, loop hotness, and constant
// or global arguments against the callee's size, within a unit-wide budget
// of added instructions.
type Inliner struct {
	totalAdded int
}

func NewInliner() *Inliner { return &Inliner{} }

func (Inliner) Name() string { return "inline" }

const (
	callOverheadBenefit = 8.0
	loopDepthWeight     = 6.0
	constArgBonus       = 3.0
	globalArgBonus      = 1.5
	tinyFuncThreshold   = 6
	tinyFuncBonus       = 10.0
)

func (p *Inliner) RunOnFunction(f *Function) bool {
	anyChange := false
	for {
		changed := false
		for _, site := range f.Heuristics().CallSites() {
			callee, ok := site.Callee.(*Function)
			if !ok {
				continue
			}
			if !callee.HasBody() || callee.IsRecursive() || callee == f {
				continue
			}

			calleeSize := callee.InstructionCount()
			benefit := callOverheadBenefit
			if loop := f.Heuristics().InnermostLoop(site.Location); loop != nil {
				benefit += float64(loop.Depth) * loopDepthWeight
			}
			for _, arg := range site.Call.CallArgs() {
				if IsConstant(arg) {
					benefit += constArgBonus
				} else if arg.ValueKind() == KindGlobalVariable {
					benefit += globalArgBonus
				}
			}
			if calleeSize <= tinyFuncThreshold {
				benefit += tinyFuncBonus
			}
			score := benefit - float64(calleeSize)

			budget := f.Unit().InstructionCount() / 5
			if budget < 100 {
				budget = 100
			}
			if score < 0 || p.totalAdded+calleeSize > budget {
				continue
			}

			callerSize := f.InstructionCount()
			p.inlineSite(f, site, callee)
			p.totalAdded += f.InstructionCount() - callerSize
			changed = true
			anyChange = true
			break // heuristics are stale; rescan
		}
		if !changed {
			return anyChange
		}
	}
}

func (p *Inliner) inlineSite(f *Function, site CallSite, callee *Function) {
	ctx := f.Unit().Context()
	builder := NewBuilder(ctx)

	// φs in the original successors still name the pre-split block; collect
	// them before the CFG changes.
	var phis []*Instruction
	for succ := range site.Location.Successors() {
		phis = append(phis, succ.Phis()...)
	}

	builder.SetBlock(site.Location)
	merge := site.Location.Split(site.Call)

	retType := callee.FuncType().Return()
	var retSlot *Instruction
	builder.SetBlock(f.Entry())
	builder.SetInsertPoint(f.Entry().First())
	builder.SetInsertBefore(true)
	if !IsVoid(retType) {
		retSlot = builder.CreateAllocate(retType, site.Call.Name()+".ret")
	}
	builder.SetInsertBefore(false)
	builder.SetInsertPoint(nil)

	// Clone in two phases: create the blocks and bare instruction clones
	// first, then rewrite operands through the value map; otherwise CFG
	// back-edges inside the callee would still bind to the callee's blocks.
	vmap := make(map[Value]Value)
	for i, arg := range callee.Args() {
		vmap[arg] = site.Call.CallArgs()[i]
	}

	var cloned []*Block
	clonesPerBlock := make(map[*Block][]*Instruction)
	insertAfter := site.Location
	for _, b := range callee.Blocks() {
		nb := f.InsertBlockAfter(insertAfter, callee.Name()+".inl")
		insertAfter = nb
		cloned = append(cloned, nb)
		vmap[b] = nb
		for _, inst := range b.Instructions() {
			clone := inst.Clone()
			vmap[inst] = clone
			clonesPerBlock[nb] = append(clonesPerBlock[nb], clone)
		}
	}

	for _, nb := range cloned {
		for _, clone := range clonesPerBlock[nb] {
			for idx, operand := range clone.Operands() {
				if with, ok := vmap[operand]; ok {
					clone.SetOperand(idx, with)
				}
			}
		}
	}

	// Attach the clones; each ret becomes store-to-slot plus jump to merge.
	for _, nb := range cloned {
		for _, clone := range clonesPerBlock[nb] {
			nb.Append(clone)
			if clone.Opcode() != OpRet {
				continue
			}
			builder.SetBlock(nb)
			builder.SetInsertPoint(clone)
			builder.SetInsertBefore(true)
			if clone.NumOperands() > 0 && retSlot != nil {
				builder.CreateStore(retSlot, clone.Operand(0))
			}
			builder.CreateJump(merge)
			builder.SetInsertBefore(false)
			nb.Remove(clone)
		}
	}

	// The call becomes a load of the return slot.
	builder.SetBlock(merge)
	if retSlot != nil && merge.First() != nil {
		builder.SetInsertPoint(merge.First())
		builder.SetInsertBefore(true)
		loaded := builder.CreateLoad(retSlot, site.Call.Name())
		builder.SetInsertBefore(false)
		f.Replace(site.Call, loaded)
	}
	merge.Remove(site.Call)

	builder.SetBlock(site.Location)
	builder.SetInsertPoint(nil)
	builder.CreateJump(cloned[0])

	// φs downstream of the split point now receive their value from merge.
	for _, phi := range phis {
		for idx := 1; idx < phi.NumOperands(); idx += 2 {
			if phi.Operand(idx) == Value(site.Location) {
				phi.SetOperand(idx, merge)
			}
		}
	}
}
