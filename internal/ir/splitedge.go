package ir

// SplitCriticalEdges breaks every edge u→v where u has several successors,
// v has several predecessors, and v contains a φ. A fresh block holding a
// single jump to v is interposed; u's terminator and v's φs are rewritten
// to name it.
type SplitCriticalEdges struct {
	ctx *Context
}

func NewSplitCriticalEdges(ctx *Context) *SplitCriticalEdges {
	return &SplitCriticalEdges{ctx: ctx}
}

func (SplitCriticalEdges) Name() string { return "splitcrit" }

func (p *SplitCriticalEdges) RunOnFunction(f *Function) bool {
	changed := false
	for i := 0; i < len(f.blocks); i++ {
		b := f.blocks[i]
		if b.NumPredecessors() <= 1 {
			continue
		}
		phis := b.Phis()
		if len(phis) == 0 {
			continue
		}

		preds := make([]*Block, 0, len(b.predecessors))
		for pred := range b.predecessors {
			preds = append(preds, pred)
		}
		for _, pred := range preds {
			if pred.NumSuccessors() <= 1 {
				continue
			}

			redirect := f.InsertBlockAfter(b, b.Name()+".crit")
			builder := NewBuilder(p.ctx)
			builder.SetBlock(redirect)
			builder.CreateJump(b)

			pred.Terminator().ReplaceOperand(b, redirect)

			for _, phi := range phis {
				for idx := 1; idx < phi.NumOperands(); idx += 2 {
					if phi.Operand(idx) == Value(pred) {
						phi.SetOperand(idx, redirect)
					}
				}
			}
			changed = true
		}
	}
	return changed
}
