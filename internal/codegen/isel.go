package codegen

import (
	"fmt"

	"sable/internal/ir"
	"sable/internal/isel"
	"sable/internal/mir"
	"sable/internal/pass"
	"sable/internal/target"
)

// ISelPass lowers each IR function to MIR through a pattern-matched DAG:
// build the per-block node graph in two phases, pick the cheapest tiling
// per node by memoized recursion over the target's patterns, then emit the
// chosen tiles in original program order.
type ISelPass struct {
	instrInfo target.InstructionInfo
	regInfo   target.RegisterInfo
	layout    ir.DataLayout
	ctx       *ir.Context
	optLevel  pass.OptimizationLevel

	inserter isel.Inserter
	output   *mir.Function

	valuesToNodes map[ir.Value]isel.Node
	rootBlocks    map[*isel.Root]*mir.Block
	nodeOperands  map[isel.Node]mir.Operand
	bestMatch     map[isel.Node]*matchResult

	registers   map[ir.Value]*isel.Register
	constInts   map[constIntNodeKey]*isel.ConstantInt
	constFloats map[constFloatNodeKey]*isel.ConstantFloat
	frameIdxs   map[frameIndexNodeKey]*isel.FrameIndex

	roots []*isel.Root
}

type matchResult struct {
	pattern *isel.Pattern
	cost    uint32
	node    isel.Node
}

type constIntNodeKey struct {
	value int64
	typ   ir.Type
}

type constFloatNodeKey struct {
	value float64
	typ   ir.Type
}

type frameIndexNodeKey struct {
	slot int
	typ  ir.Type
}

func NewISelPass(instrInfo target.InstructionInfo, regInfo target.RegisterInfo, layout ir.DataLayout, ctx *ir.Context, level pass.OptimizationLevel) *ISelPass {
	return &ISelPass{
		instrInfo: instrInfo,
		regInfo:   regInfo,
		layout:    layout,
		ctx:       ctx,
		optLevel:  level,
	}
}

func (ISelPass) Name() string { return "isel" }

// Init creates the machine shell of every function up front so call
// lowering can reference callee machine functions.
func (p *ISelPass) Init(unit *ir.Unit) {
	for _, f := range unit.Functions() {
		if !f.HasBody() {
			continue
		}
		f.SetMachine(mir.NewFunction(f, p.regInfo))
	}
}

func (p *ISelPass) RunOnFunction(f *ir.Function) bool {
	p.inserter.SetRoot(nil)
	p.valuesToNodes = make(map[ir.Value]isel.Node)
	p.rootBlocks = make(map[*isel.Root]*mir.Block)
	p.nodeOperands = make(map[isel.Node]mir.Operand)
	p.bestMatch = make(map[isel.Node]*matchResult)
	p.registers = make(map[ir.Value]*isel.Register)
	p.constInts = make(map[constIntNodeKey]*isel.ConstantInt)
	p.constFloats = make(map[constFloatNodeKey]*isel.ConstantFloat)
	p.frameIdxs = make(map[frameIndexNodeKey]*isel.FrameIndex)
	p.roots = nil

	p.output = f.Machine().(*mir.Function)
	p.createMirBlocks(f)
	p.buildTree(f)

	for _, b := range f.Blocks() {
		root := p.valuesToNodes[b].(*isel.Root)
		p.rootBlocks[root] = p.mirBlockOf(b)
	}

	for _, b := range f.Blocks() {
		root := p.valuesToNodes[b].(*isel.Root)
		for _, ins := range root.Instructions {
			if result := ins.Result(); result != nil {
				p.selectPattern(result)
				if multi, ok := result.(*isel.MultiValue); ok {
					for _, field := range multi.Values() {
						p.selectPattern(field)
					}
				}
			}
			p.selectPattern(ins)
		}
	}

	for _, b := range f.Blocks() {
		root := p.valuesToNodes[b].(*isel.Root)
		mirBlock := p.mirBlockOf(b)
		for _, ins := range root.Instructions {
			if _, ok := p.bestMatch[ins]; !ok {
				continue // absorbed into a neighbouring tile
			}
			p.EmitOrGet(ins, mirBlock, false)
		}
	}

	// Every SSA value the function defines now has a home; record the map
	// for φ-elimination in target lowering.
	for value, node := range p.valuesToNodes {
		if op, ok := p.nodeOperands[node]; ok && op != nil {
			p.output.SetValueOperand(value, op)
		}
	}
	return false
}

func (p *ISelPass) createMirBlocks(f *ir.Function) {
	for _, b := range f.Blocks() {
		p.output.AddBlock(b.Name(), b)
	}
	for _, b := range f.Blocks() {
		mb := p.mirBlockOf(b)
		if term := b.Terminator(); term != nil {
			for _, succ := range term.Successors() {
				mb.AddSuccessor(p.mirBlockOf(succ))
			}
		}
		for pred := range b.Predecessors() {
			mb.AddPredecessor(p.mirBlockOf(pred))
		}
	}
}

func (p *ISelPass) mirBlockOf(b *ir.Block) *mir.Block {
	for _, mb := range p.output.Blocks() {
		if mb.IRBlock() == b {
			return mb
		}
	}
	panic(fmt.Sprintf("isel: no machine block for %s", b.Name()))
}

// buildTree runs the two construction phases: create every node with no
// operands wired, then patch operands through the value map. Wiring in one
// pass would bind φ operands to roots that do not exist yet.
func (p *ISelPass) buildTree(f *ir.Function) {
	for _, b := range f.Blocks() {
		root := isel.NewRoot(b.Name(), b)
		p.valuesToNodes[b] = root
		p.roots = append(p.roots, root)
	}

	for _, b := range f.Blocks() {
		prev := p.inserter.Root()
		p.inserter.SetRoot(p.valuesToNodes[b].(*isel.Root))
		for _, inst := range b.Instructions() {
			p.buildInstruction(inst)
		}
		p.inserter.SetRoot(prev)
	}

	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions() {
			p.patchInstruction(inst)
		}
	}
}

func (p *ISelPass) buildValue(value ir.Value) isel.Node {
	if node, ok := p.valuesToNodes[value]; ok {
		return node
	}

	switch v := value.(type) {
	case *ir.ConstantInt:
		node := p.makeOrGetConstInt(v.Value(), v.Type())
		p.valuesToNodes[value] = node
		return node
	case *ir.ConstantFloat:
		node := p.makeOrGetConstFloat(v.Value(), v.Type())
		p.valuesToNodes[value] = node
		return node
	case *ir.FunctionArgument:
		if v.HasFlag(ir.FlagByVal) {
			node := p.byValArgumentSlot(v)
			p.valuesToNodes[value] = node
			return node
		}
		node := isel.NewFunctionArgument(v.Slot(), v.Type())
		p.valuesToNodes[value] = node
		p.inserter.Insert(node)
		return node
	case *ir.GlobalVariable:
		node := isel.NewGlobalValue(v)
		p.inserter.Insert(node)
		p.valuesToNodes[value] = node
		return node
	case *ir.Function:
		node := isel.NewGlobalValue(v)
		p.inserter.Insert(node)
		p.valuesToNodes[value] = node
		return node
	case *ir.UndefValue:
		node := p.buildValue(p.ctx.ZeroInitializer(v.Type()))
		p.valuesToNodes[value] = node
		return node
	case *ir.NullValue:
		node := p.buildValue(p.ctx.ConstantInt(p.ctx.IntType(p.layout.PointerSize()*8), 0))
		p.valuesToNodes[value] = node
		return node
	case *ir.Instruction:
		return p.buildInstruction(v)
	}
	panic(fmt.Sprintf("isel: unsupported value %s", value.Name()))
}

// byValArgumentSlot gives a by-value argument its caller-side spill area:
// explicit offsets descending from -16 by the sizes of the preceding
// by-value arguments.
func (p *ISelPass) byValArgumentSlot(arg *ir.FunctionArgument) isel.Node {
	sizeType := arg.Type()
	if pt, ok := sizeType.(*ir.PointerType); ok {
		sizeType = pt.Pointee()
	}
	size := p.layout.Size(sizeType)
	offset := int64(-16)
	for i := 0; i < arg.Slot(); i++ {
		other := p.output.IRFunction().Arg(i)
		if !other.HasFlag(ir.FlagByVal) {
			continue
		}
		otherType := other.Type()
		if pt, ok := otherType.(*ir.PointerType); ok {
			otherType = pt.Pointee()
		}
		offset -= int64(p.layout.Size(otherType))
	}
	p.output.Frame().AddSlotAt(size, offset, p.layout.Alignment(sizeType))
	return p.makeOrGetFrameIndex(p.output.Frame().NumSlots()-1, arg.Type())
}

var opcodeToNodeKind = map[ir.Opcode]isel.NodeKind{
	ir.OpAdd:         isel.KindAdd,
	ir.OpSub:         isel.KindSub,
	ir.OpIMul:        isel.KindIMul,
	ir.OpUMul:        isel.KindUMul,
	ir.OpFMul:        isel.KindFMul,
	ir.OpIDiv:        isel.KindIDiv,
	ir.OpUDiv:        isel.KindUDiv,
	ir.OpFDiv:        isel.KindFDiv,
	ir.OpIRem:        isel.KindIRem,
	ir.OpURem:        isel.KindURem,
	ir.OpICmpEq:      isel.KindICmpEq,
	ir.OpICmpNe:      isel.KindICmpNe,
	ir.OpICmpGt:      isel.KindICmpGt,
	ir.OpICmpGe:      isel.KindICmpGe,
	ir.OpICmpLt:      isel.KindICmpLt,
	ir.OpICmpLe:      isel.KindICmpLe,
	ir.OpUCmpGt:      isel.KindUCmpGt,
	ir.OpUCmpGe:      isel.KindUCmpGe,
	ir.OpUCmpLt:      isel.KindUCmpLt,
	ir.OpUCmpLe:      isel.KindUCmpLe,
	ir.OpFCmpEq:      isel.KindFCmpEq,
	ir.OpFCmpNe:      isel.KindFCmpNe,
	ir.OpFCmpGt:      isel.KindFCmpGt,
	ir.OpFCmpGe:      isel.KindFCmpGe,
	ir.OpFCmpLt:      isel.KindFCmpLt,
	ir.OpFCmpLe:      isel.KindFCmpLe,
	ir.OpShiftLeft:   isel.KindShiftLeft,
	ir.OpLShiftRight: isel.KindLShiftRight,
	ir.OpAShiftRight: isel.KindAShiftRight,
	ir.OpAnd:         isel.KindAnd,
	ir.OpOr:          isel.KindOr,
	ir.OpXor:         isel.KindXor,
	ir.OpZext:        isel.KindZext,
	ir.OpSext:        isel.KindSext,
	ir.OpTrunc:       isel.KindTrunc,
	ir.OpFptrunc:     isel.KindFptrunc,
	ir.OpFpext:       isel.KindFpext,
	ir.OpFptosi:      isel.KindFptosi,
	ir.OpFptoui:      isel.KindFptoui,
	ir.OpSitofp:      isel.KindSitofp,
	ir.OpUitofp:      isel.KindUitofp,
	ir.OpBitcast:     isel.KindGenericCast,
	ir.OpPtrtoint:    isel.KindGenericCast,
	ir.OpInttoptr:    isel.KindGenericCast,
}

func (p *ISelPass) buildInstruction(inst *ir.Instruction) isel.Node {
	if node, ok := p.valuesToNodes[inst]; ok {
		return node
	}

	prev := p.inserter.Root()
	p.inserter.SetRoot(p.valuesToNodes[inst.Parent()].(*isel.Root))
	defer p.inserter.SetRoot(prev)

	record := func(node isel.Node) isel.Node {
		p.valuesToNodes[inst] = node
		return node
	}

	if kind, ok := opcodeToNodeKind[inst.Opcode()]; ok {
		result := p.makeOrGetRegister(inst, inst.Type())
		node := isel.NewInstruction(kind, result)
		p.inserter.Insert(node)
		return record(node)
	}

	switch inst.Opcode() {
	case ir.OpAllocate:
		pointee := inst.Type().(*ir.PointerType).Pointee()
		p.output.Frame().AddSlot(p.layout.Size(pointee), p.layout.Alignment(pointee))
		return record(p.makeOrGetFrameIndex(p.output.Frame().NumSlots()-1, inst.Type()))
	case ir.OpGetElementPtr:
		result := p.makeOrGetRegister(inst, inst.Type())
		node := isel.NewInstruction(isel.KindGEP, result)
		p.inserter.Insert(node)
		return record(node)
	case ir.OpExtractValue:
		node := isel.NewInstruction(isel.KindExtractValue, nil)
		p.inserter.Insert(node)
		return record(node)
	case ir.OpRet:
		node := isel.NewInstruction(isel.KindRet, nil)
		p.inserter.Insert(node)
		return record(node)
	case ir.OpJump:
		node := isel.NewInstruction(isel.KindJump, nil)
		p.inserter.Insert(node)
		return record(node)
	case ir.OpSwitch:
		node := isel.NewInstruction(isel.KindSwitch, nil)
		p.inserter.Insert(node)
		return record(node)
	case ir.OpLoad:
		result := p.structOrScalarResult(inst)
		node := isel.NewInstruction(isel.KindLoad, result)
		p.inserter.Insert(node)
		return record(node)
	case ir.OpStore:
		node := isel.NewInstruction(isel.KindStore, nil)
		p.inserter.Insert(node)
		return record(node)
	case ir.OpCall:
		var result isel.ValueNode
		if ir.IsStruct(inst.Type()) {
			result = p.structOrScalarResult(inst)
		} else if !ir.IsVoid(inst.Type()) {
			result = p.makeOrGetRegister(inst, inst.Type())
		}
		cc := inst.CallConv()
		node := isel.NewCall(result, cc)
		p.inserter.Insert(node)
		return record(node)
	case ir.OpPhi:
		result := p.makeOrGetRegister(inst, inst.Type())
		node := isel.NewInstruction(isel.KindPhi, result)
		p.inserter.Insert(node)
		return record(node)
	}
	panic(fmt.Sprintf("isel: unsupported instruction %s", inst.Opcode()))
}

// structOrScalarResult builds a MultiValue of field registers for
// struct-typed results, a plain register otherwise.
func (p *ISelPass) structOrScalarResult(inst *ir.Instruction) isel.ValueNode {
	st, ok := inst.Type().(*ir.StructType)
	if !ok {
		return p.makeOrGetRegister(inst, inst.Type())
	}
	multi := isel.NewMultiValue(st)
	worklist := []*ir.StructType{st}
	for len(worklist) > 0 {
		cur := worklist[0]
		worklist = worklist[1:]
		for i, field := range cur.Fields() {
			reg := isel.NewRegister(fmt.Sprintf("%s_%d", inst.Name(), i), field)
			multi.AddValue(reg)
			p.inserter.Insert(reg)
			if inner, ok := field.(*ir.StructType); ok {
				worklist = append(worklist, inner)
			}
		}
	}
	p.inserter.Insert(multi)
	return multi
}

func (p *ISelPass) patchInstruction(inst *ir.Instruction) {
	node := p.valuesToNodes[inst].(*isel.Instruction)

	prev := p.inserter.Root()
	p.inserter.SetRoot(p.valuesToNodes[inst.Parent()].(*isel.Root))
	defer p.inserter.SetRoot(prev)

	switch inst.Opcode() {
	case ir.OpAllocate:
		return
	case ir.OpJump:
		node.AddOperand(p.buildValue(inst.Operand(0)))
		if inst.NumOperands() > 1 {
			node.AddOperand(p.buildValue(inst.Operand(1)))
			node.AddOperand(p.buildValue(inst.Operand(2)))
		}
	case ir.OpCall:
		node.AddOperand(p.buildValue(inst.Callee()))
		for _, arg := range inst.CallArgs() {
			node.AddOperand(p.buildValue(arg))
		}
		node.SetResultUsed(len(inst.Uses()) > 0)
	case ir.OpSwitch:
		node.AddOperand(p.buildValue(inst.Operand(0)))
		node.AddOperand(p.buildValue(inst.Operand(1)))
		for idx := 2; idx+1 < inst.NumOperands(); idx += 2 {
			node.AddOperand(p.buildValue(inst.Operand(idx)))
			node.AddOperand(p.buildValue(inst.Operand(idx + 1)))
		}
	default:
		for _, operand := range inst.Operands() {
			node.AddOperand(p.buildValue(operand))
		}
	}
}

// selectPattern picks the cheapest pattern for node, memoized. A sentinel
// entry breaks recursion through cyclic φ edges; operands a winning tile
// absorbs are evicted from the cache so they are only ever emitted inside
// the tile.
func (p *ISelPass) selectPattern(node isel.Node) {
	if _, done := p.bestMatch[node]; done {
		return
	}
	p.bestMatch[node] = &matchResult{node: node}

	patterns := p.instrInfo.Patterns(node.Kind())
	if len(patterns) == 0 {
		delete(p.bestMatch, node)
		return
	}

	var results []matchResult
	for i := range patterns {
		pattern := &patterns[i]
		if p.optLevel < pattern.MinOptLevel {
			continue
		}
		if pattern.Match != nil && !pattern.Match(node, p.layout) {
			continue
		}
		cost := pattern.Cost
		if instr, ok := node.(*isel.Instruction); ok {
			for idx, operand := range instr.Operands() {
				if pattern.Covers(idx) && operand.Root() == instr.Root() {
					continue
				}
				p.selectPattern(operand)
				if match, ok := p.bestMatch[operand]; ok {
					cost += match.cost
				}
			}
		}
		results = append(results, matchResult{pattern: pattern, cost: cost, node: node})
	}

	if len(results) == 0 {
		panic(fmt.Sprintf("isel: no patterns matched node kind %d", node.Kind()))
	}

	best := results[0]
	for _, candidate := range results[1:] {
		if candidate.cost < best.cost {
			best = candidate
		}
	}

	// Absorbed operands (covered and in this tile's root) are evicted so
	// they are only ever emitted inside the tile.
	if instr, ok := best.node.(*isel.Instruction); ok {
		for _, covered := range best.pattern.Covered {
			if covered < instr.NumOperands() && instr.Operand(covered).Root() == instr.Root() {
				delete(p.bestMatch, instr.Operand(covered))
			}
		}
	}

	p.bestMatch[node] = &best
}

// EmitOrGet materializes node into block through its winning pattern,
// idempotently: the first call runs the pattern's emit, later calls return
// the cached operand.
func (p *ISelPass) EmitOrGet(node isel.Node, block *mir.Block, autoextract bool) mir.Operand {
	if autoextract {
		node = isel.ExtractOperand(node)
	}
	if op, ok := p.nodeOperands[node]; ok {
		return op
	}
	match, ok := p.bestMatch[node]
	if !ok || match.pattern == nil {
		panic(fmt.Sprintf("isel: no pattern selected for node kind %d", node.Kind()))
	}
	op := match.pattern.Emit(p, block, node)
	p.nodeOperands[node] = op
	return op
}

// Emitter surface for pattern callbacks.

func (p *ISelPass) Output() *mir.Function { return p.output }
func (p *ISelPass) Context() *ir.Context  { return p.ctx }
func (p *ISelPass) Layout() ir.DataLayout { return p.layout }

func (p *ISelPass) MIRBlock(r *isel.Root) *mir.Block { return p.rootBlocks[r] }

func (p *ISelPass) makeOrGetRegister(reference ir.Value, typ ir.Type) *isel.Register {
	if reg, ok := p.registers[reference]; ok {
		return reg
	}
	reg := isel.NewRegister(reference.Name(), typ)
	p.registers[reference] = reg
	p.inserter.Insert(reg)
	return reg
}

func (p *ISelPass) makeOrGetConstInt(value int64, typ ir.Type) *isel.ConstantInt {
	key := constIntNodeKey{value: value, typ: typ}
	if node, ok := p.constInts[key]; ok {
		return node
	}
	node := isel.NewConstantInt(value, typ)
	p.constInts[key] = node
	p.inserter.Insert(node)
	return node
}

func (p *ISelPass) makeOrGetConstFloat(value float64, typ ir.Type) *isel.ConstantFloat {
	key := constFloatNodeKey{value: value, typ: typ}
	if node, ok := p.constFloats[key]; ok {
		return node
	}
	node := isel.NewConstantFloat(value, typ)
	p.constFloats[key] = node
	p.inserter.Insert(node)
	return node
}

func (p *ISelPass) makeOrGetFrameIndex(slot int, typ ir.Type) *isel.FrameIndex {
	key := frameIndexNodeKey{slot: slot, typ: typ}
	if node, ok := p.frameIdxs[key]; ok {
		return node
	}
	node := isel.NewFrameIndex(slot, typ)
	p.frameIdxs[key] = node
	p.inserter.Insert(node)
	return node
}
