package parser

import (
	"fmt"
	"strings"

	"sable/internal/ir"
)

// builder lowers a parsed File into IR, function by function. Forward
// references are legal for blocks and for φ incoming values; everything
// else must be defined before use.
type builder struct {
	ctx  *ir.Context
	unit *ir.Unit

	values map[string]ir.Value
	blocks map[string]*ir.Block

	pendingPhis []pendingPhi
}

type pendingPhi struct {
	phi   *ir.Instruction
	edges []*PhiEdge
}

func build(file *File, ctx *ir.Context) (*ir.Unit, error) {
	b := &builder{ctx: ctx, unit: ir.NewUnit(file.Name, ctx)}

	// declare globals and function signatures first so bodies can
	// reference them in any order
	for _, decl := range file.Decls {
		switch {
		case decl.Global != nil:
			if err := b.declareGlobal(decl.Global); err != nil {
				return nil, err
			}
		case decl.Func != nil:
			if err := b.declareFunc(decl.Func); err != nil {
				return nil, err
			}
		}
	}

	for _, decl := range file.Decls {
		if decl.Func == nil || len(decl.Func.Body) == 0 {
			continue
		}
		if err := b.buildBody(decl.Func); err != nil {
			return nil, err
		}
	}
	return b.unit, nil
}

func (b *builder) declareGlobal(decl *GlobalDecl) error {
	typ, err := b.typeOf(decl.Type)
	if err != nil {
		return err
	}
	var init ir.Value
	if decl.Init != nil {
		switch {
		case decl.Init.Str != nil:
			b.unit.AddGlobalString(strings.TrimSuffix(*decl.Init.Str, "\x00"), decl.Name)
			return nil
		case decl.Init.Int != nil:
			it, ok := typ.(*ir.IntegerType)
			if !ok {
				return fmt.Errorf("global @%s: integer initializer for %s", decl.Name, typ)
			}
			init = b.ctx.ConstantInt(it, *decl.Init.Int)
		case decl.Init.Float != nil:
			ft, ok := typ.(*ir.FloatType)
			if !ok {
				return fmt.Errorf("global @%s: float initializer for %s", decl.Name, typ)
			}
			init = b.ctx.ConstantFloat(ft, *decl.Init.Float)
		}
	}
	b.unit.AddGlobal(decl.Name, typ, init, ir.LinkageExternal)
	return nil
}

func (b *builder) declareFunc(decl *FuncDecl) error {
	ret, err := b.typeOf(decl.Ret)
	if err != nil {
		return err
	}
	params := make([]ir.Type, len(decl.Params))
	for i, p := range decl.Params {
		if params[i], err = b.typeOf(p.Type); err != nil {
			return err
		}
	}
	funcType := b.ctx.FunctionType(ret, params, decl.VarArg)
	b.unit.AddFunction(decl.Name, funcType, ir.LinkageExternal)
	return nil
}

func (b *builder) buildBody(decl *FuncDecl) error {
	f := b.unit.FindFunction(decl.Name)
	b.values = make(map[string]ir.Value)
	b.blocks = make(map[string]*ir.Block)
	b.pendingPhis = nil

	for i, p := range decl.Params {
		b.values[p.Name] = f.Arg(i)
	}
	for _, block := range decl.Body {
		b.blocks[block.Label] = f.AppendBlock(block.Label)
	}

	irb := ir.NewBuilder(b.ctx)
	for _, block := range decl.Body {
		irb.SetBlock(b.blocks[block.Label])
		for _, instr := range block.Instrs {
			if err := b.buildInstr(irb, f, instr); err != nil {
				return fmt.Errorf("func @%s, block %s: %w", decl.Name, block.Label, err)
			}
		}
	}

	// φ incoming values may be defined after the φ's own block
	for _, pending := range b.pendingPhis {
		for _, edge := range pending.edges {
			value, err := b.operand(edge.Value)
			if err != nil {
				return err
			}
			target, ok := b.blocks[edge.Block]
			if !ok {
				return fmt.Errorf("φ references unknown block %%%s", edge.Block)
			}
			pending.phi.AddPhiIncoming(value, target)
		}
	}
	return nil
}

func (b *builder) buildInstr(irb *ir.Builder, f *ir.Function, instr *Instr) error {
	switch {
	case instr.Store != nil:
		ptr, err := b.operand(instr.Store.Ptr)
		if err != nil {
			return err
		}
		value, err := b.operand(instr.Store.Value)
		if err != nil {
			return err
		}
		irb.CreateStore(ptr, value)
	case instr.Ret != nil:
		if instr.Ret.Value == nil {
			irb.CreateRet(nil)
			return nil
		}
		value, err := b.operand(instr.Ret.Value)
		if err != nil {
			return err
		}
		irb.CreateRet(value)
	case instr.Jump != nil:
		target, ok := b.blocks[instr.Jump.Target]
		if !ok {
			return fmt.Errorf("jump to unknown block %%%s", instr.Jump.Target)
		}
		irb.CreateJump(target)
	case instr.Br != nil:
		cond, ok := b.values[instr.Br.Cond]
		if !ok {
			return fmt.Errorf("br condition %%%s is undefined", instr.Br.Cond)
		}
		then, ok := b.blocks[instr.Br.Then]
		if !ok {
			return fmt.Errorf("br to unknown block %%%s", instr.Br.Then)
		}
		els, ok := b.blocks[instr.Br.Else]
		if !ok {
			return fmt.Errorf("br to unknown block %%%s", instr.Br.Else)
		}
		irb.CreateCondJump(then, els, cond)
	case instr.Switch != nil:
		value, err := b.operand(instr.Switch.Value)
		if err != nil {
			return err
		}
		def, ok := b.blocks[instr.Switch.Default]
		if !ok {
			return fmt.Errorf("switch to unknown block %%%s", instr.Switch.Default)
		}
		cases := make([]ir.SwitchCase, 0, len(instr.Switch.Cases))
		for _, c := range instr.Switch.Cases {
			caseValue, err := b.operand(c.Value)
			if err != nil {
				return err
			}
			constant, ok := caseValue.(*ir.ConstantInt)
			if !ok {
				return fmt.Errorf("switch case value must be an integer constant")
			}
			caseBlock, ok := b.blocks[c.Block]
			if !ok {
				return fmt.Errorf("switch to unknown block %%%s", c.Block)
			}
			cases = append(cases, ir.SwitchCase{Value: constant, Block: caseBlock})
		}
		irb.CreateSwitch(value, def, cases)
	case instr.Assign != nil:
		value, err := b.buildRhs(irb, instr.Assign.Dst, instr.Assign.Rhs)
		if err != nil {
			return err
		}
		b.values[instr.Assign.Dst] = value
	case instr.Call != nil:
		if _, err := b.buildCall(irb, "", instr.Call); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) buildRhs(irb *ir.Builder, dst string, rhs *Rhs) (ir.Value, error) {
	switch {
	case rhs.Alloc != nil:
		typ, err := b.typeOf(rhs.Alloc.Type)
		if err != nil {
			return nil, err
		}
		return irb.CreateAllocate(typ, dst), nil
	case rhs.Load != nil:
		ptr, err := b.operand(rhs.Load.Ptr)
		if err != nil {
			return nil, err
		}
		return irb.CreateLoad(ptr, dst), nil
	case rhs.Phi != nil:
		typ, err := b.typeOf(rhs.Phi.Type)
		if err != nil {
			return nil, err
		}
		phi := irb.CreatePhi(typ, dst)
		b.pendingPhis = append(b.pendingPhis, pendingPhi{phi: phi, edges: rhs.Phi.Incoming})
		return phi, nil
	case rhs.Call != nil:
		return b.buildCall(irb, dst, rhs.Call)
	case rhs.GEP != nil:
		base, err := b.operand(rhs.GEP.Base)
		if err != nil {
			return nil, err
		}
		indices := make([]ir.Value, len(rhs.GEP.Indices))
		for i, idx := range rhs.GEP.Indices {
			if indices[i], err = b.operand(idx); err != nil {
				return nil, err
			}
		}
		return irb.CreateGEP(base, indices, dst), nil
	case rhs.Extract != nil:
		aggregate, err := b.operand(rhs.Extract.Aggregate)
		if err != nil {
			return nil, err
		}
		index, err := b.operand(rhs.Extract.Index)
		if err != nil {
			return nil, err
		}
		constant, ok := index.(*ir.ConstantInt)
		if !ok {
			return nil, fmt.Errorf("extractvalue index must be an integer constant")
		}
		return irb.CreateExtractValue(aggregate, constant, dst), nil
	case rhs.Cast != nil:
		return b.buildCast(irb, dst, rhs.Cast)
	case rhs.Bin != nil:
		return b.buildBin(irb, dst, rhs.Bin)
	}
	return nil, fmt.Errorf("%%%s: empty instruction", dst)
}

func (b *builder) buildCall(irb *ir.Builder, dst string, call *CallRhs) (ir.Value, error) {
	callee, err := b.operand(call.Callee)
	if err != nil {
		return nil, err
	}
	args := make([]ir.Value, len(call.Args))
	for i, arg := range call.Args {
		if args[i], err = b.operand(arg); err != nil {
			return nil, err
		}
	}
	return irb.CreateCall(callee, args, dst), nil
}

var castOps = map[string]ir.Opcode{
	"zext":     ir.OpZext,
	"sext":     ir.OpSext,
	"trunc":    ir.OpTrunc,
	"fptrunc":  ir.OpFptrunc,
	"fpext":    ir.OpFpext,
	"fptosi":   ir.OpFptosi,
	"fptoui":   ir.OpFptoui,
	"sitofp":   ir.OpSitofp,
	"uitofp":   ir.OpUitofp,
	"bitcast":  ir.OpBitcast,
	"ptrtoint": ir.OpPtrtoint,
	"inttoptr": ir.OpInttoptr,
}

func (b *builder) buildCast(irb *ir.Builder, dst string, cast *CastRhs) (ir.Value, error) {
	value, err := b.operand(cast.Value)
	if err != nil {
		return nil, err
	}
	to, err := b.typeOf(cast.To)
	if err != nil {
		return nil, err
	}
	switch castOps[cast.Op] {
	case ir.OpZext:
		return irb.CreateZext(value, to, dst), nil
	case ir.OpSext:
		return irb.CreateSext(value, to, dst), nil
	case ir.OpTrunc:
		return irb.CreateTrunc(value, to, dst), nil
	case ir.OpFptrunc:
		return irb.CreateFptrunc(value, to, dst), nil
	case ir.OpFpext:
		return irb.CreateFpext(value, to, dst), nil
	case ir.OpFptosi:
		return irb.CreateFptosi(value, to, dst), nil
	case ir.OpFptoui:
		return irb.CreateFptoui(value, to, dst), nil
	case ir.OpSitofp:
		return irb.CreateSitofp(value, to, dst), nil
	case ir.OpUitofp:
		return irb.CreateUitofp(value, to, dst), nil
	case ir.OpBitcast:
		return irb.CreateBitcast(value, to, dst), nil
	case ir.OpPtrtoint:
		return irb.CreatePtrtoint(value, to, dst), nil
	case ir.OpInttoptr:
		return irb.CreateInttoptr(value, to, dst), nil
	}
	return nil, fmt.Errorf("unknown cast %s", cast.Op)
}

var binOps = map[string]ir.Opcode{
	"add": ir.OpAdd, "sub": ir.OpSub, "imul": ir.OpIMul, "umul": ir.OpUMul,
	"fmul": ir.OpFMul, "idiv": ir.OpIDiv, "udiv": ir.OpUDiv, "fdiv": ir.OpFDiv,
	"irem": ir.OpIRem, "urem": ir.OpURem,
	"icmp.eq": ir.OpICmpEq, "icmp.ne": ir.OpICmpNe, "icmp.gt": ir.OpICmpGt,
	"icmp.ge": ir.OpICmpGe, "icmp.lt": ir.OpICmpLt, "icmp.le": ir.OpICmpLe,
	"ucmp.gt": ir.OpUCmpGt, "ucmp.ge": ir.OpUCmpGe, "ucmp.lt": ir.OpUCmpLt,
	"ucmp.le": ir.OpUCmpLe,
	"fcmp.eq": ir.OpFCmpEq, "fcmp.ne": ir.OpFCmpNe, "fcmp.gt": ir.OpFCmpGt,
	"fcmp.ge": ir.OpFCmpGe, "fcmp.lt": ir.OpFCmpLt, "fcmp.le": ir.OpFCmpLe,
	"shl": ir.OpShiftLeft, "lshr": ir.OpLShiftRight, "ashr": ir.OpAShiftRight,
	"and": ir.OpAnd, "or": ir.OpOr, "xor": ir.OpXor,
}

func (b *builder) buildBin(irb *ir.Builder, dst string, bin *BinRhs) (ir.Value, error) {
	lhs, err := b.operand(bin.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := b.operand(bin.RHS)
	if err != nil {
		return nil, err
	}
	op := binOps[bin.Op]
	if op.IsCompare() {
		return irb.CreateCmp(op, lhs, rhs, dst), nil
	}
	switch op {
	case ir.OpAdd:
		return irb.CreateAdd(lhs, rhs, dst), nil
	case ir.OpSub:
		return irb.CreateSub(lhs, rhs, dst), nil
	case ir.OpIMul:
		return irb.CreateIMul(lhs, rhs, dst), nil
	case ir.OpUMul:
		return irb.CreateUMul(lhs, rhs, dst), nil
	case ir.OpFMul:
		return irb.CreateFMul(lhs, rhs, dst), nil
	case ir.OpIDiv:
		return irb.CreateIDiv(lhs, rhs, dst), nil
	case ir.OpUDiv:
		return irb.CreateUDiv(lhs, rhs, dst), nil
	case ir.OpFDiv:
		return irb.CreateFDiv(lhs, rhs, dst), nil
	case ir.OpIRem:
		return irb.CreateIRem(lhs, rhs, dst), nil
	case ir.OpURem:
		return irb.CreateURem(lhs, rhs, dst), nil
	case ir.OpShiftLeft:
		return irb.CreateShl(lhs, rhs, dst), nil
	case ir.OpLShiftRight:
		return irb.CreateLShr(lhs, rhs, dst), nil
	case ir.OpAShiftRight:
		return irb.CreateAShr(lhs, rhs, dst), nil
	case ir.OpAnd:
		return irb.CreateAnd(lhs, rhs, dst), nil
	case ir.OpOr:
		return irb.CreateOr(lhs, rhs, dst), nil
	case ir.OpXor:
		return irb.CreateXor(lhs, rhs, dst), nil
	}
	return nil, fmt.Errorf("unknown operator %s", bin.Op)
}

func (b *builder) operand(op *Operand) (ir.Value, error) {
	switch {
	case op.Ref != nil:
		value, ok := b.values[*op.Ref]
		if !ok {
			return nil, fmt.Errorf("%%%s is undefined", *op.Ref)
		}
		return value, nil
	case op.Global != nil:
		if g := b.unit.FindGlobal(*op.Global); g != nil {
			return g, nil
		}
		if f := b.unit.FindFunction(*op.Global); f != nil {
			return f, nil
		}
		return nil, fmt.Errorf("@%s is undefined", *op.Global)
	case op.Null:
		return b.ctx.Null(b.ctx.I8Type()), nil
	case op.Undef != nil:
		typ, err := b.typeOf(op.Undef)
		if err != nil {
			return nil, err
		}
		return b.ctx.Undef(typ), nil
	case op.Lit != nil:
		typ, err := b.typeOf(op.Lit.Type)
		if err != nil {
			return nil, err
		}
		switch t := typ.(type) {
		case *ir.IntegerType:
			if op.Lit.Int == nil {
				return nil, fmt.Errorf("integer literal expected for %s", typ)
			}
			return b.ctx.ConstantInt(t, *op.Lit.Int), nil
		case *ir.FloatType:
			switch {
			case op.Lit.Float != nil:
				return b.ctx.ConstantFloat(t, *op.Lit.Float), nil
			case op.Lit.Int != nil:
				return b.ctx.ConstantFloat(t, float64(*op.Lit.Int)), nil
			}
			return nil, fmt.Errorf("float literal expected for %s", typ)
		}
		return nil, fmt.Errorf("unsupported literal type %s", typ)
	}
	return nil, fmt.Errorf("empty operand")
}

func (b *builder) typeOf(ref *TypeRef) (ir.Type, error) {
	switch {
	case ref == nil:
		return nil, fmt.Errorf("missing type")
	case ref.Void:
		return b.ctx.VoidType(), nil
	case ref.Int != nil:
		bits := map[string]int{"i1": 1, "i8": 8, "i16": 16, "i32": 32, "i64": 64}[*ref.Int]
		return b.ctx.IntType(bits), nil
	case ref.Float != nil:
		bits := map[string]int{"f32": 32, "f64": 64}[*ref.Float]
		return b.ctx.FloatType(bits), nil
	case ref.Pointer != nil:
		pointee, err := b.typeOf(ref.Pointer)
		if err != nil {
			return nil, err
		}
		return b.ctx.PointerType(pointee), nil
	case ref.Array != nil:
		element, err := b.typeOf(ref.Array.Element)
		if err != nil {
			return nil, err
		}
		return b.ctx.ArrayType(element, ref.Array.Count), nil
	case ref.Struct != nil:
		fields := make([]ir.Type, len(ref.Struct.Fields))
		for i, f := range ref.Struct.Fields {
			var err error
			if fields[i], err = b.typeOf(f); err != nil {
				return nil, err
			}
		}
		return b.ctx.StructType(fields...), nil
	}
	return nil, fmt.Errorf("unrecognized type")
}
