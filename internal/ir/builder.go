package ir

// Builder appends instructions at a movable cursor. Every create call
// either returns a folded constant, leaving the cursor where it was, or
// inserts a new instruction and advances the cursor so chained calls build
// a straight-line sequence.
type Builder struct {
	ctx    *Context
	folder Folder

	block        *Block
	insertPoint  *Instruction
	insertBefore bool
}

func NewBuilder(ctx *Context) *Builder {
	return &Builder{ctx: ctx, folder: Folder{ctx: ctx}}
}

func (b *Builder) Context() *Context { return b.ctx }

// SetBlock moves the cursor to the end of block.
func (b *Builder) SetBlock(block *Block) {
	b.block = block
	b.insertPoint = nil
	b.insertBefore = false
}

func (b *Builder) Block() *Block { return b.block }

// SetInsertPoint makes subsequent inserts land after inst (or before it
// once SetInsertBefore(true) is called).
func (b *Builder) SetInsertPoint(inst *Instruction) { b.insertPoint = inst }

func (b *Builder) SetInsertBefore(before bool) { b.insertBefore = before }

func (b *Builder) insert(inst *Instruction) *Instruction {
	if b.block == nil {
		panic("ir: builder has no current block")
	}
	switch {
	case b.insertPoint == nil:
		b.block.Append(inst)
	case b.insertBefore:
		b.block.InsertBefore(inst, b.insertPoint)
		// keep the point: chained creates stay in source order ahead of it
		return inst
	default:
		b.block.InsertAfter(inst, b.insertPoint)
	}
	b.insertPoint = inst
	return inst
}

// CreateAllocate reserves a stack slot for typ; its value is ptr-to-typ.
func (b *Builder) CreateAllocate(typ Type, name string) *Instruction {
	if typ.Kind() == TypeFunction {
		panic("ir: cannot allocate a function type")
	}
	return b.insert(NewInstruction(OpAllocate, b.ctx.PointerType(typ), name))
}

func (b *Builder) CreateLoad(ptr Value, name string) Value {
	pointee := ptr.Type().(*PointerType).Pointee()
	return b.insert(NewInstruction(OpLoad, pointee, name, ptr))
}

func (b *Builder) CreateStore(ptr, value Value) *Instruction {
	if ptr.Type().(*PointerType).Pointee() != value.Type() {
		panic("ir: store value type does not match pointee")
	}
	return b.insert(NewInstruction(OpStore, b.ctx.VoidType(), "", ptr, value))
}

func (b *Builder) binOp(op Opcode, lhs, rhs Value, typ Type, name string) Value {
	if v := b.folder.FoldBinOp(op, lhs, rhs); v != nil {
		return v
	}
	return b.insert(NewInstruction(op, typ, name, lhs, rhs))
}

func (b *Builder) CreateAdd(lhs, rhs Value, name string) Value {
	return b.binOp(OpAdd, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateSub(lhs, rhs Value, name string) Value {
	return b.binOp(OpSub, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateIMul(lhs, rhs Value, name string) Value {
	return b.binOp(OpIMul, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateUMul(lhs, rhs Value, name string) Value {
	return b.binOp(OpUMul, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateFMul(lhs, rhs Value, name string) Value {
	return b.binOp(OpFMul, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateIDiv(lhs, rhs Value, name string) Value {
	return b.binOp(OpIDiv, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateUDiv(lhs, rhs Value, name string) Value {
	return b.binOp(OpUDiv, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateFDiv(lhs, rhs Value, name string) Value {
	return b.binOp(OpFDiv, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateIRem(lhs, rhs Value, name string) Value {
	return b.binOp(OpIRem, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateURem(lhs, rhs Value, name string) Value {
	return b.binOp(OpURem, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateShl(lhs, rhs Value, name string) Value {
	return b.binOp(OpShiftLeft, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateLShr(lhs, rhs Value, name string) Value {
	return b.binOp(OpLShiftRight, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateAShr(lhs, rhs Value, name string) Value {
	return b.binOp(OpAShiftRight, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateAnd(lhs, rhs Value, name string) Value {
	return b.binOp(OpAnd, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateOr(lhs, rhs Value, name string) Value {
	return b.binOp(OpOr, lhs, rhs, lhs.Type(), name)
}

func (b *Builder) CreateXor(lhs, rhs Value, name string) Value {
	return b.binOp(OpXor, lhs, rhs, lhs.Type(), name)
}

// CreateCmp builds any comparison opcode; the result is always i1.
func (b *Builder) CreateCmp(op Opcode, lhs, rhs Value, name string) Value {
	if !op.IsCompare() {
		panic("ir: CreateCmp with non-compare opcode")
	}
	return b.binOp(op, lhs, rhs, b.ctx.I1Type(), name)
}

// CreateGEP computes an address by walking typ through the indices: through
// the pointer/array layer for index 0, through a constant-selected field
// for structs. The result is pointer-to the reached type.
func (b *Builder) CreateGEP(ptr Value, indices []Value, name string) Value {
	current := ptr.Type()
	for _, index := range indices {
		if !IsInt(index.Type()) {
			panic("ir: gep index must be an integer")
		}
		contained := current.Contained()
		if len(contained) == 0 {
			panic("ir: gep walks into a leaf type")
		}
		switch index.ValueKind() {
		case KindConstantInt:
			if IsPointer(current) || IsArray(current) {
				current = contained[0]
			} else {
				current = contained[index.(*ConstantInt).Value()]
			}
		default:
			if !IsPointer(current) && !IsArray(current) {
				panic("ir: dynamic gep index requires pointer or array")
			}
			current = contained[0]
		}
	}
	operands := append([]Value{ptr}, indices...)
	return b.insert(NewInstruction(OpGetElementPtr, b.ctx.PointerType(current), name, operands...))
}

func (b *Builder) CreateCall(callee Value, args []Value, name string) Value {
	funcType := callee.Type().(*PointerType).Pointee().(*FunctionType)
	operands := append([]Value{callee}, args...)
	return b.insert(NewInstruction(OpCall, funcType.Return(), name, operands...))
}

func (b *Builder) cast(op Opcode, value Value, to Type, name string) Value {
	if v := b.folder.FoldCast(op, value, to); v != nil {
		return v
	}
	return b.insert(NewInstruction(op, to, name, value))
}

func (b *Builder) CreateZext(value Value, to Type, name string) Value {
	return b.cast(OpZext, value, to, name)
}

func (b *Builder) CreateSext(value Value, to Type, name string) Value {
	return b.cast(OpSext, value, to, name)
}

func (b *Builder) CreateTrunc(value Value, to Type, name string) Value {
	return b.cast(OpTrunc, value, to, name)
}

func (b *Builder) CreateFptrunc(value Value, to Type, name string) Value {
	return b.cast(OpFptrunc, value, to, name)
}

func (b *Builder) CreateFpext(value Value, to Type, name string) Value {
	return b.cast(OpFpext, value, to, name)
}

func (b *Builder) CreateFptosi(value Value, to Type, name string) Value {
	return b.cast(OpFptosi, value, to, name)
}

func (b *Builder) CreateFptoui(value Value, to Type, name string) Value {
	return b.cast(OpFptoui, value, to, name)
}

func (b *Builder) CreateSitofp(value Value, to Type, name string) Value {
	return b.cast(OpSitofp, value, to, name)
}

func (b *Builder) CreateUitofp(value Value, to Type, name string) Value {
	return b.cast(OpUitofp, value, to, name)
}

func (b *Builder) CreateBitcast(value Value, to Type, name string) Value {
	return b.cast(OpBitcast, value, to, name)
}

func (b *Builder) CreatePtrtoint(value Value, to Type, name string) Value {
	return b.cast(OpPtrtoint, value, to, name)
}

func (b *Builder) CreateInttoptr(value Value, to Type, name string) Value {
	if !IsPointer(to) {
		panic("ir: inttoptr requires a pointer result type")
	}
	return b.cast(OpInttoptr, value, to, name)
}

func (b *Builder) CreateExtractValue(from Value, index *ConstantInt, name string) Value {
	fields := from.Type().Contained()
	fieldType := fields[index.Value()]
	return b.insert(NewInstruction(OpExtractValue, fieldType, name, from, index))
}

// CreatePhi builds a φ from (value, block) pairs.
func (b *Builder) CreatePhi(typ Type, name string, incoming ...PhiEdge) *Instruction {
	phi := NewInstruction(OpPhi, typ, name)
	for _, edge := range incoming {
		phi.AddOperand(edge.Value)
		phi.AddOperand(edge.Block)
	}
	return b.insert(phi)
}

func (b *Builder) CreateRet(value Value) *Instruction {
	if value == nil {
		return b.insert(NewInstruction(OpRet, b.ctx.VoidType(), ""))
	}
	return b.insert(NewInstruction(OpRet, b.ctx.VoidType(), "", value))
}

func (b *Builder) CreateJump(to *Block) *Instruction {
	return b.insert(NewInstruction(OpJump, b.ctx.VoidType(), "", to))
}

// CreateCondJump branches to then when cond is non-zero. A constant
// condition collapses to the taken edge.
func (b *Builder) CreateCondJump(then, els *Block, cond Value) *Instruction {
	if c, ok := cond.(*ConstantInt); ok {
		if c.Value() != 0 {
			return b.CreateJump(then)
		}
		return b.CreateJump(els)
	}
	return b.insert(NewInstruction(OpJump, b.ctx.VoidType(), "", then, els, cond))
}

type SwitchCase struct {
	Value *ConstantInt
	Block *Block
}

func (b *Builder) CreateSwitch(value Value, def *Block, cases []SwitchCase) *Instruction {
	sw := NewInstruction(OpSwitch, b.ctx.VoidType(), "", value, def)
	for _, c := range cases {
		sw.AddOperand(c.Value)
		sw.AddOperand(c.Block)
	}
	return b.insert(sw)
}
