package ir

import "math"

// Folder evaluates operations whose operands are all constants. Integer
// arithmetic wraps two's-complement at the operand width; float arithmetic
// is IEEE-754 rounded to nearest-even. Division or remainder by zero never
// folds; the instruction is left for runtime.
type Folder struct {
	ctx *Context
}

// FoldBinOp returns the folded constant, or nil when no rule applies.
func (f *Folder) FoldBinOp(op Opcode, lhs, rhs Value) Value {
	if li, ok := lhs.(*ConstantInt); ok {
		if ri, ok := rhs.(*ConstantInt); ok {
			return f.foldIntBinOp(op, li, ri)
		}
	}
	if lf, ok := lhs.(*ConstantFloat); ok {
		if rf, ok := rhs.(*ConstantFloat); ok {
			return f.foldFloatBinOp(op, lf, rf)
		}
	}
	return nil
}

func (f *Folder) foldIntBinOp(op Opcode, lhs, rhs *ConstantInt) Value {
	typ := lhs.Type().(*IntegerType)
	a, b := lhs.Value(), rhs.Value()
	ua, ub := lhs.Uint(), rhs.Uint()

	boolResult := func(v bool) Value {
		if v {
			return f.ctx.True()
		}
		return f.ctx.False()
	}

	switch op {
	case OpAdd:
		return f.ctx.ConstantInt(typ, a+b)
	case OpSub:
		return f.ctx.ConstantInt(typ, a-b)
	case OpIMul:
		return f.ctx.ConstantInt(typ, a*b)
	case OpUMul:
		return f.ctx.ConstantInt(typ, int64(ua*ub))
	case OpIDiv:
		if b == 0 {
			return nil
		}
		return f.ctx.ConstantInt(typ, a/b)
	case OpUDiv:
		if ub == 0 {
			return nil
		}
		return f.ctx.ConstantInt(typ, int64(ua/ub))
	case OpIRem:
		if b == 0 {
			return nil
		}
		return f.ctx.ConstantInt(typ, a%b)
	case OpURem:
		if ub == 0 {
			return nil
		}
		return f.ctx.ConstantInt(typ, int64(ua%ub))
	case OpShiftLeft:
		return f.ctx.ConstantInt(typ, a<<(ub%64))
	case OpLShiftRight:
		return f.ctx.ConstantInt(typ, int64(ua>>(ub%64)))
	case OpAShiftRight:
		return f.ctx.ConstantInt(typ, a>>(ub%64))
	case OpAnd:
		return f.ctx.ConstantInt(typ, a&b)
	case OpOr:
		return f.ctx.ConstantInt(typ, a|b)
	case OpXor:
		return f.ctx.ConstantInt(typ, a^b)
	case OpICmpEq:
		return boolResult(a == b)
	case OpICmpNe:
		return boolResult(a != b)
	case OpICmpGt:
		return boolResult(a > b)
	case OpICmpGe:
		return boolResult(a >= b)
	case OpICmpLt:
		return boolResult(a < b)
	case OpICmpLe:
		return boolResult(a <= b)
	case OpUCmpGt:
		return boolResult(ua > ub)
	case OpUCmpGe:
		return boolResult(ua >= ub)
	case OpUCmpLt:
		return boolResult(ua < ub)
	case OpUCmpLe:
		return boolResult(ua <= ub)
	}
	return nil
}

func (f *Folder) foldFloatBinOp(op Opcode, lhs, rhs *ConstantFloat) Value {
	typ := lhs.Type().(*FloatType)
	a, b := lhs.Value(), rhs.Value()

	boolResult := func(v bool) Value {
		if v {
			return f.ctx.True()
		}
		return f.ctx.False()
	}

	switch op {
	case OpAdd:
		return f.ctx.ConstantFloat(typ, a+b)
	case OpSub:
		return f.ctx.ConstantFloat(typ, a-b)
	case OpFMul:
		return f.ctx.ConstantFloat(typ, a*b)
	case OpFDiv:
		if b == 0 {
			return nil
		}
		return f.ctx.ConstantFloat(typ, a/b)
	case OpFCmpEq:
		return boolResult(a == b)
	case OpFCmpNe:
		return boolResult(a != b)
	case OpFCmpGt:
		return boolResult(a > b)
	case OpFCmpGe:
		return boolResult(a >= b)
	case OpFCmpLt:
		return boolResult(a < b)
	case OpFCmpLe:
		return boolResult(a <= b)
	}
	return nil
}

// FoldCast folds casts of constant operands with well-defined direction.
func (f *Folder) FoldCast(op Opcode, value Value, to Type) Value {
	switch v := value.(type) {
	case *ConstantInt:
		switch op {
		case OpZext:
			return f.ctx.ConstantInt(to.(*IntegerType), int64(v.Uint()))
		case OpSext, OpTrunc, OpBitcast, OpPtrtoint:
			if it, ok := to.(*IntegerType); ok {
				return f.ctx.ConstantInt(it, v.Value())
			}
		case OpSitofp:
			return f.ctx.ConstantFloat(to.(*FloatType), float64(v.Value()))
		case OpUitofp:
			return f.ctx.ConstantFloat(to.(*FloatType), float64(v.Uint()))
		}
	case *ConstantFloat:
		switch op {
		case OpFptrunc, OpFpext:
			return f.ctx.ConstantFloat(to.(*FloatType), v.Value())
		case OpFptosi:
			if it, ok := to.(*IntegerType); ok {
				return f.ctx.ConstantInt(it, int64(math.Trunc(v.Value())))
			}
		case OpFptoui:
			if it, ok := to.(*IntegerType); ok {
				return f.ctx.ConstantInt(it, int64(uint64(math.Trunc(v.Value()))))
			}
		}
	}
	return nil
}
