package ir

// Intrinsic names a runtime routine the backend may call for operations
// with no instruction sequence, lowered as plain external calls.
type Intrinsic int

const (
	IntrinsicMemcpy Intrinsic = iota
	IntrinsicMemset
)

// IntrinsicFunction returns the declared external function for an
// intrinsic, adding the declaration to the unit on first use.
func (u *Unit) IntrinsicFunction(which Intrinsic) *Function {
	var name string
	var funcType *FunctionType
	bytePtr := u.ctx.PointerType(u.ctx.I8Type())
	switch which {
	case IntrinsicMemcpy:
		name = "memcpy"
		funcType = u.ctx.FunctionType(bytePtr, []Type{bytePtr, bytePtr, u.ctx.I64Type()}, false)
	case IntrinsicMemset:
		name = "memset"
		funcType = u.ctx.FunctionType(bytePtr, []Type{bytePtr, u.ctx.I32Type(), u.ctx.I64Type()}, false)
	}
	if f := u.FindFunction(name); f != nil {
		return f
	}
	return u.AddFunction(name, funcType, LinkageExternal)
}
