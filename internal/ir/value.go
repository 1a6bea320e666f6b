package ir

// ValueKind discriminates every node that can appear as an operand.
type ValueKind int

const (
	KindConstantInt ValueKind = iota
	KindConstantFloat
	KindConstantString
	KindConstantStruct
	KindConstantArray
	KindConstantGEP
	KindNull
	KindUndef
	KindFunctionArgument
	KindGlobalVariable
	KindFunction
	KindBlock
	KindInstruction
)

// Value is anything an instruction can reference as an operand. Every value
// keeps a use list: the instructions that currently name it as an operand,
// once per occurrence. Use lists and operand lists are kept consistent by
// the operand-mutation helpers; nothing else may touch either side.
type Value interface {
	Name() string
	SetName(name string)
	Type() Type
	ValueKind() ValueKind
	Uses() []*Instruction

	addUse(user *Instruction)
	removeUse(user *Instruction)
}

type valueBase struct {
	name string
	typ  Type
	kind ValueKind
	uses []*Instruction
}

func (v *valueBase) init(name string, typ Type, kind ValueKind) {
	v.name = name
	v.typ = typ
	v.kind = kind
}

func (v *valueBase) Name() string         { return v.name }
func (v *valueBase) SetName(name string)  { v.name = name }
func (v *valueBase) Type() Type           { return v.typ }
func (v *valueBase) ValueKind() ValueKind { return v.kind }
func (v *valueBase) Uses() []*Instruction { return v.uses }

func (v *valueBase) addUse(user *Instruction) {
	v.uses = append(v.uses, user)
}

// removeUse drops one occurrence of user, matching how operand insertion
// added one.
func (v *valueBase) removeUse(user *Instruction) {
	for i, u := range v.uses {
		if u == user {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
}

// IsConstant reports whether v is a compile-time constant of any kind.
func IsConstant(v Value) bool {
	switch v.ValueKind() {
	case KindConstantInt, KindConstantFloat, KindConstantString,
		KindConstantStruct, KindConstantArray, KindConstantGEP, KindNull, KindUndef:
		return true
	}
	return false
}

type ConstantInt struct {
	valueBase
	value int64
}

func (c *ConstantInt) Value() int64 { return c.value }

// Uint returns the value reinterpreted at the type's width without sign.
func (c *ConstantInt) Uint() uint64 {
	bits := c.typ.(*IntegerType).Bits()
	if bits >= 64 {
		return uint64(c.value)
	}
	return uint64(c.value) & (1<<uint(bits) - 1)
}

type ConstantFloat struct {
	valueBase
	value float64
}

func (c *ConstantFloat) Value() float64 { return c.value }

type ConstantString struct {
	valueBase
	value string
}

func (c *ConstantString) Value() string { return c.value }

type ConstantStruct struct {
	valueBase
	fields []Value
}

func (c *ConstantStruct) Fields() []Value { return c.fields }

type ConstantArray struct {
	valueBase
	elements []Value
}

func (c *ConstantArray) Elements() []Value { return c.elements }

// ConstantGEP is a constant offset into a global, usable as a global
// variable initializer.
type ConstantGEP struct {
	valueBase
	base    *GlobalVariable
	indices []int64
}

func (c *ConstantGEP) Base() *GlobalVariable { return c.base }
func (c *ConstantGEP) Indices() []int64      { return c.indices }

type NullValue struct {
	valueBase
}

type UndefValue struct {
	valueBase
}

// ValueFlag marks ABI properties on arguments.
type ValueFlag uint8

const (
	FlagByVal ValueFlag = 1 << iota
)

// FunctionArgument is the SSA value for a declared parameter. By-value
// aggregate arguments carry FlagByVal and are materialized as frame slots
// during instruction selection.
type FunctionArgument struct {
	valueBase
	slot  int
	flags ValueFlag
}

func (a *FunctionArgument) Slot() int                { return a.slot }
func (a *FunctionArgument) HasFlag(f ValueFlag) bool { return a.flags&f != 0 }
func (a *FunctionArgument) AddFlag(f ValueFlag)      { a.flags |= f }

// Linkage of a global value within the unit.
type Linkage int

const (
	LinkageInternal Linkage = iota
	LinkageExternal
)

// CallingConvention selects the ABI for a function and its call sites.
type CallingConvention int

const (
	CallConvDefault CallingConvention = iota
	CallConvX64SysV
	CallConvWin64
	CallConvAAPCS
)

type GlobalVariable struct {
	valueBase
	valueType   Type // the variable's own type; Type() is pointer-to this
	initializer Value
	linkage     Linkage
}

func (g *GlobalVariable) ValueType() Type    { return g.valueType }
func (g *GlobalVariable) Initializer() Value { return g.initializer }
func (g *GlobalVariable) Linkage() Linkage   { return g.linkage }
