package ir

import "fmt"

// Unit is one translation unit: functions, globals, and the naming state
// shared between them. All IR nodes in the unit reference types and
// constants owned by the unit's Context.
type Unit struct {
	name      string
	ctx       *Context
	functions []*Function
	globals   []*GlobalVariable

	blockNames map[string]int
	valueNames int
}

func NewUnit(name string, ctx *Context) *Unit {
	return &Unit{
		name:       name,
		ctx:        ctx,
		blockNames: make(map[string]int),
	}
}

func (u *Unit) Name() string               { return u.name }
func (u *Unit) Context() *Context          { return u.ctx }
func (u *Unit) Functions() []*Function     { return u.functions }
func (u *Unit) Globals() []*GlobalVariable { return u.globals }

// AddFunction declares a function in the unit. A function without blocks is
// an external declaration.
func (u *Unit) AddFunction(name string, funcType *FunctionType, linkage Linkage) *Function {
	f := newFunction(u, name, funcType, linkage)
	u.functions = append(u.functions, f)
	return f
}

// FindFunction returns the function with the given name, or nil.
func (u *Unit) FindFunction(name string) *Function {
	for _, f := range u.functions {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// AddGlobal declares a global variable; its Value type is pointer-to-typ.
func (u *Unit) AddGlobal(name string, typ Type, initializer Value, linkage Linkage) *GlobalVariable {
	g := &GlobalVariable{valueType: typ, initializer: initializer, linkage: linkage}
	g.init(name, u.ctx.PointerType(typ), KindGlobalVariable)
	u.globals = append(u.globals, g)
	return g
}

// AddGlobalString adds a NUL-terminated string constant as an internal
// global and returns it. Every call creates a new global; equal strings are
// not shared.
func (u *Unit) AddGlobalString(value string, name string) *GlobalVariable {
	if name == "" {
		name = fmt.Sprintf(".str%d", u.valueNames)
		u.valueNames++
	}
	data := value + "\x00"
	strType := u.ctx.ArrayType(u.ctx.I8Type(), len(data))
	init := &ConstantString{value: data}
	init.init(name, strType, KindConstantString)
	return u.AddGlobal(name, strType, init, LinkageInternal)
}

// FindGlobal returns the global with the given name, or nil.
func (u *Unit) FindGlobal(name string) *GlobalVariable {
	for _, g := range u.globals {
		if g.Name() == name {
			return g
		}
	}
	return nil
}

// InstructionCount sums instruction counts over every function; the inliner
// budgets against it.
func (u *Unit) InstructionCount() int {
	n := 0
	for _, f := range u.functions {
		n += f.InstructionCount()
	}
	return n
}

// uniqueBlockName suffixes name with a per-unit counter so block labels are
// unique across the whole unit.
func (u *Unit) uniqueBlockName(name string) string {
	n := u.blockNames[name]
	u.blockNames[name] = n + 1
	return fmt.Sprintf("%s%d", name, n)
}
