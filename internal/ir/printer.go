package ir

import (
	"fmt"
	"strings"
)

// Print renders the unit in the textual IR form understood by the parser.
func Print(u *Unit) string {
	p := &printer{names: make(map[Value]string)}
	return p.printUnit(u)
}

// PrintFunction renders a single function.
func PrintFunction(f *Function) string {
	p := &printer{names: make(map[Value]string)}
	var sb strings.Builder
	p.printFunc(&sb, f)
	return sb.String()
}

type printer struct {
	names   map[Value]string
	counter int
}

func (p *printer) printUnit(u *Unit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "unit %q\n", u.Name())

	for _, g := range u.Globals() {
		sb.WriteString("\n")
		p.printGlobal(&sb, g)
	}
	for _, f := range u.Functions() {
		sb.WriteString("\n")
		p.printFunc(&sb, f)
	}
	return sb.String()
}

func (p *printer) printGlobal(sb *strings.Builder, g *GlobalVariable) {
	fmt.Fprintf(sb, "global @%s: %s", g.Name(), g.ValueType())
	if init := g.Initializer(); init != nil {
		switch c := init.(type) {
		case *ConstantString:
			fmt.Fprintf(sb, " = %q", c.Value())
		case *ConstantInt:
			fmt.Fprintf(sb, " = %d", c.Value())
		case *ConstantFloat:
			fmt.Fprintf(sb, " = %g", c.Value())
		}
	}
	sb.WriteString("\n")
}

func (p *printer) printFunc(sb *strings.Builder, f *Function) {
	p.names = make(map[Value]string)
	p.counter = 0

	params := make([]string, len(f.Args()))
	for i, arg := range f.Args() {
		params[i] = fmt.Sprintf("%s %%%s", arg.Type(), p.nameOf(arg))
	}
	va := ""
	if f.FuncType().IsVarArg() {
		va = ", ..."
	}
	fmt.Fprintf(sb, "func @%s(%s%s) -> %s", f.Name(), strings.Join(params, ", "), va, f.FuncType().Return())
	if !f.HasBody() {
		sb.WriteString("\n")
		return
	}
	sb.WriteString(" {\n")
	for _, b := range f.Blocks() {
		fmt.Fprintf(sb, "%s:\n", b.Name())
		for _, inst := range b.Instructions() {
			sb.WriteString("  ")
			p.printInstruction(sb, inst)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("}\n")
}

func (p *printer) printInstruction(sb *strings.Builder, inst *Instruction) {
	hasResult := !IsVoid(inst.Type()) && inst.Opcode() != OpStore
	if hasResult {
		fmt.Fprintf(sb, "%%%s = ", p.nameOf(inst))
	}

	switch inst.Opcode() {
	case OpAllocate:
		fmt.Fprintf(sb, "allocate %s", inst.Type().(*PointerType).Pointee())
	case OpPhi:
		sb.WriteString("phi " + inst.Type().String())
		for i, edge := range inst.PhiIncoming() {
			if i == 0 {
				sb.WriteString(" ")
			} else {
				sb.WriteString(", ")
			}
			fmt.Fprintf(sb, "[ %s, %%%s ]", p.operand(edge.Value), edge.Block.Name())
		}
	case OpCall:
		args := make([]string, len(inst.CallArgs()))
		for i, arg := range inst.CallArgs() {
			args[i] = p.operand(arg)
		}
		fmt.Fprintf(sb, "call %s %s(%s)", inst.Type(), p.operand(inst.Callee()), strings.Join(args, ", "))
	case OpJump:
		if inst.NumOperands() == 1 {
			fmt.Fprintf(sb, "jump %%%s", inst.Operand(0).Name())
		} else {
			fmt.Fprintf(sb, "br %s, %%%s, %%%s", p.operand(inst.Operand(2)),
				inst.Operand(0).Name(), inst.Operand(1).Name())
		}
	case OpSwitch:
		fmt.Fprintf(sb, "switch %s, %%%s [", p.operand(inst.Operand(0)), inst.Operand(1).Name())
		for idx := 2; idx+1 < inst.NumOperands(); idx += 2 {
			if idx > 2 {
				sb.WriteString(",")
			}
			fmt.Fprintf(sb, " %s -> %%%s", p.operand(inst.Operand(idx)), inst.Operand(idx+1).Name())
		}
		sb.WriteString(" ]")
	case OpRet:
		if inst.NumOperands() == 0 {
			sb.WriteString("ret")
		} else {
			fmt.Fprintf(sb, "ret %s", p.operand(inst.Operand(0)))
		}
	default:
		if inst.Opcode().IsCast() {
			fmt.Fprintf(sb, "%s %s to %s", inst.Opcode(), p.operand(inst.Operand(0)), inst.Type())
			return
		}
		operands := make([]string, inst.NumOperands())
		for i, operand := range inst.Operands() {
			operands[i] = p.operand(operand)
		}
		fmt.Fprintf(sb, "%s %s", inst.Opcode(), strings.Join(operands, ", "))
	}
}

func (p *printer) operand(v Value) string {
	switch c := v.(type) {
	case *ConstantInt:
		return fmt.Sprintf("%s %d", c.Type(), c.Value())
	case *ConstantFloat:
		return fmt.Sprintf("%s %g", c.Type(), c.Value())
	case *NullValue:
		return "null"
	case *UndefValue:
		return "undef " + c.Type().String()
	case *GlobalVariable:
		return "@" + c.Name()
	case *Function:
		return "@" + c.Name()
	case *Block:
		return "%" + c.Name()
	}
	return "%" + p.nameOf(v)
}

// nameOf assigns stable per-function names: the value's own name when it is
// unique, the name with a ".N" suffix when it is already taken, and a fresh
// vN for unnamed values.
func (p *printer) nameOf(v Value) string {
	if name, ok := p.names[v]; ok {
		return name
	}
	name := v.Name()
	if name == "" {
		name = fmt.Sprintf("v%d", p.counter)
		p.counter++
	}
	for _, taken := range p.names {
		if taken == name {
			name = fmt.Sprintf("%s.%d", name, p.counter)
			p.counter++
			break
		}
	}
	p.names[v] = name
	return name
}
