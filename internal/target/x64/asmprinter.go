package x64

import (
	"fmt"
	"io"
	"strings"

	"sable/internal/ir"
	"sable/internal/mir"
	"sable/internal/target"
)

// AsmPrinter renders machine functions as GAS Intel-syntax assembly. It
// reads MIR only; frame indices resolve against the finalized stack frame.
type AsmPrinter struct {
	out       io.Writer
	instrInfo target.InstructionInfo
	regInfo   *RegisterInfo
	layout    ir.DataLayout
	spec      target.Spec
}

func NewAsmPrinter(out io.Writer, instrInfo target.InstructionInfo, regInfo *RegisterInfo, layout ir.DataLayout, spec target.Spec) *AsmPrinter {
	return &AsmPrinter{out: out, instrInfo: instrInfo, regInfo: regInfo, layout: layout, spec: spec}
}

func (AsmPrinter) Name() string { return "x64asmprint" }

func (p *AsmPrinter) Init(unit *ir.Unit) {
	fmt.Fprintln(p.out, "\t.intel_syntax noprefix")
	p.printGlobals(unit)
	fmt.Fprintln(p.out, "\t.text")
	for _, f := range unit.Functions() {
		if f.HasBody() && f.Linkage() == ir.LinkageExternal {
			fmt.Fprintf(p.out, "\t.globl %s\n", f.Name())
		}
	}
}

func (p *AsmPrinter) printGlobals(unit *ir.Unit) {
	if len(unit.Globals()) == 0 {
		return
	}
	fmt.Fprintln(p.out, "\t.data")
	for _, g := range unit.Globals() {
		if g.Linkage() == ir.LinkageExternal {
			fmt.Fprintf(p.out, "\t.globl %s\n", g.Name())
		}
		fmt.Fprintf(p.out, "%s:\n", g.Name())
		switch init := g.Initializer().(type) {
		case *ir.ConstantString:
			fmt.Fprintf(p.out, "\t.ascii %q\n", init.Value())
		case *ir.ConstantInt:
			p.printIntData(init)
		case nil:
			fmt.Fprintf(p.out, "\t.zero %d\n", p.layout.Size(g.ValueType()))
		default:
			fmt.Fprintf(p.out, "\t.zero %d\n", p.layout.Size(g.ValueType()))
		}
	}
}

func (p *AsmPrinter) printIntData(c *ir.ConstantInt) {
	switch p.layout.Size(c.Type()) {
	case 1:
		fmt.Fprintf(p.out, "\t.byte %d\n", c.Value())
	case 2:
		fmt.Fprintf(p.out, "\t.short %d\n", c.Value())
	case 4:
		fmt.Fprintf(p.out, "\t.long %d\n", c.Value())
	default:
		fmt.Fprintf(p.out, "\t.quad %d\n", c.Value())
	}
}

func (p *AsmPrinter) RunOnMachineFunction(f *mir.Function) bool {
	if pool := f.ConstantPool(); len(pool) > 0 {
		fmt.Fprintln(p.out, "\t.section .rodata")
		for i, entry := range pool {
			fmt.Fprintf(p.out, "\t.align %d\n", entry.Align)
			fmt.Fprintf(p.out, "%s:\n", p.poolLabel(f, i))
			for _, b := range entry.Data {
				fmt.Fprintf(p.out, "\t.byte %d\n", b)
			}
		}
		fmt.Fprintln(p.out, "\t.text")
	}

	fmt.Fprintf(p.out, "%s:\n", f.Name())
	for _, b := range f.Blocks() {
		fmt.Fprintf(p.out, ".L%s:\n", b.Name())
		for _, inst := range b.Instructions() {
			p.printInstruction(f, inst)
		}
	}
	fmt.Fprintln(p.out)
	return false
}

func (p *AsmPrinter) poolLabel(f *mir.Function, idx int) string {
	return fmt.Sprintf(".LCPI_%s_%d", f.Name(), idx)
}

func (p *AsmPrinter) printInstruction(f *mir.Function, inst *mir.Instruction) {
	desc := p.instrInfo.Descriptor(inst.Opcode())
	if inst.NumOperands() == 0 {
		fmt.Fprintf(p.out, "\t%s\n", desc.Name)
		return
	}
	operands := make([]string, inst.NumOperands())
	for i, op := range inst.Operands() {
		operands[i] = p.operand(f, op)
	}
	fmt.Fprintf(p.out, "\t%s %s\n", desc.Name, strings.Join(operands, ", "))
}

func (p *AsmPrinter) operand(f *mir.Function, op mir.Operand) string {
	switch o := op.(type) {
	case *mir.Register:
		return p.registerName(o)
	case *mir.ImmediateInt:
		return fmt.Sprintf("%d", o.Value())
	case *mir.BlockRef:
		return ".L" + o.Block().Name()
	case *mir.GlobalAddress:
		return o.Name()
	case *mir.ExternalSymbol:
		return o.Name()
	case *mir.Memory:
		return p.memory(f, o)
	case *mir.FrameIndex:
		slot := f.Frame().Slot(o.Index())
		return fmt.Sprintf("[rbp %+d]", slot.Offset)
	}
	return op.String()
}

func (p *AsmPrinter) registerName(r *mir.Register) string {
	id := r.ID()
	if !p.regInfo.IsPhysical(id) {
		// regalloc failed to touch this operand; surface it loudly
		return fmt.Sprintf("%%%d", id)
	}
	size := 0
	switch {
	case r.HasFlag(mir.FlagForce8Bit):
		size = 1
	case r.HasFlag(mir.FlagForce16Bit):
		size = 2
	case r.HasFlag(mir.FlagForce32Bit):
		size = 4
	case r.HasFlag(mir.FlagForce64Bit):
		size = 8
	}
	if size != 0 {
		if sized, ok := p.regInfo.RegisterWithSize(id, size); ok {
			id = sized
		}
	}
	return p.regInfo.Name(id)
}

var sizeDirectives = map[int]string{
	1: "byte ptr",
	2: "word ptr",
	4: "dword ptr",
	8: "qword ptr",
}

func (p *AsmPrinter) memory(f *mir.Function, m *mir.Memory) string {
	prefix := sizeDirectives[m.OpSize]
	if prefix == "" {
		prefix = "qword ptr"
	}

	var base string
	disp := m.Disp
	switch b := m.Base.(type) {
	case *mir.Register:
		base = p.registerName(b)
	case *mir.FrameIndex:
		base = "rbp"
		disp += f.Frame().Slot(b.Index()).Offset
	case *mir.GlobalAddress:
		return fmt.Sprintf("%s [rip + %s]", prefix, b.Name())
	case *mir.ExternalSymbol:
		return fmt.Sprintf("%s [rip + %s]", prefix, b.Name())
	case *mir.ConstantPoolIndex:
		return fmt.Sprintf("%s [rip + %s]", prefix, p.poolLabel(f, b.Index()))
	}

	s := prefix + " [" + base
	if m.Index != nil {
		if r, ok := m.Index.(*mir.Register); ok {
			s += fmt.Sprintf(" + %s*%d", p.registerName(r), m.Scale)
		}
	}
	if disp != 0 {
		s += fmt.Sprintf(" %+d", disp)
	}
	return s + "]"
}
