package aarch64

import (
	"fmt"
	"io"
	"strings"

	"sable/internal/ir"
	"sable/internal/mir"
	"sable/internal/target"
)

// AsmPrinter renders machine functions as GNU AArch64 assembly.
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

func (AsmPrinter) Name() string { return "aarch64asmprint" }

func (p *AsmPrinter) Init(unit *ir.Unit) {
	if len(unit.Globals()) > 0 {
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
				fmt.Fprintf(p.out, "\t.quad %d\n", init.Value())
			default:
				fmt.Fprintf(p.out, "\t.zero %d\n", p.layout.Size(g.ValueType()))
			}
		}
	}
	fmt.Fprintln(p.out, "\t.text")
	for _, f := range unit.Functions() {
		if f.HasBody() && f.Linkage() == ir.LinkageExternal {
			fmt.Fprintf(p.out, "\t.globl %s\n", f.Name())
		}
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
	switch inst.Opcode() {
	case StpPre:
		fmt.Fprintln(p.out, "\tstp x29, x30, [sp, #-16]!")
		return
	case LdpPost:
		fmt.Fprintln(p.out, "\tldp x29, x30, [sp], #16")
		return
	case MovSPFP:
		fmt.Fprintln(p.out, "\tmov x29, sp")
		return
	case SubSPImm, AddSPImm:
		name := "sub"
		if inst.Opcode() == AddSPImm {
			name = "add"
		}
		imm := inst.Operand(2).(*mir.ImmediateInt)
		fmt.Fprintf(p.out, "\t%s sp, sp, #%d\n", name, imm.Value())
		return
	case MovKShift16:
		imm := inst.Operand(1).(*mir.ImmediateInt)
		shift := inst.Operand(2).(*mir.ImmediateInt)
		fmt.Fprintf(p.out, "\tmovk %s, #%d, lsl #%d\n",
			p.operand(f, inst.Operand(0)), imm.Value(), shift.Value())
		return
	case AdrpSym:
		fmt.Fprintf(p.out, "\tadrp %s, %s\n",
			p.operand(f, inst.Operand(0)), p.operand(f, inst.Operand(1)))
		return
	case AddLoSym:
		fmt.Fprintf(p.out, "\tadd %s, %s, :lo12:%s\n",
			p.operand(f, inst.Operand(0)), p.operand(f, inst.Operand(1)), p.symName(inst.Operand(2)))
		return
	case AddRRI:
		if mem, ok := inst.Operand(2).(*mir.Memory); ok {
			if fi, ok := mem.Base.(*mir.FrameIndex); ok {
				fmt.Fprintf(p.out, "\tadd %s, %s, #%d\n",
					p.operand(f, inst.Operand(0)), p.operand(f, inst.Operand(1)),
					f.Frame().Slot(fi.Index()).Offset)
				return
			}
		}
	case CsetEq, CsetNe, CsetGt, CsetGe, CsetLt, CsetLe, CsetHi, CsetHs, CsetLo, CsetLs:
		fmt.Fprintf(p.out, "\tcset %s, %s\n", p.operand(f, inst.Operand(0)), csetCond(inst.Opcode()))
		return
	}

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

func csetCond(op uint32) string {
	switch op {
	case CsetEq:
		return "eq"
	case CsetNe:
		return "ne"
	case CsetGt:
		return "gt"
	case CsetGe:
		return "ge"
	case CsetLt:
		return "lt"
	case CsetLe:
		return "le"
	case CsetHi:
		return "hi"
	case CsetHs:
		return "hs"
	case CsetLo:
		return "lo"
	case CsetLs:
		return "ls"
	}
	return "?"
}

func (p *AsmPrinter) symName(op mir.Operand) string {
	switch o := op.(type) {
	case *mir.GlobalAddress:
		return o.Name()
	case *mir.ExternalSymbol:
		return o.Name()
	}
	return op.String()
}

func (p *AsmPrinter) operand(f *mir.Function, op mir.Operand) string {
	switch o := op.(type) {
	case *mir.Register:
		return p.registerName(o)
	case *mir.ImmediateInt:
		return fmt.Sprintf("#%d", o.Value())
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
		return fmt.Sprintf("#%d", slot.Offset)
	}
	return op.String()
}

func (p *AsmPrinter) registerName(r *mir.Register) string {
	id := r.ID()
	if !p.regInfo.IsPhysical(id) {
		return fmt.Sprintf("%%%d", id)
	}
	size := 8
	if r.HasFlag(mir.FlagForce32Bit) || r.HasFlag(mir.FlagForce16Bit) || r.HasFlag(mir.FlagForce8Bit) {
		size = 4
	}
	if sized, ok := p.regInfo.RegisterWithSize(id, size); ok {
		id = sized
	}
	return p.regInfo.Name(id)
}

func (p *AsmPrinter) memory(f *mir.Function, m *mir.Memory) string {
	switch b := m.Base.(type) {
	case *mir.Register:
		if m.Disp != 0 {
			return fmt.Sprintf("[%s, #%d]", p.registerName(b), m.Disp)
		}
		return fmt.Sprintf("[%s]", p.registerName(b))
	case *mir.FrameIndex:
		offset := f.Frame().Slot(b.Index()).Offset + m.Disp
		return fmt.Sprintf("[x29, #%d]", offset)
	case *mir.ConstantPoolIndex:
		return p.poolLabel(f, b.Index())
	case *mir.GlobalAddress:
		return b.Name()
	}
	return m.String()
}
