package mir

import "sable/internal/ir"

// Function is the machine-level mirror of an IR function: blocks of target
// instructions, the stack frame, the per-function register state, and a
// constant pool for float literals that need a memory home.
type Function struct {
	name     string
	irFunc   *ir.Function
	blocks   []*Block
	frame    StackFrame
	regInfo  *RegInfo
	args     []*Register
	cpool    []ConstantPoolEntry
	calls    []*Instruction
	prologue int
	// frameSize is recorded by prologue layout for printer and encoder.
	frameSize int64
	// valueOps maps IR values to the operands holding them after
	// selection; the φ-elimination copies in target lowering read it.
	valueOps map[ir.Value]Operand
	// frameImms are prologue immediates that must receive the final frame
	// size once late passes stop adding slots.
	frameImms []*ImmediateInt
}

// ConstantPoolEntry is raw data emitted into the read-only section.
type ConstantPoolEntry struct {
	Data  []byte
	Align int
}

// ClassPicker chooses a register class for an IR type; the target's
// register table provides it when the function shell is created.
type ClassPicker interface {
	ClassForType(t ir.Type) RegClass
}

// NewFunction builds the machine shell for f: one virtual register per
// scalar argument. By-value aggregate arguments have no register; the
// selector gives them frame slots.
func NewFunction(f *ir.Function, picker ClassPicker) *Function {
	m := &Function{
		name:     f.Name(),
		irFunc:   f,
		regInfo:  newRegInfo(),
		valueOps: make(map[ir.Value]Operand),
	}
	for _, arg := range f.Args() {
		if arg.HasFlag(ir.FlagByVal) {
			m.args = append(m.args, nil)
			continue
		}
		id := m.regInfo.NewVirtualRegister(arg.Type(), picker.ClassForType(arg.Type()))
		m.args = append(m.args, NewRegister(id, picker.ClassForType(arg.Type()), 0))
	}
	return m
}

func (m *Function) Name() string             { return m.name }
func (m *Function) IRFunction() *ir.Function { return m.irFunc }
func (m *Function) Blocks() []*Block         { return m.blocks }
func (m *Function) Frame() *StackFrame       { return &m.frame }
func (m *Function) RegInfo() *RegInfo        { return m.regInfo }
func (m *Function) Args() []*Register        { return m.args }
func (m *Function) Arg(i int) *Register      { return m.args[i] }

func (m *Function) FrameSize() int64        { return m.frameSize }
func (m *Function) SetFrameSize(size int64) { m.frameSize = size }

// PrologueSize is the number of instructions at the top of the entry block
// that set up the frame; callee-save pushes are inserted after them.
func (m *Function) PrologueSize() int     { return m.prologue }
func (m *Function) SetPrologueSize(n int) { m.prologue = n }

func (m *Function) AddBlock(name string, irBlock *ir.Block) *Block {
	b := &Block{name: name, irBlock: irBlock, parent: m}
	m.blocks = append(m.blocks, b)
	return b
}

func (m *Function) Entry() *Block {
	if len(m.blocks) == 0 {
		return nil
	}
	return m.blocks[0]
}

// AddConstant appends data to the constant pool and returns its index.
func (m *Function) AddConstant(data []byte, align int) int {
	m.cpool = append(m.cpool, ConstantPoolEntry{Data: data, Align: align})
	return len(m.cpool) - 1
}

func (m *Function) ConstantPool() []ConstantPoolEntry { return m.cpool }

// SetValueOperand records the operand that holds an IR value.
func (m *Function) SetValueOperand(v ir.Value, op Operand) { m.valueOps[v] = op }

// ValueOperand returns the operand holding v, if selection produced one.
func (m *Function) ValueOperand(v ir.Value) (Operand, bool) {
	op, ok := m.valueOps[v]
	return op, ok
}

// AddFrameSizeImmediate registers a prologue operand to patch with the
// final frame size.
func (m *Function) AddFrameSizeImmediate(imm *ImmediateInt) { m.frameImms = append(m.frameImms, imm) }

// PatchFrameSize finalizes the frame layout and rewrites every registered
// prologue immediate.
func (m *Function) PatchFrameSize(stackAlign int) {
	m.frameSize = m.frame.Layout(stackAlign)
	for _, imm := range m.frameImms {
		imm.SetValue(m.frameSize)
	}
}

// RegisterCall records a call site for the save-registers pass.
func (m *Function) RegisterCall(inst *Instruction) { m.calls = append(m.calls, inst) }
func (m *Function) Calls() []*Instruction          { return m.calls }

// InstructionIndex is the function-wide index of inst in layout order.
func (m *Function) InstructionIndex(inst *Instruction) int {
	idx := 0
	for _, b := range m.blocks {
		pos := b.IndexOf(inst)
		if pos < 0 {
			idx += len(b.instrs)
			continue
		}
		return idx + pos
	}
	return idx
}

// Replace swaps every operand equal to old (ignoring flags) for with. When
// old carries width-forcing flags the replacement clones with and keeps
// them, so sub-register selection survives the rewrite.
func (m *Function) Replace(old, with Operand, copyFlags bool) {
	for _, b := range m.blocks {
		for _, inst := range b.instrs {
			for n, op := range inst.operands {
				if op == nil {
					continue
				}
				if mem, ok := op.(*Memory); ok {
					if mem.Base != nil && mem.Base.Equals(old, false) {
						mem.Base = with
					}
					if mem.Index != nil && mem.Index.Equals(old, false) {
						mem.Index = with
					}
					continue
				}
				if !op.Equals(old, false) {
					continue
				}
				if copyFlags && op.Flags() != 0 {
					inst.operands[n] = cloneWithFlags(with, op.Flags())
					continue
				}
				inst.operands[n] = with
			}
		}
	}
}

func cloneWithFlags(op Operand, flags uint32) Operand {
	switch o := op.(type) {
	case *Register:
		return NewRegister(o.id, o.class, flags)
	case *ImmediateInt:
		return &ImmediateInt{value: o.value, size: o.size, operandBase: operandBase{flags: flags}}
	case *GlobalAddress:
		return NewGlobalAddress(o.value, flags)
	case *ExternalSymbol:
		return NewExternalSymbol(o.name, flags)
	}
	return op
}
