package target

import (
	"io"

	"sable/internal/ir"
	"sable/internal/isel"
	"sable/internal/mir"
	"sable/internal/pass"
)

// OS selects object format and calling convention defaults.
type OS int

const (
	Linux OS = iota
	Windows
)

// Arch names the instruction set.
type Arch int

const (
	X8664 Arch = iota
	AArch64
)

// Spec is the target triple the machine was constructed for.
type Spec struct {
	Arch Arch
	OS   OS
}

// DefaultCallConv picks the ABI a function without an explicit calling
// convention uses on this target.
func (s Spec) DefaultCallConv() ir.CallingConvention {
	switch s.Arch {
	case AArch64:
		return ir.CallConvAAPCS
	default:
		if s.OS == Windows {
			return ir.CallConvWin64
		}
		return ir.CallConvX64SysV
	}
}

// FileType selects the emission format.
type FileType int

const (
	AssemblyFile FileType = iota
	ObjectFile
)

// RegisterInfo is the static register table of a target: names, classes,
// size aliases, and the ABI's saved sets. It also satisfies
// mir.RegisterAliases.
type RegisterInfo interface {
	mir.RegisterAliases

	// Register returns the canonical operand for a physical register id.
	Register(id uint32) *mir.Register
	// RegisterWithFlags returns a flagged copy.
	RegisterWithFlags(id uint32, flags uint32) *mir.Register
	// Name renders id for the assembly printer.
	Name(id uint32) string
	// AvailableRegisters lists the allocatable registers of a class, in
	// allocation preference order.
	AvailableRegisters(c mir.RegClass) []uint32
	CallerSaved() []uint32
	CalleeSaved() []uint32
	// RegisterWithSize maps id to its alias of the given byte width.
	RegisterWithSize(id uint32, size int) (uint32, bool)
	// ClassForType picks the register class holding values of t.
	ClassForType(t ir.Type) mir.RegClass
}

// Restriction constrains one operand position of an instruction.
type Restriction struct {
	// Assigned marks a pure definition: the operand is written without
	// being read, so a new live range starts here.
	Assigned bool
}

// InstructionDescriptor is the static shape of one opcode.
type InstructionDescriptor struct {
	Name         string
	MayLoad      bool
	MayStore     bool
	Restrictions []Restriction
	// Clobbers are physical registers the instruction defines implicitly.
	Clobbers []uint32
	// IsReturn / IsBranch classify terminators for block scanning.
	IsReturn bool
	IsBranch bool
}

func (d *InstructionDescriptor) Restriction(i int) Restriction {
	if i < len(d.Restrictions) {
		return d.Restrictions[i]
	}
	return Restriction{}
}

// InstructionInfo is a target's opcode table plus its selection patterns.
type InstructionInfo interface {
	Descriptor(opcode uint32) InstructionDescriptor
	Patterns(kind isel.NodeKind) []isel.Pattern
}

// Machine bundles a target: its tables, data layout, and the pass pipeline
// it contributes for a compilation at a given optimisation level.
type Machine interface {
	Spec() Spec
	RegisterInfo() RegisterInfo
	InstructionInfo() InstructionInfo
	DataLayout() ir.DataLayout
	// AddPassesForCodeGeneration fills the manager with the full pipeline
	// writing the chosen file type to out.
	AddPassesForCodeGeneration(m *pass.Manager, out io.Writer, fileType FileType, level pass.OptimizationLevel) error
}
