package pass

import (
	"sable/internal/ir"
	"sable/internal/mir"
)

// OptimizationLevel gates optional passes and instruction-selection
// patterns.
type OptimizationLevel int

const (
	O0 OptimizationLevel = iota
	O1
	O2
)

// Pass is the common surface of all pass kinds. Init runs once before the
// unit is traversed, End once after.
type Pass interface {
	Name() string
}

// Initializer and Finalizer are optional hooks on any pass kind.
type Initializer interface {
	Init(unit *ir.Unit)
}

type Finalizer interface {
	End(unit *ir.Unit)
}

// FunctionPass runs once per IR function with a body.
type FunctionPass interface {
	Pass
	RunOnFunction(f *ir.Function) bool
}

// MachineFunctionPass runs once per machine function.
type MachineFunctionPass interface {
	Pass
	RunOnMachineFunction(f *mir.Function) bool
}

// InstructionPass runs per IR instruction. When a run mutates the
// containing block's instruction list under the iteration, the pass
// signals a restart and the driver re-walks the block; TakeRestart returns
// and clears that flag.
type InstructionPass interface {
	Pass
	RunOnInstruction(inst *ir.Instruction) bool
	TakeRestart() bool
}

// MachineInstructionPass is the machine-level analogue.
type MachineInstructionPass interface {
	Pass
	RunOnMachineInstruction(inst *mir.Instruction) bool
	TakeRestart() bool
}
