package pass

import (
	"fmt"

	"github.com/tliron/commonlog"

	"sable/internal/ir"
	"sable/internal/mir"
)

// Group is a run of passes executed in order; a repeating group is rerun
// until no pass in it reports a change.
type Group struct {
	Passes []Pass
	Repeat bool
}

// Manager drives pass groups over a unit.
type Manager struct {
	groups []Group
	log    commonlog.Logger
}

func NewManager() *Manager {
	return &Manager{log: commonlog.GetLogger("sable.pass")}
}

// AddRun appends a group. Repeat groups iterate to fixpoint.
func (m *Manager) AddRun(passes []Pass, repeat bool) {
	m.groups = append(m.groups, Group{Passes: passes, Repeat: repeat})
}

// Run executes every group in order. An error from a pass aborts the
// compile; those are target-description or internal bugs, not user input
// problems.
func (m *Manager) Run(unit *ir.Unit) error {
	for i := 0; i < len(m.groups); {
		group := m.groups[i]
		anyChange := false
		for _, p := range group.Passes {
			m.log.Debugf("running pass %s", p.Name())
			changed, err := m.runPass(p, unit)
			if err != nil {
				return fmt.Errorf("pass %s: %w", p.Name(), err)
			}
			anyChange = anyChange || changed
		}
		if anyChange && group.Repeat {
			continue
		}
		i++
	}
	return nil
}

func (m *Manager) runPass(p Pass, unit *ir.Unit) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	if init, ok := p.(Initializer); ok {
		init.Init(unit)
	}

	switch pass := p.(type) {
	case FunctionPass:
		for _, f := range unit.Functions() {
			if !f.HasBody() {
				continue
			}
			changed = pass.RunOnFunction(f) || changed
		}
	case MachineFunctionPass:
		for _, f := range unit.Functions() {
			if !f.HasBody() {
				continue
			}
			machine, ok := f.Machine().(*mir.Function)
			if !ok {
				return false, fmt.Errorf("function %s has no machine function", f.Name())
			}
			changed = pass.RunOnMachineFunction(machine) || changed
		}
	case InstructionPass:
		for _, f := range unit.Functions() {
			if !f.HasBody() {
				continue
			}
			for _, b := range f.Blocks() {
				for restart := true; restart; {
					restart = false
					for _, inst := range b.Instructions() {
						changed = pass.RunOnInstruction(inst) || changed
						if pass.TakeRestart() {
							restart = true
							break
						}
					}
				}
			}
		}
	case MachineInstructionPass:
		for _, f := range unit.Functions() {
			if !f.HasBody() {
				continue
			}
			machine, ok := f.Machine().(*mir.Function)
			if !ok {
				return false, fmt.Errorf("function %s has no machine function", f.Name())
			}
			for _, b := range machine.Blocks() {
				for restart := true; restart; {
					restart = false
					for _, inst := range b.Instructions() {
						changed = pass.RunOnMachineInstruction(inst) || changed
						if pass.TakeRestart() {
							restart = true
							break
						}
					}
				}
			}
		}
	default:
		return false, fmt.Errorf("unknown pass kind %T", p)
	}

	if fin, ok := p.(Finalizer); ok {
		fin.End(unit)
	}
	return changed, nil
}
