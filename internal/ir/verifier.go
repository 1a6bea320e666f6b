package ir

import "fmt"

// DiagnosticSink receives verifier findings. The verifier only reports; it
// never aborts, so one run surfaces every violation at once.
type DiagnosticSink interface {
	Errorf(code string, format string, args ...any)
}

// Verifier checks the structural and typing invariants of the IR after
// each pass: ownership, use-def symmetry, single terminators, per-opcode
// operand counts and type rules.
type Verifier struct {
	sink DiagnosticSink
}

func NewVerifier(sink DiagnosticSink) *Verifier { return &Verifier{sink: sink} }

func (Verifier) Name() string { return "verify" }

func (v *Verifier) RunOnFunction(f *Function) bool {
	for _, arg := range f.Args() {
		if IsScalar(arg.Type()) || arg.HasFlag(FlagByVal) {
			continue
		}
		v.sink.Errorf("V0001", "function %s has unsupported parameter type %s", f.Name(), arg.Type())
	}
	for _, b := range f.Blocks() {
		v.verifyBlock(f, b)
	}
	return false
}

func (v *Verifier) verifyBlock(f *Function, b *Block) {
	if len(b.Instructions()) == 0 {
		v.sink.Errorf("V0002", "block %s has no instructions", b.Name())
		return
	}
	if b.Terminator() == nil {
		v.sink.Errorf("V0003", "block %s has no terminator", b.Name())
	}
	for i, inst := range b.Instructions() {
		if inst.IsTerminator() && i != len(b.Instructions())-1 {
			v.sink.Errorf("V0004", "block %s has a terminator before its last position", b.Name())
		}
		v.verifyInstruction(f, inst)
	}
}

func (v *Verifier) verifyInstruction(f *Function, inst *Instruction) {
	for i, operand := range inst.Operands() {
		if def, ok := operand.(*Instruction); ok {
			if def.Parent() == nil || def.Parent().Parent() != f {
				v.sink.Errorf("V0010", "%s operand %d is defined in a different function", v.describe(inst), i)
			}
		}
		if !containsUse(operand.Uses(), inst) {
			v.sink.Errorf("V0011", "%s uses operand %d but is missing from its use list", v.describe(inst), i)
		}
	}

	wantOperands := func(n int) bool {
		if inst.NumOperands() != n {
			v.sink.Errorf("V0020", "%s has unexpected operand count %d", v.describe(inst), inst.NumOperands())
			return false
		}
		return true
	}

	op := inst.Opcode()
	switch {
	case op == OpRet:
		if inst.NumOperands() == 0 {
			break
		}
		if !wantOperands(1) {
			break
		}
		if inst.Operand(0).Type() != f.FuncType().Return() {
			v.sink.Errorf("V0021", "%s returns a mismatched type", v.describe(inst))
		}
	case op == OpLoad:
		if !wantOperands(1) {
			break
		}
		ptr, ok := inst.Operand(0).Type().(*PointerType)
		if !ok {
			v.sink.Errorf("V0022", "%s does not load through a pointer", v.describe(inst))
			break
		}
		if ptr.Pointee() != inst.Type() {
			v.sink.Errorf("V0023", "%s result type does not match the pointee", v.describe(inst))
		}
	case op == OpStore:
		if !wantOperands(2) {
			break
		}
		ptr, ok := inst.Operand(0).Type().(*PointerType)
		if !ok {
			v.sink.Errorf("V0024", "%s does not store through a pointer", v.describe(inst))
			break
		}
		if ptr.Pointee() != inst.Operand(1).Type() {
			v.sink.Errorf("V0025", "%s stores a mismatched type", v.describe(inst))
		}
	case op.IsCompare():
		if !wantOperands(2) {
			break
		}
		if inst.Operand(0).Type() != inst.Operand(1).Type() {
			v.sink.Errorf("V0026", "%s compares mismatched types", v.describe(inst))
		}
		if it, ok := inst.Type().(*IntegerType); !ok || it.Bits() != 1 {
			v.sink.Errorf("V0027", "%s result is not i1", v.describe(inst))
		}
		isFloat := op >= OpFCmpEq && op <= OpFCmpLe
		if isFloat != IsFloat(inst.Operand(0).Type()) && !IsPointer(inst.Operand(0).Type()) {
			v.sink.Errorf("V0028", "%s operand kind does not match the compare family", v.describe(inst))
		}
	case op.IsBinary():
		if !wantOperands(2) {
			break
		}
		lhs, rhs := inst.Operand(0).Type(), inst.Operand(1).Type()
		if lhs != rhs {
			v.sink.Errorf("V0029", "%s has mismatched operand types", v.describe(inst))
		}
		floatOp := op == OpFMul || op == OpFDiv
		intOnly := op == OpAnd || op == OpOr || op == OpXor || op == OpShiftLeft ||
			op == OpLShiftRight || op == OpAShiftRight || op == OpIRem || op == OpURem ||
			op == OpIMul || op == OpUMul || op == OpIDiv || op == OpUDiv
		switch {
		case floatOp && !IsFloat(lhs):
			v.sink.Errorf("V0030", "%s requires float operands", v.describe(inst))
		case intOnly && !floatOp && !IsInt(lhs):
			v.sink.Errorf("V0031", "%s requires integer operands", v.describe(inst))
		case !intOnly && !floatOp && !IsInt(lhs) && !IsFloat(lhs):
			v.sink.Errorf("V0032", "%s has unsupported operand types", v.describe(inst))
		}
	case op == OpPhi:
		if inst.NumOperands() == 0 || inst.NumOperands()%2 != 0 {
			v.sink.Errorf("V0040", "%s has odd arity", v.describe(inst))
			break
		}
		seen := make(map[*Block]bool)
		for idx := 0; idx < inst.NumOperands(); idx += 2 {
			val := inst.Operand(idx)
			blockOperand, ok := inst.Operand(idx + 1).(*Block)
			if !ok {
				v.sink.Errorf("V0041", "%s incoming %d is not a block", v.describe(inst), idx/2)
				continue
			}
			if val.Type() != inst.Type() {
				v.sink.Errorf("V0042", "%s incoming %d has a mismatched type", v.describe(inst), idx/2)
			}
			if seen[blockOperand] {
				v.sink.Errorf("V0043", "%s names incoming block %s twice", v.describe(inst), blockOperand.Name())
			}
			seen[blockOperand] = true
			if _, isPred := inst.Parent().Predecessors()[blockOperand]; !isPred {
				v.sink.Errorf("V0044", "%s incoming block %s is not a predecessor", v.describe(inst), blockOperand.Name())
			}
		}
	case op == OpGetElementPtr:
		v.verifyGEP(inst)
	case op == OpCall:
		v.verifyCall(inst)
	case op == OpZext || op == OpSext:
		if !wantOperands(1) {
			break
		}
		from, okFrom := inst.Operand(0).Type().(*IntegerType)
		to, okTo := inst.Type().(*IntegerType)
		if !okFrom || !okTo || from.Bits() >= to.Bits() {
			v.sink.Errorf("V0050", "%s must strictly widen an integer", v.describe(inst))
		}
	case op == OpTrunc:
		if !wantOperands(1) {
			break
		}
		from, okFrom := inst.Operand(0).Type().(*IntegerType)
		to, okTo := inst.Type().(*IntegerType)
		if !okFrom || !okTo || from.Bits() <= to.Bits() {
			v.sink.Errorf("V0051", "%s must strictly narrow an integer", v.describe(inst))
		}
	case op == OpFptrunc:
		if !wantOperands(1) {
			break
		}
		from, okFrom := inst.Operand(0).Type().(*FloatType)
		to, okTo := inst.Type().(*FloatType)
		if !okFrom || !okTo || from.Bits() <= to.Bits() {
			v.sink.Errorf("V0052", "%s must strictly narrow a float", v.describe(inst))
		}
	case op == OpFpext:
		if !wantOperands(1) {
			break
		}
		from, okFrom := inst.Operand(0).Type().(*FloatType)
		to, okTo := inst.Type().(*FloatType)
		if !okFrom || !okTo || from.Bits() >= to.Bits() {
			v.sink.Errorf("V0053", "%s must strictly widen a float", v.describe(inst))
		}
	case op == OpFptosi || op == OpFptoui:
		if !wantOperands(1) {
			break
		}
		if !IsFloat(inst.Operand(0).Type()) || !IsInt(inst.Type()) {
			v.sink.Errorf("V0054", "%s must convert float to integer", v.describe(inst))
		}
	case op == OpSitofp || op == OpUitofp:
		if !wantOperands(1) {
			break
		}
		if !IsInt(inst.Operand(0).Type()) || !IsFloat(inst.Type()) {
			v.sink.Errorf("V0055", "%s must convert integer to float", v.describe(inst))
		}
	case op == OpPtrtoint:
		if !wantOperands(1) {
			break
		}
		if !IsPointer(inst.Operand(0).Type()) || !IsInt(inst.Type()) {
			v.sink.Errorf("V0056", "%s must convert pointer to integer", v.describe(inst))
		}
	case op == OpInttoptr:
		if !wantOperands(1) {
			break
		}
		if !IsInt(inst.Operand(0).Type()) || !IsPointer(inst.Type()) {
			v.sink.Errorf("V0057", "%s must convert integer to pointer", v.describe(inst))
		}
	case op == OpJump:
		if inst.NumOperands() != 1 && inst.NumOperands() != 3 {
			v.sink.Errorf("V0060", "%s has unexpected operand count", v.describe(inst))
			break
		}
		for idx := 0; idx < inst.NumOperands() && idx < 2; idx++ {
			if _, ok := inst.Operand(idx).(*Block); !ok {
				v.sink.Errorf("V0061", "%s target %d is not a block", v.describe(inst), idx)
			}
		}
		if inst.NumOperands() == 3 {
			if it, ok := inst.Operand(2).Type().(*IntegerType); !ok || it.Bits() != 1 {
				v.sink.Errorf("V0062", "%s condition is not i1", v.describe(inst))
			}
		}
	}
}

func (v *Verifier) verifyGEP(inst *Instruction) {
	if inst.NumOperands() < 2 {
		v.sink.Errorf("V0070", "%s needs a base and at least one index", v.describe(inst))
		return
	}
	base := inst.Operand(0)
	if !IsPointer(base.Type()) && !IsArray(base.Type()) {
		v.sink.Errorf("V0071", "%s base is not a pointer or array", v.describe(inst))
		return
	}
	current := base.Type()
	for _, index := range inst.Operands()[1:] {
		if !IsInt(index.Type()) {
			v.sink.Errorf("V0072", "%s has a non-integer index", v.describe(inst))
			return
		}
		contained := current.Contained()
		if len(contained) == 0 {
			v.sink.Errorf("V0073", "%s walks past a leaf type", v.describe(inst))
			return
		}
		if c, ok := index.(*ConstantInt); ok && !IsPointer(current) && !IsArray(current) {
			if int(c.Value()) >= len(contained) {
				v.sink.Errorf("V0074", "%s selects field %d out of range", v.describe(inst), c.Value())
				return
			}
			current = contained[c.Value()]
		} else {
			current = contained[0]
		}
	}
	want, ok := inst.Type().(*PointerType)
	if !ok || want.Pointee() != current {
		v.sink.Errorf("V0075", "%s declared result does not match the walked type", v.describe(inst))
	}
}

func (v *Verifier) verifyCall(inst *Instruction) {
	calleeType, ok := inst.Callee().Type().(*PointerType)
	if !ok {
		v.sink.Errorf("V0080", "%s callee is not a function pointer", v.describe(inst))
		return
	}
	funcType, ok := calleeType.Pointee().(*FunctionType)
	if !ok {
		v.sink.Errorf("V0080", "%s callee is not a function pointer", v.describe(inst))
		return
	}
	args := inst.CallArgs()
	params := funcType.Params()
	if len(args) < len(params) || (!funcType.IsVarArg() && len(args) != len(params)) {
		v.sink.Errorf("V0081", "%s passes %d arguments to a %d-parameter function", v.describe(inst), len(args), len(params))
		return
	}
	for i, param := range params {
		if args[i].Type() != param {
			v.sink.Errorf("V0082", "%s argument %d has a mismatched type", v.describe(inst), i)
		}
	}
}

func (v *Verifier) describe(inst *Instruction) string {
	if inst.Name() != "" {
		return fmt.Sprintf("%s %%%s", inst.Opcode(), inst.Name())
	}
	return inst.Opcode().String()
}

func containsUse(uses []*Instruction, user *Instruction) bool {
	for _, u := range uses {
		if u == user {
			return true
		}
	}
	return false
}
