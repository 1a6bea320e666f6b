package codegen

import (
	"encoding/binary"
	"fmt"
	"io"

	"sable/internal/ir"
	"sable/internal/mir"
)

// Encoder turns one machine instruction into bytes. Block-label and
// symbol references are reported through the sink; the emitter resolves
// what it can and hands the rest to the object writer as relocations.
type Encoder interface {
	// Encode appends inst's bytes to text and reports fixups against the
	// given function-local block offsets once they are known.
	Encode(e *ObjectEmitter, f *mir.Function, inst *mir.Instruction) error
}

// ObjectFormat writes the final relocatable object.
type ObjectFormat interface {
	Write(out io.Writer, text, data []byte, symbols []Symbol, fixups []Fixup) error
}

// ObjectEmitter drives the encoder over every machine function, builds
// the symbol table across blocks, patches intra-section PC-relative
// references in place, and hands the remainder to the format writer.
type ObjectEmitter struct {
	out     io.Writer
	encoder Encoder
	format  ObjectFormat

	text    []byte
	data    []byte
	symbols []Symbol
	symIdx  map[string]int
	fixups  []Fixup

	// blockFixups reference function-local labels; always resolved in
	// place once the function is fully encoded.
	blockFixups  []Fixup
	blockOffsets map[string]int
}

func NewObjectEmitter(out io.Writer, encoder Encoder, format ObjectFormat) *ObjectEmitter {
	return &ObjectEmitter{
		out:     out,
		encoder: encoder,
		format:  format,
		symIdx:  make(map[string]int),
	}
}

func (ObjectEmitter) Name() string { return "objemit" }

// Text exposes the text buffer to the encoder.
func (e *ObjectEmitter) Text() []byte { return e.text }

func (e *ObjectEmitter) AppendText(b ...byte) { e.text = append(e.text, b...) }

// AddFixup records a symbol reference at the current encoding position.
func (e *ObjectEmitter) AddFixup(fx Fixup) { e.fixups = append(e.fixups, fx) }

// AddBlockFixup records a function-local label reference.
func (e *ObjectEmitter) AddBlockFixup(fx Fixup) { e.blockFixups = append(e.blockFixups, fx) }

func (e *ObjectEmitter) defineSymbol(sym Symbol) {
	if idx, ok := e.symIdx[sym.Name]; ok {
		e.symbols[idx] = sym
		return
	}
	e.symIdx[sym.Name] = len(e.symbols)
	e.symbols = append(e.symbols, sym)
}

// EnsureExternal declares an undefined symbol if nothing defined it.
func (e *ObjectEmitter) EnsureExternal(name string) {
	if _, ok := e.symIdx[name]; ok {
		return
	}
	e.symIdx[name] = len(e.symbols)
	e.symbols = append(e.symbols, Symbol{Name: name, Global: true})
}

// PoolSymbol names a function's constant-pool entry in the data section.
func PoolSymbol(f *mir.Function, idx int) string {
	return fmt.Sprintf(".LCPI_%s_%d", f.Name(), idx)
}

func (e *ObjectEmitter) Init(unit *ir.Unit) {
	for _, g := range unit.Globals() {
		e.defineSymbol(Symbol{
			Name:    g.Name(),
			Section: SectionData,
			Offset:  len(e.data),
			Global:  g.Linkage() == ir.LinkageExternal,
			Defined: true,
		})
		e.emitGlobalData(g)
	}
}

func (e *ObjectEmitter) emitGlobalData(g *ir.GlobalVariable) {
	switch init := g.Initializer().(type) {
	case *ir.ConstantString:
		e.data = append(e.data, init.Value()...)
	case *ir.ConstantInt:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(init.Value()))
		size := sizeOfGlobal(g)
		e.data = append(e.data, buf[:size]...)
	default:
		e.data = append(e.data, make([]byte, sizeOfGlobal(g))...)
	}
}

func sizeOfGlobal(g *ir.GlobalVariable) int {
	switch t := g.ValueType().(type) {
	case *ir.IntegerType:
		return max(1, t.Bits()/8)
	case *ir.FloatType:
		return t.Bits() / 8
	case *ir.ArrayType:
		if s, ok := g.Initializer().(*ir.ConstantString); ok {
			return len(s.Value())
		}
		return t.Count()
	}
	return 8
}

func (e *ObjectEmitter) RunOnMachineFunction(f *mir.Function) bool {
	e.defineSymbol(Symbol{
		Name:    f.Name(),
		Section: SectionText,
		Offset:  len(e.text),
		Global:  f.IRFunction().Linkage() == ir.LinkageExternal,
		Defined: true,
	})

	for i, entry := range f.ConstantPool() {
		for len(e.data)%max(1, entry.Align) != 0 {
			e.data = append(e.data, 0)
		}
		e.defineSymbol(Symbol{
			Name:    PoolSymbol(f, i),
			Section: SectionData,
			Offset:  len(e.data),
			Defined: true,
		})
		e.data = append(e.data, entry.Data...)
	}

	e.blockFixups = nil
	e.blockOffsets = make(map[string]int)

	for _, b := range f.Blocks() {
		e.blockOffsets[b.Name()] = len(e.text)
		for _, inst := range b.Instructions() {
			if err := e.encoder.Encode(e, f, inst); err != nil {
				panic(fmt.Sprintf("encode %s: %v", f.Name(), err))
			}
		}
	}

	// branches to labels of this function always resolve in place
	for _, fx := range e.blockFixups {
		targetOffset, ok := e.blockOffsets[fx.Symbol]
		if !ok {
			panic(fmt.Sprintf("encode %s: unknown block label %s", f.Name(), fx.Symbol))
		}
		rel := int32(int64(targetOffset) - int64(fx.Location) - int64(fx.InstrSize) + fx.Addend)
		binary.LittleEndian.PutUint32(e.text[fx.Location:], uint32(rel))
	}
	return false
}

func (e *ObjectEmitter) End(unit *ir.Unit) {
	// same-section PC-relative references to defined symbols patch in
	// place; the rest go to the writer as relocations
	var relocations []Fixup
	for _, fx := range e.fixups {
		idx, known := e.symIdx[fx.Symbol]
		if known && e.symbols[idx].Defined &&
			fx.Kind == RelocPC32 && fx.Section == SectionText && e.symbols[idx].Section == SectionText {
			rel := int32(int64(e.symbols[idx].Offset) - int64(fx.Location) - int64(fx.InstrSize) + fx.Addend)
			binary.LittleEndian.PutUint32(e.text[fx.Location:], uint32(rel))
			continue
		}
		if !known {
			e.EnsureExternal(fx.Symbol)
		}
		relocations = append(relocations, fx)
	}

	if err := e.format.Write(e.out, e.text, e.data, e.symbols, relocations); err != nil {
		panic(fmt.Sprintf("write object: %v", err))
	}
}
