package codegen

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// COFF relocatable-object writer for x86-64 Windows.
type COFFFormat struct{}

const (
	coffMachineAMD64 = 0x8664

	coffRelAMD64Addr64 = 0x0001
	coffRelAMD64Rel32  = 0x0004

	coffTextCharacteristics = 0x60000020 // code | execute | read
	coffDataCharacteristics = 0xC0000040 // initialized | read | write
)

func (COFFFormat) Write(out io.Writer, text, data []byte, symbols []Symbol, fixups []Fixup) error {
	strtab := &bytes.Buffer{}
	// the string table begins with its own 4-byte length
	binary.Write(strtab, binary.LittleEndian, uint32(4))

	symbolName := func(name string) [8]byte {
		var field [8]byte
		if len(name) <= 8 {
			copy(field[:], name)
			return field
		}
		offset := uint32(strtab.Len())
		strtab.WriteString(name)
		strtab.WriteByte(0)
		binary.LittleEndian.PutUint32(field[4:], offset)
		return field
	}

	symtab := &bytes.Buffer{}
	symIndex := make(map[string]uint32)
	next := uint32(0)
	writeSymbol := func(sym Symbol) {
		name := symbolName(sym.Name)
		symtab.Write(name[:])
		value := uint32(0)
		section := int16(0)
		if sym.Defined {
			value = uint32(sym.Offset)
			if sym.Section == SectionText {
				section = 1
			} else {
				section = 2
			}
		}
		binary.Write(symtab, binary.LittleEndian, value)
		binary.Write(symtab, binary.LittleEndian, section)
		binary.Write(symtab, binary.LittleEndian, uint16(0)) // type
		storage := byte(3)                                   // static
		if sym.Global || !sym.Defined {
			storage = 2 // external
		}
		symtab.WriteByte(storage)
		symtab.WriteByte(0) // aux count
		symIndex[sym.Name] = next
		next++
	}
	for _, sym := range symbols {
		writeSymbol(sym)
	}

	textRelocs := &bytes.Buffer{}
	relocCount := 0
	for _, fx := range fixups {
		if fx.Section != SectionText {
			return fmt.Errorf("coff: data-section fixups are not supported")
		}
		idx, ok := symIndex[fx.Symbol]
		if !ok {
			return fmt.Errorf("coff: relocation against unknown symbol %s", fx.Symbol)
		}
		typ := uint16(coffRelAMD64Rel32)
		if fx.Kind == RelocAbs64 {
			typ = coffRelAMD64Addr64
		}
		binary.Write(textRelocs, binary.LittleEndian, uint32(fx.Location))
		binary.Write(textRelocs, binary.LittleEndian, idx)
		binary.Write(textRelocs, binary.LittleEndian, typ)
		relocCount++
	}

	const fileHeaderSize = 20
	const sectionHeaderSize = 40
	textOffset := uint32(fileHeaderSize + 2*sectionHeaderSize)
	relocOffset := textOffset + uint32(len(text))
	dataOffset := relocOffset + uint32(textRelocs.Len())
	symtabOffset := dataOffset + uint32(len(data))

	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, uint16(coffMachineAMD64))
	binary.Write(buf, binary.LittleEndian, uint16(2)) // section count
	binary.Write(buf, binary.LittleEndian, uint32(0)) // timestamp
	binary.Write(buf, binary.LittleEndian, symtabOffset)
	binary.Write(buf, binary.LittleEndian, uint32(len(symbols)))
	binary.Write(buf, binary.LittleEndian, uint16(0)) // optional header
	binary.Write(buf, binary.LittleEndian, uint16(0)) // characteristics

	writeSectionHeader := func(name string, size, offset, relocs uint32, relocCount uint16, characteristics uint32) {
		var field [8]byte
		copy(field[:], name)
		buf.Write(field[:])
		binary.Write(buf, binary.LittleEndian, uint32(0)) // virtual size
		binary.Write(buf, binary.LittleEndian, uint32(0)) // virtual address
		binary.Write(buf, binary.LittleEndian, size)
		binary.Write(buf, binary.LittleEndian, offset)
		binary.Write(buf, binary.LittleEndian, relocs)
		binary.Write(buf, binary.LittleEndian, uint32(0)) // line numbers
		binary.Write(buf, binary.LittleEndian, relocCount)
		binary.Write(buf, binary.LittleEndian, uint16(0)) // line number count
		binary.Write(buf, binary.LittleEndian, characteristics)
	}
	writeSectionHeader(".text", uint32(len(text)), textOffset, relocOffset, uint16(relocCount), coffTextCharacteristics)
	writeSectionHeader(".data", uint32(len(data)), dataOffset, 0, 0, coffDataCharacteristics)

	buf.Write(text)
	buf.Write(textRelocs.Bytes())
	buf.Write(data)
	buf.Write(symtab.Bytes())
	// patch the final string-table length
	strBytes := strtab.Bytes()
	binary.LittleEndian.PutUint32(strBytes[0:], uint32(len(strBytes)))
	buf.Write(strBytes)

	_, err := out.Write(buf.Bytes())
	return err
}
