package codegen

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ELF64 relocatable-object writer for x86-64. Layout: header, section
// bodies, then the section header table.
type ELFFormat struct{}

const (
	elfSymLocal  = 0
	elfSymGlobal = 1

	elfSectionText = 1
	elfSectionData = 3

	rX8664_64      = 1
	rX8664PC32     = 2
	rX8664PLT32    = 4
	rX8664GOTPCRel = 9
)

type elfSection struct {
	name      string
	kind      uint32
	flags     uint64
	body      []byte
	link      uint32
	info      uint32
	align     uint64
	entrySize uint64
}

func (ELFFormat) Write(out io.Writer, text, data []byte, symbols []Symbol, fixups []Fixup) error {
	strtab := &bytes.Buffer{}
	strtab.WriteByte(0)
	strOffset := func(s string) uint32 {
		off := uint32(strtab.Len())
		strtab.WriteString(s)
		strtab.WriteByte(0)
		return off
	}

	// symtab: null, section symbols, locals, then globals
	symtab := &bytes.Buffer{}
	writeSym := func(name uint32, info byte, shndx uint16, value uint64) {
		binary.Write(symtab, binary.LittleEndian, name)
		symtab.WriteByte(info)
		symtab.WriteByte(0) // st_other
		binary.Write(symtab, binary.LittleEndian, shndx)
		binary.Write(symtab, binary.LittleEndian, value)
		binary.Write(symtab, binary.LittleEndian, uint64(0))
	}
	writeSym(0, 0, 0, 0)
	// section symbols for .text and .data
	writeSym(0, 3, elfSectionText, 0) // STT_SECTION
	writeSym(0, 3, elfSectionData, 0)

	symIndex := make(map[string]uint32)
	next := uint32(3)
	ordered := make([]Symbol, 0, len(symbols))
	for _, sym := range symbols {
		if !sym.Global {
			ordered = append(ordered, sym)
		}
	}
	firstGlobal := next + uint32(len(ordered))
	for _, sym := range symbols {
		if sym.Global {
			ordered = append(ordered, sym)
		}
	}
	for _, sym := range ordered {
		symIndex[sym.Name] = next
		next++
		bind := byte(elfSymLocal)
		if sym.Global {
			bind = elfSymGlobal
		}
		shndx := uint16(0)
		value := uint64(0)
		if sym.Defined {
			if sym.Section == SectionText {
				shndx = elfSectionText
			} else {
				shndx = elfSectionData
			}
			value = uint64(sym.Offset)
		}
		writeSym(strOffset(sym.Name), bind<<4, shndx, value)
	}

	rela := &bytes.Buffer{}
	for _, fx := range fixups {
		if fx.Section != SectionText {
			return fmt.Errorf("elf: data-section fixups are not supported")
		}
		idx, ok := symIndex[fx.Symbol]
		if !ok {
			return fmt.Errorf("elf: relocation against unknown symbol %s", fx.Symbol)
		}
		var typ uint32
		var addend int64
		switch fx.Kind {
		case RelocPC32:
			typ = rX8664PC32
			addend = fx.Addend - int64(fx.InstrSize)
		case RelocPLT32:
			typ = rX8664PLT32
			addend = fx.Addend - int64(fx.InstrSize)
		case RelocGOTPCRel:
			typ = rX8664GOTPCRel
			addend = fx.Addend - int64(fx.InstrSize)
		case RelocAbs64:
			typ = rX8664_64
			addend = fx.Addend
		}
		binary.Write(rela, binary.LittleEndian, uint64(fx.Location))
		binary.Write(rela, binary.LittleEndian, uint64(idx)<<32|uint64(typ))
		binary.Write(rela, binary.LittleEndian, addend)
	}

	sections := []elfSection{
		{},
		{name: ".text", kind: 1 /* PROGBITS */, flags: 0x6 /* ALLOC|EXEC */, body: text, align: 16},
		{name: ".rela.text", kind: 4 /* RELA */, body: rela.Bytes(), link: 5, info: elfSectionText, align: 8, entrySize: 24},
		{name: ".data", kind: 1, flags: 0x3 /* WRITE|ALLOC */, body: data, align: 8},
		{name: ".shstrtab", kind: 3 /* STRTAB */, align: 1},
		{name: ".symtab", kind: 2 /* SYMTAB */, body: symtab.Bytes(), link: 6, info: firstGlobal, align: 8, entrySize: 24},
		{name: ".strtab", kind: 3, body: strtab.Bytes(), align: 1},
	}

	shstrtab := &bytes.Buffer{}
	shstrtab.WriteByte(0)
	nameOffsets := make([]uint32, len(sections))
	for i := 1; i < len(sections); i++ {
		nameOffsets[i] = uint32(shstrtab.Len())
		shstrtab.WriteString(sections[i].name)
		shstrtab.WriteByte(0)
	}
	sections[4].body = shstrtab.Bytes()

	const headerSize = 64
	const sectionHeaderSize = 64

	// body offsets
	offsets := make([]uint64, len(sections))
	cursor := uint64(headerSize)
	for i := 1; i < len(sections); i++ {
		align := sections[i].align
		if align > 1 {
			cursor = (cursor + align - 1) &^ (align - 1)
		}
		offsets[i] = cursor
		cursor += uint64(len(sections[i].body))
	}
	shoff := (cursor + 7) &^ 7

	buf := &bytes.Buffer{}
	// e_ident
	buf.Write([]byte{0x7F, 'E', 'L', 'F', 2, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	binary.Write(buf, binary.LittleEndian, uint16(1))    // ET_REL
	binary.Write(buf, binary.LittleEndian, uint16(0x3E)) // EM_X86_64
	binary.Write(buf, binary.LittleEndian, uint32(1))    // EV_CURRENT
	binary.Write(buf, binary.LittleEndian, uint64(0))    // e_entry
	binary.Write(buf, binary.LittleEndian, uint64(0))    // e_phoff
	binary.Write(buf, binary.LittleEndian, shoff)
	binary.Write(buf, binary.LittleEndian, uint32(0))          // e_flags
	binary.Write(buf, binary.LittleEndian, uint16(headerSize)) // e_ehsize
	binary.Write(buf, binary.LittleEndian, uint16(0))          // e_phentsize
	binary.Write(buf, binary.LittleEndian, uint16(0))          // e_phnum
	binary.Write(buf, binary.LittleEndian, uint16(sectionHeaderSize))
	binary.Write(buf, binary.LittleEndian, uint16(len(sections)))
	binary.Write(buf, binary.LittleEndian, uint16(4)) // e_shstrndx

	for i := 1; i < len(sections); i++ {
		for uint64(buf.Len()) < offsets[i] {
			buf.WriteByte(0)
		}
		buf.Write(sections[i].body)
	}
	for uint64(buf.Len()) < shoff {
		buf.WriteByte(0)
	}

	for i, s := range sections {
		binary.Write(buf, binary.LittleEndian, nameOffsets[i])
		binary.Write(buf, binary.LittleEndian, s.kind)
		binary.Write(buf, binary.LittleEndian, s.flags)
		binary.Write(buf, binary.LittleEndian, uint64(0)) // sh_addr
		if i == 0 {
			binary.Write(buf, binary.LittleEndian, uint64(0))
		} else {
			binary.Write(buf, binary.LittleEndian, offsets[i])
		}
		binary.Write(buf, binary.LittleEndian, uint64(len(s.body)))
		binary.Write(buf, binary.LittleEndian, s.link)
		binary.Write(buf, binary.LittleEndian, s.info)
		binary.Write(buf, binary.LittleEndian, s.align)
		binary.Write(buf, binary.LittleEndian, s.entrySize)
	}

	_, err := out.Write(buf.Bytes())
	return err
}
