// Package objfixture synthesizes minimal ELF64 object files carrying DWARF
// debug sections, for use by the test suites of elfobj and dwarfindex. It is
// the only place in this module that writes ELF or DWARF bytes rather than
// reading them.
package objfixture

import (
	"bytes"
	"encoding/binary"
)

const (
	ehdrSize = 64
	shdrSize = 64
	symSize  = 24
	relaSize = 24

	shtProgbits = 1
	shtSymtab   = 2
	shtStrtab   = 3
	shtRela     = 4

	// RX8664_32 and RX8664_64 mirror the x86-64 relocation type codes
	// elfobj understands.
	RX8664_32 = 10
	RX8664_64 = 1
)

// Symbol is one .symtab entry referenced by a relocation's symbol index.
type Symbol struct {
	Name  string
	Value uint64
}

// Reloc is one relocation entry against a named debug section.
type Reloc struct {
	Target string // section name the relocation applies to, e.g. ".debug_info"
	Offset uint64 // byte offset within that section
	Sym    int    // index into the Symbols slice passed to Build
	Type   uint32
	Addend int64
}

// Object describes the sections, symbols, and relocations of a synthetic
// ELF64 relocatable object file.
type Object struct {
	Abbrev, Info, Line, Str []byte
	Symbols                 []Symbol
	Relocs                  []Reloc
}

// Build assembles a complete ELF64 little-endian ET_REL file.
func (o Object) Build() []byte {
	names := []string{".debug_abbrev", ".debug_info", ".debug_line", ".debug_str"}
	payloads := [][]byte{o.Abbrev, o.Info, o.Line, o.Str}

	relaByTarget := map[string][]Reloc{}
	for _, r := range o.Relocs {
		relaByTarget[r.Target] = append(relaByTarget[r.Target], r)
	}

	shstr := &bytes.Buffer{}
	shstr.WriteByte(0)

	nameOff := map[string]uint32{}

	addName := func(n string) uint32 {
		off := uint32(shstr.Len())
		shstr.WriteString(n)
		shstr.WriteByte(0)

		return off
	}

	for _, n := range names {
		nameOff[n] = addName(n)
	}

	symtabName := ".symtab"
	strtabName := ".strtab"
	shstrtabName := ".shstrtab"

	nameOff[symtabName] = addName(symtabName)
	nameOff[strtabName] = addName(strtabName)

	var relaNames []string

	for _, n := range names {
		if _, ok := relaByTarget[n]; ok {
			rn := ".rela" + n
			relaNames = append(relaNames, rn)
			nameOff[rn] = addName(rn)
		}
	}

	nameOff[shstrtabName] = addName(shstrtabName)

	// .strtab content: symbol names.
	strtab := &bytes.Buffer{}
	strtab.WriteByte(0)

	symNameOff := make([]uint32, len(o.Symbols))
	for i, s := range o.Symbols {
		symNameOff[i] = uint32(strtab.Len())
		strtab.WriteString(s.Name)
		strtab.WriteByte(0)
	}

	// .symtab content: one null entry plus one per Symbol.
	symtab := &bytes.Buffer{}
	symtab.Write(make([]byte, symSize)) // STN_UNDEF

	for i, s := range o.Symbols {
		sym := make([]byte, symSize)
		binary.LittleEndian.PutUint32(sym[0:], symNameOff[i])
		sym[4] = 1 // STB_LOCAL<<4 | STT_OBJECT
		sym[5] = 0
		binary.LittleEndian.PutUint16(sym[6:], 1) // st_shndx, arbitrary non-zero
		binary.LittleEndian.PutUint64(sym[8:], s.Value)
		symtab.Write(sym)
	}

	cur := uint64(ehdrSize)

	off := make(map[string]uint64, len(names))
	size := make(map[string]uint64, len(names))

	for i, n := range names {
		off[n] = cur
		size[n] = uint64(len(payloads[i]))
		cur += size[n]
	}

	symtabOff := cur
	symtabSize := uint64(symtab.Len())
	cur += symtabSize

	strtabOff := cur
	strtabSize := uint64(strtab.Len())
	cur += strtabSize

	relaOff := map[string]uint64{}
	relaSz := map[string]uint64{}
	relaBuf := map[string]*bytes.Buffer{}

	for _, rn := range relaNames {
		target := rn[len(".rela"):]

		buf := &bytes.Buffer{}
		for _, r := range relaByTarget[target] {
			rec := make([]byte, relaSize)
			binary.LittleEndian.PutUint64(rec[0:], r.Offset)
			binary.LittleEndian.PutUint64(rec[8:], uint64(r.Sym+1)<<32|uint64(r.Type))
			binary.LittleEndian.PutUint64(rec[16:], uint64(r.Addend))
			buf.Write(rec)
		}

		relaBuf[rn] = buf
		relaOff[rn] = cur
		relaSz[rn] = uint64(buf.Len())
		cur += relaSz[rn]
	}

	shstrOff := cur
	shstrSz := uint64(shstr.Len())
	cur += shstrSz

	shoff := cur

	shnum := uint16(1 + len(names) + 2 + len(relaNames) + 1) // null + debug + symtab/strtab + relas + shstrtab
	symtabIdx := uint32(1 + len(names))

	file := &bytes.Buffer{}
	file.Grow(int(cur) + int(shdrSize)*int(shnum))

	ehdr := make([]byte, ehdrSize)
	ehdr[0], ehdr[1], ehdr[2], ehdr[3] = 0x7f, 'E', 'L', 'F'
	ehdr[4] = 2 // ELFCLASS64
	ehdr[5] = 1 // ELFDATA2LSB
	ehdr[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(ehdr[16:], 1)  // ET_REL
	binary.LittleEndian.PutUint16(ehdr[18:], 62) // EM_X86_64
	binary.LittleEndian.PutUint32(ehdr[20:], 1)
	binary.LittleEndian.PutUint64(ehdr[40:], shoff)
	binary.LittleEndian.PutUint16(ehdr[52:], ehdrSize)
	binary.LittleEndian.PutUint16(ehdr[58:], shdrSize)
	binary.LittleEndian.PutUint16(ehdr[60:], shnum)
	binary.LittleEndian.PutUint16(ehdr[62:], shnum-1) // shstrtab is last
	file.Write(ehdr)

	for _, p := range payloads {
		file.Write(p)
	}

	file.Write(symtab.Bytes())
	file.Write(strtab.Bytes())

	for _, rn := range relaNames {
		file.Write(relaBuf[rn].Bytes())
	}

	file.Write(shstr.Bytes())

	writeShdr := func(nm uint32, shtype uint32, off, size uint64, link, info uint32, entsize uint64) {
		sh := make([]byte, shdrSize)
		binary.LittleEndian.PutUint32(sh[0:], nm)
		binary.LittleEndian.PutUint32(sh[4:], shtype)
		binary.LittleEndian.PutUint64(sh[24:], off)
		binary.LittleEndian.PutUint64(sh[32:], size)
		binary.LittleEndian.PutUint32(sh[40:], link)
		binary.LittleEndian.PutUint32(sh[44:], info)
		binary.LittleEndian.PutUint64(sh[48:], 1)
		binary.LittleEndian.PutUint64(sh[56:], entsize)
		file.Write(sh)
	}

	file.Write(make([]byte, shdrSize)) // null section

	sectionIdx := map[string]uint32{}
	idx := uint32(1)

	for _, n := range names {
		writeShdr(nameOff[n], shtProgbits, off[n], size[n], 0, 0, 0)
		sectionIdx[n] = idx
		idx++
	}

	writeShdr(nameOff[symtabName], shtSymtab, symtabOff, symtabSize, symtabIdx+1, 1, symSize)
	idx++
	writeShdr(nameOff[strtabName], shtStrtab, strtabOff, strtabSize, 0, 0, 0)
	idx++

	for _, rn := range relaNames {
		target := rn[len(".rela"):]
		writeShdr(nameOff[rn], shtRela, relaOff[rn], relaSz[rn], symtabIdx, sectionIdx[target], relaSize)
		idx++
	}

	writeShdr(nameOff[shstrtabName], shtStrtab, shstrOff, shstrSz, 0, 0, 0)

	return file.Bytes()
}
