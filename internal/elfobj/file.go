package elfobj

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/orizon-lang/dwarfidx/internal/direrr"
)

// File is one mmap'd ELF64 object file and its discovered DWARF sections.
type File struct {
	Path string
	data []byte

	Abbrev Section
	Info   Section
	Line   Section
	Str    Section
	Symtab Section

	relAbbrev relaSet
	relInfo   relaSet
	relLine   relaSet
	relStr    relaSet

	// Skip reports that one or more required sections were absent; such
	// files are silently excluded from indexing (matches Add's documented
	// silent-skip behavior for files without debug info).
	Skip bool
}

type relaSet struct {
	present bool
	offset  uint64
	size    uint64
}

// Data returns the file's full mmap'd byte slice (for relocation and for
// computing DIE pointer offsets).
func (f *File) Data() []byte { return f.data }

// Close unmaps the file's backing memory.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}

	data := f.data
	f.data = nil

	return unix.Munmap(data)
}

// Load mmaps path read-write (MAP_PRIVATE, so writes never reach disk) and
// discovers its ELF64 section layout.
func Load(path string) (*File, error) {
	fh, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, direrr.WithPath(direrr.KindElfFormat, "OPEN", err.Error(), path)
	}
	defer fh.Close()

	st, err := fh.Stat()
	if err != nil {
		return nil, direrr.WithPath(direrr.KindElfFormat, "STAT", err.Error(), path)
	}

	size := st.Size()
	if size == 0 {
		return nil, direrr.WithPath(direrr.KindElfFormat, "EMPTY", "empty file", path)
	}

	data, err := unix.Mmap(int(fh.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE)
	if err != nil {
		return nil, direrr.WithPath(direrr.KindElfFormat, "MMAP", err.Error(), path)
	}

	f := &File{Path: path, data: data}

	if err := f.parse(); err != nil {
		_ = unix.Munmap(data)
		f.data = nil

		return nil, err
	}

	return f, nil
}

func (f *File) fail(code, detail string) error {
	return direrr.WithPath(direrr.KindElfFormat, code, detail, f.Path)
}

func (f *File) parse() error {
	if len(f.data) < ehdrSize {
		return f.fail("SHORT_EHDR", "file too short for an ELF64 header")
	}

	if f.data[0] != eiMag0 || f.data[1] != eiMag1 || f.data[2] != eiMag2 || f.data[3] != eiMag3 {
		return f.fail("BAD_MAGIC", "not an ELF file")
	}

	if f.data[4] != eiClass64 {
		return direrr.NotImplemented("only 64-bit ELF is supported")
	}

	if f.data[5] != eiDataLSB {
		return direrr.NotImplemented("only little-endian ELF is supported")
	}

	if f.data[6] != evCurrent {
		return f.fail("BAD_VERSION", "unsupported e_ident[EI_VERSION]")
	}

	shoff := binary.LittleEndian.Uint64(f.data[0x28:])
	shentsize := binary.LittleEndian.Uint16(f.data[0x3a:])
	shnum := binary.LittleEndian.Uint16(f.data[0x3c:])
	shstrndx := binary.LittleEndian.Uint16(f.data[0x3e:])

	if shnum == 0 {
		return f.fail("NO_SECTIONS", "e_shnum is zero")
	}

	if shentsize != shdrSize {
		return f.fail("BAD_SHENTSIZE", "unexpected section header entry size")
	}

	tableEnd := shoff + uint64(shnum)*uint64(shentsize)
	if tableEnd > uint64(len(f.data)) || shoff > tableEnd {
		return f.fail("SHORT_SHDR_TABLE", "section header table exceeds file size")
	}

	if int(shstrndx) >= int(shnum) {
		return f.fail("BAD_SHSTRNDX", "e_shstrndx out of range")
	}

	type rawShdr struct {
		name      uint32
		shType    uint32
		offset    uint64
		size      uint64
		link      uint32
		info      uint32
	}

	hdrs := make([]rawShdr, shnum)

	for i := range hdrs {
		b := f.data[shoff+uint64(i)*uint64(shentsize):]
		hdrs[i] = rawShdr{
			name:   binary.LittleEndian.Uint32(b[0:]),
			shType: binary.LittleEndian.Uint32(b[4:]),
			offset: binary.LittleEndian.Uint64(b[24:]),
			size:   binary.LittleEndian.Uint64(b[32:]),
			link:   binary.LittleEndian.Uint32(b[40:]),
			info:   binary.LittleEndian.Uint32(b[44:]),
		}
	}

	shstrtab := hdrs[shstrndx]
	if shstrtab.offset+shstrtab.size > uint64(len(f.data)) {
		return f.fail("SHORT_SHSTRTAB", "section header string table exceeds file size")
	}

	name := func(off uint32) (string, error) {
		start := shstrtab.offset + uint64(off)
		if start >= shstrtab.offset+shstrtab.size {
			return "", f.fail("BAD_SHNAME", "section name offset out of range")
		}

		end := start
		for end < shstrtab.offset+shstrtab.size && f.data[end] != 0 {
			end++
		}

		return string(f.data[start:end]), nil
	}

	var symtabIdx = -1

	sectionByIdx := map[int]Section{}

	for i, h := range hdrs {
		if h.offset+h.size > uint64(len(f.data)) {
			return f.fail("SHORT_SECTION", fmt.Sprintf("section %d exceeds file size", i))
		}

		nm, err := name(h.name)
		if err != nil {
			return err
		}

		sectionByIdx[i] = Section{Name: nm, Offset: h.offset, Size: h.size}

		switch h.shType {
		case shtProgbits:
			switch nm {
			case secAbbrev:
				f.Abbrev = sectionByIdx[i]
			case secInfo:
				f.Info = sectionByIdx[i]
			case secLine:
				f.Line = sectionByIdx[i]
			case secStr:
				f.Str = sectionByIdx[i]
			}
		case shtSymtab:
			f.Symtab = sectionByIdx[i]
			symtabIdx = i
		}
	}

	if f.Abbrev.Size == 0 || f.Info.Size == 0 || f.Line.Size == 0 || f.Str.Size == 0 || symtabIdx < 0 {
		f.Skip = true

		return nil
	}

	for i, h := range hdrs {
		if h.shType != shtRela {
			continue
		}

		if int(h.link) != symtabIdx {
			continue
		}

		target, ok := sectionByIdx[int(h.info)]
		if !ok {
			continue
		}

		rs := relaSet{present: true, offset: h.offset, size: h.size}

		switch target.Offset {
		case f.Abbrev.Offset:
			f.relAbbrev = rs
		case f.Info.Offset:
			f.relInfo = rs
		case f.Line.Offset:
			f.relLine = rs
		case f.Str.Offset:
			f.relStr = rs
		}
	}

	return nil
}
