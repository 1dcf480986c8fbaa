// Package dwarfindex builds a parallel, name-keyed index over the
// compilation units and debugging information entries found in a set of
// ELF64 object files' DWARF sections.
package dwarfindex

import (
	"github.com/orizon-lang/dwarfidx/internal/binary"
	"github.com/orizon-lang/dwarfidx/internal/direrr"
	"github.com/orizon-lang/dwarfidx/internal/elfobj"
)

// compilationUnit describes one CU's header and body extent within a
// file's .debug_info section.
type compilationUnit struct {
	file *elfobj.File

	// ptr is the absolute byte offset (within file.Data()) of the CU's
	// unit_length field; bodyStart/bodyEnd bound the DIE tree that follows
	// the header.
	ptr       uint64
	bodyStart uint64
	bodyEnd   uint64

	version        uint16
	debugAbbrevOff uint64
	addressSize    uint8
	is64Bit        bool
}

// scanCompilationUnits walks .debug_info from offset 0, yielding every CU
// header it finds without interpreting DIE bodies.
func scanCompilationUnits(f *elfobj.File) ([]*compilationUnit, error) {
	data := f.Info.Bytes(f.Data())
	base := f.Info.Offset

	var cus []*compilationUnit

	off := 0
	for off < len(data) {
		r, err := binary.At(data, off)
		if err != nil {
			return nil, err
		}

		cuPtr := base + uint64(off)

		u32, err := r.U32()
		if err != nil {
			return nil, direrr.DwarfFormat("truncated compilation unit header")
		}

		is64 := u32 == 0xffffffff

		var unitLength uint64

		if is64 {
			unitLength, err = r.U64()
			if err != nil {
				return nil, direrr.DwarfFormat("truncated 64-bit unit_length")
			}
		} else {
			unitLength = uint64(u32)
		}

		headerFieldsStart := r.Pos()

		version, err := r.U16()
		if err != nil {
			return nil, direrr.DwarfFormat("truncated CU version")
		}

		if version < 2 || version > 4 {
			return nil, direrr.DwarfFormat("unsupported DWARF version")
		}

		var abbrevOff uint64

		if is64 {
			abbrevOff, err = r.U64()
		} else {
			var v32 uint32
			v32, err = r.U32()
			abbrevOff = uint64(v32)
		}

		if err != nil {
			return nil, direrr.DwarfFormat("truncated debug_abbrev_offset")
		}

		addrSize, err := r.U8()
		if err != nil {
			return nil, direrr.DwarfFormat("truncated address_size")
		}

		if addrSize != 4 && addrSize != 8 {
			return nil, direrr.NotImplemented("unsupported address size")
		}

		bodyStart := base + uint64(r.Pos())
		unitEnd := base + uint64(headerFieldsStart) + unitLength

		if unitEnd > base+uint64(len(data)) || unitEnd < bodyStart {
			return nil, direrr.DwarfFormat("compilation unit extends past .debug_info")
		}

		cus = append(cus, &compilationUnit{
			file:           f,
			ptr:            cuPtr,
			bodyStart:      bodyStart,
			bodyEnd:        unitEnd,
			version:        version,
			debugAbbrevOff: abbrevOff,
			addressSize:    addrSize,
			is64Bit:        is64,
		})

		off = int(unitEnd - base)
	}

	return cus, nil
}
