package dwarfindex

import (
	"github.com/orizon-lang/dwarfidx/internal/binary"
	"github.com/orizon-lang/dwarfidx/internal/direrr"
)

// fileNameTable maps a line-program file index (1-based in DWARF, stored
// here 0-based) to a canonical SipHash fingerprint of its full path.
type fileNameTable struct {
	hashes []uint64
}

func (t *fileNameTable) reset() { t.hashes = t.hashes[:0] }

func (t *fileNameTable) hashForIndex(idx uint64) (uint64, bool) {
	if idx == 0 || int(idx) > len(t.hashes) {
		return 0, false
	}

	return t.hashes[idx-1], true
}

// readFileNameTable parses a DWARF 2/3/4 line-program header at offset off
// within .debug_line, producing one canonical hash per file-name entry. It
// never interprets the line-number program itself.
func readFileNameTable(t *fileNameTable, lineSection []byte, off uint64, is64Bit bool) error {
	r, err := binary.At(lineSection, int(off))
	if err != nil {
		return err
	}

	u32, err := r.U32()
	if err != nil {
		return direrr.DwarfFormat("truncated line-program unit_length")
	}

	lpIs64 := u32 == 0xffffffff
	if lpIs64 {
		if _, err := r.U64(); err != nil {
			return direrr.DwarfFormat("truncated 64-bit line-program unit_length")
		}
	}

	version, err := r.U16()
	if err != nil {
		return direrr.DwarfFormat("truncated line-program version")
	}

	if version < 2 || version > 4 {
		return direrr.DwarfFormat("unsupported line-program version")
	}

	if lpIs64 {
		if _, err := r.U64(); err != nil {
			return direrr.DwarfFormat("truncated header_length")
		}
	} else {
		if _, err := r.U32(); err != nil {
			return direrr.DwarfFormat("truncated header_length")
		}
	}

	if _, err := r.U8(); err != nil { // minimum_instruction_length
		return direrr.DwarfFormat("truncated minimum_instruction_length")
	}

	if version == 4 {
		if _, err := r.U8(); err != nil { // maximum_operations_per_instruction
			return direrr.DwarfFormat("truncated maximum_operations_per_instruction")
		}
	}

	if _, err := r.U8(); err != nil { // default_is_stmt
		return direrr.DwarfFormat("truncated default_is_stmt")
	}

	if _, err := r.U8(); err != nil { // line_base
		return direrr.DwarfFormat("truncated line_base")
	}

	if _, err := r.U8(); err != nil { // line_range
		return direrr.DwarfFormat("truncated line_range")
	}

	opcodeBase, err := r.U8()
	if err != nil {
		return direrr.DwarfFormat("truncated opcode_base")
	}

	if opcodeBase > 0 {
		if err := r.Skip(int(opcodeBase - 1)); err != nil {
			return direrr.DwarfFormat("truncated standard_opcode_lengths")
		}
	}

	var directories []string

	for {
		s, err := r.String()
		if err != nil {
			return direrr.DwarfFormat("truncated include_directories")
		}

		if s == "" {
			break
		}

		directories = append(directories, s)
	}

	for {
		name, err := r.String()
		if err != nil {
			return direrr.DwarfFormat("truncated file_names")
		}

		if name == "" {
			break
		}

		dirIdx, err := r.Uleb128()
		if err != nil {
			return direrr.DwarfFormat("truncated file directory_index")
		}

		if _, err := r.Uleb128(); err != nil { // mtime
			return direrr.DwarfFormat("truncated file mtime")
		}

		if _, err := r.Uleb128(); err != nil { // length
			return direrr.DwarfFormat("truncated file length")
		}

		var dir string

		if dirIdx > 0 {
			if int(dirIdx) > len(directories) {
				return direrr.DwarfFormat("file entry directory_index out of range")
			}

			dir = directories[dirIdx-1]
		}

		t.hashes = append(t.hashes, hashFileName(dir, name))
	}

	return nil
}
