package dwarfindex

import (
	"github.com/orizon-lang/dwarfidx/internal/binary"
	"github.com/orizon-lang/dwarfidx/internal/direrr"
	"github.com/orizon-lang/dwarfidx/internal/elfobj"
)

// dieFields holds the attributes execProgram captured for one DIE.
type dieFields struct {
	name          []byte
	hasSpec       bool
	specRef       uint64 // absolute offset into file.Data()
	declFile      uint64
	hasStmt       bool
	stmtListOff   uint64 // offset within .debug_line, as written by the producer
	isDeclaration bool
}

// execProgram runs one abbreviation's compiled command stream against r
// (positioned right after the DIE's abbrev code), consuming exactly this
// DIE's attribute bytes and capturing the handful the indexer cares about.
func execProgram(f *elfobj.File, cu *compilationUnit, r *binary.Reader, prog []byte) (dieFields, error) {
	var out dieFields

	for _, op := range prog {
		switch {
		case op == cmdEOC:
			return out, nil
		case op <= cmdMaxSkip:
			if err := r.Skip(int(op)); err != nil {
				return out, err
			}
		case op == cmdBlock1:
			n, err := r.U8()
			if err != nil {
				return out, err
			}

			if err := r.Skip(int(n)); err != nil {
				return out, err
			}
		case op == cmdBlock2:
			n, err := r.U16()
			if err != nil {
				return out, err
			}

			if err := r.Skip(int(n)); err != nil {
				return out, err
			}
		case op == cmdBlock4:
			n, err := r.U32()
			if err != nil {
				return out, err
			}

			if err := r.Skip(int(n)); err != nil {
				return out, err
			}
		case op == cmdExprloc:
			n, err := r.Uleb128()
			if err != nil {
				return out, err
			}

			if err := r.Skip(int(n)); err != nil {
				return out, err
			}
		case op == cmdLeb128:
			if _, err := r.Uleb128(); err != nil {
				return out, err
			}
		case op == cmdString:
			if _, err := r.NulTerminatedBytes(); err != nil {
				return out, err
			}
		case op == cmdNameString:
			b, err := r.NulTerminatedBytes()
			if err != nil {
				return out, err
			}

			out.name = b
		case op == cmdNameStrp4 || op == cmdNameStrp8:
			var strOff uint64

			var err error

			if op == cmdNameStrp4 {
				var v uint32
				v, err = r.U32()
				strOff = uint64(v)
			} else {
				strOff, err = r.U64()
			}

			if err != nil {
				return out, err
			}

			sr, err := binary.At(f.Str.Bytes(f.Data()), int(strOff))
			if err != nil {
				return out, direrr.DwarfFormat("DW_FORM_strp offset out of range")
			}

			b, err := sr.NulTerminatedBytes()
			if err != nil {
				return out, direrr.DwarfFormat(".debug_str entry is not NUL-terminated")
			}

			out.name = b
		case op == cmdSiblingRef1:
			if _, err := r.U8(); err != nil {
				return out, err
			}
		case op == cmdSiblingRef2:
			if _, err := r.U16(); err != nil {
				return out, err
			}
		case op == cmdSiblingRef4:
			if _, err := r.U32(); err != nil {
				return out, err
			}
		case op == cmdSiblingRef8:
			if _, err := r.U64(); err != nil {
				return out, err
			}
		case op == cmdSiblingRefUdata:
			if _, err := r.Uleb128(); err != nil {
				return out, err
			}
		case op == cmdStmtListLineptr4:
			v, err := r.U32()
			if err != nil {
				return out, err
			}

			out.hasStmt = true
			out.stmtListOff = uint64(v)
		case op == cmdStmtListLineptr8:
			v, err := r.U64()
			if err != nil {
				return out, err
			}

			out.hasStmt = true
			out.stmtListOff = v
		case op == cmdDeclFileData1:
			v, err := r.U8()
			if err != nil {
				return out, err
			}

			out.declFile = uint64(v)
		case op == cmdDeclFileData2:
			v, err := r.U16()
			if err != nil {
				return out, err
			}

			out.declFile = uint64(v)
		case op == cmdDeclFileData4:
			v, err := r.U32()
			if err != nil {
				return out, err
			}

			out.declFile = uint64(v)
		case op == cmdDeclFileData8:
			v, err := r.U64()
			if err != nil {
				return out, err
			}

			out.declFile = v
		case op == cmdDeclFileUdata:
			v, err := r.Uleb128()
			if err != nil {
				return out, err
			}

			out.declFile = v
		case op == cmdDeclarationPresent:
			out.isDeclaration = true
		case op == cmdDeclarationFlag:
			v, err := r.U8()
			if err != nil {
				return out, err
			}

			out.isDeclaration = v != 0
		case op == cmdSpecificationRef1, op == cmdSpecificationRef2, op == cmdSpecificationRef4,
			op == cmdSpecificationRef8, op == cmdSpecificationRefUdata:
			var rel uint64

			var err error

			switch op {
			case cmdSpecificationRef1:
				var v uint8
				v, err = r.U8()
				rel = uint64(v)
			case cmdSpecificationRef2:
				var v uint16
				v, err = r.U16()
				rel = uint64(v)
			case cmdSpecificationRef4:
				var v uint32
				v, err = r.U32()
				rel = uint64(v)
			case cmdSpecificationRef8:
				rel, err = r.U64()
			default:
				rel, err = r.Uleb128()
			}

			if err != nil {
				return out, err
			}

			out.hasSpec = true
			out.specRef = cu.ptr + rel
		default:
			return out, direrr.DwarfFormat("unreachable abbreviation opcode")
		}
	}

	return out, nil
}

// resolveSpecificationName performs the single allowed hop through
// DW_AT_specification: it parses the referenced DIE far enough to read its
// own name, without following a further specification on that DIE.
func resolveSpecificationName(f *elfobj.File, cu *compilationUnit, abbrev *abbrevTable, absOff uint64) ([]byte, error) {
	r, err := binary.At(f.Data(), int(absOff))
	if err != nil {
		return nil, nil //nolint:nilerr // an out-of-range specification ref yields no name, not a hard failure
	}

	code, err := r.Uleb128()
	if err != nil || code == 0 {
		return nil, nil
	}

	prog, _, _, err := abbrev.programFor(code)
	if err != nil {
		return nil, nil
	}

	fields, err := execProgram(f, cu, r, prog)
	if err != nil {
		return nil, nil
	}

	return fields.name, nil
}

// cuWalkState carries the per-CU file-name table, built lazily the first
// time a compile_unit DIE with DW_AT_stmt_list is seen (always at depth 0).
type cuWalkState struct {
	f         *elfobj.File
	cu        *compilationUnit
	cuIdx     uint32
	fileIdx   uint32
	abbrev    *abbrevTable
	fileNames *fileNameTable
	table     *dieHashTable
}

// walk indexes every DIE in one compilation unit.
func (w *cuWalkState) walk() error {
	r, err := binary.At(w.f.Data(), int(w.cu.bodyStart))
	if err != nil {
		return err
	}

	return w.walkSiblings(r, 0, 0)
}

// walkSiblings reads a run of sibling DIEs at one depth, terminated by a
// null abbreviation code, and recurses into any children. enclosingEnum is
// the absolute offset of the nearest enumeration_type ancestor (0 if none),
// used to index enumerator DIEs under their enumeration's own location.
func (w *cuWalkState) walkSiblings(r *binary.Reader, depth int, enclosingEnum uint64) error {
	for {
		if r.Pos() >= int(w.cu.bodyEnd) {
			return nil
		}

		diePos := uint64(r.Pos())

		code, err := r.Uleb128()
		if err != nil {
			return err
		}

		if code == 0 {
			return nil
		}

		prog, tag, hasChildren, err := w.abbrev.programFor(code)
		if err != nil {
			return err
		}

		fields, err := execProgram(w.f, w.cu, r, prog)
		if err != nil {
			return err
		}

		if depth == 0 && fields.hasStmt {
			if w.fileNames == nil {
				w.fileNames = getFileNameTable()
			}

			if err := readFileNameTable(w.fileNames, w.f.Line.Bytes(w.f.Data()), fields.stmtListOff, w.cu.is64Bit); err != nil {
				return err
			}
		}

		// Only top-level DIEs (direct children of the compile_unit DIE, at
		// depth 1) are indexed, plus enumerators one level deeper under their
		// enumeration_type. A DIE anywhere else in the tree, including the
		// compile_unit DIE itself at depth 0, is skipped even when its tag
		// is otherwise interesting.
		isEnumeratorUnderEnum := tag == tagEnumerator && enclosingEnum != 0

		if interestingTag(tag) && !fields.isDeclaration && (depth == 1 || isEnumeratorUnderEnum) {
			name := fields.name

			if len(name) == 0 && fields.hasSpec {
				name, err = resolveSpecificationName(w.f, w.cu, w.abbrev, fields.specRef)
				if err != nil {
					return err
				}
			}

			if len(name) > 0 {
				insertPtr := diePos
				if isEnumeratorUnderEnum {
					insertPtr = enclosingEnum
				}

				var fileHash uint64

				if fields.declFile != 0 {
					ok := false
					if w.fileNames != nil {
						fileHash, ok = w.fileNames.hashForIndex(fields.declFile)
					}

					if !ok {
						return direrr.DwarfFormat("decl_file index out of range")
					}
				}

				if err := w.table.insert(name, uint8(tag), w.fileIdx, w.cuIdx, fileHash, insertPtr); err != nil {
					return err
				}
			}
		}

		if hasChildren {
			nextEnum := enclosingEnum
			if tag == tagEnumerationType {
				nextEnum = diePos
			}

			if err := w.walkSiblings(r, depth+1, nextEnum); err != nil {
				return err
			}
		}
	}
}
