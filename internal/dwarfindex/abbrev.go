package dwarfindex

import (
	"github.com/orizon-lang/dwarfidx/internal/binary"
	"github.com/orizon-lang/dwarfidx/internal/direrr"
)

// DWARF tag constants for the "interesting" tags this indexer captures.
const (
	tagEnumerationType = 0x04
	tagFormalParameter = 0x05
	tagCompileUnit     = 0x11
	tagStructureType   = 0x13
	tagTypedef         = 0x16
	tagUnionType       = 0x17
	tagBaseType        = 0x24
	tagEnumerator      = 0x28
	tagSubrangeType    = 0x21
	tagVariable        = 0x34
	tagClassType       = 0x02
)

// DWARF attribute constants consumed by the compiler.
const (
	atSibling       = 0x01
	atName          = 0x03
	atStmtList      = 0x10
	atDeclFile      = 0x3a
	atDeclaration   = 0x3c
	atSpecification = 0x47
)

// DWARF form constants supported by this indexer (spec §6).
const (
	formAddr        = 0x01
	formBlock2      = 0x03
	formBlock4      = 0x04
	formData2       = 0x05
	formData4       = 0x06
	formData8       = 0x07
	formString      = 0x08
	formBlock       = 0x09
	formBlock1      = 0x0a
	formData1       = 0x0b
	formFlag        = 0x0c
	formSdata       = 0x0d
	formStrp        = 0x0e
	formUdata       = 0x0f
	formRefAddr     = 0x10
	formRef1        = 0x11
	formRef2        = 0x12
	formRef4        = 0x13
	formRef8        = 0x14
	formRefUdata    = 0x15
	formIndirect    = 0x16
	formSecOffset   = 0x17
	formExprloc     = 0x18
	formFlagPresent = 0x19
	formRefSig8     = 0x20
)

// Compiled command opcodes. [1, cmdMaxSkip] mean "skip that many bytes";
// fixed-width attributes with no indexer use are fused into the fewest such
// opcodes possible. Opcodes above cmdMaxSkip are a closed set of captures
// and variable-length skips the walker (die.go) interprets individually.
const (
	cmdEOC     = 0
	cmdMaxSkip = 227

	cmdDeclarationFlag    = 228
	cmdDeclarationPresent = 229

	cmdBlock1  = 230
	cmdBlock2  = 231
	cmdBlock4  = 232
	cmdExprloc = 233
	cmdLeb128  = 234
	cmdString  = 235

	cmdNameString = 236
	cmdNameStrp4  = 237
	cmdNameStrp8  = 238

	cmdSiblingRef1     = 239
	cmdSiblingRef2     = 240
	cmdSiblingRef4     = 241
	cmdSiblingRef8     = 242
	cmdSiblingRefUdata = 243

	cmdStmtListLineptr4 = 244
	cmdStmtListLineptr8 = 245

	cmdDeclFileData1 = 246
	cmdDeclFileData2 = 247
	cmdDeclFileData4 = 248
	cmdDeclFileData8 = 249
	cmdDeclFileUdata = 250

	cmdSpecificationRef1     = 251
	cmdSpecificationRef2     = 252
	cmdSpecificationRef4     = 253
	cmdSpecificationRef8     = 254
	cmdSpecificationRefUdata = 255
)

// interestingTag reports whether tag is in the fixed set of DIE tags whose
// attributes the abbreviation compiler captures. The walker indexes such
// DIEs only at depth 1 (plus enumerators under an enumeration_type), so a
// compile_unit DIE is never inserted into the name table.
func interestingTag(tag uint64) bool {
	switch tag {
	case tagCompileUnit, tagBaseType, tagClassType, tagEnumerationType,
		tagEnumerator, tagStructureType, tagTypedef, tagUnionType, tagVariable:
		return true
	default:
		return false
	}
}

// abbrevTable holds, per CU, the compiled command stream for every
// abbreviation code declared by that CU's .debug_abbrev table.
type abbrevTable struct {
	// decls[code-1] is the offset into cmds where that code's program
	// starts. Codes must be declared sequentially starting at 1.
	decls []int
	cmds  []byte
	// tags[code-1] / hasChildren[code-1] let the walker know the DIE's tag
	// and whether to descend without re-deriving them from cmds.
	tags        []uint64
	hasChildren []bool
}

func (t *abbrevTable) reset() {
	t.decls = t.decls[:0]
	t.cmds = t.cmds[:0]
	t.tags = t.tags[:0]
	t.hasChildren = t.hasChildren[:0]
}

// programFor returns the compiled command stream for the given abbrev code.
func (t *abbrevTable) programFor(code uint64) ([]byte, uint64, bool, error) {
	if code == 0 || int(code) > len(t.decls) {
		return nil, 0, false, direrr.DwarfFormat("abbreviation code out of range")
	}

	start := t.decls[code-1]

	end := len(t.cmds)
	if int(code) < len(t.decls) {
		end = t.decls[code]
	}

	return t.cmds[start:end], t.tags[code-1], t.hasChildren[code-1], nil
}

// readAbbrevTable parses a CU's .debug_abbrev declarations, starting at
// byte offset off within abbrevSection, and compiles each into a command
// stream. is64Bit and addressSize parameterize the fixed-width forms whose
// size depends on the CU (sec_offset/strp/ref_addr, and addr).
func readAbbrevTable(t *abbrevTable, abbrevSection []byte, off uint64, is64Bit bool, addressSize uint8) error {
	r, err := binary.At(abbrevSection, int(off))
	if err != nil {
		return err
	}

	expectedCode := uint64(1)

	offWidth := 4
	if is64Bit {
		offWidth = 8
	}

	for {
		code, err := r.Uleb128()
		if err != nil {
			return direrr.DwarfFormat("truncated abbreviation code")
		}

		if code == 0 {
			break
		}

		if code != expectedCode {
			return direrr.DwarfFormat("non-sequential abbreviation codes")
		}

		expectedCode++

		tag, err := r.Uleb128()
		if err != nil {
			return direrr.DwarfFormat("truncated abbreviation tag")
		}

		hasChildrenByte, err := r.U8()
		if err != nil {
			return direrr.DwarfFormat("truncated has_children")
		}

		t.decls = append(t.decls, len(t.cmds))
		t.tags = append(t.tags, tag)
		t.hasChildren = append(t.hasChildren, hasChildrenByte != 0)

		interesting := interestingTag(tag)

		var pendingSkip int

		flushSkip := func() {
			for pendingSkip > 0 {
				n := pendingSkip
				if n > cmdMaxSkip {
					n = cmdMaxSkip
				}

				t.cmds = append(t.cmds, byte(n))
				pendingSkip -= n
			}
		}

		for {
			attr, aerr := r.Uleb128()
			if aerr != nil {
				return direrr.DwarfFormat("truncated attribute spec")
			}

			form, ferr := r.Uleb128()
			if ferr != nil {
				return direrr.DwarfFormat("truncated form spec")
			}

			if attr == 0 && form == 0 {
				break
			}

			if form == formIndirect {
				return direrr.NotImplemented("DW_FORM_indirect is not supported")
			}

			// Captured attributes (only when the tag is interesting).
			if interesting && attr == atName && (form == formString || form == formStrp) {
				flushSkip()

				switch form {
				case formString:
					t.cmds = append(t.cmds, cmdNameString)
				case formStrp:
					if is64Bit {
						t.cmds = append(t.cmds, cmdNameStrp8)
					} else {
						t.cmds = append(t.cmds, cmdNameStrp4)
					}
				}

				continue
			}

			if interesting && attr == atDeclFile && isIntegerForm(form) {
				flushSkip()
				t.cmds = append(t.cmds, declFileOpcode(form))

				continue
			}

			if interesting && attr == atDeclaration && (form == formFlag || form == formFlagPresent) {
				flushSkip()

				if form == formFlagPresent {
					t.cmds = append(t.cmds, cmdDeclarationPresent)
				} else {
					t.cmds = append(t.cmds, cmdDeclarationFlag)
				}

				continue
			}

			if interesting && attr == atSpecification && isRefForm(form) {
				flushSkip()
				t.cmds = append(t.cmds, specificationOpcode(form))

				continue
			}

			if interesting && tag != tagEnumerationType && attr == atSibling && isRefForm(form) {
				flushSkip()
				t.cmds = append(t.cmds, siblingOpcode(form))

				continue
			}

			if interesting && tag == tagCompileUnit && attr == atStmtList &&
				(form == formSecOffset || form == formData4 || form == formData8) {
				flushSkip()

				width := offWidth
				if form == formData8 {
					width = 8
				} else if form == formData4 {
					width = 4
				}

				if width == 8 {
					t.cmds = append(t.cmds, cmdStmtListLineptr8)
				} else {
					t.cmds = append(t.cmds, cmdStmtListLineptr4)
				}

				continue
			}

			// Otherwise: skip. Fixed-width forms accumulate into pendingSkip;
			// variable-width forms flush and emit their own skip opcode.
			switch form {
			case formAddr:
				pendingSkip += int(addressSize)
			case formData1, formRef1, formFlag:
				pendingSkip++
			case formData2, formRef2:
				pendingSkip += 2
			case formData4, formRef4:
				pendingSkip += 4
			case formData8, formRef8, formRefSig8:
				pendingSkip += 8
			case formSecOffset, formStrp, formRefAddr:
				pendingSkip += offWidth
			case formFlagPresent:
				// zero-length, nothing to do
			case formBlock1:
				flushSkip()
				t.cmds = append(t.cmds, cmdBlock1)
			case formBlock2:
				flushSkip()
				t.cmds = append(t.cmds, cmdBlock2)
			case formBlock4:
				flushSkip()
				t.cmds = append(t.cmds, cmdBlock4)
			case formExprloc, formBlock:
				flushSkip()
				t.cmds = append(t.cmds, cmdExprloc)
			case formString:
				flushSkip()
				t.cmds = append(t.cmds, cmdString)
			case formSdata, formUdata, formRefUdata:
				flushSkip()
				t.cmds = append(t.cmds, cmdLeb128)
			default:
				return direrr.DwarfFormat("unsupported DWARF form")
			}
		}

		flushSkip()
		t.cmds = append(t.cmds, cmdEOC)
	}

	return nil
}

func isIntegerForm(form uint64) bool {
	switch form {
	case formData1, formData2, formData4, formData8, formUdata:
		return true
	default:
		return false
	}
}

func isRefForm(form uint64) bool {
	switch form {
	case formRef1, formRef2, formRef4, formRef8, formRefUdata:
		return true
	default:
		return false
	}
}

func declFileOpcode(form uint64) byte {
	switch form {
	case formData1:
		return cmdDeclFileData1
	case formData2:
		return cmdDeclFileData2
	case formData4:
		return cmdDeclFileData4
	case formData8:
		return cmdDeclFileData8
	default:
		return cmdDeclFileUdata
	}
}

func specificationOpcode(form uint64) byte {
	switch form {
	case formRef1:
		return cmdSpecificationRef1
	case formRef2:
		return cmdSpecificationRef2
	case formRef4:
		return cmdSpecificationRef4
	case formRef8:
		return cmdSpecificationRef8
	default:
		return cmdSpecificationRefUdata
	}
}

func siblingOpcode(form uint64) byte {
	switch form {
	case formRef1:
		return cmdSiblingRef1
	case formRef2:
		return cmdSiblingRef2
	case formRef4:
		return cmdSiblingRef4
	case formRef8:
		return cmdSiblingRef8
	default:
		return cmdSiblingRefUdata
	}
}
