package objfixture

import (
	"bytes"
	"encoding/binary"
)

// DWARF tag and form constants needed to synthesize CUs. Kept narrow,
// mirroring exactly what internal/dwarfindex consumes.
const (
	TagCompileUnit     = 0x11
	TagBaseType        = 0x24
	TagEnumerationType = 0x04
	TagEnumerator      = 0x28
	TagTypedef         = 0x16
	TagVariable        = 0x34

	AtSibling       = 0x01
	AtName          = 0x03
	AtStmtList      = 0x10
	AtDeclFile      = 0x3a
	AtDeclaration   = 0x3c
	AtType          = 0x49
	AtSpecification = 0x47

	FormAddr        = 0x01
	FormData1       = 0x0b
	FormData2       = 0x05
	FormData4       = 0x06
	FormData8       = 0x07
	FormString      = 0x08
	FormStrp        = 0x0e
	FormFlag        = 0x0c
	FormFlagPresent = 0x19
	FormSdata       = 0x0d
	FormUdata       = 0x0f
	FormRef4        = 0x13
	FormSecOffset   = 0x17
)

func uleb(v uint64) []byte {
	var out []byte

	for {
		b := byte(v & 0x7f)
		v >>= 7

		if v != 0 {
			b |= 0x80
		}

		out = append(out, b)

		if v == 0 {
			return out
		}
	}
}

// AbbrevDecl is one [code] (tag, has_children, [(attr, form)...]) entry.
type AbbrevDecl struct {
	Code        uint64
	Tag         uint64
	HasChildren bool
	Attrs       [][2]uint64 // (attribute, form) pairs
}

// BuildAbbrevTable encodes a .debug_abbrev byte stream for one CU.
func BuildAbbrevTable(decls []AbbrevDecl) []byte {
	buf := &bytes.Buffer{}

	for _, d := range decls {
		buf.Write(uleb(d.Code))
		buf.Write(uleb(d.Tag))

		if d.HasChildren {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}

		for _, a := range d.Attrs {
			buf.Write(uleb(a[0]))
			buf.Write(uleb(a[1]))
		}

		buf.Write(uleb(0))
		buf.Write(uleb(0))
	}

	buf.Write(uleb(0)) // table terminator

	return buf.Bytes()
}

// DIE is one debugging information entry to encode into .debug_info.
type DIE struct {
	AbbrevCode uint64
	// HasChildren must match the AbbrevDecl this code refers to; it controls
	// whether a null-entry terminator follows the child list.
	HasChildren bool
	// Values must align 1:1 with the AbbrevDecl.Attrs this DIE's code refers
	// to. Each value is pre-encoded bytes for its form (see helper encoders
	// below).
	Values   [][]byte
	Children []DIE
}

func encodeDIE(buf *bytes.Buffer, d DIE) {
	buf.Write(uleb(d.AbbrevCode))

	for _, v := range d.Values {
		buf.Write(v)
	}

	for _, c := range d.Children {
		encodeDIE(buf, c)
	}

	if d.HasChildren {
		buf.Write(uleb(0))
	}
}

// EncodeU32 encodes a DW_FORM_data4/sec_offset/strp/ref4 value.
func EncodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)

	return b
}

// EncodeU8 encodes a DW_FORM_data1/flag value.
func EncodeU8(v uint8) []byte { return []byte{v} }

// EncodeString encodes a DW_FORM_string value (inline, NUL-terminated).
func EncodeString(s string) []byte {
	b := append([]byte(s), 0)

	return b
}

// EncodeUdata encodes a DW_FORM_udata value.
func EncodeUdata(v uint64) []byte { return uleb(v) }

// EncodeFlagPresent encodes a DW_FORM_flag_present value: the form carries
// no bytes, so the DIE's Values slot for it stays empty.
func EncodeFlagPresent() []byte { return nil }

// CUHeader describes a version-2/3/4 32-bit DWARF compile unit header.
type CUHeader struct {
	Version         uint16
	DebugAbbrevOff  uint32
	AddressSize     uint8
	Body            []byte // post-header DIE stream (root DIE and its children)
}

// BuildCU encodes one full CU (header + body) and returns bytes to append to
// .debug_info.
func BuildCU(h CUHeader) []byte {
	buf := &bytes.Buffer{}

	headerLen := 2 + 4 + 1 // version + abbrev_offset + address_size
	unitLength := uint32(headerLen + len(h.Body))

	binary.Write(buf, binary.LittleEndian, unitLength)
	binary.Write(buf, binary.LittleEndian, h.Version)
	binary.Write(buf, binary.LittleEndian, h.DebugAbbrevOff)
	buf.WriteByte(h.AddressSize)
	buf.Write(h.Body)

	return buf.Bytes()
}

// EncodeRootDIE renders a DIE tree (root plus descendants) into a byte
// stream suitable as a CUHeader.Body.
func EncodeRootDIE(root DIE) []byte {
	buf := &bytes.Buffer{}
	encodeDIE(buf, root)

	return buf.Bytes()
}

// LineProgramHeader describes a minimal DWARF 2/3/4 line-program header
// carrying only directory and file-name tables (no opcodes).
type LineProgramHeader struct {
	Version                  uint16
	MinimumInstructionLength uint8
	MaximumOpsPerInstruction uint8 // version 4 only
	DefaultIsStmt            uint8
	LineBase                 int8
	LineRange                uint8
	OpcodeBase               uint8
	StandardOpcodeLengths    []uint8 // len == OpcodeBase-1
	IncludeDirectories       []string
	FileNames                []LineFile
}

// LineFile is one entry of a line-program file-name table.
type LineFile struct {
	Name      string
	DirIndex  uint64
	MTime     uint64
	Length    uint64
}

// BuildLineProgram encodes a .debug_line unit for a single CU.
func BuildLineProgram(h LineProgramHeader) []byte {
	body := &bytes.Buffer{}
	body.WriteByte(h.MinimumInstructionLength)

	if h.Version == 4 {
		body.WriteByte(h.MaximumOpsPerInstruction)
	}

	body.WriteByte(h.DefaultIsStmt)
	body.WriteByte(byte(h.LineBase))
	body.WriteByte(h.LineRange)
	body.WriteByte(h.OpcodeBase)
	body.Write(h.StandardOpcodeLengths)

	for _, d := range h.IncludeDirectories {
		body.WriteString(d)
		body.WriteByte(0)
	}

	body.WriteByte(0) // end of include_directories

	for _, f := range h.FileNames {
		body.WriteString(f.Name)
		body.WriteByte(0)
		body.Write(uleb(f.DirIndex))
		body.Write(uleb(f.MTime))
		body.Write(uleb(f.Length))
	}

	body.WriteByte(0) // end of file_names

	headerLength := uint32(body.Len())

	out := &bytes.Buffer{}

	// unit_length patched below once total size is known.
	placeholder := make([]byte, 4)
	out.Write(placeholder)
	binary.Write(out, binary.LittleEndian, h.Version)

	hl := make([]byte, 4)
	binary.LittleEndian.PutUint32(hl, headerLength)
	out.Write(hl)
	out.Write(body.Bytes())

	full := out.Bytes()
	unitLength := uint32(len(full) - 4)
	binary.LittleEndian.PutUint32(full[0:4], unitLength)

	return full
}
