package dwarfindex

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/orizon-lang/dwarfidx/internal/direrr"
	"github.com/orizon-lang/dwarfidx/internal/objfixture"
)

func lineProgramHeader() objfixture.LineProgramHeader {
	return objfixture.LineProgramHeader{
		Version:                  4,
		MinimumInstructionLength: 1,
		MaximumOpsPerInstruction: 1,
		DefaultIsStmt:            1,
		LineBase:                 -5,
		LineRange:                14,
		OpcodeBase:               13,
		StandardOpcodeLengths:    []uint8{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1},
	}
}

func writeObject(t *testing.T, obj objfixture.Object) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.o")

	if err := os.WriteFile(path, obj.Build(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	return path
}

// TestSingleBaseType builds one CU with a single named base_type DIE and
// checks it is findable by name.
func TestSingleBaseType(t *testing.T) {
	abbrev := objfixture.BuildAbbrevTable([]objfixture.AbbrevDecl{
		{
			Code: 1, Tag: objfixture.TagCompileUnit, HasChildren: true,
			Attrs: [][2]uint64{{atStmtList, formSecOffset}},
		},
		{
			Code: 2, Tag: objfixture.TagBaseType, HasChildren: false,
			Attrs: [][2]uint64{{atName, formString}},
		},
	})

	intDIE := objfixture.DIE{
		AbbrevCode: 2,
		Values:     [][]byte{objfixture.EncodeString("int")},
	}

	root := objfixture.DIE{
		AbbrevCode:  1,
		HasChildren: true,
		Values:      [][]byte{objfixture.EncodeU32(0)},
		Children:    []objfixture.DIE{intDIE},
	}

	info := objfixture.BuildCU(objfixture.CUHeader{
		Version: 4, AddressSize: 8,
		Body: objfixture.EncodeRootDIE(root),
	})

	line := objfixture.BuildLineProgram(lineProgramHeader())

	path := writeObject(t, objfixture.Object{Abbrev: abbrev, Info: info, Line: line, Str: []byte{0}})

	ix := New(nil)
	if err := ix.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}
	defer ix.Close()

	locs, err := ix.Find("int", objfixture.TagBaseType)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	if len(locs) != 1 {
		t.Fatalf("got %d locations, want 1", len(locs))
	}

	if locs[0].File != path {
		t.Errorf("File = %q, want %q", locs[0].File, path)
	}
}

// TestFindMissingIsNotFound checks the empty-result error kind.
func TestFindMissingIsNotFound(t *testing.T) {
	abbrev := objfixture.BuildAbbrevTable([]objfixture.AbbrevDecl{
		{Code: 1, Tag: objfixture.TagCompileUnit, HasChildren: false},
	})
	info := objfixture.BuildCU(objfixture.CUHeader{Version: 4, AddressSize: 8, Body: objfixture.EncodeRootDIE(objfixture.DIE{AbbrevCode: 1})})
	line := objfixture.BuildLineProgram(lineProgramHeader())

	path := writeObject(t, objfixture.Object{Abbrev: abbrev, Info: info, Line: line, Str: []byte{0}})

	ix := New(nil)
	if err := ix.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}
	defer ix.Close()

	if _, err := ix.Find("nonexistent", 0); !errors.Is(err, direrr.ErrNotFound) {
		t.Fatalf("want NotFound, got %v", err)
	}
}

// TestSpecificationResolvesName exercises the one-hop DW_AT_specification
// case: a variable DIE with no direct name, referring to a prior DIE that
// does have one.
func TestSpecificationResolvesName(t *testing.T) {
	abbrev := objfixture.BuildAbbrevTable([]objfixture.AbbrevDecl{
		{Code: 1, Tag: objfixture.TagCompileUnit, HasChildren: true},
		{Code: 2, Tag: objfixture.TagVariable, HasChildren: false,
			Attrs: [][2]uint64{{atName, formString}}},
		{Code: 3, Tag: objfixture.TagVariable, HasChildren: false,
			Attrs: [][2]uint64{{atSpecification, formRef4}}},
	})

	// First child DIE ("declDIE") declares the name; its byte offset within
	// the CU body is used as the specification reference target.
	declBody := objfixture.EncodeRootDIE(objfixture.DIE{
		AbbrevCode: 2,
		Values:     [][]byte{objfixture.EncodeString("counter")},
	})

	// DW_FORM_ref4 values are relative to the first byte of the CU, i.e. the
	// unit_length field itself: unit_length(4) + version(2) + abbrev_offset(4)
	// + address_size(1) = 11 bytes of header precede the body, and the root
	// compile_unit DIE's one-byte abbrev code precedes declDIE.
	declOffsetInCU := uint32(4 + 2 + 4 + 1 + 1)

	specBody := objfixture.EncodeRootDIE(objfixture.DIE{
		AbbrevCode: 3,
		Values:     [][]byte{objfixture.EncodeU32(declOffsetInCU)},
	})

	body := append(append([]byte{}, declBody...), specBody...)
	// wrap both DIEs as children of the root compile_unit
	root := append([]byte{1}, body...)
	root = append(root, 0) // end of children

	info := objfixture.BuildCU(objfixture.CUHeader{Version: 4, AddressSize: 8, Body: root})
	line := objfixture.BuildLineProgram(lineProgramHeader())

	path := writeObject(t, objfixture.Object{Abbrev: abbrev, Info: info, Line: line, Str: []byte{0}})

	ix := New(nil)
	if err := ix.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}
	defer ix.Close()

	locs, err := ix.Find("counter", objfixture.TagVariable)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	if len(locs) != 2 {
		t.Fatalf("got %d locations, want 2 (direct decl + specification-resolved)", len(locs))
	}
}

func TestHashDirectoryCanonicalizesEquivalentPaths(t *testing.T) {
	h1 := newSipHash()
	hashDirectory(h1, "/a/b/../c")

	h2 := newSipHash()
	hashDirectory(h2, "/a/c")

	if h1.sum64() != h2.sum64() {
		t.Fatalf("hashDirectory(/a/b/../c) != hashDirectory(/a/c)")
	}
}

func TestHashDirectoryTrailingSlashAndDot(t *testing.T) {
	h1 := newSipHash()
	hashDirectory(h1, "/a/./b/")

	h2 := newSipHash()
	hashDirectory(h2, "/a/b")

	if h1.sum64() != h2.sum64() {
		t.Fatalf("hashDirectory(/a/./b/) != hashDirectory(/a/b)")
	}
}

// TestEnumeratorIndexedUnderEnumerationOffset builds an enumeration_type
// DIE with two enumerator children and checks that both enumerators resolve
// to the enumeration_type's own DIE offset, not their own.
func TestEnumeratorIndexedUnderEnumerationOffset(t *testing.T) {
	abbrev := objfixture.BuildAbbrevTable([]objfixture.AbbrevDecl{
		{Code: 1, Tag: objfixture.TagCompileUnit, HasChildren: true},
		{Code: 2, Tag: objfixture.TagEnumerationType, HasChildren: true,
			Attrs: [][2]uint64{{atName, formString}}},
		{Code: 3, Tag: objfixture.TagEnumerator, HasChildren: false,
			Attrs: [][2]uint64{{atName, formString}}},
	})

	enumDIE := objfixture.DIE{
		AbbrevCode:  2,
		HasChildren: true,
		Values:      [][]byte{objfixture.EncodeString("Color")},
		Children: []objfixture.DIE{
			{AbbrevCode: 3, Values: [][]byte{objfixture.EncodeString("Red")}},
			{AbbrevCode: 3, Values: [][]byte{objfixture.EncodeString("Blue")}},
		},
	}

	root := objfixture.DIE{
		AbbrevCode:  1,
		HasChildren: true,
		Children:    []objfixture.DIE{enumDIE},
	}

	info := objfixture.BuildCU(objfixture.CUHeader{Version: 4, AddressSize: 8, Body: objfixture.EncodeRootDIE(root)})
	line := objfixture.BuildLineProgram(lineProgramHeader())

	path := writeObject(t, objfixture.Object{Abbrev: abbrev, Info: info, Line: line, Str: []byte{0}})

	ix := New(nil)
	if err := ix.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}
	defer ix.Close()

	enumLocs, err := ix.Find("Color", objfixture.TagEnumerationType)
	if err != nil {
		t.Fatalf("Find(Color): %v", err)
	}

	if len(enumLocs) != 1 {
		t.Fatalf("got %d Color locations, want 1", len(enumLocs))
	}

	redLocs, err := ix.Find("Red", objfixture.TagEnumerator)
	if err != nil {
		t.Fatalf("Find(Red): %v", err)
	}

	if len(redLocs) != 1 {
		t.Fatalf("got %d Red locations, want 1", len(redLocs))
	}

	blueLocs, err := ix.Find("Blue", objfixture.TagEnumerator)
	if err != nil {
		t.Fatalf("Find(Blue): %v", err)
	}

	if redLocs[0].DIEOffset != enumLocs[0].DIEOffset || blueLocs[0].DIEOffset != enumLocs[0].DIEOffset {
		t.Fatalf("enumerators must be indexed under their enumeration_type's own offset: enum=%d red=%d blue=%d",
			enumLocs[0].DIEOffset, redLocs[0].DIEOffset, blueLocs[0].DIEOffset)
	}
}

// TestCompileUnitNameNotIndexed checks that a compile_unit DIE carrying its
// own DW_AT_name (depth 0) is never inserted into the name table.
func TestCompileUnitNameNotIndexed(t *testing.T) {
	abbrev := objfixture.BuildAbbrevTable([]objfixture.AbbrevDecl{
		{
			Code: 1, Tag: objfixture.TagCompileUnit, HasChildren: false,
			Attrs: [][2]uint64{{atName, formString}},
		},
	})

	root := objfixture.DIE{
		AbbrevCode: 1,
		Values:     [][]byte{objfixture.EncodeString("main.c")},
	}

	info := objfixture.BuildCU(objfixture.CUHeader{Version: 4, AddressSize: 8, Body: objfixture.EncodeRootDIE(root)})
	line := objfixture.BuildLineProgram(lineProgramHeader())

	path := writeObject(t, objfixture.Object{Abbrev: abbrev, Info: info, Line: line, Str: []byte{0}})

	ix := New(nil)
	if err := ix.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}
	defer ix.Close()

	if _, err := ix.Find("main.c", objfixture.TagCompileUnit); !errors.Is(err, direrr.ErrNotFound) {
		t.Fatalf("want NotFound for the compile_unit's own name, got %v", err)
	}
}

// TestNestedTypeNotIndexed checks that a type DIE nested two levels below
// the compile_unit (e.g. a struct local to a function body) is not indexed,
// while its enclosing top-level DIE still is.
func TestNestedTypeNotIndexed(t *testing.T) {
	abbrev := objfixture.BuildAbbrevTable([]objfixture.AbbrevDecl{
		{Code: 1, Tag: objfixture.TagCompileUnit, HasChildren: true},
		{
			Code: 2, Tag: objfixture.TagVariable, HasChildren: true,
			Attrs: [][2]uint64{{atName, formString}},
		},
		{
			Code: 3, Tag: objfixture.TagBaseType, HasChildren: false,
			Attrs: [][2]uint64{{atName, formString}},
		},
	})

	nestedDIE := objfixture.DIE{
		AbbrevCode: 3,
		Values:     [][]byte{objfixture.EncodeString("local_t")},
	}

	outerDIE := objfixture.DIE{
		AbbrevCode:  2,
		HasChildren: true,
		Values:      [][]byte{objfixture.EncodeString("func_scope")},
		Children:    []objfixture.DIE{nestedDIE},
	}

	root := objfixture.DIE{
		AbbrevCode:  1,
		HasChildren: true,
		Children:    []objfixture.DIE{outerDIE},
	}

	info := objfixture.BuildCU(objfixture.CUHeader{Version: 4, AddressSize: 8, Body: objfixture.EncodeRootDIE(root)})
	line := objfixture.BuildLineProgram(lineProgramHeader())

	path := writeObject(t, objfixture.Object{Abbrev: abbrev, Info: info, Line: line, Str: []byte{0}})

	ix := New(nil)
	if err := ix.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}
	defer ix.Close()

	if _, err := ix.Find("func_scope", objfixture.TagVariable); err != nil {
		t.Fatalf("Find(func_scope): %v", err)
	}

	if _, err := ix.Find("local_t", objfixture.TagBaseType); !errors.Is(err, direrr.ErrNotFound) {
		t.Fatalf("want NotFound for a type nested two levels deep, got %v", err)
	}
}

// TestDeclarationNotIndexed checks that a forward-declared structure_type
// DIE (DW_AT_declaration set) is excluded from the name table, while a full
// definition of the same name elsewhere in the CU is still found.
func TestDeclarationNotIndexed(t *testing.T) {
	abbrev := objfixture.BuildAbbrevTable([]objfixture.AbbrevDecl{
		{Code: 1, Tag: objfixture.TagCompileUnit, HasChildren: true},
		{
			Code: 2, Tag: objfixture.TagStructureType, HasChildren: false,
			Attrs: [][2]uint64{{atName, formString}, {objfixture.AtDeclaration, objfixture.FormFlagPresent}},
		},
		{
			Code: 3, Tag: objfixture.TagStructureType, HasChildren: false,
			Attrs: [][2]uint64{{atName, formString}},
		},
	})

	declDIE := objfixture.DIE{
		AbbrevCode: 2,
		Values:     [][]byte{objfixture.EncodeString("Foo"), objfixture.EncodeFlagPresent()},
	}

	defDIE := objfixture.DIE{
		AbbrevCode: 3,
		Values:     [][]byte{objfixture.EncodeString("Foo")},
	}

	root := objfixture.DIE{
		AbbrevCode:  1,
		HasChildren: true,
		Children:    []objfixture.DIE{declDIE, defDIE},
	}

	info := objfixture.BuildCU(objfixture.CUHeader{Version: 4, AddressSize: 8, Body: objfixture.EncodeRootDIE(root)})
	line := objfixture.BuildLineProgram(lineProgramHeader())

	path := writeObject(t, objfixture.Object{Abbrev: abbrev, Info: info, Line: line, Str: []byte{0}})

	ix := New(nil)
	if err := ix.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}
	defer ix.Close()

	locs, err := ix.Find("Foo", objfixture.TagStructureType)
	if err != nil {
		t.Fatalf("Find(Foo): %v", err)
	}

	if len(locs) != 1 {
		t.Fatalf("got %d Foo locations, want 1 (only the full definition)", len(locs))
	}
}

func TestUnterminatedDebugStrFailsAdd(t *testing.T) {
	abbrev := objfixture.BuildAbbrevTable([]objfixture.AbbrevDecl{
		{Code: 1, Tag: objfixture.TagCompileUnit, HasChildren: true,
			Attrs: [][2]uint64{{atName, formStrp}}},
	})

	root := objfixture.DIE{
		AbbrevCode: 1,
		HasChildren: true,
		Values:      [][]byte{objfixture.EncodeU32(0)},
	}

	info := objfixture.BuildCU(objfixture.CUHeader{Version: 4, AddressSize: 8, Body: objfixture.EncodeRootDIE(root)})
	line := objfixture.BuildLineProgram(lineProgramHeader())

	// .debug_str has no NUL terminator at all.
	path := writeObject(t, objfixture.Object{Abbrev: abbrev, Info: info, Line: line, Str: []byte{'x', 'y', 'z'}})

	ix := New(nil)

	err := ix.Add(path)
	if err == nil {
		t.Fatalf("expected error for unterminated .debug_str")
	}

	if len(ix.Files()) != 0 {
		t.Fatalf("Add should not have mutated the index on failure, got %d files", len(ix.Files()))
	}
}
