package dwarfindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/orizon-lang/dwarfidx/internal/elfobj"
	"github.com/orizon-lang/dwarfidx/internal/objfixture"
)

func TestScanCompilationUnitsFindsTwoCUs(t *testing.T) {
	abbrev := objfixture.BuildAbbrevTable([]objfixture.AbbrevDecl{
		{Code: 1, Tag: objfixture.TagCompileUnit, HasChildren: false},
	})

	cu1 := objfixture.BuildCU(objfixture.CUHeader{
		Version: 4, AddressSize: 8,
		Body: objfixture.EncodeRootDIE(objfixture.DIE{AbbrevCode: 1}),
	})
	cu2 := objfixture.BuildCU(objfixture.CUHeader{
		Version: 3, AddressSize: 8,
		Body: objfixture.EncodeRootDIE(objfixture.DIE{AbbrevCode: 1}),
	})

	info := append(append([]byte{}, cu1...), cu2...)
	line := objfixture.BuildLineProgram(lineProgramHeader())

	dir := t.TempDir()
	path := filepath.Join(dir, "two.o")

	obj := objfixture.Object{Abbrev: abbrev, Info: info, Line: line, Str: []byte{0}}
	if err := os.WriteFile(path, obj.Build(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := elfobj.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer f.Close()

	cus, err := scanCompilationUnits(f)
	if err != nil {
		t.Fatalf("scanCompilationUnits: %v", err)
	}

	if len(cus) != 2 {
		t.Fatalf("got %d CUs, want 2", len(cus))
	}

	if cus[0].version != 4 || cus[1].version != 3 {
		t.Fatalf("versions = %d, %d, want 4, 3", cus[0].version, cus[1].version)
	}

	if cus[0].bodyEnd != cus[1].ptr {
		t.Fatalf("first CU's bodyEnd (%d) should equal second CU's ptr (%d)", cus[0].bodyEnd, cus[1].ptr)
	}
}

func TestScanCompilationUnitsRejectsBadVersion(t *testing.T) {
	abbrev := objfixture.BuildAbbrevTable([]objfixture.AbbrevDecl{
		{Code: 1, Tag: objfixture.TagCompileUnit, HasChildren: false},
	})

	info := objfixture.BuildCU(objfixture.CUHeader{
		Version: 99, AddressSize: 8,
		Body: objfixture.EncodeRootDIE(objfixture.DIE{AbbrevCode: 1}),
	})
	line := objfixture.BuildLineProgram(lineProgramHeader())

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.o")

	obj := objfixture.Object{Abbrev: abbrev, Info: info, Line: line, Str: []byte{0}}
	if err := os.WriteFile(path, obj.Build(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := elfobj.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer f.Close()

	if _, err := scanCompilationUnits(f); err == nil {
		t.Fatalf("expected an error for an unsupported CU version")
	}
}
