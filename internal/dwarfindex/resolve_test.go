package dwarfindex

import (
	"errors"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/orizon-lang/dwarfidx/internal/direrr"
	"github.com/orizon-lang/dwarfidx/internal/dwarfindex/dwarfindexmock"
	"github.com/orizon-lang/dwarfidx/internal/objfixture"
)

func TestResolveChainsResolverHops(t *testing.T) {
	abbrev := objfixture.BuildAbbrevTable([]objfixture.AbbrevDecl{
		{Code: 1, Tag: objfixture.TagCompileUnit, HasChildren: false},
	})
	info := objfixture.BuildCU(objfixture.CUHeader{Version: 4, AddressSize: 8, Body: objfixture.EncodeRootDIE(objfixture.DIE{AbbrevCode: 1})})
	line := objfixture.BuildLineProgram(lineProgramHeader())

	path := writeObject(t, objfixture.Object{Abbrev: abbrev, Info: info, Line: line, Str: []byte{0}})

	ctrl := gomock.NewController(t)
	mockResolver := dwarfindexmock.NewMockResolver(ctrl)

	fileHandle := "file-handle"
	cuHandle := "cu-handle"
	dieHandle := "die-handle"

	mockResolver.EXPECT().File(path, gomock.Any()).Return(fileHandle, nil)
	mockResolver.EXPECT().CompilationUnit(fileHandle, uint64(11)).Return(cuHandle, nil)
	mockResolver.EXPECT().DIE(cuHandle, uint64(99)).Return(dieHandle, nil)

	ix := New(mockResolver)
	if err := ix.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}
	defer ix.Close()

	got, err := ix.Resolve(Location{File: path, CUOffset: 11, DIEOffset: 99})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got != dieHandle {
		t.Fatalf("Resolve returned %v, want %v", got, dieHandle)
	}
}

func TestResolveWithoutResolverIsNotImplemented(t *testing.T) {
	ix := New(nil)

	_, err := ix.Resolve(Location{File: "x"})
	if !errors.Is(err, direrr.ErrNotImplemented) {
		t.Fatalf("want NotImplemented, got %v", err)
	}
}
