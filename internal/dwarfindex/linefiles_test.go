package dwarfindex

import (
	"testing"

	"github.com/orizon-lang/dwarfidx/internal/objfixture"
)

func TestReadFileNameTableHashesMatchDirectAndIndirect(t *testing.T) {
	line := objfixture.BuildLineProgram(objfixture.LineProgramHeader{
		Version:                  4,
		MinimumInstructionLength: 1,
		MaximumOpsPerInstruction: 1,
		DefaultIsStmt:            1,
		LineBase:                 -5,
		LineRange:                14,
		OpcodeBase:               13,
		StandardOpcodeLengths:    []uint8{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1},
		IncludeDirectories:       []string{"/usr/include"},
		FileNames: []objfixture.LineFile{
			{Name: "stdio.h", DirIndex: 1},
			{Name: "main.c", DirIndex: 0},
		},
	})

	tbl := &fileNameTable{}
	if err := readFileNameTable(tbl, line, 0, false); err != nil {
		t.Fatalf("readFileNameTable: %v", err)
	}

	if len(tbl.hashes) != 2 {
		t.Fatalf("got %d file hashes, want 2", len(tbl.hashes))
	}

	h1, ok := tbl.hashForIndex(1)
	if !ok {
		t.Fatalf("hashForIndex(1) not found")
	}

	if want := hashFileName("/usr/include", "stdio.h"); h1 != want {
		t.Fatalf("hash mismatch for stdio.h")
	}

	h2, ok := tbl.hashForIndex(2)
	if !ok {
		t.Fatalf("hashForIndex(2) not found")
	}

	if want := hashFileName("", "main.c"); h2 != want {
		t.Fatalf("hash mismatch for main.c (dir_index 0 means no directory)")
	}

	if _, ok := tbl.hashForIndex(3); ok {
		t.Fatalf("hashForIndex(3) should be out of range")
	}
}

// TestTwoCUsWithEquivalentDirectoriesHashEqually builds two independent
// line-program tables whose include_directories differ textually but denote
// the same location, checking the same file produces the same fingerprint
// in both.
func TestTwoCUsWithEquivalentDirectoriesHashEqually(t *testing.T) {
	header := func(dir string) []byte {
		return objfixture.BuildLineProgram(objfixture.LineProgramHeader{
			Version:                  4,
			MinimumInstructionLength: 1,
			MaximumOpsPerInstruction: 1,
			DefaultIsStmt:            1,
			LineBase:                 -5,
			LineRange:                14,
			OpcodeBase:               13,
			StandardOpcodeLengths:    []uint8{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1},
			IncludeDirectories:       []string{dir},
			FileNames:                []objfixture.LineFile{{Name: "util.c", DirIndex: 1}},
		})
	}

	t1 := &fileNameTable{}
	if err := readFileNameTable(t1, header("/src/project/lib"), 0, false); err != nil {
		t.Fatalf("readFileNameTable (first): %v", err)
	}

	t2 := &fileNameTable{}
	if err := readFileNameTable(t2, header("/src/project/obj/../lib"), 0, false); err != nil {
		t.Fatalf("readFileNameTable (second): %v", err)
	}

	h1, _ := t1.hashForIndex(1)
	h2, _ := t2.hashForIndex(1)

	if h1 != h2 {
		t.Fatalf("path-equivalent directories across two CUs produced different file hashes")
	}
}
