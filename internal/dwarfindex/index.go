package dwarfindex

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/dwarfidx/internal/direrr"
	"github.com/orizon-lang/dwarfidx/internal/elfobj"
)

// Location is the byte-offset result of a successful Find: which file, the
// offset of the compilation unit within that file's .debug_info, and the
// offset of the matching DIE from the start of that compilation unit.
type Location struct {
	File      string
	CUOffset  uint64
	DIEOffset uint64
	Tag       uint8
}

// Resolver is an optional external collaborator an Index can hand
// (file, cu_offset, die_offset) triples to in order to materialize richer
// objects. The core index never implements it.
type Resolver interface {
	File(path string, data []byte) (any, error)
	CompilationUnit(file any, cuOffset uint64) (any, error)
	DIE(cu any, dieOffset uint64) (any, error)
}

// Index is a name-keyed index over the DWARF debugging information of a
// set of ELF64 object files.
type Index struct {
	table    *dieHashTable
	files    []*elfobj.File
	cus      []*compilationUnit
	resolver Resolver

	addressSize int32 // last-CU-wins, diagnostic only (see SPEC_FULL.md §9)
}

// New creates an empty Index. r may be nil.
func New(r Resolver) *Index {
	return &Index{table: &dieHashTable{}, resolver: r}
}

// Files returns the paths of every file successfully added so far,
// excluding files that were silently skipped for lacking debug sections.
func (ix *Index) Files() []string {
	out := make([]string, 0, len(ix.files))
	for _, f := range ix.files {
		if !f.Skip {
			out = append(out, f.Path)
		}
	}

	return out
}

// AddressSize returns the address size of the most recently indexed
// compilation unit. Diagnostic only: with multiple CUs of differing
// address sizes, this reports whichever happened to index last.
func (ix *Index) AddressSize() int {
	return int(atomic.LoadInt32(&ix.addressSize))
}

// Add loads, relocates, and indexes each path. On any failure before DIE
// indexing begins, ix is left exactly as it was before the call. Once DIE
// indexing has started inserting into the shared table, a later failure
// still leaves previously published entries visible (this part is not
// rolled back — see SPEC_FULL.md §9).
func (ix *Index) Add(paths ...string) error {
	newFiles := make([]*elfobj.File, 0, len(paths))

	for _, p := range paths {
		f, err := elfobj.Load(p)
		if err != nil {
			for _, nf := range newFiles {
				_ = nf.Close()
			}

			return err
		}

		newFiles = append(newFiles, f)
	}

	loadable := make([]*elfobj.File, 0, len(newFiles))

	for _, f := range newFiles {
		if !f.Skip {
			loadable = append(loadable, f)
		}
	}

	if err := elfobj.ApplyRelocations(loadable); err != nil {
		for _, nf := range newFiles {
			_ = nf.Close()
		}

		return err
	}

	baseFileIdx := uint32(len(ix.files))

	var newCUs []*compilationUnit

	for _, f := range loadable {
		if str := f.Str.Bytes(f.Data()); str[len(str)-1] != 0 {
			for _, nf := range newFiles {
				_ = nf.Close()
			}

			return direrr.WithPath(direrr.KindDwarfFormat, "DWARF_FORMAT", ".debug_str is not NUL-terminated", f.Path)
		}

		cus, err := scanCompilationUnits(f)
		if err != nil {
			for _, nf := range newFiles {
				_ = nf.Close()
			}

			return err
		}

		newCUs = append(newCUs, cus...)
	}

	ix.files = append(ix.files, newFiles...)
	baseCUIdx := uint32(len(ix.cus))
	ix.cus = append(ix.cus, newCUs...)

	return ix.indexCUs(baseFileIdx, baseCUIdx, newCUs)
}

func (ix *Index) indexCUs(baseFileIdx, baseCUIdx uint32, cus []*compilationUnit) error {
	_ = baseFileIdx

	if len(cus) == 0 {
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(cus) {
		workers = len(cus)
	}

	var cursor atomic.Int64

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(workers)

	fileIdx := make(map[*elfobj.File]uint32, len(ix.files))
	for i, f := range ix.files {
		fileIdx[f] = uint32(i)
	}

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := cursor.Add(1) - 1
				if int(i) >= len(cus) {
					return nil
				}

				cu := cus[i]

				abbrev := getAbbrevTable()

				if err := readAbbrevTable(abbrev, cu.file.Abbrev.Bytes(cu.file.Data()), cu.debugAbbrevOff, cu.is64Bit, cu.addressSize); err != nil {
					putAbbrevTable(abbrev)

					return err
				}

				st := &cuWalkState{
					f:       cu.file,
					cu:      cu,
					cuIdx:   baseCUIdx + uint32(i),
					fileIdx: fileIdx[cu.file],
					abbrev:  abbrev,
					table:   ix.table,
				}

				walkErr := st.walk()

				putAbbrevTable(abbrev)

				if st.fileNames != nil {
					putFileNameTable(st.fileNames)
				}

				if walkErr != nil {
					return walkErr
				}

				atomic.StoreInt32(&ix.addressSize, int32(cu.addressSize))
			}
		})
	}

	return g.Wait()
}

// Find returns every indexed location named name. tag==0 matches any tag.
// An empty result is reported as direrr.ErrNotFound.
func (ix *Index) Find(name string, tag uint8) ([]Location, error) {
	results := ix.table.lookup(name, tag)
	if len(results) == 0 {
		return nil, direrr.NotFound(name)
	}

	out := make([]Location, 0, len(results))

	for _, r := range results {
		if int(r.fileIdx) >= len(ix.files) {
			continue
		}

		dieOffset := r.dieOffset
		if int(r.cu) < len(ix.cus) {
			dieOffset -= ix.cus[r.cu].ptr
		}

		f := ix.files[r.fileIdx]
		out = append(out, Location{
			File:      f.Path,
			CUOffset:  ix.cuOffsetFor(r.cu),
			DIEOffset: dieOffset,
			Tag:       r.tag,
		})
	}

	if len(out) == 0 {
		return nil, direrr.NotFound(name)
	}

	return out, nil
}

// Resolve materializes a Location into the caller's own object, chaining the
// Resolver's File/CompilationUnit/DIE hops. It returns direrr.NotImplemented
// if the Index was constructed with a nil Resolver.
func (ix *Index) Resolve(loc Location) (any, error) {
	if ix.resolver == nil {
		return nil, direrr.NotImplemented("Index was constructed without a Resolver")
	}

	var fileData []byte

	for _, f := range ix.files {
		if f.Path == loc.File {
			fileData = f.Data()

			break
		}
	}

	file, err := ix.resolver.File(loc.File, fileData)
	if err != nil {
		return nil, err
	}

	cu, err := ix.resolver.CompilationUnit(file, loc.CUOffset)
	if err != nil {
		return nil, err
	}

	return ix.resolver.DIE(cu, loc.DIEOffset)
}

func (ix *Index) cuOffsetFor(cuIdx uint32) uint64 {
	if int(cuIdx) >= len(ix.cus) {
		return 0
	}

	cu := ix.cus[cuIdx]

	return cu.ptr - cu.file.Info.Offset
}

// Close releases every file's mmap'd memory.
func (ix *Index) Close() error {
	var first error

	for _, f := range ix.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}
