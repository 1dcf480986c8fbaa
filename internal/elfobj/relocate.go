package elfobj

import (
	"context"
	"encoding/binary"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/dwarfidx/internal/direrr"
)

type relocJob struct {
	file   *File
	target Section
	rela   relaSet
}

// ApplyRelocations applies every R_X86_64_{NONE,32,64} relocation targeting
// a debug section across all files, using a bounded worker pool. The first
// error encountered is returned once every worker has stopped.
func ApplyRelocations(files []*File) error {
	var jobs []relocJob

	for _, f := range files {
		if f.Skip {
			continue
		}

		add := func(target Section, rs relaSet) {
			if rs.present {
				jobs = append(jobs, relocJob{file: f, target: target, rela: rs})
			}
		}

		add(f.Abbrev, f.relAbbrev)
		add(f.Info, f.relInfo)
		add(f.Line, f.relLine)
		add(f.Str, f.relStr)
	}

	if len(jobs) == 0 {
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(jobs) {
		workers = len(jobs)
	}

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(workers)

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			return applyRelaSection(j.file, j.target, j.rela)
		})
	}

	return g.Wait()
}

func applyRelaSection(f *File, target Section, rs relaSet) error {
	data := f.data
	rela := data[rs.offset : rs.offset+rs.size]

	numSyms := int(f.Symtab.Size) / symSize

	for off := 0; off+relaSize <= len(rela); off += relaSize {
		entry := rela[off : off+relaSize]

		rOffset := binary.LittleEndian.Uint64(entry[0:])
		info := binary.LittleEndian.Uint64(entry[8:])
		addend := int64(binary.LittleEndian.Uint64(entry[16:]))

		symIdx := int(info >> 32)
		rType := uint32(info)

		if rType == rX8664None {
			continue
		}

		if symIdx < 0 || symIdx >= numSyms {
			return f.fail("BAD_RELOC_SYM", "relocation symbol index out of range")
		}

		sym := data[f.Symtab.Offset+uint64(symIdx)*symSize:]
		stValue := binary.LittleEndian.Uint64(sym[8:])

		var size uint64

		switch rType {
		case rX8664_32:
			size = 4
		case rX8664_64:
			size = 8
		default:
			return direrr.NotImplemented("unsupported relocation type")
		}

		if rOffset+size > target.Size {
			return f.fail("BAD_RELOC_OFFSET", "relocation offset outside target section")
		}

		writeOffset := target.Offset + rOffset
		value := stValue + uint64(addend)

		switch size {
		case 4:
			binary.LittleEndian.PutUint32(data[writeOffset:], uint32(value))
		case 8:
			binary.LittleEndian.PutUint64(data[writeOffset:], value)
		}
	}

	return nil
}
