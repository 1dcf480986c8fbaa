package dwarfindex

import "sync"

// Per-CU abbrevTable and fileNameTable backing storage is drawn from
// sync.Pools (one pool per table type, with no size classes) so concurrent
// workers don't allocate fresh slices for every compilation unit.
var (
	abbrevTablePool = sync.Pool{New: func() any { return &abbrevTable{} }}
	fileNameTablePool = sync.Pool{New: func() any { return &fileNameTable{} }}
)

func getAbbrevTable() *abbrevTable {
	t := abbrevTablePool.Get().(*abbrevTable)
	t.reset()

	return t
}

func putAbbrevTable(t *abbrevTable) {
	abbrevTablePool.Put(t)
}

func getFileNameTable() *fileNameTable {
	t := fileNameTablePool.Get().(*fileNameTable)
	t.reset()

	return t
}

func putFileNameTable(t *fileNameTable) {
	fileNameTablePool.Put(t)
}
