package delta

import (
	"github.com/pps83/zinc/hashlist"
)

// lookupTable is the two-level index the scan probes: weak digest
// first (cheap, rolling), then strong digest (computed only on weak
// hits). It yields the remote block index.
type lookupTable map[uint32]map[hashlist.StrongHash]int64

// buildIndex constructs the lookup table and the identical-block
// registry from the remote hash list.
//
// When several blocks share both hashes the table keeps only the last
// one inserted; the registry retains the full equivalence class, and
// the patcher propagates a resolved block to the rest of its class.
func buildIndex(hashes *hashlist.HashList) (lookupTable, map[int64][]int64) {
	lookup := make(lookupTable, hashes.Len())
	classes := make(map[hashlist.StrongHash][]int64)

	for i, h := range hashes.Blocks {
		inner, ok := lookup[h.Weak]
		if !ok {
			inner = make(map[hashlist.StrongHash]int64)
			lookup[h.Weak] = inner
		}
		inner[h.Strong] = int64(i)
		classes[h.Strong] = append(classes[h.Strong], int64(i))
	}

	registry := make(map[int64][]int64)
	for _, class := range classes {
		if len(class) < 2 {
			continue
		}
		for _, i := range class {
			others := make([]int64, 0, len(class)-1)
			for _, j := range class {
				if j != i {
					others = append(others, j)
				}
			}
			registry[i] = others
		}
	}

	return lookup, registry
}
