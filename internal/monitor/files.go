package monitor

import (
	"sort"
	"strings"

	"github.com/logpatrol/logpatrol/pkg/types"
)

// KindOf classifies a remote file name. Admin logs (.ADM) carry the player
// activity feed; server reports (.RPT) carry engine diagnostics.
func KindOf(name string) types.FileKind {
	switch {
	case strings.HasSuffix(strings.ToUpper(name), ".ADM"):
		return types.FileKindAdminLog
	case strings.HasSuffix(strings.ToUpper(name), ".RPT"):
		return types.FileKindServerReport
	default:
		return types.FileKindGeneric
	}
}

// selectFiles picks the files worth polling this tick: the most recently
// modified file of each interesting kind, bounded by max. Generic files are
// ignored entirely.
func selectFiles(files []types.FileMeta, max int) []types.FileMeta {
	if max <= 0 {
		max = 2
	}

	sorted := make([]types.FileMeta, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ModifiedAt.After(sorted[j].ModifiedAt)
	})

	seen := make(map[types.FileKind]bool)
	var picked []types.FileMeta
	for _, f := range sorted {
		kind := KindOf(f.Name)
		if kind == types.FileKindGeneric || seen[kind] {
			continue
		}
		seen[kind] = true
		picked = append(picked, f)
		if len(picked) == max {
			break
		}
	}
	return picked
}
