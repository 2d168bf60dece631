package blockfile

import (
	"fmt"
	"path/filepath"
	"sort"
)

// FileName returns the name of the i-th file of the sequence.
func FileName(i uint32) string {
	return fmt.Sprintf("blk%05d.dat", i)
}

func FilePath(dir string, i uint32) string {
	return filepath.Join(dir, FileName(i))
}

// ListFiles returns the indexes of the block files present in dir, ascending.
func ListFiles(dir string) ([]uint32, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "blk*.dat"))
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(paths))
	for _, p := range paths {
		var i uint32
		if _, err := fmt.Sscanf(filepath.Base(p), "blk%d.dat", &i); err != nil {
			continue
		}
		if FileName(i) != filepath.Base(p) {
			continue
		}
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out, nil
}
