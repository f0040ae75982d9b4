package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/stratadb/strata/pkg/strataerr"
)

// fscanSegmentName parses "wal-NNNNNN.seg" into its numeric index,
// returning an error for any name that doesn't match (e.g. MANIFEST,
// .tmp files, stray entries) so listSegmentIndices can ignore them.
func fscanSegmentName(name string, out *uint32) (int, error) {
	var idx uint32
	n, err := fmt.Sscanf(name, "wal-%d.seg", &idx)
	if err != nil {
		return n, err
	}
	*out = idx
	return n, nil
}

func sortUint32s(s []uint32) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}

// ListSegmentIndices returns every segment index present in dir, in
// ascending order, for a checkpoint coordinator deciding which
// retired segments are safe to remove.
func ListSegmentIndices(dir string) ([]uint32, error) {
	return listSegmentIndices(dir)
}

// RemoveSegment deletes segment index's file from dir. The caller is
// responsible for never removing the active (tail) segment or any
// segment whose max version exceeds the retired watermark.
func RemoveSegment(dir string, index uint32) error {
	path := filepath.Join(dir, SegmentFileName(index))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return strataerr.Wrap(strataerr.Io, err, "remove retired wal segment %s", path)
	}
	return nil
}
