package landuse

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"

	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/grid"
)

// ChangeKind classifies one (old, new) code pair of the comparison
// between the current and the previous land-use raster.
type ChangeKind string

const (
	// Unchanged covers identical codes, including both-NoData cells.
	Unchanged ChangeKind = "unchanged"
	// Changed covers cells reclassified between two valid codes.
	Changed ChangeKind = "changed"
	// Gained covers cells that were NoData and now carry a code
	// (new coverage).
	Gained ChangeKind = "gained"
	// Lost covers cells that carried a code and are now NoData
	// (lost coverage).
	Lost ChangeKind = "lost"
)

// DiffEntry aggregates all cells sharing one (old, new) code pair.
type DiffEntry struct {
	Old   int32
	New   int32
	Kind  ChangeKind
	Cells int
	Area  float64 // cells x cell area, squared map units
}

// DiffResult is the read-only change summary between two raster
// versions. It is advisory output for reviewing a land-use update and
// never feeds back into the pipeline.
type DiffResult struct {
	Entries  []DiffEntry
	CellArea float64
}

// classify reduces an (old, new) pair to its change kind.
func classify(old, new int32) ChangeKind {
	switch {
	case old == new:
		return Unchanged
	case old == grid.NoData:
		return Gained
	case new == grid.NoData:
		return Lost
	default:
		return Changed
	}
}

// Diff compares the current raster against a previous version cell by
// cell and aggregates counts and areas per (old, new) pair. Both
// rasters must share the grid spec; comparing differently gridded
// rasters fails with GRID_MISMATCH instead of producing a result.
// Entries are sorted by (old, new) for stable output.
func Diff(current, previous *grid.Raster) (*DiffResult, error) {
	if !current.Spec.Equal(previous.Spec) {
		return nil, errors.New(errors.ErrCodeGridMismatch,
			"diff: current grid %+v does not match previous %+v", current.Spec, previous.Spec)
	}

	type pair struct{ old, new int32 }
	counts := make(map[pair]int)
	for i, cur := range current.Cells {
		counts[pair{previous.Cells[i], cur}]++
	}

	area := current.Spec.CellArea()
	res := &DiffResult{CellArea: area}
	for p, n := range counts {
		res.Entries = append(res.Entries, DiffEntry{
			Old:   p.old,
			New:   p.new,
			Kind:  classify(p.old, p.new),
			Cells: n,
			Area:  float64(n) * area,
		})
	}
	sort.Slice(res.Entries, func(i, j int) bool {
		if res.Entries[i].Old != res.Entries[j].Old {
			return res.Entries[i].Old < res.Entries[j].Old
		}
		return res.Entries[i].New < res.Entries[j].New
	})
	return res, nil
}

// ChangedArea returns the total area of cells whose classification
// changed, including gained and lost coverage.
func (d *DiffResult) ChangedArea() float64 {
	var a float64
	for _, e := range d.Entries {
		if e.Kind != Unchanged {
			a += e.Area
		}
	}
	return a
}

// WriteDiffCSV writes the change summary as a CSV artifact with one
// row per (old, new) pair. NoData codes are written as empty fields.
func WriteDiffCSV(path string, d *DiffResult) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "diff: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"old", "new", "kind", "cells", "area_km2"}); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "diff: write header")
	}
	for _, e := range d.Entries {
		row := []string{
			codeField(e.Old),
			codeField(e.New),
			string(e.Kind),
			strconv.Itoa(e.Cells),
			strconv.FormatFloat(e.Area/1e6, 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return errors.Wrap(errors.ErrCodeIOWrite, err, "diff: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "diff: flush %s", path)
	}
	return nil
}

func codeField(code int32) string {
	if code == grid.NoData {
		return ""
	}
	return strconv.Itoa(int(code))
}
