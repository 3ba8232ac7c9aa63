package landuse

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/grid"
)

// LookupRow is one row of the emitted final lookup table: a target
// class code present in the final raster and its model code name.
type LookupRow struct {
	Code int32
	Name string
}

// AssembleOptions controls final assembly.
type AssembleOptions struct {
	// OverrideFirst gives the override raster priority over the
	// translated merge output. The default keeps the merge output
	// authoritative and lets the override only fill uncovered cells,
	// matching the position of the impervious layer at the end of the
	// declared merge order.
	OverrideFirst bool
}

// Assemble combines the translated raster with an optional override
// raster (already translated into the same target scheme) using the
// merge priority rule, and derives the minimal lookup table for the
// result: exactly one row per distinct code present in the final
// raster, no extra rows, no missing rows. The emitted table is the
// authoritative code dictionary of the output artifact.
func Assemble(translated, override *grid.Raster, lut *LookupTable, opts AssembleOptions) (*grid.Raster, []LookupRow, error) {
	final := translated
	if override != nil {
		inputs := []Ranked{
			{Name: "translated", Rank: 0, Raster: translated},
			{Name: "override", Rank: 1, Raster: override},
		}
		if opts.OverrideFirst {
			inputs[0].Rank, inputs[1].Rank = 1, 0
		}
		merged, err := Merge(inputs)
		if err != nil {
			return nil, nil, err
		}
		final = merged
	}

	var rows []LookupRow
	for _, code := range final.DistinctCodes() {
		class, ok := lut.Class(code)
		if !ok {
			return nil, nil, errors.New(errors.ErrCodeUnmappedCode,
				"assemble: code %d present in final raster has no target class", code)
		}
		rows = append(rows, LookupRow{Code: code, Name: class.Name})
	}
	return final, rows, nil
}

// WriteFinalLookupCSV writes the emitted lookup table artifact paired
// with the final raster.
func WriteFinalLookupCSV(path string, rows []LookupRow) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "final lookup: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"code", "target"}); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "final lookup: write header")
	}
	for _, r := range rows {
		if err := w.Write([]string{strconv.Itoa(int(r.Code)), r.Name}); err != nil {
			return errors.Wrap(errors.ErrCodeIOWrite, err, "final lookup: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "final lookup: flush %s", path)
	}
	return nil
}
