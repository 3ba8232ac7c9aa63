package landuse

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/grid"
)

// CodeStat is the per-category area summary of a raster.
type CodeStat struct {
	Code    int32
	Label   string
	Target  string // target class name, empty when no lookup entry exists
	Cells   int
	AreaKm2 float64
}

// ClassStat is the area summary grouped by target class.
type ClassStat struct {
	Target  string
	AreaKm2 float64
	Percent float64
}

// AreaStats summarizes a category raster: per-code cell counts and km²
// areas joined against the legend and lookup table, plus totals grouped
// by target class with area percentages. Codes without a lookup entry
// are reported with an empty target rather than failing; the stage is
// informational and the translator enforces totality where it matters.
func AreaStats(r *grid.Raster, reg *Registry, lut *LookupTable) ([]CodeStat, []ClassStat, error) {
	counts := r.CountCodes()

	codes := make([]int32, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	cellKm2 := r.Spec.CellArea() / 1e6
	byClass := make(map[string]float64)
	stats := make([]CodeStat, 0, len(codes))
	for _, code := range codes {
		label, ok := reg.LabelOf(code)
		if !ok {
			return nil, nil, errors.New(errors.ErrCodeInternal,
				"stats: code %d present in raster but absent from legend", code)
		}
		var target string
		if tc, ok := lut.Lookup(label); ok {
			if class, ok := lut.Class(tc); ok {
				target = class.Name
			}
		}
		area := float64(counts[code]) * cellKm2
		stats = append(stats, CodeStat{
			Code:    code,
			Label:   label,
			Target:  target,
			Cells:   counts[code],
			AreaKm2: area,
		})
		byClass[target] += area
	}

	names := make([]string, 0, len(byClass))
	areas := make([]float64, 0, len(byClass))
	for name := range byClass {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		areas = append(areas, byClass[name])
	}
	total := floats.Sum(areas)

	classes := make([]ClassStat, len(names))
	for i, name := range names {
		pct := 0.0
		if total > 0 {
			pct = areas[i] / total * 100
		}
		classes[i] = ClassStat{Target: name, AreaKm2: areas[i], Percent: pct}
	}
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].AreaKm2 != classes[j].AreaKm2 {
			return classes[i].AreaKm2 > classes[j].AreaKm2
		}
		return classes[i].Target < classes[j].Target
	})
	return stats, classes, nil
}

// WriteCodeStatsCSV writes the detailed per-code summary.
func WriteCodeStatsCSV(path string, stats []CodeStat) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "stats: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"code", "label", "target", "cells", "area_km2"}); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "stats: write header")
	}
	for _, s := range stats {
		row := []string{
			strconv.Itoa(int(s.Code)),
			s.Label,
			s.Target,
			strconv.Itoa(s.Cells),
			strconv.FormatFloat(s.AreaKm2, 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return errors.Wrap(errors.ErrCodeIOWrite, err, "stats: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "stats: flush %s", path)
	}
	return nil
}

// WriteClassStatsCSV writes the grouped per-class summary, largest
// area first.
func WriteClassStatsCSV(path string, classes []ClassStat) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "stats: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"target", "area_km2", "area_pct"}); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "stats: write header")
	}
	for _, c := range classes {
		row := []string{
			c.Target,
			strconv.FormatFloat(c.AreaKm2, 'f', 2, 64),
			strconv.FormatFloat(c.Percent, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return errors.Wrap(errors.ErrCodeIOWrite, err, "stats: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "stats: flush %s", path)
	}
	return nil
}
