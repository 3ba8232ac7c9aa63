package landuse

import (
	"sort"

	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/grid"
)

// Ranked pairs an input raster with its declared merge priority.
// Lower rank means higher priority. Equal ranks fall back to slice
// order, earlier wins, so the result is total and deterministic even
// when the configuration omits explicit ranks.
type Ranked struct {
	Name   string
	Rank   int
	Raster *grid.Raster
}

// Merge overlays aligned rasters by priority: each output cell takes
// the code of the highest-priority input with a value at that cell, and
// stays NoData only when every input is NoData there. This is the
// raster equivalent of the first-layer-wins overlay fold the update
// workflow is built around.
//
// All inputs must share the grid spec of the first; anything else fails
// with GRID_MISMATCH rather than resampling.
func Merge(inputs []Ranked) (*grid.Raster, error) {
	if len(inputs) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "merge: no input rasters")
	}

	ordered := make([]Ranked, len(inputs))
	copy(ordered, inputs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	ref := ordered[0].Raster.Spec
	for _, in := range ordered {
		if !in.Raster.Spec.Equal(ref) {
			return nil, errors.New(errors.ErrCodeGridMismatch,
				"merge: raster %q grid %+v does not match reference %+v", in.Name, in.Raster.Spec, ref)
		}
	}

	out := grid.New(ref)
	for i := range out.Cells {
		for _, in := range ordered {
			if c := in.Raster.Cells[i]; c != grid.NoData {
				out.Cells[i] = c
				break
			}
		}
	}
	return out, nil
}
