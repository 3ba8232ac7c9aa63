// Package grid defines the shared raster grid model for the land-use
// pipeline: the grid specification every raster must match, the
// single-band categorical raster itself, and the artifact format the
// pipeline stages exchange on disk.
//
// Every raster produced or consumed by a pipeline run carries the same
// Spec (cell size, extent, CRS). Spatial alignment is a precondition
// checked by the stages, never inferred or repaired.
package grid

import (
	"math"
	"sort"

	"github.com/hydrolt/luraster/pkg/errors"
)

// NoData is the sentinel marking a cell with no valid category.
// It is distinct from any category code the registry can assign
// (codes start at 1), so "not covered" never collides with a class.
const NoData int32 = -1

// Spec is the shared spatial definition of a raster: bounding extent,
// cell size in map units, and the coordinate reference system as a
// proj4 string. Specs are value types and compared exactly; two rasters
// are aligned if and only if their Specs are equal.
type Spec struct {
	Xmin     float64 `json:"xmin"`
	Ymin     float64 `json:"ymin"`
	Xmax     float64 `json:"xmax"`
	Ymax     float64 `json:"ymax"`
	CellSize float64 `json:"cell_size"`
	Proj4    string  `json:"proj4"`
}

// Ncols returns the number of grid columns. The span is rounded to
// whole cells: extents are validated to divide evenly, and rounding
// keeps a span landing a few ULPs under an integer from losing a
// column.
func (s Spec) Ncols() int {
	return int(math.Round((s.Xmax - s.Xmin) / s.CellSize))
}

// Nrows returns the number of grid rows.
func (s Spec) Nrows() int {
	return int(math.Round((s.Ymax - s.Ymin) / s.CellSize))
}

// Ncells returns the total cell count.
func (s Spec) Ncells() int {
	return s.Ncols() * s.Nrows()
}

// CellArea returns the area of one cell in squared map units.
func (s Spec) CellArea() float64 {
	return s.CellSize * s.CellSize
}

// CellCenter returns the map coordinates of the center of the cell at
// (row, col). Row 0 is the northernmost row, matching the top-down
// raster layout.
func (s Spec) CellCenter(row, col int) (x, y float64) {
	x = s.Xmin + (float64(col)+0.5)*s.CellSize
	y = s.Ymax - (float64(row)+0.5)*s.CellSize
	return x, y
}

// Equal reports whether two specs describe the identical grid.
func (s Spec) Equal(o Spec) bool {
	return s == o
}

// Validate checks that the spec describes a non-empty grid.
func (s Spec) Validate() error {
	if s.CellSize <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "grid: cell size must be positive, got %g", s.CellSize)
	}
	if s.Xmax <= s.Xmin || s.Ymax <= s.Ymin {
		return errors.New(errors.ErrCodeInvalidConfig,
			"grid: empty extent (%g, %g, %g, %g)", s.Xmin, s.Ymin, s.Xmax, s.Ymax)
	}
	if s.Ncols() == 0 || s.Nrows() == 0 {
		return errors.New(errors.ErrCodeInvalidConfig,
			"grid: extent smaller than one cell at cell size %g", s.CellSize)
	}
	return nil
}

// Raster is a single-band categorical grid. Cells are stored row-major
// with row 0 at the top (north). A raster is treated as immutable once
// a stage has finished producing it; later stages read it and emit new
// rasters instead of mutating in place.
type Raster struct {
	Spec  Spec
	Cells []int32
}

// New creates a raster for the given spec with every cell set to NoData.
func New(spec Spec) *Raster {
	cells := make([]int32, spec.Ncells())
	for i := range cells {
		cells[i] = NoData
	}
	return &Raster{Spec: spec, Cells: cells}
}

// At returns the code of the cell at (row, col).
func (r *Raster) At(row, col int) int32 {
	return r.Cells[row*r.Spec.Ncols()+col]
}

// Set assigns the code of the cell at (row, col).
func (r *Raster) Set(row, col int, code int32) {
	r.Cells[row*r.Spec.Ncols()+col] = code
}

// DistinctCodes returns the sorted set of non-NoData codes present.
func (r *Raster) DistinctCodes() []int32 {
	seen := make(map[int32]struct{})
	for _, c := range r.Cells {
		if c != NoData {
			seen[c] = struct{}{}
		}
	}
	codes := make([]int32, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// CountCodes returns the number of cells per non-NoData code.
func (r *Raster) CountCodes() map[int32]int {
	counts := make(map[int32]int)
	for _, c := range r.Cells {
		if c != NoData {
			counts[c]++
		}
	}
	return counts
}

// CheckAligned verifies that every raster shares the reference spec.
// It returns a GRID_MISMATCH error naming the first offender, with the
// expected and actual grid parameters, so the operator can correct the
// inputs and re-run the stage.
func CheckAligned(ref Spec, rasters ...*Raster) error {
	for i, r := range rasters {
		if !r.Spec.Equal(ref) {
			return errors.New(errors.ErrCodeGridMismatch,
				"raster %d: grid %+v does not match reference %+v", i, r.Spec, ref)
		}
	}
	return nil
}
