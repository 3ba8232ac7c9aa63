package landuse

import (
	"math"

	"github.com/ctessum/geom"

	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/grid"
	"github.com/hydrolt/luraster/pkg/vector"
)

// Rasterizer converts one vector layer into a categorical raster
// aligned to a grid spec, registering category codes for the layer's
// attribute values under the layer's prefix.
type Rasterizer struct {
	Spec     grid.Spec
	Registry *Registry
}

// Rasterize burns the layer's features into a new raster. A cell takes
// the code of the geometry covering its center; cells covered by no
// geometry stay NoData, so "not covered" is always distinguishable from
// any category. Overlaps within the layer resolve last-registered-wins:
// features are burned in registration order and later features
// overwrite earlier ones.
//
// Codes are registered in feature registration order, which keeps the
// (prefix, value) -> code encoding reproducible across runs of the same
// configuration.
func (rz *Rasterizer) Rasterize(layer *vector.Layer, prefix string) (*grid.Raster, error) {
	if err := rz.Spec.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnalignedGrid, err, "layer %q: unusable grid", layer.Name)
	}
	if layer.Len() == 0 {
		return nil, errors.New(errors.ErrCodeEmptyLayer, "layer %q has no geometries", layer.Name)
	}

	out := grid.New(rz.Spec)
	extent := &geom.Bounds{
		Min: geom.Point{X: rz.Spec.Xmin, Y: rz.Spec.Ymin},
		Max: geom.Point{X: rz.Spec.Xmax, Y: rz.Spec.Ymax},
	}

	for _, f := range layer.Intersecting(extent) {
		code, err := rz.Registry.Register(prefix, f.Value)
		if err != nil {
			return nil, err
		}
		rz.burn(out, f.Geom, code)
	}
	return out, nil
}

// burn sets code on every cell whose center lies inside (or on the
// edge of) the polygon. Only the cell range overlapping the polygon's
// bounds is visited.
func (rz *Rasterizer) burn(out *grid.Raster, poly geom.Polygonal, code int32) {
	s := rz.Spec
	b := poly.Bounds()

	colMin := clamp(int(math.Floor((b.Min.X-s.Xmin)/s.CellSize)), 0, s.Ncols()-1)
	colMax := clamp(int(math.Ceil((b.Max.X-s.Xmin)/s.CellSize))-1, 0, s.Ncols()-1)
	rowMin := clamp(int(math.Floor((s.Ymax-b.Max.Y)/s.CellSize)), 0, s.Nrows()-1)
	rowMax := clamp(int(math.Ceil((s.Ymax-b.Min.Y)/s.CellSize))-1, 0, s.Nrows()-1)

	for row := rowMin; row <= rowMax; row++ {
		for col := colMin; col <= colMax; col++ {
			x, y := s.CellCenter(row, col)
			if (geom.Point{X: x, Y: y}).Within(poly) != geom.Outside {
				out.Set(row, col, code)
			}
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
