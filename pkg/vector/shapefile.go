package vector

import (
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"

	"github.com/hydrolt/luraster/pkg/errors"
)

// ShapefileOptions controls how a shapefile is loaded into a Layer.
type ShapefileOptions struct {
	// Attribute is the field holding the land-use value to rasterize on.
	Attribute string

	// GridProj4 is the grid CRS. Layers in a different CRS are
	// reprojected; layers without a .prj are assumed to already be in
	// the grid CRS, matching the original update workflow.
	GridProj4 string

	// Include, when non-empty, keeps only features whose attribute
	// value is listed. Exclude drops listed values. Include is applied
	// before Exclude.
	Include []string
	Exclude []string

	// FixedValue, when set, replaces every feature's attribute value.
	// Used for layers that map to a single class regardless of their
	// attributes (e.g. abandoned land).
	FixedValue string

	// Bounds, when set, drops features whose bounding box does not
	// overlap it. Applied after reprojection, so national datasets can
	// be clipped to the grid extent at load time.
	Bounds *geom.Bounds
}

// ClipBounds builds the clip rectangle for a grid extent.
func ClipBounds(xmin, ymin, xmax, ymax float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: xmin, Y: ymin},
		Max: geom.Point{X: xmax, Y: ymax},
	}
}

// LoadShapefile reads the polygon features of a shapefile into a Layer,
// reprojecting into the grid CRS where needed and applying the
// attribute filters. It fails with UNALIGNED_GRID when the CRS cannot
// be resolved onto the grid, and with EMPTY_LAYER when no features
// survive loading, since a silently empty layer would make the merged
// raster wrong without a trace.
func LoadShapefile(name, path string, opts ShapefileOptions) (*Layer, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "layer %q: open shapefile %s", name, path)
	}
	defer dec.Close()

	trans, err := gridTransform(name, dec, opts.GridProj4)
	if err != nil {
		return nil, err
	}

	include := toSet(opts.Include)
	exclude := toSet(opts.Exclude)

	layer := NewLayer(name)
	for {
		g, fields, more := dec.DecodeRowFields(opts.Attribute)
		if !more {
			break
		}

		value, ok := fields[opts.Attribute]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidConfig,
				"layer %q: attribute column %q missing in %s", name, opts.Attribute, path)
		}
		if opts.FixedValue != "" {
			value = opts.FixedValue
		}
		if len(include) > 0 {
			if _, ok := include[value]; !ok {
				continue
			}
		}
		if _, ok := exclude[value]; ok {
			continue
		}

		if trans != nil {
			if g, err = g.Transform(trans); err != nil {
				return nil, errors.Wrap(errors.ErrCodeUnalignedGrid, err,
					"layer %q: reproject feature %d", name, layer.Len())
			}
		}

		poly, ok := g.(geom.Polygonal)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidConfig,
				"layer %q: feature %d is %T, need polygon or multipolygon", name, layer.Len(), g)
		}
		if opts.Bounds != nil && !opts.Bounds.Overlaps(poly.Bounds()) {
			continue
		}
		layer.Add(poly, value)
	}
	if err := dec.Error(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "layer %q: decode %s", name, path)
	}

	if layer.Len() == 0 {
		return nil, errors.New(errors.ErrCodeEmptyLayer,
			"layer %q: %s yields no geometries after filtering", name, path)
	}
	return layer, nil
}

// gridTransform resolves the transform from the shapefile CRS to the
// grid CRS. A nil transform means the layer is taken as already
// aligned: either the shapefile carries no projection, or both sides
// parse to the same reference.
func gridTransform(name string, dec *shp.Decoder, gridProj4 string) (proj.Transformer, error) {
	gridSR, err := proj.Parse(gridProj4)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnalignedGrid, err,
			"layer %q: parse grid CRS %q", name, gridProj4)
	}

	srcSR, err := dec.SR()
	if err != nil {
		// No usable .prj: assume the layer is in the grid CRS.
		return nil, nil
	}

	trans, err := srcSR.NewTransform(gridSR)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnalignedGrid, err,
			"layer %q: no transform from layer CRS to grid CRS", name)
	}
	return trans, nil
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
