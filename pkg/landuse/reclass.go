package landuse

import (
	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/grid"
)

// ReclassBreak is one bin of a threshold reclassification: values in
// (previous upper bound, Upper] map to Value. Breaks must be listed in
// ascending order of Upper.
type ReclassBreak struct {
	Upper int32
	Value string
}

// ImperviousBreaks is the default binning of a 0-100 percent
// imperviousness raster into the five urban density classes of the
// target scheme.
var ImperviousBreaks = []ReclassBreak{
	{Upper: 18, Value: "URLD"},
	{Upper: 26, Value: "URML"},
	{Upper: 44, Value: "URMD"},
	{Upper: 82, Value: "URHD"},
	{Upper: 100, Value: "UIDU"},
}

// Reclassify bins a continuous raster into categories registered under
// prefix. Cells at or below zero and cells above the last break stay
// NoData, mirroring the masking of the source impervious product. The
// result is the override raster for final assembly.
func Reclassify(src *grid.Raster, breaks []ReclassBreak, prefix string, reg *Registry) (*grid.Raster, error) {
	if len(breaks) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "reclassify: no breaks given")
	}
	for i := 1; i < len(breaks); i++ {
		if breaks[i].Upper <= breaks[i-1].Upper {
			return nil, errors.New(errors.ErrCodeInvalidConfig,
				"reclassify: breaks must ascend, %d after %d", breaks[i].Upper, breaks[i-1].Upper)
		}
	}

	// Register bin codes up front, in break order.
	codes := make([]int32, len(breaks))
	for i, b := range breaks {
		code, err := reg.Register(prefix, b.Value)
		if err != nil {
			return nil, err
		}
		codes[i] = code
	}

	out := grid.New(src.Spec)
	for i, v := range src.Cells {
		if v <= 0 || v == grid.NoData {
			continue
		}
		for j, b := range breaks {
			if v <= b.Upper {
				out.Cells[i] = codes[j]
				break
			}
		}
	}
	return out, nil
}
