package landuse

import (
	"testing"

	"github.com/ctessum/geom"

	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/grid"
	"github.com/hydrolt/luraster/pkg/vector"
)

// spec4x4 is a 4x4 grid of unit cells over (0,0)-(4,4).
func spec4x4() grid.Spec {
	return grid.Spec{Xmin: 0, Ymin: 0, Xmax: 4, Ymax: 4, CellSize: 1, Proj4: "+proj=longlat"}
}

func rect(xmin, ymin, xmax, ymax float64) geom.Polygon {
	return geom.Polygon{{
		{X: xmin, Y: ymin},
		{X: xmax, Y: ymin},
		{X: xmax, Y: ymax},
		{X: xmin, Y: ymax},
	}}
}

func TestRasterizeCoverage(t *testing.T) {
	l := vector.NewLayer("crops")
	// Left half of the grid
	l.Add(rect(0, 0, 2, 4), "WW")

	rz := &Rasterizer{Spec: spec4x4(), Registry: NewRegistry()}
	r, err := rz.Rasterize(l, "C")
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}

	code, _ := rz.Registry.Code("C_WW")
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			want := grid.NoData
			if col < 2 {
				want = code
			}
			if got := r.At(row, col); got != want {
				t.Errorf("cell (%d,%d) = %d, want %d", row, col, got, want)
			}
		}
	}
}

func TestRasterizeLastWins(t *testing.T) {
	l := vector.NewLayer("crops")
	l.Add(rect(0, 0, 4, 4), "WW")
	l.Add(rect(0, 0, 4, 4), "BA") // registered later, wins everywhere

	rz := &Rasterizer{Spec: spec4x4(), Registry: NewRegistry()}
	r, err := rz.Rasterize(l, "C")
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}

	ba, _ := rz.Registry.Code("C_BA")
	for i, c := range r.Cells {
		if c != ba {
			t.Fatalf("cell %d = %d, want later feature's code %d", i, c, ba)
		}
	}
}

func TestRasterizeDeterministicCodes(t *testing.T) {
	build := func() (*Registry, *grid.Raster) {
		l := vector.NewLayer("crops")
		l.Add(rect(0, 0, 1, 1), "WW")
		l.Add(rect(1, 0, 2, 1), "BA")
		l.Add(rect(2, 0, 3, 1), "WW")
		reg := NewRegistry()
		rz := &Rasterizer{Spec: spec4x4(), Registry: reg}
		r, err := rz.Rasterize(l, "C")
		if err != nil {
			t.Fatalf("Rasterize: %v", err)
		}
		return reg, r
	}

	reg1, r1 := build()
	reg2, r2 := build()

	if reg1.Len() != 2 || reg2.Len() != 2 {
		t.Fatalf("registry sizes = %d, %d, want 2", reg1.Len(), reg2.Len())
	}
	for i := range r1.Cells {
		if r1.Cells[i] != r2.Cells[i] {
			t.Fatalf("cell %d differs between identical runs", i)
		}
	}
}

func TestRasterizeEmptyLayer(t *testing.T) {
	rz := &Rasterizer{Spec: spec4x4(), Registry: NewRegistry()}
	_, err := rz.Rasterize(vector.NewLayer("empty"), "C")
	if !errors.Is(err, errors.ErrCodeEmptyLayer) {
		t.Errorf("err = %v, want EMPTY_LAYER", err)
	}
}

func TestRasterizeBadGrid(t *testing.T) {
	l := vector.NewLayer("crops")
	l.Add(rect(0, 0, 1, 1), "WW")

	bad := spec4x4()
	bad.CellSize = 0
	rz := &Rasterizer{Spec: bad, Registry: NewRegistry()}
	if _, err := rz.Rasterize(l, "C"); !errors.Is(err, errors.ErrCodeUnalignedGrid) {
		t.Errorf("err = %v, want UNALIGNED_GRID", err)
	}
}

func TestRasterizeOutsideExtent(t *testing.T) {
	l := vector.NewLayer("crops")
	l.Add(rect(100, 100, 200, 200), "WW")

	rz := &Rasterizer{Spec: spec4x4(), Registry: NewRegistry()}
	r, err := rz.Rasterize(l, "C")
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	for i, c := range r.Cells {
		if c != grid.NoData {
			t.Fatalf("cell %d = %d, want NoData for geometry outside extent", i, c)
		}
	}
}
