package vector

import (
	"testing"

	"github.com/ctessum/geom"
)

// square returns a unit-square polygon with its lower-left corner at (x, y).
func square(x, y, size float64) geom.Polygon {
	return geom.Polygon{{
		{X: x, Y: y},
		{X: x + size, Y: y},
		{X: x + size, Y: y + size},
		{X: x, Y: y + size},
	}}
}

func TestLayerAddKeepsOrder(t *testing.T) {
	l := NewLayer("crops")
	l.Add(square(0, 0, 1), "WW")
	l.Add(square(1, 0, 1), "BA")
	l.Add(square(2, 0, 1), "WW")

	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}
	for i, f := range l.Features() {
		if f.Seq != i {
			t.Errorf("feature %d has Seq %d", i, f.Seq)
		}
	}
}

func TestLayerIntersecting(t *testing.T) {
	l := NewLayer("crops")
	l.Add(square(0, 0, 1), "a")
	l.Add(square(10, 10, 1), "b")
	l.Add(square(0.5, 0.5, 1), "c")

	hits := l.Intersecting(&geom.Bounds{
		Min: geom.Point{X: 0, Y: 0},
		Max: geom.Point{X: 2, Y: 2},
	})
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	// Registration order, not rtree order
	if hits[0].Value != "a" || hits[1].Value != "c" {
		t.Errorf("hits out of order: %q, %q", hits[0].Value, hits[1].Value)
	}
}

func TestLayerValuesFirstAppearance(t *testing.T) {
	l := NewLayer("crops")
	l.Add(square(0, 0, 1), "WW")
	l.Add(square(1, 0, 1), "BA")
	l.Add(square(2, 0, 1), "WW")
	l.Add(square(3, 0, 1), "PO")

	got := l.Values()
	want := []string{"WW", "BA", "PO"}
	if len(got) != len(want) {
		t.Fatalf("Values = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
