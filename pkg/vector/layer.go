// Package vector supplies the vector-layer inputs of the rasterization
// stage: polygon features tagged with a source attribute value, indexed
// for extent filtering, and loadable from shapefiles with coordinate
// reference handling.
//
// The pipeline core does not own vector data; this package is the thin
// collaborator that turns external geometry collections into iterable
// feature sets aligned to the grid CRS.
package vector

import (
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
)

// Feature is one polygon geometry tagged with its source attribute
// value. Seq records registration order; overlapping features within a
// layer are resolved last-registered-wins, so Seq is the deterministic
// tie-break.
type Feature struct {
	Geom  geom.Polygonal
	Value string
	Seq   int
}

// Bounds implements geom.Geom by delegating to the feature's geometry.
func (f *Feature) Bounds() *geom.Bounds {
	return f.Geom.Bounds()
}

// Similar implements geom.Geom by delegating to the feature's geometry.
func (f *Feature) Similar(g geom.Geom, tolerance float64) bool {
	return f.Geom.Similar(g, tolerance)
}

// Transform implements geom.Geom by delegating to the feature's geometry.
func (f *Feature) Transform(t proj.Transformer) (geom.Geom, error) {
	return f.Geom.Transform(t)
}

// Len implements geom.Geom by delegating to the feature's geometry.
func (f *Feature) Len() int {
	return f.Geom.Len()
}

// Points implements geom.Geom by delegating to the feature's geometry.
func (f *Feature) Points() func() geom.Point {
	return f.Geom.Points()
}

// Layer is an ordered collection of features sharing one attribute
// domain. Features keep their registration order; an rtree supports
// filtering to the grid extent before rasterization.
type Layer struct {
	Name     string
	features []*Feature
	tree     *rtree.Rtree
}

// NewLayer creates an empty named layer.
func NewLayer(name string) *Layer {
	return &Layer{
		Name: name,
		tree: rtree.NewTree(25, 50),
	}
}

// Add appends a feature to the layer, assigning the next sequence
// number.
func (l *Layer) Add(g geom.Polygonal, value string) {
	f := &Feature{Geom: g, Value: value, Seq: len(l.features)}
	l.features = append(l.features, f)
	l.tree.Insert(f)
}

// Len returns the number of features in the layer.
func (l *Layer) Len() int {
	return len(l.features)
}

// Features returns all features in registration order.
func (l *Layer) Features() []*Feature {
	return l.features
}

// Intersecting returns the features whose bounds overlap b, in
// registration order. The rtree search order is not deterministic, so
// results are re-sorted by sequence before returning.
func (l *Layer) Intersecting(b *geom.Bounds) []*Feature {
	hits := l.tree.SearchIntersect(b)
	out := make([]*Feature, len(hits))
	for i, h := range hits {
		out[i] = h.(*Feature)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Values returns the distinct attribute values present in the layer,
// in first-appearance order. The rasterizer registers category codes in
// this order, which keeps code assignment reproducible across runs.
func (l *Layer) Values() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range l.features {
		if _, ok := seen[f.Value]; ok {
			continue
		}
		seen[f.Value] = struct{}{}
		out = append(out, f.Value)
	}
	return out
}
