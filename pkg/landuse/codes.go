// Package landuse implements the raster construction core: category
// code registration, vector-layer rasterization, priority merging,
// code translation, change analysis and final assembly.
//
// The stages form a linear chain; each consumes the previous stage's
// raster artifact and produces a new one. All stages are deterministic,
// so re-running any stage with identical inputs reproduces its output
// byte for byte.
package landuse

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/hydrolt/luraster/pkg/errors"
)

// codeSep joins the layer prefix and the attribute value into a label.
const codeSep = "_"

// Label builds the category label for a (prefix, value) pair, e.g.
// ("C", "WW") -> "C_WW". Labels are the human-readable identity of a
// category code and the join key against the global lookup table.
func Label(prefix, value string) string {
	return prefix + codeSep + value
}

// Registry assigns integer category codes to (prefix, value) pairs.
// Codes are sequential starting at 1 in registration order, which makes
// the encoding deterministic across runs given the same layer
// declaration order. The registry asserts at registration time that a
// label never maps to two different source pairs, so codes are
// collision-free by construction rather than by string discipline.
type Registry struct {
	byLabel map[string]int32
	pairs   map[string][2]string // label -> (prefix, value) that registered it
	labels  []string             // index i holds the label of code i+1
}

// NewRegistry creates an empty code registry.
func NewRegistry() *Registry {
	return &Registry{
		byLabel: make(map[string]int32),
		pairs:   make(map[string][2]string),
	}
}

// Register returns the category code for (prefix, value), assigning the
// next free code on first registration. Registering the same pair again
// returns the same code. A label collision between two different pairs
// fails with CODE_CONFLICT; silently reusing the code would give one
// integer two meanings in the merged raster.
func (r *Registry) Register(prefix, value string) (int32, error) {
	label := Label(prefix, value)
	if code, ok := r.byLabel[label]; ok {
		if p := r.pairs[label]; p[0] != prefix || p[1] != value {
			return 0, errors.New(errors.ErrCodeCodeConflict,
				"label %q already registered by (%q, %q), refusing (%q, %q)",
				label, p[0], p[1], prefix, value)
		}
		return code, nil
	}
	code := int32(len(r.labels) + 1)
	r.byLabel[label] = code
	r.pairs[label] = [2]string{prefix, value}
	r.labels = append(r.labels, label)
	return code, nil
}

// Code returns the code registered for label.
func (r *Registry) Code(label string) (int32, bool) {
	code, ok := r.byLabel[label]
	return code, ok
}

// LabelOf returns the label of a registered code.
func (r *Registry) LabelOf(code int32) (string, bool) {
	if code < 1 || int(code) > len(r.labels) {
		return "", false
	}
	return r.labels[code-1], true
}

// Len returns the number of registered codes.
func (r *Registry) Len() int {
	return len(r.labels)
}

// Labels returns all registered labels in code order.
func (r *Registry) Labels() []string {
	out := make([]string, len(r.labels))
	copy(out, r.labels)
	return out
}

// WriteLegendCSV writes the registry as a two-column legend artifact
// (code, label), one row per registered code in code order.
func WriteLegendCSV(path string, r *Registry) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "legend: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"code", "label"}); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "legend: write header")
	}
	for i, label := range r.labels {
		if err := w.Write([]string{strconv.Itoa(i + 1), label}); err != nil {
			return errors.Wrap(errors.ErrCodeIOWrite, err, "legend: write row %d", i+1)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "legend: flush %s", path)
	}
	return nil
}

// ReadLegendCSV restores a registry from a legend artifact. Codes must
// be the contiguous sequence 1..n in order; anything else means the
// artifact was edited by hand and can no longer be trusted.
func ReadLegendCSV(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "legend: open %s", path)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "legend: parse %s", path)
	}
	if len(rows) == 0 {
		return nil, errors.New(errors.ErrCodeIORead, "legend: %s is empty", path)
	}

	r := NewRegistry()
	for i, row := range rows[1:] {
		if len(row) < 2 {
			return nil, errors.New(errors.ErrCodeIORead, "legend: row %d has %d columns, want 2", i+2, len(row))
		}
		code, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIORead, err, "legend: row %d code %q", i+2, row[0])
		}
		if code != i+1 {
			return nil, errors.New(errors.ErrCodeIORead,
				"legend: row %d has code %d, want contiguous sequence", i+2, code)
		}
		label := row[1]
		prefix, value, _ := strings.Cut(label, codeSep)
		r.byLabel[label] = int32(code)
		r.pairs[label] = [2]string{prefix, value}
		r.labels = append(r.labels, label)
	}
	return r, nil
}
