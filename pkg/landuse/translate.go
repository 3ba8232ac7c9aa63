package landuse

import (
	"encoding/csv"
	"os"
	"sort"
	"strings"

	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/grid"
)

// TargetClass is one class of the target classification scheme (the
// model's code dictionary). Codes are integers assigned by first
// appearance in the lookup file, names are the model codes themselves
// (e.g. "CORN", "FRSE", "URHD").
type TargetClass struct {
	Code int32
	Name string
}

// LookupTable maps category labels to target classes. It is loaded
// once at startup and read-only for the rest of the run; the mapping is
// many-to-one and must be total over every code the pipeline produces.
type LookupTable struct {
	byLabel map[string]int32
	classes []TargetClass // index i holds the class with code i+1
}

// ReadLookupCSV loads a two-column lookup table (label, target class
// name). Rows with an empty target are rejected: a label explicitly
// present but unmapped would otherwise turn into a silent default
// downstream. Target codes are assigned 1..n by first appearance of
// each class name, so repeated loads of the same file give identical
// codes.
func ReadLookupCSV(path string) (*LookupTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "lookup: open %s", path)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "lookup: parse %s", path)
	}

	t := &LookupTable{byLabel: make(map[string]int32)}
	byName := make(map[string]int32)
	for i, row := range rows {
		if len(row) < 2 {
			return nil, errors.New(errors.ErrCodeIORead, "lookup: row %d has %d columns, want 2", i+1, len(row))
		}
		label, name := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if i == 0 && isLookupHeader(label) {
			continue
		}
		if name == "" {
			return nil, errors.New(errors.ErrCodeIORead, "lookup: row %d: label %q has empty target class", i+1, label)
		}
		if _, dup := t.byLabel[label]; dup {
			return nil, errors.New(errors.ErrCodeIORead, "lookup: duplicate label %q at row %d", label, i+1)
		}

		code, ok := byName[name]
		if !ok {
			code = int32(len(t.classes) + 1)
			byName[name] = code
			t.classes = append(t.classes, TargetClass{Code: code, Name: name})
		}
		t.byLabel[label] = code
	}
	if len(t.byLabel) == 0 {
		return nil, errors.New(errors.ErrCodeIORead, "lookup: %s has no usable rows", path)
	}
	return t, nil
}

// isLookupHeader recognizes the header row of the lookup formats in
// circulation: our own exports and the source geodatabase's
// globallookup sheet.
func isLookupHeader(label string) bool {
	return strings.EqualFold(label, "label") || strings.EqualFold(label, "globalcode")
}

// Lookup returns the target class code for a category label.
func (t *LookupTable) Lookup(label string) (int32, bool) {
	code, ok := t.byLabel[label]
	return code, ok
}

// Class returns the target class for a target code.
func (t *LookupTable) Class(code int32) (TargetClass, bool) {
	if code < 1 || int(code) > len(t.classes) {
		return TargetClass{}, false
	}
	return t.classes[code-1], true
}

// Len returns the number of mapped labels.
func (t *LookupTable) Len() int {
	return len(t.byLabel)
}

// Translate produces a new raster with every category code replaced by
// its target class code. Before any cell is written, every distinct
// code present in the input is checked against the lookup table;
// missing entries fail with UNMAPPED_CODE listing all offenders, since
// a placeholder value would corrupt the model input. NoData passes
// through unchanged.
func Translate(r *grid.Raster, reg *Registry, lut *LookupTable) (*grid.Raster, error) {
	codes := r.DistinctCodes()

	mapping := make(map[int32]int32, len(codes))
	var unmapped []string
	for _, code := range codes {
		label, ok := reg.LabelOf(code)
		if !ok {
			return nil, errors.New(errors.ErrCodeInternal,
				"translate: code %d present in raster but absent from legend", code)
		}
		target, ok := lut.Lookup(label)
		if !ok {
			unmapped = append(unmapped, label)
			continue
		}
		mapping[code] = target
	}
	if len(unmapped) > 0 {
		sort.Strings(unmapped)
		return nil, errors.New(errors.ErrCodeUnmappedCode,
			"translate: %d codes missing from lookup table: %s",
			len(unmapped), strings.Join(unmapped, ", "))
	}

	out := grid.New(r.Spec)
	for i, c := range r.Cells {
		if c == grid.NoData {
			continue
		}
		out.Cells[i] = mapping[c]
	}
	return out, nil
}
