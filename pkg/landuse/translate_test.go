package landuse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/grid"
)

func writeLookup(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lookup.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadLookupCSV(t *testing.T) {
	lut, err := ReadLookupCSV(writeLookup(t, "globalcode,SWATCODE\nC_WW,WWHT\nC_BA,BARL\nF_2_Pa,FRSE\nW_Pa,FRSE\n"))
	if err != nil {
		t.Fatalf("ReadLookupCSV: %v", err)
	}

	if lut.Len() != 4 {
		t.Errorf("Len = %d, want 4", lut.Len())
	}

	// Target codes assigned by first appearance: WWHT=1, BARL=2, FRSE=3.
	code, ok := lut.Lookup("F_2_Pa")
	if !ok || code != 3 {
		t.Errorf("Lookup(F_2_Pa) = %d, %v, want 3", code, ok)
	}

	// Many-to-one: both forest labels share FRSE.
	wpa, _ := lut.Lookup("W_Pa")
	if wpa != code {
		t.Errorf("W_Pa -> %d, F_2_Pa -> %d, want same target", wpa, code)
	}

	class, ok := lut.Class(code)
	if !ok || class.Name != "FRSE" {
		t.Errorf("Class(%d) = %+v, want FRSE", code, class)
	}
}

func TestReadLookupCSVDuplicateLabel(t *testing.T) {
	_, err := ReadLookupCSV(writeLookup(t, "C_WW,WWHT\nC_WW,BARL\n"))
	if err == nil {
		t.Error("duplicate label should be rejected")
	}
}

func TestReadLookupCSVEmptyTarget(t *testing.T) {
	_, err := ReadLookupCSV(writeLookup(t, "C_WW,\n"))
	if err == nil {
		t.Error("empty target class should be rejected")
	}
}

func TestTranslate(t *testing.T) {
	reg := NewRegistry()
	corn, _ := reg.Register("C", "corn")
	forest, _ := reg.Register("F", "spruce")

	lut, err := ReadLookupCSV(writeLookup(t, "C_corn,CORN\nF_spruce,FRSE\n"))
	if err != nil {
		t.Fatalf("ReadLookupCSV: %v", err)
	}

	r := grid.New(spec1x2())
	r.Set(0, 0, corn)
	r.Set(0, 1, forest)

	out, err := Translate(r, reg, lut)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	cornTarget, _ := lut.Lookup("C_corn")
	forestTarget, _ := lut.Lookup("F_spruce")
	if out.At(0, 0) != cornTarget || out.At(0, 1) != forestTarget {
		t.Errorf("translated cells = %d, %d, want %d, %d",
			out.At(0, 0), out.At(0, 1), cornTarget, forestTarget)
	}

	// Input raster is untouched.
	if r.At(0, 0) != corn {
		t.Error("Translate must not mutate its input")
	}
}

func TestTranslateNoDataPassthrough(t *testing.T) {
	reg := NewRegistry()
	code, _ := reg.Register("C", "corn")
	lut, _ := ReadLookupCSV(writeLookup(t, "C_corn,CORN\n"))

	r := grid.New(spec1x2())
	r.Set(0, 0, code)

	out, err := Translate(r, reg, lut)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out.At(0, 1) != grid.NoData {
		t.Errorf("NoData cell = %d, want NoData", out.At(0, 1))
	}
}

func TestTranslateUnmappedCodes(t *testing.T) {
	reg := NewRegistry()
	a, _ := reg.Register("C", "corn")
	b, _ := reg.Register("C", "oats")
	lut, _ := ReadLookupCSV(writeLookup(t, "C_corn,CORN\n"))

	r := grid.New(spec1x2())
	r.Set(0, 0, a)
	r.Set(0, 1, b)

	_, err := Translate(r, reg, lut)
	if !errors.Is(err, errors.ErrCodeUnmappedCode) {
		t.Fatalf("err = %v, want UNMAPPED_CODE", err)
	}
	if !strings.Contains(err.Error(), "C_oats") {
		t.Errorf("error should name the offending label: %v", err)
	}
}
