package landuse

import (
	"testing"

	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/grid"
)

func TestAssembleOverrideFillsGaps(t *testing.T) {
	lut, err := ReadLookupCSV(writeLookup(t, "C_WW,WWHT\nU_URLD,URLD\n"))
	if err != nil {
		t.Fatalf("ReadLookupCSV: %v", err)
	}
	crop, _ := lut.Lookup("C_WW")
	urban, _ := lut.Lookup("U_URLD")

	translated := grid.New(spec1x2())
	translated.Set(0, 0, crop)

	override := grid.New(spec1x2())
	override.Set(0, 0, urban)
	override.Set(0, 1, urban)

	final, rows, err := Assemble(translated, override, lut, AssembleOptions{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if final.At(0, 0) != crop {
		t.Errorf("covered cell = %d, want translated value %d", final.At(0, 0), crop)
	}
	if final.At(0, 1) != urban {
		t.Errorf("uncovered cell = %d, want override value %d", final.At(0, 1), urban)
	}

	// Minimal lookup: exactly the codes present in the final raster.
	if len(rows) != 2 {
		t.Fatalf("got %d lookup rows, want 2: %+v", len(rows), rows)
	}
	names := map[int32]string{crop: "WWHT", urban: "URLD"}
	for _, r := range rows {
		if names[r.Code] != r.Name {
			t.Errorf("row %+v, want name %q", r, names[r.Code])
		}
	}
}

func TestAssembleOverrideFirst(t *testing.T) {
	lut, _ := ReadLookupCSV(writeLookup(t, "C_WW,WWHT\nU_URLD,URLD\n"))
	crop, _ := lut.Lookup("C_WW")
	urban, _ := lut.Lookup("U_URLD")

	translated := grid.New(spec1x2())
	translated.Set(0, 0, crop)
	override := grid.New(spec1x2())
	override.Set(0, 0, urban)

	final, _, err := Assemble(translated, override, lut, AssembleOptions{OverrideFirst: true})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if final.At(0, 0) != urban {
		t.Errorf("cell = %d, want override value %d", final.At(0, 0), urban)
	}
}

func TestAssembleNoOverride(t *testing.T) {
	lut, _ := ReadLookupCSV(writeLookup(t, "C_WW,WWHT\n"))
	crop, _ := lut.Lookup("C_WW")

	translated := grid.New(spec1x2())
	translated.Set(0, 0, crop)

	final, rows, err := Assemble(translated, nil, lut, AssembleOptions{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if final != translated {
		t.Error("without an override the translated raster passes through")
	}
	if len(rows) != 1 || rows[0].Name != "WWHT" {
		t.Errorf("rows = %+v, want single WWHT row", rows)
	}
}

func TestAssembleLookupOmitsAbsentCodes(t *testing.T) {
	lut, _ := ReadLookupCSV(writeLookup(t, "C_WW,WWHT\nC_BA,BARL\n"))
	crop, _ := lut.Lookup("C_WW")

	translated := grid.New(spec1x2())
	translated.Set(0, 0, crop)

	_, rows, err := Assemble(translated, nil, lut, AssembleOptions{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, r := range rows {
		if r.Name == "BARL" {
			t.Error("lookup table must not carry codes absent from the raster")
		}
	}
}

func TestAssembleUnmappedCode(t *testing.T) {
	lut, _ := ReadLookupCSV(writeLookup(t, "C_WW,WWHT\n"))

	translated := grid.New(spec1x2())
	translated.Set(0, 0, 99)

	_, _, err := Assemble(translated, nil, lut, AssembleOptions{})
	if !errors.Is(err, errors.ErrCodeUnmappedCode) {
		t.Errorf("err = %v, want UNMAPPED_CODE", err)
	}
}
