package landuse

import (
	"path/filepath"
	"testing"
)

func TestRegisterSequential(t *testing.T) {
	r := NewRegistry()

	c1, err := r.Register("C", "WW")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	c2, err := r.Register("C", "BA")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	c3, err := r.Register("F", "2_Pa")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if c1 != 1 || c2 != 2 || c3 != 3 {
		t.Errorf("codes = %d, %d, %d, want 1, 2, 3", c1, c2, c3)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	r := NewRegistry()
	first, _ := r.Register("C", "WW")
	again, err := r.Register("C", "WW")
	if err != nil {
		t.Fatalf("re-registering same pair: %v", err)
	}
	if first != again {
		t.Errorf("same pair got different codes: %d, %d", first, again)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegisterLabelConflict(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register("A", "B_C"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Different pair, same label "A_B_C"
	if _, err := r.Register("A_B", "C"); err == nil {
		t.Error("ambiguous label should be rejected")
	}
}

func TestLabelOf(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Register("W", "Pa")
	label, ok := r.LabelOf(code)
	if !ok || label != "W_Pa" {
		t.Errorf("LabelOf(%d) = %q, %v", code, label, ok)
	}
	if _, ok := r.LabelOf(99); ok {
		t.Error("unknown code should not resolve")
	}
}

func TestLegendRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.Register("C", "WW")
	r.Register("W", "Pa")
	r.Register("U", "URLD")

	path := filepath.Join(t.TempDir(), "legend.csv")
	if err := WriteLegendCSV(path, r); err != nil {
		t.Fatalf("WriteLegendCSV: %v", err)
	}
	got, err := ReadLegendCSV(path)
	if err != nil {
		t.Fatalf("ReadLegendCSV: %v", err)
	}

	if got.Len() != 3 {
		t.Fatalf("Len = %d, want 3", got.Len())
	}
	for i, want := range []string{"C_WW", "W_Pa", "U_URLD"} {
		label, ok := got.LabelOf(int32(i + 1))
		if !ok || label != want {
			t.Errorf("LabelOf(%d) = %q, want %q", i+1, label, want)
		}
	}

	// Re-registering a pair read back from disk keeps its code.
	code, err := got.Register("W", "Pa")
	if err != nil {
		t.Fatalf("Register after read: %v", err)
	}
	if code != 2 {
		t.Errorf("code = %d, want 2", code)
	}
}
