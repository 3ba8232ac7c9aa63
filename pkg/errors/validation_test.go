package errors

import (
	"testing"
)

func TestValidateLayerName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "crops", false},
		{"valid with dash", "built-up", false},
		{"valid with underscore", "forest_2024", false},
		{"valid with dot", "water.v2", false},

		{"empty", "", true},
		{"too long", string(make([]byte, 100)), true},
		{"path traversal", "foo/../bar", true},
		{"path separator", "layers/crops", true},
		{"null byte", "foo\x00bar", true},
		{"backslash", "foo\\bar", true},
		{"control char", "foo\x01bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLayerName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLayerName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidConfig) {
				t.Errorf("ValidateLayerName(%q) returned wrong error code: %v", tt.input, err)
			}
		})
	}
}

func TestValidateCodePrefix(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"single letter", "C", false},
		{"lowercase", "urb", false},
		{"with digit", "F2", false},

		{"empty", "", true},
		{"underscore", "C_1", true},
		{"comma", "C,1", true},
		{"leading digit", "2C", true},
		{"space", "C 1", true},
		{"too long", "ABCDEFGHIJKLMNOPQ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCodePrefix(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCodePrefix(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateProj4(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"transverse mercator", "+proj=tmerc +lat_0=0 +lon_0=24 +ellps=GRS80 +units=m +no_defs", false},
		{"longlat", "+proj=longlat +datum=WGS84", false},

		{"empty", "", true},
		{"no proj term", "+ellps=GRS80 +units=m", true},
		{"epsg code alone", "EPSG:3346", true},
		{"control char", "+proj=tmerc\x01", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProj4(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProj4(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateInputPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"relative", "data/crops.shp", false},
		{"absolute", "/srv/data/crops.shp", false},
		{"filename only", "lookup.csv", false},

		{"empty", "", true},
		{"too long", string(make([]byte, 600)), true},
		{"null byte", "foo\x00bar", true},
		{"control char", "foo\x01bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInputPath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInputPath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestErrorCodesAreUnique(t *testing.T) {
	codes := []Code{
		ErrCodeUnalignedGrid,
		ErrCodeGridMismatch,
		ErrCodeUnmappedCode,
		ErrCodeCodeConflict,
		ErrCodeEmptyLayer,
		ErrCodeInvalidConfig,
		ErrCodeInvalidStage,
		ErrCodeIORead,
		ErrCodeIOWrite,
		ErrCodeInternal,
	}

	seen := make(map[Code]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %s", code)
		}
		seen[code] = true
	}
}
