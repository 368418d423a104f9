package nutrition

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hpungsan/snapfood/internal/errors"
)

func TestNewProfile(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]float64
		wantErr bool
	}{
		{"valid", map[string]float64{"calories": 485, "Sodium ": 890}, false},
		{"zero allowed", map[string]float64{"sugar": 0}, false},
		{"negative", map[string]float64{"fat": -1}, true},
		{"nan", map[string]float64{"fat": math.NaN()}, true},
		{"inf", map[string]float64{"fat": math.Inf(1)}, true},
		{"empty name", map[string]float64{"  ": 1}, true},
		{"duplicate after normalization", map[string]float64{"Sodium": 1, "sodium": 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProfile(tt.values)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewProfile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrValidation) {
				t.Errorf("error code = %v, want VALIDATION_ERROR", err)
			}
		})
	}
}

func TestProfile_Accessors(t *testing.T) {
	p := mustProfile(t, map[string]float64{"Saturated Fat": 4, "sodium": 890})

	if got := p.Get("saturated_fat"); got != 4 {
		t.Errorf("Get(saturated_fat) = %v, want 4", got)
	}
	if got := p.Get("SODIUM"); got != 890 {
		t.Errorf("Get(SODIUM) = %v, want 890", got)
	}
	if got := p.Get("iron"); got != 0 {
		t.Errorf("Get(iron) = %v, want 0", got)
	}
	if p.Has("iron") {
		t.Error("Has(iron) = true, want false")
	}
	if diff := cmp.Diff([]string{"saturated_fat", "sodium"}, p.Names()); diff != "" {
		t.Errorf("Names() mismatch:\n%s", diff)
	}

	// Map returns a copy
	m := p.Map()
	m["sodium"] = 1
	if p.Get("sodium") != 890 {
		t.Error("mutating Map() result changed the profile")
	}
}

func TestNewProfile_CopiesInput(t *testing.T) {
	in := map[string]float64{"sugar": 5}
	p := mustProfile(t, in)
	in["sugar"] = 50
	if p.Get("sugar") != 5 {
		t.Error("profile shares the caller's map")
	}
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		want    map[string]float64
		wantErr bool
	}{
		{"floats and ints", map[string]any{"carbs": 52.5, "fiber": 6}, map[string]float64{"carbs": 52.5, "fiber": 6}, false},
		{"json number", map[string]any{"sodium": json.Number("890")}, map[string]float64{"sodium": 890}, false},
		{"string rejected", map[string]any{"sodium": "890"}, nil, true},
		{"bool rejected", map[string]any{"sodium": true}, nil, true},
		{"null rejected", map[string]any{"sodium": nil}, nil, true},
		{"negative rejected", map[string]any{"sodium": -4.0}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProfile(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProfile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, errors.ErrValidation) {
					t.Errorf("error = %v, want VALIDATION_ERROR", err)
				}
				return
			}
			if diff := cmp.Diff(tt.want, p.Map()); diff != "" {
				t.Errorf("ParseProfile() mismatch:\n%s", diff)
			}
		})
	}
}

func TestProfile_JSON(t *testing.T) {
	p := mustProfile(t, map[string]float64{"sugar": 4, "carbs": 52})

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"carbs":52,"sugar":4}` {
		t.Errorf("Marshal() = %s", data)
	}

	var bad Profile
	if err := json.Unmarshal([]byte(`{"sugar":"lots"}`), &bad); err == nil {
		t.Error("Unmarshal() accepted a non-numeric value")
	}
	if err := json.Unmarshal([]byte(`{"sugar":-1}`), &bad); err == nil {
		t.Error("Unmarshal() accepted a negative value")
	}
}
