package nutrition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/hpungsan/snapfood/internal/errors"
)

// Well-known nutrient names. The set is open: any other name is accepted and
// simply ignored by rules that don't reference it.
const (
	Calories    = "calories"
	Protein     = "protein"
	Carbs       = "carbs"
	Fat         = "fat"
	Fiber       = "fiber"
	Sodium      = "sodium"
	Sugar       = "sugar"
	Cholesterol = "cholesterol"
	Calcium     = "calcium"
	Iron        = "iron"
	Potassium   = "potassium"
)

// Profile is an immutable mapping from nutrient name to a non-negative amount.
// The zero value is an empty profile.
type Profile struct {
	values map[string]float64
}

// NewProfile validates values and returns a Profile holding a private copy.
// Names are normalized; negative, NaN and infinite amounts are rejected.
func NewProfile(values map[string]float64) (Profile, error) {
	out := make(map[string]float64, len(values))
	for name, v := range values {
		norm := NormalizeName(name)
		if norm == "" {
			return Profile{}, errors.NewValidation(name, "nutrient name must not be empty")
		}
		if err := checkAmount(norm, v); err != nil {
			return Profile{}, err
		}
		if _, dup := out[norm]; dup {
			return Profile{}, errors.NewValidation(norm, "nutrient given more than once")
		}
		out[norm] = v
	}
	return Profile{values: out}, nil
}

// ParseProfile converts loosely typed input (decoded JSON, MCP arguments)
// into a Profile. Only numeric values are accepted; strings, booleans and
// nulls are validation errors rather than being coerced.
func ParseProfile(raw map[string]any) (Profile, error) {
	values := make(map[string]float64, len(raw))
	for name, v := range raw {
		f, err := toFloat(v)
		if err != nil {
			return Profile{}, errors.NewValidation(name, err.Error())
		}
		values[name] = f
	}
	return NewProfile(values)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n.String())
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("value is null")
	default:
		return 0, fmt.Errorf("value must be numeric, got %T", v)
	}
}

func checkAmount(name string, v float64) error {
	switch {
	case math.IsNaN(v):
		return errors.NewValidation(name, "value is NaN")
	case math.IsInf(v, 0):
		return errors.NewValidation(name, "value is infinite")
	case v < 0:
		return errors.NewValidation(name, "must not be negative")
	}
	return nil
}

// Get returns the amount for name. Missing nutrients read as zero.
func (p Profile) Get(name string) float64 {
	return p.values[NormalizeName(name)]
}

// Has reports whether the nutrient was present in the input.
func (p Profile) Has(name string) bool {
	_, ok := p.values[NormalizeName(name)]
	return ok
}

// Len returns the number of nutrients in the profile.
func (p Profile) Len() int {
	return len(p.values)
}

// Names returns nutrient names in sorted order.
func (p Profile) Names() []string {
	names := make([]string, 0, len(p.values))
	for name := range p.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the underlying values.
func (p Profile) Map() map[string]float64 {
	out := make(map[string]float64, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the profile as a JSON object (keys sorted).
func (p Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

// UnmarshalJSON decodes and validates a JSON object of nutrient amounts.
func (p *Profile) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseProfile(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
