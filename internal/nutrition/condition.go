package nutrition

import (
	"fmt"
	"strings"

	"github.com/hpungsan/snapfood/internal/errors"
)

// Condition is the user's declared health condition. Exactly one is active
// per evaluation.
type Condition string

const (
	Normal           Condition = "normal"
	Diabetic         Condition = "diabetic"
	Hypertensive     Condition = "hypertensive"
	WeightLoss       Condition = "weight_loss"
	PregnantNursing  Condition = "pregnant_nursing"
	CholesterolWatch Condition = "cholesterol_watch"
)

// Conditions lists every known condition in display order.
var Conditions = []Condition{
	Normal,
	Diabetic,
	Hypertensive,
	WeightLoss,
	PregnantNursing,
	CholesterolWatch,
}

// Valid reports whether c is one of the known conditions.
func (c Condition) Valid() bool {
	for _, known := range Conditions {
		if c == known {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (c Condition) String() string {
	return string(c)
}

// ParseCondition converts user input ("Weight Loss", "weight-loss",
// "weight_loss") into a Condition. Unknown names are rejected here so the
// rule engine only ever sees known values.
func ParseCondition(s string) (Condition, error) {
	norm := strings.ReplaceAll(NormalizeName(s), "-", "_")
	if norm == "" {
		return "", errors.NewInvalidRequest("condition is required")
	}
	c := Condition(norm)
	if !c.Valid() {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown condition %q (known: %s)", s, conditionList()))
	}
	return c, nil
}

// MarshalText implements encoding.TextMarshaler.
func (c Condition) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown condition %q", string(c))
	}
	return []byte(c), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Condition) UnmarshalText(text []byte) error {
	parsed, err := ParseCondition(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func conditionList() string {
	names := make([]string, len(Conditions))
	for i, c := range Conditions {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
