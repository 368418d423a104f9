package nutrition

import "fmt"

// Level is the severity of a health flag. Ordered: Good < Caution < Critical.
type Level int

const (
	Good Level = iota
	Caution
	Critical
)

var levelNames = map[Level]string{
	Good:     "good",
	Caution:  "caution",
	Critical: "critical",
}

// String implements fmt.Stringer.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel converts "good", "caution" or "critical" into a Level.
func ParseLevel(s string) (Level, error) {
	norm := NormalizeName(s)
	for l, name := range levelNames {
		if name == norm {
			return l, nil
		}
	}
	return Good, fmt.Errorf("unknown flag level %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	name, ok := levelNames[l]
	if !ok {
		return nil, fmt.Errorf("unknown flag level %d", int(l))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Flag is one rule-engine output. It carries no identity beyond its content.
type Flag struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}
