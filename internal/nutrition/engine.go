package nutrition

import "math"

// Result is the rule engine output. Flags keep rule-table order; they are
// never re-sorted by severity.
type Result struct {
	Flags           []Flag   `json:"flags"`
	Recommendations []string `json:"recommendations"`
}

// Engine evaluates nutrient profiles against per-condition rule tables.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	tables  map[Condition]Table
	general []string
}

// NewEngine creates an engine over the given tables and general suggestions.
func NewEngine(tables map[Condition]Table, general []string) *Engine {
	return &Engine{tables: tables, general: general}
}

var defaultEngine = NewEngine(DefaultTables(), GeneralSuggestions)

// Evaluate runs the default rule tables.
func Evaluate(p Profile, c Condition) Result {
	return defaultEngine.Evaluate(p, c)
}

// Evaluate maps (profile, condition) to flags and recommendations. It is
// total: a condition without a table, or a table where nothing fires, yields
// the single default good flag.
func (e *Engine) Evaluate(p Profile, c Condition) Result {
	table := e.tables[c]

	flags := make([]Flag, 0, len(table.Rules)+1)
	recs := make([]string, 0, len(table.Advice)+len(e.general)+2)
	seen := make(map[string]bool)
	addRec := func(r string) {
		if r != "" && !seen[r] {
			seen[r] = true
			recs = append(recs, r)
		}
	}

	for _, rule := range table.Rules {
		if rule.When == nil || !rule.When(p) {
			continue
		}
		flags = append(flags, Flag{Level: rule.Level, Message: rule.Message})
		if rule.Level >= Caution {
			addRec(rule.Recommendation)
		}
	}

	if len(flags) == 0 {
		flags = append(flags, Flag{Level: Good, Message: DefaultMessage})
	}

	for _, a := range table.Advice {
		addRec(a)
	}
	for _, g := range e.general {
		addRec(g)
	}

	return Result{Flags: flags, Recommendations: recs}
}

// Worst returns the highest severity among the flags.
func (r Result) Worst() Level {
	return WorstLevel(r.Flags)
}

// WorstLevel returns the highest severity in flags (Good for none).
func WorstLevel(flags []Flag) Level {
	worst := Good
	for _, f := range flags {
		if f.Level > worst {
			worst = f.Level
		}
	}
	return worst
}

// Score rates flags from 0 to 100: good counts fully, caution at 60%,
// critical not at all. An empty list scores 100.
func Score(flags []Flag) int {
	if len(flags) == 0 {
		return 100
	}
	var points float64
	for _, f := range flags {
		switch f.Level {
		case Good:
			points += 100
		case Caution:
			points += 60
		}
	}
	return int(math.Round(points / float64(len(flags)*100) * 100))
}
