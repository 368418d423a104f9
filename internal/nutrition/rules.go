package nutrition

// Predicate decides whether a rule fires for a profile.
type Predicate func(Profile) bool

// Rule is one row of a condition's rule table. Recommendation is only set on
// caution and critical rules.
type Rule struct {
	When           Predicate
	Level          Level
	Message        string
	Recommendation string
}

// Table is the ordered rule list for a single condition. Advice is appended
// to the recommendations whenever the condition is active.
type Table struct {
	Rules  []Rule
	Advice []string
}

// GeneralSuggestions are appended after every evaluation's recommendations.
var GeneralSuggestions = []string{
	"Add vegetables to increase fiber content",
	"Drink plenty of water with meals",
}

// DefaultMessage is the flag emitted when no rule fires.
const DefaultMessage = "Suitable for your health condition"

// DefaultTables maps each condition to its rule table. Thresholds are not
// shared between conditions; adding a condition is a data change.
func DefaultTables() map[Condition]Table {
	return map[Condition]Table{
		Normal: {
			Rules: []Rule{
				{When: all(below(Calories, 600), atLeast(Protein, 15)), Level: Good, Message: "Well-balanced nutritional profile"},
			},
		},
		Diabetic: {
			Rules: []Rule{
				{When: above(Carbs, 45), Level: Critical, Message: "High carbohydrate content - monitor blood sugar",
					Recommendation: "Consider smaller portions or pair with protein"},
				{When: above(Sugar, 10), Level: Caution, Message: "Contains added sugars",
					Recommendation: "Limit sugary foods and drinks"},
				{When: atLeast(Fiber, 5), Level: Good, Message: "Good fiber content helps blood sugar control"},
			},
		},
		Hypertensive: {
			Rules: []Rule{
				{When: above(Sodium, 800), Level: Critical, Message: "Very high sodium - risk for blood pressure",
					Recommendation: "Choose low-sodium alternatives"},
				{When: between(Sodium, 400, 800), Level: Caution, Message: "Moderate sodium content",
					Recommendation: "Monitor daily sodium intake"},
				{When: above(Potassium, 300), Level: Good, Message: "Contains potassium - good for blood pressure"},
			},
		},
		WeightLoss: {
			Rules: []Rule{
				{When: above(Calories, 500), Level: Caution, Message: "High calorie content",
					Recommendation: "Consider smaller portions or increase physical activity"},
				{When: atLeast(Protein, 20), Level: Good, Message: "High protein helps with satiety"},
				{When: atLeast(Fiber, 5), Level: Good, Message: "High fiber promotes fullness"},
			},
		},
		PregnantNursing: {
			Rules: []Rule{
				{When: atLeast(Protein, 25), Level: Good, Message: "Excellent protein for maternal health"},
				{When: atLeast(Iron, 3), Level: Good, Message: "Good iron content for pregnancy"},
				{When: atLeast(Calcium, 200), Level: Good, Message: "Calcium supports baby development"},
			},
			Advice: []string{
				"Ensure adequate hydration",
				"Include variety of nutrients",
			},
		},
		CholesterolWatch: {
			Rules: []Rule{
				{When: above(Fat, 20), Level: Caution, Message: "High fat content",
					Recommendation: "Choose lean proteins and healthy fats"},
				{When: above(Cholesterol, 200), Level: Critical, Message: "High cholesterol content",
					Recommendation: "Limit high-cholesterol foods"},
				{When: atLeast(Fiber, 5), Level: Good, Message: "Fiber helps reduce cholesterol"},
			},
		},
	}
}

// above fires when the nutrient is strictly greater than limit.
func above(nutrient string, limit float64) Predicate {
	return func(p Profile) bool { return p.Get(nutrient) > limit }
}

// atLeast fires when the nutrient is greater than or equal to limit.
func atLeast(nutrient string, limit float64) Predicate {
	return func(p Profile) bool { return p.Get(nutrient) >= limit }
}

// below fires when the nutrient is strictly less than limit.
func below(nutrient string, limit float64) Predicate {
	return func(p Profile) bool { return p.Get(nutrient) < limit }
}

// between fires for lo < value <= hi.
func between(nutrient string, lo, hi float64) Predicate {
	return func(p Profile) bool {
		v := p.Get(nutrient)
		return v > lo && v <= hi
	}
}

func all(preds ...Predicate) Predicate {
	return func(p Profile) bool {
		for _, pred := range preds {
			if !pred(p) {
				return false
			}
		}
		return true
	}
}
