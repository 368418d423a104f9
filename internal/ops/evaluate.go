package ops

import "github.com/hpungsan/snapfood/internal/nutrition"

// EvaluateInput contains parameters for the Evaluate operation.
type EvaluateInput struct {
	Nutrients map[string]any // required; JSON numbers only
	Condition string         // required
}

// EvaluateOutput contains the result of the Evaluate operation.
type EvaluateOutput struct {
	Condition       nutrition.Condition `json:"condition"`
	Flags           []nutrition.Flag    `json:"flags"`
	Recommendations []string            `json:"recommendations"`
	Worst           nutrition.Level     `json:"worst"`
	Score           int                 `json:"score"`
}

// Evaluate runs the rule engine without recording anything.
func (s *Service) Evaluate(input EvaluateInput) (*EvaluateOutput, error) {
	profile, cond, err := parseInputs(input.Nutrients, input.Condition)
	if err != nil {
		return nil, err
	}

	result := s.engine.Evaluate(profile, cond)
	return &EvaluateOutput{
		Condition:       cond,
		Flags:           result.Flags,
		Recommendations: result.Recommendations,
		Worst:           result.Worst(),
		Score:           nutrition.Score(result.Flags),
	}, nil
}
