package ops

import (
	"strings"

	"github.com/hpungsan/snapfood/internal/errors"
	"github.com/hpungsan/snapfood/internal/nutrition"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// ReportFormat selects the output of Report.
type ReportFormat string

const (
	ReportMarkdown ReportFormat = "markdown"
	ReportHTML     ReportFormat = "html"
)

// parseInputs validates the raw profile and condition shared by Evaluate
// and RecordScan.
func parseInputs(nutrients map[string]any, condition string) (nutrition.Profile, nutrition.Condition, error) {
	if strings.TrimSpace(condition) == "" {
		return nutrition.Profile{}, "", errors.NewInvalidRequest("condition is required")
	}
	cond, err := nutrition.ParseCondition(condition)
	if err != nil {
		return nutrition.Profile{}, "", err
	}
	if nutrients == nil {
		return nutrition.Profile{}, "", errors.NewInvalidRequest("nutrients is required")
	}
	profile, err := nutrition.ParseProfile(nutrients)
	if err != nil {
		return nutrition.Profile{}, "", err
	}
	return profile, cond, nil
}

// clampPage applies list defaults and bounds.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}
