package scan

import (
	"strings"

	"github.com/hpungsan/snapfood/internal/errors"
	"github.com/hpungsan/snapfood/internal/nutrition"
)

// BuildInput contains parameters for Build.
type BuildInput struct {
	Profile   nutrition.Profile
	Condition nutrition.Condition
	DishName  string
	Source    string
}

// Builder wraps rule engine output into records. Its only side effects are
// the calls to the injected id generator and clock.
type Builder struct {
	engine *nutrition.Engine
	ids    IDGenerator
	clock  Clock
}

// NewBuilder creates a Builder. A nil engine uses the default rule tables.
func NewBuilder(engine *nutrition.Engine, ids IDGenerator, clock Clock) *Builder {
	if engine == nil {
		engine = nutrition.NewEngine(nutrition.DefaultTables(), nutrition.GeneralSuggestions)
	}
	return &Builder{engine: engine, ids: ids, clock: clock}
}

// Build evaluates the profile once and stamps a fresh id, the current time
// and the pending sync state.
func (b *Builder) Build(input BuildInput) (Record, error) {
	if !input.Condition.Valid() {
		return Record{}, errors.NewInvalidRequest("unknown condition: " + string(input.Condition))
	}

	result := b.engine.Evaluate(input.Profile, input.Condition)

	id, err := b.ids.NewID()
	if err != nil {
		return Record{}, errors.NewInternal(err)
	}

	return Record{
		ID:              id,
		Nutrients:       input.Profile,
		Condition:       input.Condition,
		Flags:           result.Flags,
		Recommendations: result.Recommendations,
		DishName:        strings.TrimSpace(input.DishName),
		Source:          strings.TrimSpace(input.Source),
		CreatedAt:       b.clock.Now(),
		SyncState:       StatePending,
	}, nil
}
