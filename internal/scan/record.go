package scan

import (
	"fmt"
	"time"

	"github.com/hpungsan/snapfood/internal/nutrition"
)

// SyncState tracks a record's delivery to the remote store.
type SyncState string

const (
	StatePending SyncState = "pending"
	StateSyncing SyncState = "syncing"
	StateSynced  SyncState = "synced"
	StateFailed  SyncState = "failed"
)

// Valid reports whether s is a known state.
func (s SyncState) Valid() bool {
	switch s {
	case StatePending, StateSyncing, StateSynced, StateFailed:
		return true
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SyncState) UnmarshalText(text []byte) error {
	state := SyncState(text)
	if !state.Valid() {
		return fmt.Errorf("unknown sync state %q", string(text))
	}
	*s = state
	return nil
}

// Record is one analysed scan. Everything except SyncState is fixed at
// build time; SyncState is changed only by the queue on behalf of the sync
// coordinator.
type Record struct {
	// ID is a ULID that uniquely identifies this scan
	ID string `json:"id"`

	// Nutrients is the profile the flags were computed from
	Nutrients nutrition.Profile `json:"nutrients"`

	// Condition is the health condition active when the scan was analysed
	Condition nutrition.Condition `json:"condition"`

	// Flags are in rule evaluation order
	Flags []nutrition.Flag `json:"flags"`

	Recommendations []string `json:"recommendations"`

	// DishName is an optional label from the recognizer or the user
	DishName string `json:"dishName,omitempty"`

	// Source indicates where the scan originated (e.g., "camera", "manual", "mcp")
	Source string `json:"source,omitempty"`

	// CreatedAt is serialized as ISO-8601 (RFC 3339)
	CreatedAt time.Time `json:"createdAt"`

	SyncState SyncState `json:"syncState"`
}

// Clone returns a deep copy so callers can't reach into queue-owned slices.
func (r Record) Clone() Record {
	out := r
	out.Flags = append([]nutrition.Flag(nil), r.Flags...)
	out.Recommendations = append([]string(nil), r.Recommendations...)
	return out
}

// Score is the 0-100 health rating of the record's flags.
func (r Record) Score() int {
	return nutrition.Score(r.Flags)
}
