package syncer

import "time"

// Trigger is the answer to a sync request.
type Trigger string

const (
	TriggerAccepted        Trigger = "accepted"
	TriggerAlreadyDraining Trigger = "already_draining"
	TriggerClosed          Trigger = "closed"
)

// State is the coordinator's position in the drain state machine.
type State string

const (
	StateIdle     State = "idle"
	StateDraining State = "draining"
)

// Result is the outcome of the last finished drain cycle.
type Result string

const (
	ResultNone            Result = "none"
	ResultCompleted       Result = "completed"
	ResultPartiallyFailed Result = "partially_failed"
	// ResultAborted means connectivity dropped (or the coordinator closed)
	// mid-cycle.
	ResultAborted Result = "aborted"
	// ResultOffline means the cycle found the monitor offline and submitted
	// nothing.
	ResultOffline Result = "offline"
)

// Status is a point-in-time view of the queue and the coordinator.
type Status struct {
	State          State      `json:"state"`
	PendingCount   int        `json:"pendingCount"`
	LastSyncResult Result     `json:"lastSyncResult"`
	LastError      string     `json:"lastError,omitempty"`
	LastSyncAt     *time.Time `json:"lastSyncAt,omitempty"`

	// LastSynced is the number of records delivered by the last cycle.
	LastSynced int `json:"lastSynced"`

	// Cycles counts finished drain cycles since start.
	Cycles int `json:"cycles"`

	ConsecutiveFailures int  `json:"consecutiveFailures"`
	RetryScheduled      bool `json:"retryScheduled"`

	// PersistentFailure is set once consecutive failures exceed the retry
	// bound. Records are still kept; only automatic retries stop.
	PersistentFailure bool `json:"persistentFailure"`
}
