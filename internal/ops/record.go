package ops

import (
	"context"

	"go.uber.org/zap"

	"github.com/hpungsan/snapfood/internal/scan"
	"github.com/hpungsan/snapfood/internal/syncer"
)

// RecordScanInput contains parameters for the RecordScan operation.
type RecordScanInput struct {
	Nutrients map[string]any // required
	Condition string         // required
	DishName  string         // optional label
	Source    string         // optional, e.g. "camera", "manual", "mcp"
}

// RecordScanOutput contains the result of the RecordScan operation.
type RecordScanOutput struct {
	Record       scan.Record    `json:"record"`
	PendingCount int            `json:"pendingCount"`
	Sync         syncer.Trigger `json:"sync,omitempty"`
}

// RecordScan builds a record and enqueues it durably. Delivery is left to
// the coordinator, so scans reach the remote in the order they were
// recorded and the caller never waits on the network. With offline mode
// off and the monitor online a sync is requested. An error means the record
// was not queued.
func (s *Service) RecordScan(ctx context.Context, input RecordScanInput) (*RecordScanOutput, error) {
	profile, cond, err := parseInputs(input.Nutrients, input.Condition)
	if err != nil {
		return nil, err
	}

	rec, err := s.builder.Build(scan.BuildInput{
		Profile:   profile,
		Condition: cond,
		DishName:  input.DishName,
		Source:    input.Source,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.queue.Enqueue(rec); err != nil {
		return nil, err
	}

	out := &RecordScanOutput{Record: rec, PendingCount: s.queue.Len()}
	if !s.OfflineMode() && s.monitor.Online() {
		out.Sync = s.coord.RequestSync()
	}
	s.log.Debug("scan recorded", zap.String("id", rec.ID), zap.String("sync", string(out.Sync)))
	return out, nil
}
