package queue

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/snapfood/internal/scan"
)

// EncodeSnapshot serializes records as a JSON array in queue order.
// An empty queue encodes as [] rather than null.
func EncodeSnapshot(records []scan.Record) ([]byte, error) {
	if records == nil {
		records = []scan.Record{}
	}
	return json.Marshal(records)
}

// DecodeSnapshot parses bytes written by EncodeSnapshot. Every record must
// carry an id, a known condition and a known sync state.
func DecodeSnapshot(data []byte) ([]scan.Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty snapshot")
	}
	var records []scan.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for i, r := range records {
		if err := validateRecord(r); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return records, nil
}

// DecodeRecord parses one JSON record, as written to an export line, with
// the same checks as DecodeSnapshot.
func DecodeRecord(data []byte) (scan.Record, error) {
	var r scan.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return scan.Record{}, err
	}
	if err := validateRecord(r); err != nil {
		return scan.Record{}, err
	}
	return r, nil
}

func validateRecord(r scan.Record) error {
	if r.ID == "" {
		return fmt.Errorf("missing id")
	}
	if !r.Condition.Valid() {
		return fmt.Errorf("%s: unknown condition %q", r.ID, r.Condition)
	}
	if !r.SyncState.Valid() {
		return fmt.Errorf("%s: unknown sync state %q", r.ID, r.SyncState)
	}
	return nil
}
