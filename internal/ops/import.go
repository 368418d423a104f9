package ops

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/hpungsan/snapfood/internal/errors"
	"github.com/hpungsan/snapfood/internal/queue"
	"github.com/hpungsan/snapfood/internal/scan"
	"github.com/hpungsan/snapfood/internal/syncer"
)

// maxImportLine bounds a single JSONL line.
const maxImportLine = 1 << 20

// ImportInput contains parameters for the ImportQueue operation.
type ImportInput struct {
	Path string // required
}

// ImportOutput contains the result of the ImportQueue operation.
type ImportOutput struct {
	Imported     int            `json:"imported"`
	Skipped      int            `json:"skipped"`
	Errors       []ImportError  `json:"errors"`
	PendingCount int            `json:"pendingCount"`
	Sync         syncer.Trigger `json:"sync,omitempty"`
}

// ImportError describes a line that was not imported.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ImportQueue enqueues the records of a JSONL export. Ids already queued
// are skipped, so importing the same file twice is harmless. Records
// exported while syncing come back as pending; records already synced are
// rejected. Bad lines are reported and do not stop the import.
func (s *Service) ImportQueue(input ImportInput) (*ImportOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if err := ValidatePath(input.Path, PathCheckRead, s.cfg); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	records, out := parseExportFile(file)
	if out.Errors == nil {
		out.Errors = []ImportError{}
	}

	for _, r := range records {
		added, err := s.queue.Enqueue(r.rec)
		if err != nil {
			if errors.Is(err, errors.ErrPersistence) {
				// Records already enqueued stay; nothing after this is durable.
				return nil, err
			}
			out.Errors = append(out.Errors, ImportError{
				Line: r.line, ID: r.rec.ID, Code: "INVALID_RECORD", Message: err.Error(),
			})
			continue
		}
		if added {
			out.Imported++
		} else {
			out.Skipped++
		}
	}

	out.PendingCount = s.queue.Len()
	if out.Imported > 0 && !s.OfflineMode() && s.monitor.Online() {
		out.Sync = s.coord.RequestSync()
	}

	s.log.Info("queue imported",
		zap.Int("imported", out.Imported),
		zap.Int("skipped", out.Skipped),
		zap.Int("errors", len(out.Errors)))
	return out, nil
}

type importRecord struct {
	line int
	rec  scan.Record
}

// parseExportFile reads header and record lines.
func parseExportFile(r io.Reader) ([]importRecord, *ImportOutput) {
	out := &ImportOutput{}
	var records []importRecord

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var header ExportHeader
		if err := json.Unmarshal(line, &header); err == nil && header.SnapfoodExport {
			if header.SchemaVersion != ExportSchemaVersion {
				out.Errors = append(out.Errors, ImportError{
					Line: lineNum, Code: "UNSUPPORTED_VERSION",
					Message: fmt.Sprintf("schema_version %q is not supported", header.SchemaVersion),
				})
			}
			continue
		}

		rec, err := queue.DecodeRecord(line)
		if err != nil {
			out.Errors = append(out.Errors, ImportError{
				Line: lineNum, Code: "PARSE_ERROR", Message: err.Error(),
			})
			continue
		}

		switch rec.SyncState {
		case scan.StateSynced:
			out.Errors = append(out.Errors, ImportError{
				Line: lineNum, ID: rec.ID, Code: "ALREADY_SYNCED",
				Message: "record was already delivered",
			})
			continue
		case scan.StateSyncing:
			rec.SyncState = scan.StatePending
		}
		records = append(records, importRecord{line: lineNum, rec: rec})
	}

	if err := scanner.Err(); err != nil {
		out.Errors = append(out.Errors, ImportError{
			Line: lineNum + 1, Code: "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return records, out
}
