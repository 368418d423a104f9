package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hpungsan/snapfood/internal/errors"
)

// ExportInput contains parameters for the ExportQueue operation.
type ExportInput struct {
	Path string // optional, default: <base>/exports/pending-<timestamp>.jsonl
}

// ExportOutput contains the result of the ExportQueue operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of a JSONL export file.
type ExportHeader struct {
	SnapfoodExport bool   `json:"_snapfood_export"`
	SchemaVersion  string `json:"schema_version"`
	ExportedAt     int64  `json:"exported_at"`
	Count          int    `json:"count"`
}

// ExportSchemaVersion is written to every export header.
const ExportSchemaVersion = "1"

// ExportQueue writes the queued scans, oldest first, to a JSONL file: a
// header line followed by one record per line. The queue is not modified.
func (s *Service) ExportQueue(ctx context.Context, input ExportInput) (*ExportOutput, error) {
	now := s.clock.Now()
	exportedAt := now.Unix()

	exportPath := input.Path
	if exportPath == "" {
		dir, err := DefaultExportsDir()
		if err != nil {
			return nil, err
		}
		exportPath = filepath.Join(dir, fmt.Sprintf("pending-%s.jsonl", now.UTC().Format("2006-01-02T150405")))
	}

	if err := ValidatePath(exportPath, PathCheckWrite, s.cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Temp file then rename, so an existing export survives a failed write
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	records := s.queue.Snapshot()
	enc := json.NewEncoder(file)

	header := ExportHeader{
		SnapfoodExport: true,
		SchemaVersion:  ExportSchemaVersion,
		ExportedAt:     exportedAt,
		Count:          len(records),
	}
	if err := enc.Encode(header); err != nil {
		return nil, errors.NewInternal(err)
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("export")
		}
		if err := enc.Encode(rec); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows)
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink destination
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	s.log.Info("queue exported")
	return &ExportOutput{
		Path:       exportPath,
		Count:      len(records),
		ExportedAt: exportedAt,
	}, nil
}
