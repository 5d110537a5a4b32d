package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
)

// JSONLSink appends records as JSON lines to a single file. Append-only:
// existing lines are never rewritten, so earlier runs stay intact.
type JSONLSink struct {
	dir    string
	file   *os.File
	logger logger.Logger
}

// NewJSONLSink opens (creating if needed) results.jsonl in the directory
func NewJSONLSink(dir string, log logger.Logger) (*JSONLSink, error) {
	path := filepath.Join(dir, "results.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeStorage, 0, "failed to open results file: %v", err)
	}

	return &JSONLSink{dir: dir, file: file, logger: log}, nil
}

// WriteBatch appends the records and syncs to disk before returning, so a
// nil return means the batch is durable.
func (s *JSONLSink) WriteBatch(ctx context.Context, records []models.CandidateRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return errors.New(errors.ErrorTypeStorage, 0, "failed to marshal record: %v", err)
		}
		if _, err := s.file.Write(append(line, '\n')); err != nil {
			return errors.New(errors.ErrorTypeStorage, 0, "failed to append record: %v", err)
		}
	}

	if err := s.file.Sync(); err != nil {
		return errors.New(errors.ErrorTypeStorage, 0, "failed to sync results file: %v", err)
	}

	s.logger.DebugWithFields("batch written", map[string]interface{}{
		"records": len(records),
		"file":    s.file.Name(),
	})

	return nil
}

// WriteSummary persists run metadata next to the results file
func (s *JSONLSink) WriteSummary(result *models.HarvestResult) error {
	return writeSummaryFile(s.dir, result)
}

// Close closes the results file
func (s *JSONLSink) Close() error {
	return s.file.Close()
}
