package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"leadhunter/pkg/config"
	"leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
)

// Sink is durable, append-only storage for accepted records. A failed
// WriteBatch is a storage error and must suppress the seen-index commit
// for that batch.
type Sink interface {
	WriteBatch(ctx context.Context, records []models.CandidateRecord) error
	WriteSummary(result *models.HarvestResult) error
	Close() error
}

// New creates the sink selected by output configuration
func New(cfg *config.OutputConfig, log logger.Logger) (Sink, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return nil, errors.New(errors.ErrorTypeStorage, 0, "failed to create output directory: %v", err)
	}

	switch cfg.Format {
	case "sqlite":
		return NewSQLiteSink(filepath.Join(cfg.Directory, "results.db"), log)
	case "", "jsonl":
		return NewJSONLSink(cfg.Directory, log)
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Format)
	}
}

// writeSummaryFile writes run metadata atomically next to the results
func writeSummaryFile(dir string, result *models.HarvestResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.New(errors.ErrorTypeStorage, 0, "failed to marshal run summary: %v", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("summary_%s.json", result.RunID))
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return errors.New(errors.ErrorTypeStorage, 0, "failed to write run summary: %v", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.New(errors.ErrorTypeStorage, 0, "failed to finalize run summary: %v", err)
	}

	return nil
}
