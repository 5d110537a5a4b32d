package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS seen (
	identity_key TEXT PRIMARY KEY,
	first_seen   TIMESTAMP NOT NULL,
	run_id       TEXT NOT NULL
);
`

// SeenIndex is the cross-run duplicate ledger backed by sqlite. Keys are
// staged by FilterNew and only persisted by Commit, so a failed storage
// write never marks its records as seen.
type SeenIndex struct {
	db     *sql.DB
	runID  string
	logger logger.Logger

	mu     sync.Mutex
	staged []string
}

// Open opens (creating if needed) the seen index at the given path
func Open(path, runID string, log logger.Logger) (*SeenIndex, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeStorage, 0, "failed to open seen index: %v", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.New(errors.ErrorTypeStorage, 0, "failed to initialize seen index: %v", err)
	}

	return &SeenIndex{db: db, runID: runID, logger: log}, nil
}

// FilterNew returns the records whose identity key is not yet committed to
// the index, staging the accepted keys for the next Commit. Duplicates
// within the batch itself are collapsed, but a key staged by an earlier
// call is accepted again: until Commit the key is not seen, so re-filtering
// the same batch returns the same set. Idempotent until Commit.
func (s *SeenIndex) FilterNew(ctx context.Context, records []models.CandidateRecord) ([]models.CandidateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stagedSet := make(map[string]bool, len(s.staged))
	for _, key := range s.staged {
		stagedSet[key] = true
	}

	inBatch := make(map[string]bool, len(records))
	var fresh []models.CandidateRecord
	for _, record := range records {
		if inBatch[record.IdentityKey] {
			continue
		}
		inBatch[record.IdentityKey] = true

		if stagedSet[record.IdentityKey] {
			fresh = append(fresh, record)
			continue
		}

		seen, err := s.contains(ctx, record.IdentityKey)
		if err != nil {
			return nil, err
		}
		if seen {
			continue
		}

		stagedSet[record.IdentityKey] = true
		s.staged = append(s.staged, record.IdentityKey)
		fresh = append(fresh, record)
	}

	s.logger.DebugWithFields("batch filtered", map[string]interface{}{
		"input":      len(records),
		"fresh":      len(fresh),
		"duplicates": len(records) - len(fresh),
	})

	return fresh, nil
}

// Commit persists all staged keys in one transaction and clears the stage.
// Must be called only after the batch has been durably written to the sink.
func (s *SeenIndex) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.staged) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrorTypeStorage, 0, "failed to begin seen index transaction: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO seen (identity_key, first_seen, run_id) VALUES (?, ?, ?)")
	if err != nil {
		return errors.New(errors.ErrorTypeStorage, 0, "failed to prepare seen index insert: %v", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, key := range s.staged {
		if _, err := stmt.ExecContext(ctx, key, now, s.runID); err != nil {
			return errors.New(errors.ErrorTypeStorage, 0, "failed to insert seen key: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrorTypeStorage, 0, "failed to commit seen index: %v", err)
	}

	count := len(s.staged)
	s.staged = nil

	s.logger.DebugWithFields("seen index committed", map[string]interface{}{
		"keys": count,
	})

	return nil
}

// Discard drops the staged keys without persisting them
func (s *SeenIndex) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = nil
}

// Staged returns the number of keys awaiting commit
func (s *SeenIndex) Staged() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged)
}

// Size returns the number of persisted keys
func (s *SeenIndex) Size(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM seen").Scan(&count); err != nil {
		return 0, errors.New(errors.ErrorTypeStorage, 0, "failed to count seen keys: %v", err)
	}
	return count, nil
}

// Close closes the underlying database
func (s *SeenIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close seen index: %w", err)
	}
	return nil
}

// contains checks a single key against the persisted index. Caller holds the lock.
func (s *SeenIndex) contains(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM seen WHERE identity_key = ?", key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.New(errors.ErrorTypeStorage, 0, "failed to query seen index: %v", err)
	}
	return true, nil
}
