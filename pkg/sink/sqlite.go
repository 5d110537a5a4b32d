package sink

import (
	"context"
	"database/sql"
	"path/filepath"

	_ "modernc.org/sqlite"

	"leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
)

const resultsSchema = `
CREATE TABLE IF NOT EXISTS records (
	identity_key   TEXT NOT NULL,
	name           TEXT NOT NULL,
	position       TEXT,
	company        TEXT,
	email          TEXT,
	email_added_at TEXT,
	profile_url    TEXT NOT NULL,
	source_url     TEXT,
	snippet        TEXT,
	source         TEXT NOT NULL,
	extracted_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	run_id           TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	started_at       TIMESTAMP NOT NULL,
	finished_at      TIMESTAMP NOT NULL,
	pages_fetched    INTEGER NOT NULL,
	records_parsed   INTEGER NOT NULL,
	records_dropped  INTEGER NOT NULL,
	records_accepted INTEGER NOT NULL,
	duplicates       INTEGER NOT NULL,
	enriched         INTEGER NOT NULL
);
`

// SQLiteSink stores accepted records and run summaries in a sqlite database
type SQLiteSink struct {
	db     *sql.DB
	dir    string
	logger logger.Logger
}

// NewSQLiteSink opens (creating if needed) the results database
func NewSQLiteSink(path string, log logger.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeStorage, 0, "failed to open results database: %v", err)
	}

	if _, err := db.Exec(resultsSchema); err != nil {
		db.Close()
		return nil, errors.New(errors.ErrorTypeStorage, 0, "failed to initialize results database: %v", err)
	}

	return &SQLiteSink{db: db, dir: filepath.Dir(path), logger: log}, nil
}

// WriteBatch inserts the records in one transaction
func (s *SQLiteSink) WriteBatch(ctx context.Context, records []models.CandidateRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrorTypeStorage, 0, "failed to begin results transaction: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records
		(identity_key, name, position, company, email, email_added_at,
		 profile_url, source_url, snippet, source, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.New(errors.ErrorTypeStorage, 0, "failed to prepare record insert: %v", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.IdentityKey, r.Name, r.Position, r.Company, r.Email, r.EmailAddedAt,
			r.ProfileURL, r.SourceURL, r.Snippet, r.Source, r.ExtractedAt,
		); err != nil {
			return errors.New(errors.ErrorTypeStorage, 0, "failed to insert record: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrorTypeStorage, 0, "failed to commit records: %v", err)
	}

	s.logger.DebugWithFields("batch written", map[string]interface{}{
		"records": len(records),
	})

	return nil
}

// WriteSummary stores run metadata in the runs table and mirrors it to a
// JSON file for quick inspection.
func (s *SQLiteSink) WriteSummary(result *models.HarvestResult) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO runs
		(run_id, status, started_at, finished_at, pages_fetched, records_parsed,
		 records_dropped, records_accepted, duplicates, enriched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, string(result.Status), result.StartedAt, result.FinishedAt,
		result.PagesFetched, result.RecordsParsed, result.RecordsDropped,
		result.RecordsAccepted, result.Duplicates, result.Enriched,
	)
	if err != nil {
		return errors.New(errors.ErrorTypeStorage, 0, "failed to store run summary: %v", err)
	}

	return writeSummaryFile(s.dir, result)
}

// Close closes the results database
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
