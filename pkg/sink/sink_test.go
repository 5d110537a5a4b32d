package sink

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadhunter/pkg/config"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
)

func sampleRecords() []models.CandidateRecord {
	return []models.CandidateRecord{
		{
			IdentityKey: "www.linkedin.com/in/jane-doe",
			Name:        "Jane Doe",
			Position:    "Editor in Chief",
			Company:     "Acme Corp",
			ProfileURL:  "https://www.linkedin.com/in/jane-doe",
			Source:      "search",
			ExtractedAt: time.Now(),
		},
		{
			IdentityKey: "www.linkedin.com/in/john-roe",
			Name:        "John Roe",
			Position:    "Marketing Manager",
			ProfileURL:  "https://www.linkedin.com/in/john-roe",
			Source:      "search",
			ExtractedAt: time.Now(),
		},
	}
}

func readLines(t *testing.T, path string) []models.CandidateRecord {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var records []models.CandidateRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record models.CandidateRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		records = append(records, record)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestJSONLSinkAppendsAcrossBatches(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewJSONLSink(dir, logger.NewNopLogger())
	require.NoError(t, err)

	ctx := context.Background()
	records := sampleRecords()

	require.NoError(t, sink.WriteBatch(ctx, records[:1]))
	require.NoError(t, sink.WriteBatch(ctx, records[1:]))
	require.NoError(t, sink.Close())

	got := readLines(t, filepath.Join(dir, "results.jsonl"))
	require.Len(t, got, 2)
	assert.Equal(t, "Jane Doe", got[0].Name)
	assert.Equal(t, "John Roe", got[1].Name)

	// Reopening appends rather than truncating
	reopened, err := NewJSONLSink(dir, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, reopened.WriteBatch(ctx, records[:1]))
	require.NoError(t, reopened.Close())

	assert.Len(t, readLines(t, filepath.Join(dir, "results.jsonl")), 3)
}

func TestJSONLSinkWriteSummary(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewJSONLSink(dir, logger.NewNopLogger())
	require.NoError(t, err)
	defer sink.Close()

	result := models.NewHarvestResult(models.Query{Company: "Acme Corp"})
	result.RecordsAccepted = 2
	result.Finish(models.RunStatusCompleted)

	require.NoError(t, sink.WriteSummary(result))

	data, err := os.ReadFile(filepath.Join(dir, "summary_"+result.RunID+".json"))
	require.NoError(t, err)

	var got models.HarvestResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, result.RunID, got.RunID)
	assert.Equal(t, 2, got.RecordsAccepted)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
}

func TestSQLiteSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.db")
	sink, err := NewSQLiteSink(path, logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, sink.WriteBatch(context.Background(), sampleRecords()))

	result := models.NewHarvestResult(models.Query{})
	result.RecordsAccepted = 2
	result.Finish(models.RunStatusCompleted)
	require.NoError(t, sink.WriteSummary(result))
	require.NoError(t, sink.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM records").Scan(&count))
	assert.Equal(t, 2, count)

	var status string
	require.NoError(t, db.QueryRow("SELECT status FROM runs WHERE run_id = ?", result.RunID).Scan(&status))
	assert.Equal(t, "completed", status)
}

func TestNewSelectsFormat(t *testing.T) {
	t.Run("jsonl", func(t *testing.T) {
		cfg := &config.OutputConfig{Directory: t.TempDir(), Format: "jsonl"}
		sink, err := New(cfg, logger.NewNopLogger())
		require.NoError(t, err)
		defer sink.Close()
		assert.IsType(t, &JSONLSink{}, sink)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := &config.OutputConfig{Directory: t.TempDir(), Format: "sqlite"}
		sink, err := New(cfg, logger.NewNopLogger())
		require.NoError(t, err)
		defer sink.Close()
		assert.IsType(t, &SQLiteSink{}, sink)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := &config.OutputConfig{Directory: t.TempDir(), Format: "xml"}
		_, err := New(cfg, logger.NewNopLogger())
		assert.Error(t, err)
	})
}
