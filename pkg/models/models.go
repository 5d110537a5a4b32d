package models

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Query is an immutable specification of one search page. The orchestrator
// creates a fresh Query per pagination step; a Query is never mutated.
type Query struct {
	Keywords []string `json:"keywords"`
	Site     string   `json:"site"`
	Company  string   `json:"company"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// Next returns the Query for the following page
func (q Query) Next() Query {
	next := q
	next.Page++
	return next
}

// Expression renders the query as a search expression: a site filter plus
// OR-joined quoted keywords, optionally scoped to a company name.
func (q Query) Expression() string {
	var sb strings.Builder
	if q.Site != "" {
		sb.WriteString("site:")
		sb.WriteString(q.Site)
		sb.WriteString(" ")
	}
	if len(q.Keywords) > 0 {
		quoted := make([]string, len(q.Keywords))
		for i, kw := range q.Keywords {
			quoted[i] = fmt.Sprintf("%q", kw)
		}
		sb.WriteString("(")
		sb.WriteString(strings.Join(quoted, " OR "))
		sb.WriteString(")")
	}
	if q.Company != "" {
		sb.WriteString(fmt.Sprintf(" %q", q.Company))
	}
	return strings.TrimSpace(sb.String())
}

// Key returns a stable identifier for the query ignoring pagination,
// used to name checkpoint files.
func (q Query) Key() string {
	base := q
	base.Page = 0
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, base.Expression())
	if len(sanitized) > 80 {
		sanitized = sanitized[:80]
	}
	return sanitized
}

// RawResponse is the opaque payload returned by the Fetcher for one Query.
// It is owned by the Fetcher until handed to the Parser.
type RawResponse struct {
	Query      Query
	StatusCode int
	Header     http.Header
	Body       []byte
	FetchedAt  time.Time
}

// CandidateRecord is a structured extraction result. Immutable after the
// Parser creates it, except for enrichment filling in the Email field before
// the record is written.
type CandidateRecord struct {
	IdentityKey  string    `json:"identity_key"`
	Name         string    `json:"name"`
	Position     string    `json:"position"`
	Company      string    `json:"company"`
	Email        string    `json:"email,omitempty"`
	EmailAddedAt string    `json:"email_added_at,omitempty"`
	ProfileURL   string    `json:"profile_url"`
	SourceURL    string    `json:"source_url"`
	Snippet      string    `json:"snippet,omitempty"`
	Source       string    `json:"source"`
	ExtractedAt  time.Time `json:"extracted_at"`
}

// IdentityKeyFromURL canonicalizes a profile URL into a stable identity key:
// lowercase scheme and host, path without trailing slash, query and fragment
// stripped. Stable across re-fetches of the same profile.
func IdentityKeyFromURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid profile URL %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("profile URL %q has no host", rawURL)
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	return strings.ToLower(u.Host) + path, nil
}

// RunStatus describes how a run ended
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusCapped    RunStatus = "capped"
	RunStatusBlocked   RunStatus = "blocked"
	RunStatusLocked    RunStatus = "locked"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Incomplete reports whether the run stopped before exhausting the source
func (s RunStatus) Incomplete() bool {
	return s != RunStatusCompleted && s != RunStatusCapped
}

// HarvestResult is the accepted record set for one run plus run metadata.
// Created once per run; counts are updated incrementally as batches commit.
type HarvestResult struct {
	RunID           string            `json:"run_id"`
	Query           Query             `json:"query"`
	Status          RunStatus         `json:"status"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
	Duration        time.Duration     `json:"duration_ns"`
	PagesFetched    int               `json:"pages_fetched"`
	RecordsParsed   int               `json:"records_parsed"`
	RecordsDropped  int               `json:"records_dropped"`
	RecordsAccepted int               `json:"records_accepted"`
	Duplicates      int               `json:"duplicates"`
	Enriched        int               `json:"enriched"`
	Errors          []string          `json:"errors,omitempty"`
	Accepted        []CandidateRecord `json:"-"`
}

// NewHarvestResult creates the result shell for a fresh run
func NewHarvestResult(q Query) *HarvestResult {
	return &HarvestResult{
		RunID:     uuid.NewString(),
		Query:     q,
		Status:    RunStatusCompleted,
		StartedAt: time.Now(),
	}
}

// RecordError appends a non-fatal error to the run summary
func (r *HarvestResult) RecordError(err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, err.Error())
}

// Finish stamps the end of the run
func (r *HarvestResult) Finish(status RunStatus) {
	r.Status = status
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
}
