package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"leadhunter/pkg/config"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
	"leadhunter/pkg/ratelimit"
)

// job is one enrichment task: the record at index in the batch
type job struct {
	index  int
	record models.CandidateRecord
}

// result is the outcome of one enrichment lookup
type result struct {
	index    int
	email    string
	err      error
	duration time.Duration
}

// Enricher fills in email addresses for accepted records using a bounded
// worker pool with its own rate budget. Lookup failures are logged and
// counted, never fatal: a record without an email is still a record.
type Enricher struct {
	finder     Finder
	numWorkers int
	domain     string
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// New creates an enricher over the given finder
func New(finder Finder, cfg *config.Config, log logger.Logger) *Enricher {
	if log == nil {
		log = logger.GetLogger()
	}

	workers := cfg.Enrich.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Enricher{
		finder:     finder,
		numWorkers: workers,
		domain:     cfg.Search.CompanyURL,
		limiter: ratelimit.NewSlidingWindow(
			cfg.Enrich.RequestsPerWindow,
			cfg.Enrich.Window,
			0,
		),
		logger: log,
	}
}

// Enrich looks up emails for all records and returns the batch with the
// Email and EmailAddedAt fields filled where a lookup succeeded. The
// second return value is the number of records enriched.
func (e *Enricher) Enrich(ctx context.Context, records []models.CandidateRecord) ([]models.CandidateRecord, int) {
	if len(records) == 0 || e.domain == "" {
		return records, 0
	}

	jobQueue := make(chan job, len(records))
	resultQueue := make(chan result, len(records))

	var wg sync.WaitGroup
	for i := 0; i < e.numWorkers; i++ {
		wg.Add(1)
		go e.worker(ctx, i, jobQueue, resultQueue, &wg)
	}

	for i, record := range records {
		jobQueue <- job{index: i, record: record}
	}
	close(jobQueue)

	wg.Wait()
	close(resultQueue)

	enriched := 0
	out := make([]models.CandidateRecord, len(records))
	copy(out, records)
	for res := range resultQueue {
		if res.err != nil {
			e.logger.WarnWithFields("enrichment lookup failed", map[string]interface{}{
				"name":  out[res.index].Name,
				"error": res.err.Error(),
			})
			continue
		}
		if res.email == "" {
			continue
		}
		out[res.index].Email = res.email
		out[res.index].EmailAddedAt = time.Now().Format("2006-01-02")
		enriched++
	}

	e.logger.InfoWithFields("batch enriched", map[string]interface{}{
		"records":  len(records),
		"enriched": enriched,
	})

	return out, enriched
}

// worker drains the job queue, respecting the enrichment rate budget
func (e *Enricher) worker(ctx context.Context, id int, jobs <-chan job, results chan<- result, wg *sync.WaitGroup) {
	defer wg.Done()

	for j := range jobs {
		select {
		case <-ctx.Done():
			results <- result{index: j.index, err: ctx.Err()}
			continue
		default:
		}

		start := time.Now()

		if err := e.limiter.Acquire(ctx); err != nil {
			results <- result{index: j.index, err: fmt.Errorf("rate limiter: %w", err)}
			continue
		}

		email, err := e.finder.FindEmail(ctx, j.record.Name, e.domain)
		results <- result{
			index:    j.index,
			email:    email,
			err:      err,
			duration: time.Since(start),
		}

		e.logger.DebugWithFields("enrichment lookup completed", map[string]interface{}{
			"worker_id": id,
			"name":      j.record.Name,
			"found":     email != "",
			"duration":  time.Since(start),
		})
	}
}
