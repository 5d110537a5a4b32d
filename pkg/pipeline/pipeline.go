package pipeline

import (
	"context"
	"errors"
	"fmt"

	"leadhunter/pkg/checkpoint"
	"leadhunter/pkg/config"
	lherrors "leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
	"leadhunter/pkg/search"
	"leadhunter/pkg/sink"
)

// Fetcher retrieves one page of raw results
type Fetcher interface {
	Fetch(ctx context.Context, query models.Query) (*models.RawResponse, error)
}

// Parser turns a raw response into candidate records
type Parser interface {
	Parse(raw *models.RawResponse) (*search.ParseResult, error)
}

// Deduplicator filters records against the seen index with staged commits
type Deduplicator interface {
	FilterNew(ctx context.Context, records []models.CandidateRecord) ([]models.CandidateRecord, error)
	Commit(ctx context.Context) error
	Discard()
}

// Enricher fills in emails for accepted records
type Enricher interface {
	Enrich(ctx context.Context, records []models.CandidateRecord) ([]models.CandidateRecord, int)
}

// DomainSearcher lists known contacts at a domain, used as a fallback when
// profile enrichment found no emails at all.
type DomainSearcher interface {
	DomainSearch(ctx context.Context, domain string, limit int) ([]models.CandidateRecord, error)
}

// domainSearchLimit caps the fallback contact lookup
const domainSearchLimit = 3

// Orchestrator drives the harvest: fetch, parse, dedupe, write, commit,
// page by page, until the source is exhausted or a bound is hit. It is
// strictly sequential; cancellation is honored between pages.
type Orchestrator struct {
	fetcher     Fetcher
	parser      Parser
	dedup       Deduplicator
	sink        sink.Sink
	enricher    Enricher
	domains     DomainSearcher
	checkpoints *checkpoint.Manager
	cfg         *config.Config
	logger      logger.Logger
	runID       string
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithEnricher attaches the optional enrichment stage
func WithEnricher(e Enricher) Option {
	return func(o *Orchestrator) { o.enricher = e }
}

// WithDomainSearch attaches the optional contact-lookup fallback
func WithDomainSearch(d DomainSearcher) Option {
	return func(o *Orchestrator) { o.domains = d }
}

// WithCheckpoints attaches checkpoint persistence for resumable runs
func WithCheckpoints(m *checkpoint.Manager) Option {
	return func(o *Orchestrator) { o.checkpoints = m }
}

// WithRunID pins the run identifier so it matches the seen-index run marker
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// New creates an orchestrator over the pipeline stages
func New(fetcher Fetcher, parser Parser, dedup Deduplicator, out sink.Sink, cfg *config.Config, log logger.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logger.GetLogger()
	}

	o := &Orchestrator{
		fetcher: fetcher,
		parser:  parser,
		dedup:   dedup,
		sink:    out,
		cfg:     cfg,
		logger:  log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the harvest for the query. The returned HarvestResult is
// never nil: on fatal errors it carries everything accumulated up to the
// failure, and the in-flight batch's keys are not committed.
func (o *Orchestrator) Run(ctx context.Context, query models.Query) (*models.HarvestResult, error) {
	result := models.NewHarvestResult(query)
	if o.runID != "" {
		result.RunID = o.runID
	}

	o.logger.InfoWithFields("harvest starting", map[string]interface{}{
		"run_id":     result.RunID,
		"expression": query.Expression(),
		"max_pages":  o.cfg.Limits.MaxPages,
	})

	runErr := o.paginate(ctx, query, result)

	if runErr == nil && o.needsDomainFallback(result) {
		o.domainFallback(ctx, result)
	}

	if runErr != nil {
		// The in-flight batch was not durably written: its keys must not
		// be marked seen, or those records would be lost forever.
		o.dedup.Discard()
		result.RecordError(runErr)
		result.Finish(statusForError(runErr))
	} else {
		result.Finish(result.Status)
	}

	if err := o.sink.WriteSummary(result); err != nil {
		o.logger.ErrorWithFields("failed to write run summary", map[string]interface{}{
			"run_id": result.RunID,
			"error":  err.Error(),
		})
		result.RecordError(err)
	}

	if o.checkpoints != nil && !result.Status.Incomplete() {
		if err := o.checkpoints.Delete(); err != nil {
			result.RecordError(err)
		}
	}

	o.logger.InfoWithFields("harvest finished", map[string]interface{}{
		"run_id":   result.RunID,
		"status":   string(result.Status),
		"pages":    result.PagesFetched,
		"accepted": result.RecordsAccepted,
		"enriched": result.Enriched,
		"duration": result.Duration,
	})

	return result, runErr
}

// paginate runs the page loop, mutating result as it goes. A nil return
// means the run ended at a clean boundary (exhaustion, cap, or cancel
// between pages); result.Status is set accordingly.
func (o *Orchestrator) paginate(ctx context.Context, query models.Query, result *models.HarvestResult) error {
	var cp *checkpoint.Checkpoint
	if o.checkpoints != nil {
		cp, _ = o.checkpoints.Load()
		if cp != nil && cp.NextPage > query.Page {
			o.logger.InfoWithFields("resuming from checkpoint", map[string]interface{}{
				"next_page": cp.NextPage,
			})
			query.Page = cp.NextPage
		}
		if cp == nil {
			var err error
			if cp, err = o.checkpoints.Create(query); err != nil {
				o.logger.WarnWithFields("checkpointing disabled for this run", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}

	var pending []models.CandidateRecord

	// A fatal error still flushes records accumulated from earlier pages in
	// write_mode=final; only the failed page's work is lost.
	fail := func(err error) error {
		if ferr := o.flushOnError(ctx, pending, result); ferr != nil {
			result.RecordError(ferr)
		}
		return err
	}

	for {
		if result.PagesFetched >= o.cfg.Limits.MaxPages {
			result.Status = models.RunStatusCapped
			o.logger.InfoWithFields("page cap reached", map[string]interface{}{
				"max_pages": o.cfg.Limits.MaxPages,
			})
			break
		}
		if o.cfg.Limits.MaxRecords > 0 && result.RecordsAccepted >= o.cfg.Limits.MaxRecords {
			result.Status = models.RunStatusCapped
			break
		}

		// Cooperative cancellation boundary
		select {
		case <-ctx.Done():
			result.Status = models.RunStatusCancelled
			o.logger.Info("harvest cancelled between pages")
			return o.flushPending(context.WithoutCancel(ctx), pending, result)
		default:
		}

		raw, err := o.fetcher.Fetch(ctx, query)
		if err != nil {
			return fail(err)
		}
		result.PagesFetched++

		parsed, err := o.parser.Parse(raw)
		if err != nil {
			return fail(fmt.Errorf("page %d: %w", query.Page, err))
		}

		result.RecordsParsed += len(parsed.Records)
		result.RecordsDropped += parsed.Dropped

		if parsed.EndOfResults {
			result.Status = models.RunStatusCompleted
			o.logger.InfoWithFields("source exhausted", map[string]interface{}{
				"page": query.Page,
			})
			break
		}

		fresh, err := o.dedup.FilterNew(ctx, parsed.Records)
		if err != nil {
			return fail(err)
		}
		result.Duplicates += len(parsed.Records) - len(fresh)

		// Truncate the batch rather than overshoot the record cap. The
		// stage is rebuilt so keys beyond the cap are not marked seen.
		if o.cfg.Limits.MaxRecords > 0 {
			remaining := o.cfg.Limits.MaxRecords - result.RecordsAccepted
			if len(fresh) > remaining {
				o.dedup.Discard()
				if len(pending) > 0 {
					if _, err = o.dedup.FilterNew(ctx, pending); err != nil {
						return fail(err)
					}
				}
				if fresh, err = o.dedup.FilterNew(ctx, fresh[:remaining]); err != nil {
					return fail(err)
				}
			}
		}

		if o.enricher != nil && len(fresh) > 0 {
			var n int
			fresh, n = o.enricher.Enrich(ctx, fresh)
			result.Enriched += n
		}

		if o.cfg.Output.WriteMode == "final" {
			pending = append(pending, fresh...)
			result.RecordsAccepted += len(fresh)
			result.Accepted = append(result.Accepted, fresh...)
		} else {
			if err := o.writeAndCommit(ctx, fresh, result); err != nil {
				return err
			}
		}

		o.logger.InfoWithFields("page processed", map[string]interface{}{
			"page":       query.Page,
			"parsed":     len(parsed.Records),
			"accepted":   len(fresh),
			"duplicates": len(parsed.Records) - len(fresh),
		})

		query = query.Next()
		if o.checkpoints != nil && cp != nil {
			if err := o.checkpoints.UpdateProgress(cp, query.Page, result.RecordsAccepted); err != nil {
				o.logger.WarnWithFields("checkpoint save failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}

	return o.flushPending(ctx, pending, result)
}

// flushPending writes accumulated records in write_mode=final
func (o *Orchestrator) flushPending(ctx context.Context, pending []models.CandidateRecord, result *models.HarvestResult) error {
	if o.cfg.Output.WriteMode != "final" {
		return nil
	}

	// Counts were tallied as batches were accepted; subtract before the
	// shared write path re-adds them.
	result.RecordsAccepted -= len(pending)
	result.Accepted = result.Accepted[:0]
	return o.writeAndCommit(ctx, pending, result)
}

// flushOnError persists the pending records when a fatal error ends the run
// in write_mode=final. The stage is rebuilt from the pending records first,
// so keys staged for the failed page are never committed unwritten. If the
// flush itself fails, the counts no longer claim the records.
func (o *Orchestrator) flushOnError(ctx context.Context, pending []models.CandidateRecord, result *models.HarvestResult) error {
	if o.cfg.Output.WriteMode != "final" || len(pending) == 0 {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	o.dedup.Discard()
	if _, err := o.dedup.FilterNew(ctx, pending); err != nil {
		result.RecordsAccepted -= len(pending)
		result.Accepted = result.Accepted[:0]
		return err
	}
	return o.flushPending(ctx, pending, result)
}

// writeAndCommit durably writes a batch and only then commits its keys to
// the seen index. Ordering is the core persistence invariant: a record
// must never be marked seen unless it is safely on disk.
func (o *Orchestrator) writeAndCommit(ctx context.Context, records []models.CandidateRecord, result *models.HarvestResult) error {
	if len(records) == 0 {
		return o.dedup.Commit(ctx)
	}

	if err := o.sink.WriteBatch(ctx, records); err != nil {
		return err
	}
	if err := o.dedup.Commit(ctx); err != nil {
		return err
	}

	result.RecordsAccepted += len(records)
	result.Accepted = append(result.Accepted, records...)
	return nil
}

// needsDomainFallback reports whether the contact-lookup fallback should
// run: enrichment was on, a domain is configured, and no accepted record
// ended up with an email.
func (o *Orchestrator) needsDomainFallback(result *models.HarvestResult) bool {
	if o.domains == nil || o.cfg.Search.CompanyURL == "" {
		return false
	}
	for _, record := range result.Accepted {
		if record.Email != "" {
			return false
		}
	}
	return true
}

// domainFallback fetches known contacts for the configured domain and runs
// them through the same dedupe/write/commit path. Failures here are logged
// and recorded but never fail an otherwise clean run.
func (o *Orchestrator) domainFallback(ctx context.Context, result *models.HarvestResult) {
	contacts, err := o.domains.DomainSearch(ctx, o.cfg.Search.CompanyURL, domainSearchLimit)
	if err != nil {
		o.logger.WarnWithFields("domain contact lookup failed", map[string]interface{}{
			"domain": o.cfg.Search.CompanyURL,
			"error":  err.Error(),
		})
		result.RecordError(err)
		return
	}
	if len(contacts) == 0 {
		return
	}

	fresh, err := o.dedup.FilterNew(ctx, contacts)
	if err != nil {
		result.RecordError(err)
		return
	}
	result.Duplicates += len(contacts) - len(fresh)

	if err := o.writeAndCommit(ctx, fresh, result); err != nil {
		result.RecordError(err)
		o.dedup.Discard()
		return
	}

	o.logger.InfoWithFields("domain contacts added", map[string]interface{}{
		"domain":   o.cfg.Search.CompanyURL,
		"contacts": len(fresh),
	})
}

// statusForError maps a fatal run error onto the run status
func statusForError(err error) models.RunStatus {
	var classified *lherrors.Error
	if errors.As(err, &classified) {
		switch classified.Type {
		case lherrors.ErrorTypeBlocked:
			return models.RunStatusBlocked
		case lherrors.ErrorTypeAuth:
			return models.RunStatusLocked
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.RunStatusCancelled
	}
	return models.RunStatusFailed
}
