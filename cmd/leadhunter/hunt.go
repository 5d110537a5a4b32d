package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"leadhunter/pkg/auth"
	"leadhunter/pkg/checkpoint"
	"leadhunter/pkg/config"
	"leadhunter/pkg/dedup"
	"leadhunter/pkg/enrich"
	lherrors "leadhunter/pkg/errors"
	"leadhunter/pkg/fetch"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
	"leadhunter/pkg/pipeline"
	"leadhunter/pkg/ratelimit"
	"leadhunter/pkg/search"
	"leadhunter/pkg/session"
	"leadhunter/pkg/sink"
)

// Exit codes: callers distinguish a detected/blocked run from ordinary
// failures without parsing logs.
const (
	exitOK      = 0
	exitFailed  = 1
	exitBlocked = 2
	exitLocked  = 3
	exitStorage = 4
)

var (
	huntKeywords     []string
	huntSite         string
	huntCompany      string
	huntCompanyURL   string
	huntOutputDir    string
	huntMaxPages     int
	huntMaxRecords   int
	huntRequests     int
	huntResume       bool
	huntForceRestart bool
)

var huntCmd = &cobra.Command{
	Use:   "hunt",
	Short: "Run the harvesting pipeline",
	Long: `Run the harvesting pipeline: search page by page, parse results into
candidate records, drop duplicates against the persistent seen index, and
append accepted records to the output sink.

With no flags the run is configured entirely from the environment
(LEADHUNTER_* variables), a .env file, or a .leadhunter.yaml config file.`,
	Example: `  # Environment-only run
  LEADHUNTER_API_KEY=... LEADHUNTER_COMPANY="Acme Corp" leadhunter hunt

  # Scope and bound the run with flags
  leadhunter hunt --company "Acme Corp" --max-pages 5 --max-records 50

  # Resume an interrupted run
  leadhunter hunt --company "Acme Corp" --resume`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runHunt())
	},
}

func init() {
	huntCmd.Flags().StringSliceVar(&huntKeywords, "keywords", nil, "keyword titles to search for")
	huntCmd.Flags().StringVar(&huntSite, "site", "", "site filter for profile links")
	huntCmd.Flags().StringVar(&huntCompany, "company", "", "company name to scope the search")
	huntCmd.Flags().StringVar(&huntCompanyURL, "company-url", "", "company domain, enables enrichment lookups")
	huntCmd.Flags().StringVarP(&huntOutputDir, "output", "o", "", "output directory")
	huntCmd.Flags().IntVar(&huntMaxPages, "max-pages", 0, "hard ceiling on pages fetched")
	huntCmd.Flags().IntVar(&huntMaxRecords, "max-records", 0, "hard ceiling on accepted records")
	huntCmd.Flags().IntVar(&huntRequests, "requests-per-window", 0, "rate budget per window")
	huntCmd.Flags().BoolVar(&huntResume, "resume", false, "resume from the last checkpoint for this query")
	huntCmd.Flags().BoolVar(&huntForceRestart, "force-restart", false, "discard any existing checkpoint and start over")

	rootCmd.AddCommand(huntCmd)
}

func runHunt() int {
	flags := map[string]interface{}{}
	if len(huntKeywords) > 0 {
		flags["keywords"] = huntKeywords
	}
	if huntSite != "" {
		flags["site"] = huntSite
	}
	if huntCompany != "" {
		flags["company"] = huntCompany
	}
	if huntOutputDir != "" {
		flags["output"] = huntOutputDir
	}
	if huntMaxPages > 0 {
		flags["max-pages"] = huntMaxPages
	}
	if huntMaxRecords > 0 {
		flags["max-records"] = huntMaxRecords
	}
	if huntRequests > 0 {
		flags["requests-per-window"] = huntRequests
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitFailed
	}
	if huntCompanyURL != "" {
		cfg.Search.CompanyURL = huntCompanyURL
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		return exitFailed
	}
	log := logger.GetLogger()

	account, err := resolveAccount(cfg)
	if err != nil {
		log.WithError(err).Error("no usable credentials")
		fmt.Fprintln(os.Stderr, "no usable credentials: set LEADHUNTER_API_KEY or run `leadhunter auth login`")
		return exitLocked
	}
	if cfg.Enrich.APIKey == "" && account.EnrichAPIKey != "" {
		cfg.Enrich.APIKey = account.EnrichAPIKey
	}

	query := models.Query{
		Keywords: cfg.Search.Keywords,
		Site:     cfg.Search.Site,
		Company:  cfg.Search.Company,
		PageSize: cfg.Search.PageSize,
	}

	// Cooperative shutdown: first signal stops the run between pages
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, runErr := runPipeline(ctx, cfg, account, query, log)
	if result != nil {
		printSummary(result)
	}
	return exitCodeFor(result, runErr)
}

// runPipeline wires the stages together and executes the harvest
func runPipeline(ctx context.Context, cfg *config.Config, account *auth.Account, query models.Query, log logger.Logger) (*models.HarvestResult, error) {
	runID := uuid.NewString()

	index, err := dedup.Open(cfg.SeenIndexFile(), runID, log)
	if err != nil {
		return nil, err
	}
	defer index.Close()

	out, err := sink.New(&cfg.Output, log)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	sessions := session.NewManager(account, cfg, log)
	client := search.NewClient(cfg, log)
	limiter := ratelimit.New(
		cfg.RateLimit.Strategy,
		cfg.RateLimit.RequestsPerWindow,
		cfg.RateLimit.Window,
		cfg.RateLimit.JitterRange,
	)
	fetcher := fetch.New(client, sessions, limiter, cfg, log)
	parser := search.NewParser(cfg, log)

	opts := []pipeline.Option{pipeline.WithRunID(runID)}

	if cfg.Enrich.Enabled() {
		finder := enrich.NewClient(&cfg.Enrich, log)
		opts = append(opts,
			pipeline.WithEnricher(enrich.New(finder, cfg, log)),
			pipeline.WithDomainSearch(finder),
		)
	}

	if huntResume || huntForceRestart {
		checkpoints, err := checkpoint.NewManager(query)
		if err != nil {
			log.WithError(err).Warn("checkpointing unavailable")
		} else {
			if huntForceRestart {
				if err := checkpoints.Delete(); err != nil {
					log.WithError(err).Warn("failed to discard checkpoint")
				}
			}
			opts = append(opts, pipeline.WithCheckpoints(checkpoints))
		}
	}

	o := pipeline.New(fetcher, parser, index, out, cfg, log, opts...)
	return o.Run(ctx, query)
}

// printSummary writes a short human-readable run report to stdout
func printSummary(result *models.HarvestResult) {
	fmt.Printf("\nRun %s finished: %s\n", result.RunID, result.Status)
	fmt.Printf("  Pages fetched:    %d\n", result.PagesFetched)
	fmt.Printf("  Records parsed:   %d (%d dropped)\n", result.RecordsParsed, result.RecordsDropped)
	fmt.Printf("  Records accepted: %d (%d duplicates skipped)\n", result.RecordsAccepted, result.Duplicates)
	if result.Enriched > 0 {
		fmt.Printf("  Emails found:     %d\n", result.Enriched)
	}
	fmt.Printf("  Duration:         %s\n", result.Duration.Round(10*time.Millisecond))
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors:           %d (see run summary)\n", len(result.Errors))
	}
}

// exitCodeFor maps the run outcome onto the process exit contract
func exitCodeFor(result *models.HarvestResult, err error) int {
	if result != nil {
		switch result.Status {
		case models.RunStatusBlocked:
			return exitBlocked
		case models.RunStatusLocked:
			return exitLocked
		case models.RunStatusCompleted, models.RunStatusCapped:
			return exitOK
		}
	}

	var classified *lherrors.Error
	if errors.As(err, &classified) && classified.Type == lherrors.ErrorTypeStorage {
		return exitStorage
	}
	if err != nil || (result != nil && result.Status == models.RunStatusFailed) {
		return exitFailed
	}
	return exitFailed
}

// resolveAccount finds credentials: the store chain first, then plain config
func resolveAccount(cfg *config.Config) (*auth.Account, error) {
	manager, err := auth.NewManager()
	if err == nil {
		if cfg.Session.Account != "" && cfg.Session.Account != "default" {
			if account, err := manager.Retrieve(cfg.Session.Account); err == nil {
				return account, nil
			}
		}
		if account, err := manager.RetrieveDefault(); err == nil {
			return account, nil
		}
	}

	if cfg.Target.APIKey != "" {
		return &auth.Account{Name: "config", APIKey: cfg.Target.APIKey}, nil
	}

	return nil, auth.ErrCredentialsNotFound
}
