package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the harvester
type Config struct {
	// Target service settings
	Target TargetConfig `yaml:"target" json:"target"`

	// Search parameters
	Search SearchConfig `yaml:"search" json:"search"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry policy
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Session handling
	Session SessionConfig `yaml:"session" json:"session"`

	// Run caps
	Limits LimitsConfig `yaml:"limits" json:"limits"`

	// Enrichment settings
	Enrich EnrichConfig `yaml:"enrich" json:"enrich"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// TargetConfig holds target-service configuration
type TargetConfig struct {
	SearchURL string `yaml:"search_url" json:"search_url"`
	LoginURL  string `yaml:"login_url" json:"login_url"`
	APIKey    string `yaml:"api_key" json:"api_key"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	// Format selects the response parser: "json" or "html"
	Format  string        `yaml:"format" json:"format"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Fields maps record fields onto payload keys (json format) or
	// CSS selectors (html format). The target schema is unversioned and
	// semi-structured, so the mapping is configuration, not code.
	Fields FieldMap `yaml:"fields" json:"fields"`
}

// FieldMap describes where record fields live in a response
type FieldMap struct {
	Container string `yaml:"container" json:"container"`
	Link      string `yaml:"link" json:"link"`
	Title     string `yaml:"title" json:"title"`
	Snippet   string `yaml:"snippet" json:"snippet"`
}

// SearchConfig holds search parameters
type SearchConfig struct {
	Keywords     []string `yaml:"keywords" json:"keywords"`
	KeywordsFile string   `yaml:"keywords_file" json:"keywords_file"`
	Site         string   `yaml:"site" json:"site"`
	Company      string   `yaml:"company" json:"company"`
	CompanyURL   string   `yaml:"company_url" json:"company_url"`
	PageSize     int      `yaml:"page_size" json:"page_size"`
}

// RateLimitConfig holds the request budget for the target service
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window" json:"requests_per_window"`
	Window            time.Duration `yaml:"window" json:"window"`
	JitterRange       time.Duration `yaml:"jitter_range" json:"jitter_range"`
	// Strategy selects the limiter: "sliding" or "smooth"
	Strategy string `yaml:"strategy" json:"strategy"`
}

// RetryConfig holds the fetcher retry policy
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// SessionConfig holds session manager settings
type SessionConfig struct {
	Account string `yaml:"account" json:"account"`
	// MaxAuthFailures is the consecutive-failure count after which the
	// manager locks and stops retrying (prevents triggering account lockouts)
	MaxAuthFailures int           `yaml:"max_auth_failures" json:"max_auth_failures"`
	TokenTTL        time.Duration `yaml:"token_ttl" json:"token_ttl"`
}

// LimitsConfig bounds a run even when the source never signals exhaustion
type LimitsConfig struct {
	MaxPages   int `yaml:"max_pages" json:"max_pages"`
	MaxRecords int `yaml:"max_records" json:"max_records"`
}

// EnrichConfig holds email-finder enrichment settings
type EnrichConfig struct {
	APIKey            string        `yaml:"api_key" json:"api_key"`
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	Workers           int           `yaml:"workers" json:"workers"`
	RequestsPerWindow int           `yaml:"requests_per_window" json:"requests_per_window"`
	Window            time.Duration `yaml:"window" json:"window"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
}

// Enabled reports whether enrichment should run at all
func (e EnrichConfig) Enabled() bool {
	return e.APIKey != ""
}

// OutputConfig holds result and seen-index storage configuration
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory"`
	// Format selects the sink: "jsonl" or "sqlite"
	Format string `yaml:"format" json:"format"`
	// WriteMode is "batch" (append per accepted batch) or "final"
	WriteMode     string `yaml:"write_mode" json:"write_mode"`
	SeenIndexPath string `yaml:"seen_index_path" json:"seen_index_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			Format:    "json",
			Timeout:   10 * time.Second,
			Fields: FieldMap{
				Container: "organic",
				Link:      "link",
				Title:     "title",
				Snippet:   "snippet",
			},
		},
		Search: SearchConfig{
			Keywords: []string{"SEO Manager", "Editor in Chief", "Marketing Manager"},
			Site:     "linkedin.com/in",
			PageSize: 10,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 30,
			Window:            time.Minute,
			JitterRange:       2 * time.Second,
			Strategy:          "sliding",
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			BaseDelay:    1 * time.Second,
			MaxDelay:     60 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Session: SessionConfig{
			Account:         "default",
			MaxAuthFailures: 3,
			TokenTTL:        30 * time.Minute,
		},
		Limits: LimitsConfig{
			MaxPages:   20,
			MaxRecords: 500,
		},
		Enrich: EnrichConfig{
			Workers:           2,
			RequestsPerWindow: 10,
			Window:            time.Minute,
			Timeout:           10 * time.Second,
		},
		Output: OutputConfig{
			Directory: "./harvest",
			Format:    "jsonl",
			WriteMode: "batch",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("LEADHUNTER_SEARCH_URL"); v != "" {
		c.Target.SearchURL = v
	}
	if v := os.Getenv("LEADHUNTER_LOGIN_URL"); v != "" {
		c.Target.LoginURL = v
	}
	if v := os.Getenv("LEADHUNTER_API_KEY"); v != "" {
		c.Target.APIKey = v
	}
	if v := os.Getenv("LEADHUNTER_USER_AGENT"); v != "" {
		c.Target.UserAgent = v
	}
	if v := os.Getenv("LEADHUNTER_FORMAT"); v != "" {
		c.Target.Format = v
	}

	if v := os.Getenv("LEADHUNTER_KEYWORDS"); v != "" {
		parts := strings.Split(v, ",")
		keywords := make([]string, 0, len(parts))
		for _, p := range parts {
			if kw := strings.TrimSpace(p); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) > 0 {
			c.Search.Keywords = keywords
		}
	}
	if v := os.Getenv("LEADHUNTER_KEYWORDS_FILE"); v != "" {
		c.Search.KeywordsFile = v
	}
	if v := os.Getenv("LEADHUNTER_SITE"); v != "" {
		c.Search.Site = v
	}
	if v := os.Getenv("LEADHUNTER_COMPANY"); v != "" {
		c.Search.Company = v
	}
	if v := os.Getenv("LEADHUNTER_COMPANY_URL"); v != "" {
		c.Search.CompanyURL = v
	}

	if v := os.Getenv("LEADHUNTER_REQUESTS_PER_WINDOW"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerWindow = val
		}
	}
	if v := os.Getenv("LEADHUNTER_WINDOW_SECONDS"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.RateLimit.Window = time.Duration(val) * time.Second
		}
	}

	if v := os.Getenv("LEADHUNTER_MAX_PAGES"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.Limits.MaxPages = val
		}
	}
	if v := os.Getenv("LEADHUNTER_MAX_RECORDS"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.Limits.MaxRecords = val
		}
	}

	if v := os.Getenv("LEADHUNTER_ENRICH_API_KEY"); v != "" {
		c.Enrich.APIKey = v
	}
	if v := os.Getenv("LEADHUNTER_ENRICH_URL"); v != "" {
		c.Enrich.BaseURL = v
	}

	if v := os.Getenv("LEADHUNTER_OUTPUT_DIR"); v != "" {
		c.Output.Directory = v
	}
	if v := os.Getenv("LEADHUNTER_OUTPUT_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("LEADHUNTER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".leadhunter.yaml",
		".leadhunter.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "leadhunter", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "leadhunter", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".leadhunter.yaml"),
		filepath.Join(os.Getenv("HOME"), ".leadhunter.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// LoadKeywordsFile replaces the keyword list with the contents of the
// configured file, one keyword per line. Missing file keeps the defaults.
func (c *Config) LoadKeywordsFile() error {
	if c.Search.KeywordsFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.Search.KeywordsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read keywords file: %w", err)
	}

	var keywords []string
	for _, line := range strings.Split(string(data), "\n") {
		if kw := strings.TrimSpace(line); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) > 0 {
		c.Search.Keywords = keywords
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Target.SearchURL == "" {
		errs = append(errs, errors.New("target search URL is required"))
	}
	switch c.Target.Format {
	case "json", "html":
	default:
		errs = append(errs, errors.New("target format must be json or html"))
	}
	if c.Target.Timeout <= 0 {
		errs = append(errs, errors.New("target timeout must be positive"))
	}

	if len(c.Search.Keywords) == 0 {
		errs = append(errs, errors.New("at least one search keyword is required"))
	}
	if c.Search.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}

	if c.RateLimit.RequestsPerWindow <= 0 {
		errs = append(errs, errors.New("requests per window must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit window must be positive"))
	}
	switch c.RateLimit.Strategy {
	case "sliding", "smooth":
	default:
		errs = append(errs, errors.New("rate limit strategy must be sliding or smooth"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}

	if c.Session.MaxAuthFailures <= 0 {
		errs = append(errs, errors.New("max auth failures must be positive"))
	}

	if c.Limits.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if c.Limits.MaxRecords <= 0 {
		errs = append(errs, errors.New("max records must be positive"))
	}

	if c.Enrich.Enabled() {
		if c.Enrich.BaseURL == "" {
			errs = append(errs, errors.New("enrich base URL is required when an enrich API key is set"))
		}
		if c.Enrich.Workers <= 0 || c.Enrich.Workers > 10 {
			errs = append(errs, errors.New("enrich workers must be between 1 and 10"))
		}
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	switch c.Output.Format {
	case "jsonl", "sqlite":
	default:
		errs = append(errs, errors.New("output format must be jsonl or sqlite"))
	}
	switch c.Output.WriteMode {
	case "batch", "final":
	default:
		errs = append(errs, errors.New("write mode must be batch or final"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// SeenIndexFile resolves the seen-index path, defaulting into the output dir
func (c *Config) SeenIndexFile() string {
	if c.Output.SeenIndexPath != "" {
		return c.Output.SeenIndexPath
	}
	return filepath.Join(c.Output.Directory, "seen.db")
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if site, ok := flags["site"].(string); ok && site != "" {
		c.Search.Site = site
	}
	if company, ok := flags["company"].(string); ok && company != "" {
		c.Search.Company = company
	}
	if keywords, ok := flags["keywords"].([]string); ok && len(keywords) > 0 {
		c.Search.Keywords = keywords
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.Directory = outputDir
	}
	if maxPages, ok := flags["max-pages"].(int); ok && maxPages > 0 {
		c.Limits.MaxPages = maxPages
	}
	if maxRecords, ok := flags["max-records"].(int); ok && maxRecords > 0 {
		c.Limits.MaxRecords = maxRecords
	}
	if rpw, ok := flags["requests-per-window"].(int); ok && rpw > 0 {
		c.RateLimit.RequestsPerWindow = rpw
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".leadhunter.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := config.LoadKeywordsFile(); err != nil {
		return nil, fmt.Errorf("failed to load keywords file: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
