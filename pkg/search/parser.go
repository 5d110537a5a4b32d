package search

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"leadhunter/pkg/config"
	"leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
)

// ParseResult is the outcome of parsing one page of results
type ParseResult struct {
	Records []models.CandidateRecord
	// EndOfResults is set when the result container exists but is empty:
	// the source is exhausted. Distinct from a parse error.
	EndOfResults bool
	// Dropped counts entries skipped for being malformed or filtered out
	Dropped int
}

// Parser turns raw responses into candidate records. Parsing is tolerant:
// a malformed entry is dropped and counted, never fatal to the batch.
type Parser struct {
	format  string
	fields  config.FieldMap
	company string
	site    string
	logger  logger.Logger
}

// NewParser creates a parser from the target field mapping
func NewParser(cfg *config.Config, log logger.Logger) *Parser {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Parser{
		format:  cfg.Target.Format,
		fields:  cfg.Target.Fields,
		company: cfg.Search.Company,
		site:    cfg.Search.Site,
		logger:  log,
	}
}

// Parse transforms a raw response into candidate records. It is a pure
// function of the response; no network access.
func (p *Parser) Parse(raw *models.RawResponse) (*ParseResult, error) {
	if p.format == "html" {
		return p.parseHTML(raw)
	}
	return p.parseJSON(raw)
}

func (p *Parser) parseJSON(raw *models.RawResponse) (*ParseResult, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw.Body, &payload); err != nil {
		return nil, errors.New(errors.ErrorTypeParsing, raw.StatusCode,
			"response is not valid JSON: %v", err)
	}

	container, ok := payload[p.fields.Container]
	if !ok {
		// A missing container is indistinguishable from a schema change;
		// treat as end-of-results only if the payload is otherwise sane.
		return &ParseResult{EndOfResults: true}, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(container, &entries); err != nil {
		return nil, errors.New(errors.ErrorTypeParsing, raw.StatusCode,
			"result container %q is not a list: %v", p.fields.Container, err)
	}

	if len(entries) == 0 {
		return &ParseResult{EndOfResults: true}, nil
	}

	result := &ParseResult{}
	for _, rawEntry := range entries {
		// Each entry decodes on its own; a malformed entry is dropped,
		// never fatal to the page.
		var entry map[string]interface{}
		if err := json.Unmarshal(rawEntry, &entry); err != nil {
			result.Dropped++
			p.logDropped("", "entry is not an object")
			continue
		}

		link := stringField(entry, p.fields.Link)
		title := stringField(entry, p.fields.Title)
		snippet := stringField(entry, p.fields.Snippet)

		record, ok := p.buildRecord(link, title, snippet, raw)
		if !ok {
			result.Dropped++
			continue
		}
		result.Records = append(result.Records, record)
	}

	return result, nil
}

func (p *Parser) parseHTML(raw *models.RawResponse) (*ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Body))
	if err != nil {
		return nil, errors.New(errors.ErrorTypeParsing, raw.StatusCode,
			"response is not parseable HTML: %v", err)
	}

	entries := doc.Find(p.fields.Container)
	if entries.Length() == 0 {
		return &ParseResult{EndOfResults: true}, nil
	}

	result := &ParseResult{}
	entries.Each(func(_ int, sel *goquery.Selection) {
		linkNode := sel.Find(p.fields.Link)
		link, _ := linkNode.Attr("href")
		if link == "" {
			link = strings.TrimSpace(linkNode.Text())
		}
		title := strings.TrimSpace(sel.Find(p.fields.Title).Text())
		snippet := strings.TrimSpace(sel.Find(p.fields.Snippet).Text())

		record, ok := p.buildRecord(link, title, snippet, raw)
		if !ok {
			result.Dropped++
			return
		}
		result.Records = append(result.Records, record)
	})

	return result, nil
}

// excludedPathSegments are profile-adjacent pages that are not profiles
var excludedPathSegments = []string{"/jobs/", "/posts/", "/company/"}

// buildRecord validates and assembles one candidate record. Returns
// ok=false for entries that should be dropped.
func (p *Parser) buildRecord(link, title, snippet string, raw *models.RawResponse) (models.CandidateRecord, bool) {
	if link == "" || title == "" {
		return models.CandidateRecord{}, false
	}

	// Keep only profile links under the configured site filter
	if p.site != "" && !strings.Contains(link, p.site) {
		p.logDropped(link, "outside site filter")
		return models.CandidateRecord{}, false
	}
	for _, segment := range excludedPathSegments {
		if strings.Contains(link, segment) {
			p.logDropped(link, "non-profile path")
			return models.CandidateRecord{}, false
		}
	}

	// When scoped to a company, the snippet must mention it
	if p.company != "" && !strings.Contains(strings.ToLower(snippet), strings.ToLower(p.company)) {
		p.logDropped(link, "company not in snippet")
		return models.CandidateRecord{}, false
	}

	identityKey, err := models.IdentityKeyFromURL(link)
	if err != nil {
		p.logDropped(link, "uncanonicalizable URL")
		return models.CandidateRecord{}, false
	}

	name, position := ParseTitle(title)
	if name == "" {
		p.logDropped(link, "empty display name")
		return models.CandidateRecord{}, false
	}

	return models.CandidateRecord{
		IdentityKey: identityKey,
		Name:        name,
		Position:    position,
		Company:     p.company,
		ProfileURL:  link,
		SourceURL:   raw.Query.Expression(),
		Snippet:     snippet,
		Source:      "search",
		ExtractedAt: time.Now(),
	}, true
}

// stringField extracts a string value from a decoded JSON entry,
// tolerating a missing key or a non-string value.
func stringField(entry map[string]interface{}, key string) string {
	v, ok := entry[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func (p *Parser) logDropped(link, reason string) {
	p.logger.DebugWithFields("record dropped", map[string]interface{}{
		"link":   link,
		"reason": reason,
	})
}

// siteSuffix matches a trailing "| LinkedIn ..." or "- LinkedIn ..." fragment
// that search engines append to profile titles.
var siteSuffix = regexp.MustCompile(`(?i)(\||-)?\s*linkedin.*$`)

// dashVariants normalizes en and em dashes before splitting
var dashVariants = strings.NewReplacer("–", "-", "—", "-")

// ParseTitle splits a result title into display name and position.
// Titles follow the pattern "Name - Position | SiteName"; the site
// suffix is stripped from the position.
func ParseTitle(title string) (name, position string) {
	title = dashVariants.Replace(title)
	parts := strings.SplitN(title, "-", 2)
	name = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		position = strings.TrimSpace(siteSuffix.ReplaceAllString(parts[1], ""))
	}
	return name, position
}
