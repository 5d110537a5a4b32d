package search

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadhunter/pkg/config"
	lherrors "leadhunter/pkg/errors"
	"leadhunter/pkg/logger"
	"leadhunter/pkg/models"
)

func jsonParser(t *testing.T) *Parser {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Search.Company = "Acme Corp"
	return NewParser(cfg, logger.NewNopLogger())
}

func rawJSON(t *testing.T, payload interface{}) *models.RawResponse {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return &models.RawResponse{
		Query:      models.Query{Keywords: []string{"Editor"}, Site: "linkedin.com/in", Company: "Acme Corp"},
		StatusCode: 200,
		Body:       body,
		FetchedAt:  time.Now(),
	}
}

func TestParseJSON(t *testing.T) {
	parser := jsonParser(t)

	raw := rawJSON(t, map[string]interface{}{
		"organic": []map[string]string{
			{
				"link":    "https://www.linkedin.com/in/jane-doe/",
				"title":   "Jane Doe - Editor in Chief | LinkedIn",
				"snippet": "Jane Doe works at Acme Corp as Editor in Chief.",
			},
		},
	})

	result, err := parser.Parse(raw)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.False(t, result.EndOfResults)

	record := result.Records[0]
	assert.Equal(t, "Jane Doe", record.Name)
	assert.Equal(t, "Editor in Chief", record.Position)
	assert.Equal(t, "Acme Corp", record.Company)
	assert.Equal(t, "www.linkedin.com/in/jane-doe", record.IdentityKey)
	assert.Equal(t, "https://www.linkedin.com/in/jane-doe/", record.ProfileURL)
	assert.False(t, record.ExtractedAt.IsZero())
}

func TestParseDropsMalformedEntries(t *testing.T) {
	parser := jsonParser(t)

	raw := rawJSON(t, map[string]interface{}{
		"organic": []map[string]string{
			{"title": "No Link - Editor", "snippet": "acme corp"},
			{"link": "https://www.linkedin.com/in/ok", "title": "Jane Doe - Editor", "snippet": "acme corp"},
			{"link": "https://www.linkedin.com/jobs/view/123", "title": "Job Posting", "snippet": "acme corp"},
			{"link": "https://www.linkedin.com/company/acme", "title": "Acme Corp", "snippet": "acme corp"},
			{"link": "https://example.com/profile", "title": "Off Site - Editor", "snippet": "acme corp"},
			{"link": "https://www.linkedin.com/in/no-mention", "title": "John Roe - Editor", "snippet": "elsewhere"},
		},
	})

	result, err := parser.Parse(raw)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Jane Doe", result.Records[0].Name)
	assert.Equal(t, 5, result.Dropped)
}

func TestParseDropsNonObjectEntries(t *testing.T) {
	parser := jsonParser(t)

	raw := rawJSON(t, map[string]interface{}{
		"organic": []interface{}{
			map[string]string{
				"link":    "https://www.linkedin.com/in/jane-doe",
				"title":   "Jane Doe - Editor in Chief",
				"snippet": "acme corp",
			},
			42,
			"not an object",
		},
	})

	result, err := parser.Parse(raw)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Jane Doe", result.Records[0].Name)
	assert.Equal(t, 2, result.Dropped)
}

func TestParseEndOfResults(t *testing.T) {
	parser := jsonParser(t)

	t.Run("empty container", func(t *testing.T) {
		result, err := parser.Parse(rawJSON(t, map[string]interface{}{"organic": []string{}}))
		require.NoError(t, err)
		assert.True(t, result.EndOfResults)
		assert.Empty(t, result.Records)
	})

	t.Run("missing container", func(t *testing.T) {
		result, err := parser.Parse(rawJSON(t, map[string]interface{}{"credits": 1}))
		require.NoError(t, err)
		assert.True(t, result.EndOfResults)
	})
}

func TestParseInvalidPayload(t *testing.T) {
	parser := jsonParser(t)

	t.Run("not json", func(t *testing.T) {
		_, err := parser.Parse(&models.RawResponse{StatusCode: 200, Body: []byte("<html>oops</html>")})
		require.Error(t, err)

		var classified *lherrors.Error
		require.ErrorAs(t, err, &classified)
		assert.Equal(t, lherrors.ErrorTypeParsing, classified.Type)
	})

	t.Run("container not a list", func(t *testing.T) {
		_, err := parser.Parse(rawJSON(t, map[string]interface{}{"organic": "nope"}))
		require.Error(t, err)

		var classified *lherrors.Error
		require.ErrorAs(t, err, &classified)
		assert.Equal(t, lherrors.ErrorTypeParsing, classified.Type)
	})
}

func TestParseHTML(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Target.Format = "html"
	cfg.Target.Fields = config.FieldMap{
		Container: "div.result",
		Link:      "a.result-link",
		Title:     "h3",
		Snippet:   "p.snippet",
	}
	cfg.Search.Company = "Acme Corp"
	parser := NewParser(cfg, logger.NewNopLogger())

	body := `<html><body>
		<div class="result">
			<a class="result-link" href="https://www.linkedin.com/in/jane-doe">profile</a>
			<h3>Jane Doe - Editor in Chief | LinkedIn</h3>
			<p class="snippet">Jane Doe works at Acme Corp.</p>
		</div>
		<div class="result">
			<h3>Broken entry without a link</h3>
		</div>
	</body></html>`

	result, err := parser.Parse(&models.RawResponse{StatusCode: 200, Body: []byte(body)})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Jane Doe", result.Records[0].Name)
	assert.Equal(t, "Editor in Chief", result.Records[0].Position)
	assert.Equal(t, 1, result.Dropped)

	t.Run("no results", func(t *testing.T) {
		result, err := parser.Parse(&models.RawResponse{StatusCode: 200, Body: []byte("<html><body></body></html>")})
		require.NoError(t, err)
		assert.True(t, result.EndOfResults)
	})
}

func TestParseTitle(t *testing.T) {
	tests := []struct {
		title    string
		name     string
		position string
	}{
		{"Jane Doe - Editor in Chief | LinkedIn", "Jane Doe", "Editor in Chief"},
		{"Jane Doe – Marketing Manager - LinkedIn", "Jane Doe", "Marketing Manager"},
		{"Jane Doe — SEO Manager", "Jane Doe", "SEO Manager"},
		{"Jane Doe", "Jane Doe", ""},
		{"Jane Doe - LinkedIn", "Jane Doe", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			name, position := ParseTitle(tt.title)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.position, position)
		})
	}
}
