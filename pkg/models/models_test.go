package models

import (
	"strings"
	"testing"
)

func TestQueryExpression(t *testing.T) {
	q := Query{
		Keywords: []string{"SEO Manager", "Editor in Chief"},
		Site:     "linkedin.com/in",
		Company:  "Acme Corp",
	}

	expr := q.Expression()
	if !strings.HasPrefix(expr, "site:linkedin.com/in ") {
		t.Errorf("Expected site filter prefix, got %q", expr)
	}
	if !strings.Contains(expr, `"SEO Manager" OR "Editor in Chief"`) {
		t.Errorf("Expected OR-joined quoted keywords, got %q", expr)
	}
	if !strings.HasSuffix(expr, `"Acme Corp"`) {
		t.Errorf("Expected quoted company suffix, got %q", expr)
	}
}

func TestQueryExpressionWithoutOptionalParts(t *testing.T) {
	q := Query{Keywords: []string{"Marketing Manager"}}
	expr := q.Expression()
	if expr != `("Marketing Manager")` {
		t.Errorf("Unexpected expression: %q", expr)
	}
}

func TestQueryNext(t *testing.T) {
	q := Query{Page: 2, PageSize: 10}
	next := q.Next()

	if next.Page != 3 {
		t.Errorf("Expected page 3, got %d", next.Page)
	}
	if q.Page != 2 {
		t.Error("Expected original query to be unchanged")
	}
}

func TestQueryKeyIgnoresPage(t *testing.T) {
	a := Query{Keywords: []string{"CTO"}, Site: "example.com", Page: 0}
	b := a.Next()

	if a.Key() != b.Key() {
		t.Error("Expected checkpoint key to be stable across pages")
	}
	for _, r := range a.Key() {
		valid := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
		if !valid {
			t.Errorf("Key contains invalid rune %q", r)
		}
	}
}

func TestIdentityKeyFromURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://www.linkedin.com/in/jane-doe/", "www.linkedin.com/in/jane-doe"},
		{"https://WWW.LinkedIn.com/in/jane-doe?trk=search", "www.linkedin.com/in/jane-doe"},
		{"http://www.linkedin.com/in/jane-doe#about", "www.linkedin.com/in/jane-doe"},
	}

	for _, tc := range cases {
		got, err := IdentityKeyFromURL(tc.in)
		if err != nil {
			t.Fatalf("IdentityKeyFromURL(%q) returned error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("IdentityKeyFromURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIdentityKeyFromURLRejectsHostless(t *testing.T) {
	if _, err := IdentityKeyFromURL("/in/jane-doe"); err == nil {
		t.Error("Expected error for URL without host")
	}
}

func TestHarvestResultLifecycle(t *testing.T) {
	r := NewHarvestResult(Query{Keywords: []string{"CEO"}})

	if r.RunID == "" {
		t.Error("Expected a run ID to be assigned")
	}
	if r.Status != RunStatusCompleted {
		t.Errorf("Expected initial status completed, got %s", r.Status)
	}

	r.Finish(RunStatusBlocked)
	if r.Status != RunStatusBlocked {
		t.Errorf("Expected blocked status, got %s", r.Status)
	}
	if r.Duration < 0 {
		t.Error("Expected non-negative duration")
	}
	if !r.Status.Incomplete() {
		t.Error("Expected blocked run to report incomplete")
	}
	if RunStatusCapped.Incomplete() {
		t.Error("Expected capped run to report complete")
	}
}
