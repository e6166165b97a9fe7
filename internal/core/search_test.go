package core

import "testing"

func TestHasBooleanOperators(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"plain text", false},
		{"alpha AND beta", true},
		{"alpha OR beta", true},
		{"NOT closed", true},
		{"(alpha beta)", true},
		{"and lowercase stays a term", false},
		{"", false},
		{`"quoted AND phrase"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := HasBooleanOperators(tt.query); got != tt.want {
				t.Errorf("HasBooleanOperators(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestParseSearchExpr_Matching(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		haystack string
		want     bool
	}{
		{"and both present", "alpha AND beta", "alpha beta gamma", true},
		{"and one missing", "alpha AND beta", "alpha gamma", false},
		{"or either", "alpha OR beta", "only beta here", true},
		{"or neither", "alpha OR beta", "gamma delta", false},
		{"not excludes", "alpha NOT beta", "alpha gamma", true},
		{"not present fails", "alpha NOT beta", "alpha beta", false},
		{"implicit and", "alpha beta", "beta then alpha", true},
		{"parens grouping", "(alpha OR beta) AND gamma", "beta gamma", true},
		{"parens grouping fails", "(alpha OR beta) AND gamma", "beta delta", false},
		{"case insensitive terms", "ALPHA", "has alpha inside", true},
		{"quoted phrase", `"alpha beta" OR gamma`, "x alpha beta y", true},
		{"quoted phrase no match", `"alpha beta"`, "alpha x beta", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := ParseSearchExpr(tt.query)
			if err != nil {
				t.Fatalf("ParseSearchExpr(%q) failed: %v", tt.query, err)
			}
			if got := expr.Matches(tt.haystack); got != tt.want {
				t.Errorf("Matches(%q) against %q = %v, want %v", tt.query, tt.haystack, got, tt.want)
			}
		})
	}
}

func TestParseSearchExpr_Errors(t *testing.T) {
	for _, query := range []string{"", "AND alpha", "alpha AND", "(alpha", "alpha OR"} {
		t.Run(query, func(t *testing.T) {
			if _, err := ParseSearchExpr(query); err == nil {
				t.Errorf("expected parse error for %q", query)
			}
		})
	}
}

func TestSynthesizeSearchable(t *testing.T) {
	row := RowRecord{
		"name":   "Widget",
		"qty":    float64(3),
		"empty":  nil,
		"nested": map[string]any{"en": "hello"},
	}

	haystack := SynthesizeSearchable(row)

	for _, want := range []string{"Widget", "3", "hello"} {
		if !containsSub(haystack, want) {
			t.Errorf("expected haystack to contain %q, got %q", want, haystack)
		}
	}
	if containsSub(haystack, "empty") {
		// Field names are not part of the haystack, only values.
		t.Errorf("expected nil field to be skipped, got %q", haystack)
	}
}

func TestSearchExpr_MatchesRow(t *testing.T) {
	expr, err := ParseSearchExpr("widget AND NOT archived")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if !expr.MatchesRow(RowRecord{"name": "Widget", "status": "active"}) {
		t.Error("expected active widget row to match")
	}
	if expr.MatchesRow(RowRecord{"name": "Widget", "status": "archived"}) {
		t.Error("expected archived widget row to be excluded")
	}
}

func containsSub(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
