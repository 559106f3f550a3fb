package parser

import "testing"

func TestParseBlankQuery(t *testing.T) {
	plan := Parse("   ")
	if len(plan.Terms) != 0 || len(plan.ExcludeTerms) != 0 || plan.SchemeName != "" {
		t.Fatalf("expected an empty plan for blank input, got %+v", plan)
	}
}

func TestParseANDIsDefault(t *testing.T) {
	plan := Parse("search platform")
	if plan.Type != QueryAND {
		t.Fatalf("expected default query type AND, got %v", plan.Type)
	}
	if len(plan.Terms) != 2 || plan.Terms[0] != "search" || plan.Terms[1] != "platform" {
		t.Fatalf("unexpected terms: %+v", plan.Terms)
	}
}

func TestParseORSwitchesType(t *testing.T) {
	plan := Parse("platform OR engine")
	if plan.Type != QueryOR {
		t.Fatalf("expected QueryOR, got %v", plan.Type)
	}
	if len(plan.Terms) != 2 {
		t.Fatalf("expected 2 terms, got %+v", plan.Terms)
	}
}

func TestParseNOTCollectsExcludeTerms(t *testing.T) {
	plan := Parse("search NOT monolithic")
	if len(plan.Terms) != 1 || plan.Terms[0] != "search" {
		t.Fatalf("unexpected terms: %+v", plan.Terms)
	}
	if len(plan.ExcludeTerms) != 1 || plan.ExcludeTerms[0] != "monolithic" {
		t.Fatalf("unexpected exclude terms: %+v", plan.ExcludeTerms)
	}
}

func TestParseSchemeSelectorWithoutParams(t *testing.T) {
	plan := Parse("scheme:pl2b climate change")
	if plan.SchemeName != "pl2b" {
		t.Fatalf("expected scheme name pl2b, got %q", plan.SchemeName)
	}
	if plan.SchemeParams != "" {
		t.Fatalf("expected no scheme params, got %q", plan.SchemeParams)
	}
	if len(plan.Terms) != 2 || plan.Terms[0] != "climate" || plan.Terms[1] != "change" {
		t.Fatalf("expected scheme token stripped from terms, got %+v", plan.Terms)
	}
}

func TestParseSchemeSelectorWithParams(t *testing.T) {
	plan := Parse("scheme:dirichlet=mu:2000 climate change")
	if plan.SchemeName != "dirichlet" {
		t.Fatalf("expected scheme name dirichlet, got %q", plan.SchemeName)
	}
	if plan.SchemeParams != "mu:2000" {
		t.Fatalf("expected scheme params mu:2000, got %q", plan.SchemeParams)
	}
	if len(plan.Terms) != 2 {
		t.Fatalf("expected 2 remaining terms, got %+v", plan.Terms)
	}
}

func TestParseSchemeSelectorIsCaseInsensitive(t *testing.T) {
	plan := Parse("SCHEME:bm25 search")
	if plan.SchemeName != "bm25" {
		t.Fatalf("expected scheme name bm25, got %q", plan.SchemeName)
	}
}

func TestParseSchemeSelectorOnlyRecognisedAsLeadingToken(t *testing.T) {
	plan := Parse("search scheme:bm25")
	if plan.SchemeName != "" {
		t.Fatalf("expected scheme selector to be ignored when not leading, got %q", plan.SchemeName)
	}
	if len(plan.Terms) != 2 {
		t.Fatalf("expected scheme:bm25 to be tokenised as a plain term, got %+v", plan.Terms)
	}
}

func TestParseRawQueryPreserved(t *testing.T) {
	plan := Parse("search AND platform")
	if plan.RawQuery != "search AND platform" {
		t.Fatalf("expected RawQuery preserved verbatim, got %q", plan.RawQuery)
	}
}
