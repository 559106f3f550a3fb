package parser

import (
	"strings"

	"github.com/searchplatform/retrieval-engine/internal/indexer/tokenizer"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

// QueryPlan is the parsed shape of a search request: the boolean
// structure (AND/OR conjunction, NOT exclusions) plus an optional
// weighting-scheme override, so a client can pin a query to a specific
// registered scheme (e.g. "scheme:pl2b" for an A/B test) without the
// executor needing its own parsing pass.
type QueryPlan struct {
	Terms        []string
	Type         QueryType
	ExcludeTerms []string
	RawQuery     string

	// SchemeName, when non-empty, names a weight.Scheme registered
	// under internal/retrieval/registry.Registry.Schemes to use
	// instead of the executor's configured default.
	SchemeName string
	// SchemeParams is the scheme's Unserialise payload, applied after
	// looking the scheme up by SchemeName.
	SchemeParams string
}

// schemePrefix marks a leading query token as a scheme selector, e.g.
// "scheme:pl2b climate change" runs the rest of the query under the
// registered "pl2b" scheme.
const schemePrefix = "scheme:"

func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	words := strings.Fields(query)
	if len(words) > 0 && strings.HasPrefix(strings.ToLower(words[0]), schemePrefix) {
		selector := words[0][len(schemePrefix):]
		if name, params, ok := strings.Cut(selector, "="); ok {
			plan.SchemeName, plan.SchemeParams = name, params
		} else {
			plan.SchemeName = selector
		}
		words = words[1:]
	}
	excludeNext := false
	for i := 0; i < len(words); i++ {
		upper := strings.ToUpper(words[i])
		switch upper {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		tokens := tokenizer.Tokenize(words[i])
		if len(tokens) == 0 {
			continue
		}
		term := tokens[0].Term
		if excludeNext {
			plan.ExcludeTerms = append(plan.ExcludeTerms, term)
			excludeNext = false
		} else {
			plan.Terms = append(plan.Terms, term)
		}
	}
	return plan
}
