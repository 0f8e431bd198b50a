package query

import (
	"strings"

	"github.com/sqlassist/sqlassist-go/internal/database"
)

// Strategy names shipped by DefaultStrategies.
const (
	StrategyQuoteStyle     = "quote-style"
	StrategySpaceColumn    = "space-column"
	StrategyFuzzySubstring = "fuzzy-substring"
)

// Strategy rewrites a failed query into candidate queries. Rewrite must be
// pure: it only inspects the query text and the relation.
type Strategy struct {
	Name    string
	Rewrite func(query string, rel *database.Relation) []string
}

// FuzzyRule maps a quoted placeholder that models and users tend to write
// onto any column whose name contains all of Substrings (case-insensitive).
type FuzzyRule struct {
	Placeholder string   `mapstructure:"placeholder" yaml:"placeholder" json:"placeholder"`
	Substrings  []string `mapstructure:"substrings" yaml:"substrings" json:"substrings"`
}

// DefaultFuzzyRules returns the built-in placeholder rules.
func DefaultFuzzyRules() []FuzzyRule {
	return []FuzzyRule{
		{Placeholder: "raw predicted", Substrings: []string{"raw", "predict"}},
	}
}

// DefaultStrategies returns the strategies in the order they are tried.
func DefaultStrategies(rules []FuzzyRule) []Strategy {
	return []Strategy{
		QuoteStyle(),
		SpaceColumn(),
		FuzzySubstring(rules),
	}
}

// QuoteStyle swaps every double quote for a backtick.
func QuoteStyle() Strategy {
	return Strategy{
		Name: StrategyQuoteStyle,
		Rewrite: func(query string, _ *database.Relation) []string {
			return []string{strings.ReplaceAll(query, `"`, "`")}
		},
	}
}

// SpaceColumn replaces "<raw header>" with the sanitized column name for
// every raw header that contains a space. It yields one candidate per
// matching column in relation order and, when several match, one candidate
// with all substitutions applied.
func SpaceColumn() Strategy {
	return Strategy{
		Name: StrategySpaceColumn,
		Rewrite: func(query string, rel *database.Relation) []string {
			var out []string
			combined := query
			for _, col := range rel.Columns {
				if !strings.Contains(col.Raw, " ") {
					continue
				}
				quoted := `"` + col.Raw + `"`
				if !strings.Contains(query, quoted) {
					continue
				}
				out = append(out, strings.ReplaceAll(query, quoted, col.Name))
				combined = strings.ReplaceAll(combined, quoted, col.Name)
			}
			if len(out) > 1 {
				out = append(out, combined)
			}
			return out
		},
	}
}

// FuzzySubstring replaces each rule's quoted placeholder with the quoted
// name of every column matching the rule, one candidate per column.
func FuzzySubstring(rules []FuzzyRule) Strategy {
	return Strategy{
		Name: StrategyFuzzySubstring,
		Rewrite: func(query string, rel *database.Relation) []string {
			var out []string
			for _, rule := range rules {
				placeholder := `"` + rule.Placeholder + `"`
				if !strings.Contains(query, placeholder) {
					continue
				}
				for _, col := range rel.Columns {
					if matchesAll(col.Name, rule.Substrings) {
						out = append(out, strings.ReplaceAll(query, placeholder, `"`+col.Name+`"`))
					}
				}
			}
			return out
		},
	}
}

func matchesAll(name string, substrings []string) bool {
	if len(substrings) == 0 {
		return false
	}
	lower := strings.ToLower(name)
	for _, s := range substrings {
		if !strings.Contains(lower, strings.ToLower(s)) {
			return false
		}
	}
	return true
}
