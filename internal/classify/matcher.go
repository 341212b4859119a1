// Package classify assigns categories to transactions from an ordered rule set.
package classify

import (
	"cmp"
	"slices"
	"strings"

	"github.com/dvloznov/bankfeed/internal/domain"
)

// SortRules returns the active rules ordered by priority, highest first.
// Equal priorities keep their input order, so the store's natural order is
// the tiebreak. The input slice is not modified.
func SortRules(rules []domain.Rule) []domain.Rule {
	sorted := make([]domain.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			sorted = append(sorted, r)
		}
	}
	slices.SortStableFunc(sorted, func(a, b domain.Rule) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return sorted
}

// Match returns the first rule in rules that matches tx, or nil. rules must
// already be in priority order (see SortRules); no scoring beyond that order
// is applied.
func Match(tx *domain.Transaction, rules []domain.Rule) *domain.Rule {
	for i := range rules {
		if Matches(&rules[i], tx) {
			return &rules[i]
		}
	}
	return nil
}

// Matches reports whether rule's predicate holds for any non-empty field of
// tx within the rule's scope.
func Matches(rule *domain.Rule, tx *domain.Transaction) bool {
	if !rule.Active || rule.Pattern == "" || !rule.MatchType.Valid() {
		return false
	}

	pattern := strings.ToLower(rule.Pattern)
	for _, field := range fields(rule.Scope, tx) {
		if field == "" {
			continue
		}
		if predicate(rule.MatchType, strings.ToLower(field), pattern) {
			return true
		}
	}
	return false
}

func fields(scope domain.Scope, tx *domain.Transaction) []string {
	switch scope {
	case domain.ScopeDescription:
		return []string{tx.Description}
	case domain.ScopeAdditional:
		return []string{tx.Additional}
	case domain.ScopeBoth:
		return []string{tx.Description, tx.Additional}
	}
	return nil
}

func predicate(matchType domain.MatchType, text, pattern string) bool {
	switch matchType {
	case domain.MatchContains:
		return strings.Contains(text, pattern)
	case domain.MatchStartsWith:
		return strings.HasPrefix(text, pattern)
	case domain.MatchEndsWith:
		return strings.HasSuffix(text, pattern)
	case domain.MatchExact:
		return text == pattern
	}
	return false
}
