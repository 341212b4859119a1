package domain

import "time"

// MatchType is the string predicate a rule applies.
type MatchType string

const (
	MatchContains   MatchType = "contains"
	MatchStartsWith MatchType = "starts_with"
	MatchEndsWith   MatchType = "ends_with"
	MatchExact      MatchType = "exact"
)

// Scope selects which transaction text fields a rule inspects.
type Scope string

const (
	ScopeDescription Scope = "description"
	ScopeAdditional  Scope = "additional"
	ScopeBoth        Scope = "both"
)

// Valid reports whether m is one of the supported predicates.
func (m MatchType) Valid() bool {
	switch m {
	case MatchContains, MatchStartsWith, MatchEndsWith, MatchExact:
		return true
	}
	return false
}

// Valid reports whether s is one of the supported scopes.
func (s Scope) Valid() bool {
	switch s {
	case ScopeDescription, ScopeAdditional, ScopeBoth:
		return true
	}
	return false
}

// Rule maps a text predicate to a category. Higher Priority wins.
type Rule struct {
	ID          string    `json:"id"`
	Pattern     string    `json:"pattern"`
	MatchType   MatchType `json:"match_type"`
	Scope       Scope     `json:"search_in"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory,omitempty"`
	Priority    int       `json:"priority"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
