package contracts

import (
	"fmt"
	"time"
)

// Aggregate is how bucket extremes are scored
type Aggregate string

const (
	AggregateSum  Aggregate = "sum"
	AggregateMean Aggregate = "mean"
)

// Ruleset selects the cleaning variant
type Ruleset string

const (
	// RulesetStrict drops distance <= 0 and duration <= 0
	RulesetStrict Ruleset = "strict"
	// RulesetLegacy drops only distance = 0 and has no lower duration bound
	RulesetLegacy Ruleset = "legacy"
)

// Scope is a dataset scope profile: the year window plus every
// per-scope constant the stages depend on
// ⭐ SSOT: table names and scope-dependent semantics are defined here
type Scope struct {
	Name      string    `json:"name"`
	StartYear int       `json:"start_year"`
	EndYear   int       `json:"end_year"` // inclusive
	Suffix    string    `json:"suffix"`   // raw table suffix: "2024" or "all"
	Aggregate Aggregate `json:"aggregate"`
	HourBase  int       `json:"hour_base"` // 0 → hours 0–23, 1 → hours 1–24
	Ruleset   Ruleset   `json:"ruleset"`
}

var builtinScopes = map[string]Scope{
	"2024": {
		Name:      "2024",
		StartYear: 2024,
		EndYear:   2024,
		Suffix:    "2024",
		Aggregate: AggregateSum,
		HourBase:  0,
		Ruleset:   RulesetStrict,
	},
	"decade": {
		Name:      "decade",
		StartYear: 2015,
		EndYear:   2024,
		Suffix:    "all",
		Aggregate: AggregateMean,
		HourBase:  1,
		Ruleset:   RulesetStrict,
	},
}

// ResolveScope returns the named profile, optionally overriding its rule set
func ResolveScope(name, ruleset string) (Scope, error) {
	scope, ok := builtinScopes[name]
	if !ok {
		return Scope{}, fmt.Errorf("unknown scope %q", name)
	}

	switch Ruleset(ruleset) {
	case "":
	case RulesetStrict, RulesetLegacy:
		scope.Ruleset = Ruleset(ruleset)
	default:
		return Scope{}, fmt.Errorf("unknown cleaning ruleset %q", ruleset)
	}

	return scope, nil
}

// WindowStart is the first instant inside the scope window
func (s Scope) WindowStart() time.Time {
	return time.Date(s.StartYear, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// WindowEnd is the first instant after the scope window (exclusive bound)
func (s Scope) WindowEnd() time.Time {
	return time.Date(s.EndYear+1, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// Contains reports whether t falls in [WindowStart, WindowEnd)
func (s Scope) Contains(t time.Time) bool {
	return !t.Before(s.WindowStart()) && t.Before(s.WindowEnd())
}

// Months lists the first day of every calendar month in the scope
func (s Scope) Months() []time.Time {
	var months []time.Time
	for m := s.WindowStart(); m.Before(s.WindowEnd()); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

// RawTable is the accumulating raw/cleaned table for a cab type
func (s Scope) RawTable(cab CabType) string {
	return fmt.Sprintf("%s_trips_%s", cab, s.Suffix)
}

// TransformedTable is the derived table for a cab type
func (s Scope) TransformedTable(cab CabType) string {
	return TransformedName(s.RawTable(cab))
}

// TransformedName appends the derived-table suffix to a table name
func TransformedName(table string) string {
	return table + "_transformed"
}

// Label is a human-readable year range, e.g. "2024" or "2015–2024"
func (s Scope) Label() string {
	if s.StartYear == s.EndYear {
		return fmt.Sprintf("%d", s.StartYear)
	}
	return fmt.Sprintf("%d–%d", s.StartYear, s.EndYear)
}
