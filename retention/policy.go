// Package retention prunes entity histories on a daily cadence, under a
// policy table keyed by entity level and whether the sweep runs inside
// the election reporting period.
package retention

import (
	"time"

	valgarkiv "github.com/eklundh/valgarkiv"
	"github.com/eklundh/valgarkiv/entity"
)

// Period classifies a point in time against the election calendar.
type Period string

const (
	// PeriodActive is the reporting season: generous retention at high
	// levels, tight windows at granular levels.
	PeriodActive Period = "active"
	// PeriodQuiet is the rest of the year: below the national level only
	// the latest snapshot is kept.
	PeriodQuiet Period = "quiet"
)

// Periods lists both period classifications.
var Periods = []Period{PeriodActive, PeriodQuiet}

// Classifier decides the period from a fixed month-of-year range,
// inclusive on both ends.
type Classifier struct {
	StartMonth time.Month `yaml:"startMonth"`
	EndMonth   time.Month `yaml:"endMonth"`
}

// DefaultClassifier covers the September–October election season.
func DefaultClassifier() Classifier {
	return Classifier{StartMonth: time.September, EndMonth: time.October}
}

// Classify returns the period for now.
func (c Classifier) Classify(now time.Time) Period {
	m := now.Month()
	if c.StartMonth <= c.EndMonth {
		if m >= c.StartMonth && m <= c.EndMonth {
			return PeriodActive
		}
		return PeriodQuiet
	}
	// Range wrapping the year boundary, e.g. November–February.
	if m >= c.StartMonth || m <= c.EndMonth {
		return PeriodActive
	}
	return PeriodQuiet
}

// RuleKind selects the retention behavior for one policy cell.
type RuleKind string

const (
	// KindKeepAll retains every snapshot.
	KindKeepAll RuleKind = "all"
	// KindLatestOnly retains only the snapshot the latest pointer
	// references.
	KindLatestOnly RuleKind = "latest"
	// KindWindow retains snapshots younger than the rule's window (and
	// always the latest, irrespective of age).
	KindWindow RuleKind = "window"
)

// Rule is one cell of the policy table.
type Rule struct {
	Kind   RuleKind
	Window time.Duration
}

func KeepAll() Rule               { return Rule{Kind: KindKeepAll} }
func LatestOnly() Rule            { return Rule{Kind: KindLatestOnly} }
func Window(d time.Duration) Rule { return Rule{Kind: KindWindow, Window: d} }

const day = 24 * time.Hour

// Policy maps (level, period) to a retention rule. Every cell must be
// present; Validate runs at startup and a gap is fatal.
type Policy map[entity.Level]map[Period]Rule

// DefaultPolicy is the production table:
//
//	level         active     quiet
//	nasjonalt     365 days   keep all
//	fylke         180 days   latest only
//	kommune        90 days   latest only
//	krets          30 days   latest only
func DefaultPolicy() Policy {
	return Policy{
		entity.LevelNation: {
			PeriodActive: Window(365 * day),
			PeriodQuiet:  KeepAll(),
		},
		entity.LevelCounty: {
			PeriodActive: Window(180 * day),
			PeriodQuiet:  LatestOnly(),
		},
		entity.LevelMunicipality: {
			PeriodActive: Window(90 * day),
			PeriodQuiet:  LatestOnly(),
		},
		entity.LevelDistrict: {
			PeriodActive: Window(30 * day),
			PeriodQuiet:  LatestOnly(),
		},
	}
}

// Validate checks that every (level, period) cell exists and is sound.
func (p Policy) Validate() error {
	for _, level := range entity.Levels {
		byPeriod, ok := p[level]
		if !ok {
			return valgarkiv.NewConfigError("retention policy", "no rules for level %s", level)
		}
		for _, period := range Periods {
			rule, ok := byPeriod[period]
			if !ok {
				return valgarkiv.NewConfigError("retention policy", "no rule for (%s, %s)", level, period)
			}
			if rule.Kind == KindWindow && rule.Window <= 0 {
				return valgarkiv.NewConfigError("retention policy", "(%s, %s): window must be positive", level, period)
			}
		}
	}
	return nil
}

// Rule returns the cell for a validated policy.
func (p Policy) Rule(level entity.Level, period Period) Rule {
	return p[level][period]
}
