package match

import (
	"fmt"

	"github.com/roach88/cohortmatch/internal/cohort"
	"github.com/roach88/cohortmatch/internal/filter"
)

// predicate is one case's eligibility test over pool candidates.
//
// A candidate is eligible iff:
//  1. every match variable equals the case's value exactly,
//  2. the extra condition, if any, holds for the (case, candidate) pair,
//  3. under incidence_density with a non-null case index date, the
//     candidate was still at risk at that date: its own recorded event
//     date is either null or strictly later.
type predicate struct {
	caseRec   cohort.Record
	matchVars []string
	extra     filter.Expr // nil = no extra condition

	// indexDate is non-nil only when the temporal constraint applies.
	indexDate  *cohort.Date
	eventField string
}

// buildPredicate constructs the eligibility predicate for one case.
func buildPredicate(caseRec cohort.Record, cfg *Config, extra filter.Expr, eventField string) (*predicate, error) {
	p := &predicate{
		caseRec:   caseRec,
		matchVars: cfg.MatchVars,
		extra:     extra,
	}

	if cfg.Method == MethodIncidenceDensity && cfg.IndexDateField != "" && eventField != "" {
		raw := caseRec.Get(cfg.IndexDateField)
		if !cohort.IsNull(raw) {
			idx, err := cohort.AsDate(raw)
			if err != nil {
				return nil, fmt.Errorf("index date for case %s: %w", caseRec.ID, err)
			}
			p.indexDate = &idx
			p.eventField = eventField
		}
	}

	return p, nil
}

// eligible tests one candidate.
func (p *predicate) eligible(candidate cohort.Record) (bool, error) {
	for _, v := range p.matchVars {
		if !cohort.Equal(p.caseRec.Get(v), candidate.Get(v)) {
			return false, nil
		}
	}

	if p.extra != nil {
		ok, err := filter.Eval(p.extra, p.caseRec, candidate)
		if err != nil {
			return false, fmt.Errorf("extra condition: %w", err)
		}
		if !ok {
			return false, nil
		}
	}

	if p.indexDate != nil {
		atRisk, err := p.atRisk(candidate)
		if err != nil {
			return false, err
		}
		if !atRisk {
			return false, nil
		}
	}

	return true, nil
}

// atRisk reports whether the candidate was still at risk at the case's
// index date. A candidate with no recorded event date is at risk; one
// whose event occurred on or before the index date is not.
func (p *predicate) atRisk(candidate cohort.Record) (bool, error) {
	raw := candidate.Get(p.eventField)
	if cohort.IsNull(raw) {
		return true, nil
	}

	evt, err := cohort.AsDate(raw)
	if err != nil {
		return false, fmt.Errorf("event date for control %s: %w", candidate.ID, err)
	}

	return evt.After(*p.indexDate), nil
}
