// Package simulate generates synthetic cohort data for study design
// dry-runs and testing. Generation is fully deterministic given the
// spec's seed; the matching engine never depends on this package.
package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cohortmatch/internal/cohort"
	"github.com/roach88/cohortmatch/internal/store"
)

// Spec describes a synthetic cohort.
//
// Example YAML:
//
//	seed: 42
//	cases:
//	  table: cases
//	  count: 100
//	controls:
//	  table: controls
//	  count: 1000
//	categorical:
//	  - name: sex
//	    levels:
//	      - {value: M, weight: 1}
//	      - {value: F, weight: 1}
//	numeric:
//	  - name: age
//	    min: 30
//	    max: 80
//	index_date:
//	  column: idx_date
//	  start: 2018-01-01
//	  end: 2021-12-31
//	event_date:
//	  column: evt_date
//	  rate: 0.3
//	  start: 2015-01-01
//	  end: 2021-12-31
type Spec struct {
	Seed        int64            `yaml:"seed"`
	Cases       TableSpec        `yaml:"cases"`
	Controls    TableSpec        `yaml:"controls"`
	Categorical []CategoricalVar `yaml:"categorical,omitempty"`
	Numeric     []NumericVar     `yaml:"numeric,omitempty"`

	// IndexDate, when set, gives every case a diagnosis date drawn
	// uniformly from the window.
	IndexDate *DateSpec `yaml:"index_date,omitempty"`

	// EventDate, when set, gives each control an event date from the
	// window with probability Rate; the rest stay event-free (null).
	EventDate *EventSpec `yaml:"event_date,omitempty"`
}

// TableSpec names an output table and its row count.
type TableSpec struct {
	Table string `yaml:"table"`
	Count int    `yaml:"count"`
}

// CategoricalVar is a weighted categorical variable.
type CategoricalVar struct {
	Name   string  `yaml:"name"`
	Levels []Level `yaml:"levels"`
}

// Level is one categorical level with a sampling weight.
type Level struct {
	Value  string  `yaml:"value"`
	Weight float64 `yaml:"weight"`
}

// NumericVar is a uniform integer variable over [Min, Max].
type NumericVar struct {
	Name string `yaml:"name"`
	Min  int64  `yaml:"min"`
	Max  int64  `yaml:"max"`
}

// DateSpec is a uniform date window.
type DateSpec struct {
	Column string `yaml:"column"`
	Start  string `yaml:"start"`
	End    string `yaml:"end"`
}

// EventSpec is a date window applied with a given probability.
type EventSpec struct {
	Column string  `yaml:"column"`
	Rate   float64 `yaml:"rate"`
	Start  string  `yaml:"start"`
	End    string  `yaml:"end"`
}

// LoadSpec reads a Spec from a YAML file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec: %w", err)
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse spec %s: %w", path, err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("spec %s: %w", path, err)
	}
	return &spec, nil
}

func (s *Spec) validate() error {
	if s.Cases.Table == "" || s.Controls.Table == "" {
		return fmt.Errorf("cases.table and controls.table are required")
	}
	if s.Cases.Count <= 0 || s.Controls.Count <= 0 {
		return fmt.Errorf("cases.count and controls.count must be positive")
	}
	for _, v := range s.Categorical {
		if len(v.Levels) == 0 {
			return fmt.Errorf("categorical %q has no levels", v.Name)
		}
		total := 0.0
		for _, l := range v.Levels {
			if l.Weight < 0 {
				return fmt.Errorf("categorical %q: negative weight", v.Name)
			}
			total += l.Weight
		}
		if total == 0 {
			return fmt.Errorf("categorical %q: all weights zero", v.Name)
		}
	}
	for _, v := range s.Numeric {
		if v.Max < v.Min {
			return fmt.Errorf("numeric %q: max < min", v.Name)
		}
	}
	if s.EventDate != nil && (s.EventDate.Rate < 0 || s.EventDate.Rate > 1) {
		return fmt.Errorf("event_date.rate must be in [0, 1]")
	}
	return nil
}

// Generate builds the cases and controls tables.
func (s *Spec) Generate() (cases, controls *cohort.Table, err error) {
	if err := s.validate(); err != nil {
		return nil, nil, err
	}

	rng := rand.New(rand.NewPCG(uint64(s.Seed), 0))

	cases, err = s.generateTable(rng, "case", s.Cases.Count, s.IndexDate, 1.0)
	if err != nil {
		return nil, nil, err
	}

	var evt *DateSpec
	rate := 0.0
	if s.EventDate != nil {
		evt = &DateSpec{Column: s.EventDate.Column, Start: s.EventDate.Start, End: s.EventDate.End}
		rate = s.EventDate.Rate
	}
	controls, err = s.generateTable(rng, "ctl", s.Controls.Count, evt, rate)
	if err != nil {
		return nil, nil, err
	}

	return cases, controls, nil
}

// Seed generates the cohort and writes both tables to the store.
func Seed(ctx context.Context, st *store.Store, spec *Spec) error {
	cases, controls, err := spec.Generate()
	if err != nil {
		return err
	}
	if err := st.WriteTable(ctx, spec.Cases.Table, cases); err != nil {
		return fmt.Errorf("write %s: %w", spec.Cases.Table, err)
	}
	if err := st.WriteTable(ctx, spec.Controls.Table, controls); err != nil {
		return fmt.Errorf("write %s: %w", spec.Controls.Table, err)
	}
	return nil
}

func (s *Spec) generateTable(rng *rand.Rand, prefix string, count int, date *DateSpec, dateRate float64) (*cohort.Table, error) {
	columns := []string{"id"}
	for _, v := range s.Categorical {
		columns = append(columns, v.Name)
	}
	for _, v := range s.Numeric {
		columns = append(columns, v.Name)
	}
	if date != nil {
		columns = append(columns, date.Column)
	}

	var window []cohort.Date
	if date != nil {
		start, err := cohort.ParseDate(date.Start)
		if err != nil {
			return nil, fmt.Errorf("%s window start: %w", date.Column, err)
		}
		end, err := cohort.ParseDate(date.End)
		if err != nil {
			return nil, fmt.Errorf("%s window end: %w", date.Column, err)
		}
		window, err = dateRange(start, end)
		if err != nil {
			return nil, fmt.Errorf("%s window: %w", date.Column, err)
		}
	}

	t := cohort.NewTable(columns...)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("%s-%06d", prefix, i+1)
		fields := map[string]cohort.Value{"id": cohort.NewString(id)}

		for _, v := range s.Categorical {
			fields[v.Name] = cohort.NewString(pickLevel(rng, v.Levels))
		}
		for _, v := range s.Numeric {
			fields[v.Name] = cohort.Int(v.Min + rng.Int64N(v.Max-v.Min+1))
		}
		if date != nil {
			if rng.Float64() < dateRate {
				fields[date.Column] = window[rng.IntN(len(window))]
			} else {
				fields[date.Column] = cohort.Null{}
			}
		}

		t.Append(cohort.Record{ID: id, Fields: fields})
	}
	return t, nil
}

// pickLevel draws a level proportionally to its weight.
func pickLevel(rng *rand.Rand, levels []Level) string {
	total := 0.0
	for _, l := range levels {
		total += l.Weight
	}
	r := rng.Float64() * total
	for _, l := range levels {
		r -= l.Weight
		if r < 0 {
			return l.Value
		}
	}
	return levels[len(levels)-1].Value
}

// dateRange expands an inclusive window into its member dates.
func dateRange(start, end cohort.Date) ([]cohort.Date, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("end %s before start %s", end, start)
	}

	var out []cohort.Date
	cur := start
	for !cur.After(end) {
		out = append(out, cur)
		cur = nextDay(cur)
		if len(out) > 100_000 {
			return nil, fmt.Errorf("window too large")
		}
	}
	return out, nil
}

func nextDay(d cohort.Date) cohort.Date {
	t := d.Time().AddDate(0, 0, 1)
	return cohort.NewDate(t.Year(), t.Month(), t.Day())
}
