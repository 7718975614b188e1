package simulate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortmatch/internal/cohort"
)

func baseSpec() *Spec {
	return &Spec{
		Seed:     42,
		Cases:    TableSpec{Table: "cases", Count: 50},
		Controls: TableSpec{Table: "controls", Count: 500},
		Categorical: []CategoricalVar{
			{Name: "sex", Levels: []Level{{Value: "M", Weight: 1}, {Value: "F", Weight: 1}}},
			{Name: "site", Levels: []Level{{Value: "A", Weight: 2}, {Value: "B", Weight: 1}}},
		},
		Numeric: []NumericVar{{Name: "age", Min: 30, Max: 80}},
		IndexDate: &DateSpec{
			Column: "idx_date", Start: "2018-01-01", End: "2021-12-31",
		},
		EventDate: &EventSpec{
			Column: "evt_date", Rate: 0.3, Start: "2015-01-01", End: "2021-12-31",
		},
	}
}

func TestGenerate_Shape(t *testing.T) {
	cases, controls, err := baseSpec().Generate()
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "sex", "site", "age", "idx_date"}, cases.Columns)
	assert.Equal(t, []string{"id", "sex", "site", "age", "evt_date"}, controls.Columns)
	assert.Equal(t, 50, cases.Len())
	assert.Equal(t, 500, controls.Len())

	for _, rec := range cases.Rows {
		sex := cohort.Render(rec.Get("sex"))
		assert.Contains(t, []string{"M", "F"}, sex)

		age, ok := rec.Get("age").(cohort.Int)
		require.True(t, ok)
		assert.GreaterOrEqual(t, int64(age), int64(30))
		assert.LessOrEqual(t, int64(age), int64(80))

		// Every case gets an index date.
		_, ok = rec.Get("idx_date").(cohort.Date)
		assert.True(t, ok, "case %s missing index date", rec.ID)
	}
}

func TestGenerate_EventRate(t *testing.T) {
	_, controls, err := baseSpec().Generate()
	require.NoError(t, err)

	withEvent := 0
	for _, rec := range controls.Rows {
		if !cohort.IsNull(rec.Get("evt_date")) {
			withEvent++
		}
	}

	frac := float64(withEvent) / float64(controls.Len())
	assert.InDelta(t, 0.3, frac, 0.1, "event rate drifted: %f", frac)
}

func TestGenerate_Deterministic(t *testing.T) {
	c1, p1, err := baseSpec().Generate()
	require.NoError(t, err)
	c2, p2, err := baseSpec().Generate()
	require.NoError(t, err)

	assert.Equal(t, c1.Rows, c2.Rows)
	assert.Equal(t, p1.Rows, p2.Rows)

	other := baseSpec()
	other.Seed = 43
	c3, _, err := other.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, c1.Rows, c3.Rows)
}

func TestLoadSpec(t *testing.T) {
	src := `
seed: 7
cases:
  table: cases
  count: 10
controls:
  table: controls
  count: 100
categorical:
  - name: sex
    levels:
      - {value: M, weight: 1}
      - {value: F, weight: 1}
numeric:
  - name: age
    min: 40
    max: 70
event_date:
  column: evt_date
  rate: 0.2
  start: "2015-01-01"
  end: "2020-12-31"
`
	path := filepath.Join(t.TempDir(), "cohort.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	spec, err := LoadSpec(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), spec.Seed)
	assert.Equal(t, 10, spec.Cases.Count)
	require.NotNil(t, spec.EventDate)
	assert.Equal(t, 0.2, spec.EventDate.Rate)
}

func TestLoadSpec_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{"missing tables", "seed: 1\n"},
		{"zero counts", "cases: {table: a, count: 0}\ncontrols: {table: b, count: 5}\n"},
		{"bad rate", "cases: {table: a, count: 1}\ncontrols: {table: b, count: 1}\nevent_date: {column: e, rate: 1.5, start: \"2020-01-01\", end: \"2020-12-31\"}\n"},
		{"empty levels", "cases: {table: a, count: 1}\ncontrols: {table: b, count: 1}\ncategorical: [{name: sex, levels: []}]\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cohort.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.src), 0o644))

			_, err := LoadSpec(path)
			require.Error(t, err)
		})
	}
}
