package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortmatch/internal/cohort"
	"github.com/roach88/cohortmatch/internal/testutil"
)

// rowsByRole collects subject IDs from the output table, keyed by set ID,
// for the given role.
func rowsByRole(t *cohort.Table, role string) map[string][]string {
	out := make(map[string][]string)
	for _, rec := range t.Rows {
		if cohort.Render(rec.Get(ColRole)) != role {
			continue
		}
		setID := cohort.Render(rec.Get(ColSetID))
		out[setID] = append(out[setID], cohort.Render(rec.Get(ColSubjectID)))
	}
	return out
}

func densityConfig() Config {
	return Config{
		NControls:      2,
		MatchVars:      []string{"sex", "site"},
		Method:         MethodIncidenceDensity,
		IndexDateField: "idx_date",
		EventDateField: "evt_date",
		Seed:           7,
	}
}

func TestRun_IncidenceDensityExample(t *testing.T) {
	// One case; control 12 fails the sex constraint, control 11 had its
	// event before the index date, control 10 is the sole eligible
	// candidate.
	cases := testutil.Table(
		testutil.Row{"id": testutil.S("1"), "sex": testutil.S("M"), "site": testutil.S("A"), "idx_date": testutil.D("2020-01-10")},
	)
	pool := testutil.Table(
		testutil.Row{"id": testutil.S("10"), "sex": testutil.S("M"), "site": testutil.S("A"), "evt_date": testutil.NA()},
		testutil.Row{"id": testutil.S("11"), "sex": testutil.S("M"), "site": testutil.S("A"), "evt_date": testutil.D("2019-06-01")},
		testutil.Row{"id": testutil.S("12"), "sex": testutil.S("F"), "site": testutil.S("A"), "evt_date": testutil.NA()},
	)

	result, err := Run(context.Background(), cases, pool, densityConfig())
	require.NoError(t, err)

	controls := rowsByRole(result.Table, RoleControl)
	assert.Equal(t, []string{"10"}, controls["1"])

	require.Len(t, result.Shortfalls, 1)
	assert.Equal(t, Shortfall{CaseID: "1", Position: 1, Want: 2, Got: 1}, result.Shortfalls[0])
}

func TestRun_ExactRemovesAssignedControls(t *testing.T) {
	// Two cases both eligible for the same single control: the second
	// case processed must receive zero controls.
	cases := testutil.Table(
		testutil.Row{"id": testutil.S("1"), "sex": testutil.S("M"), "site": testutil.S("A")},
		testutil.Row{"id": testutil.S("2"), "sex": testutil.S("M"), "site": testutil.S("A")},
	)
	pool := testutil.Table(
		testutil.Row{"id": testutil.S("10"), "sex": testutil.S("M"), "site": testutil.S("A")},
	)

	cfg := Config{
		NControls: 1,
		MatchVars: []string{"sex", "site"},
		Method:    MethodExact,
		Seed:      1,
	}

	result, err := Run(context.Background(), cases, pool, cfg)
	require.NoError(t, err)

	controls := rowsByRole(result.Table, RoleControl)
	assert.Equal(t, []string{"10"}, controls["1"])
	assert.Empty(t, controls["2"], "control was removed after the first case's match")

	require.Len(t, result.Shortfalls, 1)
	assert.Equal(t, "2", result.Shortfalls[0].CaseID)
}

func TestRun_ExactNoReuseAcrossSets(t *testing.T) {
	cases := testutil.Table(
		testutil.Row{"id": testutil.S("1"), "sex": testutil.S("M")},
		testutil.Row{"id": testutil.S("2"), "sex": testutil.S("M")},
		testutil.Row{"id": testutil.S("3"), "sex": testutil.S("M")},
	)
	var rows []testutil.Row
	for _, id := range []string{"10", "11", "12", "13", "14", "15", "16", "17"} {
		rows = append(rows, testutil.Row{"id": testutil.S(id), "sex": testutil.S("M")})
	}
	pool := testutil.Table(rows...)

	cfg := Config{NControls: 2, MatchVars: []string{"sex"}, Method: MethodExact, Seed: 99}

	result, err := Run(context.Background(), cases, pool, cfg)
	require.NoError(t, err)
	assert.Empty(t, result.Shortfalls)

	seen := map[string]bool{}
	for _, ids := range rowsByRole(result.Table, RoleControl) {
		for _, id := range ids {
			assert.False(t, seen[id], "control %s assigned twice across sets", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, 6)
}

func TestRun_DensityAllowsReuseAcrossSetsNotWithin(t *testing.T) {
	// Pool of exactly NControls matching candidates: every case must
	// receive both, so reuse across sets is guaranteed.
	cases := testutil.Table(
		testutil.Row{"id": testutil.S("1"), "sex": testutil.S("F")},
		testutil.Row{"id": testutil.S("2"), "sex": testutil.S("F")},
	)
	pool := testutil.Table(
		testutil.Row{"id": testutil.S("10"), "sex": testutil.S("F")},
		testutil.Row{"id": testutil.S("11"), "sex": testutil.S("F")},
	)

	cfg := Config{NControls: 2, MatchVars: []string{"sex"}, Method: MethodIncidenceDensity, Seed: 3}

	result, err := Run(context.Background(), cases, pool, cfg)
	require.NoError(t, err)
	assert.Empty(t, result.Shortfalls)

	controls := rowsByRole(result.Table, RoleControl)
	for setID, ids := range controls {
		assert.ElementsMatch(t, []string{"10", "11"}, ids, "set %s", setID)

		dup := map[string]bool{}
		for _, id := range ids {
			assert.False(t, dup[id], "control %s duplicated within set %s", id, setID)
			dup[id] = true
		}
	}
	assert.Len(t, controls, 2)
}

func TestRun_MatchVariableAgreement(t *testing.T) {
	cases := testutil.Table(
		testutil.Row{"id": testutil.S("1"), "sex": testutil.S("M"), "site": testutil.S("A")},
		testutil.Row{"id": testutil.S("2"), "sex": testutil.S("F"), "site": testutil.S("B")},
	)
	pool := testutil.Table(
		testutil.Row{"id": testutil.S("10"), "sex": testutil.S("M"), "site": testutil.S("A")},
		testutil.Row{"id": testutil.S("11"), "sex": testutil.S("M"), "site": testutil.S("B")},
		testutil.Row{"id": testutil.S("12"), "sex": testutil.S("F"), "site": testutil.S("B")},
		testutil.Row{"id": testutil.S("13"), "sex": testutil.S("F"), "site": testutil.S("A")},
	)

	cfg := Config{NControls: 1, MatchVars: []string{"sex", "site"}, Method: MethodIncidenceDensity, Seed: 5}

	result, err := Run(context.Background(), cases, pool, cfg)
	require.NoError(t, err)

	// Every member of a set agrees with the set's case row on every
	// match variable.
	caseVals := map[string]map[string]cohort.Value{}
	for _, rec := range result.Table.Rows {
		if cohort.Render(rec.Get(ColRole)) == RoleCase {
			setID := cohort.Render(rec.Get(ColSetID))
			caseVals[setID] = map[string]cohort.Value{
				"sex":  rec.Get("sex"),
				"site": rec.Get("site"),
			}
		}
	}
	for _, rec := range result.Table.Rows {
		setID := cohort.Render(rec.Get(ColSetID))
		for _, v := range cfg.MatchVars {
			assert.True(t, cohort.Equal(caseVals[setID][v], rec.Get(v)),
				"set %s: %s disagrees", setID, v)
		}
	}
}

func TestRun_AtRiskStrictlyAfterIndexDate(t *testing.T) {
	cases := testutil.Table(
		testutil.Row{"id": testutil.S("1"), "sex": testutil.S("M"), "site": testutil.S("A"), "idx_date": testutil.D("2020-01-10")},
	)
	pool := testutil.Table(
		// Event on the index date: not at risk.
		testutil.Row{"id": testutil.S("10"), "sex": testutil.S("M"), "site": testutil.S("A"), "evt_date": testutil.D("2020-01-10")},
		// Event the day after: at risk.
		testutil.Row{"id": testutil.S("11"), "sex": testutil.S("M"), "site": testutil.S("A"), "evt_date": testutil.D("2020-01-11")},
	)

	result, err := Run(context.Background(), cases, pool, densityConfig())
	require.NoError(t, err)

	controls := rowsByRole(result.Table, RoleControl)
	assert.Equal(t, []string{"11"}, controls["1"])
}

func TestRun_NullIndexDateImposesNoConstraint(t *testing.T) {
	cases := testutil.Table(
		testutil.Row{"id": testutil.S("1"), "sex": testutil.S("M"), "site": testutil.S("A"), "idx_date": testutil.NA()},
	)
	pool := testutil.Table(
		testutil.Row{"id": testutil.S("10"), "sex": testutil.S("M"), "site": testutil.S("A"), "evt_date": testutil.D("2010-01-01")},
		testutil.Row{"id": testutil.S("11"), "sex": testutil.S("M"), "site": testutil.S("A"), "evt_date": testutil.NA()},
	)

	result, err := Run(context.Background(), cases, pool, densityConfig())
	require.NoError(t, err)

	controls := rowsByRole(result.Table, RoleControl)
	assert.ElementsMatch(t, []string{"10", "11"}, controls["1"])
}

func TestRun_ExtraCondition(t *testing.T) {
	cases := testutil.Table(
		testutil.Row{"id": testutil.S("1"), "sex": testutil.S("M"), "age": testutil.I(50)},
	)
	pool := testutil.Table(
		testutil.Row{"id": testutil.S("10"), "sex": testutil.S("M"), "age": testutil.I(48)},
		testutil.Row{"id": testutil.S("11"), "sex": testutil.S("M"), "age": testutil.I(71)},
		testutil.Row{"id": testutil.S("12"), "sex": testutil.S("M"), "age": testutil.I(53)},
	)

	cfg := Config{
		NControls:      3,
		MatchVars:      []string{"sex"},
		ExtraCondition: `control.age >= 45 AND control.age <= 55`,
		Method:         MethodIncidenceDensity,
		Seed:           1,
	}

	result, err := Run(context.Background(), cases, pool, cfg)
	require.NoError(t, err)

	controls := rowsByRole(result.Table, RoleControl)
	assert.ElementsMatch(t, []string{"10", "12"}, controls["1"])
}

func TestRun_ZeroEligibleStillEmitsCaseRow(t *testing.T) {
	cases := testutil.Table(
		testutil.Row{"id": testutil.S("1"), "sex": testutil.S("M")},
	)
	pool := testutil.Table(
		testutil.Row{"id": testutil.S("10"), "sex": testutil.S("F")},
	)

	cfg := Config{NControls: 2, MatchVars: []string{"sex"}, Method: MethodIncidenceDensity, Seed: 1}

	result, err := Run(context.Background(), cases, pool, cfg)
	require.NoError(t, err)

	require.Equal(t, 1, result.Table.Len(), "singleton group, not silently dropped")
	rec := result.Table.Rows[0]
	assert.Equal(t, "case", cohort.Render(rec.Get(ColRole)))
	assert.Equal(t, "1", cohort.Render(rec.Get(ColCaseID)))

	require.Len(t, result.Shortfalls, 1)
	assert.Equal(t, 0, result.Shortfalls[0].Got)
}

func TestRun_DeterministicAcrossWorkerCounts(t *testing.T) {
	var caseRows, poolRows []testutil.Row
	sexes := []string{"M", "F"}
	sites := []string{"A", "B", "C"}
	for i := 0; i < 20; i++ {
		caseRows = append(caseRows, testutil.Row{
			"id":   testutil.S(string(rune('a'+i)) + "-case"),
			"sex":  testutil.S(sexes[i%2]),
			"site": testutil.S(sites[i%3]),
		})
	}
	for i := 0; i < 200; i++ {
		poolRows = append(poolRows, testutil.Row{
			"id":   testutil.S(string(rune('a'+i%26)) + "-pool-" + string(rune('0'+i/26))),
			"sex":  testutil.S(sexes[i%2]),
			"site": testutil.S(sites[i%3]),
		})
	}
	cases := testutil.Table(caseRows...)
	pool := testutil.Table(poolRows...)

	base := Config{NControls: 4, MatchVars: []string{"sex", "site"}, Method: MethodIncidenceDensity, Seed: 42}

	var reference *cohort.Table
	for _, workers := range []int{1, 2, 8} {
		cfg := base
		cfg.Workers = workers

		result, err := Run(context.Background(), cases, pool, cfg)
		require.NoError(t, err)

		if reference == nil {
			reference = result.Table
			continue
		}
		assert.Equal(t, reference.Rows, result.Table.Rows,
			"output differs at %d workers", workers)
	}
}

func TestRun_OutputOrderFollowsCaseInputOrder(t *testing.T) {
	cases := testutil.Table(
		testutil.Row{"id": testutil.S("z"), "sex": testutil.S("M")},
		testutil.Row{"id": testutil.S("a"), "sex": testutil.S("F")},
		testutil.Row{"id": testutil.S("m"), "sex": testutil.S("M")},
	)
	pool := testutil.Table(
		testutil.Row{"id": testutil.S("10"), "sex": testutil.S("M")},
		testutil.Row{"id": testutil.S("11"), "sex": testutil.S("F")},
	)

	cfg := Config{NControls: 1, MatchVars: []string{"sex"}, Method: MethodIncidenceDensity, Workers: 4, Seed: 2}

	result, err := Run(context.Background(), cases, pool, cfg)
	require.NoError(t, err)

	var caseOrder []string
	for _, rec := range result.Table.Rows {
		if cohort.Render(rec.Get(ColRole)) == RoleCase {
			caseOrder = append(caseOrder, cohort.Render(rec.Get(ColCaseID)))
		}
	}
	assert.Equal(t, []string{"z", "a", "m"}, caseOrder,
		"results reassembled in input order even if computed out of order")
}

func TestRun_TrackerInvokedExactlyOncePerCase(t *testing.T) {
	cases := testutil.Table(
		testutil.Row{"id": testutil.S("1"), "sex": testutil.S("M")},
		testutil.Row{"id": testutil.S("2"), "sex": testutil.S("M")},
		testutil.Row{"id": testutil.S("3"), "sex": testutil.S("M")},
	)
	pool := testutil.Table(
		testutil.Row{"id": testutil.S("10"), "sex": testutil.S("M")},
	)

	rec := testutil.NewRecordingTracker()
	cfg := Config{
		NControls: 1,
		MatchVars: []string{"sex"},
		Method:    MethodIncidenceDensity,
		Workers:   4,
		Seed:      1,
		Track:     true,
		Tracker:   rec.Track,
	}

	_, err := Run(context.Background(), cases, pool, cfg)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"1": 1, "2": 1, "3": 1}, rec.Calls())
}

func TestRun_ExactDowngradesWorkerCount(t *testing.T) {
	// Workers > 1 with exact is a notice, not an error, and matching
	// still behaves serially: the one shared control goes to the first
	// case only.
	cases := testutil.Table(
		testutil.Row{"id": testutil.S("1"), "sex": testutil.S("M")},
		testutil.Row{"id": testutil.S("2"), "sex": testutil.S("M")},
	)
	pool := testutil.Table(
		testutil.Row{"id": testutil.S("10"), "sex": testutil.S("M")},
	)

	cfg := Config{NControls: 1, MatchVars: []string{"sex"}, Method: MethodExact, Workers: 8, Seed: 1}

	result, err := Run(context.Background(), cases, pool, cfg)
	require.NoError(t, err)

	controls := rowsByRole(result.Table, RoleControl)
	assert.Equal(t, []string{"10"}, controls["1"])
	assert.Empty(t, controls["2"])
}

func TestRun_ConfigErrors(t *testing.T) {
	cases := testutil.Table(testutil.Row{"id": testutil.S("1"), "sex": testutil.S("M")})
	pool := testutil.Table(testutil.Row{"id": testutil.S("10"), "sex": testutil.S("M")})

	testCases := []struct {
		name string
		cfg  Config
		code ConfigErrorCode
	}{
		{
			"non-positive n_controls",
			Config{NControls: 0, MatchVars: []string{"sex"}, Method: MethodExact},
			ErrCodeBadNControls,
		},
		{
			"unknown method",
			Config{NControls: 1, MatchVars: []string{"sex"}, Method: "nearest"},
			ErrCodeBadMethod,
		},
		{
			"empty match vars",
			Config{NControls: 1, Method: MethodExact},
			ErrCodeNoMatchVars,
		},
		{
			"match var missing from pool",
			Config{NControls: 1, MatchVars: []string{"region"}, Method: MethodExact},
			ErrCodeMissingColumn,
		},
		{
			"extra condition references missing column",
			Config{NControls: 1, MatchVars: []string{"sex"}, Method: MethodExact, ExtraCondition: `control.bmi < 30`},
			ErrCodeMissingColumn,
		},
		{
			"malformed extra condition",
			Config{NControls: 1, MatchVars: []string{"sex"}, Method: MethodExact, ExtraCondition: `control.bmi <`},
			ErrCodeBadExpression,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Run(context.Background(), cases, pool, tc.cfg)
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.code, cfgErr.Code)
		})
	}
}

func TestRun_InputTablesNotMutated(t *testing.T) {
	cases := testutil.Table(testutil.Row{"id": testutil.S("1"), "sex": testutil.S("M")})
	pool := testutil.Table(
		testutil.Row{"id": testutil.S("10"), "sex": testutil.S("M")},
		testutil.Row{"id": testutil.S("11"), "sex": testutil.S("M")},
	)

	cfg := Config{NControls: 1, MatchVars: []string{"sex"}, Method: MethodExact, Seed: 1}

	_, err := Run(context.Background(), cases, pool, cfg)
	require.NoError(t, err)

	// Pool mutation under exact is scoped to the run's Pool wrapper,
	// never the caller's table.
	assert.Equal(t, 2, pool.Len())
	assert.Equal(t, "10", pool.Rows[0].ID)
}
