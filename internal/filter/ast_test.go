package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortmatch/internal/cohort"
)

func makePair() (cohort.Record, cohort.Record) {
	caseRec := cohort.Record{ID: "c1", Fields: map[string]cohort.Value{
		"sex":    cohort.NewString("M"),
		"age":    cohort.Int(52),
		"site":   cohort.NewString("A"),
		"smoker": cohort.Bool(true),
	}}
	controlRec := cohort.Record{ID: "p1", Fields: map[string]cohort.Value{
		"sex":    cohort.NewString("M"),
		"age":    cohort.Int(49),
		"site":   cohort.NewString("B"),
		"smoker": cohort.Bool(false),
	}}
	return caseRec, controlRec
}

func mustEval(t *testing.T, src string) bool {
	t.Helper()
	expr, err := Parse(src)
	require.NoError(t, err)
	caseRec, controlRec := makePair()
	got, err := Eval(expr, caseRec, controlRec)
	require.NoError(t, err)
	return got
}

func TestEval_Comparisons(t *testing.T) {
	testCases := []struct {
		src  string
		want bool
	}{
		{`control.sex == case.sex`, true},
		{`control.site == case.site`, false},
		{`control.site != case.site`, true},
		{`control.age < case.age`, true},
		{`control.age <= 49`, true},
		{`control.age > 49`, false},
		{`control.age >= 49`, true},
		{`case.age > control.age`, true},
		{`control.smoker == false`, true},
	}

	for _, tc := range testCases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, mustEval(t, tc.src))
		})
	}
}

func TestEval_Connectives(t *testing.T) {
	testCases := []struct {
		src  string
		want bool
	}{
		{`control.sex == case.sex AND control.age < case.age`, true},
		{`control.sex == case.sex AND control.site == case.site`, false},
		{`control.site == case.site OR control.age < case.age`, true},
		{`NOT control.smoker == true`, true},
		{`NOT (control.sex == case.sex)`, false},
	}

	for _, tc := range testCases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, mustEval(t, tc.src))
		})
	}
}

func TestEval_NullSemantics(t *testing.T) {
	caseRec := cohort.Record{ID: "c1", Fields: map[string]cohort.Value{}}
	controlRec := cohort.Record{ID: "p1", Fields: map[string]cohort.Value{
		"evt_date": cohort.Null{},
	}}

	// Equality with null is well-defined.
	expr, err := Parse(`control.evt_date == null`)
	require.NoError(t, err)
	got, err := Eval(expr, caseRec, controlRec)
	require.NoError(t, err)
	assert.True(t, got)

	// Absent fields read as null.
	expr, err = Parse(`case.anything == null`)
	require.NoError(t, err)
	got, err = Eval(expr, caseRec, controlRec)
	require.NoError(t, err)
	assert.True(t, got)

	// Ordering against null is false, not an error.
	expr, err = Parse(`control.evt_date < case.idx_date`)
	require.NoError(t, err)
	got, err = Eval(expr, caseRec, controlRec)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEval_TypeMismatchErrors(t *testing.T) {
	caseRec := cohort.Record{ID: "c1", Fields: map[string]cohort.Value{
		"sex": cohort.NewString("M"),
	}}
	controlRec := cohort.Record{ID: "p1", Fields: map[string]cohort.Value{
		"age": cohort.Int(40),
	}}

	expr, err := Parse(`control.age < case.sex`)
	require.NoError(t, err)

	_, err = Eval(expr, caseRec, controlRec)
	require.Error(t, err, "ordering across incompatible types surfaces an error")
}
