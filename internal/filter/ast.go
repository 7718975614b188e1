package filter

import (
	"fmt"

	"github.com/roach88/cohortmatch/internal/cohort"
)

// Expr is the sealed interface over expression nodes.
//
// Expression types:
//   - Compare: <operand> <op> <operand>
//   - And, Or: boolean connectives
//   - Not: negation
//
// The marker method pattern prevents external implementations and keeps
// evaluation an exhaustive type switch.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Operand is the sealed interface over comparison operands.
//
// Operand types:
//   - FieldRef: case.<col> or control.<col>
//   - Literal: a constant cohort.Value
type Operand interface {
	operandNode() // Marker method - seals interface to this package
}

// Subject identifies which record of the pair a field reference reads.
type Subject string

const (
	// SubjectCase reads the case record.
	SubjectCase Subject = "case"
	// SubjectControl reads the candidate control record.
	SubjectControl Subject = "control"
)

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// FieldRef reads a named column from the case or control record.
type FieldRef struct {
	Subject Subject
	Name    string
}

func (FieldRef) operandNode() {}

// Literal is a constant value.
type Literal struct {
	Value cohort.Value
}

func (Literal) operandNode() {}

// Compare is a single comparison between two operands.
type Compare struct {
	Left  Operand
	Op    Op
	Right Operand
}

func (Compare) exprNode() {}

// And is true iff all sub-expressions are true.
type And struct {
	Exprs []Expr
}

func (And) exprNode() {}

// Or is true iff any sub-expression is true.
type Or struct {
	Exprs []Expr
}

func (Or) exprNode() {}

// Not negates its sub-expression.
type Not struct {
	Expr Expr
}

func (Not) exprNode() {}

// Fields returns every field reference in the expression, in source
// order. Used for fail-fast column validation before a run starts.
func Fields(e Expr) []FieldRef {
	var refs []FieldRef
	collectFields(e, &refs)
	return refs
}

func collectFields(e Expr, refs *[]FieldRef) {
	switch node := e.(type) {
	case Compare:
		if f, ok := node.Left.(FieldRef); ok {
			*refs = append(*refs, f)
		}
		if f, ok := node.Right.(FieldRef); ok {
			*refs = append(*refs, f)
		}
	case And:
		for _, sub := range node.Exprs {
			collectFields(sub, refs)
		}
	case Or:
		for _, sub := range node.Exprs {
			collectFields(sub, refs)
		}
	case Not:
		collectFields(node.Expr, refs)
	}
}

// Eval evaluates the expression against a case/control pair.
func Eval(e Expr, caseRec, controlRec cohort.Record) (bool, error) {
	switch node := e.(type) {
	case Compare:
		return evalCompare(node, caseRec, controlRec)

	case And:
		for _, sub := range node.Exprs {
			ok, err := Eval(sub, caseRec, controlRec)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case Or:
		for _, sub := range node.Exprs {
			ok, err := Eval(sub, caseRec, controlRec)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case Not:
		ok, err := Eval(node.Expr, caseRec, controlRec)
		if err != nil {
			return false, err
		}
		return !ok, nil

	default:
		return false, fmt.Errorf("unsupported expression node: %T", e)
	}
}

func evalCompare(c Compare, caseRec, controlRec cohort.Record) (bool, error) {
	left := resolveOperand(c.Left, caseRec, controlRec)
	right := resolveOperand(c.Right, caseRec, controlRec)

	switch c.Op {
	case OpEq:
		return cohort.Equal(left, right), nil
	case OpNe:
		return !cohort.Equal(left, right), nil
	}

	// Ordering comparisons: null operands evaluate to false rather than
	// erroring, so a sparse column does not abort a whole run.
	if cohort.IsNull(left) || cohort.IsNull(right) {
		return false, nil
	}

	cmp, err := cohort.Compare(left, right)
	if err != nil {
		return false, fmt.Errorf("compare %s: %w", c.Op, err)
	}

	switch c.Op {
	case OpLt:
		return cmp < 0, nil
	case OpLe:
		return cmp <= 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGe:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", c.Op)
	}
}

func resolveOperand(op Operand, caseRec, controlRec cohort.Record) cohort.Value {
	switch o := op.(type) {
	case FieldRef:
		if o.Subject == SubjectCase {
			return caseRec.Get(o.Name)
		}
		return controlRec.Get(o.Name)
	case Literal:
		return o.Value
	default:
		return cohort.Null{}
	}
}
