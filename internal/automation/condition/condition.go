// Package condition turns stored condition definitions into typed predicates
// and evaluates them against entity snapshots.
//
// Evaluation fails closed: a path that does not resolve, or operands that
// cannot be compared, make the predicate false. The only exception is
// notExists, which is true exactly when the path does not resolve.
package condition

import (
	"fmt"
	"strings"
	"time"

	"recruitment_backend/internal/automation/domain"
)

// Operator is a condition operator as stored in automation definitions.
type Operator string

const (
	OpEq        Operator = "eq"
	OpNeq       Operator = "neq"
	OpGt        Operator = "gt"
	OpLt        Operator = "lt"
	OpGte       Operator = "gte"
	OpLte       Operator = "lte"
	OpContains  Operator = "contains"
	OpExists    Operator = "exists"
	OpNotExists Operator = "notExists"
)

// Operators lists every supported operator.
var Operators = []Operator{OpEq, OpNeq, OpGt, OpLt, OpGte, OpLte, OpContains, OpExists, OpNotExists}

// Condition is a parsed predicate. The set of implementations is closed.
type Condition interface {
	// Field is the dotted snapshot path the predicate reads.
	Field() string
	// Matches evaluates the predicate against a snapshot.
	Matches(s domain.Snapshot) bool
	sealed()
}

// EvaluationError describes a condition definition that could not be parsed.
// Such a condition never matches.
type EvaluationError struct {
	Index    int
	Field    string
	Operator string
	Reason   string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("condition %d (%s %s): %s", e.Index, e.Field, e.Operator, e.Reason)
}

// Equals is eq or neq.
type Equals struct {
	Path   string
	Value  Scalar
	Negate bool
}

// Compare is gt, lt, gte or lte against either a number or a date, decided
// when the condition is parsed.
type Compare struct {
	Path   string
	Op     Operator
	Number *float64
	Date   *time.Time
}

// Contains is substring match on string fields or membership on arrays.
type Contains struct {
	Path  string
	Value Scalar
}

// Exists is exists or notExists.
type Exists struct {
	Path   string
	Negate bool
}

// Invalid stands in for a definition that failed to parse.
type Invalid struct {
	Path string
	Err  *EvaluationError
}

func (Equals) sealed()   {}
func (Compare) sealed()  {}
func (Contains) sealed() {}
func (Exists) sealed()   {}
func (Invalid) sealed()  {}

func (c Equals) Field() string   { return c.Path }
func (c Compare) Field() string  { return c.Path }
func (c Contains) Field() string { return c.Path }
func (c Exists) Field() string   { return c.Path }
func (c Invalid) Field() string  { return c.Path }

// Matches implements Condition.
func (c Equals) Matches(s domain.Snapshot) bool {
	v, ok := s.Lookup(c.Path)
	if !ok {
		return false
	}
	eq, comparable := c.Value.equalTo(v)
	if !comparable {
		return false
	}
	return eq != c.Negate
}

// Matches implements Condition.
func (c Compare) Matches(s domain.Snapshot) bool {
	v, ok := s.Lookup(c.Path)
	if !ok {
		return false
	}

	var cmp int
	switch {
	case c.Number != nil:
		n, ok := toNumber(v)
		if !ok {
			return false
		}
		cmp = compareFloat(n, *c.Number)
	case c.Date != nil:
		d, ok := toDate(v)
		if !ok {
			return false
		}
		cmp = d.Compare(*c.Date)
	default:
		return false
	}

	switch c.Op {
	case OpGt:
		return cmp > 0
	case OpLt:
		return cmp < 0
	case OpGte:
		return cmp >= 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

// Matches implements Condition.
func (c Contains) Matches(s domain.Snapshot) bool {
	v, ok := s.Lookup(c.Path)
	if !ok {
		return false
	}
	if str, ok := v.(string); ok {
		return strings.Contains(str, c.Value.String())
	}
	items, ok := toSlice(v)
	if !ok {
		return false
	}
	for _, item := range items {
		if eq, comparable := c.Value.equalTo(item); comparable && eq {
			return true
		}
	}
	return false
}

// Matches implements Condition.
func (c Exists) Matches(s domain.Snapshot) bool {
	_, ok := s.Lookup(c.Path)
	return ok != c.Negate
}

// Matches implements Condition.
func (Invalid) Matches(domain.Snapshot) bool { return false }

// Parse converts one stored definition. index is the definition's position
// and is only used for error reporting.
func Parse(index int, spec domain.ConditionSpec) Condition {
	path := strings.TrimSpace(spec.Field)
	invalid := func(reason string) Condition {
		return Invalid{Path: path, Err: &EvaluationError{
			Index: index, Field: spec.Field, Operator: spec.Operator, Reason: reason,
		}}
	}
	if path == "" {
		return invalid("field is required")
	}

	op := Operator(strings.TrimSpace(spec.Operator))
	switch op {
	case OpExists, OpNotExists:
		return Exists{Path: path, Negate: op == OpNotExists}
	case OpEq, OpNeq:
		value, ok := NewScalar(spec.Value)
		if !ok {
			return invalid("value must be a string, number or boolean")
		}
		return Equals{Path: path, Value: value, Negate: op == OpNeq}
	case OpContains:
		value, ok := NewScalar(spec.Value)
		if !ok {
			return invalid("value must be a string, number or boolean")
		}
		return Contains{Path: path, Value: value}
	case OpGt, OpLt, OpGte, OpLte:
		if n, ok := toNumber(spec.Value); ok {
			return Compare{Path: path, Op: op, Number: &n}
		}
		if d, ok := toDate(spec.Value); ok {
			return Compare{Path: path, Op: op, Date: &d}
		}
		return invalid("value must be a number or a date")
	default:
		return invalid("unknown operator")
	}
}

// ParseAll converts an ordered list of definitions.
func ParseAll(specs []domain.ConditionSpec) []Condition {
	out := make([]Condition, len(specs))
	for i, spec := range specs {
		out[i] = Parse(i, spec)
	}
	return out
}

// Evaluate reports whether every condition matches. An empty list matches.
// The returned errors describe malformed definitions, each of which made the
// result false; they are informational and never abort evaluation.
func Evaluate(s domain.Snapshot, conditions []Condition) (bool, []*EvaluationError) {
	matched := true
	var errs []*EvaluationError
	for _, c := range conditions {
		if inv, ok := c.(Invalid); ok {
			errs = append(errs, inv.Err)
			matched = false
			continue
		}
		if !c.Matches(s) {
			matched = false
		}
	}
	return matched, errs
}

// Validate returns the parse errors of specs without evaluating them.
func Validate(specs []domain.ConditionSpec) []*EvaluationError {
	var errs []*EvaluationError
	for _, c := range ParseAll(specs) {
		if inv, ok := c.(Invalid); ok {
			errs = append(errs, inv.Err)
		}
	}
	return errs
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
