package docstore

import (
	"fmt"
	"regexp"
)

type PredicateOp int

const (
	OpEq PredicateOp = iota
	OpContainsAny
)

// Predicate filters documents on a top-level field.
type Predicate struct {
	Field  string
	Op     PredicateOp
	Values []string
}

// Eq matches documents whose string field equals value.
func Eq(field, value string) Predicate {
	return Predicate{Field: field, Op: OpEq, Values: []string{value}}
}

// ContainsAny matches documents whose array field shares at least one
// element with values.
func ContainsAny(field string, values ...string) Predicate {
	return Predicate{Field: field, Op: OpContainsAny, Values: values}
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (p Predicate) validate() error {
	if !fieldNamePattern.MatchString(p.Field) {
		return fmt.Errorf("invalid field name %q", p.Field)
	}
	if len(p.Values) == 0 {
		return fmt.Errorf("predicate on %q has no values", p.Field)
	}
	return nil
}

// Match reports whether fields satisfy the predicate.
func (p Predicate) Match(fields Fields) bool {
	v, ok := fields[p.Field]
	if !ok {
		return false
	}
	switch p.Op {
	case OpEq:
		s, ok := v.(string)
		return ok && len(p.Values) > 0 && s == p.Values[0]
	case OpContainsAny:
		for _, elem := range stringsOf(v) {
			for _, want := range p.Values {
				if elem == want {
					return true
				}
			}
		}
	}
	return false
}

// MatchAll reports whether fields satisfy every predicate.
func MatchAll(preds []Predicate, fields Fields) bool {
	for _, p := range preds {
		if !p.Match(fields) {
			return false
		}
	}
	return true
}

func stringsOf(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
