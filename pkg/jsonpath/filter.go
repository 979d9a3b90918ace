package jsonpath

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// filter is a disjunction of conjunctions of comparisons.
type filter [][]comparison

type comparison struct {
	left  operand
	op    string
	right operand
}

// operand is either a path relative to the current element or a literal.
type operand struct {
	relative bool
	path     []step
	literal  gjson.Result
}

var operators = []string{"==", "!=", "<=", ">=", "<", ">"}

func parseFilter(expr string) (filter, error) {
	var f filter
	for _, clause := range splitTop(expr, "||") {
		var all []comparison
		for _, term := range splitTop(clause, "&&") {
			c, err := parseComparison(stripParens(strings.TrimSpace(term)))
			if err != nil {
				return nil, err
			}
			all = append(all, c)
		}
		f = append(f, all)
	}
	return f, nil
}

func stripParens(s string) string {
	for wrapped(s) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// wrapped reports whether s is entirely enclosed by one pair of parentheses.
func wrapped(s string) bool {
	if len(s) < 2 || s[0] != '(' {
		return false
	}
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i == len(s)-1
			}
		}
	}
	return false
}

func parseComparison(term string) (comparison, error) {
	if term == "" {
		return comparison{}, fmt.Errorf("empty filter term")
	}
	at, op := findOperator(term)
	if op == "" {
		left, err := parseOperand(term)
		if err != nil {
			return comparison{}, err
		}
		if !left.relative {
			return comparison{}, fmt.Errorf("filter term %q does not reference @", term)
		}
		return comparison{left: left}, nil
	}

	left, err := parseOperand(strings.TrimSpace(term[:at]))
	if err != nil {
		return comparison{}, err
	}
	right, err := parseOperand(strings.TrimSpace(term[at+len(op):]))
	if err != nil {
		return comparison{}, err
	}
	return comparison{left: left, op: op, right: right}, nil
}

// findOperator returns the position of the first comparison operator
// outside quotes.
func findOperator(s string) (int, string) {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		default:
			for _, op := range operators {
				if strings.HasPrefix(s[i:], op) {
					return i, op
				}
			}
		}
	}
	return -1, ""
}

func parseOperand(s string) (operand, error) {
	if strings.HasPrefix(s, "@") {
		steps, err := parseSteps(s[1:])
		if err != nil {
			return operand{}, err
		}
		return operand{relative: true, path: steps}, nil
	}
	if str, ok := unquote(s); ok {
		raw, _ := json.Marshal(str)
		return operand{literal: gjson.ParseBytes(raw)}, nil
	}
	if !gjson.Valid(s) {
		return operand{}, fmt.Errorf("bad filter value %q", s)
	}
	return operand{literal: gjson.Parse(s)}, nil
}

func (o operand) resolve(v gjson.Result) (gjson.Result, bool) {
	if !o.relative {
		return o.literal, true
	}
	results := evaluate(o.path, v)
	if len(results) == 0 {
		return gjson.Result{}, false
	}
	return results[0], true
}

func (f filter) match(v gjson.Result) bool {
	for _, clause := range f {
		ok := true
		for _, c := range clause {
			if !c.match(v) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func (c comparison) match(v gjson.Result) bool {
	left, ok := c.left.resolve(v)
	if c.op == "" {
		return ok && left.Type != gjson.Null && left.Type != gjson.False
	}
	right, rok := c.right.resolve(v)
	if !ok || !rok {
		return false
	}

	switch {
	case left.Type == gjson.Number && right.Type == gjson.Number:
		return compareOrdered(left.Float(), right.Float(), c.op)
	case left.Type == gjson.String && right.Type == gjson.String:
		return compareOrdered(left.Str, right.Str, c.op)
	}

	equal := left.Type == right.Type && (left.Type == gjson.Null ||
		left.Type == gjson.True || left.Type == gjson.False || left.Raw == right.Raw)
	switch c.op {
	case "==":
		return equal
	case "!=":
		return !equal
	}
	return false
}

func compareOrdered[T float64 | string](a, b T, op string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}
