// Package jsonpath evaluates JSONPath expressions over JSON documents.
//
// Supported forms: the root $, child .name and ['name'], wildcards .* and
// [*], recursive descent .., indexes [0] and [-1], unions [0,2] and
// ['a','b'], slices [start:end:step] and filters [?(@.price < 10)]. Filters
// compare with == != < <= > >= and combine with && and ||; a bare @.path
// tests that the member exists and is not false or null.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractAll returns every value matched by a JSONPath expression, in
// document order. Nested wildcards and descent yield a flat list. An empty
// slice means nothing matched.
func ExtractAll(json string, path string) ([]gjson.Result, error) {
	if !gjson.Valid(json) {
		return nil, fmt.Errorf("invalid JSON document")
	}
	steps, err := parse(path)
	if err != nil {
		return nil, err
	}
	return evaluate(steps, gjson.Parse(json)), nil
}

// Strings renders results the way assertions compare them: strings as-is,
// everything else as its raw JSON text.
func Strings(results []gjson.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		if r.Type == gjson.String {
			out[i] = r.String()
		} else {
			out[i] = r.Raw
		}
	}
	return out
}

type selectorKind int

const (
	selectName selectorKind = iota
	selectWildcard
	selectIndex
	selectSlice
	selectFilter
)

// step is one selector of a path, applied to every node matched so far.
type step struct {
	descend bool
	kind    selectorKind
	names   []string
	indexes []int
	slice   slice
	filter  filter
}

func evaluate(steps []step, root gjson.Result) []gjson.Result {
	nodes := []gjson.Result{root}
	for _, st := range steps {
		var next []gjson.Result
		for _, n := range nodes {
			if st.descend {
				walk(n, func(d gjson.Result) { next = st.selectFrom(d, next) })
			} else {
				next = st.selectFrom(n, next)
			}
		}
		nodes = next
		if len(nodes) == 0 {
			return nil
		}
	}
	return nodes
}

// walk visits n and all its descendants in document order.
func walk(n gjson.Result, fn func(gjson.Result)) {
	fn(n)
	if n.IsObject() || n.IsArray() {
		n.ForEach(func(_, v gjson.Result) bool {
			walk(v, fn)
			return true
		})
	}
}

func (st step) selectFrom(n gjson.Result, out []gjson.Result) []gjson.Result {
	switch st.kind {
	case selectName:
		if !n.IsObject() {
			return out
		}
		for _, name := range st.names {
			n.ForEach(func(k, v gjson.Result) bool {
				if k.String() == name {
					out = append(out, v)
					return false
				}
				return true
			})
		}
	case selectWildcard:
		if n.IsObject() || n.IsArray() {
			n.ForEach(func(_, v gjson.Result) bool {
				out = append(out, v)
				return true
			})
		}
	case selectIndex:
		if !n.IsArray() {
			return out
		}
		arr := n.Array()
		for _, i := range st.indexes {
			if i < 0 {
				i += len(arr)
			}
			if i >= 0 && i < len(arr) {
				out = append(out, arr[i])
			}
		}
	case selectSlice:
		if !n.IsArray() {
			return out
		}
		arr := n.Array()
		for _, i := range st.slice.indexes(len(arr)) {
			out = append(out, arr[i])
		}
	case selectFilter:
		if n.IsObject() || n.IsArray() {
			n.ForEach(func(_, v gjson.Result) bool {
				if st.filter.match(v) {
					out = append(out, v)
				}
				return true
			})
		}
	}
	return out
}

// ============================================================================
// Parsing
// ============================================================================

func parse(path string) ([]step, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, fmt.Errorf("empty JSONPath expression")
	}
	switch {
	case strings.HasPrefix(p, "$"):
		p = p[1:]
	case !strings.HasPrefix(p, ".") && !strings.HasPrefix(p, "["):
		p = "." + p
	}
	if p == "." {
		return nil, nil
	}
	steps, err := parseSteps(p)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}
	return steps, nil
}

// parseSteps parses the selectors following a root, $ or @.
func parseSteps(p string) ([]step, error) {
	var steps []step
	for i := 0; i < len(p); {
		switch p[i] {
		case '.':
			descend := strings.HasPrefix(p[i:], "..")
			if descend {
				i += 2
			} else {
				i++
			}
			if descend && i < len(p) && p[i] == '[' {
				st, n, err := parseBracket(p[i:])
				if err != nil {
					return nil, err
				}
				st.descend = true
				steps = append(steps, st)
				i += n
				continue
			}
			j := i
			for j < len(p) && p[j] != '.' && p[j] != '[' {
				j++
			}
			name := strings.TrimSpace(p[i:j])
			if name == "" {
				return nil, fmt.Errorf("empty member name at offset %d", i)
			}
			st := step{descend: descend, kind: selectName, names: []string{name}}
			if name == "*" {
				st = step{descend: descend, kind: selectWildcard}
			}
			steps = append(steps, st)
			i = j
		case '[':
			st, n, err := parseBracket(p[i:])
			if err != nil {
				return nil, err
			}
			steps = append(steps, st)
			i += n
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", p[i], i)
		}
	}
	return steps, nil
}

// parseBracket parses the bracket selector at the start of s and returns
// it with the number of bytes consumed.
func parseBracket(s string) (step, int, error) {
	end := closingBracket(s)
	if end < 0 {
		return step{}, 0, fmt.Errorf("unterminated bracket")
	}
	body := strings.TrimSpace(s[1:end])

	var st step
	switch {
	case body == "":
		return step{}, 0, fmt.Errorf("empty bracket")
	case body == "*":
		st.kind = selectWildcard
	case strings.HasPrefix(body, "?(") && strings.HasSuffix(body, ")"):
		f, err := parseFilter(body[2 : len(body)-1])
		if err != nil {
			return step{}, 0, err
		}
		st.kind, st.filter = selectFilter, f
	case body[0] == '\'' || body[0] == '"':
		st.kind = selectName
		for _, part := range splitTop(body, ",") {
			name, ok := unquote(strings.TrimSpace(part))
			if !ok {
				return step{}, 0, fmt.Errorf("bad member name %s", part)
			}
			st.names = append(st.names, name)
		}
	case strings.Contains(body, ":"):
		sl, err := parseSlice(body)
		if err != nil {
			return step{}, 0, err
		}
		st.kind, st.slice = selectSlice, sl
	default:
		st.kind = selectIndex
		for _, part := range strings.Split(body, ",") {
			i, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return step{}, 0, fmt.Errorf("bad index %q", part)
			}
			st.indexes = append(st.indexes, i)
		}
	}
	return st, end + 1, nil
}

// closingBracket returns the index of the bracket closing s[0], skipping
// quoted text and nested brackets, or -1.
func closingBracket(s string) int {
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
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTop splits s on sep where sep is outside quotes, brackets and
// parentheses.
func splitTop(s, sep string) []string {
	var parts []string
	depth, start := 0, 0
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
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case depth == 0 && strings.HasPrefix(s[i:], sep):
			parts = append(parts, s[start:i])
			i += len(sep) - 1
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func unquote(s string) (string, bool) {
	if len(s) < 2 || s[0] != s[len(s)-1] || (s[0] != '\'' && s[0] != '"') {
		return "", false
	}
	q := string(s[0])
	return strings.ReplaceAll(s[1:len(s)-1], `\`+q, q), true
}

type slice struct {
	start, end, step int
	hasStart, hasEnd bool
}

func parseSlice(body string) (slice, error) {
	parts := strings.Split(body, ":")
	if len(parts) > 3 {
		return slice{}, fmt.Errorf("bad slice %q", body)
	}
	sl := slice{step: 1}
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return slice{}, fmt.Errorf("bad slice %q", body)
		}
		switch i {
		case 0:
			sl.start, sl.hasStart = n, true
		case 1:
			sl.end, sl.hasEnd = n, true
		case 2:
			if n == 0 {
				return slice{}, fmt.Errorf("slice step cannot be zero")
			}
			sl.step = n
		}
	}
	return sl, nil
}

// indexes lists the positions selected in an array of length n.
func (s slice) indexes(n int) []int {
	norm := func(i int) int {
		if i < 0 {
			return i + n
		}
		return i
	}

	var out []int
	if s.step > 0 {
		start, end := 0, n
		if s.hasStart {
			start = min(max(norm(s.start), 0), n)
		}
		if s.hasEnd {
			end = min(max(norm(s.end), 0), n)
		}
		for i := start; i < end; i += s.step {
			out = append(out, i)
		}
		return out
	}

	start, end := n-1, -1
	if s.hasStart {
		start = min(max(norm(s.start), -1), n-1)
	}
	if s.hasEnd {
		end = min(max(norm(s.end), -1), n-1)
	}
	for i := start; i > end; i += s.step {
		out = append(out, i)
	}
	return out
}
