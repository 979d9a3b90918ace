package params

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// tokenPattern matches ${name}, ${name[k]} and ${name[*]}. Only one level of
// indexing is supported.
var tokenPattern = regexp.MustCompile(`\$\{([_a-zA-Z][_a-zA-Z0-9.]*)\}|\$\{([_a-zA-Z][_a-zA-Z0-9.]*)\[(\d+|\*)\]\}`)

// NamePattern matches a valid parameter name.
var NamePattern = regexp.MustCompile(`^[_a-zA-Z][_a-zA-Z0-9.]*$`)

// Substitute resolves every token in raw against the store on behalf of the
// virtual user vu. Each occurrence is resolved on its own; tokens that
// cannot be resolved are left verbatim.
func (s *Store) Substitute(raw string, vu int) string {
	// Fast path: no tokens to resolve
	if !strings.Contains(raw, "${") {
		return raw
	}

	return tokenPattern.ReplaceAllStringFunc(raw, func(token string) string {
		m := tokenPattern.FindStringSubmatch(token)
		if m == nil {
			return token
		}
		name, selector := m[1], ""
		if name == "" {
			name, selector = m[2], m[3]
		}
		if out, ok := s.resolve(name, selector, vu); ok {
			return out
		}
		return token
	})
}

// resolve looks up one token. selector is "" for ${name}, "*" for
// ${name[*]} or a decimal index.
func (s *Store) resolve(name, selector string, vu int) (string, bool) {
	v, ok := s.Get(name)
	if !ok {
		return "", false
	}

	switch val := v.(type) {
	case *Iterator:
		switch selector {
		case "":
			return val.Get(name, vu)
		case "*":
			return strconv.Itoa(val.Len()), true
		default:
			k, err := strconv.Atoi(selector)
			if err != nil {
				return "", false
			}
			return val.At(name, k)
		}

	case Resource:
		return "", false

	case *PerUser:
		captured, ok := val.Get(vu)
		if !ok {
			return "", false
		}
		return resolveValue(captured, selector)

	default:
		return resolveValue(val, selector)
	}
}

func resolveValue(v any, selector string) (string, bool) {
	switch selector {
	case "":
		return Stringify(v)
	case "*":
		n, ok := length(v)
		if !ok {
			return "", false
		}
		return strconv.Itoa(n), true
	default:
		k, err := strconv.Atoi(selector)
		if err != nil {
			return "", false
		}
		return index(v, k)
	}
}

// Stringify renders a stored value as substitution text. Collections are
// rendered as JSON. Byte slices must hold valid UTF-8.
func Stringify(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case []byte:
		if !utf8.Valid(val) {
			return "", false
		}
		return string(val), true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case json.Number:
		return val.String(), true
	case fmt.Stringer:
		return val.String(), true
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func length(v any) (int, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case string:
		return utf8.RuneCountInString(val), true
	case []byte:
		return len(val), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}
	return 0, false
}

func index(v any, k int) (string, bool) {
	if k < 0 {
		return "", false
	}

	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		runes := []rune(val)
		if k >= len(runes) {
			return "", false
		}
		return string(runes[k]), true
	case []byte:
		if k >= len(val) || !utf8.Valid(val[k:k+1]) {
			return "", false
		}
		return string(val[k : k+1]), true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return "", false
	}
	if k >= rv.Len() {
		return "", false
	}
	return Stringify(rv.Index(k).Interface())
}
