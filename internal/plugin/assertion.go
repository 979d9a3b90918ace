package plugin

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/lunge-worker/pkg/jsonpath"
	"github.com/wesleyorama2/lunge-worker/pkg/jsonschema"
)

const (
	ruleMode     = `{"enum": ["text", "reg"]}`
	ruleCmp      = `{"enum": [0, 1]}`
	ruleSource   = `{"enum": [0, 1]}`
	ruleBool     = `{"type": "boolean"}`
	ruleString   = `{"type": "string"}`
	matcherItems = ruleMode + `, ` + ruleCmp + `, ` + ruleBool + `, ` + ruleString
)

func tupleSchema(items string, n int) string {
	return fmt.Sprintf(`{"type": "array", "items": {"type": "array", "prefixItems": [%s], "minItems": %d, "maxItems": %d}}`, items, n, n)
}

var httpAssertionSchema = jsonschema.MustCompile("http_request_assert.json", `{
	"type": "object",
	"properties": {
		"url_check": `+tupleSchema(matcherItems, 4)+`,
		"header_check": `+tupleSchema(ruleSource+`, `+ruleString+`, `+matcherItems, 6)+`,
		"body_content_check": `+tupleSchema(ruleSource+`, `+matcherItems, 5)+`,
		"body_json_check": `+tupleSchema(ruleSource+`, `+ruleString+`, `+matcherItems, 6)+`,
		"code_check": `+tupleSchema(matcherItems, 4)+`
	},
	"required": ["url_check", "header_check", "body_content_check", "body_json_check", "code_check"]
}`)

// Rule sources
const (
	sourceRequest  = 0
	sourceResponse = 1
)

// matcher is the (mode, comparison, positive, pattern) part of a rule.
// Text mode checks containment (cmp 0) or equality (cmp 1), reg mode
// searches with a regular expression. With positive false the outcome is
// inverted.
type matcher struct {
	Mode     string
	Cmp      int
	Positive bool
	Pattern  string
}

// match reports whether the rule holds for any of values.
func (m matcher) match(values ...string) bool {
	hit := false
	switch m.Mode {
	case "reg":
		re, err := regexp.Compile(m.Pattern)
		if err != nil {
			return false
		}
		for _, v := range values {
			if re.MatchString(v) {
				hit = true
				break
			}
		}
	default:
		for _, v := range values {
			if (m.Cmp == 0 && strings.Contains(v, m.Pattern)) || (m.Cmp == 1 && v == m.Pattern) {
				hit = true
				break
			}
		}
	}
	return hit == m.Positive
}

type urlRule struct{ matcher }

func (r *urlRule) UnmarshalJSON(b []byte) error {
	return unmarshalTuple(b, &r.Mode, &r.Cmp, &r.Positive, &r.Pattern)
}

type headerRule struct {
	Source int
	Name   string
	matcher
}

func (r *headerRule) UnmarshalJSON(b []byte) error {
	return unmarshalTuple(b, &r.Source, &r.Name, &r.Mode, &r.Cmp, &r.Positive, &r.Pattern)
}

type bodyRule struct {
	Source int
	matcher
}

func (r *bodyRule) UnmarshalJSON(b []byte) error {
	return unmarshalTuple(b, &r.Source, &r.Mode, &r.Cmp, &r.Positive, &r.Pattern)
}

type jsonRule struct {
	Source int
	Path   string
	matcher
}

func (r *jsonRule) UnmarshalJSON(b []byte) error {
	return unmarshalTuple(b, &r.Source, &r.Path, &r.Mode, &r.Cmp, &r.Positive, &r.Pattern)
}

type codeRule struct{ matcher }

func (r *codeRule) UnmarshalJSON(b []byte) error {
	return unmarshalTuple(b, &r.Mode, &r.Cmp, &r.Positive, &r.Pattern)
}

type httpAssertionConfig struct {
	URL         []urlRule    `json:"url_check"`
	Header      []headerRule `json:"header_check"`
	BodyContent []bodyRule   `json:"body_content_check"`
	BodyJSON    []jsonRule   `json:"body_json_check"`
	Code        []codeRule   `json:"code_check"`
}

// HTTPAssertion checks the exchange of its parent HTTP request. Every rule
// of every group is evaluated; each failing rule marks the parent entry
// failed and appends a reason to it.
type HTTPAssertion struct {
	Base
	cfg httpAssertionConfig
}

func (a *HTTPAssertion) Category() Category { return Assertion }

func (a *HTTPAssertion) Validate() error {
	return checkConfig(httpAssertionSchema, a.node.Value)
}

func (a *HTTPAssertion) Prepare(raw string) error {
	a.cfg = httpAssertionConfig{}
	return decodeConfig(httpAssertionSchema, raw, &a.cfg)
}

func (a *HTTPAssertion) Execute(ctx context.Context) error {
	if a.parent == nil {
		return nil
	}
	e := a.parent.Core().Entry()
	if e == nil {
		return nil
	}

	ex := exchangeOf(a.parent)
	if ex == nil {
		e.AppendFailure("assertion target has no HTTP exchange;")
		return nil
	}

	for i, r := range a.cfg.URL {
		if !r.match(ex.URL) {
			e.AppendFailure(ruleFailed(i, "url"))
		}
	}

	for i, r := range a.cfg.Header {
		h := ex.ResponseHeader
		if r.Source == sourceRequest {
			h = ex.RequestHeader
		}
		values := h.Values(r.Name)
		if len(values) == 0 || !r.match(strings.Join(values, ", ")) {
			e.AppendFailure(ruleFailed(i, "header"))
		}
	}

	for i, r := range a.cfg.BodyContent {
		if !r.match(bodyOf(ex, r.Source)) {
			e.AppendFailure(ruleFailed(i, "body content"))
		}
	}

	a.assertJSON(ex, e)

	code := strconv.Itoa(ex.StatusCode)
	for i, r := range a.cfg.Code {
		m := r.matcher
		if m.Mode == "reg" {
			// status code patterns match from the first digit
			m.Pattern = "^(?:" + m.Pattern + ")"
		}
		if !m.match(code) {
			e.AppendFailure(ruleFailed(i, "code"))
		}
	}
	return nil
}

// assertJSON evaluates the body json rules. A source body that is not JSON
// fails the whole group with a single reason.
func (a *HTTPAssertion) assertJSON(ex *Exchange, e *Entry) {
	for _, r := range a.cfg.BodyJSON {
		if body := bodyOf(ex, r.Source); !gjson.Valid(body) {
			if r.Source == sourceRequest {
				e.AppendFailure("request body is not valid JSON;")
			} else {
				e.AppendFailure("response body is not valid JSON;")
			}
			return
		}
	}

	for i, r := range a.cfg.BodyJSON {
		results, err := jsonpath.ExtractAll(bodyOf(ex, r.Source), r.Path)
		if err != nil || len(results) == 0 || !r.match(jsonpath.Strings(results)...) {
			e.AppendFailure(ruleFailed(i, "body json"))
		}
	}
}

func bodyOf(ex *Exchange, source int) string {
	if source == sourceRequest {
		return ex.RequestBody
	}
	return ex.ResponseBody
}

func exchangeOf(p Plugin) *Exchange {
	x, ok := p.(Exchanger)
	if !ok {
		return nil
	}
	return x.Exchange()
}

func ruleFailed(i int, group string) string {
	return fmt.Sprintf("rule #%d of %s assertion failed;", i+1, group)
}
