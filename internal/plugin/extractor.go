package plugin

import (
	"context"
	"math/rand/v2"

	"github.com/wesleyorama2/lunge-worker/pkg/jsonpath"
	"github.com/wesleyorama2/lunge-worker/pkg/jsonschema"
)

var jsonPathExtractorSchema = jsonschema.MustCompile("json_path_extractor.json", `{
	"type": "object",
	"properties": {
		"var": {"type": "string", "pattern": "^[_a-zA-Z][_a-zA-Z0-9.]*$"},
		"expr": {"type": "string", "minLength": 1},
		"match_no": {"type": "integer", "minimum": 0},
		"default": {"type": "string"},
		"all": {"type": "boolean"}
	},
	"required": ["var", "expr", "match_no", "default", "all"]
}`)

type jsonPathExtractorConfig struct {
	Var     string `json:"var"`
	Expr    string `json:"expr"`
	MatchNo int    `json:"match_no"`
	Default string `json:"default"`
	All     bool   `json:"all"`
}

// JSONPathExtractor stores a value found in its parent's response body
// under a variable for the calling virtual user. match_no 0 picks a random
// match; n picks the nth match or falls back to the default when there are
// fewer. With all set every match is also stored as <var>_All.
//
// A response that is not JSON, or has no match, leaves the store untouched.
type JSONPathExtractor struct {
	Base
	cfg jsonPathExtractorConfig
}

func (x *JSONPathExtractor) Category() Category { return Postprocessor }

func (x *JSONPathExtractor) Validate() error {
	return checkConfig(jsonPathExtractorSchema, x.node.Value)
}

func (x *JSONPathExtractor) Prepare(raw string) error {
	x.cfg = jsonPathExtractorConfig{}
	return decodeConfig(jsonPathExtractorSchema, raw, &x.cfg)
}

func (x *JSONPathExtractor) Execute(ctx context.Context) error {
	if x.parent == nil {
		return nil
	}
	ex := exchangeOf(x.parent)
	if ex == nil {
		return nil
	}

	results, err := jsonpath.ExtractAll(ex.ResponseBody, x.cfg.Expr)
	if err != nil || len(results) == 0 {
		return nil
	}

	var value any
	switch n := x.cfg.MatchNo; {
	case n == 0:
		value = results[rand.IntN(len(results))].Value()
	case n <= len(results):
		value = results[n-1].Value()
	default:
		value = x.cfg.Default
	}
	x.env.Store.PerUser(x.cfg.Var).Put(x.vu, value)

	if x.cfg.All {
		all := make([]any, len(results))
		for i, r := range results {
			all[i] = r.Value()
		}
		x.env.Store.PerUser(x.cfg.Var+"_All").Put(x.vu, all)
	}
	return nil
}
