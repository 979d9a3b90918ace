package plugin

import (
	"encoding/json"
	"fmt"

	"github.com/wesleyorama2/lunge-worker/pkg/jsonschema"
)

// checkConfig validates raw plugin configuration against schema.
func checkConfig(schema *jsonschema.Schema, raw string) error {
	if errs := schema.Validate(raw); errs != nil {
		return errs
	}
	return nil
}

// decodeConfig validates raw against schema and decodes it into v.
func decodeConfig(schema *jsonschema.Schema, raw string, v any) error {
	if err := checkConfig(schema, raw); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// unmarshalTuple decodes a JSON array into the given destinations, one per
// element.
func unmarshalTuple(data []byte, dst ...any) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("expected %d elements, got %d", len(dst), len(raw))
	}
	for i, d := range dst {
		if err := json.Unmarshal(raw[i], d); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// pair is a [key, value] configuration tuple.
type pair struct {
	Key   string
	Value string
}

func (p *pair) UnmarshalJSON(data []byte) error {
	return unmarshalTuple(data, &p.Key, &p.Value)
}

const pairsSchema = `{"type": "array", "items": {"type": "array", "prefixItems": [{"type": "string"}, {"type": "string"}], "minItems": 2, "maxItems": 2}}`
