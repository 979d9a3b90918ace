package plugin

import (
	"context"
	"time"

	"github.com/wesleyorama2/lunge-worker/pkg/jsonschema"
)

var constantTimerSchema = jsonschema.MustCompile("constant_timer.json", `{
	"type": "object",
	"properties": {
		"time": {"type": "integer", "minimum": 0}
	},
	"required": ["time"]
}`)

// ConstantTimer pauses the virtual user for a fixed number of milliseconds.
type ConstantTimer struct {
	Base
	wait time.Duration
}

func (t *ConstantTimer) Category() Category { return Timer }

func (t *ConstantTimer) Validate() error {
	return checkConfig(constantTimerSchema, t.node.Value)
}

func (t *ConstantTimer) Prepare(raw string) error {
	var cfg struct {
		Time int64 `json:"time"`
	}
	if err := decodeConfig(constantTimerSchema, raw, &cfg); err != nil {
		return err
	}
	t.wait = time.Duration(cfg.Time) * time.Millisecond
	return nil
}

func (t *ConstantTimer) Execute(ctx context.Context) error {
	if t.wait <= 0 {
		return nil
	}
	timer := time.NewTimer(t.wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
