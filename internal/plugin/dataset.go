package plugin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/wesleyorama2/lunge-worker/internal/params"
	"github.com/wesleyorama2/lunge-worker/pkg/jsonschema"
)

const varNamesPattern = `^([_a-zA-Z][_a-zA-Z0-9.]*(,[_a-zA-Z][_a-zA-Z0-9.]*)*)?$`

var csvSchema = jsonschema.MustCompile("csv_data_set_config.json", `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"uuid": {"type": "string", "minLength": 1},
		"auto_encode": {"type": "boolean"},
		"encode": {"type": "string"},
		"var_names": {"type": "string", "pattern": "`+varNamesPattern+`"},
		"ignore_first_line": {"type": "boolean"},
		"split": {"type": "string"},
		"share_all_threads": {"type": "boolean"}
	},
	"required": ["name", "uuid", "auto_encode", "encode", "var_names", "ignore_first_line", "split", "share_all_threads"],
	"if": {"properties": {"auto_encode": {"const": false}}},
	"then": {"properties": {"encode": {"minLength": 1}}}
}`)

var excelSchema = jsonschema.MustCompile("excel_data_set_config.json", `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"uuid": {"type": "string", "minLength": 1},
		"auto_encode": {"type": "boolean"},
		"encode": {"type": "string"},
		"var_names": `+pairsSchema+`,
		"ignore_first_line": {"type": "boolean"},
		"share_all_threads": {"type": "boolean"}
	},
	"required": ["name", "uuid", "auto_encode", "encode", "var_names", "ignore_first_line", "share_all_threads"]
}`)

var variablesSchema = jsonschema.MustCompile("user_defined_variables.json", `{
	"type": "object",
	"properties": {
		"vars": `+pairsSchema+`
	},
	"required": ["vars"]
}`)

// dataFile returns the path of a bundled asset file.
func dataFile(env *Env, name string) string {
	return filepath.Join(env.FilePath, "files", name)
}

type csvConfig struct {
	Name            string `json:"name"`
	UUID            string `json:"uuid"`
	AutoEncode      bool   `json:"auto_encode"`
	Encode          string `json:"encode"`
	VarNames        string `json:"var_names"`
	IgnoreFirstLine bool   `json:"ignore_first_line"`
	Split           string `json:"split"`
	ShareAllThreads bool   `json:"share_all_threads"`
}

// CSVDataSet loads a delimited text file into an Iterator bound to each of
// its variable names, and advances the Iterator on every execution.
type CSVDataSet struct {
	Base
	cfg csvConfig
}

func (c *CSVDataSet) Category() Category { return Parameter }

func (c *CSVDataSet) Validate() error {
	return checkConfig(csvSchema, c.node.Value)
}

func (c *CSVDataSet) Prepare(raw string) error {
	c.cfg = csvConfig{}
	return decodeConfig(csvSchema, raw, &c.cfg)
}

func (c *CSVDataSet) Execute(ctx context.Context) error {
	v, err := c.env.Shared.Load(nodeKey(c.node), c.load)
	if err != nil {
		return err
	}
	if it, ok := v.(*params.Iterator); ok {
		it.Next(c.vu)
	}
	return nil
}

func (c *CSVDataSet) load() (any, error) {
	if c.cfg.VarNames == "" {
		return nil, nil
	}

	data, err := os.ReadFile(dataFile(c.env, c.cfg.UUID))
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	text, err := decodeText(data, c.cfg.AutoEncode, c.cfg.Encode)
	if err != nil {
		return nil, err
	}

	lines := strings.SplitAfter(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	if c.cfg.IgnoreFirstLine && len(lines) > 0 {
		lines = lines[1:]
	}

	it := params.NewTextIterator(lines, c.cfg.VarNames, c.cfg.Split, c.cfg.ShareAllThreads)
	for _, k := range it.Keys() {
		c.env.Store.Set(k, it)
	}
	c.env.logger().Debug("csv data set loaded",
		zap.String("name", c.cfg.Name),
		zap.Int("rows", it.Len()),
		zap.Bool("shared", it.Shared()))
	return it, nil
}

func validNames(keys string) bool {
	for _, k := range strings.Split(keys, ",") {
		if !params.NamePattern.MatchString(k) {
			return false
		}
	}
	return true
}

// decodeText converts file content to UTF-8. With auto set the content is
// taken as UTF-8 and a byte order mark is dropped.
func decodeText(data []byte, auto bool, charset string) (string, error) {
	if auto {
		return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", fmt.Errorf("unsupported encoding %q: %w", charset, err)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode data file as %s: %w", charset, err)
	}
	return string(out), nil
}

type excelConfig struct {
	Name            string `json:"name"`
	UUID            string `json:"uuid"`
	AutoEncode      bool   `json:"auto_encode"`
	Encode          string `json:"encode"`
	VarNames        []pair `json:"var_names"`
	IgnoreFirstLine bool   `json:"ignore_first_line"`
	ShareAllThreads bool   `json:"share_all_threads"`
}

// ExcelDataSet loads spreadsheet sheets into Iterators, one per
// [sheet, variable names] pair, and advances all of them on every
// execution.
type ExcelDataSet struct {
	Base
	cfg excelConfig
}

func (x *ExcelDataSet) Category() Category { return Parameter }

func (x *ExcelDataSet) Validate() error {
	return checkConfig(excelSchema, x.node.Value)
}

func (x *ExcelDataSet) Prepare(raw string) error {
	x.cfg = excelConfig{}
	return decodeConfig(excelSchema, raw, &x.cfg)
}

func (x *ExcelDataSet) Execute(ctx context.Context) error {
	v, err := x.env.Shared.Load(nodeKey(x.node), x.load)
	if err != nil {
		return err
	}
	its, _ := v.([]*params.Iterator)
	for _, it := range its {
		it.Next(x.vu)
	}
	return nil
}

func (x *ExcelDataSet) load() (any, error) {
	f, err := excelize.OpenFile(dataFile(x.env, x.cfg.UUID))
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var its []*params.Iterator
	for _, p := range x.cfg.VarNames {
		sheet, keys := p.Key, p.Value
		if sheet == "" || keys == "" || !slices.Contains(sheets, sheet) {
			return nil, fmt.Errorf("sheet %q not found", sheet)
		}
		if !validNames(keys) {
			return nil, fmt.Errorf("invalid variable names %q", keys)
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if x.cfg.IgnoreFirstLine && len(rows) > 0 {
			rows = rows[1:]
		}

		it := params.NewListIterator(rows, keys, x.cfg.ShareAllThreads)
		for _, k := range it.Keys() {
			x.env.Store.Set(k, it)
		}
		its = append(its, it)
	}
	x.env.logger().Debug("excel data set loaded",
		zap.String("name", x.cfg.Name),
		zap.Int("sheets", len(its)))
	return its, nil
}

type variablesConfig struct {
	Vars []pair `json:"vars"`
}

// Variables writes literal name/value pairs into the parameter store once
// per task.
type Variables struct {
	Base
	cfg variablesConfig
}

func (v *Variables) Category() Category { return Parameter }

func (v *Variables) Validate() error {
	var cfg variablesConfig
	if err := decodeConfig(variablesSchema, v.node.Value, &cfg); err != nil {
		return err
	}
	for i, p := range cfg.Vars {
		if p.Key != "" && !params.NamePattern.MatchString(p.Key) {
			return fmt.Errorf("variable #%d has invalid name %q", i+1, p.Key)
		}
	}
	return nil
}

func (v *Variables) Prepare(raw string) error {
	v.cfg = variablesConfig{}
	return decodeConfig(variablesSchema, raw, &v.cfg)
}

func (v *Variables) Execute(ctx context.Context) error {
	return v.env.Shared.Do(nodeKey(v.node), func() error {
		values := make(map[string]any, len(v.cfg.Vars))
		for _, p := range v.cfg.Vars {
			if p.Key != "" {
				values[p.Key] = p.Value
			}
		}
		v.env.Store.Update(values)
		return nil
	})
}
