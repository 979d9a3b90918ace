package plugin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/wesleyorama2/lunge-worker/pkg/jsonschema"
)

const errPoolNotDefined = "request error: connection pool not defined;"

var mysqlRequestSchema = jsonschema.MustCompile("mysql_request.json", `{
	"type": "object",
	"properties": {
		"pool": {"type": "string"},
		"sql": {"type": "string"},
		"vars": {"type": "string"}
	},
	"required": ["pool", "sql", "vars"]
}`)

var redisRequestSchema = jsonschema.MustCompile("redis_request.json", `{
	"type": "object",
	"properties": {
		"pool": {"type": "string"},
		"command": {"type": "string"},
		"var": {"type": "string"}
	},
	"required": ["pool", "command", "var"]
}`)

type mysqlRequestConfig struct {
	Pool string `json:"pool"`
	SQL  string `json:"sql"`
	Vars string `json:"vars"`
}

// MySQLRequest runs one SQL statement on a pool created by a
// MySQLConnection. Result set columns are stored per virtual user under the
// configured variable names, in column order.
type MySQLRequest struct {
	Base
	cfg mysqlRequestConfig
}

func (m *MySQLRequest) Category() Category { return Request }

func (m *MySQLRequest) Validate() error {
	return checkConfig(mysqlRequestSchema, m.node.Value)
}

func (m *MySQLRequest) Prepare(raw string) error {
	m.cfg = mysqlRequestConfig{}
	return decodeConfig(mysqlRequestSchema, raw, &m.cfg)
}

func (m *MySQLRequest) Execute(ctx context.Context) error {
	e := m.entry
	e.Statement = m.cfg.SQL
	e.StatementLen = len(m.cfg.SQL)
	e.RequestLen = e.StatementLen

	v, _ := m.env.Store.Get(m.cfg.Pool)
	db, ok := v.(*sql.DB)
	if !ok {
		e.finish()
		e.Fail(-1, errPoolNotDefined)
		return nil
	}

	rows, err := db.QueryContext(ctx, m.cfg.SQL)
	if err != nil {
		e.finish()
		var merr *mysql.MySQLError
		if errors.As(err, &merr) {
			e.Fail(int(merr.Number), fmt.Sprintf("request error: %s;", merr.Message))
		} else {
			e.Fail(-1, fmt.Sprintf("request error: %v;", err))
		}
		return nil
	}
	defer rows.Close()

	columns, err := readColumns(rows)
	e.finish()
	if err != nil {
		e.Fail(-1, fmt.Sprintf("failed to read result set: %v;", err))
		return nil
	}
	e.Failure = "request succeeded;"

	if m.cfg.Vars == "" || columns == nil {
		return nil
	}

	names := strings.Split(m.cfg.Vars, ",")
	stored := make(map[string][]any, len(names))
	for i, name := range names {
		var col []any
		if i < len(columns) {
			col = columns[i]
		} else if len(columns) > 0 {
			// missing columns keep one nil per row
			col = make([]any, len(columns[0]))
		} else {
			col = []any{}
		}
		stored[name] = col
		m.env.Store.PerUser(name).Put(m.vu, col)
	}

	if b, err := json.Marshal(stored); err == nil {
		e.Result = truncate(string(b), maxLogPayload)
		e.ResultLen = len(b)
		e.ResponseLen = e.ResultLen
	}
	return nil
}

// readColumns reads every row and returns the values column by column. SQL
// NULL becomes nil, everything else its text form. Statements without a
// result set return nil.
func readColumns(rows *sql.Rows) ([][]any, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, rows.Err()
	}

	columns := make([][]any, len(names))
	for i := range columns {
		columns[i] = []any{}
	}

	values := make([]sql.NullString, len(names))
	dest := make([]any, len(names))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if v.Valid {
				columns[i] = append(columns[i], v.String)
			} else {
				columns[i] = append(columns[i], nil)
			}
		}
	}
	return columns, rows.Err()
}

type redisRequestConfig struct {
	Pool    string `json:"pool"`
	Command string `json:"command"`
	Var     string `json:"var"`
}

// redisDoer is the part of *redis.Client used by RedisRequest.
type redisDoer interface {
	Do(ctx context.Context, args ...any) *redis.Cmd
}

// RedisRequest sends one whitespace separated command on a pool created by
// a RedisConnection and stores the reply per virtual user.
type RedisRequest struct {
	Base
	cfg redisRequestConfig
}

func (r *RedisRequest) Category() Category { return Request }

func (r *RedisRequest) Validate() error {
	return checkConfig(redisRequestSchema, r.node.Value)
}

func (r *RedisRequest) Prepare(raw string) error {
	r.cfg = redisRequestConfig{}
	return decodeConfig(redisRequestSchema, raw, &r.cfg)
}

func (r *RedisRequest) Execute(ctx context.Context) error {
	e := r.entry
	e.Command = r.cfg.Command
	e.RequestLen = len(r.cfg.Command)

	v, _ := r.env.Store.Get(r.cfg.Pool)
	client, ok := v.(redisDoer)
	if !ok {
		e.finish()
		e.Fail(-1, errPoolNotDefined)
		return nil
	}

	fields := strings.Fields(r.cfg.Command)
	if len(fields) == 0 {
		e.finish()
		e.Fail(-1, "request error: empty command;")
		return nil
	}
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}

	reply, err := client.Do(ctx, args...).Result()
	e.finish()
	if err != nil && !errors.Is(err, redis.Nil) {
		e.Fail(-1, fmt.Sprintf("request error: %v;", err))
		return nil
	}
	e.Failure = "request succeeded;"

	if r.cfg.Var != "" {
		r.env.Store.PerUser(r.cfg.Var).Put(r.vu, reply)
	}
	return nil
}
