package plugin

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wesleyorama2/lunge-worker/pkg/jsonschema"
)

var mysqlConnectionSchema = jsonschema.MustCompile("mysql_connection_configuration.json", `{
	"type": "object",
	"properties": {
		"max_pool_size": {"type": "integer", "minimum": 0},
		"pool_timeout": {"type": "integer", "minimum": 1},
		"host": {"type": "string", "minLength": 1},
		"port": {"type": "integer", "minimum": 1},
		"user": {"type": "string"},
		"pwd": {"type": "string", "minLength": 1},
		"database": {"type": "string"},
		"charset": {"type": "string", "minLength": 1},
		"var": {"type": "string"},
		"auto_commit": {"type": "boolean"}
	},
	"required": ["max_pool_size", "pool_timeout", "host", "port", "user", "pwd", "database", "charset", "var", "auto_commit"]
}`)

var redisConnectionSchema = jsonschema.MustCompile("redis_connection_configuration.json", `{
	"type": "object",
	"properties": {
		"max_pool_size": {"type": "integer", "minimum": 0},
		"pool_timeout": {"type": "integer", "minimum": 1},
		"host": {"type": "string", "minLength": 1},
		"port": {"type": "integer", "minimum": 1},
		"pwd": {"type": "string"},
		"db": {"type": "integer", "minimum": 0},
		"var": {"type": "string"}
	},
	"required": ["max_pool_size", "pool_timeout", "host", "port", "pwd", "db", "var"]
}`)

type mysqlConnectionConfig struct {
	MaxPoolSize int    `json:"max_pool_size"`
	PoolTimeout int    `json:"pool_timeout"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	User        string `json:"user"`
	Password    string `json:"pwd"`
	Database    string `json:"database"`
	Charset     string `json:"charset"`
	Var         string `json:"var"`
	AutoCommit  bool   `json:"auto_commit"`
}

// MySQLConnection creates a MySQL connection pool on first execution and
// stores it under its variable name. The pool connects lazily.
type MySQLConnection struct {
	Base
	cfg mysqlConnectionConfig
}

func (m *MySQLConnection) Category() Category { return Configuration }

func (m *MySQLConnection) Validate() error {
	return checkConfig(mysqlConnectionSchema, m.node.Value)
}

func (m *MySQLConnection) Prepare(raw string) error {
	m.cfg = mysqlConnectionConfig{}
	return decodeConfig(mysqlConnectionSchema, raw, &m.cfg)
}

func (m *MySQLConnection) Execute(ctx context.Context) error {
	return m.env.Shared.Do(nodeKey(m.node), func() error {
		db, err := openMySQL(m.cfg, m.env.VirtualUsers)
		if err != nil {
			return fmt.Errorf("failed to create mysql pool: %w", err)
		}
		m.env.Store.Set(m.cfg.Var, db)
		m.env.logger().Debug("mysql pool created",
			zap.String("var", m.cfg.Var),
			zap.String("host", m.cfg.Host))
		return nil
	})
}

func openMySQL(cfg mysqlConnectionConfig, virtualUsers int) (*sql.DB, error) {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.Timeout = time.Duration(cfg.PoolTimeout) * time.Millisecond
	mc.Params = map[string]string{
		// MySQL charset names carry no dashes
		"charset": strings.ReplaceAll(cfg.Charset, "-", ""),
	}
	if cfg.AutoCommit {
		mc.Params["autocommit"] = "1"
	} else {
		mc.Params["autocommit"] = "0"
	}

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, err
	}

	size := cfg.MaxPoolSize
	if size == 0 {
		size = virtualUsers
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)
	return db, nil
}

type redisConnectionConfig struct {
	MaxPoolSize int    `json:"max_pool_size"`
	PoolTimeout int    `json:"pool_timeout"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Password    string `json:"pwd"`
	DB          int    `json:"db"`
	Var         string `json:"var"`
}

// RedisConnection creates a Redis client pool on first execution and stores
// it under its variable name.
type RedisConnection struct {
	Base
	cfg redisConnectionConfig
}

func (r *RedisConnection) Category() Category { return Configuration }

func (r *RedisConnection) Validate() error {
	return checkConfig(redisConnectionSchema, r.node.Value)
}

func (r *RedisConnection) Prepare(raw string) error {
	r.cfg = redisConnectionConfig{}
	return decodeConfig(redisConnectionSchema, raw, &r.cfg)
}

func (r *RedisConnection) Execute(ctx context.Context) error {
	return r.env.Shared.Do(nodeKey(r.node), func() error {
		client := redis.NewClient(&redis.Options{
			Addr:        net.JoinHostPort(r.cfg.Host, strconv.Itoa(r.cfg.Port)),
			Password:    r.cfg.Password,
			DB:          r.cfg.DB,
			PoolSize:    r.cfg.MaxPoolSize, // 0 keeps the client default
			DialTimeout: time.Duration(r.cfg.PoolTimeout) * time.Millisecond,
		})
		r.env.Store.Set(r.cfg.Var, client)
		r.env.logger().Debug("redis pool created",
			zap.String("var", r.cfg.Var),
			zap.String("host", r.cfg.Host))
		return nil
	})
}
