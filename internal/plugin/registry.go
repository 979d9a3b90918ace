package plugin

import "sort"

// Factory creates a plugin around base. It must not perform I/O.
type Factory func(base Base) Plugin

type registration struct {
	name    string
	factory Factory
}

// Registry maps plugin type ids to factories.
type Registry struct {
	entries map[int]registration
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int]registration)}
}

// Register binds a type id to a factory, replacing any earlier binding.
func (r *Registry) Register(id int, name string, f Factory) {
	r.entries[id] = registration{name: name, factory: f}
}

// Lookup returns the factory and name registered for id.
func (r *Registry) Lookup(id int) (Factory, string, bool) {
	reg, ok := r.entries[id]
	return reg.factory, reg.name, ok
}

// IDs returns the registered type ids in ascending order.
func (r *Registry) IDs() []int {
	ids := make([]int, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Type ids of the built-in plugins.
const (
	TypeTestTask           = 0
	TypeTestCaseCollection = 1
	TypeTestCase           = 2
	TypeCSVDataSet         = 3
	TypeExcelDataSet       = 4
	TypeVariables          = 5
	TypeMySQLConnection    = 6
	TypeRedisConnection    = 7
	TypeConstantTimer      = 8
	TypeMySQLRequest       = 9
	TypeRedisRequest       = 10
	TypeHTTPRequest        = 11
	TypeJSONPathExtractor  = 12
	TypeHTTPAssertion      = 13
)

// DefaultRegistry returns a registry holding every built-in plugin.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeTestTask, "TestTask", newGroup)
	r.Register(TypeTestCaseCollection, "TestCaseCollection", newGroup)
	r.Register(TypeTestCase, "TestCase", newGroup)
	r.Register(TypeCSVDataSet, "CsvDataSetConfig", func(b Base) Plugin { return &CSVDataSet{Base: b} })
	r.Register(TypeExcelDataSet, "ExcelDataSetConfig", func(b Base) Plugin { return &ExcelDataSet{Base: b} })
	r.Register(TypeVariables, "UserDefinedVariables", func(b Base) Plugin { return &Variables{Base: b} })
	r.Register(TypeMySQLConnection, "MysqlConnectionConfiguration", func(b Base) Plugin { return &MySQLConnection{Base: b} })
	r.Register(TypeRedisConnection, "RedisConnectionConfiguration", func(b Base) Plugin { return &RedisConnection{Base: b} })
	r.Register(TypeConstantTimer, "ConstantTimer", func(b Base) Plugin { return &ConstantTimer{Base: b} })
	r.Register(TypeMySQLRequest, "MysqlRequest", func(b Base) Plugin { return &MySQLRequest{Base: b} })
	r.Register(TypeRedisRequest, "RedisRequest", func(b Base) Plugin { return &RedisRequest{Base: b} })
	r.Register(TypeHTTPRequest, "HttpRequest", func(b Base) Plugin { return &HTTPRequest{Base: b} })
	r.Register(TypeJSONPathExtractor, "JsonPathExtractor", func(b Base) Plugin { return &JSONPathExtractor{Base: b} })
	r.Register(TypeHTTPAssertion, "HttpRequestAssert", func(b Base) Plugin { return &HTTPAssertion{Base: b} })
	return r
}
