package jsonpath

import (
	"testing"
)

const document = `{
	"name": "John Doe",
	"age": 30,
	"address": {"city": "Anytown"},
	"phones": [
		{"type": "home", "number": "555-1234"},
		{"type": "work", "number": "555-5678"}
	],
	"active": true,
	"scores": [10, 20, 30],
	"metadata": null
}`

const store = `{
	"store": {
		"book": [
			{"id": 1, "category": "reference", "title": "Sayings", "price": 8.95},
			{"id": 2, "category": "fiction", "title": "Sword", "price": 12.99, "isbn": "0-553"},
			{"id": 3, "category": "fiction", "title": "Moby Dick", "price": 8.99, "isbn": "0-395"},
			{"id": 4, "category": "fiction", "title": "Rings", "price": 22.99, "isbn": null}
		],
		"bicycle": {"id": 5, "color": "red", "price": 19.95}
	},
	"items": [
		{"tags": [{"n": "a"}, {"n": "b"}]},
		{"tags": [{"n": "c"}]}
	]
}`

func assertStrings(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("result %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractAll(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected []string
	}{
		{name: "Simple property", path: "$.name", expected: []string{"John Doe"}},
		{name: "Without root", path: "address.city", expected: []string{"Anytown"}},
		{name: "Array index", path: "$.phones[1].number", expected: []string{"555-5678"}},
		{name: "Negative index", path: "$.scores[-1]", expected: []string{"30"}},
		{name: "Bracket quotes", path: "$['address']['city']", expected: []string{"Anytown"}},
		{name: "Double quotes", path: `$["address"].city`, expected: []string{"Anytown"}},
		{name: "Null", path: "$.metadata", expected: []string{"null"}},
		{name: "Wildcard field", path: "$.phones[*].number", expected: []string{"555-1234", "555-5678"}},
		{name: "Trailing wildcard", path: "$.scores[*]", expected: []string{"10", "20", "30"}},
		{name: "Dot wildcard", path: "$.address.*", expected: []string{"Anytown"}},
		{name: "Whole array is one match", path: "$.scores", expected: []string{"[10, 20, 30]"}},
		{name: "Object", path: "$.address", expected: []string{`{"city": "Anytown"}`}},
		{name: "Index union", path: "$.scores[0,2]", expected: []string{"10", "30"}},
		{name: "Slice", path: "$.scores[1:]", expected: []string{"20", "30"}},
		{name: "Reverse slice", path: "$.scores[::-1]", expected: []string{"30", "20", "10"}},
		{name: "No match", path: "$.missing[*].x", expected: []string{}},
		{name: "Index out of range", path: "$.scores[7]", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := ExtractAll(document, tt.path)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			assertStrings(t, Strings(results), tt.expected)
		})
	}
}

func TestExtractAll_Root(t *testing.T) {
	for _, path := range []string{"$", "$."} {
		results, err := ExtractAll(`[1, 2]`, path)
		if err != nil {
			t.Fatalf("ExtractAll(%q): %v", path, err)
		}
		assertStrings(t, Strings(results), []string{"[1, 2]"})
	}
}

func TestExtractAll_NestedWildcardsAreFlat(t *testing.T) {
	results, err := ExtractAll(store, "$.items[*].tags[*].n")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	assertStrings(t, Strings(results), []string{"a", "b", "c"})
}

func TestExtractAll_RecursiveDescent(t *testing.T) {
	tests := []struct {
		path     string
		expected []string
	}{
		{"$..id", []string{"1", "2", "3", "4", "5"}},
		{"$..book[0].title", []string{"Sayings"}},
		{"$.store..price", []string{"8.95", "12.99", "8.99", "22.99", "19.95"}},
		{"$..n", []string{"a", "b", "c"}},
		{"$..[1].n", []string{"b"}},
		{"$..nothing", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			results, err := ExtractAll(store, tt.path)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			assertStrings(t, Strings(results), tt.expected)
		})
	}
}

func TestExtractAll_Filters(t *testing.T) {
	tests := []struct {
		path     string
		expected []string
	}{
		{"$.store.book[?(@.price < 10)].title", []string{"Sayings", "Moby Dick"}},
		{"$.store.book[?(@.price >= 12.99)].id", []string{"2", "4"}},
		{"$.store.book[?(@.category == 'fiction')].id", []string{"2", "3", "4"}},
		{`$.store.book[?(@.category != "fiction")].id`, []string{"1"}},
		{"$.store.book[?(@.isbn)].id", []string{"2", "3"}},
		{"$.store.book[?(@.category == 'fiction' && @.price < 20)].title", []string{"Sword", "Moby Dick"}},
		{"$.store.book[?(@.id == 1 || @.id == 4)].title", []string{"Sayings", "Rings"}},
		{"$.store.book[?((@.price > 20))].title", []string{"Rings"}},
		{"$..book[?(@.isbn == null)].id", []string{"4"}},
		{"$.store.book[?(@.title == 'a]b')]", []string{}},
		{"$..[?(@.color)].price", []string{"19.95"}},
		{"$.items[?(@.tags[1])].tags[1].n", []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			results, err := ExtractAll(store, tt.path)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			assertStrings(t, Strings(results), tt.expected)
		})
	}
}

func TestExtractAll_Errors(t *testing.T) {
	tests := []struct {
		name string
		json string
		path string
	}{
		{"Invalid JSON", "not json", "$.a"},
		{"Empty path", document, ""},
		{"Unterminated bracket", document, "$.scores[0"},
		{"Empty member", document, "$.address..."},
		{"Bad index", document, "$.scores[x]"},
		{"Zero step", document, "$.scores[::0]"},
		{"Filter without @", document, "$.phones[?(1)]"},
		{"Bad filter value", document, "$.phones[?(@.type == home)]"},
		{"Stray character", document, "$name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ExtractAll(tt.json, tt.path); err == nil {
				t.Errorf("Expected an error for %q", tt.path)
			}
		})
	}
}

func TestStrings(t *testing.T) {
	results, err := ExtractAll(document, "$.phones[0].*")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	assertStrings(t, Strings(results), []string{"home", "555-1234"})
}
