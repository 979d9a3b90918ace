package params

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakePool struct{ closed int }

func (p *fakePool) Close() error {
	p.closed++
	return nil
}

func TestSubstitute_Identity(t *testing.T) {
	s := NewStore()
	s.Set("x", "5")

	for _, raw := range []string{"", "plain text", `{"url":"http://host/path"}`, "$x {x} $ {x}"} {
		assert.Equal(t, raw, s.Substitute(raw, 1))
	}
}

func TestSubstitute_MissingNameIsVerbatim(t *testing.T) {
	s := NewStore()
	raw := "${nope} ${nope[0]} ${nope[*]}"
	assert.Equal(t, raw, s.Substitute(raw, 1))
}

func TestSubstitute_Scalars(t *testing.T) {
	s := NewStore()
	s.Update(map[string]any{
		"str":   "hello",
		"num":   42,
		"float": 1.5,
		"flag":  true,
		"bytes": []byte("raw"),
		"bad":   []byte{0xff, 0xfe},
		"list":  []any{"a", 2.0, "c"},
		"obj":   map[string]any{"k": "v"},
	})

	tests := []struct {
		raw  string
		want string
	}{
		{"${str}", "hello"},
		{"${str[*]}", "5"},
		{"${str[1]}", "e"},
		{"${str[9]}", "${str[9]}"},
		{"${num}", "42"},
		{"${num[0]}", "${num[0]}"},
		{"${float}", "1.5"},
		{"${flag}", "true"},
		{"${bytes}", "raw"},
		{"${bytes[*]}", "3"},
		{"${bad}", "${bad}"},
		{"${list}", `["a",2,"c"]`},
		{"${list[*]}", "3"},
		{"${list[1]}", "2"},
		{"${list[3]}", "${list[3]}"},
		{"${obj}", `{"k":"v"}`},
		{"${obj[*]}", "1"},
		{"${obj[0]}", "${obj[0]}"},
		{"${str}-${str}", "hello-hello"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Substitute(tt.raw, 1))
		})
	}
}

func TestSubstitute_Iterator(t *testing.T) {
	s := NewStore()
	it := NewTextIterator([]string{"u1,p1", "u2,p2", "u3,p3"}, "user,pass", ",", false)
	s.Update(map[string]any{"user": it, "pass": it})

	assert.Equal(t, "${user}", s.Substitute("${user}", 1), "no row selected yet")

	it.Next(1)
	it.Next(1)
	it.Next(2)

	assert.Equal(t, "u2:p2", s.Substitute("${user}:${pass}", 1))
	assert.Equal(t, "u1:p1", s.Substitute("${user}:${pass}", 2))
	assert.Equal(t, "3", s.Substitute("${user[*]}", 1))
	assert.Equal(t, "p3", s.Substitute("${pass[2]}", 2), "absolute row ignores cursor")
	assert.Equal(t, "${user[3]}", s.Substitute("${user[3]}", 1), "k >= K stays unresolved")
}

func TestSubstitute_ResourceNeverSubstituted(t *testing.T) {
	s := NewStore()
	s.Set("db", &fakePool{})

	raw := "${db} ${db[0]} ${db[*]}"
	assert.Equal(t, raw, s.Substitute(raw, 1))
}

func TestSubstitute_PerUser(t *testing.T) {
	s := NewStore()
	pu := s.PerUser("token")
	pu.Put(1, "abc")
	pu.Put(2, []any{"x", "y"})

	assert.Equal(t, "abc", s.Substitute("${token}", 1))
	assert.Equal(t, "3", s.Substitute("${token[*]}", 1))
	assert.Equal(t, "b", s.Substitute("${token[1]}", 1))

	assert.Equal(t, "2", s.Substitute("${token[*]}", 2))
	assert.Equal(t, "y", s.Substitute("${token[1]}", 2))

	assert.Equal(t, "${token}", s.Substitute("${token}", 3), "nothing captured for user 3")
}

func TestStore_PerUserReplacesOtherKinds(t *testing.T) {
	s := NewStore()
	s.Set("v", "scalar")

	pu := s.PerUser("v")
	pu.Put(1, "captured")

	assert.Same(t, pu, s.PerUser("v"))
	assert.Equal(t, "captured", s.Substitute("${v}", 1))
}

func TestStore_CloseClosesResourcesOnce(t *testing.T) {
	s := NewStore()
	pool := &fakePool{}
	s.Update(map[string]any{"a": pool, "b": pool, "c": "text"})

	assert.NoError(t, s.Close())
	assert.Equal(t, 1, pool.closed)
}

type failingPool struct{}

func (failingPool) Close() error { return errors.New("boom") }

func TestStore_CloseJoinsErrors(t *testing.T) {
	s := NewStore()
	s.Set("bad", failingPool{})

	err := s.Close()
	assert.ErrorContains(t, err, "close bad: boom")
}
