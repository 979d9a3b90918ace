package procs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHash is an in-memory stand-in for a Redis hash.
type fakeHash struct {
	fields map[string]string
	err    error
}

func newFakeHash() *fakeHash {
	return &fakeHash{fields: make(map[string]string)}
}

func (f *fakeHash) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "hset", key)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	for i := 0; i+1 < len(values); i += 2 {
		f.fields[key+"/"+values[i].(string)] = values[i+1].(string)
	}
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func (f *fakeHash) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "hget", key, field)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	v, ok := f.fields[key+"/"+field]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeHash) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "hdel", key)
	for _, field := range fields {
		delete(f.fields, key+"/"+field)
	}
	cmd.SetVal(int64(len(fields)))
	return cmd
}

func TestEntry_RoundTrip(t *testing.T) {
	e := Entry{PPID: 100, PID: 2001}
	assert.Equal(t, "100:2001", e.String())

	got, err := Parse(" 100:2001\n")
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestParse_Errors(t *testing.T) {
	for _, s := range []string{"", "100", "a:1", "1:b"} {
		_, err := Parse(s)
		assert.Error(t, err, "input %q", s)
	}
}

func testRegistry(t *testing.T, reg Registry) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := reg.Lookup(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, reg.Record(ctx, 7, Entry{PPID: 1, PID: 2}))
	require.NoError(t, reg.Record(ctx, 8, Entry{PPID: 1, PID: 3}))

	e, ok, err := reg.Lookup(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Entry{PPID: 1, PID: 2}, e)

	require.NoError(t, reg.Remove(ctx, 7))
	_, ok, err = reg.Lookup(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, reg.Remove(ctx, 7), "removing twice is fine")

	_, ok, _ = reg.Lookup(ctx, 8)
	assert.True(t, ok)
}

func TestMemoryRegistry(t *testing.T) {
	testRegistry(t, NewMemoryRegistry())
}

func TestFileRegistry(t *testing.T) {
	reg, err := NewFileRegistry(filepath.Join(t.TempDir(), "procs"))
	require.NoError(t, err)
	testRegistry(t, reg)
}

func TestFileRegistry_CorruptEntry(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewFileRegistry(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task_3.pid"), []byte("garbage"), 0o644))

	_, _, err = reg.Lookup(context.Background(), 3)
	assert.Error(t, err)
}

func TestRedisRegistry(t *testing.T) {
	hash := newFakeHash()
	testRegistry(t, NewRedisRegistry(hash))
}

func TestRedisRegistry_UsesTaskHash(t *testing.T) {
	hash := newFakeHash()
	reg := NewRedisRegistry(hash)
	require.NoError(t, reg.Record(context.Background(), 12, Entry{PPID: 5, PID: 6}))

	assert.Equal(t, "5:6", hash.fields["taskProcessId/12"])
}

func TestRedisRegistry_Errors(t *testing.T) {
	hash := newFakeHash()
	hash.err = errors.New("connection refused")
	reg := NewRedisRegistry(hash)

	assert.Error(t, reg.Record(context.Background(), 1, Entry{PPID: 1, PID: 2}))
	_, ok, err := reg.Lookup(context.Background(), 1)
	assert.Error(t, err)
	assert.False(t, ok)
}
