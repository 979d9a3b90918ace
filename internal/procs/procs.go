// Package procs records which OS process runs each task so a later kill
// can find it.
package procs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// HashKey is the Redis hash mapping task ids to process entries.
const HashKey = "taskProcessId"

// Entry identifies a task process and the supervisor that started it.
type Entry struct {
	PPID int
	PID  int
}

// String renders the entry as "ppid:pid".
func (e Entry) String() string {
	return fmt.Sprintf("%d:%d", e.PPID, e.PID)
}

// Parse reads a "ppid:pid" entry.
func Parse(s string) (Entry, error) {
	ppid, pid, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Entry{}, fmt.Errorf("invalid process entry %q", s)
	}
	var e Entry
	var err error
	if e.PPID, err = strconv.Atoi(ppid); err != nil {
		return Entry{}, fmt.Errorf("invalid parent pid in %q: %w", s, err)
	}
	if e.PID, err = strconv.Atoi(pid); err != nil {
		return Entry{}, fmt.Errorf("invalid pid in %q: %w", s, err)
	}
	return e, nil
}

// Registry stores the process entry of each task.
type Registry interface {
	Record(ctx context.Context, taskID int64, e Entry) error
	// Lookup returns false when no entry is recorded for the task.
	Lookup(ctx context.Context, taskID int64) (Entry, bool, error)
	Remove(ctx context.Context, taskID int64) error
}

// hashClient is the part of a Redis client used by RedisRegistry.
type hashClient interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
}

// RedisRegistry keeps entries in the HashKey hash.
type RedisRegistry struct {
	client hashClient
}

// NewRedisRegistry creates a registry on client, usually a *redis.Client.
func NewRedisRegistry(client hashClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Record(ctx context.Context, taskID int64, e Entry) error {
	if err := r.client.HSet(ctx, HashKey, field(taskID), e.String()).Err(); err != nil {
		return fmt.Errorf("failed to record process of task %d: %w", taskID, err)
	}
	return nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, taskID int64) (Entry, bool, error) {
	v, err := r.client.HGet(ctx, HashKey, field(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to look up process of task %d: %w", taskID, err)
	}
	e, err := Parse(v)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (r *RedisRegistry) Remove(ctx context.Context, taskID int64) error {
	return r.client.HDel(ctx, HashKey, field(taskID)).Err()
}

func field(taskID int64) string {
	return strconv.FormatInt(taskID, 10)
}

// FileRegistry keeps one file per task in a directory.
type FileRegistry struct {
	dir string
}

// NewFileRegistry creates a registry in dir, creating it if needed.
func NewFileRegistry(dir string) (*FileRegistry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}
	return &FileRegistry{dir: dir}, nil
}

func (f *FileRegistry) path(taskID int64) string {
	return filepath.Join(f.dir, fmt.Sprintf("task_%d.pid", taskID))
}

func (f *FileRegistry) Record(ctx context.Context, taskID int64, e Entry) error {
	tmp := f.path(taskID) + ".tmp"
	if err := os.WriteFile(tmp, []byte(e.String()), 0o644); err != nil {
		return fmt.Errorf("failed to record process of task %d: %w", taskID, err)
	}
	return os.Rename(tmp, f.path(taskID))
}

func (f *FileRegistry) Lookup(ctx context.Context, taskID int64) (Entry, bool, error) {
	data, err := os.ReadFile(f.path(taskID))
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to look up process of task %d: %w", taskID, err)
	}
	e, err := Parse(string(data))
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (f *FileRegistry) Remove(ctx context.Context, taskID int64) error {
	err := os.Remove(f.path(taskID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryRegistry keeps entries in memory.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[int64]Entry
}

// NewMemoryRegistry creates an empty in-memory registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[int64]Entry)}
}

func (m *MemoryRegistry) Record(ctx context.Context, taskID int64, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[taskID] = e
	return nil
}

func (m *MemoryRegistry) Lookup(ctx context.Context, taskID int64) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[taskID]
	return e, ok, nil
}

func (m *MemoryRegistry) Remove(ctx context.Context, taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, taskID)
	return nil
}
