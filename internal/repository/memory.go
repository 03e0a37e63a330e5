package repository

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStateRepository keeps state in process memory. It backs tests and
// takes over when Redis is unreachable.
type MemoryStateRepository struct {
	states  sync.Map
	counter sync.Mutex
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemoryStateRepository) load(key string) ([]byte, bool) {
	val, ok := r.states.Load(key)
	if !ok {
		return nil, false
	}
	entry := val.(memoryEntry)
	if entry.expired(r.now()) {
		r.states.Delete(key)
		return nil, false
	}
	return entry.value, true
}

func (r *MemoryStateRepository) store(key string, value []byte) {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if r.ttl > 0 {
		entry.expiresAt = r.now().Add(r.ttl)
	}
	r.states.Store(key, entry)
}

func (r *MemoryStateRepository) Get(_ context.Context, key string) ([]byte, error) {
	val, ok := r.load(key)
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), val...), nil
}

func (r *MemoryStateRepository) Set(_ context.Context, key string, value []byte) error {
	r.store(key, value)
	return nil
}

func (r *MemoryStateRepository) Delete(_ context.Context, key string) error {
	r.states.Delete(key)
	return nil
}

func (r *MemoryStateRepository) GetDel(_ context.Context, key string) ([]byte, error) {
	val, ok := r.states.LoadAndDelete(key)
	if !ok {
		return nil, nil
	}
	entry := val.(memoryEntry)
	if entry.expired(r.now()) {
		return nil, nil
	}
	return entry.value, nil
}

func (r *MemoryStateRepository) Incr(_ context.Context, key string) (int64, error) {
	r.counter.Lock()
	defer r.counter.Unlock()

	var current int64
	if val, ok := r.load(key); ok {
		parsed, err := strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return 0, errNotInteger
		}
		current = parsed
	}
	current++
	r.store(key, []byte(strconv.FormatInt(current, 10)))
	return current, nil
}
