package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/meltforce/tempo/internal/models"
)

// ErrNotFound is returned by a LocalCache with no entry for the owner.
var ErrNotFound = errors.New("no cached session")

// LocalCache is a synchronous key/value cache of serialized sessions.
type LocalCache interface {
	Load(owner string) ([]byte, error)
	Save(owner string, data []byte, lastUpdated time.Time) error
	Delete(owner string) error
	// LastUpdated reports the lastUpdated passed to the latest Save, or
	// ErrNotFound.
	LastUpdated(owner string) (time.Time, error)
}

// RemoteStore is a per-user durable mirror holding at most one session. A
// second write replaces the first. Fetch returns nil, nil when empty.
type RemoteStore interface {
	Fetch(ctx context.Context) (*models.Session, error)
	Upsert(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context) error
}

// MemoryCache is a LocalCache held in memory.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	times   map[string]time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte), times: make(map[string]time.Time)}
}

func (c *MemoryCache) Load(owner string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[owner]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (c *MemoryCache) Save(owner string, data []byte, lastUpdated time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[owner] = append([]byte(nil), data...)
	c.times[owner] = lastUpdated
	return nil
}

func (c *MemoryCache) Delete(owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, owner)
	delete(c.times, owner)
	return nil
}

func (c *MemoryCache) LastUpdated(owner string) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.times[owner]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return ts, nil
}

// MemoryRemote is a RemoteStore held in memory. Like the server it ignores
// writes older than the stored session.
type MemoryRemote struct {
	mu      sync.Mutex
	session *models.Session
	writes  int
}

func (r *MemoryRemote) Fetch(context.Context) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Clone(), nil
}

func (r *MemoryRemote) Upsert(_ context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if r.session != nil && r.session.LastUpdated.After(s.LastUpdated) {
		return nil
	}
	r.session = s.Clone()
	return nil
}

func (r *MemoryRemote) Delete(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = nil
	return nil
}

// Writes returns the number of upserts received.
func (r *MemoryRemote) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}
