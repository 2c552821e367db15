package inmem

import (
	"context"
	"sync"
	"time"
)

type memoryClient struct {
	mtx     sync.RWMutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryClient keeps the denylist in process. It is lost on restart and
// not shared between replicas.
func NewMemoryClient() Client {
	return &memoryClient{revoked: map[string]time.Time{}, now: time.Now}
}

func (c *memoryClient) Revoke(_ context.Context, id string, until time.Time) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.revoked[id] = until
	return nil
}

func (c *memoryClient) IsRevoked(_ context.Context, id string) (bool, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	until, ok := c.revoked[id]
	return ok && c.now().Before(until), nil
}

func (c *memoryClient) Prune(_ context.Context, now time.Time) (int, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	var n int
	for id, until := range c.revoked {
		if !now.Before(until) {
			delete(c.revoked, id)
			n++
		}
	}
	return n, nil
}
