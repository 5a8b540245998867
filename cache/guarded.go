package cache

import (
	"sync"

	"github.com/lotus-web3/nffs"
)

// Guarded shares one Cache between goroutines. Reclaim can touch any entry
// while serving an unrelated one, so the whole cache is a single critical
// section; Do is the only way to reach it.
type Guarded struct {
	lk sync.Mutex
	c  *Cache
}

func NewGuarded(l nffs.Log, opts ...Option) (*Guarded, error) {
	c, err := New(l, opts...)
	if err != nil {
		return nil, err
	}
	return &Guarded{c: c}, nil
}

// Do runs cb with exclusive access to the cache. Refs obtained inside cb may
// be kept, but are only meaningful inside later Do calls.
func (g *Guarded) Do(cb func(c *Cache) error) error {
	g.lk.Lock()
	defer g.lk.Unlock()

	return cb(g.c)
}

// Refresh is Cache.Refresh under the lock, suitable as a log relocation hook.
func (g *Guarded) Refresh() error {
	return g.Do(func(c *Cache) error {
		return c.Refresh()
	})
}

func (g *Guarded) Stats() Stats {
	g.lk.Lock()
	defer g.lk.Unlock()

	return g.c.Stats()
}
