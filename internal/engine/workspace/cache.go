package workspace

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/shared/observability"

	"golang.org/x/sync/singleflight"
)

// Cache keeps loaded workspaces keyed by module root. Concurrent Resolve
// calls for the same root share one load. Close drops every handle; the
// cache cannot be used afterwards.
type Cache struct {
	opts  Options
	lru   *LRUCache[string, *Workspace]
	group singleflight.Group

	mu     sync.RWMutex
	closed bool
}

func NewCache(capacity int, opts Options) *Cache {
	return &Cache{
		opts: opts,
		lru: NewLRUCache[string, *Workspace](capacity, func(root string, _ *Workspace) {
			slog.Debug("workspace released", "root", root)
		}),
	}
}

// Resolve returns the workspace of the module containing path.
func (c *Cache) Resolve(ctx context.Context, path string) (*Workspace, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, errors.New(errors.CodeInternal, "workspace cache is closed")
	}

	root, modulePath, err := FindModule(path)
	if err != nil {
		return nil, err
	}

	if ws, ok := c.lru.Get(root); ok {
		observability.WorkspaceCacheTotal.WithLabelValues("hit").Inc()
		return ws, nil
	}
	observability.WorkspaceCacheTotal.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(root, func() (any, error) {
		if ws, ok := c.lru.Get(root); ok {
			return ws, nil
		}
		ws, err := Load(ctx, root, modulePath, c.opts)
		if err != nil {
			return nil, err
		}
		c.lru.Put(root, ws)
		return ws, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Workspace), nil
}

// Invalidate forgets the workspace of the module rooted at root.
func (c *Cache) Invalidate(root string) {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	c.lru.Evict(abs)
}

func (c *Cache) Len() int {
	return c.lru.Len()
}

func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.lru.Clear()
	return nil
}
