package worklog

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned by staging operations on an entry that a running
// push or revert currently holds.
var ErrBusy = errors.New("entry is being reconciled")

// claimTable serializes reconciliation operations over overlapping keys
// while letting disjoint ones proceed.
type claimTable struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func newClaimTable() *claimTable {
	return &claimTable{held: make(map[string]chan struct{})}
}

// acquire blocks until every key is free, then holds all of them.
func (c *claimTable) acquire(ctx context.Context, keys []string) (func(), error) {
	for {
		c.mu.Lock()
		wait := c.busy(keys)
		if wait == nil {
			release := c.take(keys)
			c.mu.Unlock()
			return release, nil
		}
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// tryAcquire holds the keys only if none is currently held.
func (c *claimTable) tryAcquire(keys []string) (func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy(keys) != nil {
		return nil, false
	}
	return c.take(keys), true
}

func (c *claimTable) busy(keys []string) chan struct{} {
	for _, k := range keys {
		if ch, ok := c.held[k]; ok {
			return ch
		}
	}
	return nil
}

func (c *claimTable) take(keys []string) func() {
	done := make(chan struct{})
	for _, k := range keys {
		c.held[k] = done
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			for _, k := range keys {
				if c.held[k] == done {
					delete(c.held, k)
				}
			}
			c.mu.Unlock()
			close(done)
		})
	}
}
