package service

import (
	"context"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// keyGuard admits one holder per key: an open document, a compaction run.
// The zero value is ready to use.
type keyGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
	wg   sync.WaitGroup
}

// TryLock takes key and reports whether it was free.
func (g *keyGuard) TryLock(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return false
	}
	if g.held == nil {
		g.held = make(map[string]struct{})
	}
	g.held[key] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock releases key. Releasing a key that is not held does nothing.
func (g *keyGuard) Unlock(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; !busy {
		return
	}
	delete(g.held, key)
	g.wg.Done()
}

// Held returns the held keys, sorted.
func (g *keyGuard) Held() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := lo.Keys(g.held)
	slices.Sort(keys)
	return keys
}

// WaitAll blocks until every key is released or ctx is done.
func (g *keyGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
