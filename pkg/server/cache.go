package server

import (
	"sync"

	"github.com/solvo-project/solvo/pkg/compile"
)

// resultCache memoizes results by document fingerprint so repeated
// solves of an unchanged catalog model skip the solver entirely.
type resultCache struct {
	mu      sync.RWMutex
	results map[string]*compile.Result
}

func newResultCache() *resultCache {
	return &resultCache{results: map[string]*compile.Result{}}
}

func (c *resultCache) get(fingerprint string) (*compile.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.results[fingerprint]
	return result, ok
}

func (c *resultCache) put(result *compile.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[result.Fingerprint] = result
}
