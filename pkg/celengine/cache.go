package celengine

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "celengine_program_cache_hits_total",
		Help: "Compiled CEL programs served from cache.",
	})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{
		Name: "celengine_program_cache_miss_total",
		Help: "CEL expressions compiled on demand.",
	})
)

// ProgramCache compiles each expression once per process. Concurrent misses
// for the same expression share a single compilation.
type ProgramCache struct {
	env   *cel.Env
	mu    sync.RWMutex
	items map[string]cel.Program
	group singleflight.Group
}

func NewProgramCache(env *cel.Env) *ProgramCache {
	return &ProgramCache{
		env:   env,
		items: make(map[string]cel.Program),
	}
}

func (c *ProgramCache) Get(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.items[expr]
	c.mu.RUnlock()
	if ok {
		cacheHits.Inc()
		return prg, nil
	}

	v, err, _ := c.group.Do(expr, func() (any, error) {
		cacheMiss.Inc()
		prg, err := Compile(c.env, expr)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items[expr] = prg
		c.mu.Unlock()
		return prg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(cel.Program), nil
}

func (c *ProgramCache) Invalidate(expr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, expr)
}

func (c *ProgramCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
