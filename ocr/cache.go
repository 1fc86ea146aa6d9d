package ocr

import (
	"io"
	"sync"
)

// EngineCache holds constructed engines keyed by name so heavyweight setup
// (trained-data loading, native clients) is paid once per process. Reuse
// across sequential documents is safe; one document is in flight at a time
// per worker process.
type EngineCache struct {
	mu      sync.Mutex
	engines map[string]Engine
}

func NewEngineCache() *EngineCache {
	return &EngineCache{engines: make(map[string]Engine)}
}

// Get returns the cached engine for name, constructing it on first use.
func (c *EngineCache) Get(name string, build func() (Engine, error)) (Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.engines[name]; ok {
		return e, nil
	}
	e, err := build()
	if err != nil {
		return nil, err
	}
	c.engines[name] = e
	return e, nil
}

// Close releases every cached engine that holds native resources.
func (c *EngineCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for name, e := range c.engines {
		if closer, ok := e.(io.Closer); ok {
			if err := closer.Close(); err != nil && first == nil {
				first = err
			}
		}
		delete(c.engines, name)
	}
	return first
}
