package registry

import (
	"sync"
	"sync/atomic"

	"github.com/seantiz/gradbridge/internal/foreign"
)

// Process-wide registry and its initialization guard.
var (
	globalRegistry atomic.Pointer[Registry]
	globalOnce     sync.Once
)

// InitGlobal constructs the process-wide registry on first call and returns
// it. Concurrent first calls construct exactly one instance; arguments to
// later calls are ignored.
func InitGlobal(bridge foreign.Bridge, opts ...Option) *Registry {
	globalOnce.Do(func() {
		globalRegistry.Store(New(bridge, opts...))
	})
	return globalRegistry.Load()
}

// Global returns the process-wide registry, or nil if InitGlobal has not run.
func Global() *Registry {
	return globalRegistry.Load()
}

// ResetGlobal forgets the process-wide registry so tests can build a fresh
// one. It does not tear the old instance down and is not safe for concurrent
// use.
func ResetGlobal() {
	globalOnce = sync.Once{}
	globalRegistry.Store(nil)
}
