package registry

import (
	"math"

	"github.com/seantiz/gradbridge/internal/foreign"
)

// firstContextIndex is the value the counter starts from; the first index
// handed out is firstContextIndex+1.
const firstContextIndex int64 = 0x1000000

// contextIndex correlates forward invocations with the autograd context their
// backward pass consumes. Contexts are borrowed: their lifetime belongs to the
// forward outputs, never to the registry.
type contextIndex struct {
	last    int64
	entries map[int64]foreign.Borrowed
}

func newContextIndex() *contextIndex {
	return &contextIndex{
		last:    firstContextIndex,
		entries: make(map[int64]foreign.Borrowed),
	}
}

// register allocates the next index. Indices are never decremented or reused;
// running out panics with ErrIndexExhausted.
func (c *contextIndex) register(obj foreign.Object) int64 {
	if c.last == math.MaxInt64 {
		panic(ErrIndexExhausted)
	}
	c.last++
	c.entries[c.last] = foreign.Borrow(obj)
	return c.last
}

func (c *contextIndex) unregister(index int64) bool {
	if _, ok := c.entries[index]; !ok {
		return false
	}
	delete(c.entries, index)
	return true
}

func (c *contextIndex) get(index int64) (foreign.Object, bool) {
	b, ok := c.entries[index]
	return b.Object(), ok
}

// reset drops every entry without releasing anything. The counter keeps its
// position so indices from an unloaded model never alias new contexts.
func (c *contextIndex) reset() int {
	n := len(c.entries)
	clear(c.entries)
	return n
}

func (c *contextIndex) len() int {
	return len(c.entries)
}
