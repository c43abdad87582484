package registry

import (
	"fmt"
	"sort"

	"github.com/seantiz/gradbridge/internal/foreign"
)

// Pool selects one of the named slot tables.
type Pool int

const (
	ForwardCore Pool = iota
	BackwardCore
	UnsafeForwardCore
	ShapeInference
	InputAlias
	MiscConstant

	numPools
)

var poolNames = [numPools]string{
	ForwardCore:       "forward_core",
	BackwardCore:      "backward_core",
	UnsafeForwardCore: "unsafe_forward_core",
	ShapeInference:    "shape_inference",
	InputAlias:        "input_alias",
	MiscConstant:      "misc_constant",
}

func (p Pool) valid() bool {
	return p >= 0 && p < numPools
}

func (p Pool) String() string {
	if !p.valid() {
		return fmt.Sprintf("pool(%d)", int(p))
	}
	return poolNames[p]
}

// Global reports whether the pool outlives individual models. Global pools
// are released by UnregisterGlobalFunctions, the rest by
// UnregisterModelSpecificFunctions.
func (p Pool) Global() bool {
	return p == ShapeInference || p == InputAlias
}

// Pools returns every pool in declaration order.
func Pools() []Pool {
	out := make([]Pool, 0, numPools)
	for p := range numPools {
		out = append(out, p)
	}
	return out
}

// slotTable maps keys to handles for one pool. It is not safe for concurrent
// use; the Registry serializes access.
type slotTable struct {
	pool    Pool
	entries map[string]foreign.Handle
}

func newSlotTable(pool Pool) *slotTable {
	return &slotTable{
		pool:    pool,
		entries: make(map[string]foreign.Handle),
	}
}

// register stores h under key and returns the handle it displaced, if any.
// The caller releases the displaced handle once the registry lock is dropped.
func (t *slotTable) register(key string, h foreign.Handle) (foreign.Handle, bool) {
	old, ok := t.entries[key]
	t.entries[key] = h
	if !ok || old == h {
		return nil, false
	}
	return old, true
}

func (t *slotTable) get(key string) (foreign.Object, error) {
	h, ok := t.entries[key]
	if !ok {
		return foreign.Nil, fmt.Errorf("%s %q: %w", t.pool, key, ErrKeyNotFound)
	}
	return h.Object(), nil
}

func (t *slotTable) tryGet(key string) (foreign.Object, bool) {
	h, ok := t.entries[key]
	if !ok {
		return foreign.Nil, false
	}
	return h.Object(), true
}

// drain empties the table and hands every stored handle to the caller.
// Draining an empty table returns nil, which makes repeated teardown a no-op.
func (t *slotTable) drain() []foreign.Handle {
	if len(t.entries) == 0 {
		return nil
	}
	out := make([]foreign.Handle, 0, len(t.entries))
	for _, h := range t.entries {
		out = append(out, h)
	}
	clear(t.entries)
	return out
}

func (t *slotTable) len() int {
	return len(t.entries)
}

func (t *slotTable) keys() []string {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// releaseAll releases every owned handle in hs and returns how many
// references were given back.
func releaseAll(hs []foreign.Handle) int {
	n := 0
	for _, h := range hs {
		if foreign.Release(h) {
			n++
		}
	}
	return n
}
