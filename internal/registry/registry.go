package registry

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/seantiz/gradbridge/internal/foreign"
)

// Autograd function attributes resolved by RegisterAutogradFunction.
const (
	attrApply    = "apply"
	attrBackward = "backward"
	attrForward  = "forward"
)

// Registry is the single entry point the execution engine uses to reach
// interpreter objects. It is safe for concurrent use.
type Registry struct {
	bridge foreign.Bridge
	logger *slog.Logger

	mu       sync.Mutex
	pools    [numPools]*slotTable
	contexts *contextIndex
	forward  runnerSlot
	backward runnerSlot
	state    State
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration and teardown events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry backed by the given interpreter bridge.
func New(bridge foreign.Bridge, opts ...Option) *Registry {
	r := &Registry{
		bridge:   bridge,
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		contexts: newContextIndex(),
	}
	for p := range numPools {
		r.pools[p] = newSlotTable(p)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores h under key in pool. A handle already stored under the same
// key is replaced and, if owned, released. It fails only for a pool outside
// Pools() or a nil handle.
func (r *Registry) Register(pool Pool, key string, h foreign.Handle) error {
	if !pool.valid() {
		return fmt.Errorf("register %q: %w", key, ErrInvalidPool)
	}
	if o, ok := h.(*foreign.Owned); h == nil || ok && o == nil {
		return fmt.Errorf("register %s %q: %w", pool, key, ErrNilHandle)
	}
	r.register(pool, key, h)
	return nil
}

func (r *Registry) register(pool Pool, key string, h foreign.Handle) {
	r.mu.Lock()
	r.touch(pool)
	old, replaced := r.pools[pool].register(key, h)
	slotsGauge.WithLabelValues(pool.String()).Set(float64(r.pools[pool].len()))
	r.mu.Unlock()

	if replaced {
		released := foreign.Release(old)
		if released {
			releasesTotal.WithLabelValues(pool.String()).Inc()
		}
		r.logger.Info("registry: replaced slot",
			"pool", pool.String(),
			"key", key,
			"previous_ownership", old.Ownership().String(),
			"released", released,
		)
		return
	}
	r.logger.Debug("registry: registered slot",
		"pool", pool.String(),
		"key", key,
		"ownership", h.Ownership().String(),
	)
}

// touch records a registration against pool. Callers hold r.mu.
func (r *Registry) touch(pool Pool) {
	r.transitionOnRegister(pool.Global(), pool.String())
}

// transitionOnRegister moves the state after a registration of the given
// scope. Callers hold r.mu.
func (r *Registry) transitionOnRegister(global bool, what string) {
	next := afterRegistration(r.state, global)
	if next != r.state && r.state != StateUninitialized {
		r.logger.Debug("registry: reactivated by registration", "slot", what, "from", r.state.String())
	}
	r.state = next
}

// registerOwned takes a new reference to obj and stores it.
func (r *Registry) registerOwned(pool Pool, key string, obj foreign.Object) {
	r.register(pool, key, foreign.Acquire(r.bridge, obj))
}

// RegisterAutogradFunction registers the forward, backward and unsafe forward
// cores of an autograd function class under key. The cores are resolved from
// the class's apply, backward and forward attributes.
func (r *Registry) RegisterAutogradFunction(key string, fn foreign.Object) error {
	attrs := []string{attrApply, attrBackward, attrForward}
	cores := make([]*foreign.Owned, 0, len(attrs))
	for _, name := range attrs {
		obj, err := r.bridge.Attr(fn, name)
		if err != nil {
			for _, c := range cores {
				c.Release()
			}
			return fmt.Errorf("register autograd function %q: attribute %q: %w", key, name, err)
		}
		cores = append(cores, foreign.Steal(r.bridge, obj))
	}

	r.register(ForwardCore, key, cores[0])
	r.register(BackwardCore, key, cores[1])
	r.register(UnsafeForwardCore, key, cores[2])
	return nil
}

// RegisterForwardCore stores an owned reference to the forward core obj.
func (r *Registry) RegisterForwardCore(key string, obj foreign.Object) {
	r.registerOwned(ForwardCore, key, obj)
}

// RegisterBackwardCore stores an owned reference to the backward core obj.
func (r *Registry) RegisterBackwardCore(key string, obj foreign.Object) {
	r.registerOwned(BackwardCore, key, obj)
}

// RegisterUnsafeForwardCore stores an owned reference to the forward core used
// when safe-run mode is off.
func (r *Registry) RegisterUnsafeForwardCore(key string, obj foreign.Object) {
	r.registerOwned(UnsafeForwardCore, key, obj)
}

// RegisterShapeInferenceFunction stores an owned reference to a shape
// inference function.
func (r *Registry) RegisterShapeInferenceFunction(key string, obj foreign.Object) {
	r.registerOwned(ShapeInference, key, obj)
}

// RegisterInputAliasFunction stores an owned reference to an input alias
// function.
func (r *Registry) RegisterInputAliasFunction(key string, obj foreign.Object) {
	r.registerOwned(InputAlias, key, obj)
}

// RegisterMiscellaneousConstInput keeps obj alive until model teardown. Such
// constants are non-tensor inputs captured at export time. The returned key is
// the object's address.
func (r *Registry) RegisterMiscellaneousConstInput(obj foreign.Object) string {
	key := obj.String()
	r.registerOwned(MiscConstant, key, obj)
	return key
}

// Get returns the object stored under key as a borrowed view.
func (r *Registry) Get(pool Pool, key string) (foreign.Object, error) {
	if !pool.valid() {
		return foreign.Nil, fmt.Errorf("get %q: %w", key, ErrInvalidPool)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pools[pool].get(key)
}

// TryGet is Get for optional pools: absence is reported as false.
func (r *Registry) TryGet(pool Pool, key string) (foreign.Object, bool) {
	if !pool.valid() {
		return foreign.Nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pools[pool].tryGet(key)
}

// GetForwardCore returns the forward core registered under key.
func (r *Registry) GetForwardCore(key string) (foreign.Object, error) {
	return r.Get(ForwardCore, key)
}

// GetBackwardCore returns the backward core registered under key.
func (r *Registry) GetBackwardCore(key string) (foreign.Object, error) {
	return r.Get(BackwardCore, key)
}

// GetUnsafeForwardCore returns the unsafe forward core registered under key.
func (r *Registry) GetUnsafeForwardCore(key string) (foreign.Object, error) {
	return r.Get(UnsafeForwardCore, key)
}

// TryGetShapeInferenceFunction returns the shape inference function for key,
// if one was registered.
func (r *Registry) TryGetShapeInferenceFunction(key string) (foreign.Object, bool) {
	return r.TryGet(ShapeInference, key)
}

// TryGetInputAliasFunction returns the input alias function for key, if one
// was registered.
func (r *Registry) TryGetInputAliasFunction(key string) (foreign.Object, bool) {
	return r.TryGet(InputAlias, key)
}

// RegisterContext records the autograd context produced by a forward pass and
// returns the index its backward pass uses to find it. The registry borrows
// the context; it never releases it.
func (r *Registry) RegisterContext(ctx foreign.Object) int64 {
	index := r.registerContext(ctx)
	contextsRegisteredTotal.Inc()
	liveContexts.Inc()
	return index
}

func (r *Registry) registerContext(ctx foreign.Object) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitionOnRegister(false, "context")
	return r.contexts.register(ctx)
}

// UnregisterContext forgets index. Unknown or already removed indices are
// ignored.
func (r *Registry) UnregisterContext(index int64) {
	r.mu.Lock()
	removed := r.contexts.unregister(index)
	r.mu.Unlock()

	if removed {
		liveContexts.Dec()
	}
}

// GetContext returns the context registered under index.
func (r *Registry) GetContext(index int64) (foreign.Object, error) {
	r.mu.Lock()
	obj, ok := r.contexts.get(index)
	r.mu.Unlock()

	if !ok {
		return foreign.Nil, fmt.Errorf("context %d: %w", index, ErrKeyNotFound)
	}
	return obj, nil
}

// RegisterForwardRunner installs the glue used to run forward cores.
func (r *Registry) RegisterForwardRunner(addr foreign.Address) error {
	return r.registerRunner("forward", &r.forward, addr)
}

// RegisterBackwardRunner installs the glue used to run backward cores.
func (r *Registry) RegisterBackwardRunner(addr foreign.Address) error {
	return r.registerRunner("backward", &r.backward, addr)
}

func (r *Registry) registerRunner(kind string, slot *runnerSlot, addr foreign.Address) error {
	if addr == foreign.NilAddress {
		return fmt.Errorf("register %s runner: %w", kind, ErrNilRunner)
	}
	obj, err := r.bridge.WrapAddress(addr)
	if err != nil {
		return fmt.Errorf("register %s runner: wrap address: %w", kind, err)
	}
	holder := foreign.Steal(r.bridge, obj)

	r.mu.Lock()
	r.transitionOnRegister(true, kind+"_runner")
	old := slot.set(addr, holder)
	r.mu.Unlock()

	if old != nil && old.Release() {
		releasesTotal.WithLabelValues(runnerPoolLabel).Inc()
		r.logger.Info("registry: replaced runner", "kind", kind)
	}
	return nil
}

// GetForwardRunner returns the forward runner address, or NilAddress when
// none is registered.
func (r *Registry) GetForwardRunner() foreign.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forward.addr
}

// GetBackwardRunner returns the backward runner address, or NilAddress when
// none is registered.
func (r *Registry) GetBackwardRunner() foreign.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backward.addr
}

// UnregisterGlobalFunctions releases the runners and the process-scoped pools.
// It must run before the interpreter finalizes. Calling it again is a no-op.
func (r *Registry) UnregisterGlobalFunctions() TeardownReport {
	var runners []*foreign.Owned

	r.mu.Lock()
	report := TeardownReport{Phase: PhaseGlobal, From: r.state}
	drained := r.drainPools(true)
	for _, slot := range []*runnerSlot{&r.forward, &r.backward} {
		if h := slot.clear(); h != nil {
			runners = append(runners, h)
		}
	}
	r.state = afterGlobalTeardown(r.state)
	report.To = r.state
	r.mu.Unlock()

	report.Released = r.releaseDrained(drained)
	for _, h := range runners {
		if h.Release() {
			releasesTotal.WithLabelValues(runnerPoolLabel).Inc()
			report.Released++
		}
	}

	r.finishTeardown(report)
	return report
}

// UnregisterModelSpecificFunctions releases the model-scoped pools and drops
// every registered context without releasing it. It may run once per
// unloaded model and must run before the interpreter finalizes.
func (r *Registry) UnregisterModelSpecificFunctions() TeardownReport {
	r.mu.Lock()
	report := TeardownReport{Phase: PhaseModel, From: r.state}
	drained := r.drainPools(false)
	report.ContextsDropped = r.contexts.reset()
	r.state = afterModelTeardown(r.state)
	report.To = r.state
	r.mu.Unlock()

	liveContexts.Sub(float64(report.ContextsDropped))
	report.Released = r.releaseDrained(drained)

	r.finishTeardown(report)
	return report
}

// UnregisterFunctions runs the global teardown followed by the model teardown.
func (r *Registry) UnregisterFunctions() (global, model TeardownReport) {
	global = r.UnregisterGlobalFunctions()
	model = r.UnregisterModelSpecificFunctions()
	return global, model
}

// Shutdown tears the registry down completely. The host process calls it
// before finalizing the interpreter; nothing else will release the stored
// references.
func (r *Registry) Shutdown() {
	global, model := r.UnregisterFunctions()
	r.logger.Info("registry: shut down",
		"released", global.Released+model.Released,
		"contexts_dropped", model.ContextsDropped,
	)
}

// drainPools empties every pool whose scope matches global. Callers hold r.mu.
func (r *Registry) drainPools(global bool) map[Pool][]foreign.Handle {
	drained := make(map[Pool][]foreign.Handle)
	for _, t := range r.pools {
		if t.pool.Global() != global {
			continue
		}
		if hs := t.drain(); len(hs) > 0 {
			drained[t.pool] = hs
		}
		slotsGauge.WithLabelValues(t.pool.String()).Set(0)
	}
	return drained
}

// releaseDrained releases drained slot handles, attributing each release to
// its pool. It runs without r.mu held.
func (r *Registry) releaseDrained(drained map[Pool][]foreign.Handle) int {
	total := 0
	for pool, hs := range drained {
		n := releaseAll(hs)
		releasesTotal.WithLabelValues(pool.String()).Add(float64(n))
		total += n
	}
	return total
}

func (r *Registry) finishTeardown(report TeardownReport) {
	teardownsTotal.WithLabelValues(string(report.Phase)).Inc()
	if report.Noop() {
		r.logger.Debug("registry: teardown found nothing to release", "phase", string(report.Phase))
		return
	}
	r.logger.Info("registry: teardown",
		"phase", string(report.Phase),
		"from", report.From.String(),
		"to", report.To.String(),
		"released", report.Released,
		"contexts_dropped", report.ContextsDropped,
	)
}

// State returns the current lifecycle state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats is a point-in-time view of the registry for diagnostics.
type Stats struct {
	State          string              `json:"state"`
	Pools          map[string][]string `json:"pools"`
	Contexts       int                 `json:"contexts"`
	LastContext    int64               `json:"last_context"`
	ForwardRunner  bool                `json:"forward_runner"`
	BackwardRunner bool                `json:"backward_runner"`
}

// Stats returns the keys of every pool along with context and runner status.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		State:          r.state.String(),
		Pools:          make(map[string][]string, numPools),
		Contexts:       r.contexts.len(),
		LastContext:    r.contexts.last,
		ForwardRunner:  r.forward.registered(),
		BackwardRunner: r.backward.registered(),
	}
	for _, t := range r.pools {
		s.Pools[t.pool.String()] = t.keys()
	}
	return s
}
