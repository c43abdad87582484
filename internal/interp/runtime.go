package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/seantiz/gradbridge/internal/foreign"
)

var (
	// ErrUnknownObject is returned when an operation names an object that
	// does not exist or was already freed.
	ErrUnknownObject = errors.New("unknown object")

	// ErrNoAttribute is returned by Attr when the attribute is missing.
	ErrNoAttribute = errors.New("attribute not found")

	// ErrNotCallable is returned when calling an object that has no body.
	ErrNotCallable = errors.New("object is not callable")

	// ErrUnknownRunner is returned when an address was never defined.
	ErrUnknownRunner = errors.New("unknown runner address")

	// ErrFinalized is returned by operations attempted after Finalize.
	ErrFinalized = errors.New("interpreter finalized")
)

// Func is the body of a callable object.
type Func func(ctx context.Context, args []foreign.Object) ([]foreign.Object, error)

// RunnerFunc is the body of a dispatch runner.
type RunnerFunc func(ctx context.Context, rt *Runtime, call foreign.RunnerCall) ([]foreign.Object, error)

type kind int

const (
	kindValue kind = iota
	kindFunction
	kindClass
	kindAddress
)

type object struct {
	kind  kind
	name  string
	refs  int
	fn    Func
	attrs map[string]foreign.Object
	addr  foreign.Address
}

var (
	_ foreign.Bridge  = (*Runtime)(nil)
	_ foreign.Invoker = (*Runtime)(nil)
)

// Runtime is an in-process, reference-counted object heap standing in for the
// embedded interpreter. Objects are freed when their count reaches zero.
// Reference operations after Finalize are recorded as violations instead of
// touching freed state.
type Runtime struct {
	logger *slog.Logger

	mu         sync.Mutex
	objects    map[foreign.Object]*object
	runners    map[foreign.Address]RunnerFunc
	nextObj    foreign.Object
	nextAddr   foreign.Address
	finalized  bool
	violations []string
}

// New creates an empty runtime.
func New(logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Runtime{
		logger:   logger,
		objects:  make(map[foreign.Object]*object),
		runners:  make(map[foreign.Address]RunnerFunc),
		nextObj:  0x1000,
		nextAddr: 0x7f0000,
	}
}

// alloc creates an object with one reference owned by the caller. Callers
// hold rt.mu.
func (rt *Runtime) alloc(o *object) foreign.Object {
	rt.nextObj += 0x10
	o.refs = 1
	rt.objects[rt.nextObj] = o
	return rt.nextObj
}

// NewObject creates a plain value object and returns a new reference.
func (rt *Runtime) NewObject(name string) foreign.Object {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.alloc(&object{kind: kindValue, name: name})
}

// NewFunction creates a callable object and returns a new reference.
func (rt *Runtime) NewFunction(name string, fn Func) foreign.Object {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.alloc(&object{kind: kindFunction, name: name, fn: fn})
}

// NewAutogradFunction creates an autograd function class with apply, forward
// and backward attributes. apply and forward share the forward body; the
// class holds one reference to each attribute.
func (rt *Runtime) NewAutogradFunction(name string, forward, backward Func) foreign.Object {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	apply := rt.alloc(&object{kind: kindFunction, name: name + ".apply", fn: forward})
	fwd := rt.alloc(&object{kind: kindFunction, name: name + ".forward", fn: forward})
	bwd := rt.alloc(&object{kind: kindFunction, name: name + ".backward", fn: backward})
	return rt.alloc(&object{
		kind: kindClass,
		name: name,
		attrs: map[string]foreign.Object{
			"apply":    apply,
			"forward":  fwd,
			"backward": bwd,
		},
	})
}

// DefineRunner exposes fn at a fresh address suitable for
// Registry.RegisterForwardRunner and RegisterBackwardRunner.
func (rt *Runtime) DefineRunner(fn RunnerFunc) foreign.Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.nextAddr += 0x40
	rt.runners[rt.nextAddr] = fn
	return rt.nextAddr
}

// IncRef adds a reference to obj.
func (rt *Runtime) IncRef(obj foreign.Object) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.finalized {
		rt.violate("incref %s after finalize", obj)
		return
	}
	o, ok := rt.objects[obj]
	if !ok {
		rt.violate("incref of freed object %s", obj)
		return
	}
	o.refs++
}

// DecRef drops a reference to obj, freeing it at zero.
func (rt *Runtime) DecRef(obj foreign.Object) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.finalized {
		rt.violate("decref %s after finalize", obj)
		return
	}
	rt.decref(obj)
}

// decref drops one reference. Callers hold rt.mu.
func (rt *Runtime) decref(obj foreign.Object) {
	o, ok := rt.objects[obj]
	if !ok {
		rt.violate("decref of freed object %s", obj)
		return
	}
	o.refs--
	if o.refs > 0 {
		return
	}
	delete(rt.objects, obj)
	for _, attr := range o.attrs {
		rt.decref(attr)
	}
}

// violate records a reference counting error. Callers hold rt.mu.
func (rt *Runtime) violate(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	rt.violations = append(rt.violations, msg)
	rt.logger.Error("interp: reference violation", "detail", msg)
}

// WrapAddress boxes a runner address into a new object.
func (rt *Runtime) WrapAddress(addr foreign.Address) (foreign.Object, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.finalized {
		return foreign.Nil, ErrFinalized
	}
	if _, ok := rt.runners[addr]; !ok {
		return foreign.Nil, fmt.Errorf("wrap %#x: %w", uintptr(addr), ErrUnknownRunner)
	}
	return rt.alloc(&object{kind: kindAddress, name: fmt.Sprintf("runner@%#x", uintptr(addr)), addr: addr}), nil
}

// Attr returns a new reference to the named attribute of obj.
func (rt *Runtime) Attr(obj foreign.Object, name string) (foreign.Object, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.finalized {
		return foreign.Nil, ErrFinalized
	}
	o, ok := rt.objects[obj]
	if !ok {
		return foreign.Nil, fmt.Errorf("attr %q of %s: %w", name, obj, ErrUnknownObject)
	}
	attr, ok := o.attrs[name]
	if !ok {
		return foreign.Nil, fmt.Errorf("attr %q of %s: %w", name, o.name, ErrNoAttribute)
	}
	rt.objects[attr].refs++
	return attr, nil
}

// Invoke runs the runner defined at addr. The runtime lock is not held while
// the runner executes.
func (rt *Runtime) Invoke(ctx context.Context, addr foreign.Address, call foreign.RunnerCall) ([]foreign.Object, error) {
	rt.mu.Lock()
	if rt.finalized {
		rt.mu.Unlock()
		return nil, ErrFinalized
	}
	fn, ok := rt.runners[addr]
	rt.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("invoke %#x: %w", uintptr(addr), ErrUnknownRunner)
	}
	return fn(ctx, rt, call)
}

// Call invokes the callable object fn with args.
func (rt *Runtime) Call(ctx context.Context, fn foreign.Object, args []foreign.Object) ([]foreign.Object, error) {
	rt.mu.Lock()
	if rt.finalized {
		rt.mu.Unlock()
		return nil, ErrFinalized
	}
	o, ok := rt.objects[fn]
	if !ok {
		rt.mu.Unlock()
		return nil, fmt.Errorf("call %s: %w", fn, ErrUnknownObject)
	}
	body, name := o.fn, o.name
	rt.mu.Unlock()

	if body == nil {
		return nil, fmt.Errorf("call %s: %w", name, ErrNotCallable)
	}
	return body(ctx, args)
}

// RefCount returns the number of references to obj, or zero once freed.
func (rt *Runtime) RefCount(obj foreign.Object) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if o, ok := rt.objects[obj]; ok {
		return o.refs
	}
	return 0
}

// Alive reports whether obj has not been freed.
func (rt *Runtime) Alive(obj foreign.Object) bool {
	return rt.RefCount(obj) > 0
}

// Live returns the number of objects that have not been freed.
func (rt *Runtime) Live() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.objects)
}

// Finalize shuts the runtime down. Objects still alive are abandoned; any
// later reference operation is recorded as a violation.
func (rt *Runtime) Finalize() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.finalized {
		return
	}
	rt.finalized = true
	rt.logger.Info("interp: finalized", "live_objects", len(rt.objects))
}

// Violations returns every reference counting error observed so far.
func (rt *Runtime) Violations() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.violations...)
}
