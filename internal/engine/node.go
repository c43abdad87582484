package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/gradbridge/internal/foreign"
	"github.com/seantiz/gradbridge/internal/model"
	"github.com/seantiz/gradbridge/internal/registry"
)

// Node is one invocation of an autograd function in the graph.
type Node struct {
	// Name is the key the function was registered under.
	Name            string
	Inputs          []foreign.Object
	RequiresGrads   []int64
	TensorTypeFlags []int64
	InplaceMap      []int64
	Training        bool
	// SafeRun selects the forward core (the class's apply) over the unsafe
	// forward core.
	SafeRun bool
}

// ForwardResult holds the outputs of a forward node and, in training, the
// autograd context its backward pass needs. Outputs are owned by whatever
// the runner's convention is; the engine only manages the context.
type ForwardResult struct {
	Name    string
	Outputs []foreign.Object
	// ContextIndex is zero when the forward produced no context.
	ContextIndex int64

	gradCtx  *foreign.Owned
	registry *registry.Registry
}

// HasContext reports whether the forward produced an autograd context.
func (r *ForwardResult) HasContext() bool {
	return r.ContextIndex != 0
}

// Release unregisters the context and drops the engine's reference to it.
// Backward calls it on success; callers that abandon a result call it
// themselves. It is safe to call more than once.
func (r *ForwardResult) Release() {
	if r.gradCtx == nil {
		return
	}
	r.registry.UnregisterContext(r.ContextIndex)
	r.gradCtx.Release()
}

// Forward runs node through the registered forward runner. A non-nil
// context returned by the runner is registered and owned by the result.
func (e *Engine) Forward(ctx context.Context, node Node) (*ForwardResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runner := e.registry.GetForwardRunner()
	if runner == foreign.NilAddress {
		return nil, fmt.Errorf("forward %q: %w", node.Name, ErrMissingRunner)
	}

	var core foreign.Object
	var err error
	if node.SafeRun {
		core, err = e.registry.GetForwardCore(node.Name)
	} else {
		core, err = e.registry.GetUnsafeForwardCore(node.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("forward %q: %w", node.Name, err)
	}

	call := foreign.RunnerCall{
		FuncName:        node.Name,
		Callback:        core,
		RequiresGrads:   node.RequiresGrads,
		TensorTypeFlags: node.TensorTypeFlags,
		IsTrainingMode:  node.Training,
		InplaceMap:      node.InplaceMap,
		KernelInvokeID:  model.NewID(),
		SafeRunMode:     node.SafeRun,
		TensorArgs:      node.Inputs,
	}
	out, err := e.invoke(ctx, directionForward, runner, call)
	if err != nil {
		return nil, fmt.Errorf("forward %q: %w", node.Name, err)
	}
	if len(out) == 0 {
		nodeErrorsTotal.WithLabelValues(directionForward).Inc()
		return nil, fmt.Errorf("forward %q: %w", node.Name, ErrMalformedOutput)
	}

	res := &ForwardResult{Name: node.Name, Outputs: out[1:], registry: e.registry}
	if out[0] != foreign.Nil {
		res.gradCtx = foreign.Steal(e.rt, out[0])
		res.ContextIndex = e.registry.RegisterContext(out[0])
	}

	e.logger.Debug("engine: forward",
		"function", node.Name,
		"kernel_invoke_id", call.KernelInvokeID,
		"context_index", res.ContextIndex,
	)
	return res, nil
}

// Backward runs the backward core of res's function with the output
// gradients grads. On success the forward context is unregistered and
// released.
func (e *Engine) Backward(ctx context.Context, res *ForwardResult, grads []foreign.Object) ([]foreign.Object, error) {
	if !res.HasContext() {
		return nil, fmt.Errorf("backward %q: %w", res.Name, ErrNoContext)
	}

	runner := e.registry.GetBackwardRunner()
	if runner == foreign.NilAddress {
		return nil, fmt.Errorf("backward %q: %w", res.Name, ErrMissingRunner)
	}

	gradCtx, err := e.registry.GetContext(res.ContextIndex)
	if err != nil {
		return nil, fmt.Errorf("backward %q: %w", res.Name, err)
	}
	core, err := e.registry.GetBackwardCore(res.Name)
	if err != nil {
		return nil, fmt.Errorf("backward %q: %w", res.Name, err)
	}

	args := make([]foreign.Object, 0, len(grads)+1)
	args = append(args, gradCtx)
	args = append(args, grads...)

	out, err := e.invoke(ctx, directionBackward, runner, foreign.RunnerCall{
		FuncName:       res.Name,
		Callback:       core,
		IsTrainingMode: true,
		KernelInvokeID: model.NewID(),
		TensorArgs:     args,
	})
	if err != nil {
		return nil, fmt.Errorf("backward %q: %w", res.Name, err)
	}

	res.Release()
	return out, nil
}

// ForwardBatch runs independent nodes concurrently, at most maxWorkers at a
// time. Results are in node order. If any node fails, the contexts of the
// nodes that succeeded are released and the first error is returned.
func (e *Engine) ForwardBatch(ctx context.Context, nodes []Node) ([]*ForwardResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)

	results := make([]*ForwardResult, len(nodes))
	for i, node := range nodes {
		g.Go(func() error {
			res, err := e.Forward(gctx, node)
			if err != nil {
				return fmt.Errorf("node %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, res := range results {
			if res != nil {
				res.Release()
			}
		}
		return nil, err
	}
	return results, nil
}

// invoke calls the runner at addr and records its duration. No registry lock
// is held, so the runner may call back into the registry.
func (e *Engine) invoke(ctx context.Context, direction string, addr foreign.Address, call foreign.RunnerCall) ([]foreign.Object, error) {
	start := time.Now()
	out, err := e.rt.Invoke(ctx, addr, call)
	nodeDuration.WithLabelValues(direction).Observe(time.Since(start).Seconds())
	if err != nil {
		nodeErrorsTotal.WithLabelValues(direction).Inc()
		return nil, err
	}
	return out, nil
}

// InferShapes calls the shape inference helper registered for name. ok is
// false when none is registered.
func (e *Engine) InferShapes(ctx context.Context, name string, args []foreign.Object) (out []foreign.Object, ok bool, err error) {
	return e.callHelper(ctx, e.registry.TryGetShapeInferenceFunction, "shape inference", name, args)
}

// InputAlias calls the input alias helper registered for name. ok is false
// when none is registered.
func (e *Engine) InputAlias(ctx context.Context, name string, args []foreign.Object) (out []foreign.Object, ok bool, err error) {
	return e.callHelper(ctx, e.registry.TryGetInputAliasFunction, "input alias", name, args)
}

func (e *Engine) callHelper(
	ctx context.Context,
	lookup func(string) (foreign.Object, bool),
	what, name string,
	args []foreign.Object,
) ([]foreign.Object, bool, error) {
	fn, ok := lookup(name)
	if !ok {
		return nil, false, nil
	}
	out, err := e.rt.Call(ctx, fn, args)
	if err != nil {
		return nil, true, fmt.Errorf("%s %q: %w", what, name, err)
	}
	return out, true, nil
}
