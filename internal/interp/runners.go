package interp

import (
	"context"
	"fmt"
	"slices"

	"github.com/seantiz/gradbridge/internal/foreign"
)

// NewContext creates an autograd context object and returns a new reference.
func (rt *Runtime) NewContext(funcName string) foreign.Object {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.alloc(&object{kind: kindValue, name: funcName + ".ctx"})
}

// ForwardRunner is the default forward dispatch glue. It calls the forward
// core and, in training mode with at least one input requiring a gradient,
// prepends a fresh autograd context to the outputs. The caller owns the
// context reference. Outside training the first output is foreign.Nil.
func ForwardRunner(ctx context.Context, rt *Runtime, call foreign.RunnerCall) ([]foreign.Object, error) {
	outputs, err := rt.Call(ctx, call.Callback, call.TensorArgs)
	if err != nil {
		return nil, fmt.Errorf("forward %s: %w", call.FuncName, err)
	}

	gradCtx := foreign.Nil
	if call.IsTrainingMode && slices.Contains(call.RequiresGrads, 1) {
		gradCtx = rt.NewContext(call.FuncName)
	}
	return append([]foreign.Object{gradCtx}, outputs...), nil
}

// BackwardRunner is the default backward dispatch glue. TensorArgs carries
// the autograd context followed by the output gradients.
func BackwardRunner(ctx context.Context, rt *Runtime, call foreign.RunnerCall) ([]foreign.Object, error) {
	if len(call.TensorArgs) == 0 || call.TensorArgs[0] == foreign.Nil {
		return nil, fmt.Errorf("backward %s: missing autograd context", call.FuncName)
	}
	grads, err := rt.Call(ctx, call.Callback, call.TensorArgs)
	if err != nil {
		return nil, fmt.Errorf("backward %s: %w", call.FuncName, err)
	}
	return grads, nil
}
