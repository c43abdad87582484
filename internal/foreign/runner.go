package foreign

import "context"

// RunnerCall carries the arguments the execution engine hands to a forward or
// backward runner.
type RunnerCall struct {
	FuncName        string
	Callback        Object
	RequiresGrads   []int64
	TensorTypeFlags []int64
	IsTrainingMode  bool
	InplaceMap      []int64
	KernelInvokeID  string
	SafeRunMode     bool
	TensorArgs      []Object
}

// Invoker dispatches into the interpreter. Implementations must not be called
// with any registry lock held.
type Invoker interface {
	// Invoke runs the runner registered at addr.
	Invoke(ctx context.Context, runner Address, call RunnerCall) ([]Object, error)

	// Call invokes a plain interpreter callable such as a shape inference
	// function.
	Call(ctx context.Context, fn Object, args []Object) ([]Object, error)
}
