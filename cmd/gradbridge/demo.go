package main

import (
	"context"
	"fmt"

	"github.com/seantiz/gradbridge/internal/engine"
	"github.com/seantiz/gradbridge/internal/foreign"
	"github.com/seantiz/gradbridge/internal/interp"
)

func passthrough(_ context.Context, args []foreign.Object) ([]foreign.Object, error) {
	return args, nil
}

// gradOutputs drops the leading autograd context from a backward call.
func gradOutputs(_ context.Context, args []foreign.Object) ([]foreign.Object, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return args[1:], nil
}

// loadDemoModel registers a small identity model and runs one training step
// through it so the registry, journal and metrics have something to show.
func loadDemoModel(ctx context.Context, eng *engine.Engine, rt *interp.Runtime) error {
	class := rt.NewAutogradFunction("Identity", passthrough, gradOutputs)
	defer rt.DecRef(class)
	shape := rt.NewFunction("Identity.shape", passthrough)
	defer rt.DecRef(shape)

	if _, err := eng.LoadModel(ctx, engine.ModelDefinition{
		Name: "demo",
		Functions: []engine.Function{
			{Name: "Identity", Class: class, ShapeInference: shape},
		},
	}); err != nil {
		return err
	}

	x := rt.NewObject("x")
	defer rt.DecRef(x)
	res, err := eng.Forward(ctx, engine.Node{
		Name:          "Identity",
		Inputs:        []foreign.Object{x},
		RequiresGrads: []int64{1},
		Training:      true,
	})
	if err != nil {
		return fmt.Errorf("warmup forward: %w", err)
	}

	dy := rt.NewObject("dy")
	defer rt.DecRef(dy)
	if _, err := eng.Backward(ctx, res, []foreign.Object{dy}); err != nil {
		res.Release()
		return fmt.Errorf("warmup backward: %w", err)
	}
	return nil
}
