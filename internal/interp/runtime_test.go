package interp

import (
	"context"
	"errors"
	"testing"

	"github.com/seantiz/gradbridge/internal/foreign"
)

func identity(_ context.Context, args []foreign.Object) ([]foreign.Object, error) {
	return args, nil
}

func TestObjectFreedAtZero(t *testing.T) {
	rt := New(nil)
	obj := rt.NewObject("x")

	rt.IncRef(obj)
	if got := rt.RefCount(obj); got != 2 {
		t.Fatalf("RefCount = %d, want 2", got)
	}
	rt.DecRef(obj)
	rt.DecRef(obj)
	if rt.Alive(obj) {
		t.Error("object still alive after last DecRef")
	}
	if v := rt.Violations(); len(v) != 0 {
		t.Errorf("unexpected violations: %v", v)
	}
}

func TestDoubleFreeIsViolation(t *testing.T) {
	rt := New(nil)
	obj := rt.NewObject("x")
	rt.DecRef(obj)
	rt.DecRef(obj)

	if v := rt.Violations(); len(v) != 1 {
		t.Errorf("violations = %v, want exactly one", v)
	}
}

func TestAttrReturnsNewReference(t *testing.T) {
	rt := New(nil)
	class := rt.NewAutogradFunction("Op", identity, identity)

	apply, err := rt.Attr(class, "apply")
	if err != nil {
		t.Fatalf("Attr(apply): %v", err)
	}
	if got := rt.RefCount(apply); got != 2 {
		t.Errorf("apply RefCount = %d, want 2 (class + caller)", got)
	}

	// Dropping the class leaves the caller's reference alive.
	rt.DecRef(class)
	if !rt.Alive(apply) {
		t.Fatal("apply freed while caller still holds a reference")
	}
	rt.DecRef(apply)
	if rt.Live() != 0 {
		t.Errorf("Live() = %d, want 0", rt.Live())
	}
}

func TestAttrMissing(t *testing.T) {
	rt := New(nil)
	obj := rt.NewObject("plain")

	_, err := rt.Attr(obj, "apply")
	if !errors.Is(err, ErrNoAttribute) {
		t.Errorf("Attr error = %v, want ErrNoAttribute", err)
	}
}

func TestWrapAddress(t *testing.T) {
	rt := New(nil)
	addr := rt.DefineRunner(ForwardRunner)

	obj, err := rt.WrapAddress(addr)
	if err != nil {
		t.Fatalf("WrapAddress: %v", err)
	}
	if got := rt.RefCount(obj); got != 1 {
		t.Errorf("RefCount = %d, want 1", got)
	}

	if _, err := rt.WrapAddress(foreign.Address(0xdead)); !errors.Is(err, ErrUnknownRunner) {
		t.Errorf("WrapAddress unknown error = %v, want ErrUnknownRunner", err)
	}
}

func TestForwardRunnerCreatesContextInTraining(t *testing.T) {
	rt := New(nil)
	ctx := context.Background()
	core := rt.NewFunction("Op.apply", identity)
	addr := rt.DefineRunner(ForwardRunner)
	x := rt.NewObject("x")

	out, err := rt.Invoke(ctx, addr, foreign.RunnerCall{
		FuncName:       "Op",
		Callback:       core,
		RequiresGrads:  []int64{1},
		IsTrainingMode: true,
		TensorArgs:     []foreign.Object{x},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0] == foreign.Nil || !rt.Alive(out[0]) {
		t.Errorf("expected live context as first output, got %v", out[0])
	}
	if out[1] != x {
		t.Errorf("out[1] = %v, want %v", out[1], x)
	}

	out, err = rt.Invoke(ctx, addr, foreign.RunnerCall{
		FuncName:   "Op",
		Callback:   core,
		TensorArgs: []foreign.Object{x},
	})
	if err != nil {
		t.Fatalf("Invoke inference: %v", err)
	}
	if out[0] != foreign.Nil {
		t.Errorf("inference context = %v, want Nil", out[0])
	}
}

func TestBackwardRunnerRequiresContext(t *testing.T) {
	rt := New(nil)
	core := rt.NewFunction("Op.backward", identity)
	addr := rt.DefineRunner(BackwardRunner)

	_, err := rt.Invoke(context.Background(), addr, foreign.RunnerCall{FuncName: "Op", Callback: core})
	if err == nil {
		t.Error("expected error without context, got nil")
	}
}

func TestCallNotCallable(t *testing.T) {
	rt := New(nil)
	obj := rt.NewObject("value")

	_, err := rt.Call(context.Background(), obj, nil)
	if !errors.Is(err, ErrNotCallable) {
		t.Errorf("Call error = %v, want ErrNotCallable", err)
	}
}

func TestFinalizeRecordsLateReleases(t *testing.T) {
	rt := New(nil)
	obj := rt.NewObject("x")

	rt.Finalize()
	rt.Finalize()
	rt.DecRef(obj)

	if v := rt.Violations(); len(v) != 1 {
		t.Errorf("violations = %v, want exactly one", v)
	}
	if _, err := rt.Call(context.Background(), obj, nil); !errors.Is(err, ErrFinalized) {
		t.Errorf("Call after finalize error = %v, want ErrFinalized", err)
	}
}
