package registry_test

import (
	"sync"
	"testing"

	"github.com/seantiz/gradbridge/internal/interp"
	"github.com/seantiz/gradbridge/internal/registry"
)

func TestInitGlobalConstructsOnce(t *testing.T) {
	registry.ResetGlobal()
	t.Cleanup(registry.ResetGlobal)

	if registry.Global() != nil {
		t.Fatal("Global() before InitGlobal should be nil")
	}

	rt := interp.New(nil)
	const callers = 16
	got := make([]*registry.Registry, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Go(func() {
			got[i] = registry.InitGlobal(rt)
		})
	}
	wg.Wait()

	for i, reg := range got {
		if reg == nil || reg != got[0] {
			t.Fatalf("caller %d got %p, want %p", i, reg, got[0])
		}
	}
	if registry.Global() != got[0] {
		t.Error("Global() does not return the initialized registry")
	}
}
