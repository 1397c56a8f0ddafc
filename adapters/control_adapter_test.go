package adapters_test

import (
	"testing"
	"time"

	"github.com/momentics/gripcore/adapters"
)

func TestControlAdapterBasic(t *testing.T) {
	ctrl := adapters.NewControlAdapter()
	cfg := ctrl.GetConfig()
	if len(cfg) != 0 {
		t.Error("Expected empty config on init")
	}
	err := ctrl.SetConfig(map[string]any{"k": 1})
	if err != nil {
		t.Fatal(err)
	}
	applied := ctrl.GetConfig()
	if applied["k"] != 1 {
		t.Error("SetConfig did not apply")
	}
	called := make(chan struct{}, 1)
	ctrl.OnReload(func() { called <- struct{}{} })
	ctrl.SetConfig(map[string]any{"x": 2})
	// reload hooks run on their own goroutine; allow the hook time to run
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Error("Reload hook not called")
	}
}
