package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/gripcore/control"
)

func TestWorkerLoopCapacityReproducesOriginalHeuristic(t *testing.T) {
	// 100*10 + 100*10 + 100 = 2100, the same formula the original
	// implementation's app.cpp applies to its session budget.
	assert.Equal(t, 2100, workerLoopCapacity(100))
	assert.Equal(t, 1100, workerLoopCapacity(0))
}

func TestSuffixServiceSpecsOnlySuffixesIPCSchemeSpecs(t *testing.T) {
	services := map[string]control.ServiceSpecs{
		"relay": {
			InSpecs:       []string{"ipc://relay-in", "tcp://127.0.0.1:5000"},
			OutSpecs:      []string{"ipc://relay-out"},
			InStreamSpecs: nil,
		},
	}

	out := suffixServiceSpecs(services, 3)

	relay := out["relay"]
	assert.Equal(t, []string{"ipc://relay-in-3", "tcp://127.0.0.1:5000"}, relay.InSpecs)
	assert.Equal(t, []string{"ipc://relay-out-3"}, relay.OutSpecs)
	assert.Nil(t, relay.InStreamSpecs)
}

func TestSuffixServiceSpecsDistinctPerWorker(t *testing.T) {
	services := map[string]control.ServiceSpecs{
		"relay": {InSpecs: []string{"ipc://relay-in"}},
	}

	a := suffixServiceSpecs(services, 0)
	b := suffixServiceSpecs(services, 1)

	assert.NotEqual(t, a["relay"].InSpecs, b["relay"].InSpecs)
}
