// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Control adapter implementing api.Control interface using control package primitives.

package adapters

import (
	"github.com/momentics/gripcore/api"
	"github.com/momentics/gripcore/control"
)

type ControlAdapter struct {
	config  *control.ConfigStore
	metrics *control.MetricsRegistry
	debug   *control.DebugProbes
}

var _ api.Control = (*ControlAdapter)(nil)

// NewControlAdapter returns the concrete adapter (rather than api.Control)
// so callers that also need Metrics, such as the Supervisor wiring a
// PromExporter onto the same registry, don't need a second registry.
func NewControlAdapter() *ControlAdapter {
	adapter := &ControlAdapter{
		config:  control.NewConfigStore(),
		metrics: control.NewMetricsRegistry(),
		debug:   control.NewDebugProbes(),
	}
	control.RegisterPlatformProbes(adapter.debug)
	return adapter
}

// Metrics exposes the adapter's underlying registry so a PromExporter can
// be wired onto the exact metrics this adapter's SetMetric writes into.
func (c *ControlAdapter) Metrics() *control.MetricsRegistry {
	return c.metrics
}

func (c *ControlAdapter) GetConfig() map[string]any {
	return c.config.GetSnapshot()
}
func (c *ControlAdapter) SetConfig(cfg map[string]any) error {
	c.config.SetConfig(cfg)
	return nil
}
func (c *ControlAdapter) Stats() map[string]any {
	stats := c.metrics.GetSnapshot()
	debugStats := c.debug.DumpState()
	combined := make(map[string]any)
	for k, v := range stats {
		combined[k] = v
	}
	for k, v := range debugStats {
		combined["debug."+k] = v
	}
	return combined
}
func (c *ControlAdapter) OnReload(fn func()) {
	c.config.OnReload(fn)
	control.RegisterReloadHook(fn)
}
func (c *ControlAdapter) SetMetric(key string, value any) {
	c.metrics.Set(key, value)
}
func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}
