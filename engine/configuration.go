// File: engine/configuration.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package engine

import (
	"go.uber.org/zap"

	"github.com/momentics/gripcore/control"
	"github.com/momentics/gripcore/domainmap"
)

// Configuration is the per-worker slice of Settings handed to New: worker
// identity, session budget, the shared DomainMap, and opaque IPC specs
// that are carried but not read by this Engine, since the
// concrete Engine here is an intentionally modest TCP/WebSocket relay, not
// a full multi-transport proxy core.
type Configuration struct {
	WorkerID    int
	ListenAddr  string
	SessionsMax int
	DomainMap   *domainmap.DomainMap
	Debug       bool
	QuietCheck  bool
	IPCSpecs    map[string]control.ServiceSpecs
	Logger      *zap.Logger
}
