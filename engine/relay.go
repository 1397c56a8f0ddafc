// File: engine/relay.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package engine

import (
	"net"

	"github.com/momentics/gripcore/api"
)

// relayHandler forwards decoded WebSocket payloads onto a dialed backend
// connection. It implements api.Handler so it can be registered directly
// on a protocol.WSConnection via SetHandler.
type relayHandler struct {
	backend net.Conn
}

func (h *relayHandler) Handle(data any) error {
	buf, ok := data.(api.Buffer)
	if !ok {
		return nil
	}
	_, err := h.backend.Write(buf.Bytes())
	return err
}
