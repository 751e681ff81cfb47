package signal

import "github.com/dkeye/CallRelay/internal/core"

// handlePing answers an application-level ping; browsers cannot send
// WebSocket ping frames themselves.
func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, core.Message{Type: core.EventPong})
}
