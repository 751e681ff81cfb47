package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/CallRelay/internal/app/orch"
	"github.com/dkeye/CallRelay/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

// readPump handles one session's frames strictly in arrival order. On exit the
// session leaves the registry before the socket is closed.
func (ctl *SignalWSController) readPump(ctx context.Context, sess *core.Session, c *WsSignalConn, cancel context.CancelFunc) {
	sid := sess.ID()
	defer func() {
		ctl.release(sess)
		cancel()
		c.Close()
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		ctl.handleSignal(sid, c, data)
	}
}

// release unregisters sess. Rate-limit history is keyed by identity, so it is
// only dropped when sess was still the registered owner.
func (ctl *SignalWSController) release(sess *core.Session) {
	if ctl.Orch.Disconnect(sess) && ctl.Limiter != nil {
		ctl.Limiter.Forget(sess.ID())
	}
}

func (ctl *SignalWSController) handleSignal(sid core.SessionID, c *WsSignalConn, data []byte) {
	m, err := core.ParseMessage(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		return
	}
	if m.Type != core.EventPing && !ctl.Orch.Routes(m.Type) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", string(m.Type)).Msg("unknown event")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", string(m.Type)).Msg("rate limited")
		return
	}

	if m.Type == core.EventPing {
		ctl.handlePing(c)
		return
	}

	err = ctl.Orch.Dispatch(sid, m)
	switch {
	case err == nil:
	case errors.Is(err, orch.ErrUnknownTarget),
		errors.Is(err, core.ErrConnClosed),
		errors.Is(err, core.ErrBackpressure):
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", string(m.Type)).Msg("not delivered")
	default:
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", string(m.Type)).Msg("dropped")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, m core.Message) {
	b, err := m.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON encode")
		return
	}
	_ = c.TrySend(b)
}
