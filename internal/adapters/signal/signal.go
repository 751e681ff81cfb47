package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/CallRelay/internal/app/orch"
	"github.com/dkeye/CallRelay/internal/config"
	"github.com/dkeye/CallRelay/internal/core"
	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
	// CheckOrigin vets the browser Origin header; nil allows everything.
	CheckOrigin func(origin string) bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReadLimit:   cfg.ReadLimit,
		PingPeriod:  cfg.PingPeriod,
		PongWait:    cfg.PongWait,
		WriteWait:   cfg.WriteWait,
		SendBuffer:  cfg.SendBuffer,
		CheckOrigin: cfg.OriginAllowed,
	}
}

type SignalWSController struct {
	Orch *orch.Orchestrator
	// Limiter is optional; nil disables inbound rate limiting.
	Limiter *EventRateLimiter

	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, limiter *EventRateLimiter, opts Options) *SignalWSController {
	ctl := &SignalWSController{
		Orch:    o,
		Limiter: limiter,
		opts:    opts,
	}
	ctl.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return opts.CheckOrigin == nil || opts.CheckOrigin(r.Header.Get("Origin"))
		},
	}
	return ctl
}

// WsSignalConn is the transport end of one session. TrySend may be called from
// any goroutine; only writePump writes to the socket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal upgrades the request and runs the session until the socket
// closes. The connection id doubles as the session identity.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	meta := domain.NewConnection(uuid.NewString(), ws.RemoteAddr().String())
	sess := core.NewSession(meta, conn)
	log.Info().Str("module", "signal").Str("sid", meta.ID).Str("remote", meta.RemoteAddr).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	kill := func() {
		cancel()
		conn.Close()
	}

	go ctl.writePump(ctx, conn)
	if err := ctl.Orch.Connect(sess, kill); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", meta.ID).Msg("connect")
		ctl.release(sess)
		kill()
		return
	}
	go ctl.readPump(ctx, sess, conn, cancel)
}
