// Package signal is the websocket transport between browsers and the
// signaling coordinator.
package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/VideoRooms/internal/app/orch"
	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/dkeye/VideoRooms/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// SessionNameKey is where the cookie session keeps the display name.
const SessionNameKey = "name"

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	SendBuffer   int
	JoinLimit    int
	JoinInterval time.Duration
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	opts    Options
	limiter *RoomRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.JoinLimit <= 0 {
		opts.JoinLimit = 5
	}
	if opts.JoinInterval <= 0 {
		opts.JoinInterval = 10 * time.Second
	}
	return &SignalWSController{
		Orch:    o,
		opts:    opts,
		limiter: NewRoomRateLimiter(opts.JoinLimit, opts.JoinInterval),
	}
}

// WsSignalConn queues frames for the write pump.
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
		return websocket.ErrCloseSent
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

// wsClient is the coordinator's handle on one websocket connection.
type wsClient struct {
	sid  core.SessionID
	conn core.SignalConnection
	// name is the display name remembered in the cookie session.
	name string
	// handlers tracks requests running off the read loop.
	handlers conc.WaitGroup
}

func (c *wsClient) SessionID() core.SessionID { return c.sid }

func (c *wsClient) Send(msg core.Message) error {
	b, err := encode(msg)
	if err != nil {
		return err
	}
	return c.conn.TrySend(b)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves the connection until it
// closes or ctx ends. Every connection gets a fresh session id.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	name := domain.DefaultName
	if v, ok := sessions.Default(c).Get(SessionNameKey).(string); ok && v != "" {
		name = v
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	client := &wsClient{
		sid:  core.SessionID(uuid.NewString()),
		conn: conn,
		name: name,
	}
	log.Info().Str("module", "signal").Str("sid", string(client.sid)).Str("name", name).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(client.sid, client, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, client, conn)
}
