package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"nhooyr.io/websocket"

	"flightdesk/internal/infra/config"
	"flightdesk/internal/infra/middleware"
)

const (
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
	readLimit       = 1 << 20
)

// wsSession is one WebSocket client of the MCP server.
type wsSession struct {
	id            string
	ws            *websocket.Conn
	sendCh        chan []byte
	notifications chan mcp.JSONRPCNotification
	done          chan struct{}
	closeOnce     sync.Once
	initialized   atomic.Bool
}

func (c *wsSession) Initialize()       { c.initialized.Store(true) }
func (c *wsSession) Initialized() bool { return c.initialized.Load() }
func (c *wsSession) SessionID() string { return c.id }

func (c *wsSession) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return c.notifications
}

func (c *wsSession) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

var _ server.ClientSession = (*wsSession)(nil)

// Server carries MCP JSON-RPC over WebSocket: one text frame per message.
type Server struct {
	mcp       *server.MCPServer
	addr      string
	path      string
	origins   []string
	perMinute int
	burst     int
	logger    *slog.Logger
	sessions  sync.Map // session ID -> *wsSession
	nextID    atomic.Uint64
	httpSrv   *http.Server
	boundAddr string
	ready     chan struct{}
	readyOnce sync.Once
}

// NewServer wraps mcpSrv in a WebSocket listener configured by cfg.
func NewServer(mcpSrv *server.MCPServer, cfg config.ToolServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	path := cfg.Path
	if path == "" {
		path = "/"
	}
	return &Server{
		mcp:       mcpSrv,
		addr:      cfg.Addr,
		path:      path,
		origins:   cfg.OriginPatterns,
		perMinute: cfg.ConnectionsPerMinute,
		burst:     cfg.ConnectionBurst,
		logger:    logger,
		ready:     make(chan struct{}),
	}
}

// Handler returns the HTTP handler that upgrades requests on the configured
// path, throttled per client when a connection limit is configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleUpgrade)
	return middleware.ClientRateLimit(s.perMinute, s.burst, s.logger)(mux)
}

// Start listens and serves until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("tool server listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.readyOnce.Do(func() { close(s.ready) })

	s.logger.Info("tool server started", "addr", s.boundAddr, "path", s.path)

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("tool server serve: %w", err)
	}
	return nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// BoundAddr returns the address the server bound to. Only valid after Ready.
func (s *Server) BoundAddr() string { return s.boundAddr }

// Stop closes every session and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.sessions.Range(func(key, value any) bool {
		sess := value.(*wsSession)
		sess.close()
		_ = sess.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.sessions.Delete(key)
		return true
	})

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	origins := s.origins
	if len(origins) == 0 {
		origins = config.DefaultOriginPatterns()
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(readLimit)

	sess := &wsSession{
		id:            fmt.Sprintf("ws-%d", s.nextID.Add(1)),
		ws:            ws,
		sendCh:        make(chan []byte, 64),
		notifications: make(chan mcp.JSONRPCNotification, 16),
		done:          make(chan struct{}),
	}

	ctx := r.Context()
	if err := s.mcp.RegisterSession(ctx, sess); err != nil {
		s.logger.Warn("register mcp session failed", "session", sess.id, "error", err)
		_ = ws.Close(websocket.StatusInternalError, "session registration failed")
		return
	}
	s.sessions.Store(sess.id, sess)
	s.logger.Info("tool client connected", "session", sess.id)

	ctx = s.mcp.WithContext(ctx, sess)
	go s.writeLoop(sess)
	s.readLoop(ctx, sess)

	sess.close()
	s.sessions.Delete(sess.id)
	s.mcp.UnregisterSession(context.Background(), sess.id)
	_ = ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("tool client disconnected", "session", sess.id)
}

func (s *Server) readLoop(ctx context.Context, sess *wsSession) {
	for {
		typ, data, err := sess.ws.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		go s.dispatch(ctx, sess, data)
	}
}

func (s *Server) writeLoop(sess *wsSession) {
	for {
		var payload []byte
		select {
		case <-sess.done:
			return
		case payload = <-sess.sendCh:
		case n := <-sess.notifications:
			b, err := json.Marshal(n)
			if err != nil {
				s.logger.Warn("marshal notification failed", "session", sess.id, "error", err)
				continue
			}
			payload = b
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := sess.ws.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			return
		}
	}
}

// dispatch hands one frame to the MCP server and queues its response.
// Notifications and responses produce no reply.
func (s *Server) dispatch(ctx context.Context, sess *wsSession, data []byte) {
	resp := s.mcp.HandleMessage(ctx, json.RawMessage(data))
	if resp == nil {
		return
	}
	b, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("marshal response failed", "session", sess.id, "error", err)
		return
	}
	select {
	case sess.sendCh <- b:
	case <-sess.done:
	}
}
