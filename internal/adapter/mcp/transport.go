package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"nhooyr.io/websocket"
)

const defaultReadLimit = 1 << 20

// WebSocketTransport carries MCP JSON-RPC messages over a WebSocket, one
// text frame per message. It implements transport.BidirectionalInterface.
type WebSocketTransport struct {
	url       string
	dialOpts  *websocket.DialOptions
	readLimit int64
	logger    *slog.Logger

	startOnce sync.Once
	startErr  error
	ws        *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc

	mu        sync.Mutex
	responses map[string]chan *transport.JSONRPCResponse

	handlerMu      sync.RWMutex
	onNotification func(mcp.JSONRPCNotification)
	onRequest      transport.RequestHandler

	done      chan struct{}
	closeOnce sync.Once
}

var _ transport.BidirectionalInterface = (*WebSocketTransport)(nil)

// TransportOption configures a WebSocketTransport.
type TransportOption func(*WebSocketTransport)

// WithDialOptions sets the options used when dialing the endpoint.
func WithDialOptions(opts *websocket.DialOptions) TransportOption {
	return func(t *WebSocketTransport) { t.dialOpts = opts }
}

// WithReadLimit caps the size of a single inbound frame.
func WithReadLimit(n int64) TransportOption {
	return func(t *WebSocketTransport) {
		if n > 0 {
			t.readLimit = n
		}
	}
}

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) TransportOption {
	return func(t *WebSocketTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewWebSocketTransport creates an unstarted transport for url.
func NewWebSocketTransport(url string, opts ...TransportOption) *WebSocketTransport {
	t := &WebSocketTransport{
		url:       url,
		readLimit: defaultReadLimit,
		logger:    slog.New(slog.DiscardHandler),
		responses: make(map[string]chan *transport.JSONRPCResponse),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start dials the endpoint and launches the read loop. ctx bounds the dial
// only; the connection lives until Close.
func (t *WebSocketTransport) Start(ctx context.Context) error {
	t.startOnce.Do(func() {
		ws, _, err := websocket.Dial(ctx, t.url, t.dialOpts)
		if err != nil {
			t.startErr = fmt.Errorf("dial %s: %w", t.url, err)
			t.closeDone()
			return
		}
		ws.SetReadLimit(t.readLimit)
		t.ws = ws
		t.ctx, t.cancel = context.WithCancel(context.Background())
		go t.readLoop()
		t.logger.Debug("mcp websocket connected", "url", t.url)
	})
	return t.startErr
}

// SendRequest writes request and waits for the response with the same ID.
func (t *WebSocketTransport) SendRequest(ctx context.Context, request transport.JSONRPCRequest) (*transport.JSONRPCResponse, error) {
	select {
	case <-t.done:
		return nil, transport.ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if t.ws == nil {
		return nil, errors.New("websocket transport not started")
	}

	b, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	key := request.ID.String()
	ch := make(chan *transport.JSONRPCResponse, 1)
	t.mu.Lock()
	t.responses[key] = ch
	t.mu.Unlock()
	forget := func() {
		t.mu.Lock()
		delete(t.responses, key)
		t.mu.Unlock()
	}

	if err := t.ws.Write(ctx, websocket.MessageText, b); err != nil {
		forget()
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-t.done:
		select {
		case resp := <-ch:
			return resp, nil
		default:
		}
		forget()
		return nil, transport.ErrTransportClosed
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}

// SendNotification writes a notification without waiting for a reply.
func (t *WebSocketTransport) SendNotification(ctx context.Context, notification mcp.JSONRPCNotification) error {
	select {
	case <-t.done:
		return transport.ErrTransportClosed
	default:
	}
	if t.ws == nil {
		return errors.New("websocket transport not started")
	}
	b, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return t.ws.Write(ctx, websocket.MessageText, b)
}

// SetNotificationHandler sets the callback for server notifications.
func (t *WebSocketTransport) SetNotificationHandler(handler func(mcp.JSONRPCNotification)) {
	t.handlerMu.Lock()
	t.onNotification = handler
	t.handlerMu.Unlock()
}

// SetRequestHandler sets the callback for server-initiated requests.
func (t *WebSocketTransport) SetRequestHandler(handler transport.RequestHandler) {
	t.handlerMu.Lock()
	t.onRequest = handler
	t.handlerMu.Unlock()
}

// Close sends a normal closure and unblocks pending requests. Safe to call
// more than once.
func (t *WebSocketTransport) Close() error {
	t.closeOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		t.closeDone()
		if t.ws != nil {
			if err := t.ws.Close(websocket.StatusNormalClosure, ""); err != nil {
				t.logger.Debug("mcp websocket close", "error", err)
			}
		}
	})
	return nil
}

// GetSessionId returns "": WebSocket sessions are identified by the connection.
func (t *WebSocketTransport) GetSessionId() string { return "" }

func (t *WebSocketTransport) closeDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.done:
	default:
		close(t.done)
	}
}

func (t *WebSocketTransport) readLoop() {
	defer t.closeDone()
	for {
		typ, data, err := t.ws.Read(t.ctx)
		if err != nil {
			if t.ctx.Err() == nil {
				t.logger.Debug("mcp websocket read ended", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		t.route(data)
	}
}

// route classifies one inbound frame as notification, request or response.
func (t *WebSocketTransport) route(data []byte) {
	var base struct {
		ID     *mcp.RequestId `json:"id,omitempty"`
		Method string         `json:"method,omitempty"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		t.logger.Warn("mcp websocket: malformed frame", "error", err)
		return
	}

	switch {
	case base.Method != "" && base.ID == nil:
		var n mcp.JSONRPCNotification
		if err := json.Unmarshal(data, &n); err != nil {
			return
		}
		t.handlerMu.RLock()
		h := t.onNotification
		t.handlerMu.RUnlock()
		if h != nil {
			h(n)
		}

	case base.Method != "":
		var req transport.JSONRPCRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		go t.handleRequest(req)

	default:
		var resp transport.JSONRPCResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return
		}
		key := resp.ID.String()
		t.mu.Lock()
		ch, ok := t.responses[key]
		delete(t.responses, key)
		t.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}

func (t *WebSocketTransport) handleRequest(req transport.JSONRPCRequest) {
	t.handlerMu.RLock()
	h := t.onRequest
	t.handlerMu.RUnlock()

	var resp *transport.JSONRPCResponse
	if h == nil {
		resp = transport.NewJSONRPCErrorResponse(req.ID, mcp.METHOD_NOT_FOUND, "no request handler configured", nil)
	} else {
		r, err := h(t.ctx, req)
		switch {
		case err != nil:
			resp = transport.NewJSONRPCErrorResponse(req.ID, mcp.INTERNAL_ERROR, err.Error(), nil)
		case r == nil:
			return
		default:
			resp = r
		}
	}

	b, err := json.Marshal(resp)
	if err != nil {
		t.logger.Warn("mcp websocket: marshal response failed", "error", err)
		return
	}
	if err := t.ws.Write(t.ctx, websocket.MessageText, b); err != nil {
		t.logger.Debug("mcp websocket: write response failed", "method", req.Method, "error", err)
	}
}
