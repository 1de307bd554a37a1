package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dapbridge/dap-cdp-bridge/internal/bridgelog"
)

// wireMessage is the CDP wire envelope, grounded on
// spencerandtheteagues-apex-build-platform/backend/internal/debugging's
// CDPMessage and daabr-chrome-vision/pkg/devtools's Message.
type wireMessage struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *wireError) Error() string {
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// WebSocketRpcClient is the one concrete RpcClient implementation: a
// gorilla/websocket connection to a CDP endpoint (a browser tab or
// V8-compatible inspector), demultiplexing responses by message id and
// events by method name — the same two-map shape as
// daabr-chrome-vision's Session (responseSubscribers/eventSubscribers).
type WebSocketRpcClient struct {
	conn *websocket.Conn

	// id tags every log line this connection emits, so multiple concurrent
	// bridge sessions (one per DAP client) can be told apart in shared logs —
	// the uuid analogue of apex-build-platform's per-session identifiers.
	id uuid.UUID

	nextID int64

	mu        sync.Mutex
	pending   map[int64]chan wireMessage
	listeners map[string][]chan<- Event
	closed    bool
	onClose   func(error)

	closeOnce sync.Once
}

// DialWebSocket connects to the given CDP websocket debugger URL and starts
// the read pump.
func DialWebSocket(ctx context.Context, url string) (*WebSocketRpcClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cdp: dial %s: %w", url, err)
	}
	c := &WebSocketRpcClient{
		conn:      conn,
		id:        uuid.New(),
		nextID:    1,
		pending:   make(map[int64]chan wireMessage),
		listeners: make(map[string][]chan<- Event),
	}
	bridgelog.L().Info("cdp: dialed", zap.String("conn", c.id.String()), zap.String("url", url))
	go c.readPump()
	return c, nil
}

// ConnID returns the connection's log tag, for callers (the Adapter) that
// want to fold it into their own session log fields.
func (c *WebSocketRpcClient) ConnID() string {
	return c.id.String()
}

func (c *WebSocketRpcClient) readPump() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			bridgelog.L().Debug("cdp: read pump exiting", zap.String("conn", c.id.String()), bridgelog.Err(err))
			c.failAllPending(err)
			c.fireOnClose(err)
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			bridgelog.L().Warn("cdp: malformed message", zap.String("conn", c.id.String()), bridgelog.Err(err))
			continue
		}
		if msg.ID != 0 {
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}
		if msg.Method != "" {
			c.dispatchEvent(msg.Method, msg.Params)
		}
	}
}

func (c *WebSocketRpcClient) dispatchEvent(method string, params []byte) {
	c.mu.Lock()
	subs := append([]chan<- Event(nil), c.listeners[method]...)
	c.mu.Unlock()
	for _, ch := range subs {
		ch <- Event{Method: method, Params: params}
	}
}

func (c *WebSocketRpcClient) failAllPending(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		ch <- wireMessage{ID: id, Error: &wireError{Message: cause.Error()}}
		delete(c.pending, id)
	}
}

// Call implements RpcClient.
func (c *WebSocketRpcClient) Call(ctx context.Context, method string, params any, out any) error {
	p, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("cdp: marshal params for %s: %w", method, err)
	}

	id := atomic.AddInt64(&c.nextID, 1)
	respCh := make(chan wireMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("cdp: connection closed")
	}
	c.pending[id] = respCh
	c.mu.Unlock()

	req := wireMessage{ID: id, Method: method, Params: p}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("cdp: marshal request %s: %w", method, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("cdp: send %s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("cdp: unmarshal result of %s: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	}
}

// OnClose implements RpcClient.
func (c *WebSocketRpcClient) OnClose(fn func(error)) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// fireOnClose runs the registered OnClose callback at most once, regardless
// of whether the read pump's error or an explicit Close gets there first.
func (c *WebSocketRpcClient) fireOnClose(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		fn := c.onClose
		c.mu.Unlock()
		if fn != nil {
			fn(cause)
		}
	})
}

// Subscribe implements RpcClient.
func (c *WebSocketRpcClient) Subscribe(method string, ch chan<- Event) func() {
	c.mu.Lock()
	c.listeners[method] = append(c.listeners[method], ch)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.listeners[method]
		for i, s := range subs {
			if s == ch {
				c.listeners[method] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Close implements RpcClient.
func (c *WebSocketRpcClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.fireOnClose(nil)
	return c.conn.Close()
}
