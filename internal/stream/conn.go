package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// Conn is the full-duplex message channel a session runs over. Writes come
// from one goroutine at a time; Receive is called by the aggregator only.
type Conn interface {
	WriteBinary(ctx context.Context, data []byte) error
	WriteJSON(ctx context.Context, v any) error
	// Receive waits at most wait for the next inbound message. It returns
	// ErrReceiveTimeout when the wait elapses and ErrConnClosed once the
	// peer is gone. A zero wait blocks until a message or ctx.
	Receive(ctx context.Context, wait time.Duration) ([]byte, error)
	Close() error
}

const (
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	closeGrace          = time.Second
)

// NormalizeEndpoint accepts ws, wss, http, https or bare host:port forms and
// returns a websocket URL.
func NormalizeEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("endpoint is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", raw)
	}
	return u.String(), nil
}

// Dial opens a websocket to endpoint and wraps it as a Conn.
func Dial(ctx context.Context, endpoint string, header http.Header) (Conn, error) {
	target, err := NormalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: defaultDialTimeout,
	}
	c, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http status %d)", target, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return NewWebSocketConn(c), nil
}

type readResult struct {
	data []byte
	err  error
}

// wsConn adapts a gorilla connection. A single reader goroutine owns
// ReadMessage so that a receive timeout never poisons the connection the way
// an expired read deadline would.
type wsConn struct {
	conn     *websocket.Conn
	incoming chan readResult
	done     chan struct{}

	writeMu      sync.Mutex
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn takes ownership of c and starts its reader.
func NewWebSocketConn(c *websocket.Conn) Conn {
	w := &wsConn{
		conn:         c,
		incoming:     make(chan readResult, 16),
		done:         make(chan struct{}),
		writeTimeout: defaultWriteTimeout,
	}
	go w.readLoop()
	return w
}

func (w *wsConn) readLoop() {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case w.incoming <- readResult{err: err}:
			case <-w.done:
			}
			close(w.incoming)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		select {
		case w.incoming <- readResult{data: data}:
		case <-w.done:
			return
		}
	}
}

func (w *wsConn) Receive(ctx context.Context, wait time.Duration) ([]byte, error) {
	var timeout <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.done:
		return nil, ErrConnClosed
	case res, ok := <-w.incoming:
		if !ok {
			return nil, ErrConnClosed
		}
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnClosed, res.err)
		}
		return res.data, nil
	case <-timeout:
		return nil, ErrReceiveTimeout
	}
}

func (w *wsConn) WriteBinary(ctx context.Context, data []byte) error {
	return w.write(ctx, websocket.BinaryMessage, data)
}

func (w *wsConn) WriteJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.write(ctx, websocket.TextMessage, data)
}

func (w *wsConn) write(ctx context.Context, messageType int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	deadline := time.Now().Add(w.writeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = w.conn.SetWriteDeadline(deadline)
	defer w.conn.SetWriteDeadline(time.Time{})

	// cancellation unblocks a write stuck on a full socket buffer
	stop := context.AfterFunc(ctx, func() {
		_ = w.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := w.conn.WriteMessage(messageType, data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Close sends a normal close frame and tears down the socket. It is safe to
// call more than once.
func (w *wsConn) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}
