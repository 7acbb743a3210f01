package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/whisperlive-lab/internal/logging"
	"github.com/whisperlive-lab/internal/stream"
)

// ClientWrapper connects to an MCP server over websocket and manages the
// client session lifecycle.
type ClientWrapper struct {
	client  *sdk.Client
	session *sdk.ClientSession
	stop    context.CancelFunc
}

// NewClientWrapper creates a new wrapper with the given name/version.
func NewClientWrapper(name, version string) *ClientWrapper {
	impl := &sdk.Implementation{Name: name, Version: version}
	return &ClientWrapper{client: sdk.NewClient(impl, nil)}
}

// ConnectWebSocket dials the server's websocket endpoint and starts a
// session with a background keepalive.
func (w *ClientWrapper) ConnectWebSocket(ctx context.Context, rawurl string) error {
	target, err := stream.NormalizeEndpoint(rawurl)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("mcp dial %s: %w", target, err)
	}
	sess, err := w.client.Connect(ctx, NewWebSocketTransport(conn), nil)
	if err != nil {
		_ = conn.Close()
		return err
	}
	w.session = sess

	kctx, cancel := context.WithCancel(context.Background())
	w.stop = cancel
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-kctx.Done():
				return
			case <-ticker.C:
				_ = sess.Ping(kctx, nil)
			}
		}
	}()
	logging.Infow("mcp client connected", "url", target)
	return nil
}

// CallText calls a tool and returns its concatenated text content. A tool
// result flagged as an error is returned with a non-nil error.
func (w *ClientWrapper) CallText(ctx context.Context, name string, args map[string]any) (string, error) {
	if w.session == nil {
		return "", errors.New("mcp client not connected")
	}
	res, err := w.session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, c := range res.Content {
		if t, ok := c.(*sdk.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	if res.IsError {
		return b.String(), fmt.Errorf("tool %s reported an error", name)
	}
	return b.String(), nil
}

func (w *ClientWrapper) Close() error {
	if w.stop != nil {
		w.stop()
	}
	if w.session != nil {
		return w.session.Close()
	}
	return nil
}
