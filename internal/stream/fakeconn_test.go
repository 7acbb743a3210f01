package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// fakeConn is a scripted in-memory Conn. onText and onBinary run on the
// writing goroutine and may push inbound messages.
type fakeConn struct {
	mu         sync.Mutex
	texts      [][]byte
	binaries   [][]byte
	writeTimes []time.Time

	inbound   chan []byte
	dropped   chan struct{}
	dropOnce  sync.Once
	closed    bool
	failWrite error

	onText   func(c *fakeConn, data []byte)
	onBinary func(c *fakeConn, index int, data []byte)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 256),
		dropped: make(chan struct{}),
	}
}

func (c *fakeConn) push(v any) {
	switch m := v.(type) {
	case []byte:
		c.inbound <- m
	case string:
		c.inbound <- []byte(m)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		c.inbound <- b
	}
}

// drop simulates the peer vanishing: receives fail and writes error.
func (c *fakeConn) drop() {
	c.dropOnce.Do(func() {
		c.mu.Lock()
		c.failWrite = errors.New("broken pipe")
		c.mu.Unlock()
		close(c.dropped)
	})
}

func (c *fakeConn) WriteBinary(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.failWrite != nil {
		err := c.failWrite
		c.mu.Unlock()
		return err
	}
	cp := append([]byte(nil), data...)
	c.binaries = append(c.binaries, cp)
	c.writeTimes = append(c.writeTimes, time.Now())
	idx := len(c.binaries) - 1
	hook := c.onBinary
	c.mu.Unlock()
	if hook != nil {
		hook(c, idx, cp)
	}
	return nil
}

func (c *fakeConn) WriteJSON(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.failWrite != nil {
		err := c.failWrite
		c.mu.Unlock()
		return err
	}
	c.texts = append(c.texts, b)
	hook := c.onText
	c.mu.Unlock()
	if hook != nil {
		hook(c, b)
	}
	return nil
}

func (c *fakeConn) Receive(ctx context.Context, wait time.Duration) ([]byte, error) {
	var timeout <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}
	// queued messages win over a drop that happened after they arrived
	select {
	case m := <-c.inbound:
		return m, nil
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m := <-c.inbound:
		return m, nil
	case <-c.dropped:
		return nil, ErrConnClosed
	case <-timeout:
		return nil, ErrReceiveTimeout
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) binaryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.binaries)
}

func (c *fakeConn) sentBytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, b := range c.binaries {
		out = append(out, b...)
	}
	return out
}

// result builds a server result message.
func result(segs ...Segment) map[string]any {
	return map[string]any{"uid": "test", "segments": segs}
}

func seg(start, end, text string) Segment {
	var s Segment
	_ = s.Start.UnmarshalJSON([]byte(`"` + start + `"`))
	_ = s.End.UnmarshalJSON([]byte(`"` + end + `"`))
	s.Text = text
	return s
}

var (
	serverReady = map[string]any{"uid": "test", "message": MessageServerReady, "backend": "faster_whisper"}
	disconnect  = map[string]any{"uid": "test", "message": MessageDisconnect}
)

// testOptions scales the stock timings down so sessions finish quickly.
func testOptions() Options {
	return Options{
		FrameSize:        16384,
		ByteRate:         64000,
		PacingFactor:     0.8,
		ReceiveTimeout:   20 * time.Millisecond,
		HandshakeTimeout: 200 * time.Millisecond,
		MaxIdleTimeouts:  5,
	}
}
