package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/whisperlive-lab/internal/audio"
)

// fakeServer is a minimal WhisperLive look-alike. It acknowledges the
// config, echoes a growing segment per received frame and optionally drops
// the TCP connection after dropAfter frames.
type fakeServer struct {
	ack       bool
	dropAfter int

	mu     sync.Mutex
	config map[string]any
	frames int
	bytes  int
}

func (s *fakeServer) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		mt, data, err := conn.ReadMessage()
		if err != nil || mt != websocket.TextMessage {
			t.Errorf("expected text config first, got type %d err %v", mt, err)
			return
		}
		var cfg map[string]any
		if err := json.Unmarshal(data, &cfg); err != nil {
			t.Errorf("config json: %v", err)
			return
		}
		s.mu.Lock()
		s.config = cfg
		s.mu.Unlock()
		uid, _ := cfg["uid"].(string)

		if s.ack {
			_ = conn.WriteJSON(map[string]any{"uid": uid, "message": MessageServerReady, "backend": "faster_whisper"})
		}
		words := []string{"the", "quick", "brown", "fox"}
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			s.mu.Lock()
			s.frames++
			s.bytes += len(data)
			n := s.frames
			s.mu.Unlock()

			if s.dropAfter > 0 && n >= s.dropAfter {
				// abrupt close, no close frame
				conn.UnderlyingConn().Close()
				return
			}
			text := strings.Join(words[:min(n, len(words))], " ")
			_ = conn.WriteJSON(map[string]any{
				"uid":      uid,
				"segments": []map[string]any{{"start": "0.000", "end": "1.000", "text": text}},
			})
		}
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"ws://host:9090":         "ws://host:9090",
		"http://host:9090":       "ws://host:9090",
		"https://host/path":      "wss://host/path",
		"host:9090":              "ws://host:9090",
		" wss://secure:443/ws  ": "wss://secure:443/ws",
	}
	for in, want := range tests {
		got, err := NormalizeEndpoint(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q err %v, want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "ftp://host", "ws://"} {
		if _, err := NormalizeEndpoint(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestClientTranscribeOverWebSocket(t *testing.T) {
	srv := &fakeServer{ack: true}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	opts := testOptions()
	c := &Client{Endpoint: ts.URL, Options: opts}
	cfg := NewSessionConfig("", "", TaskTranscribe, "small.en", true)
	buf := audio.Silence(time.Second)

	res := c.Transcribe(context.Background(), cfg, buf)
	if res.Outcome != OutcomePassed {
		t.Fatalf("outcome %s err %v", res.Outcome, res.Err)
	}
	if got := JoinText(res.Segments); got != "the quick brown fox" {
		t.Fatalf("transcript: %q", got)
	}
	if !res.Handshake.Acknowledged {
		t.Fatalf("expected acknowledgment")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.bytes != len(buf) || srv.frames != 4 {
		t.Fatalf("server saw %d frames / %d bytes", srv.frames, srv.bytes)
	}
	if srv.config["language"] != nil || srv.config["uid"] != cfg.UID {
		t.Fatalf("server config: %v", srv.config)
	}
}

func TestClientTranscribeDropMidUpload(t *testing.T) {
	srv := &fakeServer{ack: true, dropAfter: 3}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	c := &Client{Endpoint: ts.URL, Options: testOptions()}
	res := c.Transcribe(context.Background(), NewSessionConfig("", "en", TaskTranscribe, "small.en", true), audio.Silence(5*time.Second))
	if res.Outcome != OutcomeFailed || !IsTransport(res.Err) {
		t.Fatalf("outcome %s err %v", res.Outcome, res.Err)
	}
	if len(res.Segments) == 0 {
		t.Fatalf("partial transcript should be kept")
	}
}

func TestClientTranscribeConnectFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := &Client{Endpoint: url, Options: testOptions()}
	res := c.Transcribe(context.Background(), NewSessionConfig("", "", TaskTranscribe, "", true), audio.Silence(time.Second))
	var te *TransportError
	if res.Outcome != OutcomeFailed || !errors.As(res.Err, &te) || te.Phase != PhaseConnect {
		t.Fatalf("outcome %s err %v", res.Outcome, res.Err)
	}
}

func TestWebSocketConnReceiveTimeoutKeepsConnUsable(t *testing.T) {
	release := make(chan struct{})
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"SERVER_READY"}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer ts.Close()

	conn, err := Dial(context.Background(), ts.URL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Receive(context.Background(), 20*time.Millisecond); !errors.Is(err, ErrReceiveTimeout) {
		t.Fatalf("expected receive timeout, got %v", err)
	}
	close(release)
	data, err := conn.Receive(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("receive after timeout: %v", err)
	}
	if !strings.Contains(string(data), MessageServerReady) {
		t.Fatalf("unexpected message %s", data)
	}
	if err := conn.Close(); err != nil {
		t.Logf("close: %v", err)
	}
	if _, err := conn.Receive(context.Background(), time.Second); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("receive after close: %v", err)
	}
}
