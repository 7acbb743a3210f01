package readiness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/whisperlive-lab/internal/logging"
)

// DialTimeout bounds a single TCP probe.
const DialTimeout = 2 * time.Second

// Status is the result of one probe.
type Status struct {
	Address string        `json:"address"`
	Ready   bool          `json:"ready"`
	Latency time.Duration `json:"latency_ns"`
	Error   string        `json:"error,omitempty"`
}

// Address turns an endpoint URL or host:port into a dialable host:port.
// Missing ports default to 80 for ws/http and 443 for wss/https.
func Address(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", errors.New("endpoint is empty")
	}
	if !strings.Contains(endpoint, "://") {
		if _, _, err := net.SplitHostPort(endpoint); err == nil {
			return endpoint, nil
		}
		endpoint = "ws://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("endpoint %q has no host", endpoint)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "wss", "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(host, port), nil
}

// Probe reports whether something accepts TCP connections at endpoint.
func Probe(ctx context.Context, endpoint string) Status {
	addr, err := Address(endpoint)
	if err != nil {
		return Status{Address: endpoint, Error: err.Error()}
	}
	d := net.Dialer{Timeout: DialTimeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	st := Status{Address: addr, Latency: time.Since(start)}
	if err != nil {
		st.Error = err.Error()
		return st
	}
	_ = conn.Close()
	st.Ready = true
	return st
}

// WaitReady probes endpoint every interval until it is ready or ctx ends.
// onProbe, when set, sees every probe result.
func WaitReady(ctx context.Context, endpoint string, interval time.Duration, onProbe func(Status)) (Status, error) {
	if interval <= 0 {
		interval = DialTimeout
	}
	attempt := 0
	for {
		attempt++
		st := Probe(ctx, endpoint)
		if onProbe != nil {
			onProbe(st)
		}
		if st.Ready {
			logging.InfowCtx(ctx, "endpoint ready", "address", st.Address, "attempts", attempt)
			return st, nil
		}
		logging.DebugwCtx(ctx, "endpoint not ready", "address", st.Address, "attempt", attempt, "error", st.Error)

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return st, fmt.Errorf("waiting for %s: %w", endpoint, ctx.Err())
		case <-t.C:
		}
	}
}
