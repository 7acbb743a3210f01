package stream

import (
	"context"
	"errors"
	"time"

	"github.com/whisperlive-lab/internal/logging"
)

// HandshakeResult describes how session setup went.
type HandshakeResult struct {
	Acknowledged bool
	Backend      string
	Waited       time.Duration
	// Pending holds messages that arrived during the wait but belong to
	// the transcript stream; the aggregator replays them first.
	Pending [][]byte
}

// Handshake sends cfg and waits up to timeout for SERVER_READY. A missing
// acknowledgment returns ErrHandshakeTimeout, which callers treat as a
// warning. Send failures and DISCONNECT come back as *TransportError. A zero
// timeout skips the wait.
func Handshake(ctx context.Context, conn Conn, cfg SessionConfig, timeout time.Duration) (HandshakeResult, error) {
	var res HandshakeResult
	if err := conn.WriteJSON(ctx, cfg); err != nil {
		return res, &TransportError{Phase: PhaseHandshake, Err: err}
	}
	logging.DebugwCtx(ctx, "session config sent",
		"language", cfg.LanguageName(),
		"task", cfg.Task,
		"model", cfg.Model,
		"use_vad", cfg.UseVAD,
	)
	if timeout <= 0 {
		return res, nil
	}

	start := time.Now()
	deadline := start.Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			res.Waited = time.Since(start)
			return res, ErrHandshakeTimeout
		}
		data, err := conn.Receive(ctx, remaining)
		switch {
		case errors.Is(err, ErrReceiveTimeout):
			res.Waited = time.Since(start)
			return res, ErrHandshakeTimeout
		case err != nil:
			res.Waited = time.Since(start)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			return res, &TransportError{Phase: PhaseHandshake, Err: err}
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			logging.WarnwCtx(ctx, "ignoring malformed message during handshake", "error", err)
			continue
		}
		switch msg.Kind {
		case KindControl:
			switch msg.Control {
			case MessageServerReady:
				res.Acknowledged = true
				res.Backend = msg.Backend
				res.Waited = time.Since(start)
				logging.InfowCtx(ctx, "server ready", "backend", msg.Backend, "waited_ms", res.Waited.Milliseconds())
				return res, nil
			case MessageDisconnect:
				res.Waited = time.Since(start)
				return res, &TransportError{Phase: PhaseHandshake, Err: ErrServerDisconnect}
			default:
				logging.DebugwCtx(ctx, "unexpected control message during handshake", "message", msg.Control)
			}
		case KindStatus:
			logging.WarnwCtx(ctx, "server status during handshake", "status", msg.Status, "detail", msg.Detail)
		default:
			res.Pending = append(res.Pending, data)
		}
	}
}
