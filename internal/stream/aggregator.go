package stream

import (
	"context"
	"errors"
	"time"

	"github.com/whisperlive-lab/internal/logging"
)

// Reasons the receive loop stopped.
const (
	EndIdle       = "idle_timeout"
	EndDisconnect = "server_disconnect"
	EndConnClosed = "connection_closed"
	EndCanceled   = "canceled"
)

// AggregateStats is owned by the aggregator goroutine until Run returns.
type AggregateStats struct {
	MessagesReceived int
	Results          int
	Added            int
	Updated          int
	Duplicates       int
	ProtocolErrors   int
	Timeouts         int
	Language         string
	LanguageProb     float64
	EndReason        string
}

// Aggregator drains inbound messages into a Transcript. Once the upload has
// finished, MaxIdleTimeouts consecutive empty receive waits end the loop.
type Aggregator struct {
	Conn            Conn
	ReceiveTimeout  time.Duration
	MaxIdleTimeouts int
	Recorder        Recorder

	transcript Transcript
	stats      AggregateStats
}

func (a *Aggregator) Transcript() *Transcript { return &a.transcript }

func (a *Aggregator) Stats() AggregateStats { return a.stats }

// Run receives until an end condition. pending messages, typically buffered
// during the handshake, are applied before the first receive. A connection
// that closes before uploadDone is a *TransportError; one that closes
// afterwards ends the session normally.
func (a *Aggregator) Run(ctx context.Context, uploadDone <-chan struct{}, pending [][]byte) error {
	rec := recorderOrNop(a.Recorder)
	for _, data := range pending {
		if a.handle(ctx, rec, data) {
			return nil
		}
	}

	finished := func() bool {
		select {
		case <-uploadDone:
			return true
		default:
			return false
		}
	}

	idle := 0
	for {
		data, err := a.Conn.Receive(ctx, a.ReceiveTimeout)
		switch {
		case err == nil:
		case errors.Is(err, ErrReceiveTimeout):
			a.stats.Timeouts++
			if !finished() {
				continue
			}
			idle++
			logging.DebugwCtx(ctx, "receive wait elapsed", "idle", idle, "max_idle", a.MaxIdleTimeouts)
			if idle >= a.MaxIdleTimeouts {
				a.stats.EndReason = EndIdle
				logging.InfowCtx(ctx, "no more results, ending session", "idle_timeouts", idle)
				return nil
			}
			continue
		case ctx.Err() != nil:
			a.stats.EndReason = EndCanceled
			return ctx.Err()
		case errors.Is(err, ErrConnClosed) && finished():
			a.stats.EndReason = EndConnClosed
			logging.InfowCtx(ctx, "server closed the connection after upload", "error", err)
			return nil
		default:
			a.stats.EndReason = EndConnClosed
			return &TransportError{Phase: PhaseReceive, Err: err}
		}

		idle = 0
		if a.handle(ctx, rec, data) {
			return nil
		}
	}
}

// handle applies one raw message and reports whether the loop should stop.
func (a *Aggregator) handle(ctx context.Context, rec Recorder, data []byte) bool {
	a.stats.MessagesReceived++
	msg, err := DecodeMessage(data)
	if err != nil {
		a.stats.ProtocolErrors++
		rec.ProtocolError()
		logging.WarnwCtx(ctx, "skipping malformed message", "error", err, "bytes", len(data))
		return false
	}
	rec.MessageReceived(msg.Kind.String())

	switch msg.Kind {
	case KindControl:
		switch msg.Control {
		case MessageDisconnect:
			a.stats.EndReason = EndDisconnect
			logging.InfowCtx(ctx, "server requested disconnect")
			return true
		case MessageServerReady:
			logging.DebugwCtx(ctx, "late server ready", "backend", msg.Backend)
		default:
			logging.DebugwCtx(ctx, "unknown control message", "message", msg.Control)
		}
	case KindStatus:
		logging.WarnwCtx(ctx, "server status", "status", msg.Status, "detail", msg.Detail)
	case KindLanguage:
		a.stats.Language = msg.Language
		a.stats.LanguageProb = msg.LanguageProb
		logging.InfowCtx(ctx, "language detected", "language", msg.Language, "probability", msg.LanguageProb)
	case KindResult:
		a.stats.Results++
		for _, seg := range msg.Segments {
			change := a.transcript.Apply(seg)
			switch change {
			case ChangeAdded:
				a.stats.Added++
			case ChangeUpdated:
				a.stats.Updated++
			case ChangeDuplicate:
				a.stats.Duplicates++
			default:
				continue
			}
			rec.SegmentApplied(change.String())
			if change == ChangeDuplicate {
				continue
			}
			logging.DebugwCtx(ctx, "segment "+change.String(),
				"start", seg.Start.Value,
				"end", seg.End.Value,
				"text", seg.Text,
			)
		}
	}
	return false
}
