package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/whisperlive-lab/internal/audio"
	"github.com/whisperlive-lab/internal/config"
	"github.com/whisperlive-lab/internal/logging"
)

// Options are the tunables of one streaming session.
type Options struct {
	FrameSize        int
	ByteRate         int
	PacingFactor     float64
	ReceiveTimeout   time.Duration
	HandshakeTimeout time.Duration
	MaxIdleTimeouts  int
	SendEndOfAudio   bool
}

// DefaultOptions matches the server's expected input format and the stock
// client timings.
func DefaultOptions() Options {
	return NewOptions(config.Default().Stream)
}

// NewOptions converts loaded stream settings.
func NewOptions(s config.StreamSettings) Options {
	return Options{
		FrameSize:        s.ChunkBytes,
		ByteRate:         audio.WhisperFormat.ByteRate(),
		PacingFactor:     s.PacingFactor,
		ReceiveTimeout:   s.ReceiveTimeout,
		HandshakeTimeout: s.HandshakeTimeout,
		MaxIdleTimeouts:  s.MaxIdleTimeouts,
		SendEndOfAudio:   s.SendEndOfAudio,
	}
}

// withDefaults fills unset fields from DefaultOptions. A zero
// HandshakeTimeout is kept since it disables the acknowledgment wait.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FrameSize <= 0 {
		o.FrameSize = d.FrameSize
	}
	if o.ByteRate <= 0 {
		o.ByteRate = d.ByteRate
	}
	if o.PacingFactor <= 0 {
		o.PacingFactor = d.PacingFactor
	}
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = d.ReceiveTimeout
	}
	if o.MaxIdleTimeouts <= 0 {
		o.MaxIdleTimeouts = d.MaxIdleTimeouts
	}
	return o
}

// Result is everything a session observed. Outcome and Err are set together.
type Result struct {
	Outcome   Outcome
	Err       error
	Config    SessionConfig
	Endpoint  string
	Handshake HandshakeResult
	Upload    UploadStats
	Aggregate AggregateStats
	Segments  []TranscriptSegment
	AudioSize int
	ByteRate  int
	Elapsed   time.Duration
	Warnings  []string
}

// Session runs one configured transcription exchange over a Conn.
type Session struct {
	Config   SessionConfig
	Options  Options
	Recorder Recorder
	Endpoint string
}

// Run performs the handshake and then streams buf while collecting results.
// The uploader and aggregator share only the connection and the read-only
// buffer; each owns its own stats until both have returned. Run does not
// close conn.
func (s *Session) Run(ctx context.Context, conn Conn, buf []byte) (res Result) {
	start := time.Now()
	rec := recorderOrNop(s.Recorder)
	opts := s.Options.withDefaults()
	res = Result{
		Config:    s.Config,
		Endpoint:  s.Endpoint,
		AudioSize: len(buf),
		ByteRate:  opts.ByteRate,
	}
	ctx = logging.WithFields(ctx, logging.SessionFields(s.Config.UID, s.Endpoint)...)

	defer func() {
		res.Elapsed = time.Since(start)
		rec.SessionFinished(string(res.Outcome), res.Elapsed, audio.DurationOf(len(buf), opts.ByteRate))
	}()

	hs, err := Handshake(ctx, conn, s.Config, opts.HandshakeTimeout)
	res.Handshake = hs
	switch {
	case errors.Is(err, ErrHandshakeTimeout):
		logging.WarnwCtx(ctx, "no SERVER_READY received, streaming anyway", "waited_ms", hs.Waited.Milliseconds())
		res.Warnings = append(res.Warnings, err.Error())
	case err != nil:
		logging.ErrorwCtx(ctx, "handshake failed", "error", err)
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}

	up := &Uploader{
		Conn:           conn,
		FrameSize:      opts.FrameSize,
		ByteRate:       opts.ByteRate,
		PacingFactor:   opts.PacingFactor,
		SendEndOfAudio: opts.SendEndOfAudio,
		Recorder:       rec,
	}
	agg := &Aggregator{
		Conn:            conn,
		ReceiveTimeout:  opts.ReceiveTimeout,
		MaxIdleTimeouts: opts.MaxIdleTimeouts,
		Recorder:        rec,
	}

	uploadDone := make(chan struct{})
	var upStats UploadStats
	g, gctx := errgroup.WithContext(ctx)
	// the aggregator ending cleanly (DISCONNECT, late close) stops the upload
	upCtx, stopUpload := context.WithCancel(gctx)
	defer stopUpload()

	g.Go(func() error {
		var err error
		upStats, err = up.Run(upCtx, buf)
		if err != nil {
			if gctx.Err() == nil && upCtx.Err() != nil {
				upStats.Interrupted = true
				return nil
			}
			return err
		}
		close(uploadDone)
		return nil
	})
	g.Go(func() error {
		err := agg.Run(gctx, uploadDone, hs.Pending)
		if err == nil {
			stopUpload()
		}
		return err
	})
	err = g.Wait()

	res.Upload = upStats
	if upStats.Interrupted {
		logging.WarnwCtx(ctx, "upload stopped before all audio was sent",
			"bytes_sent", upStats.BytesSent,
			"bytes_total", len(buf),
			"end_reason", agg.Stats().EndReason,
		)
		res.Warnings = append(res.Warnings, "upload stopped early: "+agg.Stats().EndReason)
	}
	res.Aggregate = agg.Stats()
	res.Segments = agg.Transcript().Segments()

	switch {
	case err != nil:
		logging.ErrorwCtx(ctx, "session failed", "error", err, "segments", len(res.Segments))
		res.Outcome, res.Err = OutcomeFailed, err
	case len(res.Segments) == 0:
		logging.WarnwCtx(ctx, "session produced no transcript", "end_reason", res.Aggregate.EndReason)
		res.Outcome, res.Err = OutcomeIncomplete, ErrEmptyResult
	default:
		logging.InfowCtx(ctx, "session complete",
			"segments", len(res.Segments),
			"end_reason", res.Aggregate.EndReason,
		)
		res.Outcome = OutcomePassed
	}
	return res
}

// Client dials an endpoint per transcription.
type Client struct {
	Endpoint string
	Header   http.Header
	Options  Options
	Recorder Recorder
}

// Transcribe dials, runs one session for buf under cfg and closes the
// connection.
func (c *Client) Transcribe(ctx context.Context, cfg SessionConfig, buf []byte) Result {
	conn, err := Dial(ctx, c.Endpoint, c.Header)
	if err != nil {
		logging.ErrorwCtx(ctx, "connect failed", "endpoint", c.Endpoint, "error", err)
		rec := recorderOrNop(c.Recorder)
		rec.SessionFinished(string(OutcomeFailed), 0, audio.DurationOf(len(buf), c.Options.withDefaults().ByteRate))
		return Result{
			Outcome:   OutcomeFailed,
			Err:       &TransportError{Phase: PhaseConnect, Err: err},
			Config:    cfg,
			Endpoint:  c.Endpoint,
			AudioSize: len(buf),
			ByteRate:  c.Options.withDefaults().ByteRate,
		}
	}
	defer conn.Close()

	s := &Session{Config: cfg, Options: c.Options, Recorder: c.Recorder, Endpoint: c.Endpoint}
	return s.Run(ctx, conn, buf)
}
