package stream

import (
	"context"
	"time"

	"github.com/whisperlive-lab/internal/audio"
	"github.com/whisperlive-lab/internal/logging"
)

// UploadStats is owned by the uploader goroutine until it returns.
type UploadStats struct {
	FramesSent  int
	BytesSent   int64
	Duration    time.Duration
	SentEndMark bool
	// Interrupted is set when the receive side ended the session first.
	Interrupted bool
}

// Uploader streams a buffer as binary frames, paced so that cumulative
// wall time never runs ahead of PacingFactor times the audio sent.
type Uploader struct {
	Conn           Conn
	FrameSize      int
	ByteRate       int
	PacingFactor   float64
	SendEndOfAudio bool
	Recorder       Recorder
}

// Run sends every frame of buf in order. Stats reflect what was sent even
// when an error is returned.
func (u *Uploader) Run(ctx context.Context, buf []byte) (stats UploadStats, err error) {
	rec := recorderOrNop(u.Recorder)
	src := audio.NewFrameSource(buf, u.FrameSize)
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	logging.InfowCtx(ctx, "upload started",
		"frames", src.Count(),
		"bytes", src.Len(),
		"audio_seconds", audio.DurationOf(src.Len(), u.ByteRate).Seconds(),
		"pacing_factor", u.PacingFactor,
	)

	for {
		frame, ok := src.Next()
		if !ok {
			break
		}
		if err := u.Conn.WriteBinary(ctx, frame.Payload); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			logging.WarnwCtx(ctx, "frame send failed",
				append(logging.FrameFields(frame.Index, len(frame.Payload), frame.Offset), "error", err)...)
			return stats, &TransportError{Phase: PhaseUpload, Err: err}
		}
		stats.FramesSent++
		stats.BytesSent += int64(len(frame.Payload))
		rec.FrameSent(len(frame.Payload))

		if err := u.pace(ctx, start, stats.BytesSent); err != nil {
			return stats, err
		}
	}

	if u.SendEndOfAudio {
		if err := u.Conn.WriteBinary(ctx, []byte(EndOfAudio)); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			return stats, &TransportError{Phase: PhaseUpload, Err: err}
		}
		stats.SentEndMark = true
	}

	logging.InfowCtx(ctx, "upload finished",
		"frames_sent", stats.FramesSent,
		"bytes_sent", stats.BytesSent,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

// pace sleeps until elapsed time catches up with the target for sent bytes.
func (u *Uploader) pace(ctx context.Context, start time.Time, sent int64) error {
	if u.ByteRate <= 0 || u.PacingFactor <= 0 {
		return nil
	}
	target := time.Duration(float64(sent) / float64(u.ByteRate) * u.PacingFactor * float64(time.Second))
	wait := target - time.Since(start)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
