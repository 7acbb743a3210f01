package stream

import (
	"context"
	"strings"
	"time"

	"github.com/whisperlive-lab/internal/audio"
	"github.com/whisperlive-lab/internal/logging"
)

// Summary is the final, reportable view of a session.
type Summary struct {
	Outcome          Outcome             `json:"outcome"`
	CorrelationID    string              `json:"correlation_id"`
	Endpoint         string              `json:"endpoint,omitempty"`
	Text             string              `json:"text"`
	Segments         []TranscriptSegment `json:"segments"`
	Language         string              `json:"language,omitempty"`
	Acknowledged     bool                `json:"acknowledged"`
	FramesSent       int                 `json:"frames_sent"`
	BytesSent        int64               `json:"bytes_sent"`
	MessagesReceived int                 `json:"messages_received"`
	Duplicates       int                 `json:"duplicates"`
	ProtocolErrors   int                 `json:"protocol_errors"`
	EndReason        string              `json:"end_reason,omitempty"`
	AudioSeconds     float64             `json:"audio_seconds"`
	ElapsedSeconds   float64             `json:"elapsed_seconds"`
	RealtimeFactor   float64             `json:"realtime_factor"`
	Warnings         []string            `json:"warnings,omitempty"`
	Error            string              `json:"error,omitempty"`
}

// Summarize composes the transcript and statistics for res. A result only
// reports PASSED when its joined transcript has text.
func Summarize(res Result) Summary {
	text := strings.TrimSpace(JoinText(res.Segments))
	audioDur := audio.DurationOf(res.AudioSize, res.ByteRate)

	s := Summary{
		Outcome:          res.Outcome,
		CorrelationID:    res.Config.UID,
		Endpoint:         res.Endpoint,
		Text:             text,
		Segments:         res.Segments,
		Language:         res.Aggregate.Language,
		Acknowledged:     res.Handshake.Acknowledged,
		FramesSent:       res.Upload.FramesSent,
		BytesSent:        res.Upload.BytesSent,
		MessagesReceived: res.Aggregate.MessagesReceived,
		Duplicates:       res.Aggregate.Duplicates,
		ProtocolErrors:   res.Aggregate.ProtocolErrors,
		EndReason:        res.Aggregate.EndReason,
		AudioSeconds:     audioDur.Seconds(),
		ElapsedSeconds:   res.Elapsed.Seconds(),
		RealtimeFactor:   realtimeFactor(res.Elapsed, audioDur),
		Warnings:         res.Warnings,
	}
	if s.Segments == nil {
		s.Segments = []TranscriptSegment{}
	}
	if s.Outcome == OutcomePassed && text == "" {
		s.Outcome = OutcomeIncomplete
	}
	if s.Outcome == "" {
		s.Outcome = OutcomeFailed
	}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}
	return s
}

// realtimeFactor is processing time over audio time; zero when there is no
// audio.
func realtimeFactor(elapsed, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}
	return elapsed.Seconds() / audioDur.Seconds()
}

// Log writes the summary through the structured logger.
func (s Summary) Log(ctx context.Context) {
	kv := []interface{}{
		"outcome", s.Outcome,
		"correlation_id", s.CorrelationID,
		"segments", len(s.Segments),
		"frames_sent", s.FramesSent,
		"bytes_sent", s.BytesSent,
		"messages_received", s.MessagesReceived,
		"audio_seconds", s.AudioSeconds,
		"elapsed_seconds", s.ElapsedSeconds,
		"realtime_factor", s.RealtimeFactor,
		"end_reason", s.EndReason,
	}
	switch s.Outcome {
	case OutcomePassed:
		logging.InfowCtx(ctx, "transcription passed", append(kv, "text", s.Text)...)
	case OutcomeIncomplete:
		logging.WarnwCtx(ctx, "transcription incomplete", kv...)
	default:
		logging.ErrorwCtx(ctx, "transcription failed", append(kv, "error", s.Error)...)
	}
}
