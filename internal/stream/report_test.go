package stream

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestSummarize(t *testing.T) {
	res := Result{
		Outcome:   OutcomePassed,
		Config:    SessionConfig{UID: "abc"},
		Segments:  []TranscriptSegment{{Text: "hello"}, {Text: "world"}},
		AudioSize: 640000,
		ByteRate:  64000,
		Elapsed:   12 * time.Second,
		Upload:    UploadStats{FramesSent: 40, BytesSent: 640000},
		Aggregate: AggregateStats{MessagesReceived: 7, EndReason: EndIdle},
	}
	s := Summarize(res)
	if s.Text != "hello world" || s.Outcome != OutcomePassed {
		t.Fatalf("summary: %+v", s)
	}
	if s.AudioSeconds != 10 || math.Abs(s.RealtimeFactor-1.2) > 1e-9 {
		t.Fatalf("timing: audio %v rtf %v", s.AudioSeconds, s.RealtimeFactor)
	}
	if s.CorrelationID != "abc" || s.FramesSent != 40 || s.MessagesReceived != 7 {
		t.Fatalf("counts: %+v", s)
	}
}

func TestSummarizeNeverPassesEmptyText(t *testing.T) {
	s := Summarize(Result{Outcome: OutcomePassed, Segments: []TranscriptSegment{{Text: ""}}})
	if s.Outcome != OutcomeIncomplete {
		t.Fatalf("outcome: %s", s.Outcome)
	}
	if s.RealtimeFactor != 0 {
		t.Fatalf("rtf with no audio: %v", s.RealtimeFactor)
	}
}

func TestSummarizeFailure(t *testing.T) {
	s := Summarize(Result{Outcome: OutcomeFailed, Err: &TransportError{Phase: PhaseUpload, Err: errors.New("reset")}})
	if s.Outcome != OutcomeFailed || s.Error == "" || s.Segments == nil {
		t.Fatalf("summary: %+v", s)
	}
}

func TestOutcomeExitCodes(t *testing.T) {
	if OutcomePassed.ExitCode() != 0 || OutcomeFailed.ExitCode() != 1 || OutcomeIncomplete.ExitCode() != 2 {
		t.Fatalf("unexpected exit code mapping")
	}
}
