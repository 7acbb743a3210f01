package stream

import "time"

// Recorder receives session telemetry. Implementations must be safe for use
// from the uploader and aggregator goroutines at once.
type Recorder interface {
	FrameSent(bytes int)
	MessageReceived(kind string)
	ProtocolError()
	SegmentApplied(change string)
	SessionFinished(outcome string, elapsed, audio time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) FrameSent(int)                                       {}
func (nopRecorder) MessageReceived(string)                              {}
func (nopRecorder) ProtocolError()                                      {}
func (nopRecorder) SegmentApplied(string)                               {}
func (nopRecorder) SessionFinished(string, time.Duration, time.Duration) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
