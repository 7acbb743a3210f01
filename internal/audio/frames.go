package audio

import "time"

// Format describes raw PCM layout.
type Format struct {
	SampleRate int
	BitDepth   int
	Channels   int
}

// WhisperFormat is what the streaming endpoint expects: little-endian float32,
// mono, 16 kHz.
var WhisperFormat = Format{SampleRate: 16000, BitDepth: 32, Channels: 1}

// ByteRate returns bytes per second of audio in this format.
func (f Format) ByteRate() int {
	return f.SampleRate * f.BitDepth / 8 * f.Channels
}

// DurationOf returns how much playback time n bytes represent at byteRate.
func DurationOf(n int, byteRate int) time.Duration {
	if byteRate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(byteRate) * float64(time.Second))
}

// AudioFrame is one outbound chunk. Payload aliases the source buffer.
type AudioFrame struct {
	Index   int
	Offset  int
	Payload []byte
}

// Duration is the playback time covered by the frame.
func (f AudioFrame) Duration(byteRate int) time.Duration {
	return DurationOf(len(f.Payload), byteRate)
}

// End is the byte offset one past the frame's last byte.
func (f AudioFrame) End() int { return f.Offset + len(f.Payload) }

// FrameSource slices a buffer into fixed-size frames in order. Only the last
// frame may be shorter than the frame size.
type FrameSource struct {
	buf       []byte
	frameSize int
	next      int
	index     int
}

// NewFrameSource panics on a non-positive frame size; callers validate
// configuration before building one.
func NewFrameSource(buf []byte, frameSize int) *FrameSource {
	if frameSize <= 0 {
		panic("audio: frame size must be positive")
	}
	return &FrameSource{buf: buf, frameSize: frameSize}
}

// Next returns the next frame, or false once the buffer is exhausted.
func (s *FrameSource) Next() (AudioFrame, bool) {
	if s.next >= len(s.buf) {
		return AudioFrame{}, false
	}
	end := s.next + s.frameSize
	if end > len(s.buf) {
		end = len(s.buf)
	}
	f := AudioFrame{Index: s.index, Offset: s.next, Payload: s.buf[s.next:end:end]}
	s.next = end
	s.index++
	return f, true
}

// Count is ceil(len(buf)/frameSize).
func (s *FrameSource) Count() int {
	return (len(s.buf) + s.frameSize - 1) / s.frameSize
}

// Len is the total number of bytes the source will emit.
func (s *FrameSource) Len() int { return len(s.buf) }

// Remaining is the number of bytes not yet returned by Next.
func (s *FrameSource) Remaining() int { return len(s.buf) - s.next }

func (s *FrameSource) Reset() {
	s.next = 0
	s.index = 0
}
