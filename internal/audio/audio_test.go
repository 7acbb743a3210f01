package audio

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestWhisperFormatByteRate(t *testing.T) {
	if got := WhisperFormat.ByteRate(); got != 64000 {
		t.Fatalf("byte rate: got %d want 64000", got)
	}
	if got := DurationOf(16384, 64000); got != 256*time.Millisecond {
		t.Fatalf("frame duration: got %v", got)
	}
}

func TestFrameSourceReconstructsBuffer(t *testing.T) {
	sizes := []int{0, 1, 4, 4095, 4096, 4097, 16384, 100000}
	chunks := []int{1, 3, 4096, 16384}
	for _, n := range sizes {
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = byte(i * 7)
		}
		for _, c := range chunks {
			src := NewFrameSource(buf, c)
			wantCount := (n + c - 1) / c
			if src.Count() != wantCount {
				t.Fatalf("n=%d c=%d: Count=%d want %d", n, c, src.Count(), wantCount)
			}

			var out bytes.Buffer
			frames := 0
			prevEnd := 0
			for {
				f, ok := src.Next()
				if !ok {
					break
				}
				if f.Index != frames {
					t.Fatalf("n=%d c=%d: frame index %d want %d", n, c, f.Index, frames)
				}
				if f.Offset != prevEnd {
					t.Fatalf("n=%d c=%d: gap or overlap at frame %d (offset %d, prev end %d)", n, c, f.Index, f.Offset, prevEnd)
				}
				if len(f.Payload) == 0 || len(f.Payload) > c {
					t.Fatalf("n=%d c=%d: bad payload size %d", n, c, len(f.Payload))
				}
				prevEnd = f.End()
				out.Write(f.Payload)
				frames++
			}
			if frames != wantCount {
				t.Fatalf("n=%d c=%d: emitted %d frames want %d", n, c, frames, wantCount)
			}
			if !bytes.Equal(out.Bytes(), buf) {
				t.Fatalf("n=%d c=%d: reconstructed buffer differs", n, c)
			}
			if src.Remaining() != 0 {
				t.Fatalf("n=%d c=%d: remaining %d", n, c, src.Remaining())
			}
		}
	}
}

func TestFrameSourcePayloadCannotGrowIntoNextFrame(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	src := NewFrameSource(buf, 4)
	f, _ := src.Next()
	_ = append(f.Payload, 0xFF)
	if buf[4] != 5 {
		t.Fatalf("append on a frame payload overwrote the next frame")
	}
}

func TestFrameSourceReset(t *testing.T) {
	src := NewFrameSource(make([]byte, 10), 4)
	for {
		if _, ok := src.Next(); !ok {
			break
		}
	}
	src.Reset()
	f, ok := src.Next()
	if !ok || f.Index != 0 || f.Offset != 0 {
		t.Fatalf("reset did not rewind: %+v ok=%v", f, ok)
	}
}

func TestSilenceTenSeconds(t *testing.T) {
	b := Silence(10 * time.Second)
	if len(b) != 640000 {
		t.Fatalf("silence length: got %d want 640000", len(b))
	}
	for _, v := range b {
		if v != 0 {
			t.Fatalf("silence contains non-zero byte")
		}
	}
}

func TestFloat32RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -1, 0.25}
	got := Samples(Float32LE(in))
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("sample %d: got %v want %v", i, got[i], in[i])
		}
	}
}

func TestResampleLength(t *testing.T) {
	in := make([]float32, 48000)
	out := Resample(in, 48000, 16000)
	if len(out) != 16000 {
		t.Fatalf("resampled length: got %d want 16000", len(out))
	}
	if same := Resample(in, 16000, 16000); len(same) != len(in) {
		t.Fatalf("identity resample changed length")
	}
}

func writeTestWAV(t *testing.T, sampleRate, channels int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("encoder close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileWAVStereo32kToWhisperFormat(t *testing.T) {
	// one second of stereo 32 kHz with left at half scale and right silent
	frames := 32000
	data := make([]int, frames*2)
	for i := 0; i < frames; i++ {
		data[i*2] = 16384
	}
	path := writeTestWAV(t, 32000, 2, data)

	pcm, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(pcm) != 64000 {
		t.Fatalf("expected one second of whisper audio (64000 bytes), got %d", len(pcm))
	}
	s := Samples(pcm)
	if math.Abs(float64(s[100])-0.25) > 1e-3 {
		t.Fatalf("downmixed sample: got %v want ~0.25", s[100])
	}
}

func TestLoadFileRaw(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a.f32")
	if err := os.WriteFile(good, Float32LE([]float32{0.1, 0.2}), 0o644); err != nil {
		t.Fatal(err)
	}
	pcm, err := LoadFile(good)
	if err != nil || len(pcm) != 8 {
		t.Fatalf("raw load: len=%d err=%v", len(pcm), err)
	}

	bad := filepath.Join(dir, "b.raw")
	if err := os.WriteFile(bad, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Fatalf("expected error for truncated raw float32 file")
	}
}
