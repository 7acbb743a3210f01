package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatIEEEFloat is the WAVE_FORMAT_IEEE_FLOAT tag in the fmt chunk.
const wavFormatIEEEFloat = 3

// LoadFile reads an audio file and returns float32-LE mono 16 kHz PCM ready
// for streaming. WAV files are decoded and converted; anything else is taken
// to already be raw float32-LE PCM in WhisperFormat.
func LoadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return DecodeWAV(f)
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("raw float32 audio %s has %d bytes, not a multiple of 4", path, len(raw))
	}
	return raw, nil
}

// DecodeWAV converts an integer PCM WAV stream into WhisperFormat bytes.
func DecodeWAV(r io.ReadSeeker) ([]byte, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}
	if d.WavAudioFormat == wavFormatIEEEFloat {
		return nil, fmt.Errorf("float WAV input is not supported; convert to integer PCM or raw float32")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode WAV: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("WAV header missing sample rate or channel count")
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(d.BitDepth)
	}
	mono := downmix(buf, bitDepth)
	mono = Resample(mono, buf.Format.SampleRate, WhisperFormat.SampleRate)
	return Float32LE(mono), nil
}

// downmix averages interleaved channels and scales integer samples to
// [-1, 1].
func downmix(buf *goaudio.IntBuffer, bitDepth int) []float32 {
	ch := buf.Format.NumChannels
	scale := float32(int64(1) << uint(bitDepth-1))
	if bitDepth == 8 {
		// 8-bit WAV is unsigned
		scale = 128
	}
	frames := len(buf.Data) / ch
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < ch; c++ {
			v := buf.Data[i*ch+c]
			if bitDepth == 8 {
				v -= 128
			}
			sum += float32(v) / scale
		}
		out[i] = sum / float32(ch)
	}
	return out
}

// Resample converts samples between rates with linear interpolation.
func Resample(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(in) == 0 || fromRate <= 0 || toRate <= 0 {
		return in
	}
	n := int(int64(len(in)) * int64(toRate) / int64(fromRate))
	out := make([]float32, n)
	step := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		frac := float32(pos - float64(j))
		if j+1 < len(in) {
			out[i] = in[j]*(1-frac) + in[j+1]*frac
		} else {
			out[i] = in[len(in)-1]
		}
	}
	return out
}

// Float32LE encodes samples as little-endian IEEE-754 float32.
func Float32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// Samples decodes little-endian float32 bytes; a trailing partial sample is
// ignored.
func Samples(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Silence returns an all-zero WhisperFormat buffer of duration d.
func Silence(d time.Duration) []byte {
	samples := int(d.Seconds() * float64(WhisperFormat.SampleRate))
	return make([]byte, samples*WhisperFormat.BitDepth/8)
}
