package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/vzahanych/gesture-guard/internal/logger"
)

const (
	// SampleRate is the output sample rate every sound is resampled to.
	SampleRate beep.SampleRate = 44100

	toneFrequency = 1000.0
	toneDuration  = 500 * time.Millisecond
	toneAmplitude = 0.5
)

// Bank holds decoded, in-memory sounds keyed by alarm threshold.
type Bank struct {
	format   beep.Format
	sounds   map[int]*beep.Buffer
	fallback *beep.Buffer
}

// LoadBank decodes every sound in paths. A missing or undecodable file
// falls back to fallbackPath, and that in turn to a generated tone, so
// loading never fails.
func LoadBank(paths map[int]string, fallbackPath string, log *logger.Logger) *Bank {
	b := &Bank{
		format: beep.Format{SampleRate: SampleRate, NumChannels: 2, Precision: 2},
		sounds: make(map[int]*beep.Buffer, len(paths)),
	}

	fallback, err := b.decodeFile(fallbackPath)
	if err != nil {
		log.Warn("Fallback sound unavailable, using generated tone", "path", fallbackPath, "error", err)
		fallback = b.toneBuffer()
	}
	b.fallback = fallback

	for threshold, path := range paths {
		buf, err := b.decodeFile(path)
		if err != nil {
			log.Warn("Alarm sound unavailable, using fallback", "threshold", threshold, "path", path, "error", err)
			buf = b.fallback
		}
		b.sounds[threshold] = buf
	}
	return b
}

// Sound returns the buffer for a threshold, or the fallback.
func (b *Bank) Sound(threshold int) *beep.Buffer {
	if buf, ok := b.sounds[threshold]; ok {
		return buf
	}
	return b.fallback
}

// Format returns the format all buffers share.
func (b *Bank) Format() beep.Format {
	return b.format
}

func (b *Bank) decodeFile(path string) (*beep.Buffer, error) {
	if path == "" {
		return nil, fmt.Errorf("no path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != b.format.SampleRate {
		s = beep.Resample(4, format.SampleRate, b.format.SampleRate, s)
	}

	buf := beep.NewBuffer(b.format)
	buf.Append(s)
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%s contains no samples", path)
	}
	return buf, nil
}

func (b *Bank) toneBuffer() *beep.Buffer {
	buf := beep.NewBuffer(b.format)
	buf.Append(Tone(b.format.SampleRate, toneFrequency, toneDuration))
	return buf
}

// Tone generates a sine tone of the given frequency and length.
func Tone(sr beep.SampleRate, freq float64, d time.Duration) beep.Streamer {
	total := sr.N(d)
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		if pos >= total {
			return 0, false
		}
		for i := range samples {
			if pos >= total {
				break
			}
			v := toneAmplitude * math.Sin(2*math.Pi*freq*float64(pos)/float64(sr))
			samples[i][0], samples[i][1] = v, v
			pos++
			n++
		}
		return n, true
	})
}

// EnsureFallbackTone writes the generated tone as a mono 16-bit WAV at
// path unless a file already exists there.
func EnsureFallbackTone(path string) (created bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create sound directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	format := beep.Format{SampleRate: SampleRate, NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, Tone(SampleRate, toneFrequency, toneDuration), format); err != nil {
		return false, fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return true, nil
}
