package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Output is the process-wide sink every channel mixes into.
type Output interface {
	Play(s beep.Streamer)
	// Lock and Unlock guard streamer state against the output goroutine.
	Lock()
	Unlock()
	Close()
}

type speakerOutput struct{}

// NewSpeakerOutput initialises the sound device. It must be called once
// per process.
func NewSpeakerOutput(sr beep.SampleRate) (Output, error) {
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return nil, err
	}
	return speakerOutput{}, nil
}

func (speakerOutput) Play(s beep.Streamer) { speaker.Play(s) }
func (speakerOutput) Lock()                { speaker.Lock() }
func (speakerOutput) Unlock()              { speaker.Unlock() }
func (speakerOutput) Close()               { speaker.Close() }

// Discard consumes streamers in real time without a sound device, for
// hosts with no audio hardware.
type Discard struct {
	mu     sync.Mutex
	chunk  int
	period time.Duration
	done   chan struct{}
	once   sync.Once
}

// NewDiscard creates a discarding output at the given sample rate.
func NewDiscard(sr beep.SampleRate) *Discard {
	period := 100 * time.Millisecond
	return &Discard{chunk: sr.N(period), period: period, done: make(chan struct{})}
}

// Play drains s at real-time pace until it ends or the output closes.
func (d *Discard) Play(s beep.Streamer) {
	go func() {
		buf := make([][2]float64, d.chunk)
		ticker := time.NewTicker(d.period)
		defer ticker.Stop()
		for {
			select {
			case <-d.done:
				return
			case <-ticker.C:
			}
			d.mu.Lock()
			_, ok := s.Stream(buf)
			d.mu.Unlock()
			if !ok {
				return
			}
		}
	}()
}

func (d *Discard) Lock()   { d.mu.Lock() }
func (d *Discard) Unlock() { d.mu.Unlock() }

// Close stops every running drain.
func (d *Discard) Close() {
	d.once.Do(func() { close(d.done) })
}
