// Package audio plays alarm sounds through per-camera channels mixed
// into one process-wide output.
package audio

import (
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"

	"github.com/vzahanych/gesture-guard/internal/logger"
)

// Mixer owns the output and hands out one channel per camera id.
type Mixer struct {
	out      Output
	bank     *Bank
	logger   *logger.Logger
	mu       sync.Mutex
	channels map[int]*Channel
	closed   bool
}

// NewMixer creates a mixer over an initialised output.
func NewMixer(out Output, bank *Bank, log *logger.Logger) *Mixer {
	return &Mixer{
		out:      out,
		bank:     bank,
		logger:   log,
		channels: make(map[int]*Channel),
	}
}

// Channel returns the channel for a camera id; the same id always gets
// the same channel.
func (m *Mixer) Channel(id int) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.channels[id]; ok {
		return ch
	}
	ch := &Channel{id: id, out: m.out, bank: m.bank}
	m.channels[id] = ch
	return ch
}

// Close stops every channel and releases the output. Safe to call more
// than once.
func (m *Mixer) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	channels := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.Unlock()

	for _, ch := range channels {
		ch.Stop()
	}
	m.out.Close()
	m.logger.Info("Audio output closed", "channels", len(channels))
}

// Channel plays at most one sound at a time.
type Channel struct {
	id   int
	out  Output
	bank *Bank

	mu   sync.Mutex
	ctrl *beep.Ctrl
	busy atomic.Bool
	gen  atomic.Uint64
}

// ID returns the camera id the channel belongs to.
func (c *Channel) ID() int {
	return c.id
}

// Play starts the sound for threshold. It returns false without doing
// anything when the channel is already playing.
func (c *Channel) Play(threshold int, loop bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy.Load() {
		return false
	}

	buf := c.bank.Sound(threshold)
	gen := c.gen.Add(1)

	var s beep.Streamer
	if loop {
		s = beep.Iterate(func() beep.Streamer {
			return buf.Streamer(0, buf.Len())
		})
	} else {
		// runs on the output goroutine with its lock held
		s = beep.Seq(buf.Streamer(0, buf.Len()), beep.Callback(func() {
			if c.gen.Load() == gen {
				c.busy.Store(false)
			}
		}))
	}

	c.ctrl = &beep.Ctrl{Streamer: s}
	c.busy.Store(true)
	c.out.Play(c.ctrl)
	return true
}

// Stop halts playback.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctrl != nil {
		c.out.Lock()
		c.ctrl.Streamer = nil
		c.out.Unlock()
		c.ctrl = nil
	}
	c.gen.Add(1)
	c.busy.Store(false)
}

// Busy reports whether a sound is playing.
func (c *Channel) Busy() bool {
	return c.busy.Load()
}
