package audio

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultSampleRate is used when NewSoftContext gets a non-positive rate.
const DefaultSampleRate = 44100

type softState int

const (
	softSuspended softState = iota
	softRunning
	softClosed
)

// SoftContext is a sample-accurate software rendering graph. Its clock is
// the number of rendered frames, so it only advances while running.
type SoftContext struct {
	mu         sync.Mutex
	sampleRate int
	frame      int64
	state      softState
	oscs       []*softOsc
	gains      []*softGain
	dest       *softDest
}

var _ Context = (*SoftContext)(nil)

// NewSoftContext returns a suspended context rendering at sampleRate.
func NewSoftContext(sampleRate int) *SoftContext {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &SoftContext{sampleRate: sampleRate, dest: &softDest{}}
}

// SampleRate returns the rendering rate in frames per second.
func (c *SoftContext) SampleRate() int { return c.sampleRate }

func (c *SoftContext) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.frame) / float64(c.sampleRate)
}

func (c *SoftContext) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == softClosed {
		return ErrClosed
	}
	c.state = softRunning
	return nil
}

func (c *SoftContext) Suspend(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == softClosed {
		return ErrClosed
	}
	c.state = softSuspended
	return nil
}

func (c *SoftContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = softClosed
	c.oscs = nil
	c.gains = nil
	return nil
}

// Closed reports whether Close has been called.
func (c *SoftContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == softClosed
}

// Running reports whether the clock is advancing.
func (c *SoftContext) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == softRunning
}

func (c *SoftContext) NewOscillator() (Oscillator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == softClosed {
		return nil, ErrClosed
	}
	o := &softOsc{ctx: c, freq: &softParam{initial: 440}, start: math.Inf(1), stop: math.Inf(1)}
	c.oscs = append(c.oscs, o)
	return o, nil
}

func (c *SoftContext) NewGain() (Gain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == softClosed {
		return nil, ErrClosed
	}
	g := &softGain{ctx: c, gain: &softParam{initial: 1}}
	c.gains = append(c.gains, g)
	return g, nil
}

func (c *SoftContext) Destination() Node { return c.dest }

// Render fills buf with interleaved stereo frames and returns the number of
// frames written. A suspended context writes silence and keeps its clock.
func (c *SoftContext) Render(buf []float32) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frames := len(buf) / 2
	switch c.state {
	case softClosed:
		return 0, ErrClosed
	case softSuspended:
		clear(buf[:frames*2])
		return frames, nil
	}

	sr := float64(c.sampleRate)
	for i := range frames {
		t := float64(c.frame) / sr
		var l, r float64
		for _, o := range c.oscs {
			if t < o.start || t >= o.stop {
				continue
			}
			level, ok := o.levelAt(t)
			f := o.freq.valueAt(t)
			s := math.Sin(o.phase)
			o.phase = math.Mod(o.phase+2*math.Pi*f/sr, 2*math.Pi)
			if !ok {
				continue
			}
			switch o.ch {
			case ChannelLeft:
				l += s * level
			case ChannelRight:
				r += s * level
			default:
				l += s * level
				r += s * level
			}
		}
		buf[2*i] = float32(l)
		buf[2*i+1] = float32(r)
		c.frame++
	}
	return frames, nil
}

// Advance renders d worth of audio and discards it.
func (c *SoftContext) Advance(d time.Duration) error {
	frames := int(d.Seconds() * float64(c.sampleRate))
	buf := make([]float32, 2*min(frames, c.sampleRate))
	for frames > 0 {
		n := min(frames, len(buf)/2)
		if _, err := c.Render(buf[:2*n]); err != nil {
			return err
		}
		frames -= n
	}
	return nil
}

// FrequencyAt returns the scheduled frequencies of every oscillator at t.
func (c *SoftContext) FrequencyAt(t float64) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, 0, len(c.oscs))
	for _, o := range c.oscs {
		out = append(out, o.freq.valueAt(t))
	}
	return out
}

type softDest struct{}

type event struct {
	at, value float64
}

type softParam struct {
	initial float64
	events  []event
}

func (p *softParam) SetValueAtTime(value, at float64) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].at >= at })
	if i < len(p.events) && p.events[i].at == at {
		p.events[i].value = value
		return
	}
	p.events = append(p.events, event{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = event{at: at, value: value}
}

func (p *softParam) valueAt(t float64) float64 {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].at > t })
	if i == 0 {
		return p.initial
	}
	return p.events[i-1].value
}

// lockedParam serialises param writes with rendering.
type lockedParam struct {
	mu *sync.Mutex
	p  *softParam
}

func (lp lockedParam) SetValueAtTime(value, at float64) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.p.SetValueAtTime(value, at)
}

type softOsc struct {
	ctx         *SoftContext
	freq        *softParam
	dst         Node
	ch          Channel
	start, stop float64
	phase       float64
}

func (o *softOsc) Frequency() Param { return lockedParam{mu: &o.ctx.mu, p: o.freq} }

func (o *softOsc) Connect(dst Node, ch Channel) error {
	switch dst.(type) {
	case *softGain, *softDest:
	default:
		return errors.New("oscillator: unsupported destination")
	}
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	o.dst = dst
	o.ch = ch
	return nil
}

func (o *softOsc) Start(at float64) {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	o.start = at
}

func (o *softOsc) Stop(at float64) {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	o.stop = at
}

// levelAt reports the gain applied to the oscillator and whether it reaches
// the destination at all.
func (o *softOsc) levelAt(t float64) (float64, bool) {
	switch d := o.dst.(type) {
	case *softDest:
		return 1, true
	case *softGain:
		if !d.connected {
			return 0, false
		}
		return d.gain.valueAt(t), true
	}
	return 0, false
}

type softGain struct {
	ctx       *SoftContext
	gain      *softParam
	connected bool
}

func (g *softGain) Gain() Param { return lockedParam{mu: &g.ctx.mu, p: g.gain} }

func (g *softGain) Connect(dst Node) error {
	if _, ok := dst.(*softDest); !ok {
		return errors.New("gain: unsupported destination")
	}
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	g.connected = true
	return nil
}
