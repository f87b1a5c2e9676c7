package audio

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/meltforce/tempo/internal/models"
)

// DisplayRefresh bounds the position polling loop.
const DisplayRefresh = time.Second / 60

// Options configures an Engine.
type Options struct {
	// PollInterval is the position polling period. Zero means DisplayRefresh;
	// a negative value disables the loop and the caller drives Tick.
	PollInterval time.Duration
	// OnPosition receives the elapsed seconds on every poll while playing.
	OnPosition func(elapsed float64)
	// OnFinished is called once the schedule has played to its end.
	OnFinished func(actual float64)
	Logger     *slog.Logger
}

// Engine plays an AudioSchedule through two oscillators into a shared gain.
// The schedule is programmed on the audio clock in one pass; the polling
// loop only reports positions.
type Engine struct {
	mu       sync.Mutex
	factory  Factory
	interval time.Duration
	onPos    func(float64)
	onDone   func(float64)
	log      *slog.Logger

	ac          Context
	gain        Gain
	left, right Oscillator
	schedule    models.AudioSchedule
	total       float64
	scheduled   bool
	playing     bool
	timeAtPause float64
	resumedAt   float64
	elapsed     float64
	volume      float64
	stopPoll    context.CancelFunc

	// A graph built by Prepare, kept until the next start adopts it.
	spare     Context
	spareGain Gain
}

// NewEngine returns an idle engine that builds its graph with factory.
func NewEngine(factory Factory, opts Options) *Engine {
	interval := opts.PollInterval
	if interval == 0 {
		interval = DisplayRefresh
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		factory:  factory,
		interval: interval,
		onPos:    opts.OnPosition,
		onDone:   opts.OnFinished,
		log:      log,
		volume:   1,
	}
}

// Start plays schedule from the beginning. See StartFrom.
func (e *Engine) Start(ctx context.Context, schedule models.AudioSchedule, total float64) error {
	return e.StartFrom(ctx, schedule, total, 0)
}

// StartFrom plays schedule starting offset seconds in. Calling it while
// playing is a no-op. On a paused engine holding the same schedule it only
// resumes the audio clock; the programmed timeline is kept.
func (e *Engine) StartFrom(ctx context.Context, schedule models.AudioSchedule, total, offset float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.playing {
		return nil
	}
	if e.scheduled && !slices.Equal(e.schedule, schedule) {
		e.teardownLocked()
	}

	if e.ac == nil {
		if err := e.buildGraphLocked(); err != nil {
			return err
		}
	}

	if err := e.ac.Resume(ctx); err != nil {
		return fmt.Errorf("resuming audio context: %w", err)
	}

	if !e.scheduled {
		if total <= 0 {
			total = schedule.Total()
		}
		if offset < 0 {
			offset = 0
		}
		e.schedule = slices.Clone(schedule)
		e.total = total
		e.timeAtPause = offset
		if err := e.programLocked(offset); err != nil {
			e.teardownLocked()
			return err
		}
		e.scheduled = true
	}

	e.resumedAt = e.ac.CurrentTime()
	e.elapsed = e.timeAtPause
	e.playing = true
	e.startPollLocked()
	return nil
}

// Prepare builds the audio graph ahead of the next start so that an
// unavailable output is reported before any session state changes. The
// prepared graph survives Stop.
func (e *Engine) Prepare() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.spare != nil {
		return nil
	}
	ac, gain, err := e.newGraphLocked()
	if err != nil {
		return err
	}
	e.spare, e.spareGain = ac, gain
	return nil
}

func (e *Engine) buildGraphLocked() error {
	ac, gain := e.spare, e.spareGain
	e.spare, e.spareGain = nil, nil
	if ac == nil {
		var err error
		if ac, gain, err = e.newGraphLocked(); err != nil {
			return err
		}
	}
	gain.Gain().SetValueAtTime(e.volume, ac.CurrentTime())
	e.ac = ac
	e.gain = gain
	return nil
}

func (e *Engine) newGraphLocked() (Context, Gain, error) {
	if e.factory == nil {
		return nil, nil, fmt.Errorf("%w: no audio output", ErrGraphCreation)
	}
	ac, err := e.factory()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGraphCreation, err)
	}
	gain, err := ac.NewGain()
	if err != nil {
		_ = ac.Close()
		return nil, nil, fmt.Errorf("%w: gain: %v", ErrGraphCreation, err)
	}
	if err := gain.Connect(ac.Destination()); err != nil {
		_ = ac.Close()
		return nil, nil, fmt.Errorf("%w: connecting gain: %v", ErrGraphCreation, err)
	}
	return ac, gain, nil
}

// programLocked creates the oscillator pair and sets every frequency change
// of the schedule ahead of time, skipping the first offset seconds.
func (e *Engine) programLocked(offset float64) error {
	left, err := e.ac.NewOscillator()
	if err != nil {
		return fmt.Errorf("%w: oscillator: %v", ErrGraphCreation, err)
	}
	right, err := e.ac.NewOscillator()
	if err != nil {
		return fmt.Errorf("%w: oscillator: %v", ErrGraphCreation, err)
	}
	if err := left.Connect(e.gain, ChannelLeft); err != nil {
		return fmt.Errorf("%w: connecting oscillator: %v", ErrGraphCreation, err)
	}
	if err := right.Connect(e.gain, ChannelRight); err != nil {
		return fmt.Errorf("%w: connecting oscillator: %v", ErrGraphCreation, err)
	}

	now := e.ac.CurrentTime()
	at := now
	skip := offset
	for i, seg := range e.schedule {
		last := i == len(e.schedule)-1
		if skip >= seg.DurationSeconds && !last {
			skip -= seg.DurationSeconds
			continue
		}
		l, r := Frequencies(seg.FrequencyOffsetHz)
		left.Frequency().SetValueAtTime(l, at)
		right.Frequency().SetValueAtTime(r, at)
		if skip < seg.DurationSeconds {
			at += seg.DurationSeconds - skip
		}
		skip = 0
	}

	left.Start(now)
	right.Start(now)
	e.left, e.right = left, right
	return nil
}

// Pause suspends the audio clock and freezes the reported position.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing || e.ac == nil {
		return nil
	}
	pos := e.positionLocked()
	if err := e.ac.Suspend(ctx); err != nil {
		return fmt.Errorf("suspending audio context: %w", err)
	}
	e.timeAtPause = pos
	e.elapsed = pos
	e.playing = false
	if e.stopPoll != nil {
		e.stopPoll()
		e.stopPoll = nil
	}
	return nil
}

// Stop tears down the graph and resets every counter. It is safe to call
// repeatedly and from teardown paths.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

// Cleanup is an alias of Stop for unmount paths.
func (e *Engine) Cleanup() { e.Stop() }

// Close stops playback and releases a prepared graph.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
	if e.spare != nil {
		if err := e.spare.Close(); err != nil {
			e.log.Warn("closing audio context", "error", err)
		}
		e.spare, e.spareGain = nil, nil
	}
}

func (e *Engine) teardownLocked() {
	if e.stopPoll != nil {
		e.stopPoll()
		e.stopPoll = nil
	}
	if e.ac != nil {
		now := e.ac.CurrentTime()
		if e.left != nil {
			e.left.Stop(now)
		}
		if e.right != nil {
			e.right.Stop(now)
		}
		if err := e.ac.Close(); err != nil {
			e.log.Warn("closing audio context", "error", err)
		}
	}
	e.ac = nil
	e.gain = nil
	e.left, e.right = nil, nil
	e.schedule = nil
	e.total = 0
	e.scheduled = false
	e.playing = false
	e.timeAtPause = 0
	e.resumedAt = 0
	e.elapsed = 0
}

// SetVolume applies level, clamped to [0,1], through the shared gain.
func (e *Engine) SetVolume(level float64) {
	level = min(max(level, 0), 1)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = level
	if e.gain != nil && e.ac != nil {
		e.gain.Gain().SetValueAtTime(level, e.ac.CurrentTime())
	}
}

// Volume returns the current volume level.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// Playing reports whether audio is currently running.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Scheduled reports whether a schedule is programmed, playing or paused.
func (e *Engine) Scheduled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduled
}

// Total returns the programmed session length in seconds.
func (e *Engine) Total() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

// Elapsed returns the session position in seconds read from the audio clock.
// While paused it is the position frozen at Pause.
func (e *Engine) Elapsed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing {
		e.elapsed = e.positionLocked()
	}
	return e.elapsed
}

func (e *Engine) positionLocked() float64 {
	if e.ac == nil {
		return e.timeAtPause
	}
	return e.timeAtPause + (e.ac.CurrentTime() - e.resumedAt)
}

// Tick performs one position poll. Reaching the end of the schedule stops
// the engine and reports the actual duration through OnFinished.
func (e *Engine) Tick() {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return
	}
	pos := e.positionLocked()
	e.elapsed = pos
	total := e.total
	finished := total > 0 && pos >= total
	if finished {
		e.teardownLocked()
	}
	onPos, onDone := e.onPos, e.onDone
	e.mu.Unlock()

	if onPos != nil {
		onPos(min(pos, total))
	}
	if finished {
		e.log.Info("audio schedule finished", "seconds", total)
		if onDone != nil {
			onDone(total)
		}
	}
}

func (e *Engine) startPollLocked() {
	if e.interval < 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.stopPoll = cancel
	interval := e.interval
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if ctx.Err() != nil {
					return
				}
				e.Tick()
			}
		}
	}()
}
