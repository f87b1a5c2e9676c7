// Package audio drives a binaural-beat oscillator pair from a precomputed
// schedule on the audio rendering clock.
package audio

import (
	"context"
	"errors"
)

// ErrGraphCreation is returned when the rendering graph cannot be built.
// Callers surface it as "cannot start session".
var ErrGraphCreation = errors.New("audio graph creation failed")

// ErrClosed is returned by a context that has been closed.
var ErrClosed = errors.New("audio context closed")

// Channel selects which output channel a connection feeds.
type Channel int

const (
	ChannelBoth Channel = iota
	ChannelLeft
	ChannelRight
)

// Node is a connection target inside a rendering graph.
type Node any

// Param is an automatable value on the audio clock.
type Param interface {
	SetValueAtTime(value, at float64)
}

// Oscillator is a sine source.
type Oscillator interface {
	Frequency() Param
	Connect(dst Node, ch Channel) error
	Start(at float64)
	Stop(at float64)
}

// Gain scales everything connected into it.
type Gain interface {
	Gain() Param
	Connect(dst Node) error
}

// Context is a platform audio rendering graph with its own clock.
// CurrentTime is in seconds, monotonic, and does not advance while suspended.
type Context interface {
	CurrentTime() float64
	Resume(ctx context.Context) error
	Suspend(ctx context.Context) error
	Close() error
	NewOscillator() (Oscillator, error)
	NewGain() (Gain, error)
	Destination() Node
}

// Factory creates a fresh rendering context.
type Factory func() (Context, error)
