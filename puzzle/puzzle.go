// Package puzzle holds the per-room puzzle state machines. Every state is an
// immutable value; Apply returns the successor plus the messages it emits.
package puzzle

import (
	"time"

	"github.com/wfunc/crosskey/network"
)

type Kind string

const (
	KindSelection   Kind = "selection"
	KindMaze        Kind = "maze"
	KindLight       Kind = "light"
	KindOrientation Kind = "orientation"
	KindAudio       Kind = "audio"
	KindShake       Kind = "shake"
)

// Params are the tunables the puzzles read when they start.
type Params struct {
	AudioThreshold   float64
	ShakeThreshold   float64
	ShakeMinInterval time.Duration
	ShakeRequired    int
}

func DefaultParams() Params {
	return Params{
		AudioThreshold:   0.35,
		ShakeThreshold:   18,
		ShakeMinInterval: 280 * time.Millisecond,
		ShakeRequired:    8,
	}
}

// Meta is carried by every input.
type Meta struct {
	Room string    // normalized room code, echoed in replies
	From string    // wire role of the sender
	T    *float64  // client timestamp, echoed untouched
	At   time.Time // server receive time
}

// Input is a sensor or control event addressed to the active puzzle.
type Input interface {
	Kind() Kind
	meta() Meta
}

type MoveInput struct {
	Meta
	Direction string
}

type LightInput struct {
	Meta
	Level float64
}

type HeadingInput struct {
	Meta
	Heading   float64
	Direction string
	Visited   *network.Visited
}

type AudioInput struct {
	Meta
	Level float64
	Peak  *float64
}

type ShakeInput struct {
	Meta
	Magnitude float64
}

func (MoveInput) Kind() Kind    { return KindMaze }
func (LightInput) Kind() Kind   { return KindLight }
func (HeadingInput) Kind() Kind { return KindOrientation }
func (AudioInput) Kind() Kind   { return KindAudio }
func (ShakeInput) Kind() Kind   { return KindShake }

func (m Meta) meta() Meta { return m }

// Scope says who receives a reply.
type Scope int

const (
	ToSender Scope = iota
	ToRoom
)

type Reply struct {
	Scope   Scope
	Message network.Message
}

// Outcome is what one Apply produced. Solved is set only on the input that
// first completes the puzzle.
type Outcome struct {
	Replies []Reply
	Solved  bool
}

// State is one of Pending, Maze, Light, Orientation, Audio or Shake.
type State interface {
	Kind() Kind
	// Apply handles an input. Inputs for another kind leave the state as is
	// and produce nothing.
	Apply(in Input) (State, Outcome)
	// Fill writes the puzzle fields of a status snapshot.
	Fill(st *network.StatusData)
}

// Pending is the state before a problem is chosen.
type Pending struct{}

func (Pending) Kind() Kind                     { return KindSelection }
func (p Pending) Apply(Input) (State, Outcome) { return p, Outcome{} }
func (Pending) Fill(*network.StatusData)       {}

// Problem ids understood by New.
const (
	ProblemMazeEasy    = "1"
	ProblemMazeHard    = "2"
	ProblemLight       = "3"
	ProblemOrientation = "4"
	ProblemAudio       = "5"
	ProblemShake       = "6"
)

// New returns the initial state for a problem id; ok is false for ids
// nobody knows.
func New(problem string, p Params) (State, bool) {
	switch problem {
	case ProblemMazeEasy, ProblemMazeHard:
		return NewMaze(problem), true
	case ProblemLight:
		return NewLight(), true
	case ProblemOrientation:
		return Orientation{}, true
	case ProblemAudio:
		return Audio{Threshold: p.AudioThreshold}, true
	case ProblemShake:
		return Shake{
			Threshold:   p.ShakeThreshold,
			MinInterval: p.ShakeMinInterval,
			Required:    p.ShakeRequired,
		}, true
	}
	return nil, false
}

func broadcast(event string, data any) []Reply {
	return []Reply{{Scope: ToRoom, Message: network.NewMessage(event, data)}}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ptr[T any](v T) *T { return &v }
