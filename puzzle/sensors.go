package puzzle

import (
	"math"

	"github.com/wfunc/crosskey/network"
)

// Light mirrors the controller's ambient light level, clamped to [0, 1].
type Light struct {
	Level float64
}

func NewLight() Light { return Light{Level: 1} }

func (Light) Kind() Kind { return KindLight }

func (l Light) Apply(in Input) (State, Outcome) {
	li, ok := in.(LightInput)
	if !ok {
		return l, Outcome{}
	}
	l.Level = clamp(li.Level, 0, 1)
	return l, Outcome{Replies: broadcast(network.EventLightLevel, network.LightLevelData{
		RoomRef: network.RefTo(li.Room),
		Level:   l.Level,
		From:    li.From,
		T:       li.T,
	})}
}

func (l Light) Fill(st *network.StatusData) {
	st.LightLevel = ptr(l.Level)
}

// Orientation tracks the compass heading and which directions were faced.
type Orientation struct {
	Heading   float64
	Direction string
	Visited   network.Visited
}

func (Orientation) Kind() Kind { return KindOrientation }

// NormalizeHeading maps any angle into [0, 360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

func (o Orientation) Apply(in Input) (State, Outcome) {
	hi, ok := in.(HeadingInput)
	if !ok {
		return o, Outcome{}
	}
	wasDone := o.Visited.All()
	o.Heading = NormalizeHeading(hi.Heading)
	if mark, ok := visitedFor(hi.Direction); ok {
		o.Direction = hi.Direction
		o.Visited = o.Visited.Or(mark)
	}
	if hi.Visited != nil {
		o.Visited = o.Visited.Or(*hi.Visited)
	}
	return o, Outcome{
		Replies: broadcast(network.EventHeading, network.HeadingData{
			RoomRef:   network.RefTo(hi.Room),
			Heading:   o.Heading,
			Direction: o.Direction,
			Visited:   o.Visited,
			From:      hi.From,
			T:         hi.T,
		}),
		Solved: o.Visited.All() && !wasDone,
	}
}

func (o Orientation) Fill(st *network.StatusData) {
	st.Heading = ptr(o.Heading)
	st.Direction = o.Direction
	st.Visited = ptr(o.Visited)
}

func visitedFor(direction string) (network.Visited, bool) {
	switch direction {
	case "north":
		return network.Visited{North: true}, true
	case "east":
		return network.Visited{East: true}, true
	case "south":
		return network.Visited{South: true}, true
	case "west":
		return network.Visited{West: true}, true
	}
	return network.Visited{}, false
}

// Audio tracks microphone loudness. ThresholdReached latches.
type Audio struct {
	Level            float64
	Peak             float64
	Threshold        float64
	ThresholdReached bool
}

func (Audio) Kind() Kind { return KindAudio }

func (a Audio) Apply(in Input) (State, Outcome) {
	ai, ok := in.(AudioInput)
	if !ok {
		return a, Outcome{}
	}
	wasReached := a.ThresholdReached
	a.Level = clamp(ai.Level, 0, 1)
	a.Peak = math.Max(a.Peak, a.Level)
	if ai.Peak != nil {
		a.Peak = math.Max(a.Peak, clamp(*ai.Peak, 0, 1))
	}
	if a.Peak >= a.Threshold {
		a.ThresholdReached = true
	}
	return a, Outcome{
		Replies: broadcast(network.EventAudioLevel, network.AudioLevelData{
			RoomRef:          network.RefTo(ai.Room),
			Level:            a.Level,
			Peak:             a.Peak,
			Threshold:        a.Threshold,
			ThresholdReached: a.ThresholdReached,
			From:             ai.From,
			T:                ai.T,
		}),
		Solved: a.ThresholdReached && !wasReached,
	}
}

func (a Audio) Fill(st *network.StatusData) {
	st.Level = ptr(a.Level)
	st.Peak = ptr(a.Peak)
	st.Threshold = ptr(a.Threshold)
	st.ThresholdReached = ptr(a.ThresholdReached)
}
