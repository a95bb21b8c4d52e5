package puzzle

import (
	"time"

	"github.com/wfunc/crosskey/network"
)

// Shake counts vigorous shakes. A sample counts when it is strong enough, the
// puzzle is not yet complete, and it is the first count or at least
// MinInterval after the previous one. Completed latches.
type Shake struct {
	Count       int
	LastShakeAt time.Time
	Completed   bool

	Threshold   float64
	MinInterval time.Duration
	Required    int
}

func (Shake) Kind() Kind { return KindShake }

func (s Shake) Apply(in Input) (State, Outcome) {
	si, ok := in.(ShakeInput)
	if !ok {
		return s, Outcome{}
	}
	if s.Completed || si.Magnitude < s.Threshold {
		return s, Outcome{}
	}
	if s.Count > 0 && si.At.Sub(s.LastShakeAt) < s.MinInterval {
		return s, Outcome{}
	}

	s.Count++
	s.LastShakeAt = si.At
	if s.Count >= s.Required {
		s.Completed = true
	}
	return s, Outcome{
		Replies: broadcast(network.EventShake, network.ShakeData{
			RoomRef:   network.RefTo(si.Room),
			Magnitude: si.Magnitude,
			Count:     s.Count,
			Completed: s.Completed,
			Required:  s.Required,
			From:      si.From,
			T:         si.T,
		}),
		Solved: s.Completed,
	}
}

func (s Shake) Fill(st *network.StatusData) {
	st.ShakeCount = ptr(s.Count)
	st.Completed = ptr(s.Completed)
	st.Required = ptr(s.Required)
}
