package puzzle

import (
	"testing"
	"time"

	"github.com/wfunc/crosskey/network"
)

func TestNew_KnownProblems(t *testing.T) {
	want := map[string]Kind{
		"1": KindMaze,
		"2": KindMaze,
		"3": KindLight,
		"4": KindOrientation,
		"5": KindAudio,
		"6": KindShake,
	}
	for id, kind := range want {
		st, ok := New(id, DefaultParams())
		if !ok {
			t.Fatalf("New(%q) should be known", id)
		}
		if st.Kind() != kind {
			t.Errorf("New(%q) kind = %s, want %s", id, st.Kind(), kind)
		}
	}
}

func TestNew_UnknownProblem(t *testing.T) {
	for _, id := range []string{"", "0", "7", "maze"} {
		if _, ok := New(id, DefaultParams()); ok {
			t.Errorf("New(%q) should be rejected", id)
		}
	}
}

func TestNew_InitialValues(t *testing.T) {
	st, _ := New("2", DefaultParams())
	maze := st.(Maze)
	if maze.Player != (network.Point{X: 0, Y: 0}) || maze.Config.Goal != (network.Point{X: 5, Y: 5}) {
		t.Errorf("Unexpected hard maze start: %+v goal %+v", maze.Player, maze.Config.Goal)
	}

	light, _ := New("3", DefaultParams())
	if light.(Light).Level != 1 {
		t.Errorf("Light should start at 1, got %v", light.(Light).Level)
	}

	shake, _ := New("6", DefaultParams())
	if s := shake.(Shake); s.Count != 0 || s.Completed || s.Required != 8 {
		t.Errorf("Unexpected initial shake state: %+v", s)
	}
}

func TestApply_KindMismatchIsNoop(t *testing.T) {
	base := Meta{Room: "ABCDEF", From: "mobile"}
	inputs := []Input{
		MoveInput{Meta: base, Direction: "down"},
		LightInput{Meta: base, Level: 0.2},
		HeadingInput{Meta: base, Heading: 90, Direction: "east"},
		AudioInput{Meta: base, Level: 0.9},
		ShakeInput{Meta: base, Magnitude: 40},
	}
	states := []State{Pending{}, NewMaze("1"), NewLight(), Orientation{}, Audio{Threshold: 0.35}, Shake{Threshold: 18, Required: 8}}
	for _, st := range states {
		for _, in := range inputs {
			if in.Kind() == st.Kind() {
				continue
			}
			next, out := st.Apply(in)
			if len(out.Replies) != 0 || out.Solved {
				t.Errorf("%s applying %T should emit nothing, got %+v", st.Kind(), in, out)
			}
			if next.Kind() != st.Kind() {
				t.Errorf("%s applying %T changed kind to %s", st.Kind(), in, next.Kind())
			}
		}
	}
}

func TestStatusFill(t *testing.T) {
	var st network.StatusData
	Pending{}.Fill(&st)
	if st.Player != nil || st.LightLevel != nil || st.ShakeCount != nil {
		t.Errorf("Pending should not fill puzzle fields: %+v", st)
	}

	st = network.StatusData{}
	NewMaze("1").Fill(&st)
	if st.Player == nil || st.Goal == nil || *st.Goal != (network.Point{X: 4, Y: 4}) {
		t.Errorf("Maze fill missing fields: %+v", st)
	}

	st = network.StatusData{}
	Audio{Threshold: 0.35}.Fill(&st)
	if st.Threshold == nil || *st.Threshold != 0.35 || st.ThresholdReached == nil || *st.ThresholdReached {
		t.Errorf("Audio fill unexpected: %+v", st)
	}
}

func at(ms int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(ms) * time.Millisecond)
}
