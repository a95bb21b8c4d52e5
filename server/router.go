package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wfunc/crosskey/broadcast"
	"github.com/wfunc/crosskey/logger"
	"github.com/wfunc/crosskey/models"
	"github.com/wfunc/crosskey/network"
	"github.com/wfunc/crosskey/puzzle"
	"github.com/wfunc/crosskey/room"
	"github.com/wfunc/crosskey/session"
)

var knownEvents = map[string]struct{}{
	network.EventCreate:          {},
	network.EventJoin:            {},
	network.EventProblemSelected: {},
	network.EventNavigateBack:    {},
	network.EventMoveDirection:   {},
	network.EventLightLevel:      {},
	network.EventHeading:         {},
	network.EventAudioLevel:      {},
	network.EventShake:           {},
	network.EventMove:            {},
	network.EventProblemSolved:   {},
}

// dispatch handles one inbound frame. Validation failures are logged and
// dropped; nothing is reported back to the sender.
func (s *Server) dispatch(ctx context.Context, sess *session.Session, frame network.Frame) {
	start := time.Now()
	label := frame.Event
	if _, ok := knownEvents[label]; !ok {
		label = "unknown"
	}
	s.monitor.IncEventsReceived(label)

	ctx, span := s.tracer.Start(ctx, "crosskey.event "+label, trace.WithAttributes(
		attribute.String("crosskey.event", label),
		attribute.String("crosskey.conn", sess.GetID()),
	))
	defer span.End()

	if err := s.route(ctx, sess, frame); err != nil {
		logger.Log.Debugw("event dropped", "conn", sess.GetID(), "event", frame.Event, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.monitor.ObserveEventLatency(time.Since(start))
}

func (s *Server) route(ctx context.Context, sess *session.Session, frame network.Frame) error {
	switch frame.Event {
	case network.EventCreate:
		return s.handleCreate(sess)
	case network.EventJoin:
		var p network.JoinPayload
		if err := frame.Decode(&p); err != nil {
			return err
		}
		return s.handleJoin(sess, p)
	case network.EventProblemSelected:
		var p network.ProblemSelectedPayload
		if err := frame.Decode(&p); err != nil {
			return err
		}
		return s.handleProblemSelected(sess, p)
	case network.EventNavigateBack:
		var p network.NavigateBackPayload
		if err := frame.Decode(&p); err != nil {
			return err
		}
		return s.handleNavigateBack(sess, p)
	case network.EventMoveDirection, network.EventLightLevel, network.EventHeading,
		network.EventAudioLevel, network.EventShake:
		return s.handlePuzzleInput(ctx, sess, frame)
	case network.EventMove:
		var p network.MovePayload
		if err := frame.Decode(&p); err != nil {
			return err
		}
		return s.handleMove(sess, p)
	case network.EventProblemSolved:
		var p network.ProblemSolvedPayload
		if err := frame.Decode(&p); err != nil {
			return err
		}
		return s.handleProblemSolved(sess, p)
	}
	return fmt.Errorf("%w: %q", network.ErrUnknownEvent, frame.Event)
}

// errNoRoom marks events addressed to a room that does not exist. They are
// dropped without a reply so room existence does not leak.
var errNoRoom = errors.New("no such room")

// resolveRoom finds the addressed room, falling back to the sender's own.
func (s *Server) resolveRoom(sess *session.Session, ref network.RoomRef) (*room.Room, string, error) {
	code := room.NormalizeCode(ref.Target())
	if code == "" {
		code, _ = s.registry.RoomOf(sess.GetID())
	}
	if code == "" {
		return nil, "", errNoRoom
	}
	rm, ok := s.registry.Get(code)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", errNoRoom, code)
	}
	return rm, code, nil
}

// senderRole is the sender's role in rm; non-members fall back to the role
// they claim.
func senderRole(rm *room.Room, connID, claimed string) room.Role {
	if p, ok := rm.Peer(connID); ok {
		return p.Role
	}
	return room.ParseRole(claimed)
}

// claimedRole prefers the role named in the payload; events like navigateBack
// say who initiated them.
func claimedRole(rm *room.Room, connID, claimed string) room.Role {
	if strings.TrimSpace(claimed) != "" {
		return room.ParseRole(claimed)
	}
	return senderRole(rm, connID, "")
}

// finite converts an optional number, rejecting missing, NaN and infinite values.
func finite(n *network.Number) (float64, bool) {
	if n == nil {
		return 0, false
	}
	f := float64(*n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func optional(n *network.Number) *float64 {
	if f, ok := finite(n); ok {
		return &f
	}
	return nil
}

func clampUnit(f float64) float64 {
	return math.Max(-1, math.Min(1, f))
}

func (s *Server) handleProblemSelected(sess *session.Session, p network.ProblemSelectedPayload) error {
	rm, code, err := s.resolveRoom(sess, p.RoomRef)
	if err != nil {
		return err
	}
	problem := strings.TrimSpace(string(p.Problem))
	initial, ok := puzzle.New(problem, s.params)
	if !ok {
		return fmt.Errorf("unknown problem %q", problem)
	}

	var dest *network.Destinations
	if p.Destinations != nil {
		d := network.Destinations{
			PC:     strings.TrimSpace(string(p.Destinations.PC)),
			Mobile: strings.TrimSpace(string(p.Destinations.Mobile)),
		}
		if d.PC != "" || d.Mobile != "" {
			dest = &d
		}
	}
	from := senderRole(rm, sess.GetID(), "")

	rm.Update(func(st *room.State, peers []room.Peer) {
		st.Step = room.StepProblemSelected
		st.Problem = problem
		st.Destinations = dest
		st.Puzzle = initial

		s.broadcaster.SendToPeers(peers, network.NewMessage(network.EventProblemSelected, network.ProblemSelectedData{
			RoomRef:      network.RefTo(code),
			Problem:      problem,
			Destinations: dest,
			From:         string(from),
		}), nil)
		s.broadcaster.SendToPeers(peers, network.NewMessage(network.EventStatus, snapshot(code, st, len(peers))), nil)
	})

	logger.Log.Debugf("Room %s selected problem %s", code, problem)
	s.record(models.RoomEvent{Code: code, Kind: models.EventProblemSelected, ConnID: sess.GetID(), Role: string(from), Problem: problem})
	return nil
}

func (s *Server) handleNavigateBack(sess *session.Session, p network.NavigateBackPayload) error {
	rm, code, err := s.resolveRoom(sess, p.RoomRef)
	if err != nil {
		return err
	}
	initiator := claimedRole(rm, sess.GetID(), p.Role)

	rm.Update(func(st *room.State, peers []room.Peer) {
		st.Step = room.StepProblemSelection
		st.Problem = ""
		st.Destinations = nil
		st.Puzzle = puzzle.Pending{}

		s.broadcaster.SendToPeers(peers, network.NewMessage(network.EventNavigateBack, network.NavigateBackData{
			RoomRef: network.RefTo(code),
			From:    string(initiator),
		}), broadcast.NotRole(initiator))
		s.broadcaster.SendToPeers(peers, network.NewMessage(network.EventStatus, snapshot(code, st, len(peers))), nil)
	})
	return nil
}

// handlePuzzleInput turns a sensor or control event into a puzzle input and
// applies it to the active puzzle.
func (s *Server) handlePuzzleInput(ctx context.Context, sess *session.Session, frame network.Frame) error {
	var (
		ref network.RoomRef
		in  func(meta puzzle.Meta) (puzzle.Input, error)
		t   *network.Number
	)

	switch frame.Event {
	case network.EventMoveDirection:
		var p network.MoveDirectionPayload
		if err := frame.Decode(&p); err != nil {
			return err
		}
		ref, t = p.RoomRef, p.T
		in = func(meta puzzle.Meta) (puzzle.Input, error) {
			return puzzle.MoveInput{Meta: meta, Direction: strings.ToLower(strings.TrimSpace(p.Direction))}, nil
		}
	case network.EventLightLevel:
		var p network.LightLevelPayload
		if err := frame.Decode(&p); err != nil {
			return err
		}
		ref, t = p.RoomRef, p.T
		in = func(meta puzzle.Meta) (puzzle.Input, error) {
			level, ok := finite(p.Level)
			if !ok {
				return nil, fmt.Errorf("lightLevel without a numeric level")
			}
			return puzzle.LightInput{Meta: meta, Level: level}, nil
		}
	case network.EventHeading:
		var p network.HeadingPayload
		if err := frame.Decode(&p); err != nil {
			return err
		}
		ref, t = p.RoomRef, p.T
		in = func(meta puzzle.Meta) (puzzle.Input, error) {
			heading, ok := finite(p.Heading)
			if !ok {
				return nil, fmt.Errorf("heading without a numeric heading")
			}
			return puzzle.HeadingInput{
				Meta:      meta,
				Heading:   heading,
				Direction: strings.ToLower(strings.TrimSpace(p.Direction)),
				Visited:   p.Visited,
			}, nil
		}
	case network.EventAudioLevel:
		var p network.AudioLevelPayload
		if err := frame.Decode(&p); err != nil {
			return err
		}
		ref, t = p.RoomRef, p.T
		in = func(meta puzzle.Meta) (puzzle.Input, error) {
			level, ok := finite(p.Level)
			if !ok {
				return nil, fmt.Errorf("audioLevel without a numeric level")
			}
			return puzzle.AudioInput{Meta: meta, Level: level, Peak: optional(p.Peak)}, nil
		}
	case network.EventShake:
		var p network.ShakePayload
		if err := frame.Decode(&p); err != nil {
			return err
		}
		ref, t = p.RoomRef, p.T
		in = func(meta puzzle.Meta) (puzzle.Input, error) {
			magnitude, ok := finite(p.Magnitude)
			if !ok {
				return nil, fmt.Errorf("shake without a numeric magnitude")
			}
			return puzzle.ShakeInput{Meta: meta, Magnitude: magnitude}, nil
		}
	default:
		return fmt.Errorf("%w: %q", network.ErrUnknownEvent, frame.Event)
	}

	rm, code, err := s.resolveRoom(sess, ref)
	if err != nil {
		return err
	}
	input, err := in(puzzle.Meta{
		Room: code,
		From: string(senderRole(rm, sess.GetID(), "")),
		T:    optional(t),
		At:   s.now(),
	})
	if err != nil {
		return err
	}
	s.applyPuzzle(ctx, sess, rm, code, input)
	return nil
}

// applyPuzzle runs the input through the room's puzzle and delivers the
// replies while the room is still locked, so delivery order matches state order.
func (s *Server) applyPuzzle(ctx context.Context, sess *session.Session, rm *room.Room, code string, in puzzle.Input) {
	var (
		solved  bool
		problem string
	)
	rm.Update(func(st *room.State, peers []room.Peer) {
		next, out := st.Puzzle.Apply(in)
		st.Puzzle = next
		solved, problem = out.Solved, st.Problem

		for _, reply := range out.Replies {
			switch reply.Scope {
			case puzzle.ToSender:
				s.reply(sess, reply.Message)
			case puzzle.ToRoom:
				s.broadcaster.SendToPeers(peers, reply.Message, nil)
			}
		}
	})

	if solved {
		trace.SpanFromContext(ctx).AddEvent("puzzle.completed", trace.WithAttributes(attribute.String("crosskey.problem", problem)))
		logger.Log.Infof("Room %s completed problem %s", code, problem)
		s.monitor.IncPuzzlesCompleted(problem)
		s.record(models.RoomEvent{Code: code, Kind: models.EventPuzzleCompleted, ConnID: sess.GetID(), Problem: problem})
	}
}

// handleMove relays a pointer vector to the other connections in the room.
func (s *Server) handleMove(sess *session.Session, p network.MovePayload) error {
	rm, _, err := s.resolveRoom(sess, p.RoomRef)
	if err != nil {
		return err
	}
	if p.Payload == nil {
		return fmt.Errorf("move without payload")
	}
	x, _ := finite(p.Payload.X)
	y, _ := finite(p.Payload.Y)
	from := senderRole(rm, sess.GetID(), "")

	_, peers := rm.Snapshot()
	s.broadcaster.SendToPeers(peers, network.NewMessage(network.EventMove, network.MoveData{
		X:    clampUnit(x),
		Y:    clampUnit(y),
		T:    optional(p.Payload.T),
		From: string(from),
	}), broadcast.Except(sess.GetID()))
	return nil
}

// handleProblemSolved relays a client-judged completion to the other side.
func (s *Server) handleProblemSolved(sess *session.Session, p network.ProblemSolvedPayload) error {
	rm, code, err := s.resolveRoom(sess, p.RoomRef)
	if err != nil {
		return err
	}
	from := claimedRole(rm, sess.GetID(), p.Role)

	_, peers := rm.Snapshot()
	s.broadcaster.SendToPeers(peers, network.NewMessage(network.EventProblemSolved, network.ProblemSolvedData{
		RoomRef: network.RefTo(code),
		From:    string(from),
	}), broadcast.Except(sess.GetID()))
	return nil
}
