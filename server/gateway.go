package server

import (
	"errors"
	"fmt"

	"github.com/wfunc/crosskey/config"
	"github.com/wfunc/crosskey/logger"
	"github.com/wfunc/crosskey/models"
	"github.com/wfunc/crosskey/network"
	"github.com/wfunc/crosskey/room"
	"github.com/wfunc/crosskey/session"
)

// errorMsg codes
const (
	ErrCodeBadCode       = "BAD_CODE"
	ErrCodeRoomFull      = "ROOM_FULL"
	ErrCodeCodeExhausted = "CODE_EXHAUSTED"
)

// reply sends to one session; failures only matter to that session's reader.
func (s *Server) reply(sess *session.Session, msg network.Message) {
	if err := sess.Send(msg); err != nil {
		logger.Log.Debugf("Failed to send %s to %s: %v", msg.Event, sess.GetID(), err)
	}
}

func (s *Server) sendError(sess *session.Session, code, message string) {
	s.reply(sess, network.NewMessage(network.EventError, network.ErrorData{Code: code, Message: message}))
}

// snapshot builds a status payload; the caller holds the room lock.
func snapshot(code string, st *room.State, count int) network.StatusData {
	data := network.StatusData{
		RoomRef:      network.RefTo(code),
		Step:         string(st.Step),
		Count:        count,
		Problem:      st.Problem,
		Destinations: st.Destinations,
	}
	st.Puzzle.Fill(&data)
	return data
}

// handleCreate allocates a fresh room and makes the sender its display.
func (s *Server) handleCreate(sess *session.Session) error {
	rm, err := s.registry.Create(s.genCode)
	if err != nil {
		if errors.Is(err, room.ErrCodeExhausted) {
			s.sendError(sess, ErrCodeCodeExhausted, "could not allocate a room code, try again")
		}
		return fmt.Errorf("create room: %w", err)
	}

	res, err := s.registry.Join(rm.Code, room.RoleDisplay, sess.GetID())
	if err != nil {
		s.registry.Discard(rm.Code)
		return fmt.Errorf("join created room: %w", err)
	}
	if res.Left != nil {
		s.afterLeave(*res.Left)
	}

	logger.Log.Infof("Session %s created room %s", sess.GetID(), rm.Code)
	s.record(models.RoomEvent{Code: rm.Code, Kind: models.EventCreated, ConnID: sess.GetID(), Role: string(room.RoleDisplay), Members: res.Count})

	res.Room.Update(func(st *room.State, peers []room.Peer) {
		status := snapshot(rm.Code, st, len(peers))
		status.Role = string(room.RoleDisplay)
		s.reply(sess, network.NewMessage(network.EventCode, network.CodeData{Code: rm.Code}))
		s.reply(sess, network.NewMessage(network.EventStatus, status))
	})
	return nil
}

// handleJoin puts the sender into the room named by the payload.
func (s *Server) handleJoin(sess *session.Session, p network.JoinPayload) error {
	code := room.NormalizeCode(p.Target())
	if !room.ValidCode(code) {
		s.monitor.IncJoinsRejected(ErrCodeBadCode)
		s.sendError(sess, ErrCodeBadCode, "room code must be 6 characters")
		return nil
	}
	role := room.ParseRole(p.Role)

	res, err := s.registry.Join(code, role, sess.GetID())
	switch {
	case errors.Is(err, room.ErrRoomFull):
		s.monitor.IncJoinsRejected(ErrCodeRoomFull)
		s.sendError(sess, ErrCodeRoomFull, "room already has two devices")
		logger.Log.Infof("Session %s rejected from full room %s", sess.GetID(), code)
		return nil
	case err != nil:
		return fmt.Errorf("join %s: %w", code, err)
	}
	if res.Left != nil {
		s.afterLeave(*res.Left)
	}

	logger.Log.Infof("Session %s joined room %s as %s (%d/%d)", sess.GetID(), code, role, res.Count, room.MaxPeers)
	s.record(models.RoomEvent{Code: code, Kind: models.EventJoined, ConnID: sess.GetID(), Role: string(role), Members: res.Count})
	if res.Paired {
		s.monitor.IncPairings()
		s.record(models.RoomEvent{Code: code, Kind: models.EventPaired, Members: res.Count})
	}

	notifyPaired := res.Paired
	if s.cfg.Room.PairedNotify == config.PairedAlways {
		notifyPaired = res.Count >= room.MaxPeers
	}

	res.Room.Update(func(st *room.State, peers []room.Peer) {
		if len(peers) >= room.MaxPeers && st.Step == room.StepWaiting {
			st.Step = room.StepPaired
		}
		s.broadcaster.SendToPeers(peers, network.NewMessage(network.EventMemberUpdate, network.MemberUpdateData{
			Type:  "join",
			Role:  string(role),
			Count: len(peers),
		}), nil)
		if notifyPaired {
			s.broadcaster.SendToPeers(peers, network.NewMessage(network.EventPaired, network.PairedData{Code: code}), nil)
		}
		status := snapshot(code, st, len(peers))
		status.Role = string(role)
		s.reply(sess, network.NewMessage(network.EventStatus, status))
	})
	return nil
}

// handleDisconnect runs when a connection closes.
func (s *Server) handleDisconnect(sess *session.Session) {
	if res, ok := s.registry.Leave(sess.GetID()); ok {
		s.afterLeave(res)
	}
}

// afterLeave tells the remaining member, or closes out an empty room.
func (s *Server) afterLeave(res room.LeaveResult) {
	s.record(models.RoomEvent{Code: res.Code, Kind: models.EventLeft, ConnID: res.Peer.ConnID, Role: string(res.Peer.Role), Members: res.Count})
	if res.Closed {
		logger.Log.Infof("Room %s closed", res.Code)
		s.record(models.RoomEvent{Code: res.Code, Kind: models.EventClosed})
		return
	}

	res.Room.Update(func(st *room.State, peers []room.Peer) {
		if len(peers) < room.MaxPeers && st.Step == room.StepPaired {
			st.Step = room.StepWaiting
		}
		s.broadcaster.SendToPeers(peers, network.NewMessage(network.EventMemberUpdate, network.MemberUpdateData{
			Type:  "leave",
			Role:  string(res.Peer.Role),
			Count: len(peers),
		}), nil)
	})
}
