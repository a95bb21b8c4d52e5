// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/crosskey/logger"
	"github.com/wfunc/crosskey/network"
	"github.com/wfunc/crosskey/room"
	"github.com/wfunc/crosskey/session"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrSessionNotFound = errors.New("session not found")
)

// 广播接口
type Broadcaster interface {
	SendTo(connID string, msg network.Message) error
	SendToPeers(peers []room.Peer, msg network.Message, keep Filter)
	BroadcastToRoom(code string, msg network.Message) error
}

// Filter selects which peers receive a message. nil keeps everyone.
type Filter func(room.Peer) bool

// Except skips one connection.
func Except(connID string) Filter {
	return func(p room.Peer) bool { return p.ConnID != connID }
}

// NotRole skips every peer holding role.
func NotRole(role room.Role) Filter {
	return func(p room.Peer) bool { return p.Role != role }
}

// 基于房间的广播器
type RoomBroadcaster struct {
	registry       *room.Registry
	sessionManager *session.Manager
}

func NewRoomBroadcaster(registry *room.Registry, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		registry:       registry,
		sessionManager: sessionManager,
	}
}

func (b *RoomBroadcaster) SendTo(connID string, msg network.Message) error {
	s, exists := b.sessionManager.Get(connID)
	if !exists {
		return ErrSessionNotFound
	}
	return s.Send(msg)
}

// SendToPeers delivers to a peer list captured under the room lock. A failed
// write is logged and skipped; the reader side of that connection will notice
// and clean up.
func (b *RoomBroadcaster) SendToPeers(peers []room.Peer, msg network.Message, keep Filter) {
	for _, p := range peers {
		if keep != nil && !keep(p) {
			continue
		}
		if err := b.SendTo(p.ConnID, msg); err != nil {
			logger.Log.Debugw("send failed", "conn", p.ConnID, "event", msg.Event, "error", err)
		}
	}
}

func (b *RoomBroadcaster) BroadcastToRoom(code string, msg network.Message) error {
	r, exists := b.registry.Get(code)
	if !exists {
		return ErrRoomNotFound
	}
	_, peers := r.Snapshot()
	b.SendToPeers(peers, msg, nil)
	return nil
}
