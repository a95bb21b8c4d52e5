// room/room.go
package room

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/crosskey/network"
	"github.com/wfunc/crosskey/puzzle"
)

// MaxPeers 每个房间最多两台设备: 一台大屏 + 一台手机
const MaxPeers = 2

var (
	ErrBadCode       = errors.New("bad room code")
	ErrRoomFull      = errors.New("room is full")
	ErrCodeExhausted = errors.New("could not allocate a unique room code")
)

// Role 设备角色
type Role string

const (
	RoleDisplay    Role = "pc"
	RoleController Role = "mobile"
	RoleGuest      Role = "guest"
)

// ParseRole maps the wire aliases onto a role. Anything unrecognised is a guest.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pc", "display":
		return RoleDisplay
	case "mobile", "controller":
		return RoleController
	}
	return RoleGuest
}

// Step 房间流程阶段
type Step string

const (
	StepWaiting          Step = "waiting"
	StepPaired           Step = "paired"
	StepProblemSelection Step = "problemSelection"
	StepProblemSelected  Step = "problemSelected"
)

// Peer 房间内的一条连接
type Peer struct {
	ConnID   string
	Role     Role
	JoinedAt time.Time
}

// State 是房间的权威状态, 只能在 Room.Update 中修改
type State struct {
	Step         Step
	Problem      string
	Destinations *network.Destinations
	Puzzle       puzzle.State
}

// Room 一个配对房间
type Room struct {
	Code      string
	CreatedAt time.Time

	mutex  sync.Mutex
	peers  map[string]Peer // connID -> peer
	order  []string        // join order
	state  State
	closed bool
}

func newRoom(code string, now time.Time) *Room {
	return &Room{
		Code:      code,
		CreatedAt: now,
		peers:     make(map[string]Peer),
		state:     State{Step: StepWaiting, Puzzle: puzzle.Pending{}},
	}
}

// Update runs fn with exclusive access to the room state. fn also receives
// the current peers, so anything it sends is ordered with the state change.
// ok is false when the room has already been discarded; fn is not called.
func (r *Room) Update(fn func(st *State, peers []Peer)) (ok bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return false
	}
	fn(&r.state, r.peersLocked())
	return true
}

// Snapshot returns a copy of the state and the current peers.
func (r *Room) Snapshot() (State, []Peer) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.state, r.peersLocked()
}

// Count 当前连接数
func (r *Room) Count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.peers)
}

// Peer looks a member up by connection id.
func (r *Room) Peer(connID string) (Peer, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	p, ok := r.peers[connID]
	return p, ok
}

func (r *Room) peersLocked() []Peer {
	out := make([]Peer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.peers[id])
	}
	return out
}

// add 加入或更新一个成员; 调用方持有 r.mutex
func (r *Room) add(p Peer) (rejoined bool, err error) {
	if old, exists := r.peers[p.ConnID]; exists {
		p.JoinedAt = old.JoinedAt
		r.peers[p.ConnID] = p
		return true, nil
	}
	if len(r.peers) >= MaxPeers {
		return false, ErrRoomFull
	}
	r.peers[p.ConnID] = p
	r.order = append(r.order, p.ConnID)
	return false, nil
}

// remove 调用方持有 r.mutex
func (r *Room) remove(connID string) (Peer, bool) {
	p, exists := r.peers[connID]
	if !exists {
		return Peer{}, false
	}
	delete(r.peers, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p, true
}
