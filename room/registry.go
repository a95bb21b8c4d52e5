// room/registry.go
package room

import (
	"errors"
	"sync"
	"time"
)

// maxCodeAttempts bounds collision retries when allocating a fresh code.
const maxCodeAttempts = 10

// errRoomClosed is returned by admit when the room was discarded after lookup.
var errRoomClosed = errors.New("room closed")

// JoinResult describes a successful join.
type JoinResult struct {
	Room    *Room
	Peer    Peer
	Count   int
	Created bool         // the room did not exist before this join
	Paired  bool         // this join took the room from one member to two
	Rejoin  bool         // the connection was already a member
	Left    *LeaveResult // the room the connection was moved out of, if any
}

// LeaveResult describes a removal.
type LeaveResult struct {
	Room   *Room
	Code   string
	Peer   Peer
	Count  int
	Closed bool // the room became empty and was discarded
}

// Registry 管理所有房间以及连接所在的房间
//
// 锁规则: 持有 Registry.mutex 时不会再去等待 Room.mutex; 房间锁只在释放注册表锁之后获取.
type Registry struct {
	rooms   map[string]*Room
	members map[string]string // connID -> code
	mutex   sync.RWMutex
	now     func() time.Time
}

// NewRegistry 创建一个新的房间注册表
func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		members: make(map[string]string),
		now:     time.Now,
	}
}

// Create allocates an empty room under a fresh code from gen, retrying on
// collision.
func (g *Registry) Create(gen func() (string, error)) (*Room, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for i := 0; i < maxCodeAttempts; i++ {
		code, err := gen()
		if err != nil {
			return nil, err
		}
		if _, taken := g.rooms[code]; taken {
			continue
		}
		r := newRoom(code, g.now())
		g.rooms[code] = r
		return r, nil
	}
	return nil, ErrCodeExhausted
}

// Join adds connID to the room named code, creating it if needed. The code
// must already be normalized. A connection that sits in another room is
// moved out of it only once the new join has succeeded.
func (g *Registry) Join(code string, role Role, connID string) (JoinResult, error) {
	if !ValidCode(code) {
		return JoinResult{}, ErrBadCode
	}

	for {
		r, created := g.lookupOrInsert(code)
		res, err := g.admit(r, Peer{ConnID: connID, Role: role, JoinedAt: g.now()})
		if errors.Is(err, errRoomClosed) {
			// the room emptied between lookup and admit; drop it and start over
			g.forget(code, r)
			continue
		}
		if err != nil {
			return JoinResult{}, err
		}
		res.Created = created

		g.mutex.Lock()
		prev, had := g.members[connID]
		g.members[connID] = code
		g.mutex.Unlock()

		if had && prev != code {
			if left, ok := g.removeFrom(prev, connID); ok {
				res.Left = &left
			}
		}
		return res, nil
	}
}

// lookupOrInsert returns the room for code, inserting an empty one if absent.
func (g *Registry) lookupOrInsert(code string) (*Room, bool) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if r, exists := g.rooms[code]; exists {
		return r, false
	}
	r := newRoom(code, g.now())
	g.rooms[code] = r
	return r, true
}

// forget removes code from the map if it still points at r.
func (g *Registry) forget(code string, r *Room) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.rooms[code] == r {
		delete(g.rooms, code)
	}
}

func (g *Registry) admit(r *Room, p Peer) (JoinResult, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return JoinResult{}, errRoomClosed
	}
	before := len(r.peers)
	rejoined, err := r.add(p)
	if err != nil {
		return JoinResult{}, err
	}
	count := len(r.peers)
	return JoinResult{
		Room:   r,
		Peer:   r.peers[p.ConnID],
		Count:  count,
		Paired: !rejoined && before < MaxPeers && count == MaxPeers,
		Rejoin: rejoined,
	}, nil
}

// Leave removes connID from whatever room it is in. The room is discarded
// once its last member leaves.
func (g *Registry) Leave(connID string) (LeaveResult, bool) {
	g.mutex.Lock()
	code, ok := g.members[connID]
	if ok {
		delete(g.members, connID)
	}
	g.mutex.Unlock()

	if !ok {
		return LeaveResult{}, false
	}
	return g.removeFrom(code, connID)
}

// removeFrom takes connID out of the room named code. 调用方不能持有 g.mutex
func (g *Registry) removeFrom(code, connID string) (LeaveResult, bool) {
	g.mutex.RLock()
	r, exists := g.rooms[code]
	g.mutex.RUnlock()
	if !exists {
		return LeaveResult{}, false
	}

	r.mutex.Lock()
	peer, removed := r.remove(connID)
	count := len(r.peers)
	if removed && count == 0 {
		r.closed = true
	}
	r.mutex.Unlock()

	if !removed {
		return LeaveResult{}, false
	}
	if count == 0 {
		g.forget(code, r)
	}
	return LeaveResult{Room: r, Code: code, Peer: peer, Count: count, Closed: count == 0}, true
}

// Get 查找房间
func (g *Registry) Get(code string) (*Room, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	r, exists := g.rooms[code]
	return r, exists
}

// RoomOf returns the code of the room connID is in.
func (g *Registry) RoomOf(connID string) (string, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	code, ok := g.members[connID]
	return code, ok
}

// Count 当前房间数
func (g *Registry) Count() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.rooms)
}

// Discard drops an empty room that was created but never joined.
func (g *Registry) Discard(code string) {
	g.mutex.RLock()
	r, exists := g.rooms[code]
	g.mutex.RUnlock()
	if !exists {
		return
	}

	r.mutex.Lock()
	empty := len(r.peers) == 0
	if empty {
		r.closed = true
	}
	r.mutex.Unlock()

	if empty {
		g.forget(code, r)
	}
}
