package broadcast

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/crosskey/network"
	"github.com/wfunc/crosskey/room"
	"github.com/wfunc/crosskey/session"
)

// MockConnection records what it was asked to send.
type MockConnection struct {
	mu   sync.Mutex
	sent []network.Message
	fail bool
}

func (m *MockConnection) Send(msg network.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("broken pipe")
	}
	m.sent = append(m.sent, msg)
	return nil
}
func (m *MockConnection) ReadFrame() (network.Frame, error)   { return network.Frame{}, nil }
func (m *MockConnection) Ping() error                         { return nil }
func (m *MockConnection) Close() error                        { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration) {}

func (m *MockConnection) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fixture struct {
	registry *room.Registry
	sessions *session.Manager
	b        *RoomBroadcaster
	conns    map[string]*MockConnection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: room.NewRegistry(),
		sessions: session.NewManager(),
		conns:    make(map[string]*MockConnection),
	}
	f.b = NewRoomBroadcaster(f.registry, f.sessions)
	for id, role := range map[string]room.Role{"pc1": room.RoleDisplay, "mob1": room.RoleController} {
		conn := &MockConnection{}
		f.conns[id] = conn
		f.sessions.Add(session.NewSession(id, conn))
		if _, err := f.registry.Join("ABCDEF", role, id); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}
	return f
}

var testMsg = network.NewMessage(network.EventPaired, network.PairedData{Code: "ABCDEF"})

func TestRoomBroadcaster_BroadcastToRoom(t *testing.T) {
	f := newFixture(t)
	if err := f.b.BroadcastToRoom("ABCDEF", testMsg); err != nil {
		t.Fatalf("BroadcastToRoom failed: %v", err)
	}
	for id, conn := range f.conns {
		if conn.count() != 1 {
			t.Errorf("%s expected 1 message, got %d", id, conn.count())
		}
	}
	if err := f.b.BroadcastToRoom("ZZZZZZ", testMsg); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestRoomBroadcaster_Filters(t *testing.T) {
	f := newFixture(t)
	r, _ := f.registry.Get("ABCDEF")
	_, peers := r.Snapshot()

	f.b.SendToPeers(peers, testMsg, Except("pc1"))
	if f.conns["pc1"].count() != 0 || f.conns["mob1"].count() != 1 {
		t.Errorf("Except should skip pc1: pc1=%d mob1=%d", f.conns["pc1"].count(), f.conns["mob1"].count())
	}

	f.b.SendToPeers(peers, testMsg, NotRole(room.RoleController))
	if f.conns["pc1"].count() != 1 || f.conns["mob1"].count() != 1 {
		t.Errorf("NotRole should only reach the display: pc1=%d mob1=%d", f.conns["pc1"].count(), f.conns["mob1"].count())
	}
}

func TestRoomBroadcaster_FailedSendDoesNotStopOthers(t *testing.T) {
	f := newFixture(t)
	f.conns["pc1"].fail = true
	if err := f.b.BroadcastToRoom("ABCDEF", testMsg); err != nil {
		t.Fatalf("BroadcastToRoom failed: %v", err)
	}
	if f.conns["mob1"].count() != 1 {
		t.Error("A failing peer must not block delivery to the others")
	}
}

func TestRoomBroadcaster_SendToUnknown(t *testing.T) {
	f := newFixture(t)
	if err := f.b.SendTo("ghost", testMsg); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}
