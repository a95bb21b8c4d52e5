package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/crosskey/config"
	"github.com/wfunc/crosskey/network"
)

func newRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

func TestServeHealthCheck(t *testing.T) {
	h := newHarness(t, nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, newRequest("GET", "/healthz"))

	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "ok" {
		t.Errorf("healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestServeVersion(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Server.AllowOrigins = []string{"https://play.example.com"}
	})
	h.pair()

	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, newRequest("GET", "/version"))

	var info versionInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Name != "crosskey" || info.Version != "test" || info.CodeLen != 6 || info.Rooms != 1 {
		t.Errorf("info = %+v", info)
	}
	if len(info.AllowOrigins) != 1 || info.AllowOrigins[0] != "https://play.example.com" {
		t.Errorf("allowOrigins = %v", info.AllowOrigins)
	}
}

func TestServeQR(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Server.PublicURL = "https://play.example.com/" })

	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, newRequest("GET", "/qr/abcdef"))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("qr = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if img.Bounds().Dx() != qrSize {
		t.Errorf("width = %d, want %d", img.Bounds().Dx(), qrSize)
	}

	w = httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, newRequest("GET", "/qr/abc"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad code status = %d", w.Code)
	}
}

func TestJoinURL(t *testing.T) {
	h := newHarness(t, nil)
	r := newRequest("GET", "/qr/ABCDEF")
	r.Host = "game.local:3001"
	r.Header.Set("X-Forwarded-Proto", "https")

	if got := h.srv.joinURL(r, "ABCDEF"); got != "https://game.local:3001/?code=ABCDEF" {
		t.Errorf("joinURL = %q", got)
	}

	h.srv.cfg.Server.PublicURL = "https://play.example.com/"
	if got := h.srv.joinURL(r, "ABCDEF"); got != "https://play.example.com/?code=ABCDEF" {
		t.Errorf("joinURL = %q", got)
	}
}

func TestRealIP(t *testing.T) {
	r := newRequest("GET", "/")
	r.RemoteAddr = "10.0.0.1:5555"
	if got := realIP(r); got != "10.0.0.1:5555" {
		t.Errorf("realIP = %q", got)
	}
	r.Header.Set("X-Real-IP", "203.0.113.9")
	if got := realIP(r); got != "203.0.113.9:5555" {
		t.Errorf("realIP = %q", got)
	}
}

func TestWebSocketPairing(t *testing.T) {
	h := newHarness(t, nil)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		return conn
	}
	read := func(conn *websocket.Conn) map[string]any {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}

	pc := dial()
	defer pc.Close()
	if err := pc.WriteJSON(network.Message{Event: network.EventCreate}); err != nil {
		t.Fatal(err)
	}
	code := read(pc)
	if code["event"] != network.EventCode || code["data"].(map[string]any)["code"] != "ABCDEF" {
		t.Fatalf("first message = %v", code)
	}
	read(pc) // status

	mobile := dial()
	defer mobile.Close()
	if err := mobile.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	if err := mobile.WriteMessage(websocket.TextMessage, []byte(`{"type":"join","room":"abcdef","role":"controller"}`)); err != nil {
		t.Fatal(err)
	}

	want := []string{network.EventMemberUpdate, network.EventPaired, network.EventStatus}
	for _, event := range want {
		if msg := read(mobile); msg["event"] != event {
			t.Fatalf("got %v, want %s", msg["event"], event)
		}
	}
	if msg := read(pc); msg["event"] != network.EventMemberUpdate {
		t.Fatalf("display got %v", msg["event"])
	}
	if msg := read(pc); msg["event"] != network.EventPaired {
		t.Fatalf("display got %v", msg["event"])
	}

	mobile.Close()
	msg := read(pc)
	data := msg["data"].(map[string]any)
	if msg["event"] != network.EventMemberUpdate || data["type"] != "leave" || data["count"] != float64(1) {
		t.Errorf("after close = %v", msg)
	}
}
