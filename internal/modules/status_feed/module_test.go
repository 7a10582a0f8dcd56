package statusfeed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

func dialFeed(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, err
}

func readState(t *testing.T, conn *websocket.Conn) mpc.StateMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg mpc.StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func waitSubscribers(t *testing.T, m *Module, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, have %d", n, m.Subscribers())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFeedSendsLatestThenUpdates(t *testing.T) {
	m, err := NewModule(nil, Config{})
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	m.Broadcast(mpc.StateMessage{Daemon: "d", Status: mpc.Status{State: mpc.StatePaused}, TS: 1})

	conn, err := dialFeed(t, srv, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if msg := readState(t, conn); msg.Status.State != mpc.StatePaused {
		t.Fatalf("expected paused snapshot, got %s", msg.Status.State)
	}

	waitSubscribers(t, m, 1)
	m.Broadcast(mpc.StateMessage{Daemon: "d", Status: mpc.Status{State: mpc.StatePlaying, Volume: 40}, Changed: []string{"player"}, TS: 2})
	msg := readState(t, conn)
	if msg.Status.State != mpc.StatePlaying || msg.Status.Volume != 40 || len(msg.Changed) != 1 {
		t.Fatalf("unexpected update %+v", msg)
	}

	_ = conn.Close()
	waitSubscribers(t, m, 0)
}

func TestFeedRejectsOrigin(t *testing.T) {
	m, err := NewModule(nil, Config{AllowedOrigins: []string{"http://ok.example"}})
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	if _, err := dialFeed(t, srv, header); err == nil {
		t.Fatalf("expected handshake failure")
	}

	header.Set("Origin", "http://ok.example")
	if _, err := dialFeed(t, srv, header); err != nil {
		t.Fatalf("dial allowed origin: %v", err)
	}
}

func TestNewModuleValidatesPath(t *testing.T) {
	if _, err := NewModule(nil, Config{Path: "ws"}); err == nil {
		t.Fatalf("expected error")
	}
}
