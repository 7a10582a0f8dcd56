package mqttserver

import (
	"errors"
	"net"
	"testing"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

func startBroker(t *testing.T) (*mqtt.Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	server := mqtt.New(&mqtt.Options{InlineClient: true})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("add hook: %v", err)
	}
	if err := server.AddListener(listeners.NewTCP(listeners.Config{ID: "test", Address: addr})); err != nil {
		t.Fatalf("add listener: %v", err)
	}
	if err := server.Serve(); err != nil {
		t.Fatalf("serve: %v", err)
	}
	return server, "mqtt://" + addr
}

func TestPublishAfterBrokerLossIsBounded(t *testing.T) {
	server, url := startBroker(t)
	client, err := NewClient(Options{BrokerURL: url, ClientID: "bounded", Timeout: 300 * time.Millisecond})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close(0)

	if err := client.Publish("mpc/v1/test", 1, false, []byte("up")); err != nil {
		t.Fatalf("publish while connected: %v", err)
	}

	_ = server.Close()

	done := make(chan error, 1)
	go func() {
		done <- client.Publish("mpc/v1/node/x/presence", 1, true, []byte("offline"))
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected publish to fail without a broker")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("publish blocked after broker shutdown")
	}

	start := time.Now()
	if err := client.Unsubscribe("mpc/v1/node/x/call"); err == nil {
		t.Fatalf("expected unsubscribe to fail without a broker")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("unsubscribe took %s", elapsed)
	}
}

func TestWaitReportsTimeout(t *testing.T) {
	c := &Client{timeout: 10 * time.Millisecond}
	err := c.wait("publish", "t", pendingToken{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

// pendingToken never completes.
type pendingToken struct{}

func (pendingToken) Wait() bool { select {} }

func (pendingToken) WaitTimeout(d time.Duration) bool {
	time.Sleep(d)
	return false
}

func (pendingToken) Done() <-chan struct{} { return nil }

func (pendingToken) Error() error { return nil }
