//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mikey-austin/mpdbridge/internal/adapters/mqttserver"
	"github.com/mikey-austin/mpdbridge/internal/binding"
	"github.com/mikey-austin/mpdbridge/internal/daemon"
	"github.com/mikey-austin/mpdbridge/internal/modules/bridge"
	embeddedmqtt "github.com/mikey-austin/mpdbridge/internal/modules/embedded_mqtt"
	statuswatch "github.com/mikey-austin/mpdbridge/internal/modules/status_watch"
	"github.com/mikey-austin/mpdbridge/internal/mpdtest"
	"github.com/mikey-austin/mpdbridge/internal/player"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

const (
	bridgeNode = "mpd:bridge:itest"
	callerID   = "itest-caller"
)

type harness struct {
	ctx     context.Context
	daemon  *mpdtest.Server
	caller  *mqttserver.Client
	replies chan mpc.ReplyEnvelope
	seq     int
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func setup(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()

	srv := mpdtest.NewServer(t,
		mpdtest.Song{File: "a.flac", Tags: map[string]string{"Artist": "Ann", "Title": "Alpha"}, Duration: 120},
		mpdtest.Song{File: "b.flac", Tags: map[string]string{"Artist": "Bob", "Title": "Beta"}, Duration: 90},
	)
	srv.Enqueue("a.flac", "b.flac")

	ctx, cancel := context.WithCancel(context.Background())
	// The broker stops only after the modules have published their
	// offline state.
	brokerCtx, stopBroker := context.WithCancel(context.Background())

	broker, err := embeddedmqtt.NewModule(logger, embeddedmqtt.Config{Listen: freeAddr(t), AllowAnonymous: true})
	if err != nil {
		t.Fatalf("embedded broker: %v", err)
	}
	brokerDone := make(chan error, 1)
	go func() { brokerDone <- broker.Run(brokerCtx) }()
	if err := broker.WaitReady(ctx, 3*time.Second); err != nil {
		t.Fatalf("broker ready: %v", err)
	}

	client, err := mqttserver.NewClient(mqttserver.Options{BrokerURL: broker.URL(), ClientID: "itest-daemon"})
	if err != nil {
		t.Fatalf("daemon client: %v", err)
	}
	table := binding.New(logger, binding.Options{Location: time.UTC})
	bridgeMod, err := bridge.NewModule(logger, client, table, bridge.Config{NodeID: bridgeNode})
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	watchMod, err := statuswatch.NewModule(logger, client, statuswatch.Config{
		NodeID:        bridgeNode,
		Daemon:        player.Config{Host: srv.Host(), Port: srv.Port(), TimeoutMS: 1000},
		RetryInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("status watch: %v", err)
	}

	supervisorDone := make(chan error, 1)
	go func() {
		supervisorDone <- daemon.Supervisor{Logger: logger}.Run(ctx, []daemon.ModuleRunner{
			{Name: "bridge", Run: bridgeMod.Run},
			{Name: "status_watch", Run: watchMod.Run},
		})
	}()

	caller, err := mqttserver.NewClient(mqttserver.Options{BrokerURL: broker.URL(), ClientID: callerID})
	if err != nil {
		t.Fatalf("caller client: %v", err)
	}
	h := &harness{ctx: ctx, daemon: srv, caller: caller, replies: make(chan mpc.ReplyEnvelope, 8)}
	if err := caller.Subscribe(mpc.TopicReply(mpc.BaseTopic, callerID), 1, func(_ paho.Client, msg paho.Message) {
		var reply mpc.ReplyEnvelope
		if err := json.Unmarshal(msg.Payload(), &reply); err == nil {
			h.replies <- reply
		}
	}); err != nil {
		t.Fatalf("subscribe replies: %v", err)
	}

	t.Cleanup(func() {
		caller.Close(100)
		cancel()
		<-supervisorDone
		client.Close(100)
		stopBroker()
		<-brokerDone
	})

	h.waitRetained(t, mpc.TopicPresence(mpc.BaseTopic, bridgeNode), func(payload []byte) bool {
		var presence mpc.Presence
		return json.Unmarshal(payload, &presence) == nil && presence.Caps["online"] == true
	})
	return h
}

func (h *harness) waitRetained(t *testing.T, topic string, match func([]byte) bool) {
	t.Helper()
	got := make(chan []byte, 16)
	if err := h.caller.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		got <- msg.Payload()
	}); err != nil {
		t.Fatalf("subscribe %s: %v", topic, err)
	}
	defer h.caller.Unsubscribe(topic)

	timeout := time.After(3 * time.Second)
	for {
		select {
		case payload := <-got:
			if match(payload) {
				return
			}
		case <-timeout:
			t.Fatalf("no matching message on %s", topic)
		}
	}
}

func (h *harness) call(t *testing.T, fn string, args ...any) mpc.ReplyEnvelope {
	t.Helper()
	env, err := mpc.NewCall(fn, args...)
	if err != nil {
		t.Fatalf("new call: %v", err)
	}
	h.seq++
	env.ID = fmt.Sprintf("call-%d", h.seq)
	env.TS = time.Now().Unix()
	env.From = callerID
	env.ReplyTo = mpc.TopicReply(mpc.BaseTopic, callerID)
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal call: %v", err)
	}
	if err := h.caller.Publish(mpc.TopicCalls(mpc.BaseTopic, bridgeNode), 1, false, payload); err != nil {
		t.Fatalf("publish call: %v", err)
	}

	timeout := time.After(3 * time.Second)
	for {
		select {
		case reply := <-h.replies:
			if reply.ID == env.ID {
				return reply
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s reply", fn)
		}
	}
}

func TestBridgeSession(t *testing.T) {
	h := setup(t)

	reply := h.call(t, "connect", h.daemon.Host(), h.daemon.Port(), 1000)
	if !reply.OK {
		t.Fatalf("connect failed: %+v", reply.Err)
	}
	var handle string
	if err := json.Unmarshal(reply.Result, &handle); err != nil || handle == "" {
		t.Fatalf("expected handle, got %s", reply.Result)
	}

	if reply := h.call(t, "play", handle); !reply.OK {
		t.Fatalf("play failed: %+v", reply.Err)
	}
	reply = h.call(t, "state", handle)
	var state map[string]any
	if err := json.Unmarshal(reply.Result, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state["state"] != "playing" || state["queue_length"] != float64(2) {
		t.Fatalf("unexpected state %v", state)
	}

	reply = h.call(t, "search", handle, true, "artist", "Bob")
	var tracks []map[string]any
	if err := json.Unmarshal(reply.Result, &tracks); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(tracks) != 1 || tracks[0]["title"] != "Beta" {
		t.Fatalf("unexpected search result %v", tracks)
	}

	if reply := h.call(t, "free_connection", handle); !reply.OK {
		t.Fatalf("free failed: %+v", reply.Err)
	}
	reply = h.call(t, "state", handle)
	if reply.OK || reply.Err == nil || reply.Err.Code != "INVALID" {
		t.Fatalf("expected INVALID after free, got %+v", reply)
	}
}

func TestBridgeRejectsUnknownFunction(t *testing.T) {
	h := setup(t)
	reply := h.call(t, "shuffle")
	if reply.OK || reply.Err == nil || reply.Err.Code != "UNSUPPORTED" {
		t.Fatalf("expected UNSUPPORTED, got %+v", reply)
	}
}

func TestStatePublishedOnChange(t *testing.T) {
	h := setup(t)
	topic := mpc.TopicState(mpc.BaseTopic, bridgeNode)

	h.waitRetained(t, topic, func(payload []byte) bool {
		var msg mpc.StateMessage
		return json.Unmarshal(payload, &msg) == nil && msg.Status.State == mpc.StateStopped
	})

	h.daemon.SetState("play")
	// The watcher may not be idling yet, so keep nudging it.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(50 * time.Millisecond)
		defer tick.Stop()
		for {
			h.daemon.Notify("player")
			select {
			case <-stop:
				return
			case <-tick.C:
			}
		}
	}()
	h.waitRetained(t, topic, func(payload []byte) bool {
		var msg mpc.StateMessage
		return json.Unmarshal(payload, &msg) == nil && msg.Status.State == mpc.StatePlaying && msg.Current != nil
	})
}
