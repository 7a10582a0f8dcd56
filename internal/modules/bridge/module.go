package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mikey-austin/mpdbridge/internal/adapters/clock"
	"github.com/mikey-austin/mpdbridge/internal/adapters/mqttserver"
	"github.com/mikey-austin/mpdbridge/internal/binding"
	"github.com/mikey-austin/mpdbridge/internal/ports"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

// Config configures the bridge module.
type Config struct {
	NodeID    string
	TopicBase string
	Name      string
}

// Module answers binding calls received over MQTT.
type Module struct {
	log       *zap.Logger
	client    *mqttserver.Client
	table     *binding.Table
	clock     ports.Clock
	config    Config
	callTopic string
}

// NewModule creates the bridge module.
func NewModule(log *zap.Logger, client *mqttserver.Client, table *binding.Table, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("bridge node_id required")
	}
	if table == nil {
		return nil, errors.New("bridge requires a function table")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = mpc.BaseTopic
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "MPD Bridge"
	}
	return &Module{
		log:       log,
		client:    client,
		table:     table,
		clock:     clock.Clock{},
		config:    cfg,
		callTopic: mpc.TopicCalls(cfg.TopicBase, cfg.NodeID),
	}, nil
}

// Run serves calls until ctx is done, then releases every open handle.
func (m *Module) Run(ctx context.Context) error {
	handler := func(_ paho.Client, msg paho.Message) {
		m.handleMessage(ctx, msg.Payload())
	}
	if err := m.client.Subscribe(m.callTopic, 1, handler); err != nil {
		return err
	}
	defer m.client.Unsubscribe(m.callTopic)

	if err := m.publishPresence(true); err != nil {
		return err
	}
	m.log.Info("bridge ready", zap.String("topic", m.callTopic))

	<-ctx.Done()
	if err := m.table.CloseAll(); err != nil {
		m.log.Warn("release connections", zap.Error(err))
	}
	if err := m.publishPresence(false); err != nil {
		m.log.Warn("publish offline presence", zap.Error(err))
	}
	return nil
}

// Presence returns the payload advertised on the presence topic.
func (m *Module) Presence(online bool) mpc.Presence {
	return mpc.Presence{
		NodeID: m.config.NodeID,
		Kind:   "mpd_bridge",
		Name:   m.config.Name,
		Caps: map[string]any{
			"online":    online,
			"functions": m.table.Names(),
			"tags":      tagNames(),
		},
		TS: m.clock.NowUnix(),
	}
}

// tagNames lists the tags accepted in search constraints.
func tagNames() []string {
	tags := mpc.KnownTags()
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, string(tag))
	}
	return out
}

// Will returns the retained offline presence the broker publishes for the
// node if the daemon's MQTT session drops.
func Will(cfg Config) (string, []byte, error) {
	topicBase := cfg.TopicBase
	if strings.TrimSpace(topicBase) == "" {
		topicBase = mpc.BaseTopic
	}
	payload, err := json.Marshal(mpc.Presence{
		NodeID: cfg.NodeID,
		Kind:   "mpd_bridge",
		Name:   cfg.Name,
		Caps:   map[string]any{"online": false},
	})
	if err != nil {
		return "", nil, err
	}
	return mpc.TopicPresence(topicBase, cfg.NodeID), payload, nil
}

func (m *Module) publishPresence(online bool) error {
	payload, err := json.Marshal(m.Presence(online))
	if err != nil {
		return err
	}
	return m.client.Publish(mpc.TopicPresence(m.config.TopicBase, m.config.NodeID), 1, true, payload)
}

func (m *Module) handleMessage(ctx context.Context, payload []byte) {
	var call mpc.CallEnvelope
	if err := json.Unmarshal(payload, &call); err != nil {
		m.log.Warn("invalid call", zap.Error(err))
		return
	}

	reply := m.dispatch(ctx, call)
	if call.ReplyTo == "" {
		return
	}
	out, err := json.Marshal(reply)
	if err != nil {
		m.log.Error("marshal reply", zap.Error(err))
		return
	}
	if err := m.client.Publish(call.ReplyTo, 1, false, out); err != nil {
		m.log.Error("publish reply", zap.Error(err))
	}
}

func (m *Module) dispatch(ctx context.Context, call mpc.CallEnvelope) mpc.ReplyEnvelope {
	if err := mpc.ValidateCallEnvelope(call); err != nil {
		return m.errorReply(call, "INVALID", err.Error())
	}
	args, err := decodeArgs(call.Args)
	if err != nil {
		return m.errorReply(call, "INVALID", err.Error())
	}

	result, err := m.table.Call(ctx, call.Fn, args...)
	if err != nil {
		if errors.Is(err, binding.ErrUnknownFunction) {
			return m.errorReply(call, "UNSUPPORTED", "unsupported function")
		}
		m.log.Debug("call failed", zap.String("fn", call.Fn), zap.String("from", call.From), zap.Error(err))
		return m.errorReply(call, mpc.ReplyCode(err), mpc.Message(err))
	}

	reply := mpc.ReplyEnvelope{ID: call.ID, Fn: call.Fn, OK: true, TS: m.clock.NowUnix()}
	if result != nil {
		payload, err := json.Marshal(result)
		if err != nil {
			return m.errorReply(call, "INTERNAL", "result not encodable")
		}
		reply.Result = payload
	}
	return reply
}

func (m *Module) errorReply(call mpc.CallEnvelope, code string, msg string) mpc.ReplyEnvelope {
	reply := mpc.ReplyEnvelope{ID: call.ID, Fn: call.Fn, OK: false, TS: m.clock.NowUnix()}
	reply.Err = &mpc.ReplyError{Code: code, Message: msg}
	return reply
}

// decodeArgs turns raw JSON arguments into script values. Numbers stay
// json.Number so integers survive intact.
func decodeArgs(raw []json.RawMessage) ([]any, error) {
	args := make([]any, 0, len(raw))
	for _, r := range raw {
		dec := json.NewDecoder(bytes.NewReader(r))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}
