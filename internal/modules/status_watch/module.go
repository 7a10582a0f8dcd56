package statuswatch

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/mpdbridge/internal/adapters/clock"
	"github.com/mikey-austin/mpdbridge/internal/adapters/mpdwire"
	"github.com/mikey-austin/mpdbridge/internal/adapters/mqttserver"
	"github.com/mikey-austin/mpdbridge/internal/player"
	"github.com/mikey-austin/mpdbridge/internal/ports"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

// DefaultSubsystems are the idle subsystems that change a snapshot.
var DefaultSubsystems = []string{"player", "mixer", "options", "playlist"}

// Sink receives every published snapshot.
type Sink interface {
	Broadcast(msg mpc.StateMessage)
}

// WatcherFactory opens an idle watcher against a daemon.
type WatcherFactory func(ep ports.Endpoint, subsystems ...string) (ports.Watcher, error)

// Config configures the watch module.
type Config struct {
	NodeID        string
	TopicBase     string
	Daemon        player.Config
	Subsystems    []string
	RetryInterval time.Duration
}

// Module idles on the daemon and publishes a snapshot after every change.
type Module struct {
	log    *zap.Logger
	client *mqttserver.Client
	sinks  []Sink
	clock  ports.Clock
	watch  WatcherFactory
	config Config
}

// NewModule creates the watch module. client may be nil when snapshots only
// go to sinks.
func NewModule(log *zap.Logger, client *mqttserver.Client, cfg Config, sinks ...Sink) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if client != nil && strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("status_watch node_id required")
	}
	if strings.TrimSpace(cfg.Daemon.Host) == "" {
		return nil, errors.New("status_watch requires a daemon host")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = mpc.BaseTopic
	}
	if len(cfg.Subsystems) == 0 {
		cfg.Subsystems = DefaultSubsystems
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	return &Module{
		log:    log,
		client: client,
		sinks:  sinks,
		clock:  clock.Clock{},
		watch:  mpdwire.OpenWatcher,
		config: cfg,
	}, nil
}

// Run watches until ctx is done, reconnecting after failures.
func (m *Module) Run(ctx context.Context) error {
	for {
		err := m.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		m.log.Warn("daemon watch interrupted", zap.Error(err), zap.Duration("retry", m.config.RetryInterval))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.config.RetryInterval):
		}
	}
}

func (m *Module) session(ctx context.Context) error {
	conn, err := player.Connect(ctx, m.log, m.config.Daemon)
	if err != nil {
		return err
	}
	defer conn.Close()

	w, err := m.watch(conn.Endpoint(), m.config.Subsystems...)
	if err != nil {
		return mpc.ConnectionError("watch", err)
	}
	defer w.Close()

	if err := m.publish(conn, nil); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case subsystem, ok := <-w.Events():
			if !ok {
				return errors.New("watcher closed")
			}
			if err := m.publish(conn, drain(w, subsystem)); err != nil {
				return err
			}
		case werr, ok := <-w.Errors():
			if !ok {
				return errors.New("watcher closed")
			}
			m.log.Debug("watcher error", zap.Error(werr))
			if err := conn.Ping(); err != nil {
				return err
			}
		}
	}
}

// drain collects events already queued behind first.
func drain(w ports.Watcher, first string) []string {
	changed := []string{first}
	for {
		select {
		case s, ok := <-w.Events():
			if !ok {
				return changed
			}
			if !slices.Contains(changed, s) {
				changed = append(changed, s)
			}
		default:
			return changed
		}
	}
}

// Snapshot reads the daemon's current status and track.
func (m *Module) Snapshot(conn *player.Connection, changed []string) (mpc.StateMessage, error) {
	status, err := conn.Status()
	if err != nil {
		return mpc.StateMessage{}, err
	}
	msg := mpc.StateMessage{
		Daemon:  conn.Endpoint().Address,
		Status:  status,
		Changed: changed,
		TS:      m.clock.NowUnix(),
	}
	if status.State.Active() {
		track, ok, err := conn.CurrentTrack()
		if err != nil {
			return mpc.StateMessage{}, err
		}
		if ok {
			msg.Current = &track
		}
	}
	return msg, nil
}

func (m *Module) publish(conn *player.Connection, changed []string) error {
	msg, err := m.Snapshot(conn, changed)
	if err != nil {
		return err
	}
	for _, sink := range m.sinks {
		sink.Broadcast(msg)
	}
	if m.client == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := m.client.Publish(mpc.TopicState(m.config.TopicBase, m.config.NodeID), 1, true, payload); err != nil {
		m.log.Warn("publish state", zap.Error(err))
	}
	return nil
}
