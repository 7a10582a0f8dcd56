package embeddedmqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"go.uber.org/zap"

	"github.com/mikey-austin/mpdbridge/internal/adapters/mqttserver"
)

// DefaultListen is used when Config.Listen is empty.
const DefaultListen = "127.0.0.1:1883"

// Config configures the embedded MQTT broker.
type Config struct {
	Listen         string
	AllowAnonymous bool
	Username       string
	Password       string
	TLSCA          string
	TLSCert        string
	TLSKey         string
}

// TLS reports whether the listener is TLS-wrapped.
func (c Config) TLS() bool {
	return c.TLSCert != "" || c.TLSKey != "" || c.TLSCA != ""
}

// Module runs an in-process broker so the daemon works without an external
// one.
type Module struct {
	log    *zap.Logger
	server *mqtt.Server
	config Config
	ready  chan struct{}
}

// NewModule creates the broker module.
func NewModule(log *zap.Logger, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}
	server, err := newServer(log, cfg)
	if err != nil {
		return nil, err
	}
	return &Module{log: log, server: server, config: cfg, ready: make(chan struct{})}, nil
}

// URL returns the broker URL clients should dial.
func (m *Module) URL() string {
	return BrokerURL(m.config.Listen, m.config.TLS())
}

// Ready is closed once the listener accepts connections.
func (m *Module) Ready() <-chan struct{} {
	return m.ready
}

// Run serves until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	listenerConfig := listeners.Config{ID: "tcp-embedded", Address: m.config.Listen}
	if m.config.TLS() {
		tlsConfig, err := mqttserver.TLSConfig(m.config.TLSCA, m.config.TLSCert, m.config.TLSKey)
		if err != nil {
			return err
		}
		listenerConfig.TLSConfig = tlsConfig
	}

	if err := m.server.AddListener(listeners.NewTCP(listenerConfig)); err != nil {
		return err
	}
	if err := m.server.Serve(); err != nil {
		return err
	}
	close(m.ready)
	m.log.Info("embedded broker listening", zap.String("url", m.URL()))

	<-ctx.Done()
	return m.server.Close()
}

// WaitReady blocks until the broker accepts TCP connections or timeout.
func (m *Module) WaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case <-m.ready:
	case <-ctx.Done():
		return fmt.Errorf("embedded mqtt not ready at %s", m.config.Listen)
	}

	host, port, err := net.SplitHostPort(m.config.Listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return fmt.Errorf("embedded mqtt not ready at %s: %w", m.config.Listen, err)
	}
	return conn.Close()
}

func newServer(log *zap.Logger, cfg Config) (*mqtt.Server, error) {
	server := mqtt.New(&mqtt.Options{InlineClient: true, Logger: newSlogLogger(log)})

	switch {
	case cfg.AllowAnonymous:
		if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
			return nil, err
		}
	case cfg.Username != "":
		ledger := &auth.Ledger{
			Auth: auth.AuthRules{{Username: auth.RString(cfg.Username), Password: auth.RString(cfg.Password), Allow: true}},
			ACL:  auth.ACLRules{{Username: auth.RString(cfg.Username), Filters: auth.Filters{auth.RString("#"): auth.ReadWrite}}},
		}
		if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("embedded mqtt requires allow_anonymous or username")
	}
	return server, nil
}

// BrokerURL returns the broker URL for a listen address.
func BrokerURL(listen string, tlsEnabled bool) string {
	scheme := "mqtt"
	if tlsEnabled {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s", scheme, listen)
}
