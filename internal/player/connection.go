package player

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/mpdbridge/internal/adapters/mpdwire"
	"github.com/mikey-austin/mpdbridge/internal/ports"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

// DefaultTimeout applies when Config.TimeoutMS is zero.
const DefaultTimeout = 30 * time.Second

// Config describes how to reach the daemon.
type Config struct {
	Host      string
	Port      int
	TimeoutMS int
	Password  string

	// Dialer overrides the transport; nil dials with gompd.
	Dialer ports.Dialer
}

// Connection is an exclusively owned session with the daemon. Every
// operation is one synchronous round trip, serialized by mu and bounded by
// timeout.
type Connection struct {
	log      *zap.Logger
	endpoint ports.Endpoint
	timeout  time.Duration

	mu        sync.Mutex
	transport ports.Transport
	closed    bool
	released  bool
}

// Connect dials the daemon. Argument errors are reported before any I/O.
func Connect(ctx context.Context, log *zap.Logger, cfg Config) (*Connection, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, mpc.InvalidArgument("connect", "host is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, mpc.InvalidArgument("connect", "port must be between 0 and 65535")
	}
	if cfg.TimeoutMS < 0 {
		return nil, mpc.InvalidArgument("connect", "timeout must not be negative")
	}

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	dial := cfg.Dialer
	if dial == nil {
		dial = mpdwire.DialTransport
	}
	ep := mpdwire.Endpoint(cfg.Host, cfg.Port, cfg.Password)
	log = log.With(zap.String("daemon", ep.Address))

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	transport, err := dial(dialCtx, ep)
	if err != nil {
		log.Debug("connect failed", zap.Duration("timeout", timeout), zap.Error(err))
		return nil, mpc.ConnectionError("connect", err)
	}
	log.Debug("connected", zap.String("network", ep.Network))

	return &Connection{
		log:       log,
		endpoint:  ep,
		timeout:   timeout,
		transport: transport,
	}, nil
}

// Endpoint returns the address this connection was opened against.
func (c *Connection) Endpoint() ports.Endpoint {
	return c.endpoint
}

// Closed reports whether the connection can no longer be used, either
// because Close was called or because the daemon stopped answering.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close releases the transport. Only the first call succeeds; later calls
// return an InvalidArgument error.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return mpc.InvalidArgument("close", "connection is closed")
	}
	c.released = true
	c.closed = true
	if c.transport == nil {
		return nil
	}
	if err := c.transport.Close(); err != nil {
		c.log.Debug("transport close", zap.Error(err))
	}
	c.transport = nil
	return nil
}

// Ping round-trips a no-op request.
func (c *Connection) Ping() error {
	return c.do("ping", func(t ports.Transport) error {
		if err := t.Ping(); err != nil {
			return mpc.CommandError("ping", err)
		}
		return nil
	})
}

func (c *Connection) do(op string, fn func(t ports.Transport) error) error {
	_, err := roundTrip(c, op, func(t ports.Transport) (struct{}, error) {
		return struct{}{}, fn(t)
	})
	return err
}

// roundTrip runs fn against the transport while holding the connection. A
// daemon that does not answer within the timeout costs the connection: the
// transport is dropped and later operations fail with InvalidArgument.
func roundTrip[T any](c *Connection, op string, fn func(t ports.Transport) (T, error)) (T, error) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return zero, mpc.InvalidArgument(op, "connection is closed")
	}

	type result struct {
		v   T
		err error
	}
	t := c.transport
	done := make(chan result, 1)
	go func() {
		v, err := fn(t)
		done <- result{v: v, err: err}
	}()

	timeout := c.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.v, r.err
	case <-timer.C:
		c.log.Warn("daemon did not answer, dropping connection",
			zap.String("op", op), zap.Duration("timeout", timeout))
		c.closed = true
		c.transport = nil
		// Closing the socket unblocks the pending read.
		go func() { _ = t.Close() }()
		return zero, mpc.ConnectionError(op, fmt.Errorf("no reply within %s", timeout))
	}
}
