package statusfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 8
)

// Config configures the websocket feed.
type Config struct {
	Listen string
	Path   string
	// AllowedOrigins limits browser origins; empty accepts any.
	AllowedOrigins []string
}

// Module pushes state snapshots to websocket subscribers. New subscribers
// receive the latest snapshot straight away.
type Module struct {
	log      *zap.Logger
	config   Config
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	last    []byte
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// NewModule creates the feed.
func NewModule(log *zap.Logger, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = "127.0.0.1:6680"
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return nil, errors.New("status feed path must start with /")
	}
	m := &Module{
		log:     log,
		config:  cfg,
		clients: map[*subscriber]struct{}{},
	}
	m.upgrader = websocket.Upgrader{CheckOrigin: m.checkOrigin}
	return m, nil
}

// Handler serves the websocket endpoint.
func (m *Module) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+m.config.Path, m.serveWS)
	return mux
}

// Run serves until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              m.config.Listen,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	m.log.Info("status feed listening", zap.String("listen", m.config.Listen), zap.String("path", m.config.Path))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	m.closeAll()
	return nil
}

// Broadcast queues msg for every subscriber. Slow subscribers are dropped.
func (m *Module) Broadcast(msg mpc.StateMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		m.log.Error("marshal state", zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = payload
	for sub := range m.clients {
		select {
		case sub.send <- payload:
		default:
			m.log.Debug("dropping slow subscriber", zap.String("remote", sub.conn.RemoteAddr().String()))
			delete(m.clients, sub)
			close(sub.send)
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (m *Module) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func (m *Module) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Debug("websocket upgrade", zap.Error(err))
		return
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}

	m.mu.Lock()
	if m.last != nil {
		sub.send <- m.last
	}
	m.clients[sub] = struct{}{}
	m.mu.Unlock()

	go m.readLoop(sub)
	m.writeLoop(sub)
}

// readLoop discards client frames and notices disconnects.
func (m *Module) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			m.remove(sub)
			return
		}
	}
}

func (m *Module) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				m.remove(sub)
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.remove(sub)
				return
			}
		}
	}
}

func (m *Module) remove(sub *subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[sub]; ok {
		delete(m.clients, sub)
		close(sub.send)
	}
}

func (m *Module) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sub := range m.clients {
		delete(m.clients, sub)
		close(sub.send)
	}
}

func (m *Module) checkOrigin(r *http.Request) bool {
	if len(m.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range m.config.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}
