// Package binding exposes the player facade to script environments as a flat
// function table keyed by name. Connections are referenced by opaque handles
// minted from a random source, so callers can neither forge nor double-free
// them.
package binding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mikey-austin/mpdbridge/internal/adapters/idgen"
	"github.com/mikey-austin/mpdbridge/internal/player"
	"github.com/mikey-austin/mpdbridge/internal/ports"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

// ErrUnknownFunction is returned by Call for names outside the table.
var ErrUnknownFunction = errors.New("unknown function")

// Func is one table entry. args are positional script values.
type Func func(ctx context.Context, args []any) (any, error)

// Options configures a Table.
type Options struct {
	// Dialer overrides the daemon transport.
	Dialer ports.Dialer
	// IDs mints connection handles. Defaults to a random generator.
	IDs ports.IDGen
	// Location renders human timestamps. Defaults to time.Local.
	Location *time.Location
}

// Table is the function table plus the handles it has issued.
type Table struct {
	log    *zap.Logger
	dialer ports.Dialer
	ids    ports.IDGen
	loc    *time.Location
	funcs  map[string]Func

	mu      sync.Mutex
	handles map[string]*player.Connection
}

// New builds the table.
func New(log *zap.Logger, opts Options) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.IDs == nil {
		opts.IDs = idgen.Generator{Prefix: "mpd"}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	t := &Table{
		log:     log,
		dialer:  opts.Dialer,
		ids:     opts.IDs,
		loc:     opts.Location,
		handles: map[string]*player.Connection{},
	}
	t.funcs = map[string]Func{
		"connect":         t.connect,
		"free_connection": t.freeConnection,
		"ping":            t.ping,
		"play":            t.command(mpc.Play),
		"stop":            t.command(mpc.Stop),
		"toggle":          t.command(mpc.TogglePause),
		"next":            t.command(mpc.Next),
		"prev":            t.command(mpc.Previous),
		"random":          t.mode("random", mpc.SetRandom),
		"repeat":          t.mode("repeat", mpc.SetRepeat),
		"single":          t.mode("single", mpc.SetSingle),
		"consume":         t.mode("consume", mpc.SetConsume),
		"set_volume":      t.setVolume,
		"state":           t.state,
		"now_playing":     t.nowPlaying,
		"playlist":        t.playlist,
		"search":          t.search,
		"stats":           t.stats,
	}
	return t
}

// Names lists the table's function names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.funcs))
	for name := range t.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes the named function. Every function except connect takes a
// connection handle as its first argument.
func (t *Table) Call(ctx context.Context, name string, args ...any) (any, error) {
	fn, ok := t.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	result, err := fn(ctx, args)
	if err != nil {
		t.log.Debug("call failed", zap.String("fn", name), zap.Error(err))
		return nil, err
	}
	return result, nil
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}

// CloseAll releases every live handle.
func (t *Table) CloseAll() error {
	t.mu.Lock()
	handles := t.handles
	t.handles = map[string]*player.Connection{}
	t.mu.Unlock()

	var err error
	for handle, conn := range handles {
		if cerr := conn.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", handle, cerr))
		}
	}
	if len(handles) > 0 {
		t.log.Info("released connections", zap.Int("count", len(handles)))
	}
	return err
}

func (t *Table) lookup(op string, args []any) (*player.Connection, error) {
	handle, err := stringArg(op, args, 0, "connection")
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	conn, ok := t.handles[handle]
	t.mu.Unlock()
	if !ok {
		return nil, mpc.InvalidArgument(op, "invalid connection handle")
	}
	return conn, nil
}
