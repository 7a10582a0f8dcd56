package binding

import (
	"context"

	"go.uber.org/zap"

	"github.com/mikey-austin/mpdbridge/internal/player"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

// connect(host, port, timeout_ms[, password]) returns a handle.
func (t *Table) connect(ctx context.Context, args []any) (any, error) {
	const op = "connect"
	host, err := stringArg(op, args, 0, "host")
	if err != nil {
		return nil, err
	}
	port, err := intArg(op, args, 1, "port")
	if err != nil {
		return nil, err
	}
	timeout, err := intArg(op, args, 2, "timeout")
	if err != nil {
		return nil, err
	}
	var password string
	if len(args) > 3 {
		if password, err = stringArg(op, args, 3, "password"); err != nil {
			return nil, err
		}
	}

	conn, err := player.Connect(ctx, t.log, player.Config{
		Host:      host,
		Port:      port,
		TimeoutMS: timeout,
		Password:  password,
		Dialer:    t.dialer,
	})
	if err != nil {
		return nil, err
	}

	handle := t.ids.NewID()
	if handle == "" {
		_ = conn.Close()
		return nil, mpc.ConnectionError(op, errNoHandle)
	}
	t.mu.Lock()
	t.handles[handle] = conn
	t.mu.Unlock()
	t.log.Debug("connection opened", zap.String("handle", handle), zap.String("daemon", conn.Endpoint().Address))
	return handle, nil
}

func (t *Table) freeConnection(_ context.Context, args []any) (any, error) {
	const op = "free_connection"
	handle, err := stringArg(op, args, 0, "connection")
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	conn, ok := t.handles[handle]
	delete(t.handles, handle)
	t.mu.Unlock()
	if !ok {
		return nil, mpc.InvalidArgument(op, "invalid connection handle")
	}
	t.log.Debug("connection released", zap.String("handle", handle))
	return nil, conn.Close()
}

func (t *Table) ping(_ context.Context, args []any) (any, error) {
	conn, err := t.lookup("ping", args)
	if err != nil {
		return nil, err
	}
	return nil, conn.Ping()
}

func (t *Table) command(build func() mpc.Command) Func {
	return func(_ context.Context, args []any) (any, error) {
		cmd := build()
		conn, err := t.lookup(string(cmd.Action), args)
		if err != nil {
			return nil, err
		}
		return nil, conn.Run(cmd)
	}
}

func (t *Table) mode(op string, build func(bool) mpc.Command) Func {
	return func(_ context.Context, args []any) (any, error) {
		conn, err := t.lookup(op, args)
		if err != nil {
			return nil, err
		}
		on, err := boolArg(op, args, 1, "mode")
		if err != nil {
			return nil, err
		}
		return nil, conn.Run(build(on))
	}
}

func (t *Table) setVolume(_ context.Context, args []any) (any, error) {
	const op = "set_volume"
	conn, err := t.lookup(op, args)
	if err != nil {
		return nil, err
	}
	volume, err := intArg(op, args, 1, "volume")
	if err != nil {
		return nil, err
	}
	return nil, conn.Run(mpc.SetVolume(volume))
}

func (t *Table) state(_ context.Context, args []any) (any, error) {
	conn, err := t.lookup("state", args)
	if err != nil {
		return nil, err
	}
	status, err := conn.Status()
	if err != nil {
		return nil, err
	}
	return statusTable(status), nil
}

// nowPlaying returns nil when nothing is playing or paused.
func (t *Table) nowPlaying(_ context.Context, args []any) (any, error) {
	conn, err := t.lookup("now_playing", args)
	if err != nil {
		return nil, err
	}
	track, ok, err := conn.CurrentTrack()
	if err != nil || !ok {
		return nil, err
	}
	return trackTable(track), nil
}

func (t *Table) playlist(_ context.Context, args []any) (any, error) {
	conn, err := t.lookup("playlist", args)
	if err != nil {
		return nil, err
	}
	cursor, err := conn.Queue()
	if err != nil {
		return nil, err
	}
	return trackList(cursor), nil
}

// search(conn, exact, tag, value, ...) runs a database search.
func (t *Table) search(_ context.Context, args []any) (any, error) {
	const op = "search"
	conn, err := t.lookup(op, args)
	if err != nil {
		return nil, err
	}
	exact, err := boolArg(op, args, 1, "exact")
	if err != nil {
		return nil, mpc.InvalidArgument(op, "boolean for exact search must be second")
	}
	pairs := args[2:]
	if len(pairs)%2 != 0 {
		return nil, mpc.InvalidArgument(op, "constraints must be tag, value pairs")
	}

	b := conn.NewSearch(exact)
	for i := 0; i < len(pairs); i += 2 {
		tag, err := stringArg(op, pairs, i, "tag")
		if err != nil {
			return nil, err
		}
		value, err := stringArg(op, pairs, i+1, "value")
		if err != nil {
			return nil, err
		}
		b.Add(tag, value)
	}
	cursor, err := b.Commit()
	if err != nil {
		return nil, err
	}
	return trackList(cursor), nil
}

func (t *Table) stats(_ context.Context, args []any) (any, error) {
	conn, err := t.lookup("stats", args)
	if err != nil {
		return nil, err
	}
	stats, err := conn.Stats()
	if err != nil {
		return nil, err
	}
	return statsTable(stats, t.loc), nil
}
