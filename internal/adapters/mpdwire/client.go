package mpdwire

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/fhs/gompd/v2/mpd"

	"github.com/mikey-austin/mpdbridge/internal/ports"
)

// DefaultPort is the daemon's standard TCP port.
const DefaultPort = 6600

// Client adapts a gompd client to ports.Transport.
type Client struct {
	conn *mpd.Client
}

// Endpoint builds an endpoint from host and port. A host starting with "/"
// or "@" is a unix socket path and port is ignored.
func Endpoint(host string, port int, password string) ports.Endpoint {
	if strings.HasPrefix(host, "/") || strings.HasPrefix(host, "@") {
		return ports.Endpoint{Network: "unix", Address: host, Password: password}
	}
	if port == 0 {
		port = DefaultPort
	}
	return ports.Endpoint{
		Network:  "tcp",
		Address:  net.JoinHostPort(host, strconv.Itoa(port)),
		Password: password,
	}
}

// Dial connects to the daemon. gompd has no dial timeout, so the dial runs
// in the background and a client that arrives after ctx is done is closed.
func Dial(ctx context.Context, ep ports.Endpoint) (*Client, error) {
	type result struct {
		conn *mpd.Client
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		if ep.Password != "" {
			r.conn, r.err = mpd.DialAuthenticated(ep.Network, ep.Address, ep.Password)
		} else {
			r.conn, r.err = mpd.Dial(ep.Network, ep.Address)
		}
		done <- r
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &Client{conn: r.conn}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// DialTransport is a ports.Dialer backed by Dial.
func DialTransport(ctx context.Context, ep ports.Endpoint) (ports.Transport, error) {
	c, err := Dial(ctx, ep)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Ping() error {
	return c.conn.Ping()
}

func (c *Client) Status() (ports.Record, error) {
	attrs, err := c.conn.Status()
	return ports.Record(attrs), err
}

func (c *Client) CurrentSong() (ports.Record, error) {
	attrs, err := c.conn.CurrentSong()
	return ports.Record(attrs), err
}

func (c *Client) Queue() ([]ports.Record, error) {
	return records(c.conn.PlaylistInfo(-1, -1))
}

func (c *Client) Stats() (ports.Record, error) {
	attrs, err := c.conn.Stats()
	return ports.Record(attrs), err
}

func (c *Client) Find(args ...string) ([]ports.Record, error) {
	return records(c.filter("find", args).AttrsList("file"))
}

func (c *Client) Search(args ...string) ([]ports.Record, error) {
	return records(c.filter("search", args).AttrsList("file"))
}

// filter builds a find or search request. Tags and values go through the
// format arguments so gompd quotes them and a "%" in a value stays literal.
func (c *Client) filter(verb string, args []string) *mpd.Command {
	vals := make([]any, len(args))
	for i, arg := range args {
		vals[i] = arg
	}
	return c.conn.Command(verb+strings.Repeat(" %s", len(args)), vals...)
}

// ListAll returns every song in the database. Directory and playlist
// entries are dropped.
func (c *Client) ListAll() ([]ports.Record, error) {
	all, err := records(c.conn.ListAllInfo(""))
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if rec["file"] != "" {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *Client) Play() error {
	return c.conn.Play(-1)
}

func (c *Client) Stop() error {
	return c.conn.Stop()
}

// TogglePause sends a bare "pause", which the daemon treats as a toggle.
func (c *Client) TogglePause() error {
	return c.conn.Command("pause").OK()
}

func (c *Client) Next() error {
	return c.conn.Next()
}

func (c *Client) Previous() error {
	return c.conn.Previous()
}

func (c *Client) SetVolume(volume int) error {
	return c.conn.SetVolume(volume)
}

func (c *Client) SetRandom(on bool) error {
	return c.conn.Random(on)
}

func (c *Client) SetRepeat(on bool) error {
	return c.conn.Repeat(on)
}

func (c *Client) SetSingle(on bool) error {
	return c.conn.Command("single %d", btoi(on)).OK()
}

func (c *Client) SetConsume(on bool) error {
	return c.conn.Consume(on)
}

func records(list []mpd.Attrs, err error) ([]ports.Record, error) {
	if err != nil {
		return nil, err
	}
	out := make([]ports.Record, 0, len(list))
	for _, attrs := range list {
		out = append(out, ports.Record(attrs))
	}
	return out, nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
