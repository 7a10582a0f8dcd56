package player

import (
	"errors"
	"io"
	"iter"

	"github.com/mikey-austin/mpdbridge/internal/ports"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

// Cursor yields the tracks of one query response. It is finite, one-shot
// and cannot be restarted; Count reports how many tracks it has yielded.
type Cursor struct {
	records []ports.Record
	next    int
	count   int
}

func newCursor(records []ports.Record) *Cursor {
	return &Cursor{records: records}
}

// Next returns the next track, or false once the response is exhausted.
func (c *Cursor) Next() (mpc.Track, bool) {
	if c.next >= len(c.records) {
		c.records = nil
		return mpc.Track{}, false
	}
	rec := c.records[c.next]
	c.records[c.next] = nil
	c.next++
	c.count++
	return trackFromRecord(rec), true
}

// All ranges over the remaining tracks.
func (c *Cursor) All() iter.Seq[mpc.Track] {
	return func(yield func(mpc.Track) bool) {
		for {
			track, ok := c.Next()
			if !ok || !yield(track) {
				return
			}
		}
	}
}

// Collect drains the cursor.
func (c *Cursor) Collect() []mpc.Track {
	out := make([]mpc.Track, 0, max(len(c.records)-c.next, 0))
	for track := range c.All() {
		out = append(out, track)
	}
	return out
}

// Count returns the number of tracks received so far.
func (c *Cursor) Count() int {
	return c.count
}

// Queue streams the play queue in queue order.
func (c *Connection) Queue() (*Cursor, error) {
	records, err := roundTrip(c, "playlist", func(t ports.Transport) ([]ports.Record, error) {
		records, err := t.Queue()
		if err != nil {
			return nil, listError("playlist", err)
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return newCursor(records), nil
}

// listError classifies a failed list request. A stream cut short by the
// daemon is reported as truncated rather than as an empty result.
func listError(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return mpc.TruncatedError(op, err)
	}
	return mpc.CommandError(op, err)
}
