package player

import (
	"go.uber.org/zap"

	"github.com/mikey-austin/mpdbridge/internal/ports"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

// SearchBuilder assembles a database search. Constraints apply in the order
// added; unknown tag names are skipped and recorded.
type SearchBuilder struct {
	conn        *Connection
	exact       bool
	constraints []mpc.Constraint
	skipped     []string
}

// NewSearch starts a search. exact selects whole-value matching, otherwise
// the daemon matches substrings case-insensitively.
func (c *Connection) NewSearch(exact bool) *SearchBuilder {
	return &SearchBuilder{conn: c, exact: exact}
}

// Add appends a constraint. tag is any known tag name or "any".
func (b *SearchBuilder) Add(tag string, value string) *SearchBuilder {
	parsed, ok := mpc.ParseTag(tag)
	if !ok {
		b.conn.log.Debug("skipping unknown search tag", zap.String("tag", tag))
		b.skipped = append(b.skipped, tag)
		return b
	}
	b.constraints = append(b.constraints, mpc.Constraint{Tag: parsed, Value: value})
	return b
}

// Constraints returns the accepted constraints.
func (b *SearchBuilder) Constraints() []mpc.Constraint {
	out := make([]mpc.Constraint, len(b.constraints))
	copy(out, b.constraints)
	return out
}

// Skipped returns tag names that were dropped.
func (b *SearchBuilder) Skipped() []string {
	out := make([]string, len(b.skipped))
	copy(out, b.skipped)
	return out
}

func (b *SearchBuilder) args() []string {
	args := make([]string, 0, len(b.constraints)*2)
	for _, c := range b.constraints {
		args = append(args, string(c.Tag), c.Value)
	}
	return args
}

// Commit submits the search. With no constraints left the whole collection
// is requested.
func (b *SearchBuilder) Commit() (*Cursor, error) {
	records, err := roundTrip(b.conn, "search", func(t ports.Transport) ([]ports.Record, error) {
		var (
			records []ports.Record
			err     error
		)
		switch {
		case len(b.constraints) == 0:
			b.conn.log.Warn("search has no constraints, requesting the full collection",
				zap.Strings("skipped", b.skipped))
			records, err = t.ListAll()
		case b.exact:
			records, err = t.Find(b.args()...)
		default:
			records, err = t.Search(b.args()...)
		}
		if err != nil {
			return nil, listError("search", err)
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return newCursor(records), nil
}

// Search runs a one-off search from alternating tag, value pairs.
func (c *Connection) Search(exact bool, pairs ...string) (*Cursor, error) {
	if len(pairs)%2 != 0 {
		return nil, mpc.InvalidArgument("search", "constraints must be tag, value pairs")
	}
	b := c.NewSearch(exact)
	for i := 0; i < len(pairs); i += 2 {
		b.Add(pairs[i], pairs[i+1])
	}
	return b.Commit()
}
