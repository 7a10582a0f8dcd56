package player

import (
	"github.com/mikey-austin/mpdbridge/internal/ports"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

// Stats fetches daemon statistics.
func (c *Connection) Stats() (mpc.Stats, error) {
	return roundTrip(c, "stats", func(t ports.Transport) (mpc.Stats, error) {
		rec, err := t.Stats()
		if err != nil {
			return mpc.Stats{}, mpc.CommandError("stats", err)
		}
		return statsFromRecord(rec), nil
	})
}

func statsFromRecord(rec ports.Record) mpc.Stats {
	return mpc.Stats{
		Artists:    intField(rec, "artists", 0),
		Albums:     intField(rec, "albums", 0),
		Songs:      intField(rec, "songs", 0),
		Uptime:     int64Field(rec, "uptime", 0),
		PlayTime:   int64Field(rec, "playtime", 0),
		DBPlayTime: int64Field(rec, "db_playtime", 0),
		DBUpdate:   int64Field(rec, "db_update", 0),
	}
}
