package player

import (
	"math"

	"github.com/mikey-austin/mpdbridge/internal/ports"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

// Status fetches a fresh status snapshot.
func (c *Connection) Status() (mpc.Status, error) {
	return roundTrip(c, "state", func(t ports.Transport) (mpc.Status, error) {
		rec, err := t.Status()
		if err != nil {
			return mpc.Status{}, mpc.CommandError("state", err)
		}
		return statusFromRecord(rec), nil
	})
}

func parseState(v string) mpc.PlaybackState {
	switch v {
	case "stop":
		return mpc.StateStopped
	case "play":
		return mpc.StatePlaying
	case "pause":
		return mpc.StatePaused
	default:
		return mpc.StateUnknown
	}
}

// statusFromRecord maps a status response. An unrecognised state yields a
// snapshot carrying only the state.
func statusFromRecord(rec ports.Record) mpc.Status {
	state := parseState(stringField(rec, "state"))
	if state == mpc.StateUnknown {
		return mpc.Status{State: state}
	}

	status := mpc.Status{
		State:        state,
		Volume:       intField(rec, "volume", -1),
		Random:       boolField(rec, "random"),
		Repeat:       boolField(rec, "repeat"),
		Single:       boolField(rec, "single"),
		Consume:      boolField(rec, "consume"),
		QueueLength:  intField(rec, "playlistlength", 0),
		QueueVersion: intField(rec, "playlist", 0),
		Crossfade:    intField(rec, "xfade", 0),
		MixRampDB:    floatField(rec, "mixrampdb", 0),
		MixRampDelay: floatField(rec, "mixrampdelay", 0),
		SongPos:      intField(rec, "song", -1),
		SongID:       intField(rec, "songid", -1),
		NextSongPos:  intField(rec, "nextsong", -1),
		NextSongID:   intField(rec, "nextsongid", -1),
		KbitRate:     intField(rec, "bitrate", 0),
		UpdateID:     intField(rec, "updating_db", 0),
		Error:        stringField(rec, "error"),
	}

	if v, ok := lookup(rec, "time"); ok {
		elapsed, total, ok1, ok2 := splitPair(v, ":")
		if ok1 {
			status.ElapsedTime = int(elapsed)
			status.ElapsedMS = int(elapsed) * 1000
		}
		if ok2 {
			status.TotalTime = int(total)
		}
	}
	if elapsed := floatField(rec, "elapsed", -1); elapsed >= 0 {
		status.ElapsedTime = int(elapsed)
		status.ElapsedMS = int(math.Round(elapsed * 1000))
	}
	if status.TotalTime == 0 {
		if d := floatField(rec, "duration", 0); d > 0 {
			status.TotalTime = int(math.Round(d))
		}
	}
	return status
}
