package player

import (
	"math"

	"github.com/mikey-austin/mpdbridge/internal/ports"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

// CurrentTrack returns the song being played or paused. When playback is
// stopped there is no current track and ok is false.
func (c *Connection) CurrentTrack() (mpc.Track, bool, error) {
	track, err := roundTrip(c, "now_playing", func(t ports.Transport) (*mpc.Track, error) {
		rec, err := t.Status()
		if err != nil {
			return nil, mpc.CommandError("now_playing", err)
		}
		if !parseState(stringField(rec, "state")).Active() {
			return nil, nil
		}
		song, err := t.CurrentSong()
		if err != nil {
			return nil, mpc.CommandError("now_playing", err)
		}
		if len(song) == 0 {
			return nil, nil
		}
		track := trackFromRecord(song)
		return &track, nil
	})
	if err != nil || track == nil {
		return mpc.Track{}, false, err
	}
	return *track, true, nil
}

func trackFromRecord(rec ports.Record) mpc.Track {
	track := mpc.Track{
		Title:        stringField(rec, string(mpc.TagTitle)),
		Artist:       stringField(rec, string(mpc.TagArtist)),
		AlbumArtist:  stringField(rec, string(mpc.TagAlbumArtist)),
		Album:        stringField(rec, string(mpc.TagAlbum)),
		TrackNumber:  stringField(rec, string(mpc.TagTrack)),
		Name:         stringField(rec, string(mpc.TagName)),
		Genre:        stringField(rec, string(mpc.TagGenre)),
		Date:         stringField(rec, string(mpc.TagDate)),
		Composer:     stringField(rec, string(mpc.TagComposer)),
		Performer:    stringField(rec, string(mpc.TagPerformer)),
		Comment:      stringField(rec, string(mpc.TagComment)),
		Disc:         stringField(rec, string(mpc.TagDisc)),
		URI:          stringField(rec, "file"),
		Duration:     intField(rec, "Time", 0),
		LastModified: unixField(rec, "Last-Modified"),
		Pos:          intField(rec, "Pos", -1),
		ID:           intField(rec, "Id", -1),
	}
	if d := floatField(rec, "duration", 0); d > 0 {
		track.Duration = int(math.Round(d))
	}
	if v, ok := lookup(rec, "Range"); ok {
		start, end, ok1, ok2 := splitPair(v, "-")
		if ok1 {
			track.Start = int(start)
		}
		if ok2 {
			track.End = int(end)
		}
	}
	return track
}
