package binding

import (
	"time"

	"github.com/mikey-austin/mpdbridge/internal/player"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

// statusTable mirrors the snapshot. An unknown state carries only "state".
func statusTable(s mpc.Status) map[string]any {
	if s.State == mpc.StateUnknown {
		return map[string]any{"state": s.State.String()}
	}
	out := map[string]any{
		"state":         s.State.String(),
		"volume":        s.Volume,
		"random":        s.Random,
		"repeat":        s.Repeat,
		"single":        s.Single,
		"consume":       s.Consume,
		"queue_length":  s.QueueLength,
		"queue_version": s.QueueVersion,
		"crossfade":     s.Crossfade,
		"mixrampdb":     s.MixRampDB,
		"mixrampdelay":  s.MixRampDelay,
		"song_pos":      s.SongPos,
		"song_id":       s.SongID,
		"next_song_pos": s.NextSongPos,
		"next_song_id":  s.NextSongID,
		"elapsed_time":  s.ElapsedTime,
		"elapsed_ms":    s.ElapsedMS,
		"total_time":    s.TotalTime,
		"kbit_rate":     s.KbitRate,
		"update_id":     s.UpdateID,
	}
	if s.Error != "" {
		out["error"] = s.Error
	}
	return out
}

var trackTags = []struct {
	key string
	tag mpc.Tag
}{
	{"title", mpc.TagTitle},
	{"artist", mpc.TagArtist},
	{"album_artist", mpc.TagAlbumArtist},
	{"album", mpc.TagAlbum},
	{"track", mpc.TagTrack},
	{"name", mpc.TagName},
	{"genre", mpc.TagGenre},
	{"date", mpc.TagDate},
	{"composer", mpc.TagComposer},
	{"performer", mpc.TagPerformer},
	{"comment", mpc.TagComment},
	{"disc", mpc.TagDisc},
}

// trackTable omits absent tags; positional fields are always present.
func trackTable(t mpc.Track) map[string]any {
	out := map[string]any{
		"uri":           t.URI,
		"duration":      t.Duration,
		"start":         t.Start,
		"end":           t.End,
		"last_modified": t.LastModified,
		"pos":           t.Pos,
		"id":            t.ID,
	}
	for _, tag := range trackTags {
		if v, ok := t.TagValue(tag.tag); ok {
			out[tag.key] = v
		}
	}
	return out
}

func trackList(cursor *player.Cursor) []map[string]any {
	out := []map[string]any{}
	for track := range cursor.All() {
		out = append(out, trackTable(track))
	}
	return out
}

// statsTable carries the update time twice: db_update as epoch seconds and
// db_update_time in ctime layout.
func statsTable(s mpc.Stats, loc *time.Location) map[string]any {
	return map[string]any{
		"artists":        s.Artists,
		"albums":         s.Albums,
		"songs":          s.Songs,
		"uptime":         s.Uptime,
		"play_time":      s.PlayTime,
		"db_play_time":   s.DBPlayTime,
		"db_update":      s.DBUpdate,
		"db_update_time": mpc.FormatCTime(s.DBUpdate, loc),
	}
}
