package mpc

import (
	"strings"
	"time"
)

// PlaybackState is the daemon's player state.
type PlaybackState int

const (
	StateUnknown PlaybackState = iota
	StateStopped
	StatePlaying
	StatePaused
)

func (s PlaybackState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name.
func (s PlaybackState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name; anything unrecognised is unknown.
func (s *PlaybackState) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "stopped":
		*s = StateStopped
	case "playing":
		*s = StatePlaying
	case "paused":
		*s = StatePaused
	default:
		*s = StateUnknown
	}
	return nil
}

// Active reports whether a current song exists for this state.
func (s PlaybackState) Active() bool {
	return s == StatePlaying || s == StatePaused
}

// Status is a point-in-time copy of the daemon status. When State is
// StateUnknown no other field is populated.
type Status struct {
	State        PlaybackState `json:"state"`
	Volume       int           `json:"volume"`
	Random       bool          `json:"random"`
	Repeat       bool          `json:"repeat"`
	Single       bool          `json:"single"`
	Consume      bool          `json:"consume"`
	QueueLength  int           `json:"queueLength"`
	QueueVersion int           `json:"queueVersion"`
	Crossfade    int           `json:"crossfade"`
	MixRampDB    float64       `json:"mixrampDb"`
	MixRampDelay float64       `json:"mixrampDelay"`
	SongPos      int           `json:"songPos"`
	SongID       int           `json:"songId"`
	NextSongPos  int           `json:"nextSongPos"`
	NextSongID   int           `json:"nextSongId"`
	ElapsedTime  int           `json:"elapsedTime"`
	ElapsedMS    int           `json:"elapsedMs"`
	TotalTime    int           `json:"totalTime"`
	KbitRate     int           `json:"kbitRate"`
	UpdateID     int           `json:"updateId"`
	Error        string        `json:"error,omitempty"`
}

// Track describes one song record. Absent tags are empty strings; absent
// positions are -1.
type Track struct {
	Title        string `json:"title,omitempty"`
	Artist       string `json:"artist,omitempty"`
	AlbumArtist  string `json:"albumArtist,omitempty"`
	Album        string `json:"album,omitempty"`
	TrackNumber  string `json:"track,omitempty"`
	Name         string `json:"name,omitempty"`
	Genre        string `json:"genre,omitempty"`
	Date         string `json:"date,omitempty"`
	Composer     string `json:"composer,omitempty"`
	Performer    string `json:"performer,omitempty"`
	Comment      string `json:"comment,omitempty"`
	Disc         string `json:"disc,omitempty"`
	URI          string `json:"uri"`
	Duration     int    `json:"duration"`
	Start        int    `json:"start"`
	End          int    `json:"end"`
	LastModified int64  `json:"lastModified"`
	Pos          int    `json:"pos"`
	ID           int    `json:"id"`
}

// TagValue returns the value of one of the mapped tags.
func (t Track) TagValue(tag Tag) (string, bool) {
	var v string
	switch tag {
	case TagTitle:
		v = t.Title
	case TagArtist:
		v = t.Artist
	case TagAlbumArtist:
		v = t.AlbumArtist
	case TagAlbum:
		v = t.Album
	case TagTrack:
		v = t.TrackNumber
	case TagName:
		v = t.Name
	case TagGenre:
		v = t.Genre
	case TagDate:
		v = t.Date
	case TagComposer:
		v = t.Composer
	case TagPerformer:
		v = t.Performer
	case TagComment:
		v = t.Comment
	case TagDisc:
		v = t.Disc
	}
	return v, v != ""
}

// ctimeLayout matches C ctime(3) output without its trailing newline.
const ctimeLayout = "Mon Jan _2 15:04:05 2006"

// Stats holds daemon statistics.
type Stats struct {
	Artists    int   `json:"artists"`
	Albums     int   `json:"albums"`
	Songs      int   `json:"songs"`
	Uptime     int64 `json:"uptime"`
	PlayTime   int64 `json:"playTime"`
	DBPlayTime int64 `json:"dbPlayTime"`
	DBUpdate   int64 `json:"dbUpdate"`
}

// DBUpdateTime returns the database update time.
func (s Stats) DBUpdateTime() time.Time {
	return time.Unix(s.DBUpdate, 0)
}

// DBUpdateHuman renders the update time in local time in ctime layout.
func (s Stats) DBUpdateHuman() string {
	return FormatCTime(s.DBUpdate, time.Local)
}

// FormatCTime renders epoch seconds in the given location using the ctime
// layout.
func FormatCTime(epoch int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(epoch, 0).In(loc).Format(ctimeLayout)
}
