package mpc

import "strings"

// Tag is an MPD tag name in its canonical protocol spelling.
type Tag string

const (
	TagArtist                    Tag = "Artist"
	TagArtistSort                Tag = "ArtistSort"
	TagAlbum                     Tag = "Album"
	TagAlbumSort                 Tag = "AlbumSort"
	TagAlbumArtist               Tag = "AlbumArtist"
	TagAlbumArtistSort           Tag = "AlbumArtistSort"
	TagTitle                     Tag = "Title"
	TagTitleSort                 Tag = "TitleSort"
	TagTrack                     Tag = "Track"
	TagName                      Tag = "Name"
	TagGenre                     Tag = "Genre"
	TagMood                      Tag = "Mood"
	TagDate                      Tag = "Date"
	TagOriginalDate              Tag = "OriginalDate"
	TagComposer                  Tag = "Composer"
	TagComposerSort              Tag = "ComposerSort"
	TagPerformer                 Tag = "Performer"
	TagConductor                 Tag = "Conductor"
	TagWork                      Tag = "Work"
	TagEnsemble                  Tag = "Ensemble"
	TagMovement                  Tag = "Movement"
	TagMovementNumber            Tag = "MovementNumber"
	TagLocation                  Tag = "Location"
	TagGrouping                  Tag = "Grouping"
	TagComment                   Tag = "Comment"
	TagDisc                      Tag = "Disc"
	TagLabel                     Tag = "Label"
	TagMusicBrainzArtistID       Tag = "MUSICBRAINZ_ARTISTID"
	TagMusicBrainzAlbumID        Tag = "MUSICBRAINZ_ALBUMID"
	TagMusicBrainzAlbumArtistID  Tag = "MUSICBRAINZ_ALBUMARTISTID"
	TagMusicBrainzTrackID        Tag = "MUSICBRAINZ_TRACKID"
	TagMusicBrainzReleaseTrackID Tag = "MUSICBRAINZ_RELEASETRACKID"
	TagMusicBrainzWorkID         Tag = "MUSICBRAINZ_WORKID"

	// TagAny matches a value against every tag.
	TagAny Tag = "any"
)

var knownTags = []Tag{
	TagArtist, TagArtistSort, TagAlbum, TagAlbumSort, TagAlbumArtist,
	TagAlbumArtistSort, TagTitle, TagTitleSort, TagTrack, TagName, TagGenre,
	TagMood, TagDate, TagOriginalDate, TagComposer, TagComposerSort,
	TagPerformer, TagConductor, TagWork, TagEnsemble, TagMovement,
	TagMovementNumber, TagLocation, TagGrouping, TagComment, TagDisc,
	TagLabel, TagMusicBrainzArtistID, TagMusicBrainzAlbumID,
	TagMusicBrainzAlbumArtistID, TagMusicBrainzTrackID,
	TagMusicBrainzReleaseTrackID, TagMusicBrainzWorkID,
}

// KnownTags returns the fixed set of tag names accepted in constraints.
func KnownTags() []Tag {
	out := make([]Tag, len(knownTags))
	copy(out, knownTags)
	return out
}

// ParseTag resolves a tag name case-insensitively. "any" resolves to TagAny.
func ParseTag(name string) (Tag, bool) {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, string(TagAny)) {
		return TagAny, true
	}
	for _, tag := range knownTags {
		if strings.EqualFold(name, string(tag)) {
			return tag, true
		}
	}
	// Spellings used by script tables, e.g. album_artist.
	folded := strings.ReplaceAll(name, "_", "")
	if folded != name {
		for _, tag := range knownTags {
			if strings.EqualFold(folded, string(tag)) {
				return tag, true
			}
		}
	}
	return "", false
}

// Constraint is one (tag, value) search term.
type Constraint struct {
	Tag   Tag    `json:"tag"`
	Value string `json:"value"`
}
