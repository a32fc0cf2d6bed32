package domain

// TrackRef is the host's opaque identifier for a track entry.
// The zero value means no track.
type TrackRef string

// IsZero reports whether the reference points to no track
func (t TrackRef) IsZero() bool {
	return t == ""
}

// PropertyKey identifies a metadata property in the host database
type PropertyKey string

const (
	PropTitle       PropertyKey = "title"
	PropGenre       PropertyKey = "genre"
	PropArtist      PropertyKey = "artist"
	PropAlbum       PropertyKey = "album"
	PropTrackNumber PropertyKey = "track-number"
	PropDuration    PropertyKey = "duration"
	PropBitrate     PropertyKey = "bitrate"
)

// Field pairs an output element name with the database key it is read from
type Field struct {
	Name string
	Key  PropertyKey
}

// Fields is the fixed list of exported fields, in output order
var Fields = []Field{
	{Name: "title", Key: PropTitle},
	{Name: "genre", Key: PropGenre},
	{Name: "artist", Key: PropArtist},
	{Name: "album", Key: PropAlbum},
	{Name: "track-number", Key: PropTrackNumber},
	{Name: "duration", Key: PropDuration},
	{Name: "bitrate", Key: PropBitrate},
}

// FieldValue is a single exported field already coerced to text
type FieldValue struct {
	Name  string
	Value string
}

// MetadataRecord is the snapshot of one track's fields, in output order
type MetadataRecord []FieldValue

// Get returns the value of the named field, or "" if the record lacks it
func (r MetadataRecord) Get(name string) string {
	for _, f := range r {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// EventKind identifies one of the player notifications
type EventKind int

const (
	// EventPlaybackStateChanged fires when playback starts or stops
	EventPlaybackStateChanged EventKind = iota
	// EventTrackChanged fires when the playing track is replaced
	EventTrackChanged
	// EventTrackPropertyChanged fires when a property of the playing track changes
	EventTrackPropertyChanged
)

func (k EventKind) String() string {
	switch k {
	case EventPlaybackStateChanged:
		return "playback-state-changed"
	case EventTrackChanged:
		return "current-track-changed"
	case EventTrackPropertyChanged:
		return "current-track-property-changed"
	default:
		return "unknown"
	}
}

// Event carries the payload of a player notification.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	// Playing is set for EventPlaybackStateChanged
	Playing bool

	// Track is set for EventTrackChanged
	Track TrackRef

	// URI, Property, OldValue and NewValue are set for EventTrackPropertyChanged
	URI      string
	Property string
	OldValue any
	NewValue any
}

// Handler receives player notifications
type Handler func(Event)

// SubscriptionID identifies a registered handler
type SubscriptionID uint64
