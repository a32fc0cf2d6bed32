package monitor

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/godbus/dbus/v5"

	"github.com/genricoloni/nowplaying-xml/internal/domain"
)

// ErrUnknownTrack is returned when querying a track that is not the player's current one
var ErrUnknownTrack = errors.New("unknown track")

const (
	keyTrackID = "mpris:trackid"
	keyLength  = "mpris:length"
	keyURL     = "xesam:url"
)

// xesamKeys maps database properties to MPRIS metadata keys
var xesamKeys = map[domain.PropertyKey]string{
	domain.PropTitle:       "xesam:title",
	domain.PropGenre:       "xesam:genre",
	domain.PropArtist:      "xesam:artist",
	domain.PropAlbum:       "xesam:album",
	domain.PropTrackNumber: "xesam:trackNumber",
	domain.PropDuration:    keyLength,
	domain.PropBitrate:     "xesam:audioBitrate",
}

// lookupProperty reads key from an MPRIS metadata map.
// Absent keys yield nil. Durations are converted from microseconds to seconds.
func lookupProperty(meta map[string]dbus.Variant, key domain.PropertyKey) (any, error) {
	mprisKey, ok := xesamKeys[key]
	if !ok {
		return nil, fmt.Errorf("unsupported property %q", key)
	}

	v, ok := meta[mprisKey]
	if !ok {
		return nil, nil
	}

	if key == domain.PropDuration {
		return microsToSeconds(v.Value()), nil
	}
	return v.Value(), nil
}

func microsToSeconds(v any) any {
	switch us := v.(type) {
	case int64:
		return us / 1e6
	case uint64:
		return us / 1e6
	case int32:
		return int64(us) / 1e6
	case uint32:
		return int64(us) / 1e6
	case float64:
		return int64(us / 1e6)
	default:
		return v
	}
}

// trackID extracts the track reference from MPRIS metadata.
// Players that omit mpris:trackid are identified by xesam:url.
func trackID(meta map[string]dbus.Variant) domain.TrackRef {
	for _, key := range []string{keyTrackID, keyURL} {
		v, ok := meta[key]
		if !ok {
			continue
		}
		switch id := v.Value().(type) {
		case dbus.ObjectPath:
			if id != "" && id != "/org/mpris/MediaPlayer2/TrackList/NoTrack" {
				return domain.TrackRef(id)
			}
		case string:
			if id != "" {
				return domain.TrackRef(id)
			}
		}
	}
	return ""
}

// trackURL returns xesam:url or "" if absent
func trackURL(meta map[string]dbus.Variant) string {
	if v, ok := meta[keyURL]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

// changedKeys lists the metadata keys whose values differ between old and cur, sorted
func changedKeys(old, cur map[string]dbus.Variant) []string {
	var keys []string
	for k, nv := range cur {
		ov, ok := old[k]
		if !ok || !reflect.DeepEqual(ov.Value(), nv.Value()) {
			keys = append(keys, k)
		}
	}
	for k := range old {
		if _, ok := cur[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func variantValue(meta map[string]dbus.Variant, key string) any {
	if v, ok := meta[key]; ok {
		return v.Value()
	}
	return nil
}
