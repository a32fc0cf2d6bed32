package exporter

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/genricoloni/nowplaying-xml/internal/domain"
)

// fetchRecord reads every exported field of track from db, in output order
func fetchRecord(db domain.Database, track domain.TrackRef) (domain.MetadataRecord, error) {
	rec := make(domain.MetadataRecord, 0, len(domain.Fields))
	for _, f := range domain.Fields {
		v, err := db.EntryGet(track, f.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s of %s: %w", f.Key, track, err)
		}
		rec = append(rec, domain.FieldValue{Name: f.Name, Value: toText(v)})
	}
	return rec, nil
}

// toText coerces a database value to its text form. Missing values become "".
func toText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(val, ", ")
	case fmt.Stringer:
		return val.String()
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
