package nowplaying

import (
	"bytes"
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/genricoloni/nowplaying-xml/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullRecord() domain.MetadataRecord {
	return domain.MetadataRecord{
		{Name: "title", Value: "Paranoid Android"},
		{Name: "genre", Value: "Alternative"},
		{Name: "artist", Value: "Radiohead"},
		{Name: "album", Value: "OK Computer"},
		{Name: "track-number", Value: "2"},
		{Name: "duration", Value: "387"},
		{Name: "bitrate", Value: "320"},
	}
}

func TestRender_ExactDocument(t *testing.T) {
	data, err := Render(fullRecord())
	require.NoError(t, err)

	want := `<?xml version="1.0" ?>
<nowplaying>
  <song>
    <title>Paranoid Android</title>
    <genre>Alternative</genre>
    <artist>Radiohead</artist>
    <album>OK Computer</album>
    <track-number>2</track-number>
    <duration>387</duration>
    <bitrate>320</bitrate>
  </song>
</nowplaying>
`
	assert.Equal(t, want, string(data))
}

func TestRender_FieldOrderPreserved(t *testing.T) {
	data, err := Render(fullRecord())
	require.NoError(t, err)

	doc, err := xmlquery.Parse(bytes.NewReader(data))
	require.NoError(t, err)

	song := xmlquery.FindOne(doc, "/nowplaying/song")
	require.NotNil(t, song, "song element missing")

	var names []string
	for n := song.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			names = append(names, n.Data)
		}
	}

	var want []string
	for _, f := range domain.Fields {
		want = append(want, f.Name)
	}
	assert.Equal(t, want, names)
}

func TestRender_EmptyValues(t *testing.T) {
	rec := domain.MetadataRecord{
		{Name: "title", Value: "Only Title"},
		{Name: "genre", Value: ""},
	}

	data, err := Render(rec)
	require.NoError(t, err)

	doc, err := xmlquery.Parse(bytes.NewReader(data))
	require.NoError(t, err)

	genre := xmlquery.FindOne(doc, "/nowplaying/song/genre")
	require.NotNil(t, genre, "empty field must still be emitted")
	assert.Equal(t, "", genre.InnerText())
}

func TestRender_EscapesText(t *testing.T) {
	rec := domain.MetadataRecord{
		{Name: "title", Value: `Rock & Roll <Live> "Edit"`},
		{Name: "artist", Value: "Simon & Garfunkel"},
	}

	data, err := Render(rec)
	require.NoError(t, err)

	assert.False(t, strings.Contains(string(data), "<Live>"), "raw markup leaked into document")

	doc, err := xmlquery.Parse(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, `Rock & Roll <Live> "Edit"`, xmlquery.FindOne(doc, "//title").InnerText())
	assert.Equal(t, "Simon & Garfunkel", xmlquery.FindOne(doc, "//artist").InnerText())
}

func TestRender_EmptyRecord(t *testing.T) {
	data, err := Render(nil)
	require.NoError(t, err)

	doc, err := xmlquery.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	assert.NotNil(t, xmlquery.FindOne(doc, "/nowplaying/song"))
}
