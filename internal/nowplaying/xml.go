// Package nowplaying renders the now-playing XML document read by external
// display tools.
package nowplaying

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/genricoloni/nowplaying-xml/internal/domain"
)

const (
	header      = `<?xml version="1.0" ?>` + "\n"
	rootElement = "nowplaying"
	songElement = "song"
)

// Render serializes rec as:
//
//	<nowplaying>
//	  <song>
//	    <title>...</title>
//	    ...
//	  </song>
//	</nowplaying>
//
// Fields are written in record order.
func Render(rec domain.MetadataRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: rootElement}}
	song := xml.StartElement{Name: xml.Name{Local: songElement}}

	if err := enc.EncodeToken(root); err != nil {
		return nil, fmt.Errorf("failed to open %s element: %w", rootElement, err)
	}
	if err := enc.EncodeToken(song); err != nil {
		return nil, fmt.Errorf("failed to open %s element: %w", songElement, err)
	}

	for _, f := range rec {
		if err := enc.EncodeElement(f.Value, xml.StartElement{Name: xml.Name{Local: f.Name}}); err != nil {
			return nil, fmt.Errorf("failed to encode field %q: %w", f.Name, err)
		}
	}

	if err := enc.EncodeToken(song.End()); err != nil {
		return nil, fmt.Errorf("failed to close %s element: %w", songElement, err)
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, fmt.Errorf("failed to close %s element: %w", rootElement, err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush document: %w", err)
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
