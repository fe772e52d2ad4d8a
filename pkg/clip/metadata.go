// ABOUTME: Track metadata extracted from the stripped container header
// ABOUTME: Parses ID3-style tags with dhowden/tag
package clip

import (
	"bytes"

	"github.com/dhowden/tag"
)

// Metadata is the track information carried by the stream's container
// header, surfaced through the metadata event.
type Metadata struct {
	Title  string
	Artist string
	Album  string
}

// parseHeaderTags reads tag metadata out of the header bytes the segmenter
// stripped from the front of the stream.
func parseHeaderTags(header []byte) (Metadata, bool) {
	m, err := tag.ReadFrom(bytes.NewReader(header))
	if err != nil {
		return Metadata{}, false
	}
	return Metadata{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
	}, true
}
