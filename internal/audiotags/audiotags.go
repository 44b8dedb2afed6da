// Package audiotags reads embedded ID3, MP4, FLAC and OGG tags from uploads.
package audiotags

import (
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

// Tags is the subset of embedded tags reported alongside probe results.
type Tags struct {
	Format      string `json:"format"`
	FileType    string `json:"file_type"`
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`
	Album       string `json:"album,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Composer    string `json:"composer,omitempty"`
	Year        int    `json:"year,omitempty"`
	Track       int    `json:"track,omitempty"`
	TrackTotal  int    `json:"track_total,omitempty"`
	Disc        int    `json:"disc,omitempty"`
	DiscTotal   int    `json:"disc_total,omitempty"`
	HasPicture  bool   `json:"has_picture"`
}

// Read returns the tags embedded in the file at path, or nil when the file
// carries none. Only I/O failures are errors.
func Read(path string) (*Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		// tag.ErrNoTagsFound and unparseable tag blocks alike mean no tags.
		return nil, nil
	}

	t := &Tags{
		Format:      string(m.Format()),
		FileType:    string(m.FileType()),
		Title:       m.Title(),
		Artist:      m.Artist(),
		AlbumArtist: m.AlbumArtist(),
		Album:       m.Album(),
		Genre:       m.Genre(),
		Composer:    m.Composer(),
		Year:        m.Year(),
		HasPicture:  m.Picture() != nil,
	}
	t.Track, t.TrackTotal = m.Track()
	t.Disc, t.DiscTotal = m.Disc()

	if t.empty() {
		return nil, nil
	}
	return t, nil
}

func (t *Tags) empty() bool {
	return t.Title == "" && t.Artist == "" && t.AlbumArtist == "" && t.Album == "" &&
		t.Genre == "" && t.Composer == "" && t.Year == 0 && t.Track == 0 && !t.HasPicture
}
