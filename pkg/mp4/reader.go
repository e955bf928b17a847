package mp4

import (
	"bytes"
	"io"
	"os"
	"strings"

	gomp4 "github.com/abema/go-mp4"
	"github.com/pkg/errors"
)

// Tags holds the iTunes-style metadata read from an MP4/M4B file.
type Tags struct {
	Title       string
	Artists     []string
	Album       string
	Narrators   []string
	Description string
	Year        string
	Genre       string

	CoverData     []byte
	CoverMimeType string

	// Skipped counts item atoms that couldn't be decoded.
	Skipped int
}

// Parse reads the tags of the MP4 file at path.
func Parse(path string) (*Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	return ReadTags(f)
}

// ReadTags walks moov/udta/meta/ilst and decodes the items it knows about.
// Reading is best effort: an item that fails to decode is skipped and the
// rest are still returned. ErrNotMP4 is only returned when no movie box could
// be found at all.
func ReadTags(r io.ReadSeeker) (*Tags, error) {
	tags := &Tags{}
	sawMoov := false

	_, err := gomp4.ReadBoxStructure(r, func(h *gomp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case BoxTypeMoov:
			sawMoov = true
			return h.Expand()
		case BoxTypeUdta, BoxTypeMeta, BoxTypeIlst:
			return h.Expand()
		}

		if len(h.Path) >= 2 && h.Path[len(h.Path)-2] == BoxTypeIlst {
			readItem(h, tags)
		}
		return nil, nil
	})
	if err != nil && !sawMoov {
		return nil, errors.Wrap(ErrNotMP4, err.Error())
	}
	if !sawMoov {
		return nil, errors.WithStack(ErrNotMP4)
	}

	return tags, nil
}

func readItem(h *gomp4.ReadHandle, tags *Tags) {
	var buf bytes.Buffer
	if _, err := h.ReadData(&buf); err != nil {
		tags.Skipped++
		return
	}

	data := extractDataBoxContent(buf.Bytes())
	if data == nil {
		tags.Skipped++
		return
	}

	boxType := h.BoxInfo.Type
	switch {
	case atomTypeEquals(boxType, AtomTitle):
		tags.Title = parseTextData(data)
	case atomTypeEquals(boxType, AtomArtist):
		tags.Artists = splitNames(parseTextData(data))
	case atomTypeEquals(boxType, AtomAlbum):
		tags.Album = parseTextData(data)
	case atomTypeEquals(boxType, AtomNarrator):
		tags.Narrators = splitNames(parseTextData(data))
	case atomTypeEquals(boxType, AtomComposer):
		// ©nrt wins when both are present.
		if len(tags.Narrators) == 0 {
			tags.Narrators = splitNames(parseTextData(data))
		}
	case atomTypeEquals(boxType, AtomDescription):
		tags.Description = parseTextData(data)
	case atomTypeEquals(boxType, AtomYear):
		tags.Year = parseTextData(data)
	case atomTypeEquals(boxType, AtomGenre):
		tags.Genre = parseTextData(data)
	case atomTypeEquals(boxType, AtomCover):
		if img, mime, ok := parseImageData(data); ok {
			tags.CoverData = img
			tags.CoverMimeType = mime
		} else {
			tags.Skipped++
		}
	}
}

// splitNames splits a multi-person tag on commas, semicolons and ampersands.
func splitNames(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '&'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
