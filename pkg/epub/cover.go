package epub

import (
	"github.com/gabriel-vasile/mimetype"
)

// DefaultCoverFallbacks are probed in order when the package document
// doesn't reference a cover.
var DefaultCoverFallbacks = []string{
	"cover.jpg",
	"cover.jpeg",
	"cover.png",
	"OEBPS/cover.jpg",
	"OEBPS/cover.jpeg",
	"OEBPS/cover.png",
	"OEBPS/images/cover.jpg",
	"OEBPS/images/cover.jpeg",
	"OEBPS/images/cover.png",
	"OEBPS/Images/cover.jpg",
	"OPS/cover.jpg",
	"OPS/images/cover.jpg",
	"OPS/images/cover.png",
	"images/cover.jpg",
	"images/cover.png",
}

type Cover struct {
	// Path is the archive entry the image was read from.
	Path     string
	MimeType string
	Data     []byte
}

// Cover finds the cover image. The package document's cover meta wins; when
// it is absent or unresolvable the fallback paths are tried in order. Every
// failure is soft and reported as a false second return value.
func (a *Archive) Cover(fallbacks []string) (*Cover, bool) {
	if fallbacks == nil {
		fallbacks = DefaultCoverFallbacks
	}

	if doc, err := a.Package(); err == nil && doc.CoverID != "" {
		if item, ok := doc.Item(doc.CoverID); ok && item.Href != "" {
			for _, candidate := range []string{doc.Resolve(item.Href), item.Href} {
				if c, ok := a.readCover(candidate); ok {
					return c, true
				}
			}
		}
	}

	for _, candidate := range fallbacks {
		if c, ok := a.readCover(candidate); ok {
			return c, true
		}
	}

	return nil, false
}

func (a *Archive) readCover(name string) (*Cover, bool) {
	data, err := a.ReadFile(name)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return &Cover{
		Path:     name,
		MimeType: mimetype.Detect(data).String(),
		Data:     data,
	}, true
}
