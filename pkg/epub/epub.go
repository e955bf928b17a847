package epub

import (
	"github.com/pkg/errors"
)

// Metadata is everything Parse learns about an EPUB file.
type Metadata struct {
	*PackageDocument
	Readaloud bool
}

// Parse opens the EPUB at path and extracts its package metadata and whether
// it is a readaloud (synchronized audio) book.
func Parse(path string) (*Metadata, error) {
	a, err := OpenArchive(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	doc, err := a.Package()
	if err != nil {
		return nil, errors.WithMessagef(err, "%s", path)
	}

	return &Metadata{
		PackageDocument: doc,
		Readaloud:       a.IsReadaloud(),
	}, nil
}

// ExtractCover opens the EPUB at path and returns its cover image, if any.
func ExtractCover(path string, fallbacks []string) (*Cover, bool) {
	a, err := OpenArchive(path)
	if err != nil {
		return nil, false
	}
	defer a.Close()
	return a.Cover(fallbacks)
}
