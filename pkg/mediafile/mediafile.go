package mediafile

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/kyonifer/silveran-reader-sub004/pkg/epub"
	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/kyonifer/silveran-reader-sub004/pkg/mp4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

const (
	FileTypeEPUB = "epub"
	FileTypeM4B  = "m4b"
)

var ErrUnsupportedFile = errors.New("unsupported file type")

// FileType returns the supported file type for path based on its extension,
// or "" when the extension isn't one we read.
func FileType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		return FileTypeEPUB
	case ".m4b":
		return FileTypeM4B
	}
	return ""
}

type Options struct {
	// CoverFallbacks overrides epub.DefaultCoverFallbacks when non-nil.
	CoverFallbacks []string
}

// Extractor turns a media file into a book record.
type Extractor struct {
	coverFallbacks []string
}

func NewExtractor(opts Options) *Extractor {
	return &Extractor{coverFallbacks: opts.CoverFallbacks}
}

// Extract reads the metadata of the file at path. The asset slot comes from
// the content alone; category is the folder the file was found in and is
// only used for diagnostics. Every call mints a fresh identity.
func (e *Extractor) Extract(ctx context.Context, path string, category models.Category) (*models.Book, error) {
	switch FileType(path) {
	case FileTypeEPUB:
		return e.extractEPUB(ctx, path, category)
	case FileTypeM4B:
		return e.extractM4B(ctx, path)
	}
	return nil, errors.Wrapf(ErrUnsupportedFile, "%s", path)
}

func (e *Extractor) extractEPUB(ctx context.Context, path string, category models.Category) (*models.Book, error) {
	md, err := epub.Parse(path)
	if err != nil {
		return nil, err
	}

	book := &models.Book{
		UUID:            models.NewBookUUID(),
		Title:           md.Title,
		Subtitle:        nonEmpty(md.Subtitle),
		Description:     nonEmpty(md.Description),
		Language:        nonEmpty(md.Language),
		PublicationDate: nonEmpty(md.Date),
		Creators:        md.Creators,
		Tags:            md.Subjects,
	}
	if book.Title == "" {
		book.Title = baseTitle(path)
	}
	if md.Series != "" {
		book.Series = []models.SeriesRef{{Name: md.Series, Position: md.SeriesIndex}}
	}

	// Only media overlays make a readaloud. The synced folder holds
	// candidates, which stay ebooks until they carry overlays.
	variant := models.VariantEbook
	if md.Readaloud {
		variant = models.VariantReadaloud
	} else if category == models.CategorySynced {
		logger.FromContext(ctx).Debug("synced file has no media overlays", logger.Data{"path": path})
	}
	book.SetAsset(variant, &models.Asset{Filepath: filepath.Base(path)})

	return book, nil
}

func (e *Extractor) extractM4B(ctx context.Context, path string) (*models.Book, error) {
	log := logger.FromContext(ctx)

	book := &models.Book{
		UUID:      models.NewBookUUID(),
		Title:     baseTitle(path),
		Audiobook: &models.Asset{Filepath: filepath.Base(path)},
	}

	tags, err := mp4.Parse(path)
	if err != nil {
		// Audio tags are best effort; the file is still a book.
		log.Err(err).Warn("unable to read audio tags", logger.Data{"path": path})
		return book, nil
	}
	if tags.Skipped > 0 {
		log.Debug("skipped undecodable audio tags", logger.Data{"path": path, "skipped": tags.Skipped})
	}

	if tags.Title != "" {
		book.Title = tags.Title
	}
	for _, a := range tags.Artists {
		book.Creators = append(book.Creators, models.Creator{Name: a, Role: "aut"})
	}
	book.Narrators = tags.Narrators
	book.Description = nonEmpty(tags.Description)
	book.PublicationDate = nonEmpty(tags.Year)
	if tags.Genre != "" {
		book.Tags = []string{tags.Genre}
	}

	return book, nil
}

// Cover returns the embedded cover image of a supported file.
func (e *Extractor) Cover(path string) (data []byte, mimeType string, ok bool) {
	switch FileType(path) {
	case FileTypeEPUB:
		c, ok := epub.ExtractCover(path, e.coverFallbacks)
		if !ok {
			return nil, "", false
		}
		return c.Data, c.MimeType, true
	case FileTypeM4B:
		tags, err := mp4.Parse(path)
		if err != nil || len(tags.CoverData) == 0 {
			return nil, "", false
		}
		return tags.CoverData, tags.CoverMimeType, true
	}
	return nil, "", false
}

func baseTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
