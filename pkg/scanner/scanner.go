package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kyonifer/silveran-reader-sub004/pkg/mediafile"
	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// DefaultCategories maps the per-book subfolder names to categories.
var DefaultCategories = map[string]models.Category{
	"ebook":  models.CategoryEbook,
	"audio":  models.CategoryAudio,
	"synced": models.CategorySynced,
}

var expectedMimeTypes = map[string]map[string]struct{}{
	mediafile.FileTypeEPUB: {"application/epub+zip": {}},
	mediafile.FileTypeM4B:  {"audio/x-m4a": {}, "audio/mp4": {}, "video/mp4": {}, "audio/x-m4b": {}},
}

// Extractor turns one file into a book record.
type Extractor interface {
	Extract(ctx context.Context, path string, category models.Category) (*models.Book, error)
}

type Options struct {
	// Categories overrides DefaultCategories when non-empty.
	Categories map[string]models.Category
	// VerifyMimeTypes sniffs each file and skips those whose content doesn't
	// match their extension.
	VerifyMimeTypes bool
}

type ScanOptions struct {
	// Seen is shared with other scans to avoid extracting a path twice. A
	// fresh set is used when nil.
	Seen *SeenSet
}

// Scanner walks a library root laid out as <root>/<book>/<category>/<file>.
type Scanner struct {
	extractor       Extractor
	categories      map[string]models.Category
	categoryFolders []string
	verifyMimeTypes bool
}

func New(extractor Extractor, opts Options) *Scanner {
	categories := opts.Categories
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	folders := make([]string, 0, len(categories))
	for name := range categories {
		folders = append(folders, name)
	}
	sort.Strings(folders)

	return &Scanner{
		extractor:       extractor,
		categories:      categories,
		categoryFolders: folders,
		verifyMimeTypes: opts.VerifyMimeTypes,
	}
}

// Scan discovers every supported file under root. Per-file failures are
// logged and skipped, and unreadable directories are treated as empty, so
// the only errors returned are an invalid root path or ctx cancellation.
func (s *Scanner) Scan(ctx context.Context, root string, opts ScanOptions) (*models.ScanResult, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"root": root})

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	seen := opts.Seen
	if seen == nil {
		seen = NewSeenSet()
	}

	result := models.NewScanResult()

	for _, bookEntry := range readDir(log, root) {
		if isHidden(bookEntry.Name()) {
			continue
		}
		bookDir := filepath.Join(root, bookEntry.Name())
		if !isDir(bookEntry, bookDir) {
			continue
		}

		for _, folder := range s.categoryFolders {
			category := s.categories[folder]
			categoryDir := filepath.Join(bookDir, folder)

			for _, fileEntry := range readDir(log, categoryDir) {
				if err := ctx.Err(); err != nil {
					return nil, errors.WithStack(err)
				}
				if isHidden(fileEntry.Name()) || fileEntry.IsDir() {
					continue
				}
				path := filepath.Join(categoryDir, fileEntry.Name())
				s.scanFile(ctx, log, root, path, category, seen, result)
			}
		}
	}

	log.Debug("scan finished", logger.Data{"books": len(result.Books)})

	return result, nil
}

func (s *Scanner) scanFile(ctx context.Context, log logger.Logger, root, path string, category models.Category, seen *SeenSet, result *models.ScanResult) {
	fileType := mediafile.FileType(path)
	if fileType == "" {
		return
	}
	// Book folders may be symlinks, so one file can be reached under several
	// names. The resolved path is the identity.
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	if !seen.Add(resolved, path) {
		return
	}

	log = log.Data(logger.Data{"path": path})

	if s.verifyMimeTypes {
		mtype, err := mimetype.DetectFile(path)
		if err != nil {
			log.Warn("can't detect the mime type of a file with a valid extension", logger.Data{"err": err.Error()})
			return
		}
		if !mimeMatches(mtype, expectedMimeTypes[fileType]) {
			log.Warn("mime type is not expected for extension", logger.Data{"mimetype": mtype.String()})
			return
		}
	}

	book, err := s.extractor.Extract(ctx, path, category)
	if err != nil {
		log.Err(err).Warn("skipping unreadable file")
		return
	}
	variant := book.PrimaryVariant()
	if variant == "" {
		log.Warn("extracted book has no asset")
		return
	}

	if rel, err := filepath.Rel(root, path); err == nil {
		book.Asset(variant).Filepath = filepath.ToSlash(rel)
	}

	result.Books = append(result.Books, book)
	result.AddPath(book.UUID, variant, path)
}

// readDir lists dir sorted by name. Any error yields an empty listing.
func readDir(log logger.Logger, dir string) []fs.DirEntry {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Debug("treating unreadable directory as empty", logger.Data{"dir": dir, "err": err.Error()})
		}
		return nil
	}
	return entries
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// isDir follows symlinks, which DirEntry.IsDir doesn't.
func isDir(entry fs.DirEntry, path string) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func mimeMatches(mtype *mimetype.MIME, expected map[string]struct{}) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if _, ok := expected[m.String()]; ok {
			return true
		}
	}
	return false
}
