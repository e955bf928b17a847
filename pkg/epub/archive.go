package epub

import (
	"archive/zip"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Archive is an opened EPUB container.
type Archive struct {
	zr     *zip.Reader
	closer io.Closer
}

// OpenArchive opens the zip archive at path. The returned Archive must be
// closed by the caller.
func OpenArchive(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(ErrArchiveOpen, err.Error())
	}

	stats, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(ErrArchiveOpen, err.Error())
	}

	zr, err := zip.NewReader(f, stats.Size())
	if err != nil {
		f.Close()
		return nil, errors.Wrap(ErrArchiveOpen, err.Error())
	}

	return &Archive{zr: zr, closer: f}, nil
}

// NewArchive wraps an already opened zip reader. Close is a no-op.
func NewArchive(zr *zip.Reader) *Archive {
	return &Archive{zr: zr}
}

func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return errors.WithStack(a.closer.Close())
}

// file looks up an entry by exact name and falls back to a case-insensitive
// match, since some producers disagree with their own manifests on case.
func (a *Archive) file(name string) *zip.File {
	name = strings.TrimPrefix(name, "/")
	for _, f := range a.zr.File {
		if f.Name == name {
			return f
		}
	}
	for _, f := range a.zr.File {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

// ReadFile returns the contents of the named entry, or os.ErrNotExist.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	f := a.file(name)
	if f == nil {
		return nil, errors.Wrap(os.ErrNotExist, name)
	}
	r, err := f.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

// PackagePath reads META-INF/container.xml and returns the declared package
// document path.
func (a *Archive) PackagePath() (string, error) {
	data, err := a.ReadFile(containerPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", errors.WithStack(ErrContainerMissing)
	}
	if err != nil {
		return "", errors.Wrap(ErrContainerMalformed, err.Error())
	}
	return parseContainer(data)
}

// Package locates and parses the package document.
func (a *Archive) Package() (*PackageDocument, error) {
	packagePath, err := a.PackagePath()
	if err != nil {
		return nil, err
	}
	data, err := a.ReadFile(packagePath)
	if err != nil {
		return nil, errors.Wrap(ErrPackageUnreadable, err.Error())
	}
	return ParsePackage(packagePath, data)
}

// IsReadaloud reports whether the archive carries synchronized audio
// overlays, detected by the presence of any .smil entry.
func (a *Archive) IsReadaloud() bool {
	for _, f := range a.zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".smil") {
			return true
		}
	}
	return false
}
