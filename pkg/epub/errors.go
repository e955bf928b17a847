package epub

import "errors"

// Errors returned by the epub package. Callers match them with errors.Is.
var (
	// ErrArchiveOpen is returned when the file cannot be opened as a zip archive.
	ErrArchiveOpen = errors.New("unable to open archive")

	// ErrContainerMissing is returned when META-INF/container.xml is absent.
	ErrContainerMissing = errors.New("container descriptor missing")

	// ErrContainerMalformed is returned when the container descriptor can't be
	// parsed or doesn't name a package document.
	ErrContainerMalformed = errors.New("container descriptor malformed")

	// ErrPackageUnreadable is returned when the package document named by the
	// container can't be read or parsed.
	ErrPackageUnreadable = errors.New("package document unreadable")

	// ErrInvalidEncoding is returned when the package document isn't valid UTF-8.
	ErrInvalidEncoding = errors.New("package document is not valid UTF-8")
)
