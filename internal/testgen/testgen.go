// Package testgen provides utilities for generating test files (EPUB, M4B)
// and library trees with configurable metadata for scanner and extractor
// tests.
package testgen

import (
	"os"
	"path/filepath"
	"testing"
)

// EPUBOptions configures the generated EPUB file.
type EPUBOptions struct {
	Title       string
	Authors     []string
	Description string // written verbatim, so CDATA sections can be passed through
	Language    string
	Date        string
	HasCover    bool
	// CoverMeta controls whether the cover is referenced by <meta name="cover">.
	// When false, the cover is only reachable through the fallback paths.
	CoverMeta     bool
	CoverMimeType string // "image/jpeg" or "image/png", defaults to "image/png"
	// Readaloud adds a media overlay (.smil) entry.
	Readaloud bool
	// OmitContainer leaves out META-INF/container.xml.
	OmitContainer bool
	// ContainerXML replaces the generated container.xml.
	ContainerXML string
	// RawOPF replaces the generated package document.
	RawOPF []byte
}

// M4BOptions configures the generated M4B file.
type M4BOptions struct {
	Title       string
	Artist      string // Author
	Album       string
	Narrator    string
	Description string
	HasCover    bool
}

// CreateSubDir creates a subdirectory within the given parent directory.
// Returns the full path to the created subdirectory.
func CreateSubDir(t *testing.T, parent string, names ...string) string {
	t.Helper()
	dir := filepath.Join(append([]string{parent}, names...)...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create subdirectory %s: %v", dir, err)
	}
	return dir
}

// WriteFile creates a file with the given content in the specified directory.
// Returns the full path to the created file.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return path
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
