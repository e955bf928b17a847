package mp4

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kyonifer/silveran-reader-sub004/internal/testgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Tags(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := testgen.GenerateM4B(t, dir, "book.m4b", testgen.M4BOptions{
		Title:       "Project Hail Mary",
		Artist:      "Andy Weir",
		Album:       "Project Hail Mary",
		Narrator:    "Ray Porter",
		Description: "A lone astronaut.",
		HasCover:    true,
	})

	tags, err := Parse(path)
	require.NoError(t, err)

	assert.Equal(t, "Project Hail Mary", tags.Title)
	assert.Equal(t, []string{"Andy Weir"}, tags.Artists)
	assert.Equal(t, []string{"Ray Porter"}, tags.Narrators)
	assert.Equal(t, "A lone astronaut.", tags.Description)
	assert.Equal(t, "image/png", tags.CoverMimeType)
	assert.NotEmpty(t, tags.CoverData)
	assert.Zero(t, tags.Skipped)
}

func TestParse_NoTags(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := testgen.GenerateM4B(t, dir, "empty.m4b", testgen.M4BOptions{})

	tags, err := Parse(path)
	require.NoError(t, err)
	assert.Empty(t, tags.Title)
	assert.Empty(t, tags.Artists)
}

func TestParse_NotMP4(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "text.m4b")
	require.NoError(t, os.WriteFile(path, []byte("this is just some text, not boxes"), 0600))

	_, err := Parse(path)
	assert.ErrorIs(t, err, ErrNotMP4)
}

func TestSplitNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"Neil Gaiman", "Terry Pratchett"}, splitNames("Neil Gaiman & Terry Pratchett"))
	assert.Equal(t, []string{"A", "B", "C"}, splitNames("A, B; C"))
	assert.Nil(t, splitNames("  "))
}

func TestParseDataValue_Short(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", parseTextData([]byte{0, 0, 0}))
	_, _, ok := parseImageData([]byte{0, 0, 0, 1, 0, 0, 0, 0, 'x'})
	assert.False(t, ok)
}
