package catalogcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SaveAndLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state", "catalog.bolt")

	c, err := Open(path)
	require.NoError(t, err)

	fetched := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	err = c.Save("https://books.example.com/", &Snapshot{
		Books: []*models.Book{{
			UUID:      "b1",
			Title:     "Cached",
			Creators:  []models.Creator{{Name: "Author", Role: "aut"}},
			Audiobook: &models.Asset{Filepath: "b1.m4b"},
		}},
		ETag:      `"v3"`,
		FetchedAt: fetched,
	})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	// Reopen to make sure the snapshot was persisted.
	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()

	snap, err := c.Load("HTTPS://books.example.com")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, `"v3"`, snap.ETag)
	assert.True(t, fetched.Equal(snap.FetchedAt))
	require.Len(t, snap.Books, 1)
	assert.Equal(t, "Cached", snap.Books[0].Title)
	require.NotNil(t, snap.Books[0].Audiobook)
	assert.Equal(t, "b1.m4b", snap.Books[0].Audiobook.Filepath)
}

func TestCache_ServersAreSeparate(t *testing.T) {
	t.Parallel()

	c, err := Open(filepath.Join(t.TempDir(), "catalog.bolt"))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Save("https://one.example.com", &Snapshot{ETag: "one"}))

	snap, err := c.Load("https://two.example.com")
	require.NoError(t, err)
	assert.Nil(t, snap)

	snap, err = c.Load("https://one.example.com")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "one", snap.ETag)

	require.NoError(t, c.Clear("https://one.example.com"))
	snap, err = c.Load("https://one.example.com")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestCache_Links(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "catalog.bolt")

	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Link("/library/Dune/ebook/dune.epub", "r1"))
	require.NoError(t, c.Link("/library/Dune/audio/../audio/dune.m4b", "r1"))
	require.NoError(t, c.Link("/library/Emma/ebook/emma.epub", "r2"))
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()

	links, err := c.Links()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"/library/Dune/ebook/dune.epub": "r1",
		"/library/Dune/audio/dune.m4b":  "r1",
		"/library/Emma/ebook/emma.epub": "r2",
	}, links)

	require.NoError(t, c.Unlink("/library/Emma/ebook/emma.epub"))
	links, err = c.Links()
	require.NoError(t, err)
	assert.Len(t, links, 2)
	assert.NotContains(t, links, "/library/Emma/ebook/emma.epub")
}
